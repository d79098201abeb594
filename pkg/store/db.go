// Package store is the relational metadata store: the system of record
// for every installed trove, its files, dependencies, provides, the
// changeset log, state snapshots, config-file tracking, and the CAS
// chunk-access ledger used for LRU eviction decisions.
//
// It is backed by modernc.org/sqlite, a pure-Go SQLite driver, so the
// binary stays fully static with no cgo toolchain requirement. Foreign
// keys are enforced (PRAGMA foreign_keys = ON) so cascades described in
// spec.md §4.1 (deleting a trove removes its files, dependencies,
// provides, and config tracking) are the database's job, not the
// caller's.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
)

// Store wraps the metadata database connection.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, enables
// foreign key enforcement, and runs any pending migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dbErr("open", err)
	}
	// modernc.org/sqlite serializes access internally; a single
	// connection avoids "database is locked" churn under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log.WithComponent("store").Debug().Str("path", path).Msg("metadata store opened")
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Querier is satisfied by both *sql.DB and *sql.Tx, letting CRUD
// functions run either standalone or inside Transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transaction runs fn inside a single database transaction, committing on
// a nil return and rolling back otherwise. Every multi-row mutation in
// the engine (install, remove, upgrade, rollback) goes through this so a
// failure partway through never leaves the metadata store in a state
// inconsistent with the filesystem.
func (s *Store) Transaction(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbErr("transaction: begin", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithComponent("store").Error().Err(rbErr).Msg("rollback failed after transaction error")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbErr("transaction: commit", err)
	}
	return nil
}

// DB exposes the Querier for read-only operations that don't need a
// transaction (list/find calls).
func (s *Store) DB() Querier {
	return s.db
}
