package store

import "errors"

// Sentinel errors returned by the metadata store. Callers in pkg/engine
// match these with errors.Is to classify failures into the taxonomy
// described in spec.md §7.
var (
	ErrNotFound       = errors.New("store: record not found")
	ErrAlreadyExists  = errors.New("store: record already exists")
	ErrAmbiguous      = errors.New("store: more than one record matches")
	ErrMigrationState = errors.New("store: database schema newer than this binary supports")
)

// DatabaseError wraps a low-level database/sql error with the operation
// that triggered it, so logs carry enough context without the caller
// needing to thread it through manually.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}
