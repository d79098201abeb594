// Package lock provides the process-wide exclusive lock the engine
// cooperates with (§5 "Locking discipline"): one file lock per install
// root, held by whichever process is mutating that root's metadata
// store and content-addressable store.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/ConaryLabs/Conary-sub004/pkg/log"
)

// ErrBusy is returned by TryAcquire when another process already holds
// the lock.
var ErrBusy = errors.New("lock: held by another process")

// Lock wraps a file-based exclusive lock plus the sibling .pid file that
// records the holder's process ID for diagnostics.
type Lock struct {
	flock   *flock.Flock
	pidPath string
}

// New prepares a Lock at path (conventionally <state-dir>/daemon.lock);
// it does not acquire anything yet.
func New(path string) *Lock {
	return &Lock{flock: flock.New(path), pidPath: path + ".pid"}
}

// TryAcquire attempts a non-blocking lock acquisition, returning ErrBusy
// if another process holds it.
func (l *Lock) TryAcquire() error {
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock: try acquire %s: %w", l.flock.Path(), err)
	}
	if !ok {
		return ErrBusy
	}
	return l.writePID()
}

// Acquire blocks until the lock is obtained.
func (l *Lock) Acquire() error {
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("lock: acquire %s: %w", l.flock.Path(), err)
	}
	return l.writePID()
}

// Release unlocks and removes the sibling .pid file.
func (l *Lock) Release() error {
	if err := os.Remove(l.pidPath); err != nil && !os.IsNotExist(err) {
		log.WithComponent("lock").Warn().Err(err).Str("path", l.pidPath).Msg("failed to remove pid file")
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("lock: release %s: %w", l.flock.Path(), err)
	}
	return nil
}

// HolderPID returns the PID recorded in the sibling .pid file, if any.
// Used by the CLI to report which process currently holds the lock
// when acquisition fails with ErrBusy.
func HolderPID(path string) (int, error) {
	data, err := os.ReadFile(path + ".pid")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func (l *Lock) writePID() error {
	return os.WriteFile(l.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}
