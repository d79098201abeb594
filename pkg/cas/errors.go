package cas

import "errors"

// Sentinel errors surfaced by the content-addressable store. pkg/engine
// maps these onto the CasError category of its failure taxonomy.
var (
	ErrNotFound    = errors.New("cas: object not found")
	ErrIO          = errors.New("cas: io error")
	ErrInvalidHash = errors.New("cas: invalid digest")
)

// IOError wraps an underlying filesystem error with the path that
// triggered it.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return "cas: io error at " + e.Path + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return errors.Join(ErrIO, e.Err) }
