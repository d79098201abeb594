/*
Package log provides structured logging for the engine, CAS, state engine,
and scriptlet host using zerolog.

A single global zerolog.Logger is configured once via Init and shared across
packages; component loggers are derived with WithComponent/WithChangeset/
WithTrove/WithState rather than re-deriving fields ad hoc at each call site.

Security errors (PathTraversal, InvalidPath) must be logged at Warn or
higher with the full offending path, per the engine's error-handling
contract; HookFailed at post-phase is a warning, not an error, because the
underlying transaction already committed.
*/
package log
