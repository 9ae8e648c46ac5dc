package model

import "fmt"

// ValidationError marks a track that cannot enter the pipeline: missing or
// ambiguous files, malformed front matter, duplicate slug. It is recorded as
// an invalid BuildResult and never aborts the run.
type ValidationError struct {
	Slug   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("track %s: %s", e.Slug, e.Reason)
}

// TransientError wraps a failure worth retrying: a non-zero encoder exit, a
// timeout, a storage error. The retry policy unwraps it to decide whether
// another attempt is allowed.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// TrackError is terminal for one track: retries exhausted or a non-retryable
// tool failure. Other tracks keep going.
type TrackError struct {
	Slug string
	Op   string // "encode", "sync:stream", "sync:cover", ...
	Err  error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %s: %s: %v", e.Slug, e.Op, e.Err)
}

func (e *TrackError) Unwrap() error { return e.Err }

// FatalError aborts the whole run: an unusable cache state or a site
// generation failure. The previously published output is left untouched.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as run-fatal.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Op: op, Err: err}
}
