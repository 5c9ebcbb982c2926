package ledger

import (
	"errors"
	"fmt"
)

// IntegrityError rejects an event before it reaches the chain: failed
// validation, a skipped rights check, or a synthetic type that must
// never be persisted. Never retried.
type IntegrityError struct {
	UserID string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s (user=%s)", e.Reason, e.UserID)
}

// IsIntegrityError reports whether err is (or wraps) an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// WriteError wraps a storage failure during append. Retryable: the
// chain is unchanged when it is returned.
type WriteError struct {
	UserID string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write (user=%s): %v", e.UserID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is (or wraps) a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// ReadError wraps a storage failure during history reads.
type ReadError struct {
	UserID string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ledger read (user=%s): %v", e.UserID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// CorruptionError means verification found a block whose stored hashes
// do not match a recomputation, or a hole in the index sequence. The
// store never repairs; the error carries the first bad index.
type CorruptionError struct {
	UserID string
	Index  int64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("chain corruption at block %d (user=%s): %s", e.Index, e.UserID, e.Reason)
}

// IsCorruptionError reports whether err is (or wraps) a CorruptionError.
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}
