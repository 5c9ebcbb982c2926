package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cadence/internal/state"
)

// ReconciliationError means a cached state is too stale (or too new) to
// evolve to the requested day. Fatal for that state: the caller needs
// administrative intervention, not a retry.
type ReconciliationError struct {
	UserID  string
	LastDay state.Day
	EvalDay state.Day
	GapDays int
	Message string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation: %s (user=%s, last=%s, eval=%s, gap=%d)",
		e.Message, e.UserID, e.LastDay, e.EvalDay, e.GapDays)
}

// IsReconciliationError reports whether err is (or wraps) a
// ReconciliationError.
func IsReconciliationError(err error) bool {
	var re *ReconciliationError
	return errors.As(err, &re)
}
