// Package rights is the pre-commit guard over retention transitions.
//
// The gate runs against the DRY-RUN result of an action, before anything
// touches the ledger. A refusal is fail-closed: the candidate event is
// never appended, no state changes, and the refusal itself is receipted
// with a machine-readable code so the caller can show the user exactly
// which right was enforced.
package rights

import (
	"errors"
	"fmt"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/policy"
	"github.com/roach88/cadence/internal/state"
)

// Code is a machine-readable governance code. Surfaced verbatim to the
// initiating actor; never retried automatically.
type Code string

const (
	// CodeMomentumShield: a user in MOMENTUM cannot be fractured
	// directly; they must degrade through AT_RISK first.
	CodeMomentumShield Code = "MOMENTUM_SHIELD"

	// CodeDueProcess: a fracture requires evidence of a previously
	// warned AT_RISK passage.
	CodeDueProcess Code = "DUE_PROCESS"

	// CodeIllegalTransition: the proposed edge is not in the retention
	// transition table at all.
	CodeIllegalTransition Code = "ILLEGAL_TRANSITION"

	// CodeInsufficientCapital: an appeal needs a minimum social-capital
	// balance.
	CodeInsufficientCapital Code = "INSUFFICIENT_CAPITAL"

	// CodeDormantLocked: a dormant user may only resurrect or appeal.
	CodeDormantLocked Code = "DORMANT_LOCKED"
)

// explanations are the fixed user-facing texts per code.
var explanations = map[Code]string{
	CodeMomentumShield:      "momentum shield: a momentum streak cannot fracture without passing through at-risk",
	CodeDueProcess:          "due process: no fracture without a prior warned at-risk state",
	CodeIllegalTransition:   "transition is not in the retention table",
	CodeInsufficientCapital: "appeal requires a minimum social-capital balance",
	CodeDormantLocked:       "dormant accounts may only resurrect or appeal",
}

// GovernanceError is a rights violation. It aborts the action before any
// write.
type GovernanceError struct {
	Code    Code
	UserID  string
	From    policy.State
	To      policy.State
	Details string
}

func (e *GovernanceError) Error() string {
	msg := explanations[e.Code]
	if e.From != "" || e.To != "" {
		return fmt.Sprintf("%s: %s (%s -> %s)", e.Code, msg, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Explanation returns the fixed user-facing text for the error's code.
func (e *GovernanceError) Explanation() string {
	return explanations[e.Code]
}

// IsGovernanceError reports whether err is (or wraps) a GovernanceError.
func IsGovernanceError(err error) bool {
	var ge *GovernanceError
	return errors.As(err, &ge)
}

// Gate enforces due-process and shield invariants.
type Gate struct {
	table *policy.Table

	// minAppealCapital is the social-capital floor for appeals.
	minAppealCapital int
}

// NewGate creates a gate over the given retention table.
func NewGate(table *policy.Table, minAppealCapital int) *Gate {
	return &Gate{table: table, minAppealCapital: minAppealCapital}
}

// EnforceTransition validates the state transition an action would cause.
// current and proposed are the pre- and post-dry-run snapshots.
//
// Retroactive reconciliation can walk several days in one evaluation, so
// the two snapshots may be more than one edge apart. The endpoint pair is
// only checked against the transition table when at most one day elapsed;
// multi-day walks are judged by their evidence instead: a fractured
// endpoint must carry a warned at-risk passage from the walk itself.
func (g *Gate) EnforceTransition(current, proposed *state.UserState) error {
	from := current.EngagementState
	to := proposed.EngagementState

	if from == to {
		return nil
	}

	if to == policy.StateStreakFractured && !proposed.WarnedAtRisk {
		if from == policy.StateMomentum {
			return &GovernanceError{
				Code:   CodeMomentumShield,
				UserID: current.UserID,
				From:   from,
				To:     to,
			}
		}
		return &GovernanceError{
			Code:    CodeDueProcess,
			UserID:  current.UserID,
			From:    from,
			To:      to,
			Details: "no warned at-risk passage on record",
		}
	}

	if singleStep(current, proposed) && !g.table.Allowed(from, to) {
		return &GovernanceError{
			Code:   CodeIllegalTransition,
			UserID: current.UserID,
			From:   from,
			To:     to,
		}
	}

	return nil
}

// singleStep reports whether at most one calendar day separates the two
// snapshots, i.e. the endpoints are adjacent in the transition table.
func singleStep(current, proposed *state.UserState) bool {
	if current.LastEvaluatedDay == "" || proposed.LastEvaluatedDay == "" {
		return true
	}
	return state.DaysBetween(current.LastEvaluatedDay, proposed.LastEvaluatedDay) <= 1
}

// EnforceAction validates that the user may take the action at all,
// independent of where it would lead.
func (g *Gate) EnforceAction(t event.Type, current *state.UserState) error {
	if t == event.TypeAppealSubmitted && current.Social.SocialCapital < g.minAppealCapital {
		return &GovernanceError{
			Code:    CodeInsufficientCapital,
			UserID:  current.UserID,
			Details: fmt.Sprintf("capital %d below minimum %d", current.Social.SocialCapital, g.minAppealCapital),
		}
	}

	if current.EngagementState == policy.StateDormant {
		switch t {
		case event.TypeResurrection, event.TypeAppealSubmitted:
			// allowed
		default:
			return &GovernanceError{
				Code:   CodeDormantLocked,
				UserID: current.UserID,
			}
		}
	}

	return nil
}
