// Package policy compiles the retention state machine from its CUE source
// into a closed runtime table.
//
// The machine is DATA, not code: states, the transition table, per-state
// obligations, and thresholds all live in retention.cue and are compiled
// once at startup. The engine and the rights gate consult the same table,
// so an edge removed from the CUE source is gone everywhere at once.
package policy

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed retention.cue
var retentionCUE []byte

// State is a position in the retention state machine.
type State string

const (
	StateOnboarding      State = "ONBOARDING"
	StateEngaged         State = "ENGAGED"
	StateMomentum        State = "MOMENTUM"
	StateAtRisk          State = "AT_RISK"
	StateRecovering      State = "RECOVERING"
	StateStreakFractured State = "STREAK_FRACTURED"
	StateDormant         State = "DORMANT"
)

// Obligation is what a user in a risk state owes to leave it.
// Either an action with a deadline, or a consistency target (days).
type Obligation struct {
	Action            string `json:"action,omitempty"`
	DeadlineHours     int    `json:"deadline_hours,omitempty"`
	ConsistencyTarget int    `json:"consistency_target,omitempty"`
}

// Table is the compiled retention policy.
type Table struct {
	states      map[State]bool
	edges       map[State]map[State]bool
	obligations map[State]Obligation

	EngagedStreak  int // streak depth that promotes ONBOARDING -> ENGAGED
	MomentumStreak int // streak depth that promotes ENGAGED -> MOMENTUM
	RecoveryTarget int // consecutive qualifying days to exit RECOVERING
	DormancyDays   int // consecutive misses that sink a fracture to DORMANT
}

// Load compiles the embedded CUE source into a Table.
func Load() (*Table, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(retentionCUE)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &Table{
		states:      make(map[State]bool),
		edges:       make(map[State]map[State]bool),
		obligations: make(map[State]Obligation),
	}

	if err := t.parseStates(v); err != nil {
		return nil, err
	}
	if err := t.parseTransitions(v); err != nil {
		return nil, err
	}
	if err := t.parseObligations(v); err != nil {
		return nil, err
	}
	if err := t.parseThresholds(v); err != nil {
		return nil, err
	}

	return t, nil
}

// MustLoad is like Load but panics on error. The CUE source is embedded,
// so a failure here is a build defect, not a runtime condition.
func MustLoad() *Table {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

// Allowed reports whether the transition from -> to is in the table.
// Self-transitions are always allowed (staying put is not a transition).
func (t *Table) Allowed(from, to State) bool {
	if from == to {
		return true
	}
	return t.edges[from][to]
}

// Known reports whether s is a declared state.
func (t *Table) Known(s State) bool {
	return t.states[s]
}

// ObligationFor returns the obligation attached to a state, if any.
func (t *Table) ObligationFor(s State) (Obligation, bool) {
	o, ok := t.obligations[s]
	return o, ok
}

func (t *Table) parseStates(v cue.Value) error {
	iter, err := v.LookupPath(cue.ParsePath("states")).List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return formatCUEError(err)
		}
		t.states[State(s)] = true
	}
	if len(t.states) == 0 {
		return &PolicyError{Field: "states", Message: "at least one state is required"}
	}
	return nil
}

func (t *Table) parseTransitions(v cue.Value) error {
	iter, err := v.LookupPath(cue.ParsePath("transitions")).List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		edge := iter.Value()
		from, err := edge.LookupPath(cue.ParsePath("from")).String()
		if err != nil {
			return formatCUEError(err)
		}
		to, err := edge.LookupPath(cue.ParsePath("to")).String()
		if err != nil {
			return formatCUEError(err)
		}
		if !t.states[State(from)] {
			return &PolicyError{
				Field:   "transitions",
				Message: fmt.Sprintf("edge references unknown state %q", from),
				Pos:     edge.Pos(),
			}
		}
		if !t.states[State(to)] {
			return &PolicyError{
				Field:   "transitions",
				Message: fmt.Sprintf("edge references unknown state %q", to),
				Pos:     edge.Pos(),
			}
		}
		if t.edges[State(from)] == nil {
			t.edges[State(from)] = make(map[State]bool)
		}
		t.edges[State(from)][State(to)] = true
	}
	return nil
}

func (t *Table) parseObligations(v cue.Value) error {
	obVal := v.LookupPath(cue.ParsePath("obligations"))
	if !obVal.Exists() {
		return nil
	}
	iter, err := obVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		st := State(iter.Label())
		if !t.states[st] {
			return &PolicyError{
				Field:   "obligations",
				Message: fmt.Sprintf("obligation for unknown state %q", st),
				Pos:     iter.Value().Pos(),
			}
		}
		var o Obligation
		if av := iter.Value().LookupPath(cue.ParsePath("action")); av.Exists() {
			s, err := av.String()
			if err != nil {
				return formatCUEError(err)
			}
			o.Action = s
		}
		if dv := iter.Value().LookupPath(cue.ParsePath("deadline_hours")); dv.Exists() {
			n, err := dv.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			o.DeadlineHours = int(n)
		}
		if cv := iter.Value().LookupPath(cue.ParsePath("consistency_target")); cv.Exists() {
			n, err := cv.Int64()
			if err != nil {
				return formatCUEError(err)
			}
			o.ConsistencyTarget = int(n)
		}
		t.obligations[st] = o
	}
	return nil
}

func (t *Table) parseThresholds(v cue.Value) error {
	read := func(name string) (int, error) {
		tv := v.LookupPath(cue.ParsePath("thresholds." + name))
		if !tv.Exists() {
			return 0, &PolicyError{
				Field:   "thresholds",
				Message: fmt.Sprintf("missing threshold %q", name),
			}
		}
		n, err := tv.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return int(n), nil
	}

	var err error
	if t.EngagedStreak, err = read("engaged_streak"); err != nil {
		return err
	}
	if t.MomentumStreak, err = read("momentum_streak"); err != nil {
		return err
	}
	if t.RecoveryTarget, err = read("recovery_target"); err != nil {
		return err
	}
	if t.DormancyDays, err = read("dormancy_days"); err != nil {
		return err
	}
	return nil
}

// PolicyError reports a defect in the policy source with its position.
type PolicyError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *PolicyError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &PolicyError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
