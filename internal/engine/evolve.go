package engine

import (
	"time"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/policy"
	"github.com/roach88/cadence/internal/state"
)

// DefaultMaxGapDays bounds retroactive reconciliation. A gap beyond this
// is rejected rather than backfilled - a safety bound against unbounded
// walks over corrupt or ancient cache entries.
const DefaultMaxGapDays = 365

// DefaultFreezeTokenCap bounds the freeze-token balance so a long
// support streak cannot make a user permanently immune to misses.
const DefaultFreezeTokenCap = 3

// Engine is the deterministic daily transition function.
//
// Evolve and ApplyEvent are computation-only: they never touch I/O,
// never consult the wall clock, and never mutate their inputs. All
// temporal reconciliation is lazy - nothing here runs on a timer.
type Engine struct {
	table          *policy.Table
	maxGapDays     int
	freezeTokenCap int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxGapDays overrides the reconciliation bound.
func WithMaxGapDays(days int) Option {
	return func(e *Engine) { e.maxGapDays = days }
}

// WithFreezeTokenCap overrides the freeze-token balance cap.
func WithFreezeTokenCap(cap int) Option {
	return func(e *Engine) { e.freezeTokenCap = cap }
}

// New creates an Engine over a compiled retention table.
func New(table *policy.Table, opts ...Option) *Engine {
	e := &Engine{
		table:          table,
		maxGapDays:     DefaultMaxGapDays,
		freezeTokenCap: DefaultFreezeTokenCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table returns the retention table the engine evaluates against.
func (e *Engine) Table() *policy.Table {
	return e.table
}

// deduplicable event types complete a day at most once.
func deduplicable(t event.Type) bool {
	switch t {
	case event.TypeCheckIn, event.TypeGroupCheckIn, event.TypeRestDay:
		return true
	}
	return false
}

// Evolve computes the state after evaluating evalDay, optionally with an
// action. act may be nil (pure reconciliation of elapsed time).
//
// Algorithm:
//  1. Idempotence guard: a deduplicable action on an already-completed
//     current day returns the input unchanged.
//  2. Every calendar day strictly between the last evaluated day and
//     evalDay is walked as an implicit missed day, in order, through the
//     same ApplyEvent used for explicit events. Gaps beyond the bound
//     fail with ReconciliationError.
//  3. The today sandbox rolls over to evalDay.
//  4. The action, if present, is applied.
//  5. The salvage window is recomputed from the resulting state.
//
// Re-running Evolve with identical inputs yields an identical result:
// the walk depends only on (prevState, action, evalDay).
func (e *Engine) Evolve(prev *state.UserState, act *event.Event, evalDay state.Day) (*state.UserState, error) {
	if act != nil && act.Type == event.TypeGenesis {
		s, err := e.ApplyEvent(prev, act)
		if err != nil {
			return nil, err
		}
		e.recomputeSalvage(s)
		return s, nil
	}

	cur := prev
	if cur.LastEvaluatedDay == "" {
		// No genesis on record: anchor the ledgerless state at evalDay.
		s := cur.Clone()
		s.LastEvaluatedDay = evalDay
		s.Today = state.Today{Day: evalDay, Status: state.TodayPending}
		cur = s
	}

	// Idempotence guard.
	if act != nil && deduplicable(act.Type) &&
		cur.LastEvaluatedDay == evalDay && cur.Today.PrimaryActionDone {
		return prev, nil
	}

	if evalDay.Before(cur.LastEvaluatedDay) {
		return nil, &ReconciliationError{
			UserID:  cur.UserID,
			LastDay: cur.LastEvaluatedDay,
			EvalDay: evalDay,
			GapDays: state.DaysBetween(cur.LastEvaluatedDay, evalDay),
			Message: "evaluation day precedes last evaluated day",
		}
	}

	gap := state.DaysBetween(cur.LastEvaluatedDay, evalDay)
	if gap > e.maxGapDays {
		return nil, &ReconciliationError{
			UserID:  cur.UserID,
			LastDay: cur.LastEvaluatedDay,
			EvalDay: evalDay,
			GapDays: gap,
			Message: "gap exceeds reconciliation bound",
		}
	}

	// Walk the elapsed days as implicit misses.
	for d := cur.LastEvaluatedDay.Next(); d.Before(evalDay); d = d.Next() {
		next, err := e.ApplyEvent(cur, syntheticMissedDay(cur, d))
		if err != nil {
			return nil, err
		}
		next.LastEvaluatedDay = d
		cur = next
	}

	// Roll the today sandbox onto evalDay.
	if gap > 0 {
		s := cur.Clone()
		s.Today = state.Today{Day: evalDay, Status: state.TodayPending}
		s.LastEvaluatedDay = evalDay
		cur = s
	}

	if act != nil {
		next, err := e.ApplyEvent(cur, act)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	fin := cur.Clone()
	e.recomputeSalvage(fin)
	return fin, nil
}

// recomputeSalvage opens a 24-hour recovery window while the user is at
// risk and closes it otherwise.
func (e *Engine) recomputeSalvage(s *state.UserState) {
	if s.EngagementState == policy.StateAtRisk {
		hours := 24
		if o, ok := e.table.ObligationFor(policy.StateAtRisk); ok && o.DeadlineHours > 0 {
			hours = o.DeadlineHours
		}
		s.Recovery.IsSalvageable = true
		s.Recovery.WindowRemainingHours = hours
		return
	}
	s.Recovery.IsSalvageable = false
	s.Recovery.WindowRemainingHours = 0
}

// syntheticMissedDay builds the implicit event for one elapsed day.
// Synthesized events exist only in memory - they are never persisted,
// and replay re-synthesizes them from the same inputs.
func syntheticMissedDay(s *state.UserState, d state.Day) *event.Event {
	return &event.Event{
		ID:        "synthetic:" + string(d),
		UserID:    s.UserID,
		Type:      event.TypeMissedDay,
		Timestamp: time.Time{},
		Actor:     event.Actor{Type: event.ActorSystem, ID: "daily-engine"},
		Payload: event.Payload{
			MissedDay: &event.MissedDayPayload{
				Day:        string(d),
				FreezeUsed: s.Streak.Active && s.Streak.FreezeTokens > 0,
			},
		},
		Meta: event.Meta{NarrativeID: "synthetic"},
	}
}
