package project

import (
	"fmt"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/ledger"
	"github.com/roach88/cadence/internal/state"
)

// Projector folds a chain into a snapshot.
type Projector struct {
	engine *engine.Engine
}

// NewProjector creates a projector over the given engine.
func NewProjector(eng *engine.Engine) *Projector {
	return &Projector{engine: eng}
}

// Reduce replays the chain in index order and returns the resulting
// snapshot. Days that elapsed between persisted events are re-walked as
// implicit misses by the engine itself, exactly as they were during
// live evaluation. An empty history returns (nil, nil).
func (p *Projector) Reduce(history []*ledger.Block) (*state.UserState, error) {
	if len(history) == 0 {
		return nil, nil
	}

	st := state.Genesis(history[0].UserID)
	for _, b := range history {
		day, err := state.ParseDay(b.Event.EffectiveDay())
		if err != nil {
			return nil, fmt.Errorf("replay block %d: %w", b.Index, err)
		}
		next, err := p.engine.Evolve(st, b.Event, day)
		if err != nil {
			return nil, fmt.Errorf("replay block %d: %w", b.Index, err)
		}
		st = next
	}
	return st, nil
}

// Reconcile folds the days elapsed between the snapshot's last evaluated
// day and day into the snapshot, with no action applied.
func (p *Projector) Reconcile(st *state.UserState, day state.Day) (*state.UserState, error) {
	return p.engine.Evolve(st, nil, day)
}
