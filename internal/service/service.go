// Package service is the boundary in front of the engine.
//
// All writes flow through ProcessAction: load the current snapshot,
// dry-run the engine, pass the rights gate, and only then append to the
// ledger and refresh the cache. Nothing outside this package appends
// events or mutates state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/ledger"
	"github.com/roach88/cadence/internal/narrative"
	"github.com/roach88/cadence/internal/project"
	"github.com/roach88/cadence/internal/rights"
	"github.com/roach88/cadence/internal/state"
)

// Append retry defaults. Only WriteError is retried; everything else is
// permanent at the first occurrence.
const (
	defaultAppendRetries  = 2 // attempts = 1 + retries
	defaultAppendInterval = 50 * time.Millisecond
)

// Service wires the engine, gate, ledger, and projector into the single
// write path.
type Service struct {
	store     *ledger.Store
	engine    *engine.Engine
	gate      *rights.Gate
	projector *project.Projector
	agent     *project.Agent
	renderer  *narrative.Renderer
	ids       IDGenerator
	now       func() time.Time
	logger    *slog.Logger

	retries  uint64
	interval time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIDGenerator overrides the event id source.
func WithIDGenerator(g IDGenerator) ServiceOption {
	return func(s *Service) { s.ids = g }
}

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithRetryPolicy overrides the append retry count and interval.
func WithRetryPolicy(retries int, interval time.Duration) ServiceOption {
	return func(s *Service) {
		if retries >= 0 {
			s.retries = uint64(retries)
		}
		if interval > 0 {
			s.interval = interval
		}
	}
}

// New creates a Service.
func New(store *ledger.Store, eng *engine.Engine, gate *rights.Gate, opts ...ServiceOption) *Service {
	projector := project.NewProjector(eng)
	s := &Service{
		store:     store,
		engine:    eng,
		gate:      gate,
		projector: projector,
		renderer:  narrative.NewRenderer(),
		ids:       UUIDv7Generator{},
		now:       time.Now,
		logger:    slog.Default(),
		retries:   defaultAppendRetries,
		interval:  defaultAppendInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.agent = project.NewAgent(store, projector, nil, s.logger)
	return s
}

// ProcessAction runs one user action through the full write path:
//
//	load snapshot -> dry-run evolve -> rights gate -> append -> cache
//
// A gate refusal is receipted and returned as a GovernanceError with
// nothing appended. A first action for an unknown user opens the ledger
// with a genesis block automatically.
func (s *Service) ProcessAction(ctx context.Context, userID string, t event.Type, payload event.Payload, actor event.Actor) (*state.UserState, error) {
	now := s.now().UTC()
	evalDay := state.DayOf(now)

	// A day-bearing payload must name the evaluation day. A stale day
	// would append cleanly and then break every later replay of the chain.
	if day, ok := payloadDay(payload); ok && day != string(evalDay) {
		return nil, &ledger.IntegrityError{
			UserID: userID,
			Reason: fmt.Sprintf("payload day %s does not match evaluation day %s", day, evalDay),
		}
	}

	current, err := s.ensureGenesis(ctx, userID, now, evalDay)
	if err != nil {
		return nil, err
	}

	// Fold in the elapsed days first, so the gate judges the action
	// against where the user actually stands today, not a stale cache.
	reconciled, err := s.engine.Evolve(current, nil, evalDay)
	if err != nil {
		return nil, err
	}

	if err := s.gate.EnforceAction(t, reconciled); err != nil {
		s.receipt(ctx, now, userID, t, err)
		return nil, err
	}

	// A repeated day-completing action is a no-op: nothing appended.
	if deduplicableType(t) && reconciled.Today.Day == evalDay && reconciled.Today.PrimaryActionDone {
		return reconciled, nil
	}

	ev := &event.Event{
		ID:        s.ids.Generate(),
		UserID:    userID,
		Type:      t,
		Timestamp: now,
		Actor:     actor,
		Payload:   payload,
	}
	n := s.renderer.Render(ev, reconciled)
	ev.Meta = event.Meta{
		RuleIDs:     []string{n.RuleID},
		NarrativeID: n.ID,
	}

	// Dry run. The engine never sees the ledger; a failure here leaves
	// no trace.
	proposed, err := s.engine.Evolve(reconciled, ev, evalDay)
	if err != nil {
		return nil, err
	}

	if err := s.gate.EnforceTransition(current, proposed); err != nil {
		s.receipt(ctx, now, userID, t, err)
		return nil, err
	}
	ev.Meta.RightsChecked = true

	if _, err := s.append(ctx, ev); err != nil {
		return nil, err
	}

	s.cache(ctx, proposed)
	return proposed, nil
}

// GetUserState returns the user's snapshot reconciled to today. The
// cache is used when present, otherwise the chain is replayed. Elapsed
// days are folded in lazily on read. A user with no ledger returns
// (nil, nil); only store or reconciliation failures are errors.
func (s *Service) GetUserState(ctx context.Context, userID string) (*state.UserState, error) {
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	evalDay := state.DayOf(s.now().UTC())
	reconciled, err := s.engine.Evolve(current, nil, evalDay)
	if err != nil {
		return nil, err
	}
	if reconciled.LastEvaluatedDay != current.LastEvaluatedDay {
		s.cache(ctx, reconciled)
	}
	return reconciled, nil
}

// GetHistory returns the user's chain.
func (s *Service) GetHistory(ctx context.Context, userID string) ([]*ledger.Block, error) {
	return s.store.GetHistory(ctx, userID)
}

// AuditUser runs the verification agent for one user.
func (s *Service) AuditUser(ctx context.Context, userID string) (*project.Report, error) {
	return s.agent.AuditUser(ctx, userID)
}

// RebuildState discards the cache and rewrites it from replay.
func (s *Service) RebuildState(ctx context.Context, userID string) (*state.UserState, error) {
	return s.agent.RebuildState(ctx, userID)
}

// VerifyChain recomputes the user's chain hashes.
func (s *Service) VerifyChain(ctx context.Context, userID string) error {
	return s.store.VerifyChain(ctx, userID)
}

// Users returns every user id with a ledger.
func (s *Service) Users(ctx context.Context) ([]string, error) {
	return s.store.Users(ctx)
}

// Receipts returns the user's denial receipts, newest first.
func (s *Service) Receipts(ctx context.Context, userID string) ([]rights.Receipt, error) {
	return s.store.ReceiptsFor(ctx, userID)
}

// payloadDay returns the calendar day carried by a day-bearing payload
// variant. Social payloads (partner link, support, pardon) carry none.
func payloadDay(p event.Payload) (string, bool) {
	switch {
	case p.Genesis != nil:
		return p.Genesis.Day, true
	case p.CheckIn != nil:
		return p.CheckIn.Day, true
	case p.GroupCheckIn != nil:
		return p.GroupCheckIn.Day, true
	case p.RestDay != nil:
		return p.RestDay.Day, true
	case p.MissedDay != nil:
		return p.MissedDay.Day, true
	case p.StreakFractured != nil:
		return p.StreakFractured.Day, true
	case p.WitnessWorkout != nil:
		return p.WitnessWorkout.Day, true
	case p.AppealSubmitted != nil:
		return p.AppealSubmitted.Day, true
	case p.Resurrection != nil:
		return p.Resurrection.Day, true
	}
	return "", false
}

// deduplicableType marks actions that complete a day at most once.
func deduplicableType(t event.Type) bool {
	switch t {
	case event.TypeCheckIn, event.TypeGroupCheckIn, event.TypeRestDay:
		return true
	}
	return false
}

// load returns the cached snapshot or, failing that, a replay of the
// chain. Returns nil when the user has no ledger at all.
func (s *Service) load(ctx context.Context, userID string) (*state.UserState, error) {
	cached, err := s.store.LoadState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	history, err := s.store.GetHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	replayed, err := s.projector.Reduce(history)
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		s.cache(ctx, replayed)
	}
	return replayed, nil
}

// ensureGenesis loads the user's snapshot, opening the ledger with a
// genesis block when none exists yet.
func (s *Service) ensureGenesis(ctx context.Context, userID string, now time.Time, evalDay state.Day) (*state.UserState, error) {
	current, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return current, nil
	}

	gen := &event.Event{
		ID:        s.ids.Generate(),
		UserID:    userID,
		Type:      event.TypeGenesis,
		Timestamp: now,
		Actor:     event.Actor{Type: event.ActorSystem, ID: "service"},
		Payload:   event.Payload{Genesis: &event.GenesisPayload{Day: string(evalDay)}},
	}
	n := s.renderer.Render(gen, state.Genesis(userID))
	gen.Meta = event.Meta{
		RuleIDs:       []string{n.RuleID},
		NarrativeID:   n.ID,
		RightsChecked: true, // genesis creates state, it cannot violate it
	}

	if _, err := s.append(ctx, gen); err != nil {
		return nil, err
	}

	st, err := s.engine.Evolve(state.Genesis(userID), gen, evalDay)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, st)
	s.logger.InfoContext(ctx, "ledger opened", "user_id", userID, "day", evalDay)
	return st, nil
}

// append writes a block with a bounded retry on transient storage
// failures. Integrity refusals are permanent.
func (s *Service) append(ctx context.Context, ev *event.Event) (*ledger.Block, error) {
	var block *ledger.Block
	op := func() error {
		b, err := s.store.Append(ctx, ev)
		if err != nil {
			if ledger.IsWriteError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		block = b
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.interval), s.retries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "event appended",
		"user_id", ev.UserID,
		"type", ev.Type,
		"index", block.Index,
		"narrative_id", ev.Meta.NarrativeID,
	)
	return block, nil
}

// cache refreshes the snapshot cache. The cache is disposable, so a
// failure here is logged and swallowed; the chain already holds the
// truth.
func (s *Service) cache(ctx context.Context, st *state.UserState) {
	if err := s.store.SaveState(ctx, st); err != nil {
		s.logger.WarnContext(ctx, "state cache write failed",
			"user_id", st.UserID, "error", err)
	}
}

// receipt persists the proof artifact for a refused action.
func (s *Service) receipt(ctx context.Context, now time.Time, userID string, t event.Type, err error) {
	var gerr *rights.GovernanceError
	if !errors.As(err, &gerr) {
		return
	}
	r := rights.NewReceipt(now, userID, string(t), gerr)
	if serr := s.store.SaveReceipt(ctx, r); serr != nil {
		s.logger.WarnContext(ctx, "denial receipt write failed",
			"user_id", userID, "error", serr)
		return
	}
	s.logger.InfoContext(ctx, "action denied",
		"user_id", userID,
		"action", t,
		"code", gerr.Code,
		"receipt", r.ContentHash,
	)
}
