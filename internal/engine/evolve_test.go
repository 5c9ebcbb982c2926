package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/policy"
	"github.com/roach88/cadence/internal/state"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(policy.MustLoad(), opts...)
}

func genesisEvent(userID string, day state.Day) *event.Event {
	return &event.Event{
		ID:        "gen-" + userID,
		UserID:    userID,
		Type:      event.TypeGenesis,
		Timestamp: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Actor:     event.Actor{Type: event.ActorSystem, ID: "service"},
		Payload:   event.Payload{Genesis: &event.GenesisPayload{Day: string(day)}},
		Meta:      event.Meta{NarrativeID: "n-gen"},
	}
}

func checkInEvent(userID string, day state.Day) *event.Event {
	return &event.Event{
		ID:        "ci-" + string(day),
		UserID:    userID,
		Type:      event.TypeCheckIn,
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Actor:     event.Actor{Type: event.ActorUser, ID: userID},
		Payload:   event.Payload{CheckIn: &event.CheckInPayload{Day: string(day)}},
		Meta:      event.Meta{NarrativeID: "n-ci"},
	}
}

// walk evolves through consecutive days, checking in on each.
func walk(t *testing.T, e *Engine, st *state.UserState, from state.Day, days int) *state.UserState {
	t.Helper()
	d := from
	for i := 0; i < days; i++ {
		next, err := e.Evolve(st, checkInEvent(st.UserID, d), d)
		require.NoError(t, err)
		st = next
		d = d.Next()
	}
	return st
}

func TestEvolve_Genesis(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	assert.Equal(t, policy.StateOnboarding, st.EngagementState)
	assert.Equal(t, state.Day("2026-03-01"), st.LastEvaluatedDay)
	assert.Equal(t, state.Day("2026-03-01"), st.Today.Day)
	assert.Equal(t, state.TodayPending, st.Today.Status)
}

func TestEvolve_PerfectWeekReachesMomentum(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	st = walk(t, e, st, "2026-03-01", 7)

	assert.Equal(t, 7, st.Streak.Count)
	assert.True(t, st.Streak.Active)
	assert.Equal(t, policy.StateMomentum, st.EngagementState)
	assert.Equal(t, 7, st.Streak.Longest)
	assert.False(t, st.Recovery.IsSalvageable)
	assert.Nil(t, st.Obligation)
}

func TestEvolve_ThreeDaysPromoteToEngaged(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	st = walk(t, e, st, "2026-03-01", 2)
	assert.Equal(t, policy.StateOnboarding, st.EngagementState)

	st = walk(t, e, st, "2026-03-03", 1)
	assert.Equal(t, policy.StateEngaged, st.EngagementState)
}

func TestEvolve_MissedDayOpensSalvageWindow(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	st = walk(t, e, st, "2026-03-01", 3) // ENGAGED, last evaluated 2026-03-03

	// Nothing happens on 03-04; evaluate on 03-05.
	st, err = e.Evolve(st, nil, "2026-03-05")
	require.NoError(t, err)

	assert.Equal(t, policy.StateAtRisk, st.EngagementState)
	assert.True(t, st.WarnedAtRisk)
	assert.False(t, st.Streak.Active, "no freeze tokens, streak breaks")
	assert.Equal(t, 0, st.Streak.Count)
	assert.True(t, st.Recovery.IsSalvageable)
	assert.Equal(t, 24, st.Recovery.WindowRemainingHours)
	require.NotNil(t, st.Obligation)
	assert.Equal(t, "check_in", st.Obligation.Action)
	assert.Equal(t, state.Day("2026-03-05"), st.LastEvaluatedDay)
	assert.Equal(t, state.TodayPending, st.Today.Status)
}

func TestEvolve_FreezeTokenHoldsStreak(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	st = walk(t, e, st, "2026-03-01", 3)

	withToken := st.Clone()
	withToken.Streak.FreezeTokens = 1

	got, err := e.Evolve(withToken, nil, "2026-03-05")
	require.NoError(t, err)

	assert.True(t, got.Streak.Active, "freeze token preserves the streak")
	assert.Equal(t, 3, got.Streak.Count)
	assert.Equal(t, 0, got.Streak.FreezeTokens, "exactly one token consumed")
	// The day still counts as missed for retention purposes.
	assert.Equal(t, policy.StateAtRisk, got.EngagementState)
}

func TestEvolve_FreezeNeverGoesNegative(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	st = walk(t, e, st, "2026-03-01", 3)
	st = st.Clone()
	st.Streak.FreezeTokens = 1

	// Three elapsed days, one token: day one held, day two breaks.
	got, err := e.Evolve(st, nil, "2026-03-07")
	require.NoError(t, err)

	assert.Equal(t, 0, got.Streak.FreezeTokens)
	assert.False(t, got.Streak.Active)
}

func TestEvolve_Idempotent(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	once, err := e.Evolve(st, checkInEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	twice, err := e.Evolve(once, checkInEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	assert.Equal(t, once, twice, "second check-in on the same day is a no-op")
	assert.Equal(t, 1, twice.Streak.Count)
}

func TestEvolve_BackwardsDateRejected(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-10"), "2026-03-10")
	require.NoError(t, err)

	_, err = e.Evolve(st, nil, "2026-03-09")
	require.Error(t, err)
	assert.True(t, IsReconciliationError(err))
}

func TestEvolve_GapBeyondBoundRejected(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2025-01-01"), "2025-01-01")
	require.NoError(t, err)

	// 365 days is still reconcilable.
	_, err = e.Evolve(st, nil, "2026-01-01")
	require.NoError(t, err)

	// 366 is not.
	_, err = e.Evolve(st, nil, "2026-01-02")
	require.Error(t, err)
	assert.True(t, IsReconciliationError(err))

	var re *ReconciliationError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 366, re.GapDays)
}

func TestEvolve_LongAbsenceSinksToDormant(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	st = walk(t, e, st, "2026-03-01", 3) // ENGAGED

	// Twenty silent days: AT_RISK, then FRACTURED, then DORMANT at the
	// fourteenth consecutive miss.
	st, err = e.Evolve(st, nil, "2026-03-24")
	require.NoError(t, err)

	assert.Equal(t, policy.StateDormant, st.EngagementState)
	assert.False(t, st.Streak.Active)
	assert.GreaterOrEqual(t, st.ConsecutiveMisses, 14)
}

func TestEvolve_ResurrectionExitsDormancy(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	st = walk(t, e, st, "2026-03-01", 3)
	st, err = e.Evolve(st, nil, "2026-03-24")
	require.NoError(t, err)
	require.Equal(t, policy.StateDormant, st.EngagementState)

	res := &event.Event{
		ID:        "res-1",
		UserID:    "alice",
		Type:      event.TypeResurrection,
		Timestamp: time.Date(2026, 3, 24, 9, 0, 0, 0, time.UTC),
		Actor:     event.Actor{Type: event.ActorUser, ID: "alice"},
		Payload:   event.Payload{Resurrection: &event.ResurrectionPayload{Day: "2026-03-24"}},
		Meta:      event.Meta{NarrativeID: "n-res"},
	}
	st, err = e.Evolve(st, res, "2026-03-24")
	require.NoError(t, err)

	assert.Equal(t, policy.StateOnboarding, st.EngagementState)
	assert.Equal(t, 0, st.Streak.Count)
	assert.Equal(t, 0, st.ConsecutiveMisses)
}

func TestEvolve_CheckInAfterBreakRestartsAtOne(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	st = walk(t, e, st, "2026-03-01", 5)
	require.Equal(t, 5, st.Streak.Count)

	// Two silent days break the streak, then a fresh check-in.
	st, err = e.Evolve(st, checkInEvent("alice", "2026-03-08"), "2026-03-08")
	require.NoError(t, err)

	assert.Equal(t, 1, st.Streak.Count)
	assert.True(t, st.Streak.Active)
	assert.Equal(t, 5, st.Streak.Longest, "longest survives the break")
}

func TestEvolve_Deterministic(t *testing.T) {
	e := newTestEngine(t)

	base, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)
	base = walk(t, e, base, "2026-03-01", 4)

	a, err := e.Evolve(base, checkInEvent("alice", "2026-03-09"), "2026-03-09")
	require.NoError(t, err)
	b, err := e.Evolve(base, checkInEvent("alice", "2026-03-09"), "2026-03-09")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEvolve_DoesNotMutateInput(t *testing.T) {
	e := newTestEngine(t)

	st, err := e.Evolve(state.Genesis("alice"), genesisEvent("alice", "2026-03-01"), "2026-03-01")
	require.NoError(t, err)

	snapshot := st.Clone()
	_, err = e.Evolve(st, checkInEvent("alice", "2026-03-03"), "2026-03-03")
	require.NoError(t, err)

	assert.Equal(t, snapshot, st, "input state must not change")
}
