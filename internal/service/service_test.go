package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/engine"
	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/ledger"
	"github.com/roach88/cadence/internal/policy"
	"github.com/roach88/cadence/internal/project"
	"github.com/roach88/cadence/internal/rights"
	"github.com/roach88/cadence/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *testutil.FixedClock) {
	t.Helper()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	table := policy.MustLoad()
	eng := engine.New(table)
	gate := rights.NewGate(table, 2)
	clock := testutil.NewFixedClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	svc := New(store, eng, gate,
		WithNow(clock.Now),
		WithIDGenerator(NewFixedGenerator()),
	)
	return svc, clock
}

func userActor(id string) event.Actor {
	return event.Actor{Type: event.ActorUser, ID: id}
}

func checkIn(day string) event.Payload {
	return event.Payload{CheckIn: &event.CheckInPayload{Day: day}}
}

func TestProcessAction_FirstCheckinOpensLedger(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	assert.Equal(t, 1, st.Streak.Count)
	assert.True(t, st.Streak.Active)

	history, err := svc.GetHistory(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2, "genesis plus the check-in")
	assert.Equal(t, event.TypeGenesis, history[0].Event.Type)
	assert.Equal(t, event.TypeCheckIn, history[1].Event.Type)
	assert.NotEmpty(t, history[1].Event.Meta.NarrativeID, "every event carries a narrative")
	assert.True(t, history[1].Event.Meta.RightsChecked)
}

func TestProcessAction_DuplicateSameDayIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	second, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	assert.Equal(t, first.Streak.Count, second.Streak.Count)

	history, err := svc.GetHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 2, "the duplicate must not reach the chain")
}

func TestGetUserState_LazyReconciliation(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	for i, day := range []string{"2026-03-01", "2026-03-02", "2026-03-03"} {
		_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn(day), userActor("alice"))
		require.NoError(t, err)
		if i < 2 {
			clock.AdvanceDays(1)
		}
	}

	// Two fully elapsed silent days, then a read on the third.
	clock.AdvanceDays(3)
	st, err := svc.GetUserState(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, policy.StateStreakFractured, st.EngagementState)
	assert.False(t, st.Streak.Active)
	assert.Equal(t, 2, st.ConsecutiveMisses)
}

func TestProcessAction_DormantUserIsLockedAndReceipted(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	// A month of silence sinks the account to DORMANT.
	clock.AdvanceDays(30)
	_, err = svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-31"), userActor("alice"))
	require.Error(t, err)

	var gerr *rights.GovernanceError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, rights.CodeDormantLocked, gerr.Code)

	receipts, err := svc.Receipts(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, rights.CodeDormantLocked, receipts[0].Code)
	assert.NotEmpty(t, receipts[0].ContentHash)

	// The refused action never reached the chain.
	history, err := svc.GetHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestProcessAction_ResurrectionUnlocksDormantUser(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	clock.AdvanceDays(30)
	st, err := svc.ProcessAction(ctx, "alice", event.TypeResurrection,
		event.Payload{Resurrection: &event.ResurrectionPayload{Day: "2026-03-31"}}, userActor("alice"))
	require.NoError(t, err)

	assert.Equal(t, policy.StateOnboarding, st.EngagementState)
}

func TestProcessAction_AppealWithoutCapitalDenied(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	_, err = svc.ProcessAction(ctx, "alice", event.TypeAppealSubmitted,
		event.Payload{AppealSubmitted: &event.AppealSubmittedPayload{Day: "2026-03-01", Reason: "test"}},
		userActor("alice"))
	require.Error(t, err)

	var gerr *rights.GovernanceError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, rights.CodeInsufficientCapital, gerr.Code)
}

func TestProcessAction_SupportGrantsFreezeWhileAtRisk(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	// One silent day puts alice at risk; bob sends support.
	clock.AdvanceDays(2)
	st, err := svc.ProcessAction(ctx, "alice", event.TypeSendSupport,
		event.Payload{SendSupport: &event.SendSupportPayload{FromUserID: "bob"}},
		event.Actor{Type: event.ActorPartner, ID: "bob"})
	require.NoError(t, err)

	assert.Equal(t, policy.StateAtRisk, st.EngagementState)
	assert.Equal(t, 1, st.Streak.FreezeTokens)
}

func TestEndToEnd_AuditStaysVerified(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	days := []string{"2026-03-01", "2026-03-02", "2026-03-03", "2026-03-04"}
	for i, day := range days {
		_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn(day), userActor("alice"))
		require.NoError(t, err)
		if i < len(days)-1 {
			clock.AdvanceDays(1)
		}
	}

	// Miss a few days, link a partner, rest.
	clock.AdvanceDays(3)
	_, err := svc.ProcessAction(ctx, "alice", event.TypePartnerLinked,
		event.Payload{PartnerLinked: &event.PartnerLinkedPayload{PartnerID: "bob"}}, userActor("alice"))
	require.NoError(t, err)

	clock.AdvanceDays(1)
	_, err = svc.ProcessAction(ctx, "alice", event.TypeRestDay,
		event.Payload{RestDay: &event.RestDayPayload{Day: "2026-03-08"}}, userActor("alice"))
	require.NoError(t, err)

	report, err := svc.AuditUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, project.StatusVerified, report.Status, "live fold and replay must agree: %+v", report.Divergences)
}

func TestAuditUser_AfterLazyRead(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	// A read after a silent gap reconciles the cache past the last
	// persisted event. That is not drift; the audit must agree.
	clock.AdvanceDays(3)
	st, err := svc.GetUserState(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, policy.StateStreakFractured, st.EngagementState)

	report, err := svc.AuditUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, project.StatusVerified, report.Status, "lazy read must not flag: %+v", report.Divergences)

	// Rebuilding keeps the reconciled horizon instead of rewinding it.
	rebuilt, err := svc.RebuildState(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, st.LastEvaluatedDay, rebuilt.LastEvaluatedDay)
	assert.Equal(t, st.EngagementState, rebuilt.EngagementState)

	report, err = svc.AuditUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, project.StatusVerified, report.Status)
}

func TestProcessAction_StalePayloadDayRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessAction(ctx, "alice", event.TypeCheckIn, checkIn("2026-03-01"), userActor("alice"))
	require.NoError(t, err)

	// A day far behind the clock must never reach the chain; replay
	// would choke on it forever.
	_, err = svc.ProcessAction(ctx, "alice", event.TypeWitnessWorkout,
		event.Payload{WitnessWorkout: &event.WitnessWorkoutPayload{WitnessID: "bob", Day: "2020-01-01"}},
		event.Actor{Type: event.ActorPartner, ID: "bob"})
	require.Error(t, err)
	assert.True(t, ledger.IsIntegrityError(err))

	history, err := svc.GetHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	report, err := svc.AuditUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, project.StatusVerified, report.Status)
}

func TestGetUserState_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	st, err := svc.GetUserState(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, st)
}
