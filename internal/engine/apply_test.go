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

func socialEvent(userID string, t event.Type, p event.Payload) *event.Event {
	return &event.Event{
		ID:        "soc-1",
		UserID:    userID,
		Type:      t,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:     event.Actor{Type: event.ActorPartner, ID: "bob"},
		Payload:   p,
		Meta:      event.Meta{NarrativeID: "n-soc"},
	}
}

func baseState(userID string) *state.UserState {
	st := state.Genesis(userID)
	st.LastEvaluatedDay = "2026-03-01"
	st.Today = state.Today{Day: "2026-03-01", Status: state.TodayPending}
	return st
}

func TestApplyPartnerLinked(t *testing.T) {
	e := newTestEngine(t)
	st := baseState("alice")

	got, err := e.ApplyEvent(st, socialEvent("alice", event.TypePartnerLinked, event.Payload{
		PartnerLinked: &event.PartnerLinkedPayload{PartnerID: "bob"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, got.Social.WitnessCount)
	assert.Equal(t, 2, got.Social.SocialCapital)
	assert.Equal(t, 0, got.Social.AuthorityLevel)
}

func TestApplySendSupport_OnlyGrantsWhileAtRisk(t *testing.T) {
	e := newTestEngine(t)
	support := event.Payload{SendSupport: &event.SendSupportPayload{FromUserID: "bob"}}

	st := baseState("alice")
	got, err := e.ApplyEvent(st, socialEvent("alice", event.TypeSendSupport, support))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Streak.FreezeTokens, "support to a healthy user grants nothing")

	st.EngagementState = policy.StateAtRisk
	got, err = e.ApplyEvent(st, socialEvent("alice", event.TypeSendSupport, support))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Streak.FreezeTokens)
}

func TestApplySendSupport_RespectsCap(t *testing.T) {
	e := newTestEngine(t, WithFreezeTokenCap(3))

	st := baseState("alice")
	st.EngagementState = policy.StateAtRisk
	st.Streak.FreezeTokens = 3

	got, err := e.ApplyEvent(st, socialEvent("alice", event.TypeSendSupport, event.Payload{
		SendSupport: &event.SendSupportPayload{FromUserID: "bob"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Streak.FreezeTokens, "balance never exceeds the cap")
}

func TestApplyWitness_RequiresCompletedDay(t *testing.T) {
	e := newTestEngine(t)
	witness := event.Payload{WitnessWorkout: &event.WitnessWorkoutPayload{WitnessID: "bob", Day: "2026-03-01"}}

	st := baseState("alice")
	got, err := e.ApplyEvent(st, socialEvent("alice", event.TypeWitnessWorkout, witness))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Engagement.Score, "vouching for a pending day counts nothing")
	assert.Equal(t, 0, got.Social.WitnessCount)

	st.Today.Status = state.TodayCompleted
	got, err = e.ApplyEvent(st, socialEvent("alice", event.TypeWitnessWorkout, witness))
	require.NoError(t, err)
	assert.Equal(t, 5, got.Engagement.Score)
	assert.Equal(t, 1, got.Social.WitnessCount)
	assert.Equal(t, 1, got.Social.SocialCapital)
}

func TestApplyAppeal_SpendsCapitalWithFloor(t *testing.T) {
	e := newTestEngine(t)
	appeal := event.Payload{AppealSubmitted: &event.AppealSubmittedPayload{Day: "2026-03-01", Reason: "freeze not applied"}}

	st := baseState("alice")
	st.Social.SocialCapital = 3
	got, err := e.ApplyEvent(st, socialEvent("alice", event.TypeAppealSubmitted, appeal))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Social.SocialCapital)

	st.Social.SocialCapital = 1
	got, err = e.ApplyEvent(st, socialEvent("alice", event.TypeAppealSubmitted, appeal))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Social.SocialCapital, "capital never goes negative")
}

func TestApplyPardon_RestoresStreak(t *testing.T) {
	e := newTestEngine(t)

	st := baseState("alice")
	st.EngagementState = policy.StateStreakFractured
	st.Streak.Longest = 9

	got, err := e.ApplyEvent(st, socialEvent("alice", event.TypePardonGranted, event.Payload{
		PardonGranted: &event.PardonGrantedPayload{RestoredCount: 9, GrantedBy: "admin"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 9, got.Streak.Count)
	assert.True(t, got.Streak.Active)
	assert.Equal(t, policy.StateRecovering, got.EngagementState)
}

func TestApplyMissedDay_ScoreFloorsAtZero(t *testing.T) {
	e := newTestEngine(t)

	st := baseState("alice")
	st.Engagement.Score = 5
	st.Engagement.Tier = state.TierBronze

	got := e.applyMissedDay(st, nil)
	assert.Equal(t, 0, got.Engagement.Score)
}

func TestApplyEvent_UnknownTypeFails(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.ApplyEvent(baseState("alice"), &event.Event{Type: "teleported"})
	require.Error(t, err)
}
