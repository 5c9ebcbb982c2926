package engine

import (
	"fmt"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/policy"
	"github.com/roach88/cadence/internal/state"
)

// Scoring constants. Score and decay arithmetic is integer-only so that
// replay on any platform reproduces identical snapshots.
const (
	scoreBase        = 10 // awarded per completed check-in
	momentumBonusCap = 15 // ceiling on the streak-depth bonus
	witnessBonus     = 5  // awarded when a partner vouches for a done day
	decayRiskStep    = 20 // decay_risk added per missed day
	decayRiskRelief  = 25 // decay_risk removed per completed day
	restRelief       = 10 // decay_risk removed per rest day
	appealCost       = 2  // social capital spent on an appeal
	linkCapital      = 2  // social capital gained per partner link
)

// ApplyEvent is the single pure transition used by BOTH the live engine
// and the replay projector. Applying the same event to the same state
// always yields the same next state; drift between live evaluation and
// replay is therefore impossible by construction.
//
// The input state is never mutated; the result is a fresh clone.
func (e *Engine) ApplyEvent(st *state.UserState, ev *event.Event) (*state.UserState, error) {
	switch ev.Type {
	case event.TypeGenesis:
		return e.applyGenesis(ev)
	case event.TypeCheckIn, event.TypeGroupCheckIn:
		return e.applyCheckIn(st, ev), nil
	case event.TypeRestDay:
		return e.applyRestDay(st, ev), nil
	case event.TypeMissedDay:
		return e.applyMissedDay(st, ev), nil
	case event.TypeStreakFractured:
		return e.applyFracture(st, ev), nil
	case event.TypePartnerLinked:
		return e.applyPartnerLinked(st), nil
	case event.TypeSendSupport:
		return e.applySendSupport(st), nil
	case event.TypeWitnessWorkout:
		return e.applyWitness(st), nil
	case event.TypeAppealSubmitted:
		return e.applyAppeal(st), nil
	case event.TypePardonGranted:
		return e.applyPardon(st, ev), nil
	case event.TypeResurrection:
		return e.applyResurrection(st), nil
	default:
		return nil, fmt.Errorf("apply event: unknown type %q", ev.Type)
	}
}

func (e *Engine) applyGenesis(ev *event.Event) (*state.UserState, error) {
	if ev.Payload.Genesis == nil {
		return nil, fmt.Errorf("apply genesis: missing payload")
	}
	day, err := state.ParseDay(ev.Payload.Genesis.Day)
	if err != nil {
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	s := state.Genesis(ev.UserID)
	s.LastEvaluatedDay = day
	s.Today.Day = day
	return s, nil
}

func (e *Engine) applyCheckIn(st *state.UserState, ev *event.Event) *state.UserState {
	day := state.Day(ev.EffectiveDay())
	if st.Today.PrimaryActionDone && st.Today.Day == day {
		// Deduplication branch: the day is already handled.
		return st.Clone()
	}

	s := st.Clone()

	// Streak resolution: first completion after a break restarts at 1.
	if s.Streak.Active {
		s.Streak.Count++
	} else {
		s.Streak.Active = true
		s.Streak.Count = 1
	}
	if s.Streak.Count > s.Streak.Longest {
		s.Streak.Longest = s.Streak.Count
	}

	// Momentum bonus grows with streak depth, capped.
	bonus := s.Streak.Count / 2
	if bonus > momentumBonusCap {
		bonus = momentumBonusCap
	}
	s.Engagement.Score += scoreBase + bonus
	s.Engagement.Tier = state.TierFor(s.Engagement.Score)
	s.Engagement.DecayRisk = clamp(s.Engagement.DecayRisk - decayRiskRelief)

	s.Lifecycle.DaysActive++
	s.Lifecycle.TotalActions++
	s.ConsecutiveMisses = 0
	s.Recovery.MissedDayCount = 0
	s.RecoveryProgress++

	s.Today.Day = day
	s.Today.Status = state.TodayCompleted
	s.Today.PrimaryActionDone = true
	s.Today.ActionLog = append(s.Today.ActionLog, string(ev.Type))

	e.transition(s, policy.Outcome{
		Qualified:        true,
		StreakCount:      s.Streak.Count,
		RecoveryProgress: s.RecoveryProgress,
	})
	return s
}

func (e *Engine) applyRestDay(st *state.UserState, ev *event.Event) *state.UserState {
	day := state.Day(ev.EffectiveDay())
	if st.Today.PrimaryActionDone && st.Today.Day == day {
		return st.Clone()
	}

	s := st.Clone()

	// A rest holds the streak without extending it.
	s.Engagement.DecayRisk = clamp(s.Engagement.DecayRisk - restRelief)
	s.Lifecycle.DaysActive++
	s.Lifecycle.TotalActions++
	s.ConsecutiveMisses = 0
	s.Recovery.MissedDayCount = 0
	s.RecoveryProgress++

	s.Today.Day = day
	s.Today.Status = state.TodayRested
	s.Today.PrimaryActionDone = true
	s.Today.ActionLog = append(s.Today.ActionLog, string(ev.Type))

	e.transition(s, policy.Outcome{
		Qualified:        true,
		StreakCount:      s.Streak.Count,
		RecoveryProgress: s.RecoveryProgress,
	})
	return s
}

func (e *Engine) applyMissedDay(st *state.UserState, _ *event.Event) *state.UserState {
	s := st.Clone()

	// Freeze conservation: at most one token per missed day, never
	// negative, and only spent when there is a streak to protect.
	if s.Streak.Active && s.Streak.FreezeTokens > 0 {
		s.Streak.FreezeTokens--
	} else if s.Streak.Active {
		s.Streak.Active = false
		s.Streak.Count = 0
	}

	s.Engagement.Score -= state.DecayFor(s.Engagement.Tier)
	if s.Engagement.Score < 0 {
		s.Engagement.Score = 0
	}
	s.Engagement.Tier = state.TierFor(s.Engagement.Score)
	s.Engagement.DecayRisk = clamp(s.Engagement.DecayRisk + decayRiskStep)

	s.Lifecycle.DaysMissed++
	s.ConsecutiveMisses++
	s.Recovery.MissedDayCount++
	s.RecoveryProgress = 0

	e.transition(s, policy.Outcome{
		Missed:            true,
		StreakCount:       s.Streak.Count,
		ConsecutiveMisses: s.ConsecutiveMisses,
	})
	return s
}

func (e *Engine) applyFracture(st *state.UserState, _ *event.Event) *state.UserState {
	s := st.Clone()
	s.Streak.Active = false
	s.Streak.Count = 0
	s.Streak.RecoveryMode = true
	s.EngagementState = policy.StateStreakFractured
	s.Obligation = obligationPtr(e.table, policy.StateStreakFractured)
	return s
}

func (e *Engine) applyPartnerLinked(st *state.UserState) *state.UserState {
	s := st.Clone()
	s.Social.WitnessCount++
	s.Social.SocialCapital += linkCapital
	s.Social.AuthorityLevel = s.Social.SocialCapital / 10
	return s
}

func (e *Engine) applySendSupport(st *state.UserState) *state.UserState {
	s := st.Clone()
	// Support converts to a freeze token only for a user who needs it
	// right now, and never past the cap.
	if s.EngagementState == policy.StateAtRisk && s.Streak.FreezeTokens < e.freezeTokenCap {
		s.Streak.FreezeTokens++
	}
	return s
}

func (e *Engine) applyWitness(st *state.UserState) *state.UserState {
	s := st.Clone()
	// A vouch only counts for a day that is already done.
	if s.Today.Status != state.TodayCompleted {
		return s
	}
	s.Engagement.Score += witnessBonus
	s.Engagement.Tier = state.TierFor(s.Engagement.Score)
	s.Social.WitnessCount++
	s.Social.SocialCapital++
	s.Social.AuthorityLevel = s.Social.SocialCapital / 10
	return s
}

func (e *Engine) applyAppeal(st *state.UserState) *state.UserState {
	s := st.Clone()
	s.Social.SocialCapital -= appealCost
	if s.Social.SocialCapital < 0 {
		s.Social.SocialCapital = 0
	}
	s.Social.AuthorityLevel = s.Social.SocialCapital / 10
	s.Lifecycle.TotalActions++
	return s
}

func (e *Engine) applyPardon(st *state.UserState, ev *event.Event) *state.UserState {
	s := st.Clone()
	if ev.Payload.PardonGranted != nil {
		s.Streak.Count = ev.Payload.PardonGranted.RestoredCount
		s.Streak.Active = s.Streak.Count > 0
		if s.Streak.Count > s.Streak.Longest {
			s.Streak.Longest = s.Streak.Count
		}
	}
	s.RecoveryProgress = 0
	e.transition(s, policy.Outcome{
		Pardoned:    true,
		StreakCount: s.Streak.Count,
	})
	return s
}

func (e *Engine) applyResurrection(st *state.UserState) *state.UserState {
	s := st.Clone()
	s.Streak.Active = false
	s.Streak.Count = 0
	s.Streak.RecoveryMode = false
	s.ConsecutiveMisses = 0
	s.Recovery.MissedDayCount = 0
	s.RecoveryProgress = 0
	e.transition(s, policy.Outcome{Resurrected: true})
	return s
}

// transition recomputes the retention state through the policy table and
// maintains the due-process evidence and obligation fields.
func (e *Engine) transition(s *state.UserState, out policy.Outcome) {
	next := e.table.Next(s.EngagementState, out)
	if next == s.EngagementState {
		return
	}

	s.EngagementState = next
	s.Obligation = obligationPtr(e.table, next)
	s.Streak.RecoveryMode = next == policy.StateRecovering || next == policy.StateStreakFractured

	switch next {
	case policy.StateAtRisk:
		// The warning itself is the due-process evidence.
		s.WarnedAtRisk = true
	case policy.StateEngaged, policy.StateMomentum:
		s.WarnedAtRisk = false
		s.RecoveryProgress = 0
	}
}

func obligationPtr(t *policy.Table, st policy.State) *policy.Obligation {
	if o, ok := t.ObligationFor(st); ok {
		return &o
	}
	return nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
