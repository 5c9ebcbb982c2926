// Package state defines the derived user snapshot.
//
// A UserState is a CACHE of the fold over the user's ledger history. It
// carries no authority of its own: it may be discarded and rebuilt from
// the ledger at any time without information loss, and the verification
// agent does exactly that to detect drift.
package state

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cadence/internal/policy"
)

// TodayStatus is the status of the current day sandbox.
type TodayStatus string

const (
	TodayPending   TodayStatus = "PENDING"
	TodayCompleted TodayStatus = "COMPLETED"
	TodayRested    TodayStatus = "RESTED"
)

// Tier buckets the engagement score. Lower tiers decay faster on a miss.
type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// Streak tracks consecutive qualifying days.
type Streak struct {
	Active       bool `json:"active"`
	Count        int  `json:"count"`
	Longest      int  `json:"longest"`
	FreezeTokens int  `json:"freeze_tokens"`
	RecoveryMode bool `json:"recovery_mode"`
}

// Engagement tracks the score-based view of retention risk.
type Engagement struct {
	Score     int  `json:"score"`
	Tier      Tier `json:"tier"`
	DecayRisk int  `json:"decay_risk"` // saturates at [0,100]
}

// Today is the per-day sandbox, reset on every day rollover.
type Today struct {
	Day               Day         `json:"day"`
	Status            TodayStatus `json:"status"`
	PrimaryActionDone bool        `json:"primary_action_done"`
	ActionLog         []string    `json:"action_log,omitempty"`
}

// Lifecycle holds monotonic counters over the whole history.
type Lifecycle struct {
	DaysActive   int `json:"days_active"`
	DaysMissed   int `json:"days_missed"`
	TotalActions int `json:"total_actions"`
}

// Social tracks vouching and standing among partners.
type Social struct {
	SocialCapital  int `json:"social_capital"`
	WitnessCount   int `json:"witness_count"`
	AuthorityLevel int `json:"authority_level"`
}

// Recovery describes the salvage window while a user is at risk.
type Recovery struct {
	IsSalvageable        bool `json:"is_salvageable"`
	WindowRemainingHours int  `json:"window_remaining_hours"`
	MissedDayCount       int  `json:"missed_day_count"`
}

// UserState is the full derived snapshot for one user.
type UserState struct {
	UserID          string       `json:"user_id"`
	Streak          Streak       `json:"streak"`
	Engagement      Engagement   `json:"engagement"`
	Today           Today        `json:"today"`
	Lifecycle       Lifecycle    `json:"lifecycle"`
	EngagementState policy.State `json:"engagement_state"`
	Social          Social       `json:"social"`
	Recovery        Recovery     `json:"recovery"`

	// Obligation owed in the current retention state, if any.
	Obligation *policy.Obligation `json:"obligation,omitempty"`

	// LastEvaluatedDay is the most recent day the engine reconciled.
	// Empty until the genesis event is applied.
	LastEvaluatedDay Day `json:"last_evaluated_day"`

	// WarnedAtRisk records that the user has passed through a warned
	// AT_RISK state since last reaching ENGAGED. Due-process evidence:
	// a fracture without it is illegal.
	WarnedAtRisk bool `json:"warned_at_risk"`

	// ConsecutiveMisses counts misses since the last qualifying day.
	ConsecutiveMisses int `json:"consecutive_misses"`

	// RecoveryProgress counts consecutive qualifying days while in
	// RECOVERING; reaching the policy target promotes to ENGAGED.
	RecoveryProgress int `json:"recovery_progress"`
}

// Genesis returns the empty snapshot a user ledger starts from.
func Genesis(userID string) *UserState {
	return &UserState{
		UserID:          userID,
		EngagementState: policy.StateOnboarding,
		Engagement:      Engagement{Tier: TierBronze},
		Today:           Today{Status: TodayPending},
	}
}

// Clone returns a deep copy. The engine never mutates its input state;
// every transition operates on a clone.
func (s *UserState) Clone() *UserState {
	c := *s
	if s.Today.ActionLog != nil {
		c.Today.ActionLog = make([]string, len(s.Today.ActionLog))
		copy(c.Today.ActionLog, s.Today.ActionLog)
	}
	if s.Obligation != nil {
		o := *s.Obligation
		c.Obligation = &o
	}
	return &c
}

// TierFor buckets a score into a tier.
func TierFor(score int) Tier {
	switch {
	case score >= 500:
		return TierPlatinum
	case score >= 250:
		return TierGold
	case score >= 100:
		return TierSilver
	default:
		return TierBronze
	}
}

// DecayFor is the per-miss score decay for a tier. Lower tiers decay
// faster.
func DecayFor(t Tier) int {
	switch t {
	case TierPlatinum:
		return 4
	case TierGold:
		return 6
	case TierSilver:
		return 10
	default:
		return 15
	}
}

// CriticalFields returns the audited field subset in a fixed order.
// The verification agent compares exactly these between the cached and
// the replayed snapshot.
func (s *UserState) CriticalFields() []Field {
	return []Field{
		{"streak.count", s.Streak.Count},
		{"streak.active", s.Streak.Active},
		{"engagement_state", string(s.EngagementState)},
		{"social.social_capital", s.Social.SocialCapital},
		{"social.authority_level", s.Social.AuthorityLevel},
	}
}

// Field is one audited (path, value) pair.
type Field struct {
	Path  string
	Value any
}

// Marshal serializes the snapshot for the cache store.
func (s *UserState) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// Unmarshal parses a cached snapshot.
func Unmarshal(data []byte) (*UserState, error) {
	var s UserState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &s, nil
}
