package event

import (
	"fmt"
	"time"
)

// Type identifies the kind of behavioral fact an event records.
// The enumeration is closed: Validate rejects anything not listed here.
type Type string

const (
	// TypeGenesis is the first event of every user ledger.
	TypeGenesis Type = "genesis"

	// TypeCheckIn records a completed primary action for a day.
	TypeCheckIn Type = "check_in"

	// TypeGroupCheckIn records a check-in performed together with a group.
	// Counts exactly like a check-in for streak purposes.
	TypeGroupCheckIn Type = "group_check_in"

	// TypeRestDay marks a day as deliberately rested. The day counts as
	// handled (no miss) but does not extend the streak.
	TypeRestDay Type = "rest_day"

	// TypeMissedDay is synthesized by the daily engine for each calendar
	// day that elapsed with no action. It is never submitted by a caller
	// and never persisted to the ledger; replay re-synthesizes it.
	TypeMissedDay Type = "missed_day"

	// TypeStreakFractured records that a streak broke after the user ran
	// out of grace. Synthesized alongside missed days.
	TypeStreakFractured Type = "streak_fractured"

	// TypePartnerLinked records a pairwise accountability link.
	TypePartnerLinked Type = "partner_linked"

	// TypeSendSupport records a partner sending support. Applied to the
	// RECIPIENT's ledger; may grant a freeze token if they are at risk.
	TypeSendSupport Type = "send_support"

	// TypeWitnessWorkout records a partner vouching for today's action.
	TypeWitnessWorkout Type = "witness_workout"

	// TypeAppealSubmitted records a formal appeal against a fracture.
	TypeAppealSubmitted Type = "appeal_submitted"

	// TypePardonGranted restores a streak recorded in the payload and
	// moves the user into recovery.
	TypePardonGranted Type = "pardon_granted"

	// TypeResurrection is the only legal exit from the DORMANT state.
	TypeResurrection Type = "resurrection"
)

// ActorType distinguishes who caused an event.
type ActorType string

const (
	ActorUser    ActorType = "user"
	ActorPartner ActorType = "partner"
	ActorSystem  ActorType = "system"
)

// Actor identifies the causal agent of an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Meta carries the governance fields attached to every event.
type Meta struct {
	// RuleIDs lists the narrative/policy rules that produced this event.
	RuleIDs []string `json:"rule_ids,omitempty"`

	// NarrativeID references the human-readable explanation for this
	// event. REQUIRED: an event without one is rejected before any write.
	NarrativeID string `json:"narrative_id"`

	// RightsChecked is set once the rights gate has approved the event's
	// proposed transition. The ledger refuses events that skipped the gate.
	RightsChecked bool `json:"rights_checked"`
}

// Event is the immutable behavioral atom.
// Integrity fields (prev_hash, hash) live on the ledger block that wraps
// the event, not on the event itself.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Actor     Actor     `json:"actor"`
	Payload   Payload   `json:"payload"`
	Meta      Meta      `json:"meta"`
}

// Payload is a tagged union: exactly one variant must be non-nil, and it
// must be the variant matching the event's Type.
type Payload struct {
	Genesis         *GenesisPayload         `json:"genesis,omitempty"`
	CheckIn         *CheckInPayload         `json:"check_in,omitempty"`
	GroupCheckIn    *GroupCheckInPayload    `json:"group_check_in,omitempty"`
	RestDay         *RestDayPayload         `json:"rest_day,omitempty"`
	MissedDay       *MissedDayPayload       `json:"missed_day,omitempty"`
	StreakFractured *StreakFracturedPayload `json:"streak_fractured,omitempty"`
	PartnerLinked   *PartnerLinkedPayload   `json:"partner_linked,omitempty"`
	SendSupport     *SendSupportPayload     `json:"send_support,omitempty"`
	WitnessWorkout  *WitnessWorkoutPayload  `json:"witness_workout,omitempty"`
	AppealSubmitted *AppealSubmittedPayload `json:"appeal_submitted,omitempty"`
	PardonGranted   *PardonGrantedPayload   `json:"pardon_granted,omitempty"`
	Resurrection    *ResurrectionPayload    `json:"resurrection,omitempty"`
}

// GenesisPayload opens a user ledger.
type GenesisPayload struct {
	Day string `json:"day"` // yyyy-mm-dd
}

// CheckInPayload records a completed primary action.
type CheckInPayload struct {
	Day      string `json:"day"`
	ProofURL string `json:"proof_url,omitempty"` // object-storage URL, never bytes
	Note     string `json:"note,omitempty"`
}

// GroupCheckInPayload records a check-in with a group.
type GroupCheckInPayload struct {
	Day     string `json:"day"`
	GroupID string `json:"group_id"`
}

// RestDayPayload marks a deliberate rest.
type RestDayPayload struct {
	Day string `json:"day"`
}

// MissedDayPayload is the implicit fact synthesized for an elapsed day.
type MissedDayPayload struct {
	Day        string `json:"day"`
	FreezeUsed bool   `json:"freeze_used"`
}

// StreakFracturedPayload records a break and the streak it destroyed.
type StreakFracturedPayload struct {
	Day        string `json:"day"`
	PriorCount int    `json:"prior_count"`
}

// PartnerLinkedPayload records a pairwise link.
type PartnerLinkedPayload struct {
	PartnerID string `json:"partner_id"`
}

// SendSupportPayload records support sent by a partner.
type SendSupportPayload struct {
	FromUserID string `json:"from_user_id"`
}

// WitnessWorkoutPayload records a partner vouching for today.
type WitnessWorkoutPayload struct {
	WitnessID string `json:"witness_id"`
	Day       string `json:"day"`
}

// AppealSubmittedPayload records a formal appeal.
type AppealSubmittedPayload struct {
	Day    string `json:"day"`
	Reason string `json:"reason"`
}

// PardonGrantedPayload restores a previously fractured streak.
type PardonGrantedPayload struct {
	RestoredCount int    `json:"restored_count"`
	GrantedBy     string `json:"granted_by"`
}

// ResurrectionPayload exits DORMANT.
type ResurrectionPayload struct {
	Day string `json:"day"`
}

// validTypes is the closed set accepted by Validate.
var validTypes = map[Type]bool{
	TypeGenesis:         true,
	TypeCheckIn:         true,
	TypeGroupCheckIn:    true,
	TypeRestDay:         true,
	TypeMissedDay:       true,
	TypeStreakFractured: true,
	TypePartnerLinked:   true,
	TypeSendSupport:     true,
	TypeWitnessWorkout:  true,
	TypeAppealSubmitted: true,
	TypePardonGranted:   true,
	TypeResurrection:    true,
}

// Validate checks structural invariants before an event may reach the
// ledger: known type, matching payload variant, exactly one variant set,
// non-empty user, actor, and narrative id.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event: missing id")
	}
	if e.UserID == "" {
		return fmt.Errorf("event: missing user_id")
	}
	if !validTypes[e.Type] {
		return fmt.Errorf("event: unknown type %q", e.Type)
	}
	if e.Actor.ID == "" || e.Actor.Type == "" {
		return fmt.Errorf("event: missing actor")
	}
	if e.Meta.NarrativeID == "" {
		return fmt.Errorf("event: missing narrative id")
	}
	if err := e.Payload.validateFor(e.Type); err != nil {
		return fmt.Errorf("event: %w", err)
	}
	return nil
}

// validateFor checks that exactly the variant matching t is populated.
func (p *Payload) validateFor(t Type) error {
	set := map[Type]bool{
		TypeGenesis:         p.Genesis != nil,
		TypeCheckIn:         p.CheckIn != nil,
		TypeGroupCheckIn:    p.GroupCheckIn != nil,
		TypeRestDay:         p.RestDay != nil,
		TypeMissedDay:       p.MissedDay != nil,
		TypeStreakFractured: p.StreakFractured != nil,
		TypePartnerLinked:   p.PartnerLinked != nil,
		TypeSendSupport:     p.SendSupport != nil,
		TypeWitnessWorkout:  p.WitnessWorkout != nil,
		TypeAppealSubmitted: p.AppealSubmitted != nil,
		TypePardonGranted:   p.PardonGranted != nil,
		TypeResurrection:    p.Resurrection != nil,
	}

	count := 0
	for _, ok := range set {
		if ok {
			count++
		}
	}
	if count == 0 {
		return fmt.Errorf("payload: no variant set for type %q", t)
	}
	if count > 1 {
		return fmt.Errorf("payload: %d variants set, want exactly 1", count)
	}
	if !set[t] {
		return fmt.Errorf("payload: variant does not match type %q", t)
	}
	return nil
}

// EffectiveDay returns the calendar day (yyyy-mm-dd) this event belongs
// to: the payload's day where the variant carries one, otherwise the UTC
// date of the event timestamp. Social events (partner link, support,
// pardon) have no day of their own and land on the timestamp date.
func (e *Event) EffectiveDay() string {
	switch {
	case e.Payload.Genesis != nil:
		return e.Payload.Genesis.Day
	case e.Payload.CheckIn != nil:
		return e.Payload.CheckIn.Day
	case e.Payload.GroupCheckIn != nil:
		return e.Payload.GroupCheckIn.Day
	case e.Payload.RestDay != nil:
		return e.Payload.RestDay.Day
	case e.Payload.MissedDay != nil:
		return e.Payload.MissedDay.Day
	case e.Payload.StreakFractured != nil:
		return e.Payload.StreakFractured.Day
	case e.Payload.WitnessWorkout != nil:
		return e.Payload.WitnessWorkout.Day
	case e.Payload.AppealSubmitted != nil:
		return e.Payload.AppealSubmitted.Day
	case e.Payload.Resurrection != nil:
		return e.Payload.Resurrection.Day
	default:
		return e.Timestamp.UTC().Format("2006-01-02")
	}
}
