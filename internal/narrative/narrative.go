// Package narrative renders the human-readable explanation attached to
// every event. Rendering is deterministic: the same event against the
// same snapshot always produces the same text and the same id, so
// replayed history explains itself identically to the live run.
package narrative

import (
	"fmt"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/cadence/internal/event"
	"github.com/roach88/cadence/internal/state"
)

const hashDomain = "cadence/narrative/v1"

// Narrative is one rendered explanation.
type Narrative struct {
	ID     string `json:"id"`
	RuleID string `json:"rule_id"`
	Text   string `json:"text"`
}

// rule ids are versioned so a wording change produces new ids without
// invalidating old ones.
const (
	RuleGenesis      = "narrate/genesis/v1"
	RuleCheckIn      = "narrate/check_in/v1"
	RuleGroupCheckIn = "narrate/group_check_in/v1"
	RuleRestDay      = "narrate/rest_day/v1"
	RulePartnerLink  = "narrate/partner_linked/v1"
	RuleSendSupport  = "narrate/send_support/v1"
	RuleWitness      = "narrate/witness_workout/v1"
	RuleAppeal       = "narrate/appeal_submitted/v1"
	RulePardon       = "narrate/pardon_granted/v1"
	RuleResurrection = "narrate/resurrection/v1"
)

// Renderer produces narratives for events about to be appended.
type Renderer struct{}

// NewRenderer creates a Renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render builds the narrative for an event against the snapshot it will
// apply to. st is the PRE-application state.
func (r *Renderer) Render(ev *event.Event, st *state.UserState) Narrative {
	ruleID, text := r.compose(ev, st)
	return finish(ruleID, text)
}

func (r *Renderer) compose(ev *event.Event, st *state.UserState) (string, string) {
	switch ev.Type {
	case event.TypeGenesis:
		return RuleGenesis, fmt.Sprintf("Ledger opened on %s. Everything starts at zero.", ev.EffectiveDay())

	case event.TypeCheckIn:
		next := 1
		if st.Streak.Active {
			next = st.Streak.Count + 1
		}
		if next == 1 {
			return RuleCheckIn, "Checked in. A new streak begins at day 1."
		}
		return RuleCheckIn, fmt.Sprintf("Checked in. Streak extends to day %d.", next)

	case event.TypeGroupCheckIn:
		groupID := ""
		if ev.Payload.GroupCheckIn != nil {
			groupID = ev.Payload.GroupCheckIn.GroupID
		}
		return RuleGroupCheckIn, fmt.Sprintf("Checked in with group %s. The day counts, together.", groupID)

	case event.TypeRestDay:
		return RuleRestDay, fmt.Sprintf("Rest day taken. The streak holds at day %d.", st.Streak.Count)

	case event.TypePartnerLinked:
		partnerID := ""
		if ev.Payload.PartnerLinked != nil {
			partnerID = ev.Payload.PartnerLinked.PartnerID
		}
		return RulePartnerLink, fmt.Sprintf("Linked with partner %s. Accountability runs both ways.", partnerID)

	case event.TypeSendSupport:
		from := ""
		if ev.Payload.SendSupport != nil {
			from = ev.Payload.SendSupport.FromUserID
		}
		return RuleSendSupport, fmt.Sprintf("Support received from %s.", from)

	case event.TypeWitnessWorkout:
		witness := ""
		if ev.Payload.WitnessWorkout != nil {
			witness = ev.Payload.WitnessWorkout.WitnessID
		}
		return RuleWitness, fmt.Sprintf("Partner %s vouched for today's work.", witness)

	case event.TypeAppealSubmitted:
		return RuleAppeal, "Appeal submitted. The record will be re-examined."

	case event.TypePardonGranted:
		restored := 0
		if ev.Payload.PardonGranted != nil {
			restored = ev.Payload.PardonGranted.RestoredCount
		}
		return RulePardon, fmt.Sprintf("Pardon granted. Streak restored to day %d.", restored)

	case event.TypeResurrection:
		return RuleResurrection, "Back from dormancy. The ledger remembers; the streak starts over."

	default:
		return "narrate/unknown/v1", fmt.Sprintf("Event %s recorded.", ev.Type)
	}
}

// finish normalizes the text to NFC and derives the content-addressed
// narrative id.
func finish(ruleID, text string) Narrative {
	normalized := norm.NFC.String(text)
	hash := event.HashWithDomain(hashDomain, []byte(ruleID+"\x00"+normalized))
	return Narrative{
		ID:     ruleID + ":" + hash[:16],
		RuleID: ruleID,
		Text:   normalized,
	}
}
