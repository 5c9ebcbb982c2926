package rights

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Receipt is the proof artifact emitted when the gate refuses an action.
// Every refusal is receipted; there are no silent drops.
type Receipt struct {
	UserID      string    `json:"user_id"`
	DeniedAt    time.Time `json:"denied_at"`
	Action      string    `json:"action"`
	Code        Code      `json:"code"`
	Details     string    `json:"details"`
	ContentHash string    `json:"content_hash"`
}

// NewReceipt builds a receipt for a governance refusal.
func NewReceipt(now time.Time, userID, action string, gerr *GovernanceError) Receipt {
	details := gerr.Explanation()
	if gerr.Details != "" {
		details = details + ": " + gerr.Details
	}

	hashInput := fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s",
		userID, now.UTC().Format(time.RFC3339Nano), action, gerr.Code, details)
	h := sha256.Sum256([]byte(hashInput))

	return Receipt{
		UserID:      userID,
		DeniedAt:    now.UTC(),
		Action:      action,
		Code:        gerr.Code,
		Details:     details,
		ContentHash: hex.EncodeToString(h[:]),
	}
}
