package ledger

import (
	"context"
	"time"

	"github.com/roach88/cadence/internal/rights"
)

// SaveReceipt persists the proof artifact of a refused action.
func (s *Store) SaveReceipt(ctx context.Context, r rights.Receipt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO denial_receipts
		(user_id, denied_at, action, code, details, content_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.UserID, r.DeniedAt.UTC().Format(time.RFC3339Nano),
		r.Action, string(r.Code), r.Details, r.ContentHash)
	if err != nil {
		return &WriteError{UserID: r.UserID, Err: err}
	}
	return nil
}

// ReceiptsFor returns a user's denial receipts, newest first.
func (s *Store) ReceiptsFor(ctx context.Context, userID string) ([]rights.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, denied_at, action, code, details, content_hash
		FROM denial_receipts WHERE user_id = ? ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	defer rows.Close()

	var receipts []rights.Receipt
	for rows.Next() {
		var r rights.Receipt
		var deniedAt string
		var code string
		if err := rows.Scan(&r.UserID, &deniedAt, &r.Action, &code, &r.Details, &r.ContentHash); err != nil {
			return nil, &ReadError{UserID: userID, Err: err}
		}
		t, err := time.Parse(time.RFC3339Nano, deniedAt)
		if err != nil {
			return nil, &ReadError{UserID: userID, Err: err}
		}
		r.DeniedAt = t
		r.Code = rights.Code(code)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	return receipts, nil
}
