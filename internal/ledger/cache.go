package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/roach88/cadence/internal/state"
)

// SaveState upserts the cached snapshot for a user.
func (s *Store) SaveState(ctx context.Context, st *state.UserState) error {
	data, err := st.Marshal()
	if err != nil {
		return &WriteError{UserID: st.UserID, Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO state_cache (user_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, st.UserID, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return &WriteError{UserID: st.UserID, Err: err}
	}
	return nil
}

// LoadState returns the cached snapshot, or (nil, nil) when no cache
// entry exists.
func (s *Store) LoadState(ctx context.Context, userID string) (*state.UserState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM state_cache WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	st, err := state.Unmarshal([]byte(data))
	if err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	return st, nil
}

// DeleteState drops the cached snapshot. Used before a destructive
// rebuild; the next read falls back to replay.
func (s *Store) DeleteState(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM state_cache WHERE user_id = ?`, userID); err != nil {
		return &WriteError{UserID: userID, Err: err}
	}
	return nil
}
