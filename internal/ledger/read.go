package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/cadence/internal/event"
)

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*Block, error) {
	var b Block
	var canonical string
	if err := row.Scan(&b.UserID, &b.Index, &b.PrevHash, &b.Hash, &b.Timestamp, &canonical); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	b.Canonical = []byte(canonical)

	var ev event.Event
	if err := json.Unmarshal(b.Canonical, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	b.Event = &ev
	return &b, nil
}

// GetHistory returns the user's full chain in index order. An empty
// chain returns an empty slice, not an error.
func (s *Store) GetHistory(ctx context.Context, userID string) ([]*Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, idx, prev_hash, hash, timestamp, event
		FROM blocks WHERE user_id = ? ORDER BY idx ASC
	`, userID)
	if err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	defer rows.Close()

	var blocks []*Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, &ReadError{UserID: userID, Err: err}
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	return blocks, nil
}

// Tail returns the last block of the user's chain, or nil if the chain
// is empty.
func (s *Store) Tail(ctx context.Context, userID string) (*Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, idx, prev_hash, hash, timestamp, event
		FROM blocks WHERE user_id = ? ORDER BY idx DESC LIMIT 1
	`, userID)
	b, err := scanBlock(row)
	if err != nil {
		return nil, &ReadError{UserID: userID, Err: err}
	}
	return b, nil
}

// Users returns every user id with at least one block.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM blocks ORDER BY user_id`)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, &ReadError{Err: err}
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, &ReadError{Err: err}
	}
	return users, nil
}
