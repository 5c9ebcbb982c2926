package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/cadence/internal/event"
)

// Block is one link of a user chain: an event plus its integrity fields.
type Block struct {
	UserID    string `json:"user_id"`
	Index     int64  `json:"index"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
	Timestamp string `json:"timestamp"`

	Event     *event.Event `json:"event"`
	Canonical []byte       `json:"-"`
}

// synthetic types are engine-internal and must never be persisted.
// Replay re-synthesizes them deterministically from the chain.
func synthetic(t event.Type) bool {
	return t == event.TypeMissedDay || t == event.TypeStreakFractured
}

// Append validates the event, links it to the user's chain tail, and
// writes the new block. The chain invariants are enforced here:
// block 0 is the genesis event with the zero-hash sentinel, every later
// block carries the previous block's hash, and indexes are gapless.
//
// Appending an event whose ID is already on the chain returns the
// existing block unchanged.
func (s *Store) Append(ctx context.Context, ev *event.Event) (*Block, error) {
	if err := ev.Validate(); err != nil {
		return nil, &IntegrityError{UserID: ev.UserID, Reason: err.Error()}
	}
	if synthetic(ev.Type) {
		return nil, &IntegrityError{
			UserID: ev.UserID,
			Reason: fmt.Sprintf("type %q is synthesized, not persisted", ev.Type),
		}
	}
	if !ev.Meta.RightsChecked {
		return nil, &IntegrityError{UserID: ev.UserID, Reason: "event skipped the rights gate"}
	}

	canonical, err := event.CanonicalJSON(ev)
	if err != nil {
		return nil, &IntegrityError{UserID: ev.UserID, Reason: err.Error()}
	}

	lock := s.userLock(ev.UserID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &WriteError{UserID: ev.UserID, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback()

	var idx int64
	prevHash := event.ZeroHash

	var tailIdx int64
	var tailHash string
	err = tx.QueryRowContext(ctx, `
		SELECT idx, hash FROM blocks
		WHERE user_id = ? ORDER BY idx DESC LIMIT 1
	`, ev.UserID).Scan(&tailIdx, &tailHash)
	switch {
	case err == sql.ErrNoRows:
		if ev.Type != event.TypeGenesis {
			return nil, &IntegrityError{
				UserID: ev.UserID,
				Reason: fmt.Sprintf("chain must open with genesis, got %q", ev.Type),
			}
		}
	case err != nil:
		return nil, &WriteError{UserID: ev.UserID, Err: fmt.Errorf("read tail: %w", err)}
	default:
		if ev.Type == event.TypeGenesis {
			return nil, &IntegrityError{UserID: ev.UserID, Reason: "chain already has a genesis"}
		}
		idx = tailIdx + 1
		prevHash = tailHash
	}

	ts := ev.Timestamp.UTC().Format(time.RFC3339Nano)
	hash := event.BlockHash(idx, prevHash, ts, canonical)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO blocks
		(user_id, idx, prev_hash, hash, event_id, event_type, timestamp, event)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.UserID, idx, prevHash, hash, ev.ID, string(ev.Type), ts, string(canonical))
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			// Same event ID already on the chain: idempotent re-append.
			if b, berr := s.blockByEventID(ctx, tx, ev.UserID, ev.ID); berr == nil && b != nil {
				return b, nil
			}
		}
		return nil, &WriteError{UserID: ev.UserID, Err: fmt.Errorf("insert block: %w", err)}
	}

	if err := tx.Commit(); err != nil {
		return nil, &WriteError{UserID: ev.UserID, Err: fmt.Errorf("commit: %w", err)}
	}

	return &Block{
		UserID:    ev.UserID,
		Index:     idx,
		PrevHash:  prevHash,
		Hash:      hash,
		Timestamp: ts,
		Event:     ev,
		Canonical: canonical,
	}, nil
}

func (s *Store) blockByEventID(ctx context.Context, tx *sql.Tx, userID, eventID string) (*Block, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT user_id, idx, prev_hash, hash, timestamp, event
		FROM blocks WHERE user_id = ? AND event_id = ?
	`, userID, eventID)
	return scanBlock(row)
}
