package ledger

import (
	"context"

	"github.com/roach88/cadence/internal/event"
)

// VerifyChain walks the user's full chain and recomputes every hash
// from the stored canonical bytes. It checks, per block:
//
//   - index continuity (0, 1, 2, ... with no holes)
//   - block 0 opens with genesis and the zero-hash sentinel
//   - prev_hash equals the previous block's stored hash
//   - the stored hash equals a fresh recomputation
//
// The first mismatch is returned as a CorruptionError; nothing is
// repaired. An empty chain verifies trivially.
func (s *Store) VerifyChain(ctx context.Context, userID string) error {
	blocks, err := s.GetHistory(ctx, userID)
	if err != nil {
		return err
	}

	prevHash := event.ZeroHash
	for i, b := range blocks {
		if b.Index != int64(i) {
			return &CorruptionError{
				UserID: userID,
				Index:  b.Index,
				Reason: "index sequence has a hole",
			}
		}
		if i == 0 && b.Event.Type != event.TypeGenesis {
			return &CorruptionError{
				UserID: userID,
				Index:  b.Index,
				Reason: "chain does not open with genesis",
			}
		}
		if b.PrevHash != prevHash {
			return &CorruptionError{
				UserID: userID,
				Index:  b.Index,
				Reason: "prev_hash does not match previous block",
			}
		}
		if got := event.BlockHash(b.Index, b.PrevHash, b.Timestamp, b.Canonical); got != b.Hash {
			return &CorruptionError{
				UserID: userID,
				Index:  b.Index,
				Reason: "stored hash does not match recomputation",
			}
		}
		prevHash = b.Hash
	}
	return nil
}
