// Package ledger is the append-only system of record.
//
// Every user has an independent hash chain of blocks, each wrapping one
// canonical event. Blocks are only ever appended; there is no update or
// delete path, and verification recomputes every hash from the stored
// canonical bytes. The state cache and denial receipts live in the same
// SQLite file but carry no authority: the chain is the truth.
package ledger
