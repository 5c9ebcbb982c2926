// Package project rebuilds snapshots from the ledger and audits the
// cache against them.
//
// The projector is a pure fold: it replays a user's chain through the
// same transition function the live engine uses, so a replayed snapshot
// and a cached one can only diverge if the cache drifted or the chain
// was tampered with. The agent turns that property into a verdict.
package project
