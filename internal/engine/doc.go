// Package engine is the deterministic core: a pure transition function
// over (state, event) pairs and a lazy day-walk that reconciles elapsed
// calendar time on demand.
//
// Nothing here performs I/O. The service owns persistence; replay and
// live evaluation both call into this package, which is what makes a
// cached snapshot and a full-chain replay provably comparable.
package engine
