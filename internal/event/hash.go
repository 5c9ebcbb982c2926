package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// Domain prefixes for content-addressed hashing.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "cadence/event/v1"
	DomainBlock = "cadence/block/v1"
)

// ZeroHash is the prev_hash sentinel for block 0 of every user chain.
var ZeroHash = strings.Repeat("0", 64)

// CanonicalJSON serializes an event to RFC 8785 canonical JSON.
// This is the ONLY serialization used for ledger storage and hashing;
// verification recomputes hashes from these exact bytes.
func CanonicalJSON(e *Event) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("canonical json: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical json: transform: %w", err)
	}
	return canonical, nil
}

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null byte prevents
// domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BlockHash computes the hash of a ledger block over
// index, prev hash, timestamp, and the event's canonical bytes, with
// null separators between the fields.
func BlockHash(index int64, prevHash, timestamp string, canonicalEvent []byte) string {
	h := sha256.New()
	h.Write([]byte(DomainBlock))
	h.Write([]byte{0x00})
	fmt.Fprintf(h, "%d", index)
	h.Write([]byte{0x00})
	h.Write([]byte(prevHash))
	h.Write([]byte{0x00})
	h.Write([]byte(timestamp))
	h.Write([]byte{0x00})
	h.Write(canonicalEvent)
	return hex.EncodeToString(h.Sum(nil))
}
