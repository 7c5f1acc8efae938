package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainEvent = "clocktree/event/v1"
	DomainTrace = "clocktree/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the id an event is stored under. Within a session the
// seq alone is unique; kind and clock are included so a corrupted row cannot
// silently alias another.
func EventID(session string, seq int64, kind EventKind, clock int64) (string, error) {
	obj := IRObject{
		"session": IRString(session),
		"seq":     IRInt(seq),
		"kind":    IRString(kind),
		"clock":   IRInt(clock),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(session string, seq int64, kind EventKind, clock int64) string {
	id, err := EventID(session, seq, kind, clock)
	if err != nil {
		panic(err)
	}
	return id
}

// TraceHash fingerprints a whole trace. Two runs of the same scenario on
// virtual time produce the same hash.
func TraceHash(events []Event) (string, error) {
	canonical, err := MarshalCanonical(events)
	if err != nil {
		return "", fmt.Errorf("TraceHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrace, canonical), nil
}
