package credential

import (
	"errors"
	"strings"
)

// Strategy compares a raw credential with a scheme-specific payload.
// Each strategy owns its equality semantics; hash-based strategies must
// compare in constant time.
type Strategy interface {
	Matches(raw, payload string) bool
}

// Encoder is implemented by strategies that can produce new payloads.
// A match-only strategy (legacy formats) does not implement it.
type Encoder interface {
	Encode(raw string) (string, error)
}

// Upgrader is implemented by strategies that can tell when a payload was
// produced with weaker parameters than the ones currently configured.
type Upgrader interface {
	NeedsUpgrade(payload string) bool
}

// Verifier is the read side consumed by authentication checks.
type Verifier interface {
	Verify(raw, stored string) bool
}

// Record delimiters.
const (
	prefix = "{"
	suffix = "}"
)

// Sentinel errors.
var (
	ErrInvalidConfig = errors.New("invalid credential configuration")
	ErrUnknownScheme = errors.New("unknown credential scheme")
	ErrMismatch      = errors.New("credential mismatch")
	ErrNotEncodable  = errors.New("credential scheme cannot encode")
)

// Format builds a stored record from a scheme identifier and payload.
func Format(id, payload string) string {
	return prefix + id + suffix + payload
}

// Parse extracts the scheme identifier from a stored record. When the
// record carries no usable tag (no leading "{", no closing "}", or an empty
// identifier), ok is false and payload is the record unchanged.
func Parse(stored string) (id, payload string, ok bool) {
	if !strings.HasPrefix(stored, prefix) {
		return "", stored, false
	}
	end := strings.Index(stored, suffix)
	if end < 0 {
		return "", stored, false
	}
	id = stored[len(prefix):end]
	if !validID(id) {
		return "", stored, false
	}
	return id, stored[end+len(suffix):], true
}

// validID reports whether id can appear between the record delimiters.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, prefix+suffix)
}
