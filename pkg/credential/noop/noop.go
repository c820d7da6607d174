// Package noop provides a plaintext credential strategy. Payloads are the
// raw credential itself. It exists for development and for migrating legacy
// stores; it offers no protection for stored credentials.
package noop

import "crypto/subtle"

// Strategy stores credentials verbatim.
type Strategy struct{}

// New returns the plaintext strategy.
func New() *Strategy { return &Strategy{} }

// Encode returns raw unchanged.
func (s *Strategy) Encode(raw string) (string, error) {
	return raw, nil
}

// Matches compares byte-for-byte. The comparison does not short-circuit on
// the first differing byte, but it does reveal a length mismatch.
func (s *Strategy) Matches(raw, payload string) bool {
	return subtle.ConstantTimeCompare([]byte(raw), []byte(payload)) == 1
}
