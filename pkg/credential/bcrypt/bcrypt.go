// Package bcrypt provides a bcrypt credential strategy backed by
// golang.org/x/crypto/bcrypt. Payloads are standard modular-crypt strings
// ("$2a$10$...").
package bcrypt

import (
	"fmt"

	bcryptlib "golang.org/x/crypto/bcrypt"
)

// DefaultCost is used when Config.Cost is zero.
const DefaultCost = bcryptlib.DefaultCost

// MaxCost is the highest cost accepted in configuration and in stored
// hashes. A hash above it does not match.
const MaxCost = 16

// MaxInputLength is the longest input bcrypt accepts. Encode fails for
// longer inputs instead of truncating them.
const MaxInputLength = 72

// Config holds the bcrypt parameters.
type Config struct {
	// Cost is the log2 work factor. Default: 10.
	Cost int
}

// Strategy hashes credentials with bcrypt.
type Strategy struct {
	cost int
}

// New creates a bcrypt strategy. It rejects costs outside the range
// accepted by bcrypt.
func New(cfg Config) (*Strategy, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcryptlib.MinCost || cost > MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcryptlib.MinCost, MaxCost, cost)
	}
	return &Strategy{cost: cost}, nil
}

// Encode hashes raw with a fresh salt. Inputs longer than MaxInputLength
// bytes are rejected with bcrypt.ErrPasswordTooLong.
func (s *Strategy) Encode(raw string) (string, error) {
	if len(raw) > MaxInputLength {
		return "", bcryptlib.ErrPasswordTooLong
	}
	h, err := bcryptlib.GenerateFromPassword([]byte(raw), s.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Matches recomputes the hash with the payload's salt and cost.
func (s *Strategy) Matches(raw, payload string) bool {
	cost, err := bcryptlib.Cost([]byte(payload))
	if err != nil || cost > MaxCost {
		return false
	}
	return bcryptlib.CompareHashAndPassword([]byte(payload), []byte(raw)) == nil
}

// NeedsUpgrade reports whether payload was hashed with a lower cost than
// configured, or is not a bcrypt hash at all.
func (s *Strategy) NeedsUpgrade(payload string) bool {
	cost, err := bcryptlib.Cost([]byte(payload))
	if err != nil {
		return true
	}
	return cost < s.cost
}
