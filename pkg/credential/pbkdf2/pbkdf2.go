// Package pbkdf2 provides a PBKDF2-HMAC-SHA256 credential strategy.
//
// Payloads are self-describing so that records survive parameter changes:
//
//	<iterations>$<base64 salt>$<base64 key>
package pbkdf2

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	pbkdf2lib "golang.org/x/crypto/pbkdf2"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultIterations = 310000
	DefaultSaltLength = 16
	DefaultKeyLength  = 32
)

// Upper bounds accepted in configuration and in stored payloads. A payload
// beyond them does not match.
const (
	MaxIterations = 10_000_000
	MaxKeyLength  = 1024
)

var b64 = base64.RawStdEncoding

// Config holds the PBKDF2 parameters used for new payloads.
type Config struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

func (c *Config) applyDefaults() {
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.SaltLength == 0 {
		c.SaltLength = DefaultSaltLength
	}
	if c.KeyLength == 0 {
		c.KeyLength = DefaultKeyLength
	}
}

// Strategy derives keys with PBKDF2 and compares them in constant time.
type Strategy struct {
	config Config
}

// New creates a PBKDF2 strategy.
func New(cfg Config) (*Strategy, error) {
	cfg.applyDefaults()
	if cfg.Iterations < 1 || cfg.SaltLength < 8 || cfg.KeyLength < 16 {
		return nil, fmt.Errorf("pbkdf2 parameters too weak: iterations=%d salt_length=%d key_length=%d",
			cfg.Iterations, cfg.SaltLength, cfg.KeyLength)
	}
	if cfg.Iterations > MaxIterations || cfg.SaltLength > MaxKeyLength || cfg.KeyLength > MaxKeyLength {
		return nil, fmt.Errorf("pbkdf2 parameters exceed limits: iterations <= %d, salt and key <= %d bytes",
			MaxIterations, MaxKeyLength)
	}
	return &Strategy{config: cfg}, nil
}

// Encode derives a key from raw with a fresh random salt.
func (s *Strategy) Encode(raw string) (string, error) {
	salt := make([]byte, s.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := pbkdf2lib.Key([]byte(raw), salt, s.config.Iterations, s.config.KeyLength, sha256.New)
	return strconv.Itoa(s.config.Iterations) + "$" + b64.EncodeToString(salt) + "$" + b64.EncodeToString(key), nil
}

// Matches re-derives the key with the payload's salt and iteration count.
func (s *Strategy) Matches(raw, payload string) bool {
	p, err := parse(payload)
	if err != nil {
		return false
	}
	key := pbkdf2lib.Key([]byte(raw), p.salt, p.iterations, len(p.key), sha256.New)
	return subtle.ConstantTimeCompare(key, p.key) == 1
}

// NeedsUpgrade reports whether payload used fewer iterations than configured.
func (s *Strategy) NeedsUpgrade(payload string) bool {
	p, err := parse(payload)
	if err != nil {
		return true
	}
	return p.iterations < s.config.Iterations
}

type parsed struct {
	iterations int
	salt       []byte
	key        []byte
}

func parse(payload string) (parsed, error) {
	parts := strings.Split(payload, "$")
	if len(parts) != 3 {
		return parsed{}, fmt.Errorf("malformed pbkdf2 payload")
	}
	iter, err := strconv.Atoi(parts[0])
	if err != nil || iter < 1 || iter > MaxIterations {
		return parsed{}, fmt.Errorf("malformed pbkdf2 iteration count")
	}
	salt, err := b64.DecodeString(parts[1])
	if err != nil || len(salt) > MaxKeyLength {
		return parsed{}, fmt.Errorf("malformed pbkdf2 salt")
	}
	key, err := b64.DecodeString(parts[2])
	if err != nil || len(key) == 0 || len(key) > MaxKeyLength {
		return parsed{}, fmt.Errorf("malformed pbkdf2 key")
	}
	return parsed{iterations: iter, salt: salt, key: key}, nil
}
