// Package scrypt provides an scrypt credential strategy.
//
// Payload layout:
//
//	$scrypt$n=<N>,r=<r>,p=<p>$<base64 salt>$<base64 key>
package scrypt

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	scryptlib "golang.org/x/crypto/scrypt"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultN          = 1 << 15
	DefaultR          = 8
	DefaultP          = 1
	DefaultSaltLength = 16
	DefaultKeyLength  = 32
)

// Upper bounds accepted in configuration and in stored payloads. A payload
// beyond them does not match.
const (
	MaxN         = 1 << 20
	MaxR         = 32
	MaxP         = 16
	MaxMemory    = 1 << 30 // bytes, 128*N*r
	MaxKeyLength = 1024
)

var b64 = base64.RawStdEncoding

// Config holds the scrypt cost parameters.
type Config struct {
	N          int
	R          int
	P          int
	SaltLength int
	KeyLength  int
}

func (c *Config) applyDefaults() {
	if c.N == 0 {
		c.N = DefaultN
	}
	if c.R == 0 {
		c.R = DefaultR
	}
	if c.P == 0 {
		c.P = DefaultP
	}
	if c.SaltLength == 0 {
		c.SaltLength = DefaultSaltLength
	}
	if c.KeyLength == 0 {
		c.KeyLength = DefaultKeyLength
	}
}

// Strategy derives keys with scrypt.
type Strategy struct {
	config Config
}

// New creates an scrypt strategy. N must be a power of two greater than 1.
func New(cfg Config) (*Strategy, error) {
	cfg.applyDefaults()
	if cfg.N <= 1 || cfg.N&(cfg.N-1) != 0 {
		return nil, fmt.Errorf("scrypt N must be a power of two > 1, got %d", cfg.N)
	}
	if cfg.R < 1 || cfg.P < 1 {
		return nil, fmt.Errorf("scrypt r and p must be positive, got r=%d p=%d", cfg.R, cfg.P)
	}
	if cfg.SaltLength < 8 || cfg.KeyLength < 16 {
		return nil, fmt.Errorf("scrypt salt_length must be >= 8 and key_length >= 16")
	}
	if err := checkBounds(cfg.N, cfg.R, cfg.P, cfg.SaltLength, cfg.KeyLength); err != nil {
		return nil, err
	}
	return &Strategy{config: cfg}, nil
}

// Encode derives a key from raw with a fresh salt.
func (s *Strategy) Encode(raw string) (string, error) {
	salt := make([]byte, s.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	c := s.config
	key, err := scryptlib.Key([]byte(raw), salt, c.N, c.R, c.P, c.KeyLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("$scrypt$n=%d,r=%d,p=%d$%s$%s", c.N, c.R, c.P,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Matches re-derives the key with the payload's parameters.
func (s *Strategy) Matches(raw, payload string) bool {
	p, err := parse(payload)
	if err != nil {
		return false
	}
	key, err := scryptlib.Key([]byte(raw), p.salt, p.n, p.r, p.p, len(p.key))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, p.key) == 1
}

// NeedsUpgrade reports whether payload used a smaller cost than configured.
func (s *Strategy) NeedsUpgrade(payload string) bool {
	p, err := parse(payload)
	if err != nil {
		return true
	}
	return p.n < s.config.N || p.r < s.config.R || p.p < s.config.P
}

type parsed struct {
	n, r, p   int
	salt, key []byte
}

func parse(payload string) (parsed, error) {
	// "", "scrypt", params, salt, key
	parts := strings.Split(payload, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return parsed{}, fmt.Errorf("malformed scrypt payload")
	}
	var out parsed
	if _, err := fmt.Sscanf(parts[2], "n=%d,r=%d,p=%d", &out.n, &out.r, &out.p); err != nil {
		return parsed{}, fmt.Errorf("parsing scrypt parameters: %w", err)
	}
	var err error
	if out.salt, err = b64.DecodeString(parts[3]); err != nil {
		return parsed{}, fmt.Errorf("decoding scrypt salt: %w", err)
	}
	if out.key, err = b64.DecodeString(parts[4]); err != nil || len(out.key) == 0 {
		return parsed{}, fmt.Errorf("malformed scrypt key")
	}
	if out.n <= 1 || out.n&(out.n-1) != 0 || out.r < 1 || out.p < 1 {
		return parsed{}, fmt.Errorf("invalid scrypt parameters")
	}
	if err := checkBounds(out.n, out.r, out.p, len(out.salt), len(out.key)); err != nil {
		return parsed{}, err
	}
	return out, nil
}

func checkBounds(n, r, p, saltLen, keyLen int) error {
	if n > MaxN || r > MaxR || p > MaxP || 128*n*r > MaxMemory {
		return fmt.Errorf("scrypt cost n=%d r=%d p=%d exceeds limits", n, r, p)
	}
	if saltLen > MaxKeyLength || keyLen > MaxKeyLength {
		return fmt.Errorf("scrypt salt or key longer than %d bytes", MaxKeyLength)
	}
	return nil
}
