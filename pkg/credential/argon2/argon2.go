// Package argon2 provides an argon2id credential strategy. Payloads use the
// PHC string format:
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<threads>$<base64 salt>$<base64 key>
package argon2

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	argon2lib "golang.org/x/crypto/argon2"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultMemoryKiB  = 64 * 1024
	DefaultTime       = 3
	DefaultThreads    = 1
	DefaultSaltLength = 16
	DefaultKeyLength  = 32
)

// Upper bounds accepted in configuration and in stored payloads. A payload
// beyond them does not match.
const (
	MaxMemoryKiB = 1 << 20 // 1 GiB
	MaxTime      = 64
	MaxKeyLength = 1024
)

var b64 = base64.RawStdEncoding

// Config holds the argon2id cost parameters.
type Config struct {
	MemoryKiB  uint32
	Time       uint32
	Threads    uint8
	SaltLength int
	KeyLength  uint32
}

func (c *Config) applyDefaults() {
	if c.MemoryKiB == 0 {
		c.MemoryKiB = DefaultMemoryKiB
	}
	if c.Time == 0 {
		c.Time = DefaultTime
	}
	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.SaltLength == 0 {
		c.SaltLength = DefaultSaltLength
	}
	if c.KeyLength == 0 {
		c.KeyLength = DefaultKeyLength
	}
}

// Strategy derives keys with argon2id.
type Strategy struct {
	config Config
}

// New creates an argon2id strategy.
func New(cfg Config) (*Strategy, error) {
	cfg.applyDefaults()
	if cfg.MemoryKiB < 8*uint32(cfg.Threads) {
		return nil, fmt.Errorf("argon2 memory_kib must be at least 8*threads, got %d", cfg.MemoryKiB)
	}
	if cfg.SaltLength < 8 || cfg.KeyLength < 16 {
		return nil, fmt.Errorf("argon2 salt_length must be >= 8 and key_length >= 16")
	}
	if err := checkBounds(cfg.MemoryKiB, cfg.Time, cfg.SaltLength, int(cfg.KeyLength)); err != nil {
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
	key := argon2lib.IDKey([]byte(raw), salt, c.Time, c.MemoryKiB, c.Threads, c.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s", argon2lib.Version,
		c.MemoryKiB, c.Time, c.Threads, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Matches re-derives the key with the payload's parameters.
func (s *Strategy) Matches(raw, payload string) bool {
	p, err := parse(payload)
	if err != nil {
		return false
	}
	key := argon2lib.IDKey([]byte(raw), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1
}

// NeedsUpgrade reports whether payload used weaker parameters than configured.
func (s *Strategy) NeedsUpgrade(payload string) bool {
	p, err := parse(payload)
	if err != nil {
		return true
	}
	return p.memory < s.config.MemoryKiB || p.time < s.config.Time
}

type parsed struct {
	memory, time uint32
	threads      uint8
	salt, key    []byte
}

func parse(payload string) (parsed, error) {
	// "", "argon2id", "v=19", params, salt, key
	parts := strings.Split(payload, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return parsed{}, fmt.Errorf("malformed argon2 payload")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2lib.Version {
		return parsed{}, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	var out parsed
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &out.memory, &out.time, &out.threads); err != nil {
		return parsed{}, fmt.Errorf("parsing argon2 parameters: %w", err)
	}
	if out.time == 0 || out.threads == 0 || out.memory < 8*uint32(out.threads) {
		return parsed{}, fmt.Errorf("invalid argon2 parameters")
	}
	var err error
	if out.salt, err = b64.DecodeString(parts[4]); err != nil {
		return parsed{}, fmt.Errorf("decoding argon2 salt: %w", err)
	}
	if out.key, err = b64.DecodeString(parts[5]); err != nil || len(out.key) == 0 {
		return parsed{}, fmt.Errorf("malformed argon2 key")
	}
	if err := checkBounds(out.memory, out.time, len(out.salt), len(out.key)); err != nil {
		return parsed{}, err
	}
	return out, nil
}

func checkBounds(memoryKiB, time uint32, saltLen, keyLen int) error {
	if memoryKiB > MaxMemoryKiB || time > MaxTime {
		return fmt.Errorf("argon2 cost m=%d t=%d exceeds limits", memoryKiB, time)
	}
	if saltLen > MaxKeyLength || keyLen > MaxKeyLength {
		return fmt.Errorf("argon2 salt or key longer than %d bytes", MaxKeyLength)
	}
	return nil
}
