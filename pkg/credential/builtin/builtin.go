// Package builtin constructs the bundled credential strategies by kind name.
package builtin

import (
	"fmt"
	"sort"

	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/credential/argon2"
	"github.com/rhuss/gatehouse/pkg/credential/bcrypt"
	"github.com/rhuss/gatehouse/pkg/credential/noop"
	"github.com/rhuss/gatehouse/pkg/credential/pbkdf2"
	"github.com/rhuss/gatehouse/pkg/credential/scrypt"
)

// Params carries the tunables of every bundled strategy. Fields that do not
// apply to a kind are ignored; zero values select that strategy's defaults.
type Params struct {
	Cost       int
	Iterations int
	SaltLength int
	KeyLength  int
	MemoryKiB  int
	Time       int
	Threads    int
	N          int
	R          int
	P          int
}

type factory func(Params) (credential.Strategy, error)

var factories = map[string]factory{
	"noop": func(Params) (credential.Strategy, error) {
		return noop.New(), nil
	},
	"bcrypt": func(p Params) (credential.Strategy, error) {
		return bcrypt.New(bcrypt.Config{Cost: p.Cost})
	},
	"pbkdf2": func(p Params) (credential.Strategy, error) {
		return pbkdf2.New(pbkdf2.Config{
			Iterations: p.Iterations,
			SaltLength: p.SaltLength,
			KeyLength:  p.KeyLength,
		})
	},
	"scrypt": func(p Params) (credential.Strategy, error) {
		return scrypt.New(scrypt.Config{
			N:          p.N,
			R:          p.R,
			P:          p.P,
			SaltLength: p.SaltLength,
			KeyLength:  p.KeyLength,
		})
	},
	"argon2": func(p Params) (credential.Strategy, error) {
		if p.Threads < 0 || p.Threads > 255 {
			return nil, fmt.Errorf("argon2 threads must be between 1 and 255, got %d", p.Threads)
		}
		if p.MemoryKiB < 0 || p.Time < 0 || p.KeyLength < 0 {
			return nil, fmt.Errorf("argon2 parameters must not be negative")
		}
		return argon2.New(argon2.Config{
			MemoryKiB:  uint32(p.MemoryKiB),
			Time:       uint32(p.Time),
			Threads:    uint8(p.Threads),
			SaltLength: p.SaltLength,
			KeyLength:  uint32(p.KeyLength),
		})
	},
}

// New builds the strategy registered under kind.
func New(kind string, p Params) (credential.Strategy, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy kind %q (known: %v)", kind, Kinds())
	}
	s, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return s, nil
}

// Kinds lists the bundled strategy kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
