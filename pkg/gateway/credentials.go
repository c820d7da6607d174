package gateway

import (
	"fmt"

	"github.com/rhuss/gatehouse/pkg/config"
	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/credential/builtin"
)

// NewCredentials builds the delegating verifier from the scheme registry.
func NewCredentials(cfg config.CredentialsConfig) (*credential.Delegating, error) {
	opts := credential.Options{Schemes: make([]credential.Scheme, 0, len(cfg.Schemes))}
	for _, s := range cfg.Schemes {
		strategy, err := builtin.New(s.Kind, builtin.Params{
			Cost:       s.Cost,
			Iterations: s.Iterations,
			SaltLength: s.SaltLength,
			KeyLength:  s.KeyLength,
			MemoryKiB:  s.MemoryKiB,
			Time:       s.Time,
			Threads:    s.Threads,
			N:          s.N,
			R:          s.R,
			P:          s.P,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: scheme %q: %w", credential.ErrInvalidConfig, s.ID, err)
		}
		opts.Schemes = append(opts.Schemes, credential.Scheme{ID: s.ID, Strategy: strategy})
		if s.DefaultEncode {
			if opts.DefaultEncode != "" {
				return nil, fmt.Errorf("%w: schemes %q and %q are both default_encode", credential.ErrInvalidConfig, opts.DefaultEncode, s.ID)
			}
			opts.DefaultEncode = s.ID
		}
		if s.DefaultMatch {
			if opts.DefaultMatch != "" {
				return nil, fmt.Errorf("%w: schemes %q and %q are both default_match", credential.ErrInvalidConfig, opts.DefaultMatch, s.ID)
			}
			opts.DefaultMatch = s.ID
		}
	}
	return credential.New(opts)
}
