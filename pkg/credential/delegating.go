package credential

import (
	"fmt"
	"sort"

	"github.com/rhuss/gatehouse/pkg/debug"
	"github.com/rhuss/gatehouse/pkg/observability"
)

// Scheme binds a scheme identifier to its strategy.
type Scheme struct {
	ID       string
	Strategy Strategy
}

// Options configures a Delegating verifier.
type Options struct {
	// Schemes are the registered strategies. Identifiers must be unique.
	Schemes []Scheme

	// DefaultEncode names the scheme used by Encode. Its strategy must
	// implement Encoder.
	DefaultEncode string

	// DefaultMatch names the scheme used for records without a scheme tag.
	DefaultMatch string
}

// Delegating dispatches verification to the strategy named by a record's
// scheme tag. It is immutable after New returns.
type Delegating struct {
	strategies map[string]Strategy
	encodeID   string
	encoder    Encoder
	matchID    string
}

// New builds a Delegating verifier. It returns an error wrapping
// ErrInvalidConfig when no scheme is registered, an identifier is empty,
// contains a brace or is duplicated, or a default scheme is missing.
func New(opts Options) (*Delegating, error) {
	if len(opts.Schemes) == 0 {
		return nil, fmt.Errorf("%w: no schemes registered", ErrInvalidConfig)
	}

	strategies := make(map[string]Strategy, len(opts.Schemes))
	for _, s := range opts.Schemes {
		if !validID(s.ID) {
			return nil, fmt.Errorf("%w: invalid scheme id %q", ErrInvalidConfig, s.ID)
		}
		if s.Strategy == nil {
			return nil, fmt.Errorf("%w: scheme %q has no strategy", ErrInvalidConfig, s.ID)
		}
		if _, dup := strategies[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate scheme id %q", ErrInvalidConfig, s.ID)
		}
		strategies[s.ID] = s.Strategy
	}

	if opts.DefaultMatch == "" {
		return nil, fmt.Errorf("%w: no default match scheme designated", ErrInvalidConfig)
	}
	if _, ok := strategies[opts.DefaultMatch]; !ok {
		return nil, fmt.Errorf("%w: default match scheme %q is not registered", ErrInvalidConfig, opts.DefaultMatch)
	}

	if opts.DefaultEncode == "" {
		return nil, fmt.Errorf("%w: no default encode scheme designated", ErrInvalidConfig)
	}
	s, ok := strategies[opts.DefaultEncode]
	if !ok {
		return nil, fmt.Errorf("%w: default encode scheme %q is not registered", ErrInvalidConfig, opts.DefaultEncode)
	}
	enc, ok := s.(Encoder)
	if !ok {
		return nil, fmt.Errorf("%w: default encode scheme %q is match-only", ErrInvalidConfig, opts.DefaultEncode)
	}

	return &Delegating{
		strategies: strategies,
		encodeID:   opts.DefaultEncode,
		encoder:    enc,
		matchID:    opts.DefaultMatch,
	}, nil
}

// Verify reports whether raw matches the stored record.
func (d *Delegating) Verify(raw, stored string) bool {
	id, err := d.check(raw, stored)
	outcome := "match"
	switch err {
	case nil:
	case ErrUnknownScheme:
		outcome = "unknown_scheme"
		id = "unknown"
	default:
		outcome = "mismatch"
	}
	observability.CredentialVerificationsTotal.WithLabelValues(id, outcome).Inc()
	if err != nil {
		debug.Log("credential", "verification failed", "scheme", id, "reason", err)
	}
	return err == nil
}

// check runs parse, dispatch and delegate, returning the scheme used.
func (d *Delegating) check(raw, stored string) (string, error) {
	id, payload, ok := Parse(stored)
	if !ok {
		id, payload = d.matchID, stored
	}

	s, ok := d.strategies[id]
	if !ok {
		return id, ErrUnknownScheme
	}
	if !s.Matches(raw, payload) {
		return id, ErrMismatch
	}
	return id, nil
}

// Encode produces a record for raw with the default encode scheme.
func (d *Delegating) Encode(raw string) (string, error) {
	payload, err := d.encoder.Encode(raw)
	if err != nil {
		return "", fmt.Errorf("encoding with %q: %w", d.encodeID, err)
	}
	return Format(d.encodeID, payload), nil
}

// EncodeWith produces a record for raw with the named scheme.
func (d *Delegating) EncodeWith(id, raw string) (string, error) {
	s, ok := d.strategies[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, id)
	}
	enc, ok := s.(Encoder)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotEncodable, id)
	}
	payload, err := enc.Encode(raw)
	if err != nil {
		return "", fmt.Errorf("encoding with %q: %w", id, err)
	}
	return Format(id, payload), nil
}

// NeedsUpgrade reports whether a stored record should be re-encoded after a
// successful verification: it is untagged, tagged with a scheme other than
// the default encode scheme, or the default strategy considers its
// parameters outdated.
func (d *Delegating) NeedsUpgrade(stored string) bool {
	id, payload, ok := Parse(stored)
	if !ok || id != d.encodeID {
		return true
	}
	if u, ok := d.strategies[id].(Upgrader); ok {
		return u.NeedsUpgrade(payload)
	}
	return false
}

// DefaultEncodeScheme returns the identifier used by Encode.
func (d *Delegating) DefaultEncodeScheme() string { return d.encodeID }

// DefaultMatchScheme returns the identifier used for untagged records.
func (d *Delegating) DefaultMatchScheme() string { return d.matchID }

// Schemes returns the registered identifiers in sorted order.
func (d *Delegating) Schemes() []string {
	ids := make([]string, 0, len(d.strategies))
	for id := range d.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
