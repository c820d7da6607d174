// Package cors evaluates requests against a static cross-origin policy.
//
// A Policy is built once from a Config, validated eagerly, and never
// mutated afterwards; Evaluate is a pure function of its inputs and the
// policy, so a single Policy serves any number of concurrent requests.
package cors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Wildcard allows any origin, method or header.
const Wildcard = "*"

// ErrInvalidConfig is wrapped by every error returned from New.
var ErrInvalidConfig = errors.New("invalid CORS configuration")

// Config describes an origin policy.
type Config struct {
	// AllowedOrigins lists exact origins ("https://app.example.com"), or the
	// single wildcard "*". The wildcard cannot be combined with
	// AllowCredentials.
	AllowedOrigins []string

	// AllowedMethods lists case-sensitive method names, or "*".
	// Default: GET, HEAD, POST.
	AllowedMethods []string

	// AllowedHeaders lists request header names, or "*". They are
	// advertised verbatim in preflight responses.
	AllowedHeaders []string

	// ExposedHeaders lists response headers readable by client scripts.
	ExposedHeaders []string

	// AllowCredentials allows cookies and other browser-managed credentials.
	AllowCredentials bool

	// MaxAge is how long, in seconds, browsers may cache a preflight result.
	MaxAge int
}

// Policy is a validated, immutable origin policy.
type Policy struct {
	origins     map[string]bool
	anyOrigin   bool
	methods     map[string]bool
	anyMethod   bool
	headers     map[string]bool // lower-cased
	anyHeader   bool
	credentials bool

	// Precomputed response header values.
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string

	warnings []string
}

// New validates cfg and builds a Policy.
func New(cfg Config) (*Policy, error) {
	var errs []error
	p := &Policy{
		origins:     make(map[string]bool),
		methods:     make(map[string]bool),
		headers:     make(map[string]bool),
		credentials: cfg.AllowCredentials,
	}

	if len(cfg.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("at least one allowed origin is required"))
	}
	for _, o := range cfg.AllowedOrigins {
		if o == Wildcard {
			p.anyOrigin = true
			continue
		}
		if err := validateOrigin(o); err != nil {
			errs = append(errs, err)
			continue
		}
		p.origins[o] = true
	}
	if p.anyOrigin && cfg.AllowCredentials {
		errs = append(errs, errors.New("wildcard origin cannot be combined with allow_credentials"))
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "HEAD", "POST"}
	}
	for _, m := range methods {
		switch {
		case m == Wildcard:
			p.anyMethod = true
		case !isToken(m):
			errs = append(errs, fmt.Errorf("invalid method %q", m))
		default:
			p.methods[m] = true
		}
	}
	p.allowMethods = strings.Join(methods, ", ")

	for _, h := range cfg.AllowedHeaders {
		switch {
		case h == Wildcard:
			p.anyHeader = true
		case !httpguts.ValidHeaderFieldName(h):
			errs = append(errs, fmt.Errorf("invalid allowed header %q", h))
		default:
			p.headers[strings.ToLower(h)] = true
		}
	}
	p.allowHeaders = strings.Join(cfg.AllowedHeaders, ", ")

	for _, h := range cfg.ExposedHeaders {
		if h != Wildcard && !httpguts.ValidHeaderFieldName(h) {
			errs = append(errs, fmt.Errorf("invalid exposed header %q", h))
		}
	}
	p.exposeHeaders = strings.Join(cfg.ExposedHeaders, ", ")

	if cfg.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("max_age must be >= 0, got %d", cfg.MaxAge))
	}
	p.maxAge = strconv.Itoa(cfg.MaxAge)

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// Browsers treat "*" literally in credentialed responses.
	if p.anyHeader && p.credentials {
		p.warnings = append(p.warnings, "allowed_headers wildcard is treated as a literal header name by browsers when credentials are allowed")
	}
	if p.anyMethod && p.credentials {
		p.warnings = append(p.warnings, "allowed_methods wildcard is echoed per request because credentials are allowed")
	}
	for _, w := range p.warnings {
		slog.Warn("CORS configuration warning", "warning", w)
	}

	return p, nil
}

// Warnings returns non-fatal configuration findings.
func (p *Policy) Warnings() []string {
	return append([]string(nil), p.warnings...)
}

// AllowsCredentials reports whether credentialed requests are allowed.
func (p *Policy) AllowsCredentials() bool { return p.credentials }

// validateOrigin accepts serialized origins: scheme and host, no path,
// query, fragment or user info.
func validateOrigin(o string) error {
	u, err := url.Parse(o)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid origin %q", o)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return fmt.Errorf("origin %q must not contain a path, query, fragment or user info", o)
	}
	return nil
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}
