package admission

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/gatehouse/pkg/auth"
	"github.com/rhuss/gatehouse/pkg/cors"
	"github.com/rhuss/gatehouse/pkg/debug"
	"github.com/rhuss/gatehouse/pkg/observability"
	"github.com/rhuss/gatehouse/pkg/transport"
)

// Outcome labels a decision in logs and metrics.
type Outcome string

const (
	OutcomePreflight       Outcome = "preflight"
	OutcomeCORSDenied      Outcome = "cors_denied"
	OutcomePublic          Outcome = "public"
	OutcomeAuthenticated   Outcome = "authenticated"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeError           Outcome = "error"
)

// Response is a complete response the filter answers with instead of
// passing the request on.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Write sends the response.
func (resp *Response) Write(w http.ResponseWriter) {
	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = append(h[k], vs...)
	}
	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

// Result is the outcome of admitting one request.
type Result struct {
	// Respond is set when the request must not continue.
	Respond *Response

	// Continue is true when the request may proceed downstream.
	Continue bool

	// Header holds the CORS headers to add to the downstream response.
	Header http.Header

	// Identity is the authenticated caller, nil on public routes.
	Identity *auth.Identity

	// Rule is the matched rule; zero when no rule matched.
	Rule Rule

	Outcome Outcome
}

// Filter composes the cross-origin policy, the rule set and the
// authentication check. It holds no mutable state and is safe for
// concurrent use.
type Filter struct {
	policy  *cors.Policy
	rules   *RuleSet
	check   auth.Authenticator
	limiter auth.RateLimiter
	logger  *slog.Logger
}

// Option configures a Filter.
type Option func(*Filter)

// WithRateLimiter applies limiter to authenticated requests.
func WithRateLimiter(l auth.RateLimiter) Option {
	return func(f *Filter) { f.limiter = l }
}

// WithLogger sets the logger for rejected requests.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) { f.logger = l }
}

// New builds a Filter. A nil policy disables cross-origin handling:
// requests pass the CORS stage untouched and no CORS headers are added.
// check is required because unmatched requests always need authentication.
func New(policy *cors.Policy, rules *RuleSet, check auth.Authenticator, opts ...Option) (*Filter, error) {
	if check == nil {
		return nil, fmt.Errorf("%w: an authentication check is required", ErrInvalidConfig)
	}
	if rules == nil {
		rules = &RuleSet{}
	}
	f := &Filter{policy: policy, rules: rules, check: check, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Admit evaluates r. Order: cross-origin policy, preflight short-circuit,
// rule lookup, then authentication and rate limiting when the matched rule
// (or the default) requires it.
func (f *Filter) Admit(r *http.Request) Result {
	res := f.admit(r)
	observability.AdmissionDecisionsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (f *Filter) admit(r *http.Request) Result {
	corsHeader := http.Header{}
	if f.policy != nil {
		d := f.policy.EvaluateRequest(r)
		corsHeader = d.Header
		if !d.Allow {
			f.logger.Warn("cross-origin request rejected",
				"request_id", transport.RequestIDFromContext(r.Context()),
				"origin", r.Header.Get(cors.HeaderOrigin),
				"path", r.URL.Path,
				"reason", string(d.Reason),
			)
			return Result{
				Respond: errorResponse(d.Header, http.StatusForbidden, transport.ErrorTypeForbidden, "cross-origin request denied"),
				Outcome: OutcomeCORSDenied,
			}
		}
		if d.Preflight {
			return Result{
				Respond: &Response{StatusCode: http.StatusOK, Header: d.Header},
				Outcome: OutcomePreflight,
			}
		}
	}

	rule, matched := f.rules.Match(r.Method, r.URL.Path)
	if matched && !rule.RequiresAuth {
		debug.Log("admission", "public route", "path", r.URL.Path, "rule", rule.String())
		return Result{Continue: true, Header: corsHeader, Rule: rule, Outcome: OutcomePublic}
	}

	result := f.check.Authenticate(r.Context(), r)
	if result.Decision != auth.Yes || result.Identity == nil {
		f.logger.Warn("authentication failed",
			"request_id", transport.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"decision", result.Decision.String(),
			"error", result.Err,
		)
		resp := errorResponse(corsHeader, http.StatusUnauthorized, transport.ErrorTypeUnauthenticated, "authentication required")
		if ch, ok := f.check.(auth.Challenger); ok {
			if v := ch.Challenge(); v != "" {
				resp.Header.Set("WWW-Authenticate", v)
			}
		}
		return Result{Respond: resp, Rule: rule, Outcome: OutcomeUnauthenticated}
	}

	if result.Identity.Subject == "" {
		f.logger.Error("authenticator returned identity with empty subject")
		return Result{
			Respond: errorResponse(corsHeader, http.StatusInternalServerError, transport.ErrorTypeServerError, "internal authentication error"),
			Rule:    rule,
			Outcome: OutcomeError,
		}
	}

	if f.limiter != nil {
		if err := f.limiter.Allow(r.Context(), result.Identity); err != nil {
			tier := auth.Tier(result.Identity)
			f.logger.Warn("rate limit exceeded",
				"subject", result.Identity.Subject,
				"tier", tier,
			)
			observability.RateLimitRejectedTotal.WithLabelValues(tier).Inc()
			resp := errorResponse(corsHeader, http.StatusTooManyRequests, transport.ErrorTypeTooManyRequests, "rate limit exceeded")
			if errors.Is(err, auth.ErrTooManyRequests) {
				resp.Header.Set("Retry-After", "60")
			}
			return Result{Respond: resp, Identity: result.Identity, Rule: rule, Outcome: OutcomeRateLimited}
		}
	}

	debug.Log("admission", "authenticated",
		"subject", result.Identity.Subject,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
	return Result{
		Continue: true,
		Header:   corsHeader,
		Identity: result.Identity,
		Rule:     rule,
		Outcome:  OutcomeAuthenticated,
	}
}

// errorResponse builds a JSON error response carrying base headers. For
// CORS denials base holds only Vary, never Access-Control-* headers.
func errorResponse(base http.Header, status int, errType transport.ErrorType, message string) *Response {
	h := base.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	return &Response{StatusCode: status, Header: h, Body: transport.ErrorBody(errType, message)}
}
