package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/gatehouse/pkg/admission"
	"github.com/rhuss/gatehouse/pkg/auth"
	"github.com/rhuss/gatehouse/pkg/auth/basic"
	"github.com/rhuss/gatehouse/pkg/config"
	"github.com/rhuss/gatehouse/pkg/cors"
	"github.com/rhuss/gatehouse/pkg/credential"
	"github.com/rhuss/gatehouse/pkg/observability"
	"github.com/rhuss/gatehouse/pkg/transport"
)

// Gateway is the assembled request pipeline.
type Gateway struct {
	cfg      *config.Config
	logger   *slog.Logger
	policy   *cors.Policy
	rules    *admission.RuleSet
	verifier *credential.Delegating
	chain    *auth.AuthChain
	filter   *admission.Filter
	router   chi.Router
	ready    func() bool
	users    basic.UserStore
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithUserStore sets the user store behind Basic authentication, replacing
// the users listed in the configuration.
func WithUserStore(s basic.UserStore) Option {
	return func(g *Gateway) { g.users = s }
}

// WithReadiness sets the readiness probe consulted by /readyz.
func WithReadiness(fn func() bool) Option {
	return func(g *Gateway) { g.ready = fn }
}

// New builds the gateway from cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	g := &Gateway{cfg: cfg, logger: slog.Default(), ready: func() bool { return true }}
	for _, opt := range opts {
		opt(g)
	}

	if cfg.CORS.Enabled() {
		policy, err := cors.New(cors.Config{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		})
		if err != nil {
			return nil, err
		}
		for _, w := range policy.Warnings() {
			g.logger.Warn("cors policy", "warning", w)
		}
		g.policy = policy
	}

	rules := make([]admission.Rule, 0, len(cfg.Admission.Rules))
	for _, rc := range cfg.Admission.Rules {
		rules = append(rules, admission.Rule{
			Pattern:      rc.Pattern,
			Methods:      rc.Methods,
			RequiresAuth: rc.RequiresAuth,
		})
	}
	rs, err := admission.NewRuleSet(rules)
	if err != nil {
		return nil, err
	}
	g.rules = rs

	g.verifier, err = NewCredentials(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	g.chain, err = NewAuthChain(cfg.Auth, g.verifier, g.users)
	if err != nil {
		return nil, err
	}

	filterOpts := []admission.Option{admission.WithLogger(g.logger)}
	if l := NewLimiter(cfg.Auth.RateLimit); l != nil {
		filterOpts = append(filterOpts, admission.WithRateLimiter(l))
	}
	g.filter, err = admission.New(g.policy, g.rules, g.chain, filterOpts...)
	if err != nil {
		return nil, err
	}

	var upstream http.Handler = http.HandlerFunc(notFound)
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return nil, fmt.Errorf("upstream url: %w", err)
		}
		upstream = newProxy(target, g.policy != nil, g.logger)
	}

	g.router = g.routes(upstream)
	g.logPosture()
	return g, nil
}

func (g *Gateway) routes(upstream http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(
		transport.RequestID(),
		transport.Logging(g.logger),
		transport.Recovery(g.logger),
	)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !g.ready() {
			transport.WriteErrorResponse(w, &transport.APIError{
				Type:    transport.ErrorTypeServerError,
				Message: "not ready",
			}, http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if m := g.cfg.Observability.Metrics; m.Enabled {
		r.Method(http.MethodGet, m.Path, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.MetricsMiddleware, admission.Middleware(g.filter))
		r.Handle("/*", upstream)
	})
	return r
}

func (g *Gateway) logPosture() {
	g.logger.Info("gateway configured",
		"cors", g.policy != nil,
		"rules", len(g.rules.Rules()),
		"auth_methods", g.cfg.Auth.Methods,
		"schemes", g.verifier.Schemes(),
		"default_match", g.verifier.DefaultMatchScheme(),
		"upstream", g.cfg.Upstream.URL,
	)
	if g.cfg.OpensEverything() {
		g.logger.Warn("admission rules permit every path without authentication")
	}
	if g.cfg.AnonymousAccess() {
		g.logger.Warn("authentication accepts anonymous callers")
	}
}

// Handler returns the root HTTP handler.
func (g *Gateway) Handler() http.Handler { return g.router }

// Filter returns the admission filter.
func (g *Gateway) Filter() *admission.Filter { return g.filter }

// Credentials returns the credential verifier.
func (g *Gateway) Credentials() *credential.Delegating { return g.verifier }
