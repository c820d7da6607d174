package gateway

import (
	"errors"
	"fmt"

	"github.com/rhuss/gatehouse/pkg/auth"
	"github.com/rhuss/gatehouse/pkg/auth/apikey"
	"github.com/rhuss/gatehouse/pkg/auth/basic"
	"github.com/rhuss/gatehouse/pkg/auth/jwt"
	"github.com/rhuss/gatehouse/pkg/auth/noop"
	"github.com/rhuss/gatehouse/pkg/config"
	"github.com/rhuss/gatehouse/pkg/credential"
)

// ErrNoAuthMethods is returned when auth.methods is empty. Accepting
// anonymous callers must be requested with methods: [none].
var ErrNoAuthMethods = errors.New("auth.methods is empty: list basic, apikey or jwt, or [none] to accept anonymous callers")

// NewAuthChain builds the authentication check from the configured methods,
// in order. "none" accepts everyone as anonymous. users backs Basic
// authentication; when nil the users listed in cfg are used.
func NewAuthChain(cfg config.AuthConfig, verifier credential.Verifier, users basic.UserStore) (*auth.AuthChain, error) {
	if len(cfg.Methods) == 0 {
		return nil, ErrNoAuthMethods
	}

	chain := &auth.AuthChain{DefaultDecision: auth.No}
	if cfg.DefaultDecision == "allow" {
		chain.DefaultDecision = auth.Yes
	}

	for _, m := range cfg.Methods {
		var (
			a   auth.Authenticator
			err error
		)
		switch m {
		case config.MethodNone:
			a = &noop.Authenticator{}
		case config.MethodBasic:
			a, err = newBasic(cfg, verifier, users)
		case config.MethodAPIKey:
			a, err = newAPIKey(cfg, verifier)
		case config.MethodJWT:
			a, err = jwt.New(jwt.Config{
				Secret:   []byte(cfg.JWT.Secret),
				Issuer:   cfg.JWT.Issuer,
				Audience: cfg.JWT.Audience,
				Leeway:   cfg.JWT.Leeway,
			})
		default:
			err = fmt.Errorf("unknown auth method %q", m)
		}
		if err != nil {
			return nil, fmt.Errorf("auth method %s: %w", m, err)
		}
		chain.Authenticators = append(chain.Authenticators, a)
	}
	return chain, nil
}

func newBasic(cfg config.AuthConfig, verifier credential.Verifier, store basic.UserStore) (auth.Authenticator, error) {
	if store != nil {
		return basic.New(store, verifier, cfg.Realm)
	}
	users := make([]basic.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, basic.User{
			Username: u.Username,
			Record:   u.Password,
			Identity: identity(u.Subject, u.TenantID, u.ServiceTier, u.Scopes),
		})
	}
	static, err := basic.NewStaticStore(users)
	if err != nil {
		return nil, err
	}
	return basic.New(static, verifier, cfg.Realm)
}

func newAPIKey(cfg config.AuthConfig, verifier credential.Verifier) (auth.Authenticator, error) {
	keys := make([]apikey.Key, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, apikey.Key{
			ID:       k.ID,
			Record:   k.Key,
			Identity: identity(k.Subject, k.TenantID, k.ServiceTier, k.Scopes),
		})
	}
	return apikey.New(keys, verifier)
}

func identity(subject, tenant, tier string, scopes []string) auth.Identity {
	id := auth.Identity{
		Subject:     subject,
		ServiceTier: tier,
		Scopes:      append([]string(nil), scopes...),
		Metadata:    map[string]string{},
	}
	if tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}
	return id
}

// NewLimiter returns the configured rate limiter, or nil when no limit is set.
func NewLimiter(cfg config.RateLimitConfig) auth.RateLimiter {
	if !cfg.Enabled() {
		return nil
	}
	return auth.NewInProcessLimiter(cfg.Tiers, cfg.DefaultRPM)
}
