package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rhuss/gatehouse/pkg/credential/builtin"
)

// Auth method names accepted in auth.methods.
const (
	MethodBasic  = "basic"
	MethodAPIKey = "apikey"
	MethodJWT    = "jwt"
	MethodNone   = "none"
)

// minJWTSecretLength matches the HMAC key length required by the JWT check.
const minJWTSecretLength = 32

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be > 0, got %v", c.Server.ShutdownTimeout))
	}

	if c.Upstream.URL != "" {
		u, err := url.Parse(c.Upstream.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("upstream.url must be an absolute http(s) URL, got %q", c.Upstream.URL))
		}
	}

	errs = append(errs, c.CORS.validate()...)

	for i, r := range c.Admission.Rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			errs = append(errs, fmt.Errorf("admission.rules[%d].pattern must start with /, got %q", i, r.Pattern))
		}
	}

	errs = append(errs, c.Credentials.validate()...)
	errs = append(errs, c.Auth.validate()...)

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func (c *CORSConfig) validate() []error {
	var errs []error
	if slices.Contains(c.AllowedOrigins, "*") && c.AllowCredentials {
		errs = append(errs, errors.New("cors.allowed_origins \"*\" cannot be combined with cors.allow_credentials"))
	}
	if c.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("cors.max_age must be >= 0, got %d", c.MaxAge))
	}
	return errs
}

func (c *CredentialsConfig) validate() []error {
	var errs []error
	if len(c.Schemes) == 0 {
		return []error{errors.New("credentials.schemes must register at least one scheme")}
	}

	kinds := builtin.Kinds()
	seen := make(map[string]bool, len(c.Schemes))
	var encode, match int
	for i, s := range c.Schemes {
		switch {
		case s.ID == "" || strings.ContainsAny(s.ID, "{}"):
			errs = append(errs, fmt.Errorf("credentials.schemes[%d].id must be non-empty and free of braces, got %q", i, s.ID))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("credentials.schemes[%d].id %q is duplicated", i, s.ID))
		}
		seen[s.ID] = true
		if !slices.Contains(kinds, s.Kind) {
			errs = append(errs, fmt.Errorf("credentials.schemes[%d].kind must be one of %v, got %q", i, kinds, s.Kind))
		}
		if s.DefaultEncode {
			encode++
		}
		if s.DefaultMatch {
			match++
		}
	}
	if encode != 1 {
		errs = append(errs, fmt.Errorf("credentials.schemes must mark exactly one default_encode scheme, got %d", encode))
	}
	if match != 1 {
		errs = append(errs, fmt.Errorf("credentials.schemes must mark exactly one default_match scheme, got %d", match))
	}
	return errs
}

func (c *AuthConfig) validate() []error {
	var errs []error

	seen := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		switch m {
		case MethodBasic, MethodAPIKey, MethodJWT, MethodNone:
		default:
			errs = append(errs, fmt.Errorf("auth.methods entries must be \"basic\", \"apikey\", \"jwt\" or \"none\", got %q", m))
		}
		if seen[m] {
			errs = append(errs, fmt.Errorf("auth.methods lists %q twice", m))
		}
		seen[m] = true
	}
	if seen[MethodNone] && len(c.Methods) > 1 {
		errs = append(errs, errors.New("auth.methods \"none\" cannot be combined with other methods"))
	}

	switch c.DefaultDecision {
	case "deny", "allow":
	default:
		errs = append(errs, fmt.Errorf("auth.default_decision must be \"deny\" or \"allow\", got %q", c.DefaultDecision))
	}

	switch c.UserStore.Type {
	case UserStoreStatic:
		if seen[MethodBasic] && len(c.Users) == 0 {
			errs = append(errs, errors.New("auth.users is required when auth.methods includes \"basic\""))
		}
	case UserStorePostgres:
		pg := c.UserStore.Postgres
		if pg.DSN == "" && pg.DSNFile == "" {
			errs = append(errs, errors.New("auth.user_store.postgres.dsn or dsn_file is required for the postgres user store"))
		}
		if pg.MaxConns < 0 || pg.MinConns < 0 || pg.MaxConnLifetime < 0 {
			errs = append(errs, errors.New("auth.user_store.postgres pool settings must not be negative"))
		}
		if len(c.Users) > 0 {
			errs = append(errs, errors.New("auth.users cannot be combined with the postgres user store"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.user_store.type must be \"static\" or \"postgres\", got %q", c.UserStore.Type))
	}
	if c.UserStore.Cache.Size < 0 || c.UserStore.Cache.TTL < 0 {
		errs = append(errs, errors.New("auth.user_store.cache size and ttl must not be negative"))
	}
	users := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d].username is required", i))
		} else if users[u.Username] {
			errs = append(errs, fmt.Errorf("auth.users[%d].username %q is duplicated", i, u.Username))
		}
		users[u.Username] = true
		if u.Password == "" && u.PasswordFile == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d].password or password_file is required", i))
		}
	}

	if seen[MethodAPIKey] && len(c.APIKeys) == 0 {
		errs = append(errs, errors.New("auth.api_keys is required when auth.methods includes \"apikey\""))
	}
	keys := make(map[string]bool, len(c.APIKeys))
	for i, k := range c.APIKeys {
		if k.ID == "" || strings.Contains(k.ID, ".") {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].id must be non-empty and free of dots, got %q", i, k.ID))
		} else if keys[k.ID] {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].id %q is duplicated", i, k.ID))
		}
		keys[k.ID] = true
		if k.Key == "" && k.KeyFile == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
		}
	}

	if seen[MethodJWT] {
		if c.JWT.Secret == "" && c.JWT.SecretFile == "" {
			errs = append(errs, errors.New("auth.jwt.secret or auth.jwt.secret_file is required when auth.methods includes \"jwt\""))
		} else if c.JWT.Secret != "" && len(c.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, fmt.Errorf("auth.jwt.secret must be at least %d bytes", minJWTSecretLength))
		}
	}
	if c.JWT.Leeway < 0 {
		errs = append(errs, fmt.Errorf("auth.jwt.leeway must not be negative, got %v", c.JWT.Leeway))
	}

	if c.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must be >= 0, got %d", c.RateLimit.DefaultRPM))
	}
	for tier, rpm := range c.RateLimit.Tiers {
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limit.tiers[%s] must be >= 0, got %d", tier, rpm))
		}
	}

	return errs
}

// AnonymousAccess reports whether the configuration lets requests through
// without any credential check, either because no auth method is enabled
// or because abstaining checks default to allow.
func (c *Config) AnonymousAccess() bool {
	if len(c.Auth.Methods) == 0 || slices.Contains(c.Auth.Methods, MethodNone) {
		return true
	}
	return c.Auth.DefaultDecision == "allow"
}

// OpensEverything reports whether an admission rule permits every path
// without authentication.
func (c *Config) OpensEverything() bool {
	for _, r := range c.Admission.Rules {
		if r.Pattern == "/**" && !r.RequiresAuth && len(r.Methods) == 0 {
			return true
		}
	}
	return false
}
