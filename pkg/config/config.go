// Package config provides unified configuration for the gatehouse gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (GATEHOUSE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the gatehouse gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	CORS          CORSConfig          `yaml:"cors"`
	Admission     AdmissionConfig     `yaml:"admission"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 60s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
}

// UpstreamConfig names the backend admitted requests are forwarded to.
type UpstreamConfig struct {
	URL string `yaml:"url"` // optional; without it admitted requests get 404
}

// CORSConfig holds the cross-origin policy. An empty allowed_origins list
// disables cross-origin handling.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"` // default: GET, HEAD, POST
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"` // seconds
}

// Enabled reports whether a cross-origin policy is configured.
func (c CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// AdmissionConfig holds the ordered admission rules.
type AdmissionConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig describes one admission rule.
type RuleConfig struct {
	Pattern      string   `yaml:"pattern"`
	Methods      []string `yaml:"methods"`
	RequiresAuth bool     `yaml:"requires_auth"`
}

// CredentialsConfig holds the credential scheme registry.
type CredentialsConfig struct {
	Schemes []SchemeConfig `yaml:"schemes"`
}

// SchemeConfig registers one credential scheme. Zero-valued tunables use
// the strategy's defaults.
type SchemeConfig struct {
	ID            string `yaml:"id"`
	Kind          string `yaml:"kind"` // noop, bcrypt, pbkdf2, scrypt, argon2
	DefaultEncode bool   `yaml:"default_encode"`
	DefaultMatch  bool   `yaml:"default_match"`

	Cost       int `yaml:"cost"`        // bcrypt
	Iterations int `yaml:"iterations"`  // pbkdf2
	MemoryKiB  int `yaml:"memory_kib"`  // argon2
	Time       int `yaml:"time"`        // argon2
	Threads    int `yaml:"threads"`     // argon2
	SaltLength int `yaml:"salt_length"` // pbkdf2, scrypt, argon2
	KeyLength  int `yaml:"key_length"`  // pbkdf2, scrypt, argon2
	N          int `yaml:"n"`           // scrypt
	R          int `yaml:"r"`           // scrypt
	P          int `yaml:"p"`           // scrypt
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Methods lists the checks in chain order: basic, apikey, jwt.
	// The gateway refuses an empty list; [none] accepts every request as
	// anonymous.
	Methods []string `yaml:"methods"`

	// DefaultDecision applies when every check abstains: "deny" or "allow".
	DefaultDecision string `yaml:"default_decision"` // default: deny

	Realm     string          `yaml:"realm"` // default: gatehouse
	UserStore UserStoreConfig `yaml:"user_store"`
	Users     []UserConfig    `yaml:"users"`
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// User store types accepted in auth.user_store.type.
const (
	UserStoreStatic   = "static"
	UserStorePostgres = "postgres"
)

// UserStoreConfig selects where Basic auth users live: "static" reads
// auth.users, "postgres" reads the users table.
type UserStoreConfig struct {
	Type     string         `yaml:"type"` // default: static
	Postgres PostgresConfig `yaml:"postgres"`
	Cache    CacheConfig    `yaml:"cache"`
}

// PostgresConfig holds PostgreSQL user directory settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"` // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

// CacheConfig holds the lookup cache in front of a database user store.
// A zero TTL disables caching.
type CacheConfig struct {
	Size int           `yaml:"size"` // default: 1000
	TTL  time.Duration `yaml:"ttl"`  // default: 30s
}

// UserConfig describes a Basic auth user. Password is a credential record
// such as "{bcrypt}$2a$10$...".
type UserConfig struct {
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	PasswordFile string   `yaml:"password_file"` // _file variant for password
	Subject      string   `yaml:"subject"`
	TenantID     string   `yaml:"tenant_id"`
	ServiceTier  string   `yaml:"service_tier"`
	Scopes       []string `yaml:"scopes"`
}

// APIKeyConfig describes a single API key entry. Key is the credential
// record for the secret half of "<id>.<secret>".
type APIKeyConfig struct {
	ID          string   `yaml:"id"`
	Key         string   `yaml:"key"`
	KeyFile     string   `yaml:"key_file"` // _file variant for key
	Subject     string   `yaml:"subject"`
	TenantID    string   `yaml:"tenant_id"`
	ServiceTier string   `yaml:"service_tier"`
	Scopes      []string `yaml:"scopes"`
}

// JWTConfig holds HMAC JWT verification settings.
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secret_file"` // _file variant for secret
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	Leeway     time.Duration `yaml:"leeway"`
}

// RateLimitConfig holds per-tier requests-per-minute limits. Zero means
// unlimited.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// Enabled reports whether any limit is configured.
func (c RateLimitConfig) Enabled() bool {
	if c.DefaultRPM > 0 {
		return true
	}
	for _, v := range c.Tiers {
		if v > 0 {
			return true
		}
	}
	return false
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // default: INFO
	Format     string `yaml:"format"` // text or json, default: text
	Debug      string `yaml:"debug"`  // comma-separated debug categories
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`  // default: 100
	MaxBackups int    `yaml:"max_backups"`  // default: 3
	MaxAgeDays int    `yaml:"max_age_days"` // default: 28
}

// Defaults returns a Config with all default values filled in.
//
// No admission rule is defined, so every proxied path requires
// authentication. The scheme registry encodes with bcrypt and treats
// untagged records as bcrypt hashes.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "HEAD", "POST"},
		},
		Credentials: CredentialsConfig{
			Schemes: []SchemeConfig{
				{ID: "bcrypt", Kind: "bcrypt", DefaultEncode: true, DefaultMatch: true},
				{ID: "pbkdf2", Kind: "pbkdf2"},
				{ID: "scrypt", Kind: "scrypt"},
				{ID: "argon2", Kind: "argon2"},
			},
		},
		Auth: AuthConfig{
			DefaultDecision: "deny",
			Realm:           "gatehouse",
			UserStore: UserStoreConfig{
				Type:  UserStoreStatic,
				Cache: CacheConfig{Size: 1000, TTL: 30 * time.Second},
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
