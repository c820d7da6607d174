package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("default server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("default server.read_timeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("default server.shutdown_timeout = %v, want 15s", cfg.Server.ShutdownTimeout)
	}
	if cfg.CORS.Enabled() {
		t.Error("default cors should be disabled")
	}
	if len(cfg.Admission.Rules) != 0 {
		t.Errorf("default admission.rules = %v, want none", cfg.Admission.Rules)
	}
	if len(cfg.Credentials.Schemes) != 4 {
		t.Errorf("default credentials.schemes length = %d, want 4", len(cfg.Credentials.Schemes))
	}
	if cfg.Auth.DefaultDecision != "deny" {
		t.Errorf("default auth.default_decision = %q, want \"deny\"", cfg.Auth.DefaultDecision)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("default metrics = %+v, want enabled at /metrics", cfg.Observability.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  port: 9090
  read_timeout: 60s
  shutdown_timeout: 5s
upstream:
  url: http://localhost:3000
cors:
  allowed_origins: ["http://localhost:5173"]
  allowed_methods: [GET, POST, PUT, DELETE, OPTIONS]
  allowed_headers: ["*"]
  allow_credentials: true
  max_age: 3600
admission:
  rules:
    - pattern: /public/**
    - pattern: /api/**
      methods: [POST]
      requires_auth: true
credentials:
  schemes:
    - id: noop
      kind: noop
      default_match: true
    - id: bcrypt
      kind: bcrypt
      cost: 12
      default_encode: true
auth:
  methods: [basic, apikey]
  realm: example
  users:
    - username: alice
      password: "{noop}secret123"
      tenant_id: org-1
      service_tier: premium
      scopes: [read, write]
  api_keys:
    - id: ci
      key: "{noop}s3cret"
      subject: ci-bot
  rate_limit:
    default_rpm: 60
    tiers:
      premium: 600
logging:
  level: debug
  format: json
`
	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("server.read_timeout = %v, want 60s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 60*time.Second {
		t.Errorf("server.write_timeout = %v, want default 60s", cfg.Server.WriteTimeout)
	}
	if cfg.Upstream.URL != "http://localhost:3000" {
		t.Errorf("upstream.url = %q, want \"http://localhost:3000\"", cfg.Upstream.URL)
	}

	// CORS
	if !cfg.CORS.Enabled() || cfg.CORS.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("cors.allowed_origins = %v, want [http://localhost:5173]", cfg.CORS.AllowedOrigins)
	}
	if len(cfg.CORS.AllowedMethods) != 5 {
		t.Errorf("cors.allowed_methods = %v, want 5 methods", cfg.CORS.AllowedMethods)
	}
	if !cfg.CORS.AllowCredentials || cfg.CORS.MaxAge != 3600 {
		t.Errorf("cors credentials/max_age = %v/%d, want true/3600", cfg.CORS.AllowCredentials, cfg.CORS.MaxAge)
	}

	// Admission
	if len(cfg.Admission.Rules) != 2 {
		t.Fatalf("admission.rules length = %d, want 2", len(cfg.Admission.Rules))
	}
	if cfg.Admission.Rules[0].RequiresAuth {
		t.Error("admission.rules[0].requires_auth = true, want false")
	}
	if r := cfg.Admission.Rules[1]; !r.RequiresAuth || len(r.Methods) != 1 || r.Methods[0] != "POST" {
		t.Errorf("admission.rules[1] = %+v, want POST /api/** requiring auth", r)
	}

	// Credentials replace the default registry.
	if len(cfg.Credentials.Schemes) != 2 {
		t.Fatalf("credentials.schemes length = %d, want 2", len(cfg.Credentials.Schemes))
	}
	if s := cfg.Credentials.Schemes[1]; s.Cost != 12 || !s.DefaultEncode {
		t.Errorf("credentials.schemes[1] = %+v, want bcrypt cost 12 default_encode", s)
	}

	// Auth
	if strings.Join(cfg.Auth.Methods, ",") != "basic,apikey" {
		t.Errorf("auth.methods = %v, want [basic apikey]", cfg.Auth.Methods)
	}
	if cfg.Auth.Realm != "example" {
		t.Errorf("auth.realm = %q, want \"example\"", cfg.Auth.Realm)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Password != "{noop}secret123" {
		t.Errorf("auth.users = %+v, want alice with noop record", cfg.Auth.Users)
	}
	if len(cfg.Auth.Users[0].Scopes) != 2 {
		t.Errorf("auth.users[0].scopes = %v, want [read write]", cfg.Auth.Users[0].Scopes)
	}
	if cfg.Auth.APIKeys[0].Subject != "ci-bot" {
		t.Errorf("auth.api_keys[0].subject = %q, want \"ci-bot\"", cfg.Auth.APIKeys[0].Subject)
	}
	if cfg.Auth.RateLimit.Tiers["premium"] != 600 || !cfg.Auth.RateLimit.Enabled() {
		t.Errorf("auth.rate_limit = %+v, want premium 600", cfg.Auth.RateLimit)
	}

	// Logging
	if cfg.Logging.Format != "json" {
		t.Errorf("logging.format = %q, want \"json\"", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTemp(t, "config-*.yaml", "cors:\n  allow_origins: [\"http://a.example\"]\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "allow_origins") {
		t.Errorf("error = %v, want mention of allow_origins", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server.port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestEnvOverride(t *testing.T) {
	yamlContent := `
server:
  port: 9090
upstream:
  url: http://from-yaml:8000
auth:
  methods: [basic]
  users:
    - username: alice
      password: "{noop}x"
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	t.Setenv("GATEHOUSE_PORT", "7070")
	t.Setenv("GATEHOUSE_UPSTREAM_URL", "http://from-env:8000")
	t.Setenv("GATEHOUSE_CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("GATEHOUSE_AUTH_METHODS", "jwt,basic")
	t.Setenv("GATEHOUSE_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("GATEHOUSE_LOG_LEVEL", "warn")
	t.Setenv("GATEHOUSE_DEBUG", "cors,auth")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server.port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Upstream.URL != "http://from-env:8000" {
		t.Errorf("upstream.url = %q, want env override", cfg.Upstream.URL)
	}
	if strings.Join(cfg.CORS.AllowedOrigins, "|") != "http://a.example|http://b.example" {
		t.Errorf("cors.allowed_origins = %v, want both env origins", cfg.CORS.AllowedOrigins)
	}
	if strings.Join(cfg.Auth.Methods, ",") != "jwt,basic" {
		t.Errorf("auth.methods = %v, want [jwt basic]", cfg.Auth.Methods)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Debug != "cors,auth" {
		t.Errorf("logging = %+v, want env level and categories", cfg.Logging)
	}
}

func TestEnvOverrideInvalidPort(t *testing.T) {
	t.Setenv("GATEHOUSE_PORT", "not-a-port")
	if _, err := Load(writeTemp(t, "config-*.yaml", "")); err == nil {
		t.Error("expected error for invalid GATEHOUSE_PORT")
	}
}

func TestEnvAPIKeysJSON(t *testing.T) {
	t.Setenv("GATEHOUSE_AUTH_METHODS", "apikey")
	t.Setenv("GATEHOUSE_API_KEYS", `[{"id":"k1","key":"{noop}a","subject":"svc","service_tier":"premium"}]`)

	cfg, err := Load(writeTemp(t, "config-*.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].ServiceTier != "premium" {
		t.Errorf("auth.api_keys = %+v, want one premium key", cfg.Auth.APIKeys)
	}
}

func TestFileReferences(t *testing.T) {
	dir := t.TempDir()
	pwFile := filepath.Join(dir, "alice.pw")
	keyFile := filepath.Join(dir, "ci.key")
	secretFile := filepath.Join(dir, "jwt.secret")
	os.WriteFile(pwFile, []byte("{noop}from-file\n"), 0o600)
	os.WriteFile(keyFile, []byte("  {noop}key-from-file  "), 0o600)
	os.WriteFile(secretFile, []byte("0123456789abcdef0123456789abcdef\n"), 0o600)

	yamlContent := `
auth:
  methods: [basic, apikey, jwt]
  users:
    - username: alice
      password_file: ` + pwFile + `
  api_keys:
    - id: ci
      key_file: ` + keyFile + `
  jwt:
    secret_file: ` + secretFile + `
`
	cfg, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Auth.Users[0].Password != "{noop}from-file" {
		t.Errorf("auth.users[0].password = %q, want trimmed file content", cfg.Auth.Users[0].Password)
	}
	if cfg.Auth.APIKeys[0].Key != "{noop}key-from-file" {
		t.Errorf("auth.api_keys[0].key = %q, want trimmed file content", cfg.Auth.APIKeys[0].Key)
	}
	if cfg.Auth.JWT.Secret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("auth.jwt.secret = %q, want file content", cfg.Auth.JWT.Secret)
	}
}

func TestFileReferenceMissing(t *testing.T) {
	yamlContent := `
auth:
  jwt:
    secret_file: /nonexistent/jwt.secret
`
	_, err := Load(writeTemp(t, "config-*.yaml", yamlContent))
	if err == nil || !strings.Contains(err.Error(), "auth.jwt.secret_file") {
		t.Errorf("error = %v, want auth.jwt.secret_file failure", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad upstream", func(c *Config) { c.Upstream.URL = "ftp://x" }, "upstream.url"},
		{"wildcard with credentials", func(c *Config) {
			c.CORS.AllowedOrigins = []string{"*"}
			c.CORS.AllowCredentials = true
		}, "cannot be combined"},
		{"relative rule", func(c *Config) { c.Admission.Rules = []RuleConfig{{Pattern: "api/**"}} }, "admission.rules[0].pattern"},
		{"no schemes", func(c *Config) { c.Credentials.Schemes = nil }, "at least one scheme"},
		{"two default encode", func(c *Config) { c.Credentials.Schemes[1].DefaultEncode = true }, "exactly one default_encode"},
		{"no default match", func(c *Config) { c.Credentials.Schemes[0].DefaultMatch = false }, "exactly one default_match"},
		{"unknown kind", func(c *Config) { c.Credentials.Schemes[1].Kind = "md5" }, "kind must be one of"},
		{"duplicate scheme", func(c *Config) { c.Credentials.Schemes[1].ID = "bcrypt" }, "duplicated"},
		{"brace in id", func(c *Config) { c.Credentials.Schemes[1].ID = "pb{kdf" }, "free of braces"},
		{"unknown method", func(c *Config) { c.Auth.Methods = []string{"oauth"} }, "auth.methods"},
		{"none combined", func(c *Config) {
			c.Auth.Methods = []string{"none", "basic"}
			c.Auth.Users = []UserConfig{{Username: "a", Password: "x"}}
		}, "cannot be combined with other methods"},
		{"basic without users", func(c *Config) { c.Auth.Methods = []string{"basic"} }, "auth.users is required"},
		{"apikey dotted id", func(c *Config) {
			c.Auth.Methods = []string{"apikey"}
			c.Auth.APIKeys = []APIKeyConfig{{ID: "a.b", Key: "x"}}
		}, "free of dots"},
		{"short jwt secret", func(c *Config) {
			c.Auth.Methods = []string{"jwt"}
			c.Auth.JWT.Secret = "short"
		}, "at least 32 bytes"},
		{"bad default decision", func(c *Config) { c.Auth.DefaultDecision = "maybe" }, "default_decision"},
		{"negative rpm", func(c *Config) { c.Auth.RateLimit.DefaultRPM = -1 }, "default_rpm"},
		{"bad metrics path", func(c *Config) { c.Observability.Metrics.Path = "metrics" }, "metrics.path"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"unknown user store", func(c *Config) { c.Auth.UserStore.Type = "ldap" }, "auth.user_store.type"},
		{"postgres without dsn", func(c *Config) { c.Auth.UserStore.Type = UserStorePostgres }, "postgres.dsn"},
		{"postgres with static users", func(c *Config) {
			c.Auth.UserStore.Type = UserStorePostgres
			c.Auth.UserStore.Postgres.DSN = "postgres://localhost/db"
			c.Auth.Users = []UserConfig{{Username: "a", Password: "x"}}
		}, "cannot be combined with the postgres user store"},
		{"negative cache ttl", func(c *Config) { c.Auth.UserStore.Cache.TTL = -time.Second }, "cache size and ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Auth.DefaultDecision = ""
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"server.port", "auth.default_decision", "logging.format"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %v, missing %q", err, want)
		}
	}
}

func TestPostureHelpers(t *testing.T) {
	cfg := Defaults()
	if !cfg.AnonymousAccess() {
		t.Error("no auth methods should mean anonymous access")
	}
	if cfg.OpensEverything() {
		t.Error("defaults should not open every path")
	}

	cfg.Auth.Methods = []string{"basic"}
	if cfg.AnonymousAccess() {
		t.Error("basic with deny default should not allow anonymous access")
	}
	cfg.Admission.Rules = []RuleConfig{{Pattern: "/**"}}
	if !cfg.OpensEverything() {
		t.Error("/** permit rule should open every path")
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
// The file is automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return f.Name()
}

func TestPostgresUserStoreNeedsNoStaticUsers(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.Methods = []string{MethodBasic}
	cfg.Auth.UserStore.Type = UserStorePostgres
	cfg.Auth.UserStore.Postgres.DSN = "postgres://gatehouse@localhost/gatehouse"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestPostgresDSNFromEnvAndFile(t *testing.T) {
	t.Setenv("GATEHOUSE_POSTGRES_DSN", "postgres://env/db")
	cfg, err := Load(writeTemp(t, "config-*.yaml", "auth:\n  user_store:\n    type: postgres\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Auth.UserStore.Postgres.DSN; got != "postgres://env/db" {
		t.Errorf("DSN = %q, want %q", got, "postgres://env/db")
	}

	t.Setenv("GATEHOUSE_POSTGRES_DSN", "")
	dsnFile := filepath.Join(t.TempDir(), "dsn")
	if err := os.WriteFile(dsnFile, []byte("postgres://file/db\n"), 0o600); err != nil {
		t.Fatalf("writing dsn file: %v", err)
	}
	cfg, err = Load(writeTemp(t, "config-*.yaml", "auth:\n  user_store:\n    type: postgres\n    postgres:\n      dsn_file: "+dsnFile+"\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got := cfg.Auth.UserStore.Postgres.DSN; got != "postgres://file/db" {
		t.Errorf("DSN = %q, want %q", got, "postgres://file/db")
	}
}
