package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/gatehouse/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, GATEHOUSE_CONFIG env, ./config.yaml, /etc/gatehouse/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. GATEHOUSE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/gatehouse/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("GATEHOUSE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/gatehouse/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are an error.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps GATEHOUSE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("GATEHOUSE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GATEHOUSE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("GATEHOUSE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("GATEHOUSE_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if v, ok := os.LookupEnv("GATEHOUSE_AUTH_METHODS"); ok {
		cfg.Auth.Methods = splitList(v)
	}
	if v := os.Getenv("GATEHOUSE_POSTGRES_DSN"); v != "" {
		cfg.Auth.UserStore.Postgres.DSN = v
	}
	if v := os.Getenv("GATEHOUSE_JWT_SECRET"); v != "" {
		cfg.Auth.JWT.Secret = v
	}
	if v := os.Getenv("GATEHOUSE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GATEHOUSE_DEBUG"); v != "" {
		cfg.Logging.Debug = v
	}

	// GATEHOUSE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("GATEHOUSE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var raw []struct {
		ID          string   `json:"id"`
		Key         string   `json:"key"`
		KeyFile     string   `json:"key_file"`
		Subject     string   `json:"subject"`
		TenantID    string   `json:"tenant_id"`
		ServiceTier string   `json:"service_tier"`
		Scopes      []string `json:"scopes"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parsing GATEHOUSE_API_KEYS JSON: %w", err)
	}
	keys := make([]APIKeyConfig, len(raw))
	for i, k := range raw {
		keys[i] = APIKeyConfig(k)
	}
	return keys, nil
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// auth.users[*].password_file -> auth.users[*].password
	for i := range cfg.Auth.Users {
		u := &cfg.Auth.Users[i]
		if u.PasswordFile != "" && u.Password == "" {
			val, err := readSecretFile(u.PasswordFile)
			if err != nil {
				return fmt.Errorf("auth.users[%d].password_file: %w", i, err)
			}
			u.Password = val
		}
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	// auth.user_store.postgres.dsn_file -> auth.user_store.postgres.dsn
	pg := &cfg.Auth.UserStore.Postgres
	if pg.DSNFile != "" && pg.DSN == "" {
		val, err := readSecretFile(pg.DSNFile)
		if err != nil {
			return fmt.Errorf("auth.user_store.postgres.dsn_file: %w", err)
		}
		pg.DSN = val
	}

	// auth.jwt.secret_file -> auth.jwt.secret
	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
