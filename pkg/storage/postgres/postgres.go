// Package postgres provides a PostgreSQL user directory for HTTP Basic
// authentication. It uses pgx/v5 for connection pooling and stores one
// credential record per user.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/gatehouse/pkg/auth/basic"
	"github.com/rhuss/gatehouse/pkg/storage"
)

// Store is a PostgreSQL-backed user directory.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ basic.UserStore       = (*Store)(nil)
	_ basic.PasswordUpdater = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Lookup implements basic.UserStore. Disabled users are not found. Query
// failures are logged and reported as not found, so authentication fails
// closed.
func (s *Store) Lookup(ctx context.Context, username string) (*basic.User, bool) {
	u, err := s.GetUser(ctx, username)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Error("user lookup failed", "username", username, "error", err)
		}
		return nil, false
	}
	return u, true
}

// GetUser returns an enabled user, or storage.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, username string) (*basic.User, error) {
	var (
		u      basic.User
		tenant string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT username, password, subject, tenant_id, service_tier, scopes
		FROM users
		WHERE username = $1 AND enabled
	`, username).Scan(
		&u.Username, &u.Record, &u.Identity.Subject, &tenant,
		&u.Identity.ServiceTier, &u.Identity.Scopes,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if u.Identity.Subject == "" {
		u.Identity.Subject = u.Username
	}
	u.Identity.Metadata = map[string]string{}
	if tenant != "" {
		u.Identity.Metadata["tenant_id"] = tenant
	}
	return &u, nil
}

// CreateUser inserts a user. It returns storage.ErrConflict when the name
// is taken.
func (s *Store) CreateUser(ctx context.Context, u basic.User) error {
	if u.Username == "" || u.Record == "" {
		return fmt.Errorf("username and credential record are required")
	}
	scopes := u.Identity.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password, subject, tenant_id, service_tier, scopes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		u.Username, u.Record, u.Identity.Subject, u.Identity.TenantID(),
		u.Identity.ServiceTier, scopes,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// UpdatePassword implements basic.PasswordUpdater.
func (s *Store) UpdatePassword(ctx context.Context, username, record string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, record)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetEnabled enables or disables a user.
func (s *Store) SetEnabled(ctx context.Context, username string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET enabled = $2, updated_at = now()
		WHERE username = $1
	`, username, enabled)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
