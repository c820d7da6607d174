package gateway

import (
	"context"
	"time"

	"github.com/rhuss/gatehouse/pkg/auth/basic"
	"github.com/rhuss/gatehouse/pkg/config"
	"github.com/rhuss/gatehouse/pkg/storage/memory"
	"github.com/rhuss/gatehouse/pkg/storage/postgres"
)

// UserDirectory is an opened database user store.
type UserDirectory struct {
	// Store is the lookup path used by Basic authentication, cached when
	// a cache TTL is configured.
	Store basic.UserStore

	// Postgres is the underlying store, for administration.
	Postgres *postgres.Store
}

// OpenUserDirectory connects the configured user store. It returns nil for
// the static store, whose users come from the configuration file.
func OpenUserDirectory(ctx context.Context, cfg config.UserStoreConfig) (*UserDirectory, error) {
	if cfg.Type != config.UserStorePostgres {
		return nil, nil
	}
	pg, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		MigrateOnStart:  cfg.Postgres.MigrateOnStart,
	})
	if err != nil {
		return nil, err
	}
	d := &UserDirectory{Store: pg, Postgres: pg}
	if cfg.Cache.TTL > 0 {
		d.Store = memory.New(pg, cfg.Cache.Size, cfg.Cache.TTL)
	}
	return d, nil
}

// Ready reports whether the database answers within two seconds.
func (d *UserDirectory) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return d.Postgres.HealthCheck(ctx) == nil
}

// Close releases the connection pool.
func (d *UserDirectory) Close() error {
	return d.Postgres.Close()
}
