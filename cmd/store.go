package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/config"
	"github.com/sells-group/forecast-cli/internal/resilience"
	"github.com/sells-group/forecast-cli/internal/store"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "forecast.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		b := resilience.DefaultBackoff()
		b.Attempts = c.ConnectAttempts
		b.OnRetry = resilience.LogRetry("postgres connect")
		st, err = resilience.Do(ctx, b, func(ctx context.Context) (store.Store, error) {
			return store.NewPostgres(ctx, c.DatabaseURL, &store.PoolConfig{
				MaxConns: c.MaxConns,
				MinConns: c.MinConns,
				Schema:   c.Schema,
			})
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
