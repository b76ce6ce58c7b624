package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/switchboard/internal/store"
	memorystore "github.com/wolfeidau/switchboard/internal/store/memory"
	postgresstore "github.com/wolfeidau/switchboard/internal/store/postgres"
)

type Globals struct {
	Debug   bool
	Version string
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20" env:"SWITCHBOARD_POSTGRES_MAX_CONNS"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2" env:"SWITCHBOARD_POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`
	QueryTimeout    time.Duration `help:"timeout applied to each store query" default:"10s" env:"SWITCHBOARD_POSTGRES_QUERY_TIMEOUT"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"SWITCHBOARD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (s *PostgresStoreFlags) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:      s.ConnString,
		MaxConns:        s.MaxConns,
		MinConns:        s.MinConns,
		MaxConnLifetime: s.MaxConnLifetime,
		MaxConnIdleTime: s.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return pool, nil
}

// openedStores is a set of stores plus what is needed to check and release them.
type openedStores struct {
	stores store.Stores
	pool   *pgxpool.Pool // nil for memory stores
}

func (o *openedStores) Close() {
	if o.pool != nil {
		o.pool.Close()
	}
}

func openStores(ctx context.Context, log zerolog.Logger, storeType string, flags *PostgresStoreFlags) (*openedStores, error) {
	switch storeType {
	case "postgres":
		pool, err := flags.openPool(ctx)
		if err != nil {
			return nil, err
		}

		if flags.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return &openedStores{
			stores: postgresstore.New(pool, postgresstore.StoreConfig{QueryTimeout: flags.QueryTimeout}),
			pool:   pool,
		}, nil

	default:
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
		return &openedStores{stores: memorystore.New()}, nil
	}
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
