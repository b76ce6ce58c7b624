package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/switchboard/internal/store"
)

// StoreConfig holds query-level settings shared by the PostgreSQL stores.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// QueryTimeout bounds each store call on top of the caller's context.
	// Default: 10s. Negative disables the extra timeout.
	QueryTimeout time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// conn is the pool handle plus query settings embedded in every store.
type conn struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

func (c conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

// New creates PostgreSQL-backed stores sharing one connection pool.
func New(pool *pgxpool.Pool, cfg StoreConfig) store.Stores {
	cfg.ApplyDefaults()

	c := conn{pool: pool, queryTimeout: cfg.QueryTimeout}
	return store.Stores{
		Teams:         &TeamStore{conn: c},
		Users:         &UserStore{conn: c},
		Contacts:      &ContactStore{conn: c},
		Messages:      &MessageStore{conn: c},
		Conversations: &ConversationStore{conn: c},
	}
}
