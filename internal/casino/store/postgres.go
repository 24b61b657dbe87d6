package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// balances follows the dr/cr convention: dr adds to the player's balance,
// cr takes from it.
const schema = `
CREATE TABLE IF NOT EXISTS players (
    id              UUID PRIMARY KEY,
    username        TEXT NOT NULL UNIQUE,
    password_hash   TEXT NOT NULL,
    initial_balance NUMERIC(18,2) NOT NULL,
    status          TEXT NOT NULL DEFAULT 'ACTIVE',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS balances (
    id         BIGSERIAL PRIMARY KEY,
    username   TEXT NOT NULL,
    kind       TEXT NOT NULL,
    dr         NUMERIC(18,2) NOT NULL DEFAULT 0,
    cr         NUMERIC(18,2) NOT NULL DEFAULT 0,
    balance    NUMERIC(18,2) NOT NULL,
    status     TEXT NOT NULL DEFAULT 'completed',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS balances_username_idx ON balances (username);

CREATE TABLE IF NOT EXISTS game_records (
    id         UUID PRIMARY KEY,
    username   TEXT NOT NULL,
    game       TEXT NOT NULL,
    bet_amount NUMERIC(18,2) NOT NULL,
    result     TEXT NOT NULL,
    winnings   NUMERIC(18,2) NOT NULL,
    multiplier DOUBLE PRECISION NOT NULL,
    profit     NUMERIC(18,2) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS game_records_username_idx ON game_records (username, created_at DESC);

CREATE TABLE IF NOT EXISTS snapshots (
    id         BIGSERIAL PRIMARY KEY,
    state      JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
