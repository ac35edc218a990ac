package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so tests can use pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	createHandoffTable = `CREATE TABLE IF NOT EXISTS workink_handoff (
    slot       TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	upsertHandoff = `INSERT INTO workink_handoff (slot, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (slot) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	selectHandoff = `SELECT value FROM workink_handoff WHERE slot = $1`
	deleteHandoff = `DELETE FROM workink_handoff WHERE slot = $1`
)

// Postgres keeps the slot in a single table.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres verifies the connection and creates the table if needed.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createHandoffTable); err != nil {
		return nil, fmt.Errorf("failed to create handoff table: %w", err)
	}
	return &Postgres{pool: pool, log: logger.Named("store.postgres")}, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if _, err := p.pool.Exec(ctx, upsertHandoff, key, value); err != nil {
		return fmt.Errorf("%w: postgres upsert: %w", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key, def string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, selectHandoff, key).Scan(&v)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return def, nil
	case err != nil:
		return def, fmt.Errorf("%w: postgres select: %w", ErrUnavailable, err)
	}
	return v, nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx, deleteHandoff, key)
	if err != nil {
		return fmt.Errorf("%w: postgres delete: %w", ErrUnavailable, err)
	}
	p.log.Debug("Handoff row deleted", zap.String("slot", key), zap.Int64("rows", tag.RowsAffected()))
	return nil
}
