package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ace221390/work.ink/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Closer releases whatever an opened backend holds.
type Closer func() error

func nopCloser() error { return nil }

// Open builds the backend named by cfg.Backend. For the chain backend,
// members that cannot be reached at start-up are skipped with a warning.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, Closer, error) {
	log := logger.Named("store")
	if cfg.Backend != config.BackendChain {
		return openBackend(ctx, cfg.Backend, cfg, log)
	}

	var (
		members []Store
		closers []Closer
	)
	for _, name := range cfg.Chain {
		s, closeFn, err := openBackend(ctx, name, cfg, log)
		if err != nil {
			log.Warn("Skipping unavailable store in chain", zap.String("backend", name), zap.Error(err))
			continue
		}
		members = append(members, s)
		closers = append(closers, closeFn)
	}
	if len(members) == 0 {
		return nil, nil, fmt.Errorf("%w: no backend in chain %v could be opened", ErrUnavailable, cfg.Chain)
	}
	log.Info("Store chain ready", zap.Int("members", len(members)))
	return NewChain(members...), func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}, nil
}

func openBackend(ctx context.Context, name string, cfg config.StoreConfig, log *zap.Logger) (Store, Closer, error) {
	switch name {
	case config.BackendMemory:
		return NewMemory(), nopCloser, nil

	case config.BackendSQLite:
		s, err := OpenSQLite(cfg.SQLite.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("%w: redis ping %s: %w", ErrUnavailable, cfg.Redis.Addr, err)
		}
		r := NewRedis(client, cfg.Redis.TTL)
		return r, r.Close, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: postgres pool: %w", ErrUnavailable, err)
		}
		p, err := NewPostgres(ctx, pool, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return p, func() error { pool.Close(); return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", name)
}
