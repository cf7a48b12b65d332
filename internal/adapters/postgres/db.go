package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dossier/internal/ports"
)

type DB struct {
	Pool     *pgxpool.Pool
	dedupTTL time.Duration
}

func Connect(ctx context.Context, url string, dedupTTL time.Duration) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if dedupTTL <= 0 {
		dedupTTL = ports.DedupWindow
	}
	return &DB{Pool: pool, dedupTTL: dedupTTL}, nil
}

func (db *DB) Close() { db.Pool.Close() }
