// Package postgres stores users and games in PostgreSQL through pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/config"
)

const defaultHealthTimeout = 2 * time.Second

// Pool is the service's connection pool. Besides backing Store it answers
// readiness probes and the periodic database health check.
type Pool struct {
	db            *pgxpool.Pool
	addr          string
	healthTimeout time.Duration
}

// Open connects a pool and waits for the database to answer a ping within
// cfg.HealthTimeout (2s when unset).
//
// Precondition: cfg must have passed validation.
// Postcondition: Returns a Pool that has reached the database, or a non-nil
// error with no connections left open.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	p := &Pool{
		db:            db,
		addr:          fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		healthTimeout: cfg.HealthTimeout,
	}
	if p.healthTimeout <= 0 {
		p.healthTimeout = defaultHealthTimeout
	}
	if err := p.Ready(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Ready pings the database, bounded by the configured health timeout. Its
// signature matches the HTTP readiness hook.
func (p *Pool) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.healthTimeout)
	defer cancel()
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("database %s not ready: %w", p.addr, err)
	}
	return nil
}

// HealthCheck returns a callback for a periodic service. Each run pings the
// database and logs the pool's connection counts, at error level when the
// ping fails.
func (p *Pool) HealthCheck(logger *zap.Logger) func(context.Context) {
	return func(ctx context.Context) {
		err := p.Ready(ctx)
		stat := p.db.Stat()
		fields := []zap.Field{
			zap.String("addr", p.addr),
			zap.Int32("total_conns", stat.TotalConns()),
			zap.Int32("idle_conns", stat.IdleConns()),
			zap.Int32("acquired_conns", stat.AcquiredConns()),
		}
		if err != nil {
			logger.Error("database health check failed", append(fields, zap.Error(err))...)
			return
		}
		logger.Debug("database healthy", fields...)
	}
}

// Close releases every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.db.Close()
}
