package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bher20/ebillmanager/internal/metrics"
)

// PooledStorage serves records through gorm and runs job coordination on a
// pgx pool, which also feeds the pool gauges.
type PooledStorage struct {
	*GormStorage
	pool *PostgresPool
}

func (s *PooledStorage) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return s.pool.AcquireAdvisoryLock(ctx, key)
}

func (s *PooledStorage) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	return s.pool.ReleaseAdvisoryLock(ctx, key)
}

func (s *PooledStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	return s.pool.UpdateScheduledJob(ctx, name, started, dur, success, errMsg)
}

func (s *PooledStorage) ReportPoolMetrics() { s.pool.ReportPoolMetrics() }

func (s *PooledStorage) Ping(ctx context.Context) error { return s.pool.pool.Ping(ctx) }

func (s *PooledStorage) Close() error {
	s.pool.Close()
	return s.GormStorage.Close()
}

// PostgresPool implements JobLocker on a pgx connection pool.
type PostgresPool struct {
	pool *pgxpool.Pool

	mu    sync.Mutex
	locks map[int64]*pgxpool.Conn
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPool, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/ebillmanager?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresPool{pool: pool, locks: make(map[int64]*pgxpool.Conn)}, nil
}

func (p *PostgresPool) Close() {
	p.mu.Lock()
	for key, conn := range p.locks {
		conn.Release()
		delete(p.locks, key)
	}
	p.mu.Unlock()
	p.pool.Close()
}

func (p *PostgresPool) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, held := p.locks[key]; held {
		return false, nil
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	p.locks[key] = conn
	return true, nil
}

func (p *PostgresPool) ReleaseAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	p.mu.Lock()
	conn, held := p.locks[key]
	delete(p.locks, key)
	p.mu.Unlock()
	if !held {
		return false, nil
	}
	defer conn.Release()

	var ok bool
	err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&ok)
	return ok, err
}

func (p *PostgresPool) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	_, err := p.pool.Exec(ctx, `
        INSERT INTO scheduled_jobs (name, last_run_at, last_duration_ms, last_success, last_error)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (name) DO UPDATE SET
            last_run_at=EXCLUDED.last_run_at,
            last_duration_ms=EXCLUDED.last_duration_ms,
            last_success=EXCLUDED.last_success,
            last_error=EXCLUDED.last_error
    `, name, started, dur.Milliseconds(), status, errMsg)
	return err
}

func (p *PostgresPool) ReportPoolMetrics() {
	stat := p.pool.Stat()
	metrics.UpdateDBPoolMetrics("postgrespool",
		float64(stat.TotalConns()),
		float64(stat.IdleConns()),
		float64(stat.AcquiredConns()),
		uint64(stat.AcquireCount()),
	)
}
