// Package database opens the PostgreSQL pool through the pgx stdlib driver
// and applies the embedded schema.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"racepass/internal/platform/config"
	"racepass/migrations"
)

const pingTimeout = 5 * time.Second

// PoolMetrics exports database/sql pool statistics.
type PoolMetrics struct {
	open      prometheus.Gauge
	inUse     prometheus.Gauge
	idle      prometheus.Gauge
	waits     prometheus.Counter
	waitTime  prometheus.Counter
	maxClosed prometheus.Counter
}

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	f := promauto.With(reg)
	return &PoolMetrics{
		open: f.NewGauge(prometheus.GaugeOpts{
			Name: "racepass_db_pool_open_conns",
			Help: "Established connections, in use or idle",
		}),
		inUse: f.NewGauge(prometheus.GaugeOpts{
			Name: "racepass_db_pool_in_use_conns",
			Help: "Connections currently in use",
		}),
		idle: f.NewGauge(prometheus.GaugeOpts{
			Name: "racepass_db_pool_idle_conns",
			Help: "Idle connections",
		}),
		waits: f.NewCounter(prometheus.CounterOpts{
			Name: "racepass_db_pool_waits_total",
			Help: "Connections waited for because the pool was exhausted",
		}),
		waitTime: f.NewCounter(prometheus.CounterOpts{
			Name: "racepass_db_pool_wait_seconds_total",
			Help: "Time spent waiting for a connection",
		}),
		maxClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "racepass_db_pool_lifetime_closed_total",
			Help: "Connections closed on reaching their maximum lifetime",
		}),
	}
}

// Pool wraps a *sql.DB and tracks pool statistics between samples.
type Pool struct {
	db      *sql.DB
	metrics *PoolMetrics

	mu   sync.Mutex
	last sql.DBStats
}

// New opens the pool, pings it and migrates the schema. It returns nil, nil
// when no URL is configured. metrics may be nil.
func New(ctx context.Context, cfg config.DatabaseConfig, metrics *PoolMetrics) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := prepare(ctx, db); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return &Pool{db: db, metrics: metrics}, nil
}

func prepare(ctx context.Context, db *sql.DB) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// DB returns the underlying handle for stores.
func (p *Pool) DB() *sql.DB {
	return p.db
}

func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return errors.New("database not configured")
	}
	return p.db.PingContext(ctx)
}

// RecordPoolStats samples sql.DBStats into the metrics. Counters receive
// the delta since the previous sample.
func (p *Pool) RecordPoolStats() {
	if p == nil || p.metrics == nil {
		return
	}
	stats := p.db.Stats()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.open.Set(float64(stats.OpenConnections))
	p.metrics.inUse.Set(float64(stats.InUse))
	p.metrics.idle.Set(float64(stats.Idle))
	if d := stats.WaitCount - p.last.WaitCount; d > 0 {
		p.metrics.waits.Add(float64(d))
	}
	if d := stats.WaitDuration - p.last.WaitDuration; d > 0 {
		p.metrics.waitTime.Add(d.Seconds())
	}
	if d := stats.MaxLifetimeClosed - p.last.MaxLifetimeClosed; d > 0 {
		p.metrics.maxClosed.Add(float64(d))
	}
	p.last = stats
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
