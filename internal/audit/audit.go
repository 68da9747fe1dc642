// Package audit is a write-only session-history sink backed by Postgres.
// It never serves reads back to the broker: at-startup state always comes
// from an empty registry (no-persistence-across-restarts), so this package
// exists purely for operators querying history out-of-band.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestrelstream/broker/internal/metrics"
	"github.com/kestrelstream/broker/pkg/models"
)

// Sink wraps a Postgres connection pool scoped to the session_events table.
type Sink struct {
	pool *pgxpool.Pool
}

// Config mirrors config.AuditConfig to avoid an import cycle into the
// config package from here.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New connects to Postgres and verifies connectivity. It does not create
// the session_events table; that is a migration concern outside the
// broker's runtime.
func New(cfg Config) (*Sink, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode, 5,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit database config: %w", err)
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	return &Sink{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Health checks the underlying connection. The /healthz handler does not
// call it.
func (s *Sink) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Record inserts one row per lifecycle transition. Satisfies
// registry.EventSink's no-error signature: failures are recorded in
// metrics rather than propagated, since a write-only audit trail must
// never block session spawn/stop.
func (s *Sink) Record(ctx context.Context, event models.SessionEvent) {
	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	query := `
		INSERT INTO session_events (type, name, stream_key, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.pool.Exec(writeCtx, query, event.Type, event.Name, event.StreamKey, event.Reason, event.Timestamp)
	metrics.RecordAuditWrite(err == nil)
}
