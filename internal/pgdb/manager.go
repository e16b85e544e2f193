// Package pgdb owns the PostgreSQL access layer: a lazily constructed
// bounded connection pool, bounded-retry acquisition, capacity-pressure
// detection against the server's connection ceiling, and a query
// executor with a structured error taxonomy.
package pgdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tabpress/tabledger/internal/retry"
)

// Settings configures the connection resource manager.
type Settings struct {
	DSN      string
	Database string

	// MaxConns overrides the deployment-derived pool size when > 0.
	MaxConns       int32
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration

	// AllowInsecureTLS relaxes certificate verification. It is never
	// honored for long-lived deployments.
	AllowInsecureTLS bool

	// Serverless marks a short-lived execution environment: a tiny pool
	// and aggressive eviction under capacity pressure.
	Serverless bool

	// BuildTime marks the bootstrap phase, where the backing store may
	// not be reachable yet.
	BuildTime bool
}

func (s Settings) withDefaults() Settings {
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = 10 * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = 30 * time.Second
	}
	return s
}

func (s Settings) poolSize() int32 {
	if s.MaxConns > 0 {
		return s.MaxConns
	}
	if s.Serverless {
		return 1
	}
	return 30
}

// acquirePolicy is the retry policy for pooled acquisition: a single
// attempt in normal operation, up to 12 during the build phase.
func (s Settings) acquirePolicy() retry.Policy {
	attempts := 1
	if s.BuildTime {
		attempts = 12
	}
	return retry.Policy{
		MaxAttempts:   attempts,
		InitialDelay:  150 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// directPolicy is the retry policy for non-pooled connections: many
// attempts, no backoff between them.
func directPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   50,
		InitialDelay:  0,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}
}

// PoolTelemetry is a snapshot of pool counters, attached to errors and
// retry logs so exhaustion can be diagnosed without re-running.
type PoolTelemetry struct {
	TotalConns        int32
	IdleConns         int32
	AcquiredConns     int32
	MaxConns          int32
	EmptyAcquireCount int64
}

func telemetryFrom(stat *pgxpool.Stat) PoolTelemetry {
	return PoolTelemetry{
		TotalConns:        stat.TotalConns(),
		IdleConns:         stat.IdleConns(),
		AcquiredConns:     stat.AcquiredConns(),
		MaxConns:          stat.MaxConns(),
		EmptyAcquireCount: stat.EmptyAcquireCount(),
	}
}

// Manager owns the process-wide connection pool and the connection
// cache. It is shared by all concurrent transitions; the pool itself is
// internally synchronized by pgx.
type Manager struct {
	settings Settings
	log      zerolog.Logger
	cache    connectionCache

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewManager creates a manager. The pool is constructed lazily on first
// use.
func NewManager(settings Settings, log zerolog.Logger) *Manager {
	return &Manager{
		settings: settings.withDefaults(),
		log:      log,
	}
}

// Pool returns the shared pool, creating it on first call.
func (m *Manager) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool != nil {
		return m.pool, nil
	}

	cfg, err := pgxpool.ParseConfig(m.settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}
	cfg.MaxConns = m.settings.poolSize()
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = m.settings.IdleTimeout
	cfg.ConnConfig.ConnectTimeout = m.settings.ConnectTimeout
	if m.settings.AllowInsecureTLS && !m.isLongLived() && cfg.ConnConfig.TLSConfig != nil {
		cfg.ConnConfig.TLSConfig.InsecureSkipVerify = true
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	m.pool = pool
	registerPoolMetrics(pool)

	m.log.Info().
		Int32("max_conns", cfg.MaxConns).
		Dur("connect_timeout", m.settings.ConnectTimeout).
		Dur("idle_timeout", m.settings.IdleTimeout).
		Bool("serverless", m.settings.Serverless).
		Msg("Connection pool created")

	return pool, nil
}

func (m *Manager) isLongLived() bool {
	return !m.settings.Serverless && !m.settings.BuildTime
}

// Acquire returns a pooled connection, retrying transient failures per
// the deployment's acquisition policy. Exhaustion surfaces as an
// AcquisitionError carrying pool telemetry and the attempt count.
func (m *Manager) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	pool, err := m.Pool(ctx)
	if err != nil {
		return nil, err
	}
	return m.acquire(ctx,
		func(ctx context.Context) (*pgxpool.Conn, error) { return pool.Acquire(ctx) },
		func() PoolTelemetry { return telemetryFrom(pool.Stat()) })
}

func (m *Manager) acquire(ctx context.Context, acquire func(context.Context) (*pgxpool.Conn, error), telemetry func() PoolTelemetry) (*pgxpool.Conn, error) {
	policy := m.settings.acquirePolicy()
	observe := func(attempt int, delay time.Duration, err error) {
		acquireRetriesTotal.Inc()
		t := telemetry()
		m.log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Dur("retry_in", delay).
			Int32("total_conns", t.TotalConns).
			Int32("idle_conns", t.IdleConns).
			Int32("acquired_conns", t.AcquiredConns).
			Int32("max_conns", t.MaxConns).
			Err(err).
			Msg("Connection acquisition failed, retrying")
	}

	conn, err := retry.DoValue(ctx, policy, observe, acquire)
	if err != nil {
		acquisitionFailuresTotal.Inc()
		return nil, &AcquisitionError{
			Attempts:  policy.MaxAttempts,
			Telemetry: telemetry(),
			Err:       err,
		}
	}
	return conn, nil
}

// Release returns a connection to the pool. With evict set, the
// underlying connection is discarded instead of reused, shedding load
// when the server is near its connection ceiling.
func (m *Manager) Release(conn *pgxpool.Conn, evict bool) {
	if conn == nil {
		return
	}
	if evict {
		evictionsTotal.Inc()
		// A closed connection is destroyed on release instead of
		// returning to the pool.
		_ = conn.Conn().Close(context.Background())
	}
	conn.Release()
}

// OpenDirect opens a dedicated connection outside the pool. The caller
// owns closing it; the manager does not track its lifetime.
func (m *Manager) OpenDirect(ctx context.Context) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(m.settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}
	cfg.ConnectTimeout = m.settings.ConnectTimeout
	if m.settings.AllowInsecureTLS && !m.isLongLived() && cfg.TLSConfig != nil {
		cfg.TLSConfig.InsecureSkipVerify = true
	}

	policy := directPolicy()
	observe := func(attempt int, delay time.Duration, err error) {
		m.log.Warn().
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Err(err).
			Msg("Direct connection failed, retrying")
	}

	return retry.DoValue(ctx, policy, observe, func(ctx context.Context) (*pgx.Conn, error) {
		return pgx.ConnectConfig(ctx, cfg)
	})
}

// Ping verifies the backing store is reachable through the pool.
func (m *Manager) Ping(ctx context.Context) error {
	pool, err := m.Pool(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Telemetry returns current pool counters, or nil when the pool has not
// been created yet.
func (m *Manager) Telemetry() *PoolTelemetry {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	if pool == nil {
		return nil
	}
	t := telemetryFrom(pool.Stat())
	return &t
}

// Snapshot returns a copy of the connection cache state.
func (m *Manager) Snapshot() CacheSnapshot {
	return m.cache.snapshot()
}

// Serverless reports whether the manager runs in a short-lived
// deployment.
func (m *Manager) Serverless() bool {
	return m.settings.Serverless
}

// CheckCapacityPressure reports whether the server is near its
// connection ceiling: opened backends above 80% of usable connections.
// Server limits are fetched once per process; the backend count is
// cached for 5 seconds. The check is skipped entirely during the build
// phase and while the pool is saturated, to avoid amplifying pressure
// with extra queries. A connection reset during the check counts as
// pressure rather than propagating.
func (m *Manager) CheckCapacityPressure(ctx context.Context, conn *pgxpool.Conn) bool {
	if m.settings.BuildTime || conn == nil {
		return false
	}
	if t := m.Telemetry(); t != nil && t.AcquiredConns >= t.MaxConns && t.IdleConns == 0 {
		return false
	}
	return m.capacityPressure(ctx, conn)
}

// capacityQuerier is the slice of a pooled connection the pressure
// check needs.
type capacityQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *Manager) capacityPressure(ctx context.Context, conn capacityQuerier) bool {
	maxConns, reserved, ok := m.cache.limits()
	if !ok {
		var err error
		maxConns, reserved, err = queryServerLimits(ctx, conn)
		if err != nil {
			if isConnectionReset(err) {
				pressureEventsTotal.Inc()
				return true
			}
			m.log.Warn().Err(err).Msg("Failed to read server connection limits")
			return false
		}
		m.cache.setLimits(maxConns, reserved)
	}

	now := time.Now()
	opened, fresh := m.cache.opened(now)
	if !fresh {
		var err error
		opened, err = queryOpenedConnections(ctx, conn, m.settings.Database)
		if err != nil {
			if isConnectionReset(err) {
				pressureEventsTotal.Inc()
				return true
			}
			m.log.Warn().Err(err).Msg("Failed to count opened connections")
			return false
		}
		m.cache.setOpened(opened, now)
	}

	if overCapacityThreshold(opened, maxConns, reserved) {
		pressureEventsTotal.Inc()
		m.log.Warn().
			Int("opened", opened).
			Int("max_connections", maxConns).
			Int("reserved_connections", reserved).
			Msg("Capacity pressure detected")
		return true
	}
	return false
}

func queryServerLimits(ctx context.Context, conn capacityQuerier) (maxConns, reserved int, err error) {
	rows, err := conn.Query(ctx,
		`SELECT name, setting FROM pg_settings WHERE name IN ('max_connections', 'superuser_reserved_connections');`)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var name, setting string
		if err := rows.Scan(&name, &setting); err != nil {
			return 0, 0, err
		}
		var value int
		if _, err := fmt.Sscanf(setting, "%d", &value); err != nil {
			return 0, 0, fmt.Errorf("unexpected setting %q for %s: %w", setting, name, err)
		}
		switch name {
		case "max_connections":
			maxConns = value
		case "superuser_reserved_connections":
			reserved = value
		}
	}
	return maxConns, reserved, rows.Err()
}

func queryOpenedConnections(ctx context.Context, conn capacityQuerier, database string) (int, error) {
	var opened int
	err := conn.QueryRow(ctx,
		`SELECT count(*)::int FROM pg_stat_activity WHERE datname = $1;`, database).Scan(&opened)
	return opened, err
}
