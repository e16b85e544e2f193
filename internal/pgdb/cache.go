package pgdb

import (
	"sync"
	"sync/atomic"
	"time"
)

// openedTTL is the freshness window for the active-backend count.
const openedTTL = 5 * time.Second

// pressureRatio is the fraction of usable server connections above which
// capacity pressure is signaled.
const pressureRatio = 0.8

// CacheSnapshot is a point-in-time copy of the connection cache, carried
// by QueryError for diagnostics.
type CacheSnapshot struct {
	MaxConnections      int
	ReservedConnections int
	OpenedConnections   int
	OpenedUpdatedAt     time.Time
	Queries             int64
}

// connectionCache holds server limits and the active-backend count.
// Limits are fetched once per process and never invalidated; the backend
// count is refreshed on a 5-second window. Concurrent first-populates are
// idempotent, last write wins.
type connectionCache struct {
	mu sync.Mutex

	limitsLoaded        bool
	maxConnections      int
	reservedConnections int

	openedConnections int
	openedUpdatedAt   time.Time

	queries atomic.Int64
}

func (c *connectionCache) countQuery() int64 {
	return c.queries.Add(1)
}

func (c *connectionCache) limits() (max, reserved int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxConnections, c.reservedConnections, c.limitsLoaded
}

func (c *connectionCache) setLimits(max, reserved int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxConnections = max
	c.reservedConnections = reserved
	c.limitsLoaded = true
}

func (c *connectionCache) opened(now time.Time) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fresh := !c.openedUpdatedAt.IsZero() && now.Sub(c.openedUpdatedAt) < openedTTL
	return c.openedConnections, fresh
}

func (c *connectionCache) setOpened(opened int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openedConnections = opened
	c.openedUpdatedAt = now
}

func (c *connectionCache) snapshot() CacheSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheSnapshot{
		MaxConnections:      c.maxConnections,
		ReservedConnections: c.reservedConnections,
		OpenedConnections:   c.openedConnections,
		OpenedUpdatedAt:     c.openedUpdatedAt,
		Queries:             c.queries.Load(),
	}
}

// overCapacityThreshold reports whether the opened-backend count is past
// the pressure threshold for the given server limits.
func overCapacityThreshold(opened, maxConnections, reservedConnections int) bool {
	usable := maxConnections - reservedConnections
	if usable <= 0 {
		return false
	}
	return float64(opened) > float64(usable)*pressureRatio
}
