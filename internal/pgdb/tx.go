package pgdb

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
)

// Tx is a transaction handle holding a pooled connection open across
// multiple statements. The connection is released, with pressure-driven
// eviction, when the transaction finishes.
type Tx struct {
	pgx.Tx
	release  func(ctx context.Context)
	finished atomic.Bool
}

// Begin starts a transaction on a pooled connection acquired through the
// manager's retry policy. Commit or Rollback returns the connection to
// the pool; the usual defer-Rollback-after-Commit pattern is safe.
func (m *Manager) Begin(ctx context.Context) (*Tx, error) {
	conn, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	inner, err := conn.Begin(ctx)
	if err != nil {
		m.Release(conn, false)
		return nil, err
	}
	return &Tx{
		Tx: inner,
		release: func(ctx context.Context) {
			evict := m.CheckCapacityPressure(ctx, conn) && m.settings.Serverless
			m.Release(conn, evict)
		},
	}, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	err := t.Tx.Commit(ctx)
	t.finish(ctx)
	return err
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.Tx.Rollback(ctx)
	t.finish(ctx)
	return err
}

func (t *Tx) finish(ctx context.Context) {
	if t.finished.Swap(true) {
		return
	}
	if t.release != nil {
		t.release(ctx)
	}
}
