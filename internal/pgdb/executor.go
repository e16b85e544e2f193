package pgdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Statement is a single SQL statement with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Options alters how a statement is executed. With Tx set, the statement
// runs on the caller's transaction and the executor performs no pool
// traffic; the caller owns the transaction's lifetime.
type Options struct {
	Tx pgx.Tx
}

// ResultSet is an eagerly collected query result, so the underlying
// connection is back in the pool before the caller looks at rows.
type ResultSet struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
}

// Len returns the number of rows.
func (r *ResultSet) Len() int { return len(r.Rows) }

// querier covers both pooled connections and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Executor runs statements against the manager's pool or a supplied
// transaction, converting failures into the structured error taxonomy.
type Executor struct {
	m   *Manager
	log zerolog.Logger
}

func NewExecutor(m *Manager, log zerolog.Logger) *Executor {
	return &Executor{m: m, log: log}
}

// Query executes a statement and collects its rows.
func (e *Executor) Query(ctx context.Context, stmt Statement, opts *Options) (*ResultSet, error) {
	return e.run(ctx, stmt, opts, func(ctx context.Context, q querier) (*ResultSet, error) {
		rows, err := q.Query(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		return collectRows(rows)
	})
}

// Exec executes a statement and returns the affected-row count.
func (e *Executor) Exec(ctx context.Context, stmt Statement, opts *Options) (int64, error) {
	rs, err := e.run(ctx, stmt, opts, func(ctx context.Context, q querier) (*ResultSet, error) {
		tag, err := q.Exec(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			return nil, err
		}
		return &ResultSet{RowsAffected: tag.RowsAffected()}, nil
	})
	if err != nil {
		return 0, err
	}
	return rs.RowsAffected, nil
}

func (e *Executor) run(ctx context.Context, stmt Statement, opts *Options, fn func(context.Context, querier) (*ResultSet, error)) (*ResultSet, error) {
	e.m.cache.countQuery()
	queriesTotal.Inc()

	if opts != nil && opts.Tx != nil {
		rs, err := fn(ctx, opts.Tx)
		if err != nil {
			return nil, e.wrap(err, stmt, "pgdb.Executor.run.tx")
		}
		return rs, nil
	}

	conn, err := e.m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	rs, runErr := fn(ctx, conn)
	pressure := e.m.CheckCapacityPressure(ctx, conn)
	e.m.Release(conn, pressure && e.m.settings.Serverless)

	if runErr != nil {
		return nil, e.wrap(runErr, stmt, "pgdb.Executor.run.pooled")
	}
	return rs, nil
}

// wrap converts a store-level failure into a QueryError and logs it
// unless its code is expected under normal concurrency.
func (e *Executor) wrap(err error, stmt Statement, location string) error {
	qerr := &QueryError{
		Code:      pgCode(err),
		Statement: stmt.SQL,
		Location:  location,
		Cache:     e.m.cache.snapshot(),
		Telemetry: e.m.Telemetry(),
		Err:       err,
	}
	if !expectedCode(qerr.Code, e.m.settings.Serverless) {
		event := e.log.Error().
			Str("code", qerr.Code).
			Str("location", location).
			Str("statement", stmt.SQL).
			Int64("queries", qerr.Cache.Queries).
			Err(err)
		if qerr.Telemetry != nil {
			event = event.
				Int32("total_conns", qerr.Telemetry.TotalConns).
				Int32("idle_conns", qerr.Telemetry.IdleConns).
				Int32("acquired_conns", qerr.Telemetry.AcquiredConns)
		}
		event.Msg("Query failed")
	}
	return qerr
}

func collectRows(rows pgx.Rows) (*ResultSet, error) {
	defer rows.Close()

	fds := rows.FieldDescriptions()
	rs := &ResultSet{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		rs.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.RowsAffected = rows.CommandTag().RowsAffected()
	return rs, nil
}
