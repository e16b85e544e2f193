// Package prestige reads reputation figures computed by an external
// subsystem. The figures are opaque to the engine: signed numbers, any
// weighting already applied.
package prestige

import (
	"context"
	"fmt"

	"github.com/tabpress/tabledger/internal/pgdb"
)

// Record carries the per-content prestige figures at the time of the
// lookup.
type Record struct {
	// UserID is the content owner at time of publication.
	UserID string

	// TotalTabcoins is the cumulative signed score attributed to the
	// content over its published lifetime.
	TotalTabcoins int64

	// InitialTabcoins is the seed grant credited at first publication.
	InitialTabcoins int64
}

// Gateway supplies prestige figures for contents and users.
type Gateway interface {
	ByContentID(ctx context.Context, contentID string, opts *pgdb.Options) (Record, error)

	// ByUserID returns the user's earnings figure. With isRoot set, the
	// figure is scoped to top-level contributions.
	ByUserID(ctx context.Context, userID string, isRoot bool, opts *pgdb.Options) (int64, error)
}

// querier is the slice of the executor the gateway needs.
type querier interface {
	Query(ctx context.Context, stmt pgdb.Statement, opts *pgdb.Options) (*pgdb.ResultSet, error)
}

// SQLGateway reads prestige figures from the tables maintained by the
// scoring subsystem.
type SQLGateway struct {
	store querier
}

func NewSQLGateway(store querier) *SQLGateway {
	return &SQLGateway{store: store}
}

func (g *SQLGateway) ByContentID(ctx context.Context, contentID string, opts *pgdb.Options) (Record, error) {
	rs, err := g.store.Query(ctx, pgdb.Statement{
		SQL:  `SELECT user_id, total_tabcoins, initial_tabcoins FROM content_prestige WHERE content_id = $1;`,
		Args: []any{contentID},
	}, opts)
	if err != nil {
		return Record{}, err
	}
	if rs.Len() == 0 {
		return Record{}, nil
	}

	row := rs.Rows[0]
	rec := Record{UserID: pgdb.AsString(row[0])}
	if rec.TotalTabcoins, err = pgdb.AsInt64(row[1]); err != nil {
		return Record{}, fmt.Errorf("unexpected total_tabcoins for content %s: %w", contentID, err)
	}
	if rec.InitialTabcoins, err = pgdb.AsInt64(row[2]); err != nil {
		return Record{}, fmt.Errorf("unexpected initial_tabcoins for content %s: %w", contentID, err)
	}
	return rec, nil
}

func (g *SQLGateway) ByUserID(ctx context.Context, userID string, isRoot bool, opts *pgdb.Options) (int64, error) {
	column := "child_earnings"
	if isRoot {
		column = "root_earnings"
	}
	rs, err := g.store.Query(ctx, pgdb.Statement{
		SQL:  fmt.Sprintf(`SELECT %s FROM user_prestige WHERE user_id = $1;`, column),
		Args: []any{userID},
	}, opts)
	if err != nil {
		return 0, err
	}
	if rs.Len() == 0 {
		return 0, nil
	}
	earnings, err := pgdb.AsInt64(rs.Rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("unexpected earnings for user %s: %w", userID, err)
	}
	return earnings, nil
}
