// Package ledger appends immutable balance entries to the append-only
// operations log.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tabpress/tabledger/internal/pgdb"
)

// BalanceType identifies which balance an entry moves.
type BalanceType string

const (
	BalanceUserTabcoin           BalanceType = "user:tabcoin"
	BalanceContentTabcoinInitial BalanceType = "content:tabcoin:initial"
)

// OriginatorType tags the provenance of an entry.
type OriginatorType string

const (
	OriginatorContent OriginatorType = "content"
	OriginatorUser    OriginatorType = "user"
)

// Entry is a single immutable balance change.
type Entry struct {
	BalanceType    BalanceType
	RecipientID    string
	Amount         int64
	OriginatorType OriginatorType
	OriginatorID   string
}

// ErrZeroAmount rejects entries that would not move a balance. The
// engine suppresses these before writing; the writer enforces it as an
// invariant.
var ErrZeroAmount = errors.New("ledger: entry amount must be non-zero")

// Writer appends entries. Idempotency and storage layout are the
// writer's concern, not the engine's.
type Writer interface {
	Create(ctx context.Context, entry Entry, opts *pgdb.Options) error
}

// execer is the slice of the executor the writer needs.
type execer interface {
	Exec(ctx context.Context, stmt pgdb.Statement, opts *pgdb.Options) (int64, error)
	Query(ctx context.Context, stmt pgdb.Statement, opts *pgdb.Options) (*pgdb.ResultSet, error)
}

// SQLWriter appends entries to the balance_operations table.
type SQLWriter struct {
	store execer
}

func NewSQLWriter(store execer) *SQLWriter {
	return &SQLWriter{store: store}
}

func (w *SQLWriter) Create(ctx context.Context, entry Entry, opts *pgdb.Options) error {
	if entry.Amount == 0 {
		return ErrZeroAmount
	}
	_, err := w.store.Exec(ctx, pgdb.Statement{
		SQL: `INSERT INTO balance_operations
		        (id, balance_type, recipient_id, amount, originator_type, originator_id)
		      VALUES ($1, $2, $3, $4, $5, $6);`,
		Args: []any{
			uuid.NewString(),
			string(entry.BalanceType),
			entry.RecipientID,
			entry.Amount,
			string(entry.OriginatorType),
			entry.OriginatorID,
		},
	}, opts)
	return err
}

// BalanceOf sums the append-only log for a recipient.
func (w *SQLWriter) BalanceOf(ctx context.Context, balanceType BalanceType, recipientID string, opts *pgdb.Options) (int64, error) {
	rs, err := w.store.Query(ctx, pgdb.Statement{
		SQL: `SELECT COALESCE(SUM(amount), 0)::bigint FROM balance_operations
		      WHERE balance_type = $1 AND recipient_id = $2;`,
		Args: []any{string(balanceType), recipientID},
	}, opts)
	if err != nil {
		return 0, err
	}
	if rs.Len() == 0 {
		return 0, nil
	}
	total, err := pgdb.AsInt64(rs.Rows[0][0])
	if err != nil {
		return 0, fmt.Errorf("ledger: unexpected balance value: %w", err)
	}
	return total, nil
}
