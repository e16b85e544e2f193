// Package engine decides and applies the TabCoin ledger effects of a
// content lifecycle transition.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/tabpress/tabledger/internal/content"
	"github.com/tabpress/tabledger/internal/ledger"
	"github.com/tabpress/tabledger/internal/pgdb"
	"github.com/tabpress/tabledger/internal/prestige"
)

// ForbiddenTransitionError is a business-rule rejection, not a system
// fault. No entries are written for the rejected transition.
type ForbiddenTransitionError struct {
	ContentID    string
	OwnerID      string
	UserEarnings int64
}

func (e *ForbiddenTransitionError) Error() string {
	return fmt.Sprintf("forbidden transition for content %s: cannot publish while other poorly-rated publications by user %s remain undeleted (earnings=%d)",
		e.ContentID, e.OwnerID, e.UserEarnings)
}

// Store is the slice of the query executor the engine needs for direct
// lookups.
type Store interface {
	Query(ctx context.Context, stmt pgdb.Statement, opts *pgdb.Options) (*pgdb.ResultSet, error)
}

// Engine computes and applies credit and debit entries for content
// lifecycle transitions. All writes happen inside the caller-supplied
// transaction; the transaction is the unit of atomicity.
type Engine struct {
	store    Store
	prestige prestige.Gateway
	ledger   ledger.Writer
	log      zerolog.Logger
}

func New(store Store, gateway prestige.Gateway, writer ledger.Writer, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		prestige: gateway,
		ledger:   writer,
		log:      log,
	}
}

// Transition evaluates the debit decision against the old snapshot and
// the credit decision against the new one, in that order, writing the
// resulting entries on tx. The two decisions are evaluated
// independently. old is nil on creation.
func (e *Engine) Transition(ctx context.Context, old, new *content.Snapshot, tx pgx.Tx) error {
	if new == nil {
		return errors.New("engine: new snapshot is required")
	}
	opts := &pgdb.Options{Tx: tx}

	phase := Classify(old, new)
	e.log.Debug().
		Str("content_id", new.ID).
		Str("phase", string(phase)).
		Msg("Evaluating transition")

	if err := e.debit(ctx, old, new, opts); err != nil {
		return err
	}
	return e.credit(ctx, old, new, opts)
}

func (e *Engine) debit(ctx context.Context, old, new *content.Snapshot, opts *pgdb.Options) error {
	if !debitDue(old, new) {
		return nil
	}

	rec, err := e.prestige.ByContentID(ctx, old.ID, opts)
	if err != nil {
		return err
	}
	for _, entry := range debitEntries(old, rec) {
		if err := e.ledger.Create(ctx, entry, opts); err != nil {
			return err
		}
		e.log.Info().
			Str("content_id", old.ID).
			Str("recipient_id", entry.RecipientID).
			Int64("amount", entry.Amount).
			Msg("Posted debit entry")
	}
	return nil
}

func (e *Engine) credit(ctx context.Context, old, new *content.Snapshot, opts *pgdb.Options) error {
	if !creditDue(old, new) {
		return nil
	}

	userEarnings, err := e.prestige.ByUserID(ctx, new.OwnerID, true, opts)
	if err != nil {
		return err
	}
	if userEarnings < 0 {
		return &ForbiddenTransitionError{
			ContentID:    new.ID,
			OwnerID:      new.OwnerID,
			UserEarnings: userEarnings,
		}
	}

	parentOwnerID := new.ParentOwnerID
	if new.ParentID != "" && parentOwnerID == "" && content.HasSubstance(new.Body) {
		parentOwnerID, err = e.lookupParentOwner(ctx, new.ParentID, opts)
		if err != nil {
			return err
		}
	}

	for _, entry := range creditEntries(new, userEarnings, parentOwnerID) {
		if err := e.ledger.Create(ctx, entry, opts); err != nil {
			return err
		}
		e.log.Info().
			Str("content_id", new.ID).
			Str("balance_type", string(entry.BalanceType)).
			Str("recipient_id", entry.RecipientID).
			Int64("amount", entry.Amount).
			Msg("Posted credit entry")
	}
	return nil
}

// lookupParentOwner resolves the parent's owner on the caller's
// transaction when the snapshot does not carry it.
func (e *Engine) lookupParentOwner(ctx context.Context, parentID string, opts *pgdb.Options) (string, error) {
	rs, err := e.store.Query(ctx, pgdb.Statement{
		SQL:  `SELECT owner_id FROM contents WHERE id = $1;`,
		Args: []any{parentID},
	}, opts)
	if err != nil {
		return "", err
	}
	if rs.Len() == 0 {
		return "", nil
	}
	return pgdb.AsString(rs.Rows[0][0]), nil
}
