package engine

import (
	"github.com/tabpress/tabledger/internal/content"
	"github.com/tabpress/tabledger/internal/ledger"
	"github.com/tabpress/tabledger/internal/prestige"
)

// contentSeedGrant is credited to every newly published content.
const contentSeedGrant = int64(1)

// debitEntries computes the claw-back for a content leaving the
// published status. When the content earned a positive score, everything
// it earned is taken back; otherwise only the seed grant is. A zero
// computed debit posts nothing.
func debitEntries(old *content.Snapshot, rec prestige.Record) []ledger.Entry {
	var amountToDebit int64
	if rec.TotalTabcoins > 0 {
		amountToDebit = rec.TotalTabcoins
	} else {
		amountToDebit = -rec.InitialTabcoins
	}
	if amountToDebit == 0 {
		return nil
	}
	return []ledger.Entry{{
		BalanceType:    ledger.BalanceUserTabcoin,
		RecipientID:    old.OwnerID,
		Amount:         -amountToDebit,
		OriginatorType: ledger.OriginatorContent,
		OriginatorID:   old.ID,
	}}
}

// creditEntries computes the entries for a newly published content,
// given the owner's (non-negative) earnings figure and the resolved
// parent owner. Bodies under the substance threshold and self-replies
// earn nothing at all; non-content types forfeit the user credit but
// keep the content's own seed grant. Zero amounts are suppressed.
func creditEntries(new *content.Snapshot, userEarnings int64, parentOwnerID string) []ledger.Entry {
	if !content.HasSubstance(new.Body) {
		return nil
	}
	if new.ParentID != "" && parentOwnerID == new.OwnerID {
		return nil
	}

	if new.Type != content.TypeContent {
		userEarnings = 0
	}

	var entries []ledger.Entry
	if userEarnings != 0 {
		entries = append(entries, ledger.Entry{
			BalanceType:    ledger.BalanceUserTabcoin,
			RecipientID:    new.OwnerID,
			Amount:         userEarnings,
			OriginatorType: ledger.OriginatorContent,
			OriginatorID:   new.ID,
		})
	}
	if contentSeedGrant != 0 {
		entries = append(entries, ledger.Entry{
			BalanceType:    ledger.BalanceContentTabcoinInitial,
			RecipientID:    new.ID,
			Amount:         contentSeedGrant,
			OriginatorType: ledger.OriginatorUser,
			OriginatorID:   new.OwnerID,
		})
	}
	return entries
}
