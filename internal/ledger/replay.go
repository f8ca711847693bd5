package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
)

// Report is the outcome of replaying one customer's log.
type Report struct {
	CustomerID      uuid.UUID       `json:"customer_id"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	StoredBalance   decimal.Decimal `json:"stored_balance"`
	Entries         int             `json:"entries"`
	Consistent      bool            `json:"consistent"`
	// BrokenEntryID is the first entry whose snapshot disagrees with the
	// running sum, when there is one.
	BrokenEntryID *uuid.UUID `json:"broken_entry_id,omitempty"`
	Problem       string     `json:"problem,omitempty"`
}

// Replay sums entries (oldest first) from the customer's opening balance and
// checks every balance_after snapshot, the sequence order and the stored
// balance. It never repairs anything.
func Replay(customer models.Customer, entries []models.CreditTransaction) Report {
	report := Report{
		CustomerID:     customer.ID,
		OpeningBalance: money.Round(customer.OpeningBalance),
		StoredBalance:  money.Round(customer.CreditBalance),
		Entries:        len(entries),
		Consistent:     true,
	}

	running := report.OpeningBalance
	var previousSequence int64
	for i := range entries {
		entry := entries[i]
		running = running.Add(money.Round(entry.Amount))
		if report.Consistent && entry.Sequence <= previousSequence {
			report.markBroken(entry.ID, fmt.Sprintf("sequence %d does not follow %d", entry.Sequence, previousSequence))
		}
		if report.Consistent && !money.Round(entry.BalanceAfter).Equal(running) {
			report.markBroken(entry.ID, fmt.Sprintf("balance_after %s differs from running balance %s at sequence %d",
				money.String(entry.BalanceAfter), money.String(running), entry.Sequence))
		}
		previousSequence = entry.Sequence
	}
	report.ReplayedBalance = running

	if report.Consistent && !running.Equal(report.StoredBalance) {
		report.Consistent = false
		report.Problem = fmt.Sprintf("stored balance %s differs from replayed balance %s",
			money.String(report.StoredBalance), money.String(running))
	}
	return report
}

func (r *Report) markBroken(id uuid.UUID, problem string) {
	brokenID := id
	r.Consistent = false
	r.BrokenEntryID = &brokenID
	r.Problem = problem
}
