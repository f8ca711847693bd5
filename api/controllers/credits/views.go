package credits

import (
	"strings"
	"time"

	"github.com/google/uuid"

	internalcredits "github.com/fabzclean/fabzclean-backend/internal/credits"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
)

type addCreditRequest struct {
	Amount      string     `json:"amount" validate:"required,money"`
	OrderID     *uuid.UUID `json:"orderId,omitempty"`
	OrderNumber *string    `json:"orderNumber,omitempty" validate:"omitempty,max=64"`
	Reason      string     `json:"reason,omitempty" validate:"max=500"`
}

type paymentRequest struct {
	Amount          string  `json:"amount" validate:"required,money"`
	PaymentMethod   *string `json:"paymentMethod,omitempty"`
	ReferenceNumber *string `json:"referenceNumber,omitempty" validate:"omitempty,max=128"`
}

type refundRequest struct {
	Amount          string     `json:"amount" validate:"required,money"`
	OrderID         *uuid.UUID `json:"orderId,omitempty"`
	PaymentMethod   *string    `json:"paymentMethod,omitempty"`
	ReferenceNumber *string    `json:"referenceNumber,omitempty" validate:"omitempty,max=128"`
	Reason          string     `json:"reason,omitempty" validate:"max=500"`
}

type adjustRequest struct {
	Amount string  `json:"amount" validate:"required,signed_money"`
	Reason string  `json:"reason" validate:"required,max=500"`
	Notes  *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type topUpRequest struct {
	Amount          string  `json:"amount" validate:"required,money"`
	PaymentMethod   *string `json:"paymentMethod,omitempty"`
	ReferenceNumber *string `json:"referenceNumber,omitempty" validate:"omitempty,max=128"`
}

type transactionView struct {
	ID              uuid.UUID  `json:"id"`
	CustomerID      uuid.UUID  `json:"customerId"`
	FranchiseID     *uuid.UUID `json:"franchiseId,omitempty"`
	OrderID         *uuid.UUID `json:"orderId,omitempty"`
	OrderNumber     *string    `json:"orderNumber,omitempty"`
	Type            string     `json:"type"`
	Amount          string     `json:"amount"`
	BalanceAfter    string     `json:"balanceAfter"`
	PaymentMethod   *string    `json:"paymentMethod,omitempty"`
	ReferenceNumber *string    `json:"referenceNumber,omitempty"`
	Reason          string     `json:"reason"`
	Notes           *string    `json:"notes,omitempty"`
	RecordedBy      uuid.UUID  `json:"recordedBy"`
	RecordedByName  string     `json:"recordedByName"`
	Sequence        int64      `json:"sequence"`
	TransactionDate time.Time  `json:"transactionDate"`
}

func newTransactionView(tx models.CreditTransaction) transactionView {
	view := transactionView{
		ID:              tx.ID,
		CustomerID:      tx.CustomerID,
		FranchiseID:     tx.FranchiseID,
		OrderID:         tx.OrderID,
		OrderNumber:     tx.OrderNumber,
		Type:            tx.Type.String(),
		Amount:          money.String(tx.Amount),
		BalanceAfter:    money.String(tx.BalanceAfter),
		ReferenceNumber: tx.ReferenceNumber,
		Reason:          tx.Reason,
		Notes:           tx.Notes,
		RecordedBy:      tx.RecordedBy,
		RecordedByName:  tx.RecordedByName,
		Sequence:        tx.Sequence,
		TransactionDate: tx.TransactionDate,
	}
	if tx.PaymentMethod != nil {
		method := tx.PaymentMethod.String()
		view.PaymentMethod = &method
	}
	return view
}

func newTransactionViews(rows []models.CreditTransaction) []transactionView {
	views := make([]transactionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, newTransactionView(row))
	}
	return views
}

// mutationView keys the amount the way each endpoint names it: amount for
// credits, amountPaid for payments, amountRefunded for refunds and
// adjustment for admin corrections.
func mutationView(result *internalcredits.MutationResult, amountKey string) map[string]any {
	return map[string]any{
		"previousBalance": money.String(result.PreviousBalance),
		amountKey:         money.String(result.Amount),
		"newBalance":      money.String(result.NewBalance),
		"transaction":     newTransactionView(result.Transaction),
	}
}

type walletView struct {
	CustomerID     uuid.UUID `json:"customerId"`
	PreviousWallet string    `json:"previousWalletBalance"`
	Amount         string    `json:"amount"`
	WalletBalance  string    `json:"walletBalance"`
}

type summaryView struct {
	CustomerID     uuid.UUID         `json:"customerId"`
	Name           string            `json:"name"`
	Phone          *string           `json:"phone,omitempty"`
	FranchiseID    *uuid.UUID        `json:"franchiseId,omitempty"`
	CreditBalance  string            `json:"creditBalance"`
	WalletBalance  string            `json:"walletBalance"`
	TotalCredited  string            `json:"totalCredited"`
	TotalPaid      string            `json:"totalPaid"`
	PendingBalance string            `json:"pendingBalance"`
	History        []transactionView `json:"history"`
}

func newSummaryView(summary *internalcredits.Summary) summaryView {
	return summaryView{
		CustomerID:     summary.Customer.ID,
		Name:           summary.Customer.Name,
		Phone:          summary.Customer.Phone,
		FranchiseID:    summary.Customer.FranchiseID,
		CreditBalance:  money.String(summary.CreditBalance),
		WalletBalance:  money.String(summary.Customer.WalletBalance),
		TotalCredited:  money.String(summary.TotalCredited),
		TotalPaid:      money.String(summary.TotalPaid),
		PendingBalance: money.String(summary.PendingBalance),
		History:        newTransactionViews(summary.History),
	}
}

type outstandingRow struct {
	CustomerID  uuid.UUID  `json:"customerId"`
	Name        string     `json:"name"`
	Phone       *string    `json:"phone,omitempty"`
	FranchiseID *uuid.UUID `json:"franchiseId,omitempty"`
	Balance     string     `json:"balance"`
}

type outstandingView struct {
	Customers        []outstandingRow `json:"customers"`
	Count            int              `json:"count"`
	TotalOutstanding string           `json:"totalOutstanding"`
}

func newOutstandingView(report *internalcredits.OutstandingReport) outstandingView {
	rows := make([]outstandingRow, 0, len(report.Customers))
	for _, c := range report.Customers {
		rows = append(rows, outstandingRow{
			CustomerID:  c.CustomerID,
			Name:        c.Name,
			Phone:       c.Phone,
			FranchiseID: c.FranchiseID,
			Balance:     money.String(c.Balance),
		})
	}
	return outstandingView{
		Customers:        rows,
		Count:            len(rows),
		TotalOutstanding: money.String(report.TotalOutstanding),
	}
}

type reconcileView struct {
	CustomerID      uuid.UUID  `json:"customerId"`
	OpeningBalance  string     `json:"openingBalance"`
	ReplayedBalance string     `json:"replayedBalance"`
	StoredBalance   string     `json:"storedBalance"`
	Entries         int        `json:"entries"`
	Consistent      bool       `json:"consistent"`
	BrokenEntryID   *uuid.UUID `json:"brokenEntryId,omitempty"`
	Problem         string     `json:"problem,omitempty"`
}

func newReconcileView(report *internalcredits.ReconcileReport) reconcileView {
	return reconcileView{
		CustomerID:      report.CustomerID,
		OpeningBalance:  money.String(report.OpeningBalance),
		ReplayedBalance: money.String(report.ReplayedBalance),
		StoredBalance:   money.String(report.StoredBalance),
		Entries:         report.Entries,
		Consistent:      report.Consistent,
		BrokenEntryID:   report.BrokenEntryID,
		Problem:         report.Problem,
	}
}

// paymentMethod passes the raw value through; the service validates it.
func paymentMethod(raw *string) *enums.PaymentMethod {
	if raw == nil {
		return nil
	}
	method := enums.PaymentMethod(strings.TrimSpace(*raw))
	return &method
}
