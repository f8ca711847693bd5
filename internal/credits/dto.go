package credits

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/internal/ledger"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// CreditInput issues credit (the customer owes more).
type CreditInput struct {
	Amount      decimal.Decimal
	OrderID     *uuid.UUID
	OrderNumber *string
	Reason      string
}

// PaymentInput records a free-standing payment. It may push the balance
// below zero, which represents an advance.
type PaymentInput struct {
	Amount          decimal.Decimal
	PaymentMethod   *enums.PaymentMethod
	ReferenceNumber *string
}

// RefundInput returns money to the customer against their balance.
type RefundInput struct {
	Amount          decimal.Decimal
	OrderID         *uuid.UUID
	PaymentMethod   *enums.PaymentMethod
	ReferenceNumber *string
	Reason          string
}

// AdjustInput is an admin correction. Amount is signed.
type AdjustInput struct {
	Amount decimal.Decimal
	Reason string
	Notes  *string
}

// WalletTopUpInput adds prepaid funds to the customer's wallet.
type WalletTopUpInput struct {
	Amount          decimal.Decimal
	PaymentMethod   *enums.PaymentMethod
	ReferenceNumber *string
}

// MutationResult is returned by every balance-changing operation. Amount is
// the magnitude the caller supplied (the signed delta for adjustments).
type MutationResult struct {
	PreviousBalance decimal.Decimal
	Amount          decimal.Decimal
	NewBalance      decimal.Decimal
	Transaction     models.CreditTransaction
}

// WalletResult is returned by a wallet top-up.
type WalletResult struct {
	CustomerID     uuid.UUID
	PreviousWallet decimal.Decimal
	Amount         decimal.Decimal
	WalletBalance  decimal.Decimal
}

// Summary is the customer's balance view with the newest history window.
type Summary struct {
	Customer       models.Customer
	CreditBalance  decimal.Decimal
	TotalCredited  decimal.Decimal
	TotalPaid      decimal.Decimal
	PendingBalance decimal.Decimal
	History        []models.CreditTransaction
}

// HistoryPage is one cursor page of a customer's transactions.
type HistoryPage struct {
	Items      []models.CreditTransaction
	NextCursor string
}

// OutstandingCustomer is one row of the outstanding balance report.
type OutstandingCustomer struct {
	CustomerID  uuid.UUID
	Name        string
	Phone       *string
	FranchiseID *uuid.UUID
	Balance     decimal.Decimal
}

// OutstandingReport lists customers who owe money, largest first.
type OutstandingReport struct {
	Customers        []OutstandingCustomer
	TotalOutstanding decimal.Decimal
}

// ReconcileReport wraps a single customer replay.
type ReconcileReport = ledger.Report
