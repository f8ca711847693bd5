package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/internal/access"
	"github.com/fabzclean/fabzclean-backend/internal/customers"
	"github.com/fabzclean/fabzclean-backend/internal/ledger"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
)

// Entry is a ledger mutation request. Amount is a positive magnitude for
// credit, payment and refund; for adjustment it is the signed delta.
type Entry struct {
	CustomerID      uuid.UUID
	Type            enums.TransactionType
	Amount          decimal.Decimal
	OrderID         *uuid.UUID
	OrderNumber     *string
	PaymentMethod   *enums.PaymentMethod
	ReferenceNumber *string
	Reason          string
	Notes           *string
	Actor           access.Actor
}

// Applied describes a committed ledger entry.
type Applied struct {
	Customer        models.Customer
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Transaction     models.CreditTransaction
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Engine is the single writer of customer credit balances. Every call runs
// inside the caller's transaction: lock the customer, compute the signed
// balance, compare-and-swap it, then append the transaction row.
type Engine struct {
	customers customers.Repository
	ledger    ledger.Repository
	outbox    outboxEmitter
	now       func() time.Time
}

// NewEngine wires the ledger engine.
func NewEngine(customerRepo customers.Repository, ledgerRepo ledger.Repository, emitter outboxEmitter) (*Engine, error) {
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Engine{
		customers: customerRepo,
		ledger:    ledgerRepo,
		outbox:    emitter,
		now:       time.Now,
	}, nil
}

// Apply locks the customer row and applies entry.
func (e *Engine) Apply(ctx context.Context, tx *gorm.DB, entry Entry) (*Applied, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger entry requires a transaction")
	}
	customer, err := e.LockCustomer(ctx, tx, entry.CustomerID)
	if err != nil {
		return nil, err
	}
	return e.ApplyLocked(ctx, tx, customer, entry)
}

// LockCustomer reads the customer FOR UPDATE and maps a missing row to 404.
func (e *Engine) LockCustomer(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) (*models.Customer, error) {
	customer, err := e.customers.WithTx(tx).FindForUpdate(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer")
	}
	return customer, nil
}

// ApplyLocked applies entry to a customer already locked by tx.
func (e *Engine) ApplyLocked(ctx context.Context, tx *gorm.DB, customer *models.Customer, entry Entry) (*Applied, error) {
	delta, err := SignedAmount(entry.Type, entry.Amount)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(entry.Reason)
	if entry.Type == enums.TransactionTypeAdjustment && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required for adjustments")
	}
	if reason == "" {
		reason = defaultReason(entry)
	}
	if entry.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	previous := money.Round(customer.CreditBalance)
	next := previous.Add(delta)
	if !money.WithinLimit(next) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "resulting balance would exceed %s", money.String(money.Limit))
	}

	version, err := e.customers.WithTx(tx).UpdateCreditBalance(ctx, customer.ID, customer.BalanceVersion, next)
	if err != nil {
		if errors.Is(err, customers.ErrVersionConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "customer balance changed concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update customer balance")
	}

	now := e.now().UTC()
	row := models.CreditTransaction{
		ID:              uuid.New(),
		CustomerID:      customer.ID,
		FranchiseID:     customer.FranchiseID,
		OrderID:         entry.OrderID,
		OrderNumber:     entry.OrderNumber,
		Type:            entry.Type,
		Amount:          delta,
		BalanceAfter:    next,
		PaymentMethod:   entry.PaymentMethod,
		ReferenceNumber: entry.ReferenceNumber,
		Reason:          reason,
		Notes:           entry.Notes,
		RecordedBy:      entry.Actor.UserID,
		RecordedByName:  entry.Actor.DisplayName(),
		Sequence:        version,
		TransactionDate: now,
		CreatedAt:       now,
	}
	if err := e.ledger.WithTx(tx).Create(ctx, &row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append credit transaction")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventLedgerEntryApplied,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   customer.ID,
		Actor:         entry.Actor.Ref(),
		OccurredAt:    now,
		Data: payloads.LedgerEntryAppliedEvent{
			TransactionID: row.ID,
			CustomerID:    customer.ID,
			FranchiseID:   customer.FranchiseID,
			OrderID:       row.OrderID,
			Type:          row.Type,
			Amount:        money.String(row.Amount),
			BalanceAfter:  money.String(row.BalanceAfter),
			Sequence:      row.Sequence,
		},
	}
	if err := e.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue ledger event")
	}

	customer.CreditBalance = next
	customer.BalanceVersion = version

	return &Applied{
		Customer:        *customer,
		PreviousBalance: previous,
		NewBalance:      next,
		Transaction:     row,
	}, nil
}

// SignedAmount converts an intent type and amount into the stored delta:
// credit is positive, payment and refund are negative, adjustment is kept
// as given.
func SignedAmount(kind enums.TransactionType, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = money.Round(amount)
	switch kind {
	case enums.TransactionTypeCredit:
		if !amount.IsPositive() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be greater than zero")
		}
		return amount, nil
	case enums.TransactionTypePayment, enums.TransactionTypeRefund:
		if !amount.IsPositive() {
			return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeValidation, "%s amount must be greater than zero", kind)
		}
		return amount.Neg(), nil
	case enums.TransactionTypeAdjustment:
		if amount.IsZero() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount must not be zero")
		}
		return amount, nil
	default:
		return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown transaction type %q", kind)
	}
}

func defaultReason(entry Entry) string {
	switch entry.Type {
	case enums.TransactionTypeCredit:
		if entry.OrderNumber != nil && *entry.OrderNumber != "" {
			return "Credit for order " + *entry.OrderNumber
		}
		return "Credit issued"
	case enums.TransactionTypePayment:
		method := enums.PaymentMethodCash
		if entry.PaymentMethod != nil {
			method = *entry.PaymentMethod
		}
		if entry.OrderNumber != nil && *entry.OrderNumber != "" {
			return fmt.Sprintf("Payment for order %s via %s", *entry.OrderNumber, method)
		}
		return "Payment received via " + method.String()
	case enums.TransactionTypeRefund:
		return "Refund issued"
	default:
		return string(entry.Type)
	}
}
