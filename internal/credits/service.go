// Package credits implements the customer credit ledger: issuing credit,
// recording payments and refunds, admin adjustments, wallet top-ups, and the
// read models built on the transaction log.
package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/internal/access"
	"github.com/fabzclean/fabzclean-backend/internal/audit"
	"github.com/fabzclean/fabzclean-backend/internal/customers"
	"github.com/fabzclean/fabzclean-backend/internal/ledger"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/metrics"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
	"github.com/fabzclean/fabzclean-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the credit ledger operations.
type Service interface {
	IssueCredit(ctx context.Context, actor access.Actor, customerID uuid.UUID, input CreditInput) (*MutationResult, error)
	RecordPayment(ctx context.Context, actor access.Actor, customerID uuid.UUID, input PaymentInput) (*MutationResult, error)
	Refund(ctx context.Context, actor access.Actor, customerID uuid.UUID, input RefundInput) (*MutationResult, error)
	Adjust(ctx context.Context, actor access.Actor, customerID uuid.UUID, input AdjustInput) (*MutationResult, error)
	TopUpWallet(ctx context.Context, actor access.Actor, customerID uuid.UUID, input WalletTopUpInput) (*WalletResult, error)
	Summary(ctx context.Context, actor access.Actor, customerID uuid.UUID, historyLimit int) (*Summary, error)
	History(ctx context.Context, actor access.Actor, customerID uuid.UUID, params pagination.Params) (*HistoryPage, error)
	Outstanding(ctx context.Context, actor access.Actor, franchiseID *uuid.UUID) (*OutstandingReport, error)
	Reconcile(ctx context.Context, actor access.Actor, customerID uuid.UUID) (*ReconcileReport, error)
}

// ServiceParams wires the credit service.
type ServiceParams struct {
	Tx        txRunner
	Engine    *Engine
	Customers customers.Repository
	Ledger    ledger.Repository
	Audit     audit.Recorder
	Outbox    outboxEmitter
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Config    config.LedgerConfig
}

type service struct {
	tx        txRunner
	engine    *Engine
	customers customers.Repository
	ledger    ledger.Repository
	audit     audit.Recorder
	outbox    outboxEmitter
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	cfg       config.LedgerConfig
}

// NewService builds the credit service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("ledger engine required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.HistoryDefaultLimit <= 0 {
		cfg.HistoryDefaultLimit = pagination.DefaultLimit
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit || cfg.HistoryMaxLimit > pagination.MaxLimit {
		cfg.HistoryMaxLimit = pagination.MaxLimit
	}
	return &service{
		tx:        params.Tx,
		engine:    params.Engine,
		customers: params.Customers,
		ledger:    params.Ledger,
		audit:     params.Audit,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		cfg:       cfg,
	}, nil
}

func (s *service) IssueCredit(ctx context.Context, actor access.Actor, customerID uuid.UUID, input CreditInput) (*MutationResult, error) {
	entry := Entry{
		CustomerID:  customerID,
		Type:        enums.TransactionTypeCredit,
		Amount:      input.Amount,
		OrderID:     input.OrderID,
		OrderNumber: input.OrderNumber,
		Reason:      input.Reason,
		Actor:       actor,
	}
	return s.mutate(ctx, actor, entry, access.CapabilityMutate, enums.AuditActionCreditAdd, func(applied *Applied) map[string]any {
		details := baseDetails(applied)
		details["amount"] = money.String(applied.Transaction.Amount)
		details["reason"] = applied.Transaction.Reason
		if input.OrderID != nil {
			details["orderId"] = input.OrderID.String()
		}
		if input.OrderNumber != nil {
			details["orderNumber"] = *input.OrderNumber
		}
		return details
	})
}

func (s *service) RecordPayment(ctx context.Context, actor access.Actor, customerID uuid.UUID, input PaymentInput) (*MutationResult, error) {
	method, err := freeStandingMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}
	entry := Entry{
		CustomerID:      customerID,
		Type:            enums.TransactionTypePayment,
		Amount:          input.Amount,
		PaymentMethod:   &method,
		ReferenceNumber: input.ReferenceNumber,
		Actor:           actor,
	}
	return s.mutate(ctx, actor, entry, access.CapabilityMutate, enums.AuditActionCreditPayment, func(applied *Applied) map[string]any {
		details := baseDetails(applied)
		details["amountPaid"] = money.String(applied.Transaction.Amount.Neg())
		details["paymentMethod"] = method
		if input.ReferenceNumber != nil {
			details["referenceNumber"] = *input.ReferenceNumber
		}
		return details
	})
}

func (s *service) Refund(ctx context.Context, actor access.Actor, customerID uuid.UUID, input RefundInput) (*MutationResult, error) {
	if input.PaymentMethod != nil {
		if _, err := freeStandingMethod(input.PaymentMethod); err != nil {
			return nil, err
		}
	}
	entry := Entry{
		CustomerID:      customerID,
		Type:            enums.TransactionTypeRefund,
		Amount:          input.Amount,
		OrderID:         input.OrderID,
		PaymentMethod:   input.PaymentMethod,
		ReferenceNumber: input.ReferenceNumber,
		Reason:          input.Reason,
		Actor:           actor,
	}
	return s.mutate(ctx, actor, entry, access.CapabilityMutate, enums.AuditActionCreditRefund, func(applied *Applied) map[string]any {
		details := baseDetails(applied)
		details["amountRefunded"] = money.String(applied.Transaction.Amount.Neg())
		details["reason"] = applied.Transaction.Reason
		if input.OrderID != nil {
			details["orderId"] = input.OrderID.String()
		}
		return details
	})
}

func (s *service) Adjust(ctx context.Context, actor access.Actor, customerID uuid.UUID, input AdjustInput) (*MutationResult, error) {
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required for adjustments")
	}
	entry := Entry{
		CustomerID: customerID,
		Type:       enums.TransactionTypeAdjustment,
		Amount:     input.Amount,
		Reason:     input.Reason,
		Notes:      input.Notes,
		Actor:      actor,
	}
	result, err := s.mutate(ctx, actor, entry, access.CapabilityAdjust, enums.AuditActionAdminAdjustment, func(applied *Applied) map[string]any {
		details := baseDetails(applied)
		details["adjustment"] = money.String(applied.Transaction.Amount)
		details["reason"] = applied.Transaction.Reason
		if input.Notes != nil {
			details["notes"] = *input.Notes
		}
		return details
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":            "ledger.admin_adjustment",
		"customer_id":      customerID.String(),
		"adjustment":       money.String(result.Amount),
		"previous_balance": money.String(result.PreviousBalance),
		"new_balance":      money.String(result.NewBalance),
		"reason":           input.Reason,
	})
	s.logg.Warn(logCtx, "admin credit adjustment applied")
	return result, nil
}

type detailsFunc func(applied *Applied) map[string]any

// mutate runs one ledger entry plus its audit record as a unit of work,
// retrying when the balance CAS loses a race.
func (s *service) mutate(ctx context.Context, actor access.Actor, entry Entry, capability access.Capability, action enums.AuditAction, details detailsFunc) (*MutationResult, error) {
	if entry.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if _, err := SignedAmount(entry.Type, entry.Amount); err != nil {
		return nil, err
	}

	var applied *Applied
	err := s.withRetry(ctx, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			customer, err := s.engine.LockCustomer(ctx, tx, entry.CustomerID)
			if err != nil {
				return err
			}
			if err := access.Authorize(actor, customer.FranchiseID, capability); err != nil {
				return err
			}
			result, err := s.engine.ApplyLocked(ctx, tx, customer, entry)
			if err != nil {
				return err
			}
			if _, err := s.audit.Record(ctx, tx, audit.Entry{
				Actor:       actor,
				FranchiseID: customer.FranchiseID,
				Action:      action,
				EntityType:  enums.AuditEntityCustomer,
				EntityID:    customer.ID,
				Details:     details(result),
			}); err != nil {
				return err
			}
			applied = result
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveMutation(entry.Type.String(), applied.Transaction.Amount)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":          "ledger.mutation",
		"customer_id":    applied.Customer.ID.String(),
		"transaction_id": applied.Transaction.ID.String(),
		"type":           entry.Type,
		"amount":         money.String(applied.Transaction.Amount),
		"balance_after":  money.String(applied.NewBalance),
		"sequence":       applied.Transaction.Sequence,
	})
	s.logg.Info(logCtx, "ledger entry applied")

	amount := money.Round(entry.Amount)
	return &MutationResult{
		PreviousBalance: applied.PreviousBalance,
		Amount:          amount,
		NewBalance:      applied.NewBalance,
		Transaction:     applied.Transaction,
	}, nil
}

func (s *service) TopUpWallet(ctx context.Context, actor access.Actor, customerID uuid.UUID, input WalletTopUpInput) (*WalletResult, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	amount := money.Round(input.Amount)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount must be greater than zero")
	}
	method, err := freeStandingMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	var result *WalletResult
	err = s.withRetry(ctx, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			customer, err := s.engine.LockCustomer(ctx, tx, customerID)
			if err != nil {
				return err
			}
			if err := access.Authorize(actor, customer.FranchiseID, access.CapabilityMutate); err != nil {
				return err
			}
			previous := money.Round(customer.WalletBalance)
			next := previous.Add(amount)
			if !money.WithinLimit(next) {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "wallet balance would exceed %s", money.String(money.Limit))
			}
			if _, err := s.customers.WithTx(tx).UpdateWalletBalance(ctx, customer.ID, customer.BalanceVersion, next); err != nil {
				if errors.Is(err, customers.ErrVersionConflict) {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "customer wallet changed concurrently")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update wallet balance")
			}

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventWalletToppedUp,
				AggregateType: enums.AggregateCustomer,
				AggregateID:   customer.ID,
				Actor:         actor.Ref(),
				Data: payloads.WalletToppedUpEvent{
					CustomerID:    customer.ID,
					FranchiseID:   customer.FranchiseID,
					Amount:        money.String(amount),
					WalletBalance: money.String(next),
					PaymentMethod: method,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue wallet event")
			}

			details := map[string]any{
				"previousWallet": money.String(previous),
				"amount":         money.String(amount),
				"newWallet":      money.String(next),
				"paymentMethod":  method,
			}
			if input.ReferenceNumber != nil {
				details["referenceNumber"] = *input.ReferenceNumber
			}
			if _, err := s.audit.Record(ctx, tx, audit.Entry{
				Actor:       actor,
				FranchiseID: customer.FranchiseID,
				Action:      enums.AuditActionWalletTopUp,
				EntityType:  enums.AuditEntityCustomer,
				EntityID:    customer.ID,
				Details:     details,
			}); err != nil {
				return err
			}
			result = &WalletResult{
				CustomerID:     customer.ID,
				PreviousWallet: previous,
				Amount:         amount,
				WalletBalance:  next,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":          "wallet.topup",
		"customer_id":    customerID.String(),
		"amount":         money.String(amount),
		"wallet_balance": money.String(result.WalletBalance),
	})
	s.logg.Info(logCtx, "wallet topped up")
	return result, nil
}

func (s *service) Summary(ctx context.Context, actor access.Actor, customerID uuid.UUID, historyLimit int) (*Summary, error) {
	customer, err := s.authorizedCustomer(ctx, actor, customerID, access.CapabilityViewSummary)
	if err != nil {
		return nil, err
	}
	totals, err := s.ledger.Totals(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum credit transactions")
	}
	limit := pagination.Clamp(historyLimit, s.cfg.HistoryDefaultLimit, s.cfg.HistoryMaxLimit)
	history, err := s.ledger.ListRecent(ctx, customer.ID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list credit history")
	}
	balance := money.Round(customer.CreditBalance)
	return &Summary{
		Customer:       *customer,
		CreditBalance:  balance,
		TotalCredited:  totals.Credits,
		TotalPaid:      totals.Payments.Neg(),
		PendingBalance: money.Max(balance, decimal.Zero),
		History:        history,
	}, nil
}

func (s *service) History(ctx context.Context, actor access.Actor, customerID uuid.UUID, params pagination.Params) (*HistoryPage, error) {
	customer, err := s.authorizedCustomer(ctx, actor, customerID, access.CapabilityViewHistory)
	if err != nil {
		return nil, err
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	params.Limit = pagination.Clamp(params.Limit, s.cfg.HistoryDefaultLimit, s.cfg.HistoryMaxLimit)
	page, err := s.ledger.ListByCustomer(ctx, customer.ID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list credit history")
	}
	return &HistoryPage{Items: page.Items, NextCursor: page.NextCursor}, nil
}

func (s *service) Outstanding(ctx context.Context, actor access.Actor, franchiseID *uuid.UUID) (*OutstandingReport, error) {
	scope, err := access.ListScope(actor, franchiseID, access.CapabilityViewHistory)
	if err != nil {
		return nil, err
	}
	rows, err := s.customers.ListOutstanding(ctx, customers.Filter{
		FranchiseID:       scope.FranchiseID,
		IncludeUnassigned: scope.IncludeUnassigned,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list outstanding balances")
	}
	report := &OutstandingReport{
		Customers:        make([]OutstandingCustomer, 0, len(rows)),
		TotalOutstanding: decimal.Zero,
	}
	for _, row := range rows {
		balance := money.Round(row.CreditBalance)
		report.Customers = append(report.Customers, OutstandingCustomer{
			CustomerID:  row.ID,
			Name:        row.Name,
			Phone:       row.Phone,
			FranchiseID: row.FranchiseID,
			Balance:     balance,
		})
		report.TotalOutstanding = report.TotalOutstanding.Add(balance)
	}
	return report, nil
}

func (s *service) Reconcile(ctx context.Context, actor access.Actor, customerID uuid.UUID) (*ReconcileReport, error) {
	customer, err := s.authorizedCustomer(ctx, actor, customerID, access.CapabilityAdjust)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListForReplay(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger for replay")
	}
	report := ledger.Replay(*customer, entries)
	if !report.Consistent {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event":       "ledger.integrity_mismatch",
			"customer_id": customer.ID.String(),
			"problem":     report.Problem,
		})
		s.logg.Warn(logCtx, "ledger replay disagrees with stored balance")
	}
	return &report, nil
}

// authorizedCustomer loads the customer and runs the guard on its franchise
// before any ledger data is read.
func (s *service) authorizedCustomer(ctx context.Context, actor access.Actor, customerID uuid.UUID, capability access.Capability) (*models.Customer, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load customer")
	}
	if err := access.Authorize(actor, customer.FranchiseID, capability); err != nil {
		return nil, err
	}
	return customer, nil
}

// withRetry reruns fn while it fails with a balance version conflict.
func (s *service) withRetry(ctx context.Context, fn func() error) error {
	return RetryOnConflict(ctx, s.cfg.MaxRetries, func(attempt int) {
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "customer balance conflict, retrying")
	}, fn)
}

func baseDetails(applied *Applied) map[string]any {
	return map[string]any{
		"previousBalance": money.String(applied.PreviousBalance),
		"newBalance":      money.String(applied.NewBalance),
		"transactionId":   applied.Transaction.ID.String(),
		"sequence":        applied.Transaction.Sequence,
	}
}

// freeStandingMethod defaults to cash and refuses wallet, which only the
// order settlement gateway can debit.
func freeStandingMethod(method *enums.PaymentMethod) (enums.PaymentMethod, error) {
	if method == nil || *method == "" {
		return enums.PaymentMethodCash, nil
	}
	if !method.IsValid() {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment method %q", *method)
	}
	if *method == enums.PaymentMethodWallet {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "wallet payments are only accepted through order settlement")
	}
	return *method, nil
}
