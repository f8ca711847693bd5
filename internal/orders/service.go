// Package orders is the settlement gateway: it applies payments to orders,
// debits customer wallets for wallet payments, and gates fulfillment status
// on full payment.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/internal/access"
	"github.com/fabzclean/fabzclean-backend/internal/audit"
	"github.com/fabzclean/fabzclean-backend/internal/credits"
	"github.com/fabzclean/fabzclean-backend/internal/customers"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/metrics"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines settlement and lifecycle operations on orders.
type Service interface {
	Settle(ctx context.Context, actor access.Actor, orderID uuid.UUID, input SettleInput) (*SettleResult, error)
	UpdateStatus(ctx context.Context, actor access.Actor, orderID uuid.UUID, status enums.OrderStatus) (*StatusResult, error)
	PaymentSummary(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*PaymentSummary, error)
}

// ServiceParams wires the settlement gateway.
type ServiceParams struct {
	Repo      Repository
	Customers customers.Repository
	Engine    *credits.Engine
	Tx        txRunner
	Outbox    outboxPublisher
	Audit     audit.Recorder
	Metrics   *metrics.LedgerMetrics
	Logger    *logger.Logger
	Config    config.LedgerConfig
}

type service struct {
	repo      Repository
	customers customers.Repository
	engine    *credits.Engine
	tx        txRunner
	outbox    outboxPublisher
	audit     audit.Recorder
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	tolerance decimal.Decimal
	retries   int
}

const (
	rejectOverpayment     = "overpayment"
	rejectInvalidAmount   = "invalid_amount"
	rejectNoCustomer      = "no_linked_customer"
	rejectWalletShortfall = "insufficient_wallet"
)

// NewService builds the settlement gateway with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("ledger engine required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	retries := params.Config.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &service{
		repo:      params.Repo,
		customers: params.Customers,
		engine:    params.Engine,
		tx:        params.Tx,
		outbox:    params.Outbox,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		tolerance: params.Config.Tolerance(),
		retries:   retries,
	}, nil
}

type rejection struct {
	reason string
	err    error
}

func (s *service) reject(reason string, err error) error {
	return &rejection{reason: reason, err: err}
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

func (s *service) Settle(ctx context.Context, actor access.Actor, orderID uuid.UUID, input SettleInput) (*SettleResult, error) {
	result, err := s.settle(ctx, actor, orderID, input)
	var rejected *rejection
	if errors.As(err, &rejected) {
		s.metrics.IncSettlementRejection(rejected.reason)
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event":    "order.settlement_rejected",
			"order_id": orderID.String(),
			"reason":   rejected.reason,
		})
		s.logg.Info(logCtx, rejected.err.Error())
		return nil, rejected.err
	}
	if err != nil {
		return nil, err
	}

	s.metrics.IncSettlement(input.PaymentMethod.String(), result.Status.String())
	if result.TransactionID != nil {
		s.metrics.ObserveMutation(enums.TransactionTypePayment.String(), money.Round(input.AmountPaid).Neg())
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":             "order.settled",
		"order_id":          orderID.String(),
		"payment_method":    input.PaymentMethod,
		"amount_settled":    money.String(input.AmountPaid),
		"remaining_balance": money.String(result.RemainingBalance),
		"payment_status":    result.Status,
	})
	s.logg.Info(logCtx, "order settlement applied")
	return result, nil
}

func (s *service) settle(ctx context.Context, actor access.Actor, orderID uuid.UUID, input SettleInput) (*SettleResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	amount := money.Round(input.AmountPaid)
	if !amount.IsPositive() {
		return nil, s.reject(rejectInvalidAmount, pkgerrors.New(pkgerrors.CodeValidation, "amountPaid must be greater than zero"))
	}
	if !input.PaymentMethod.IsSettlementMethod() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment method %q cannot settle an order", input.PaymentMethod)
	}

	var result *SettleResult
	err := credits.RetryOnConflict(ctx, s.retries, nil, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.FindForUpdate(ctx, orderID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
			}
			if err := access.Authorize(actor, order.FranchiseID, access.CapabilityMutate); err != nil {
				return err
			}

			total := money.Round(order.TotalAmount)
			previousPaid := money.Round(order.AmountPaid)
			remaining := total.Sub(previousPaid)
			if amount.GreaterThan(remaining.Add(s.tolerance)) {
				return s.reject(rejectOverpayment, pkgerrors.Newf(pkgerrors.CodeInsufficientFunds,
					"settlement exceeds remaining balance of %s", money.String(money.Max(remaining, decimal.Zero))).
					WithDetails(map[string]any{"remainingBalance": money.String(money.Max(remaining, decimal.Zero))}))
			}

			details := map[string]any{
				"orderNumber":        order.OrderNumber,
				"totalAmount":        money.String(total),
				"previousAmountPaid": money.String(previousPaid),
				"amountSettled":      money.String(amount),
				"paymentMethod":      input.PaymentMethod,
			}
			if input.Notes != nil {
				details["notes"] = *input.Notes
			}

			res := &SettleResult{OrderID: order.ID}
			if input.PaymentMethod == enums.PaymentMethodWallet {
				if err := s.debitWallet(ctx, tx, actor, order, amount, input.Notes, details, res); err != nil {
					return err
				}
			}

			newPaid := previousPaid.Add(amount)
			status := enums.PaymentStatusPartial
			if newPaid.GreaterThanOrEqual(total.Sub(s.tolerance)) {
				status = enums.PaymentStatusPaid
			}
			if err := repo.UpdateSettlement(ctx, order.ID, newPaid, status, input.PaymentMethod); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order settlement")
			}
			res.AmountPaid = newPaid
			res.RemainingBalance = money.Max(total.Sub(newPaid), decimal.Zero)
			res.Status = status

			details["newAmountPaid"] = money.String(newPaid)
			details["paymentStatus"] = status
			details["remainingBalance"] = money.String(res.RemainingBalance)

			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderSettled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actor.Ref(),
				Data: payloads.OrderSettledEvent{
					OrderID:          order.ID,
					OrderNumber:      order.OrderNumber,
					FranchiseID:      order.FranchiseID,
					CustomerID:       order.CustomerID,
					PaymentMethod:    input.PaymentMethod,
					AmountSettled:    money.String(amount),
					AmountPaid:       money.String(newPaid),
					RemainingBalance: money.String(res.RemainingBalance),
					PaymentStatus:    status,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue settlement event")
			}

			if _, err := s.audit.Record(ctx, tx, audit.Entry{
				Actor:       actor,
				FranchiseID: order.FranchiseID,
				Action:      enums.AuditActionCreditSettlement,
				EntityType:  enums.AuditEntityOrder,
				EntityID:    order.ID,
				Details:     details,
			}); err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// debitWallet takes the settlement out of the linked customer's wallet and
// books the matching ledger payment, both inside tx.
func (s *service) debitWallet(ctx context.Context, tx *gorm.DB, actor access.Actor, order *models.Order, amount decimal.Decimal, notes *string, details map[string]any, res *SettleResult) error {
	if order.CustomerID == nil {
		return s.reject(rejectNoCustomer, pkgerrors.New(pkgerrors.CodeValidation, "wallet payments require an order linked to a customer"))
	}
	customer, err := s.engine.LockCustomer(ctx, tx, *order.CustomerID)
	if err != nil {
		return err
	}
	if err := access.Authorize(actor, customer.FranchiseID, access.CapabilityMutate); err != nil {
		return err
	}
	walletBefore := money.Round(customer.WalletBalance)
	if walletBefore.LessThan(amount) {
		return s.reject(rejectWalletShortfall, pkgerrors.Newf(pkgerrors.CodeInsufficientFunds,
			"insufficient wallet balance: available %s", money.String(walletBefore)).
			WithDetails(map[string]any{"availableBalance": money.String(walletBefore)}))
	}

	walletAfter := walletBefore.Sub(amount)
	version, err := s.customers.WithTx(tx).UpdateWalletBalance(ctx, customer.ID, customer.BalanceVersion, walletAfter)
	if err != nil {
		if errors.Is(err, customers.ErrVersionConflict) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "customer wallet changed concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit wallet")
	}
	customer.WalletBalance = walletAfter
	customer.BalanceVersion = version

	method := enums.PaymentMethodWallet
	orderNumber := order.OrderNumber
	orderID := order.ID
	applied, err := s.engine.ApplyLocked(ctx, tx, customer, credits.Entry{
		CustomerID:    customer.ID,
		Type:          enums.TransactionTypePayment,
		Amount:        amount,
		OrderID:       &orderID,
		OrderNumber:   &orderNumber,
		PaymentMethod: &method,
		Notes:         notes,
		Actor:         actor,
	})
	if err != nil {
		return err
	}

	details["customerId"] = customer.ID.String()
	details["walletBefore"] = money.String(walletBefore)
	details["walletAfter"] = money.String(walletAfter)
	details["previousBalance"] = money.String(applied.PreviousBalance)
	details["newBalance"] = money.String(applied.NewBalance)
	details["transactionId"] = applied.Transaction.ID.String()

	res.WalletBalance = &walletAfter
	res.CreditBalance = &applied.NewBalance
	res.TransactionID = &applied.Transaction.ID
	return nil
}

func (s *service) UpdateStatus(ctx context.Context, actor access.Actor, orderID uuid.UUID, status enums.OrderStatus) (*StatusResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", status)
	}

	var result *StatusResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if err := access.Authorize(actor, order.FranchiseID, access.CapabilityMutate); err != nil {
			return err
		}
		if order.Status == status {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is already %s", status)
		}
		if !order.Status.CanTransitionTo(status) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order cannot move from %s to %s", order.Status, status)
		}
		if status.RequiresPayment() && order.PaymentStatus != enums.PaymentStatusPaid {
			remaining := money.Max(money.Round(order.TotalAmount).Sub(money.Round(order.AmountPaid)), decimal.Zero)
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order must be fully paid before it is %s; remaining balance %s", status, money.String(remaining)).
				WithDetails(map[string]any{
					"paymentStatus":    order.PaymentStatus,
					"remainingBalance": money.String(remaining),
				})
		}
		if err := repo.UpdateStatus(ctx, order.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.Ref(),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				FranchiseID: order.FranchiseID,
				From:        order.Status,
				To:          status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue status event")
		}
		if _, err := s.audit.Record(ctx, tx, audit.Entry{
			Actor:       actor,
			FranchiseID: order.FranchiseID,
			Action:      enums.AuditActionOrderStatusChange,
			EntityType:  enums.AuditEntityOrder,
			EntityID:    order.ID,
			Details: map[string]any{
				"orderNumber":   order.OrderNumber,
				"from":          order.Status,
				"to":            status,
				"paymentStatus": order.PaymentStatus,
			},
		}); err != nil {
			return err
		}
		result = &StatusResult{
			OrderID:       order.ID,
			From:          order.Status,
			To:            status,
			PaymentStatus: order.PaymentStatus,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) PaymentSummary(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*PaymentSummary, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if err := access.Authorize(actor, order.FranchiseID, access.CapabilityViewSummary); err != nil {
		return nil, err
	}
	total := money.Round(order.TotalAmount)
	paid := money.Round(order.AmountPaid)
	return &PaymentSummary{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		TotalAmount:       total,
		AmountPaid:        paid,
		RemainingBalance:  money.Max(total.Sub(paid), decimal.Zero),
		PaymentStatus:     order.PaymentStatus,
		Status:            order.Status,
		LastPaymentMethod: order.LastPaymentMethod,
	}, nil
}
