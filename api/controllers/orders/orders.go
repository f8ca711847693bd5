package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/api/middleware"
	"github.com/fabzclean/fabzclean-backend/api/responses"
	"github.com/fabzclean/fabzclean-backend/api/validators"
	"github.com/fabzclean/fabzclean-backend/internal/access"
	internalorders "github.com/fabzclean/fabzclean-backend/internal/orders"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
)

const orderParam = "orderId"

type settleRequest struct {
	AmountPaid    string  `json:"amountPaid" validate:"required,money"`
	PaymentMethod string  `json:"paymentMethod" validate:"required"`
	Notes         *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type settleView struct {
	OrderID          uuid.UUID  `json:"orderId"`
	AmountPaid       string     `json:"amountPaid"`
	RemainingBalance string     `json:"remainingBalance"`
	Status           string     `json:"status"`
	WalletBalance    *string    `json:"walletBalance,omitempty"`
	CreditBalance    *string    `json:"creditBalance,omitempty"`
	TransactionID    *uuid.UUID `json:"transactionId,omitempty"`
}

type paymentView struct {
	OrderID           uuid.UUID  `json:"orderId"`
	OrderNumber       string     `json:"orderNumber"`
	CustomerID        *uuid.UUID `json:"customerId,omitempty"`
	TotalAmount       string     `json:"totalAmount"`
	AmountPaid        string     `json:"amountPaid"`
	RemainingBalance  string     `json:"remainingBalance"`
	PaymentStatus     string     `json:"paymentStatus"`
	Status            string     `json:"status"`
	LastPaymentMethod *string    `json:"lastPaymentMethod,omitempty"`
}

// Settle applies one payment to an order. Wallet payments debit the
// customer's prepaid wallet through the credit ledger.
func Settle(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req settleRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.Parse(req.AmountPaid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		result, err := svc.Settle(r.Context(), actor, orderID, internalorders.SettleInput{
			AmountPaid:    amount,
			PaymentMethod: enums.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
			Notes:         validators.OptionalString(req.Notes, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := settleView{
			OrderID:          result.OrderID,
			AmountPaid:       money.String(result.AmountPaid),
			RemainingBalance: money.String(result.RemainingBalance),
			Status:           result.Status.String(),
			TransactionID:    result.TransactionID,
		}
		if result.WalletBalance != nil {
			wallet := money.String(*result.WalletBalance)
			view.WalletBalance = &wallet
		}
		if result.CreditBalance != nil {
			credit := money.String(*result.CreditBalance)
			view.CreditBalance = &credit
		}
		responses.WriteSuccess(w, view)
	}
}

// UpdateStatus moves an order through its lifecycle. Completing or
// delivering an order requires it to be fully paid.
func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req statusRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.TrimSpace(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
			return
		}

		result, err := svc.UpdateStatus(r.Context(), actor, orderID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"orderId":       result.OrderID,
			"previous":      result.From.String(),
			"status":        result.To.String(),
			"paymentStatus": result.PaymentStatus.String(),
		})
	}
}

func PaymentSummary(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := svc.PaymentSummary(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view := paymentView{
			OrderID:          summary.OrderID,
			OrderNumber:      summary.OrderNumber,
			CustomerID:       summary.CustomerID,
			TotalAmount:      money.String(summary.TotalAmount),
			AmountPaid:       money.String(summary.AmountPaid),
			RemainingBalance: money.String(summary.RemainingBalance),
			PaymentStatus:    summary.PaymentStatus.String(),
			Status:           summary.Status.String(),
		}
		if summary.LastPaymentMethod != nil {
			method := summary.LastPaymentMethod.String()
			view.LastPaymentMethod = &method
		}
		responses.WriteSuccess(w, view)
	}
}

func actorAndOrder(r *http.Request) (access.Actor, uuid.UUID, error) {
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		return access.Actor{}, uuid.Nil, err
	}
	orderID, err := validators.PathUUID(r, orderParam)
	if err != nil {
		return access.Actor{}, uuid.Nil, err
	}
	return actor, orderID, nil
}
