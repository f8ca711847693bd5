// Package credits exposes the customer credit ledger over HTTP.
package credits

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/api/middleware"
	"github.com/fabzclean/fabzclean-backend/api/responses"
	"github.com/fabzclean/fabzclean-backend/api/validators"
	"github.com/fabzclean/fabzclean-backend/internal/access"
	internalcredits "github.com/fabzclean/fabzclean-backend/internal/credits"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
	"github.com/fabzclean/fabzclean-backend/pkg/pagination"
)

const customerParam = "customerId"

// Summary returns the balance view with the newest history entries. The
// service clamps ?limit to the configured history window.
func Summary(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), actor, customerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSummaryView(summary))
	}
}

// History pages through a customer's ledger, newest first.
func History(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.History(r.Context(), actor, customerID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":      newTransactionViews(page.Items),
			"nextCursor": page.NextCursor,
		})
	}
}

func IssueCredit(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req addCreditRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.IssueCredit(r.Context(), actor, customerID, internalcredits.CreditInput{
			Amount:      amount,
			OrderID:     req.OrderID,
			OrderNumber: validators.OptionalString(req.OrderNumber, 64),
			Reason:      validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutationView(result, "amount"))
	}
}

func RecordPayment(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req paymentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RecordPayment(r.Context(), actor, customerID, internalcredits.PaymentInput{
			Amount:          amount,
			PaymentMethod:   paymentMethod(req.PaymentMethod),
			ReferenceNumber: validators.OptionalString(req.ReferenceNumber, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutationView(result, "amountPaid"))
	}
}

func Refund(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Refund(r.Context(), actor, customerID, internalcredits.RefundInput{
			Amount:          amount,
			OrderID:         req.OrderID,
			PaymentMethod:   paymentMethod(req.PaymentMethod),
			ReferenceNumber: validators.OptionalString(req.ReferenceNumber, 128),
			Reason:          validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutationView(result, "amountRefunded"))
	}
}

// Adjust applies an admin correction. The amount is signed and the reason
// is mandatory.
func Adjust(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Adjust(r.Context(), actor, customerID, internalcredits.AdjustInput{
			Amount: amount,
			Reason: validators.SanitizeString(req.Reason, 500),
			Notes:  validators.OptionalString(req.Notes, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, mutationView(result, "adjustment"))
	}
}

func TopUpWallet(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req topUpRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.TopUpWallet(r.Context(), actor, customerID, internalcredits.WalletTopUpInput{
			Amount:          amount,
			PaymentMethod:   paymentMethod(req.PaymentMethod),
			ReferenceNumber: validators.OptionalString(req.ReferenceNumber, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, walletView{
			CustomerID:     result.CustomerID,
			PreviousWallet: money.String(result.PreviousWallet),
			Amount:         money.String(result.Amount),
			WalletBalance:  money.String(result.WalletBalance),
		})
	}
}

// Outstanding lists customers who owe money. Admins may narrow the report
// with ?franchiseId; everyone else is pinned to their own franchise.
func Outstanding(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		franchiseID, err := validators.ParseQueryUUID(r, "franchiseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Outstanding(r.Context(), actor, franchiseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOutstandingView(report))
	}
}

// Reconcile replays one customer's ledger and reports drift without
// repairing it.
func Reconcile(svc internalcredits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, customerID, err := actorAndCustomer(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), actor, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReconcileView(report))
	}
}

func actorAndCustomer(r *http.Request) (access.Actor, uuid.UUID, error) {
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		return access.Actor{}, uuid.Nil, err
	}
	customerID, err := validators.PathUUID(r, customerParam)
	if err != nil {
		return access.Actor{}, uuid.Nil, err
	}
	return actor, customerID, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
			WithDetails(map[string]any{"fields": map[string]string{"amount": err.Error()}})
	}
	return amount, nil
}
