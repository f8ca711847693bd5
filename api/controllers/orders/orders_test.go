package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/api/middleware"
	"github.com/fabzclean/fabzclean-backend/internal/access"
	internalorders "github.com/fabzclean/fabzclean-backend/internal/orders"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
)

type stubOrdersService struct {
	settle  func(ctx context.Context, actor access.Actor, orderID uuid.UUID, input internalorders.SettleInput) (*internalorders.SettleResult, error)
	status  func(ctx context.Context, actor access.Actor, orderID uuid.UUID, status enums.OrderStatus) (*internalorders.StatusResult, error)
	summary func(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*internalorders.PaymentSummary, error)
}

func (s *stubOrdersService) Settle(ctx context.Context, actor access.Actor, orderID uuid.UUID, input internalorders.SettleInput) (*internalorders.SettleResult, error) {
	if s.settle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.settle(ctx, actor, orderID, input)
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, actor access.Actor, orderID uuid.UUID, status enums.OrderStatus) (*internalorders.StatusResult, error) {
	if s.status == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.status(ctx, actor, orderID, status)
}

func (s *stubOrdersService) PaymentSummary(ctx context.Context, actor access.Actor, orderID uuid.UUID) (*internalorders.PaymentSummary, error) {
	if s.summary == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unexpected call")
	}
	return s.summary(ctx, actor, orderID)
}

func orderRequest(method, body string, orderID uuid.UUID, withActor bool) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(orderParam, orderID.String())
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if withActor {
		franchiseID := uuid.New()
		ctx = middleware.WithActor(ctx, access.Actor{UserID: uuid.New(), Role: enums.RoleFranchiseManager, FranchiseID: &franchiseID})
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) (map[string]any, map[string]any) {
	t.Helper()
	var payload struct {
		Data  map[string]any `json:"data"`
		Error map[string]any `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload.Data, payload.Error
}

func TestSettleRendersRemainingBalance(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{
		settle: func(ctx context.Context, actor access.Actor, id uuid.UUID, input internalorders.SettleInput) (*internalorders.SettleResult, error) {
			if id != orderID {
				t.Fatalf("unexpected order id")
			}
			if !input.AmountPaid.Equal(decimal.RequireFromString("250")) || input.PaymentMethod != enums.PaymentMethodUPI {
				t.Fatalf("unexpected input %+v", input)
			}
			return &internalorders.SettleResult{
				OrderID:          id,
				AmountPaid:       decimal.RequireFromString("250"),
				RemainingBalance: decimal.RequireFromString("250"),
				Status:           enums.PaymentStatusPartial,
			}, nil
		},
	}
	rec := httptest.NewRecorder()
	Settle(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPatch, `{"amountPaid":"250","paymentMethod":"upi"}`, orderID, true))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)
	if data["remainingBalance"] != "250.00" || data["status"] != "partial" {
		t.Fatalf("unexpected payload %+v", data)
	}
	if _, ok := data["walletBalance"]; ok {
		t.Fatalf("cash-like settlement should not report a wallet balance")
	}
}

func TestSettleSurfacesOverpayment(t *testing.T) {
	svc := &stubOrdersService{
		settle: func(context.Context, access.Actor, uuid.UUID, internalorders.SettleInput) (*internalorders.SettleResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "settlement exceeds remaining balance of 50.00")
		},
	}
	rec := httptest.NewRecorder()
	Settle(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPatch, `{"amountPaid":"60","paymentMethod":"cash"}`, uuid.New(), true))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	_, apiErr := decodeBody(t, rec)
	if apiErr["code"] != string(pkgerrors.CodeInsufficientFunds) || apiErr["message"] != "settlement exceeds remaining balance of 50.00" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestSettleValidatesBeforeCallingService(t *testing.T) {
	svc := &stubOrdersService{}
	cases := []string{
		`{"amountPaid":"0","paymentMethod":"cash"}`,
		`{"amountPaid":"10"}`,
		`{"amountPaid":10,"paymentMethod":"cash"}`,
	}
	for _, body := range cases {
		rec := httptest.NewRecorder()
		Settle(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPatch, body, uuid.New(), true))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := orderRequest(http.MethodPatch, `{"amountPaid":"10","paymentMethod":"cash"}`, uuid.New(), false)
	Settle(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d", rec.Code)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	called := false
	svc := &stubOrdersService{
		status: func(ctx context.Context, actor access.Actor, id uuid.UUID, status enums.OrderStatus) (*internalorders.StatusResult, error) {
			called = true
			return &internalorders.StatusResult{OrderID: id, From: enums.OrderStatusProcessing, To: status, PaymentStatus: enums.PaymentStatusPaid}, nil
		},
	}

	rec := httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPatch, `{"status":"lost"}`, uuid.New(), true))
	if rec.Code != http.StatusBadRequest || called {
		t.Fatalf("expected 400 without calling service, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	UpdateStatus(svc, nil).ServeHTTP(rec, orderRequest(http.MethodPatch, `{"status":"completed"}`, uuid.New(), true))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeBody(t, rec)
	if data["previous"] != "processing" || data["status"] != "completed" {
		t.Fatalf("unexpected payload %+v", data)
	}
}

func TestPaymentSummaryNotFound(t *testing.T) {
	svc := &stubOrdersService{
		summary: func(context.Context, access.Actor, uuid.UUID) (*internalorders.PaymentSummary, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		},
	}
	rec := httptest.NewRecorder()
	PaymentSummary(svc, nil).ServeHTTP(rec, orderRequest(http.MethodGet, "", uuid.New(), true))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
