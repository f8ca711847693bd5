package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// SettleInput is one payment against an order.
type SettleInput struct {
	AmountPaid    decimal.Decimal
	PaymentMethod enums.PaymentMethod
	Notes         *string
}

// SettleResult reports the order after the settlement. Wallet settlements
// also carry the customer's wallet and credit balances.
type SettleResult struct {
	OrderID          uuid.UUID
	AmountPaid       decimal.Decimal
	RemainingBalance decimal.Decimal
	Status           enums.PaymentStatus
	WalletBalance    *decimal.Decimal
	CreditBalance    *decimal.Decimal
	TransactionID    *uuid.UUID
}

// StatusResult reports a lifecycle transition.
type StatusResult struct {
	OrderID       uuid.UUID
	From          enums.OrderStatus
	To            enums.OrderStatus
	PaymentStatus enums.PaymentStatus
}

// PaymentSummary is the read-only payment view of an order.
type PaymentSummary struct {
	OrderID           uuid.UUID
	OrderNumber       string
	CustomerID        *uuid.UUID
	TotalAmount       decimal.Decimal
	AmountPaid        decimal.Decimal
	RemainingBalance  decimal.Decimal
	PaymentStatus     enums.PaymentStatus
	Status            enums.OrderStatus
	LastPaymentMethod *enums.PaymentMethod
}
