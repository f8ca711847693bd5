package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// LedgerEntryAppliedEvent mirrors one credit transaction. Amounts are
// two-decimal strings.
type LedgerEntryAppliedEvent struct {
	TransactionID uuid.UUID             `json:"transaction_id"`
	CustomerID    uuid.UUID             `json:"customer_id"`
	FranchiseID   *uuid.UUID            `json:"franchise_id,omitempty"`
	OrderID       *uuid.UUID            `json:"order_id,omitempty"`
	Type          enums.TransactionType `json:"type"`
	Amount        string                `json:"amount"`
	BalanceAfter  string                `json:"balance_after"`
	Sequence      int64                 `json:"sequence"`
}

// OrderSettledEvent is emitted for every accepted settlement.
type OrderSettledEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	FranchiseID      *uuid.UUID          `json:"franchise_id,omitempty"`
	CustomerID       *uuid.UUID          `json:"customer_id,omitempty"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	AmountSettled    string              `json:"amount_settled"`
	AmountPaid       string              `json:"amount_paid"`
	RemainingBalance string              `json:"remaining_balance"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
}

// OrderStatusChangedEvent reports a lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	FranchiseID *uuid.UUID        `json:"franchise_id,omitempty"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}

// WalletToppedUpEvent reports a wallet credit.
type WalletToppedUpEvent struct {
	CustomerID    uuid.UUID           `json:"customer_id"`
	FranchiseID   *uuid.UUID          `json:"franchise_id,omitempty"`
	Amount        string              `json:"amount"`
	WalletBalance string              `json:"wallet_balance"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
}

// AuditRecordedEvent feeds the surveillance consumer with each audit entry.
type AuditRecordedEvent struct {
	AuditID      uuid.UUID             `json:"audit_id"`
	Action       enums.AuditAction     `json:"action"`
	Severity     string                `json:"severity"`
	EntityType   enums.AuditEntityType `json:"entity_type"`
	EntityID     uuid.UUID             `json:"entity_id"`
	EmployeeID   uuid.UUID             `json:"employee_id"`
	EmployeeName string                `json:"employee_name"`
	FranchiseID  *uuid.UUID            `json:"franchise_id,omitempty"`
	Details      map[string]any        `json:"details"`
	IPAddress    string                `json:"ip_address,omitempty"`
	UserAgent    string                `json:"user_agent,omitempty"`
	RecordedAt   time.Time             `json:"recorded_at"`
}
