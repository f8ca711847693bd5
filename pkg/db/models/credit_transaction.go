package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// CreditTransaction is an immutable credit ledger entry. Amount is signed
// (positive raises what the customer owes) and BalanceAfter snapshots the
// customer balance once the entry was applied. Sequence is the customer's
// balance version after the write and orders entries per customer.
type CreditTransaction struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID      uuid.UUID             `gorm:"column:customer_id;type:uuid;not null"`
	FranchiseID     *uuid.UUID            `gorm:"column:franchise_id;type:uuid"`
	OrderID         *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	OrderNumber     *string               `gorm:"column:order_number"`
	Type            enums.TransactionType `gorm:"column:type;type:credit_transaction_type_enum;not null"`
	Amount          decimal.Decimal       `gorm:"column:amount;type:decimal(12,2);not null"`
	BalanceAfter    decimal.Decimal       `gorm:"column:balance_after;type:decimal(12,2);not null"`
	PaymentMethod   *enums.PaymentMethod  `gorm:"column:payment_method;type:payment_method_enum"`
	ReferenceNumber *string               `gorm:"column:reference_number"`
	Reason          string                `gorm:"column:reason;not null"`
	Notes           *string               `gorm:"column:notes"`
	RecordedBy      uuid.UUID             `gorm:"column:recorded_by;type:uuid;not null"`
	RecordedByName  string                `gorm:"column:recorded_by_name;not null"`
	Sequence        int64                 `gorm:"column:sequence;not null"`
	TransactionDate time.Time             `gorm:"column:transaction_date;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
}
