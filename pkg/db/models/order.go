package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// Order is the settlement-relevant slice of a laundry order. Line items and
// garment tags live with the intake service.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string               `gorm:"column:order_number;not null;uniqueIndex"`
	FranchiseID       *uuid.UUID           `gorm:"column:franchise_id;type:uuid"`
	CustomerID        *uuid.UUID           `gorm:"column:customer_id;type:uuid"`
	TotalAmount       decimal.Decimal      `gorm:"column:total_amount;type:decimal(12,2);not null"`
	AmountPaid        decimal.Decimal      `gorm:"column:amount_paid;type:decimal(12,2);not null;default:0"`
	PaymentStatus     enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status_enum;not null;default:'pending'"`
	Status            enums.OrderStatus    `gorm:"column:status;type:order_status_enum;not null;default:'created'"`
	LastPaymentMethod *enums.PaymentMethod `gorm:"column:last_payment_method;type:payment_method_enum"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
