package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer carries the running credit balance (positive means the customer
// owes the franchise) and the prepaid wallet. Both balances move only through
// the credit ledger; BalanceVersion is bumped on every such write.
type Customer struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FranchiseID    *uuid.UUID      `gorm:"column:franchise_id;type:uuid"`
	Name           string          `gorm:"column:name;not null"`
	Phone          *string         `gorm:"column:phone"`
	Email          *string         `gorm:"column:email"`
	CreditBalance  decimal.Decimal `gorm:"column:credit_balance;type:decimal(12,2);not null;default:0"`
	WalletBalance  decimal.Decimal `gorm:"column:wallet_balance;type:decimal(12,2);not null;default:0"`
	OpeningBalance decimal.Decimal `gorm:"column:opening_balance;type:decimal(12,2);not null;default:0"`
	BalanceVersion int64           `gorm:"column:balance_version;not null;default:0"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
