package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
)

// Repository defines persistence operations for the settlement view of orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpdateSettlement(ctx context.Context, orderID uuid.UUID, amountPaid decimal.Decimal, status enums.PaymentStatus, method enums.PaymentMethod) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindForUpdate holds the order row until the transaction ends so two
// settlements cannot both pass the remaining balance check.
func (r *repository) FindForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateSettlement(ctx context.Context, orderID uuid.UUID, amountPaid decimal.Decimal, status enums.PaymentStatus, method enums.PaymentMethod) error {
	return r.update(ctx, orderID, map[string]any{
		"amount_paid":         money.Round(amountPaid),
		"payment_status":      status,
		"last_payment_method": method,
	})
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) error {
	return r.update(ctx, orderID, map[string]any{"status": status})
}

func (r *repository) update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
