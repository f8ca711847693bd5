package customers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
)

// ErrVersionConflict is returned when a balance write lost the race against
// another writer of the same customer.
var ErrVersionConflict = errors.New("customer balance version conflict")

// Filter narrows customer list queries to a franchise.
type Filter struct {
	FranchiseID       *uuid.UUID
	IncludeUnassigned bool
}

// Repository is the only path that reads or writes customer balances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	UpdateCreditBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (int64, error)
	UpdateWalletBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, wallet decimal.Decimal) (int64, error)
	ListOutstanding(ctx context.Context, filter Filter) ([]models.Customer, error)
	ListIDs(ctx context.Context, afterID *uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindForUpdate row-locks the customer until the surrounding transaction ends.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// UpdateCreditBalance writes balance if the stored version still equals
// expectedVersion and returns the bumped version.
func (r *repository) UpdateCreditBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (int64, error) {
	return r.compareAndSwap(ctx, id, expectedVersion, "credit_balance", balance)
}

// UpdateWalletBalance is the wallet counterpart of UpdateCreditBalance.
func (r *repository) UpdateWalletBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, wallet decimal.Decimal) (int64, error) {
	return r.compareAndSwap(ctx, id, expectedVersion, "wallet_balance", wallet)
}

func (r *repository) compareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, column string, value decimal.Decimal) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ? AND balance_version = ?", id, expectedVersion).
		Updates(map[string]any{
			column:            money.Round(value),
			"balance_version": gorm.Expr("balance_version + 1"),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// ListOutstanding returns customers who owe money, largest balance first.
func (r *repository) ListOutstanding(ctx context.Context, filter Filter) ([]models.Customer, error) {
	query := r.db.WithContext(ctx).Where("credit_balance > 0")
	if filter.FranchiseID != nil {
		if filter.IncludeUnassigned {
			query = query.Where("(franchise_id = ? OR franchise_id IS NULL)", *filter.FranchiseID)
		} else {
			query = query.Where("franchise_id = ?", *filter.FranchiseID)
		}
	}
	var rows []models.Customer
	err := query.
		Order("credit_balance DESC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ListIDs walks every customer id in batches, for integrity sweeps.
func (r *repository) ListIDs(ctx context.Context, afterID *uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}
	query := r.db.WithContext(ctx).Model(&models.Customer{})
	if afterID != nil {
		query = query.Where("id > ?", *afterID)
	}
	var ids []uuid.UUID
	err := query.Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}
