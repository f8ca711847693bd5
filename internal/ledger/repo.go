package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/money"
	"github.com/fabzclean/fabzclean-backend/pkg/pagination"
)

// Repository manages the append-only credit transaction log. There is no
// update or delete: corrections are new entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.CreditTransaction) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (Page, error)
	ListRecent(ctx context.Context, customerID uuid.UUID, limit int) ([]models.CreditTransaction, error)
	ListForReplay(ctx context.Context, customerID uuid.UUID) ([]models.CreditTransaction, error)
	Totals(ctx context.Context, customerID uuid.UUID) (Totals, error)
	LastForCustomer(ctx context.Context, customerID uuid.UUID) (*models.CreditTransaction, error)
}

// Page is one window of a customer's history, newest first.
type Page struct {
	Items      []models.CreditTransaction
	NextCursor string
}

// Totals sums entry amounts per type. Payments and refunds are negative.
type Totals struct {
	Credits     decimal.Decimal
	Payments    decimal.Decimal
	Adjustments decimal.Decimal
	Refunds     decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.CreditTransaction) error {
	if entry == nil {
		return errors.New("credit transaction required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (Page, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return Page{}, err
	}

	query := r.db.WithContext(ctx).Where("customer_id = ?", customerID)
	if cursor != nil {
		query = query.Where("sequence < ?", cursor.Position)
	}

	var rows []models.CreditTransaction
	if err := query.
		Order("sequence DESC").
		Limit(limit + 1).
		Find(&rows).Error; err != nil {
		return Page{}, err
	}

	page := Page{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{Position: last.Sequence, ID: last.ID})
	}
	return page, nil
}

func (r *repository) ListRecent(ctx context.Context, customerID uuid.UUID, limit int) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("sequence DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListForReplay(ctx context.Context, customerID uuid.UUID) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Totals(ctx context.Context, customerID uuid.UUID) (Totals, error) {
	var rows []struct {
		Type  enums.TransactionType
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Select("type, COALESCE(SUM(amount), 0) AS total").
		Where("customer_id = ?", customerID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return Totals{}, err
	}

	totals := Totals{
		Credits:     decimal.Zero,
		Payments:    decimal.Zero,
		Adjustments: decimal.Zero,
		Refunds:     decimal.Zero,
	}
	for _, row := range rows {
		total := money.Round(row.Total)
		switch row.Type {
		case enums.TransactionTypeCredit:
			totals.Credits = total
		case enums.TransactionTypePayment:
			totals.Payments = total
		case enums.TransactionTypeAdjustment:
			totals.Adjustments = total
		case enums.TransactionTypeRefund:
			totals.Refunds = total
		}
	}
	return totals, nil
}

func (r *repository) LastForCustomer(ctx context.Context, customerID uuid.UUID) (*models.CreditTransaction, error) {
	var row models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("sequence DESC").
		Limit(1).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
