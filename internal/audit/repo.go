package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// ListFilter narrows audit reads. Zero values mean "any".
type ListFilter struct {
	FranchiseID       *uuid.UUID
	IncludeUnassigned bool
	EntityType        enums.AuditEntityType
	EntityID          *uuid.UUID
	Action            enums.AuditAction
	Limit             int
}

// Repository persists audit entries. Entries are never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter ListFilter) ([]models.AuditLogEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the audit repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.AuditLogEntry, error) {
	query := r.db.WithContext(ctx)
	if filter.FranchiseID != nil {
		if filter.IncludeUnassigned {
			query = query.Where("(franchise_id = ? OR franchise_id IS NULL)", *filter.FranchiseID)
		} else {
			query = query.Where("franchise_id = ?", *filter.FranchiseID)
		}
	}
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	var rows []models.AuditLogEntry
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Find(&rows).Error
	return rows, err
}
