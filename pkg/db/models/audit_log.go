package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// AuditLogEntry is written once per ledger or settlement mutation and never
// updated. Details holds the before/after snapshot as JSON.
type AuditLogEntry struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EmployeeID   uuid.UUID             `gorm:"column:employee_id;type:uuid;not null"`
	EmployeeName string                `gorm:"column:employee_name;not null"`
	FranchiseID  *uuid.UUID            `gorm:"column:franchise_id;type:uuid"`
	Action       enums.AuditAction     `gorm:"column:action;not null"`
	EntityType   enums.AuditEntityType `gorm:"column:entity_type;not null"`
	EntityID     uuid.UUID             `gorm:"column:entity_id;type:uuid;not null"`
	Details      datatypes.JSON        `gorm:"column:details;type:jsonb;not null"`
	IPAddress    string                `gorm:"column:ip_address"`
	UserAgent    string                `gorm:"column:user_agent"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLogEntry) TableName() string { return "audit_logs" }
