// Package audit keeps the append-only trail of every balance, settlement and
// order status change, and feeds it to the surveillance consumer through the
// outbox.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fabzclean/fabzclean-backend/internal/access"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox/payloads"
	"github.com/fabzclean/fabzclean-backend/pkg/pagination"
)

// Entry is one audited mutation. FranchiseID is the franchise that owns the
// entity; when nil the actor's franchise is recorded.
type Entry struct {
	Actor       access.Actor
	FranchiseID *uuid.UUID
	Action      enums.AuditAction
	EntityType  enums.AuditEntityType
	EntityID    uuid.UUID
	Details     map[string]any
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Recorder writes audit entries inside the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.AuditLogEntry, error)
}

// Service records and lists audit entries.
type Service interface {
	Recorder
	List(ctx context.Context, actor access.Actor, filter ListFilter) ([]models.AuditLogEntry, error)
}

type service struct {
	repo   Repository
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the audit service.
func NewService(repo Repository, emitter outboxEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:   repo,
		outbox: emitter,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Record persists the entry and queues the audit_recorded event. Any failure
// is returned as an internal error so the surrounding mutation rolls back.
func (s *service) Record(ctx context.Context, tx *gorm.DB, entry Entry) (*models.AuditLogEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit requires a transaction")
	}
	if !entry.Action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown audit action %q", entry.Action)
	}
	if !entry.EntityType.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown audit entity type %q", entry.EntityType)
	}
	if entry.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "audit entry missing actor")
	}

	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode audit details")
	}

	franchiseID := entry.FranchiseID
	if franchiseID == nil {
		franchiseID = entry.Actor.FranchiseID
	}
	row := &models.AuditLogEntry{
		ID:           uuid.New(),
		EmployeeID:   entry.Actor.UserID,
		EmployeeName: entry.Actor.DisplayName(),
		FranchiseID:  franchiseID,
		Action:       entry.Action,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Details:      datatypes.JSON(raw),
		IPAddress:    entry.Actor.IPAddress,
		UserAgent:    entry.Actor.UserAgent,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write audit entry")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventAuditRecorded,
		AggregateType: enums.AggregateAuditLog,
		AggregateID:   row.ID,
		Actor:         entry.Actor.Ref(),
		OccurredAt:    row.CreatedAt,
		Data: payloads.AuditRecordedEvent{
			AuditID:      row.ID,
			Action:       row.Action,
			Severity:     row.Action.Severity(),
			EntityType:   row.EntityType,
			EntityID:     row.EntityID,
			EmployeeID:   row.EmployeeID,
			EmployeeName: row.EmployeeName,
			FranchiseID:  row.FranchiseID,
			Details:      details,
			IPAddress:    row.IPAddress,
			UserAgent:    row.UserAgent,
			RecordedAt:   row.CreatedAt,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue audit event")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event":       "audit.recorded",
			"audit_id":    row.ID.String(),
			"action":      row.Action,
			"entity_type": row.EntityType,
			"entity_id":   row.EntityID.String(),
		})
		if row.Action.Severity() == "high" {
			s.logg.Warn(logCtx, "high severity audit entry recorded")
		} else {
			s.logg.Debug(logCtx, "audit entry recorded")
		}
	}
	return row, nil
}

// List returns entries newest first within the actor's franchise scope.
func (s *service) List(ctx context.Context, actor access.Actor, filter ListFilter) ([]models.AuditLogEntry, error) {
	scope, err := access.ListScope(actor, filter.FranchiseID, access.CapabilityViewHistory)
	if err != nil {
		return nil, err
	}
	filter.FranchiseID = scope.FranchiseID
	filter.IncludeUnassigned = scope.IncludeUnassigned
	filter.Limit = pagination.NormalizeLimit(filter.Limit)

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list audit entries")
	}
	return rows, nil
}
