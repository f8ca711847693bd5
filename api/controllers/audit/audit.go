package audit

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/api/middleware"
	"github.com/fabzclean/fabzclean-backend/api/responses"
	"github.com/fabzclean/fabzclean-backend/api/validators"
	internalaudit "github.com/fabzclean/fabzclean-backend/internal/audit"
	"github.com/fabzclean/fabzclean-backend/pkg/db/models"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
	"github.com/fabzclean/fabzclean-backend/pkg/pagination"
)

type entryView struct {
	ID           uuid.UUID       `json:"id"`
	EmployeeID   uuid.UUID       `json:"employeeId"`
	EmployeeName string          `json:"employeeName"`
	FranchiseID  *uuid.UUID      `json:"franchiseId,omitempty"`
	Action       string          `json:"action"`
	Severity     string          `json:"severity"`
	EntityType   string          `json:"entityType"`
	EntityID     uuid.UUID       `json:"entityId"`
	Details      json.RawMessage `json:"details"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func newEntryView(row models.AuditLogEntry) entryView {
	details := json.RawMessage(row.Details)
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	return entryView{
		ID:           row.ID,
		EmployeeID:   row.EmployeeID,
		EmployeeName: row.EmployeeName,
		FranchiseID:  row.FranchiseID,
		Action:       row.Action.String(),
		Severity:     row.Action.Severity(),
		EntityType:   string(row.EntityType),
		EntityID:     row.EntityID,
		Details:      details,
		IPAddress:    row.IPAddress,
		UserAgent:    row.UserAgent,
		CreatedAt:    row.CreatedAt,
	}
}

// List returns audit entries newest first, filtered by
// ?entityType, ?entityId, ?action and ?franchiseId (admin only).
func List(svc internalaudit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]entryView, 0, len(rows))
		for _, row := range rows {
			views = append(views, newEntryView(row))
		}
		responses.WriteSuccess(w, map[string]any{"items": views, "count": len(views)})
	}
}

func parseFilter(r *http.Request) (internalaudit.ListFilter, error) {
	var filter internalaudit.ListFilter
	query := r.URL.Query()

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit

	if raw := strings.TrimSpace(query.Get("entityType")); raw != "" {
		entityType, err := enums.ParseAuditEntityType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		filter.EntityType = entityType
	}
	if raw := strings.TrimSpace(query.Get("action")); raw != "" {
		action, err := enums.ParseAuditAction(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
		}
		filter.Action = action
	}
	if filter.EntityID, err = validators.ParseQueryUUID(r, "entityId"); err != nil {
		return filter, err
	}
	if filter.FranchiseID, err = validators.ParseQueryUUID(r, "franchiseId"); err != nil {
		return filter, err
	}
	return filter, nil
}
