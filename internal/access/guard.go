// Package access decides which employees may read or change a customer's
// credit ledger. Checks run on the owning franchise alone, so a rejection
// never depends on ledger data.
package access

import (
	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
)

// Capability is an operation class the guard authorizes.
type Capability string

const (
	// CapabilityViewSummary covers the balance summary and order payment view.
	CapabilityViewSummary Capability = "view_summary"
	// CapabilityViewHistory covers transaction pages, reports and audit reads.
	CapabilityViewHistory Capability = "view_history"
	// CapabilityMutate covers credit, payment, refund, settlement, wallet and status changes.
	CapabilityMutate Capability = "mutate"
	// CapabilityAdjust covers admin adjustments and ledger reconciliation.
	CapabilityAdjust Capability = "adjust"
)

var minimumRole = map[Capability]enums.Role{
	CapabilityViewSummary: enums.RoleEmployee,
	CapabilityViewHistory: enums.RoleFranchiseManager,
	CapabilityMutate:      enums.RoleFranchiseManager,
	CapabilityAdjust:      enums.RoleAdmin,
}

// Authorize checks the actor against a customer or order owned by
// ownerFranchise (nil for unassigned, globally visible records).
func Authorize(actor Actor, ownerFranchise *uuid.UUID, capability Capability) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	min, ok := minimumRole[capability]
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeInternal, "unknown capability %q", capability)
	}
	if !actor.Role.AtLeast(min) {
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s may not %s", actor.Role, describe(capability))
	}
	if actor.Role == enums.RoleAdmin {
		return nil
	}
	if actor.FranchiseID == nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "franchise scope missing")
	}
	if ownerFranchise == nil {
		return nil
	}
	if *ownerFranchise != *actor.FranchiseID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "record belongs to another franchise")
	}
	return nil
}

// Scope is the franchise filter applied to list queries.
type Scope struct {
	// All is set for admins without an explicit franchise filter.
	All bool
	// FranchiseID restricts rows to one franchise.
	FranchiseID *uuid.UUID
	// IncludeUnassigned also returns rows with no franchise.
	IncludeUnassigned bool
}

// ListScope resolves the filter for a list query. Admins may narrow to one
// franchise; scoped roles always see their own franchise plus unassigned
// rows and are rejected when they ask for another franchise.
func ListScope(actor Actor, requested *uuid.UUID, capability Capability) (Scope, error) {
	if actor.UserID == uuid.Nil {
		return Scope{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	min, ok := minimumRole[capability]
	if !ok {
		return Scope{}, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown capability %q", capability)
	}
	if !actor.Role.AtLeast(min) {
		return Scope{}, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s may not %s", actor.Role, describe(capability))
	}
	if actor.Role == enums.RoleAdmin {
		if requested != nil {
			return Scope{FranchiseID: requested}, nil
		}
		return Scope{All: true}, nil
	}
	if actor.FranchiseID == nil {
		return Scope{}, pkgerrors.New(pkgerrors.CodeForbidden, "franchise scope missing")
	}
	if requested != nil && *requested != *actor.FranchiseID {
		return Scope{}, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list another franchise")
	}
	return Scope{FranchiseID: actor.FranchiseID, IncludeUnassigned: true}, nil
}

func describe(capability Capability) string {
	switch capability {
	case CapabilityViewSummary:
		return "view credit summaries"
	case CapabilityViewHistory:
		return "view credit history"
	case CapabilityMutate:
		return "change credit balances"
	case CapabilityAdjust:
		return "adjust credit balances"
	default:
		return string(capability)
	}
}
