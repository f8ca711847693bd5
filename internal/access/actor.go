package access

import (
	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
	"github.com/fabzclean/fabzclean-backend/pkg/outbox"
)

// Actor is the authenticated employee behind a request, plus the request
// metadata the audit trail keeps.
type Actor struct {
	UserID      uuid.UUID
	Name        string
	Role        enums.Role
	FranchiseID *uuid.UUID
	IPAddress   string
	UserAgent   string
}

// DisplayName falls back to the user id when the token carried no name.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.UserID.String()
}

// Ref converts the actor into the reference stored on outbox events.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:      a.UserID,
		FranchiseID: a.FranchiseID,
		Role:        a.Role.String(),
	}
}
