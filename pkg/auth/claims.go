package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

// AccessTokenPayload is what the identity service knows about an employee
// when it issues a token.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Name        string
	Role        enums.Role
	FranchiseID *uuid.UUID
	JTI         string
}

// AccessTokenClaims is the JWT body. FranchiseID is absent for admins.
type AccessTokenClaims struct {
	UserID      uuid.UUID  `json:"user_id"`
	Name        string     `json:"name,omitempty"`
	Role        enums.Role `json:"role"`
	FranchiseID *uuid.UUID `json:"franchise_id,omitempty"`
	jwt.RegisteredClaims
}
