package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fabzclean/fabzclean-backend/pkg/config"
	"github.com/fabzclean/fabzclean-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "fabzclean-identity", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()
	franchiseID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:      userID,
		Name:        " Priya ",
		Role:        enums.RoleFranchiseManager,
		FranchiseID: &franchiseID,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID || claims.Name != "Priya" {
		t.Fatalf("identity not preserved: %+v", claims)
	}
	if claims.FranchiseID == nil || *claims.FranchiseID != franchiseID {
		t.Fatalf("franchise id not preserved")
	}
	if claims.Role != enums.RoleFranchiseManager {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.ID == "" {
		t.Fatalf("expected a generated jti")
	}
	exp := now.Add(30 * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestParseAccessTokenRejectsTampering(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}

	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	franchiseID := uuid.New()
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{
		UserID:      uuid.New(),
		Role:        enums.RoleEmployee,
		FranchiseID: &franchiseID,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	_, err = ParseAccessToken(cfg, token)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiration error, got %v", err)
	}
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()
	cases := map[string]AccessTokenPayload{
		"missing role":      {UserID: uuid.New()},
		"missing user":      {Role: enums.RoleAdmin},
		"scoped, no branch": {UserID: uuid.New(), Role: enums.RoleEmployee},
	}
	for name, payload := range cases {
		if _, err := MintAccessToken(cfg, now, payload); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
