package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/fabzclean/fabzclean-backend/api/responses"
	"github.com/fabzclean/fabzclean-backend/internal/access"
	pkgAuth "github.com/fabzclean/fabzclean-backend/pkg/auth"
	"github.com/fabzclean/fabzclean-backend/pkg/config"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
)

const maxUserAgentLen = 512

// Auth validates the bearer token and seeds the request context with the
// acting employee, including the client address and user agent the audit
// trail records.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := access.Actor{
				UserID:      claims.UserID,
				Name:        claims.Name,
				Role:        claims.Role,
				FranchiseID: claims.FranchiseID,
				IPAddress:   clientIP(r),
				UserAgent:   truncate(r.UserAgent(), maxUserAgentLen),
			}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID.String())
				ctx = logg.WithActorRole(ctx, actor.Role.String())
				if actor.FranchiseID != nil {
					ctx = logg.WithFranchiseID(ctx, actor.FranchiseID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
