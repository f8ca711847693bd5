package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/fabzclean/fabzclean-backend/api/responses"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
	"github.com/fabzclean/fabzclean-backend/pkg/logger"
)

// RateLimit throttles per employee once Auth has run, and per client IP
// otherwise. A non-positive limit disables it.
func RateLimit(limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if user := UserIDFromContext(r.Context()); user != "" {
		return "user:" + user, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
