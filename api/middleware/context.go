package middleware

import (
	"context"

	"github.com/fabzclean/fabzclean-backend/internal/access"
	pkgerrors "github.com/fabzclean/fabzclean-backend/pkg/errors"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor stores the authenticated employee on the context.
func WithActor(ctx context.Context, actor access.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the employee seeded by Auth.
func ActorFromContext(ctx context.Context) (access.Actor, bool) {
	if ctx == nil {
		return access.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(access.Actor)
	return actor, ok
}

// RequireActor is ActorFromContext for handlers that cannot run anonymously.
func RequireActor(ctx context.Context) (access.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return access.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return actor, nil
}

func UserIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}

func FranchiseIDFromContext(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.FranchiseID != nil {
		return actor.FranchiseID.String()
	}
	return ""
}
