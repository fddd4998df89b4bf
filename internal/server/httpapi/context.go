package httpapi

import (
	"context"

	"github.com/sparkleops/dbdistrib/internal/server/auth"
	"github.com/sparkleops/dbdistrib/internal/server/models"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	roleKey      contextKey = "role"
	requestIDKey contextKey = "requestId"
)

func withPrincipal(ctx context.Context, p *models.Principal, role auth.Role) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return context.WithValue(ctx, roleKey, role)
}

// requestIDFrom returns the correlation id assigned by the request-id
// middleware, or "" outside a request.
func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// principalFrom returns the authenticated principal and resolved role stored
// by the human-auth middleware.
func principalFrom(ctx context.Context) (*models.Principal, auth.Role, bool) {
	p, ok := ctx.Value(principalKey).(*models.Principal)
	if !ok {
		return nil, "", false
	}
	role, ok := ctx.Value(roleKey).(auth.Role)
	if !ok {
		return nil, "", false
	}
	return p, role, true
}
