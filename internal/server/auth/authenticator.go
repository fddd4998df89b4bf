// Package auth verifies bearer credentials for the two trust domains of the
// service: human principals (JWT) and runner agents (shared secret), and
// resolves principals' roles from group membership.
package auth

import (
	"context"

	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// Authenticator turns a bearer token into an authenticated principal.
// Implementations return common.ErrUnauthenticated (possibly wrapped) for
// missing, malformed or expired credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*models.Principal, error)
}
