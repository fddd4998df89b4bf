package auth

import (
	"crypto/subtle"

	"github.com/sparkleops/dbdistrib/internal/common"
)

// RunnerAuthenticator verifies the runner trust domain: a single shared
// secret carried as a bearer token. Runners are a separate trust domain from
// human principals and never resolve to a role.
type RunnerAuthenticator struct {
	secret []byte
}

func NewRunnerAuthenticator(secret string) *RunnerAuthenticator {
	return &RunnerAuthenticator{secret: []byte(secret)}
}

// Verify compares the presented token against the configured secret in
// constant time.
func (a *RunnerAuthenticator) Verify(bearer string) error {
	if len(a.secret) == 0 {
		return common.ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(bearer), a.secret) != 1 {
		return common.ErrUnauthenticated
	}
	return nil
}
