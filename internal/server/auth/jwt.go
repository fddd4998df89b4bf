package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/server/models"
)

// Claims is the token claim set the service consumes: the registered claims
// plus the identity-provider attributes the role resolver and job
// attribution need.
type Claims struct {
	jwt.RegisteredClaims
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Email             string   `json:"email,omitempty"`
	Groups            []string `json:"groups,omitempty"`
	TenantID          string   `json:"tid,omitempty"`
}

// JWTAuthenticator verifies HS256-signed bearer tokens.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

// Authenticate parses and verifies the token and maps its claims to a
// Principal. Any parse or signature failure is reported as
// common.ErrUnauthenticated; no detail about the failure leaks to callers.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, bearer string) (*models.Principal, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, common.ErrUnauthenticated
	}
	if claims.Subject == "" {
		return nil, common.ErrUnauthenticated
	}

	return &models.Principal{
		SubjectID: claims.Subject,
		Name:      claims.Name,
		Username:  claims.PreferredUsername,
		Email:     claims.Email,
		Groups:    claims.Groups,
		TenantID:  claims.TenantID,
	}, nil
}

// GenerateToken signs a token for the given principal. Used by tests and
// local tooling; production tokens come from the identity provider.
func GenerateToken(p *models.Principal, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.SubjectID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Name:              p.Name,
		PreferredUsername: p.Username,
		Email:             p.Email,
		Groups:            p.Groups,
		TenantID:          p.TenantID,
	})

	return token.SignedString(secret)
}
