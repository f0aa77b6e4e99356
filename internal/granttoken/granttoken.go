// Package granttoken issues short-lived JWTs describing an authorization
// grant. Downstream services verify the token instead of re-running the
// delegation flow within the same request fan-out.
package granttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "authrelay/pkg/domain"
	dErrors "authrelay/pkg/domain-errors"

	"authrelay/internal/delegation/models"
)

// Claims carries the grant in JWT form. Permissions are the effective set,
// already intersected; verifiers must not widen them.
type Claims struct {
	CredentialID   string   `json:"credential_id"`
	DelegatedEmail string   `json:"delegated_email,omitempty"`
	DelegatedUser  string   `json:"delegated_user_id,omitempty"`
	Permissions    []string `json:"permissions"`
	jwt.RegisteredClaims
}

// Service signs and validates grant tokens with a shared HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewService(signingKey, issuer string, ttl time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// Issue signs a token for a computed grant.
func (s *Service) Issue(credentialID id.CredentialID, grant *models.Grant, now time.Time) (string, error) {
	perms := make([]string, 0, len(grant.Permissions))
	for _, p := range grant.Permissions {
		perms = append(perms, string(p))
	}

	claims := Claims{
		CredentialID: credentialID.String(),
		Permissions:  perms,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	}
	if grant.Delegated && grant.Identity != nil {
		claims.DelegatedEmail = grant.Identity.Email
		claims.DelegatedUser = grant.Identity.ID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign grant token")
	}
	return signed, nil
}

// Validate parses and verifies a grant token.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "grant token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid grant token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid grant token claims")
	}
	return claims, nil
}
