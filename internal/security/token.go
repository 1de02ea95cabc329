// Package security manages the signed access tokens used by long-lived
// sessions. Tokens carry a license-state claim fixed at issuance time; the
// session authorizer re-validates license state against the authority
// independently of the signature check, so a stale claim can never extend
// access past deactivation.
package security

import (
	"errors"
	"fmt"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// License-state claim values
const (
	LicenseStateActive   = "active"
	LicenseStateInactive = "inactive"
)

const issuer = "sprcli"

// Token verification errors
var (
	ErrInvalidToken = errors.New("invalid access token")
	ErrTokenExpired = errors.New("access token expired")
)

// SessionClaims are the custom claims embedded in an access token
type SessionClaims struct {
	LicenseState string `json:"license_state"`
}

// TokenIdentity is the verified content of an access token
type TokenIdentity struct {
	ClientID     string
	LicenseState string
	ExpiresAt    time.Time
}

// TokenManager issues and verifies HMAC-signed access tokens
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	signer jose.Signer
	now    func() time.Time
}

// NewTokenManager creates a token manager with the given shared secret and
// token lifetime.
func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}

	key := []byte(secret)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	return &TokenManager{
		secret: key,
		ttl:    ttl,
		signer: signer,
		now:    time.Now,
	}, nil
}

// Issue creates a signed token for the client carrying the license state
// observed at issuance time.
func (m *TokenManager) Issue(clientID, licenseState string) (string, error) {
	now := m.now()

	claims := jwt.Claims{
		Issuer:   issuer,
		Subject:  clientID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(m.ttl)),
	}

	raw, err := jwt.Signed(m.signer).
		Claims(claims).
		Claims(SessionClaims{LicenseState: licenseState}).
		Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return raw, nil
}

// Verify checks the token signature and registered claims and returns the
// embedded identity. The license-state claim is returned as-is; callers
// decide what an inactive claim means for them.
func (m *TokenManager) Verify(raw string) (*TokenIdentity, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims jwt.Claims
	var session SessionClaims
	if err := parsed.Claims(m.secret, &claims, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := claims.Validate(jwt.Expected{Time: m.now()}); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	var expiresAt time.Time
	if claims.Expiry != nil {
		expiresAt = claims.Expiry.Time()
	}

	return &TokenIdentity{
		ClientID:     claims.Subject,
		LicenseState: session.LicenseState,
		ExpiresAt:    expiresAt,
	}, nil
}
