package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	raw, err := manager.Issue("acme", LicenseStateActive)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	identity, err := manager.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "acme", identity.ClientID)
	assert.Equal(t, LicenseStateActive, identity.LicenseState)
	assert.WithinDuration(t, time.Now().Add(time.Hour), identity.ExpiresAt, 5*time.Second)
}

func TestVerifyCarriesInactiveStateThrough(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	raw, err := manager.Issue("acme", LicenseStateInactive)
	require.NoError(t, err)

	identity, err := manager.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, LicenseStateInactive, identity.LicenseState,
		"verification reports the claim; policy lives with the caller")
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuerMgr, err := NewTokenManager("secret-one", time.Hour)
	require.NoError(t, err)
	verifierMgr, err := NewTokenManager("secret-two", time.Hour)
	require.NoError(t, err)

	raw, err := issuerMgr.Issue("acme", LicenseStateActive)
	require.NoError(t, err)

	_, err = verifierMgr.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	_, err = manager.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Minute)
	require.NoError(t, err)

	issued := time.Now().Add(-time.Hour)
	manager.now = func() time.Time { return issued }

	raw, err := manager.Issue("acme", LicenseStateActive)
	require.NoError(t, err)

	manager.now = time.Now
	_, err = manager.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", time.Hour)
	assert.Error(t, err)
}
