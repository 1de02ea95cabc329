package license

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	store, err := NewSQLiteStoreWithDB(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testKey(g1, g2, g3 string) string {
	return "SPR-" + g1 + "-" + g2 + "-" + g3 + "-" + ChecksumGroup(g1, g2, g3)
}

func TestActivateCreatesGrant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	grant, err := store.Activate(ctx, testKey("AAAA", "BBBB", "CCCC"), "acme")
	require.NoError(t, err)

	assert.True(t, grant.Active)
	assert.Equal(t, "acme", grant.ClientID)
	assert.Equal(t, DefaultPlan, grant.Plan)
	assert.Equal(t, DefaultSessionsLimit, grant.SessionsLimit)
	require.NotNil(t, grant.ExpiresAt)
	assert.True(t, grant.ExpiresAt.After(grant.ActivatedAt))
}

func TestActivateRejectsMalformedKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Activate(context.Background(), "not-a-key", "acme")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestActivateRejectsActiveKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := testKey("AAAA", "BBBB", "CCCC")

	_, err := store.Activate(ctx, key, "acme")
	require.NoError(t, err)

	_, err = store.Activate(ctx, key, "other")
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestActivateReactivatesReleasedKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := testKey("AAAA", "BBBB", "CCCC")

	first, err := store.Activate(ctx, key, "acme")
	require.NoError(t, err)

	_, err = store.Deactivate(ctx, "acme")
	require.NoError(t, err)

	second, err := store.Activate(ctx, key, "globex")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same grant row gets reactivated")
	assert.Equal(t, "globex", second.ClientID)
	assert.True(t, second.Active)
}

func TestActivateSupersedesClientsPreviousGrant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Activate(ctx, testKey("AAAA", "BBBB", "CCCC"), "acme")
	require.NoError(t, err)

	second, err := store.Activate(ctx, testKey("DDDD", "EEEE", "FFFF"), "acme")
	require.NoError(t, err)

	active, err := store.FindActive(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID, "only the most recent activation stays active")
}

func TestFindActiveReturnsNilForUnknownClient(t *testing.T) {
	store := newTestStore(t)

	grant, err := store.FindActive(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestDeactivateReportsAffectedRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Activate(ctx, testKey("AAAA", "BBBB", "CCCC"), "acme")
	require.NoError(t, err)

	affected, err := store.Deactivate(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = store.Deactivate(ctx, "acme")
	require.NoError(t, err)
	assert.Zero(t, affected, "second deactivation finds nothing active")
}

func TestDeactivateExpiredTargetsOneGrant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	grant, err := store.Activate(ctx, testKey("AAAA", "BBBB", "CCCC"), "acme")
	require.NoError(t, err)

	require.NoError(t, store.DeactivateExpired(ctx, grant.ID))

	active, err := store.FindActive(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestTouchValidationIncrementsBookkeeping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Activate(ctx, testKey("AAAA", "BBBB", "CCCC"), "acme")
	require.NoError(t, err)

	require.NoError(t, store.TouchValidation(ctx, "acme"))
	require.NoError(t, store.TouchValidation(ctx, "acme"))

	grant, err := store.FindActive(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, int64(2), grant.ValidationCount)
	assert.NotNil(t, grant.LastValidatedAt)
}
