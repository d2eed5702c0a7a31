package tenant_test

import (
	"context"
	"testing"

	"github.com/shopfront-hq/shopfront/internal/auth"
	"github.com/shopfront-hq/shopfront/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeratorStore_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tenants := tenant.NewStore(pool)
	store := tenant.NewModeratorStore()

	tA, err := tenants.Create(ctx, "Tenant A", "tenant-a")
	require.NoError(t, err)
	tB, err := tenants.Create(ctx, "Tenant B", "tenant-b")
	require.NoError(t, err)

	hash, err := auth.HashPassword("first-pass")
	require.NoError(t, err)

	m, err := store.Create(ctx, pool, tA.ID, tenant.NewModerator{
		Email: "mod@example.com", Username: "mod", FirstName: "Olena",
	}, hash)
	require.NoError(t, err)
	assert.Equal(t, tenant.RoleModerator, m.Role)

	_, err = store.Create(ctx, pool, tB.ID, tenant.NewModerator{Email: "MOD@example.com", Username: "other"}, hash)
	assert.ErrorIs(t, err, tenant.ErrLoginTaken)

	_, err = store.GetByID(ctx, pool, tB.ID, m.ID)
	assert.ErrorIs(t, err, tenant.ErrModeratorNotFound, "other tenant must not see the moderator")

	list, err := store.List(ctx, pool, tA.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	newHash, err := auth.HashPassword("second-pass")
	require.NoError(t, err)
	require.NoError(t, store.SetPassword(ctx, pool, tA.ID, m.ID, newHash))
	got, err := store.PasswordHash(ctx, pool, tA.ID, m.ID)
	require.NoError(t, err)
	assert.NoError(t, auth.CheckPassword(got, "second-pass"))

	assert.ErrorIs(t, store.SetPassword(ctx, pool, tB.ID, m.ID, newHash), tenant.ErrModeratorNotFound)

	deactivated, err := store.Deactivate(ctx, pool, tA.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
}
