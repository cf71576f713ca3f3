package authz

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newPolicyStore(t *testing.T) *PolicyStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	store := NewPolicyStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store
}

func TestCheckAccessExactMatch(t *testing.T) {
	store := newPolicyStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPolicy(ctx, "alice", "/protocol/1", "GET"))

	allowed, err := store.CheckAccess(ctx, "alice", "/protocol/1", "GET")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = store.CheckAccess(ctx, "alice", "/protocol/2", "GET")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = store.CheckAccess(ctx, "bob", "/protocol/1", "GET")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestCheckAccessWildcards(t *testing.T) {
	store := newPolicyStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPolicy(ctx, "alice", "/run/3*", "*"))

	for _, path := range []string{"/run/3", "/run/3/sample", "/run/3/attachment"} {
		allowed, err := store.CheckAccess(ctx, "alice", path, "PUT")
		require.NoError(t, err)
		assert.True(t, allowed, path)
	}

	allowed, err := store.CheckAccess(ctx, "alice", "/run/4", "PUT")
	require.NoError(t, err)
	assert.False(t, allowed)

	// The wildcard stops at path boundaries.
	allowed, err = store.CheckAccess(ctx, "alice", "/run/30", "PUT")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAddPolicyIdempotent(t *testing.T) {
	store := newPolicyStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPolicy(ctx, "alice", "/protocol/1", "GET"))
	require.NoError(t, store.AddPolicy(ctx, "alice", "/protocol/1", "GET"))

	policies, err := store.GetPolicies(ctx, "alice", "", "")
	require.NoError(t, err)
	assert.Len(t, policies, 1)
}

func TestDeletePoliciesByFilter(t *testing.T) {
	store := newPolicyStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPolicy(ctx, "alice", "/protocol/1*", "GET"))
	require.NoError(t, store.AddPolicy(ctx, "alice", "/protocol/1*", "PUT"))
	require.NoError(t, store.AddPolicy(ctx, "bob", "/protocol/1*", "GET"))

	// Delete everything on the resource regardless of subject or method.
	require.NoError(t, store.DeletePolicies(ctx, "", "/protocol/1*", ""))

	policies, err := store.GetPolicies(ctx, "", "/protocol/1*", "")
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestGetPoliciesFilters(t *testing.T) {
	store := newPolicyStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddPolicy(ctx, "alice", "/protocol/1*", "GET"))
	require.NoError(t, store.AddPolicy(ctx, "bob", "/run/2*", "PUT"))

	policies, err := store.GetPolicies(ctx, "", "", "")
	require.NoError(t, err)
	assert.Len(t, policies, 2)

	policies, err = store.GetPolicies(ctx, "bob", "", "")
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "/run/2*", policies[0].Path)
}

func TestAllowAll(t *testing.T) {
	var enforcer Enforcer = AllowAll{}
	allowed, err := enforcer.CheckAccess(context.Background(), "anyone", "/anything", "DELETE")
	require.NoError(t, err)
	assert.True(t, allowed)
}
