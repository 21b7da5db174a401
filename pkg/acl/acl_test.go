package acl_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusfs/nimbusfs/pkg/acl"
	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
)

// fakeStore is a minimal in-memory acl.Store used only by this package's tests.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string][]ace.Entry // tenant|resourceUID -> entries
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string][]ace.Entry{}}
}

func (f *fakeStore) key(tenant, resourceUID string) string { return tenant + "|" + resourceUID }

func (f *fakeStore) GetACLsForResource(_ context.Context, tenant, resourceUID string) ([]ace.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ace.Entry(nil), f.entries[f.key(tenant, resourceUID)]...), nil
}

func (f *fakeStore) AddACL(_ context.Context, tenant string, entry ace.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(tenant, entry.ResourceUID)
	rows := f.entries[k]
	for i, row := range rows {
		if row.PrincipalID == entry.PrincipalID && row.PrincipalType == entry.PrincipalType {
			rows[i] = entry
			f.entries[k] = rows
			return nil
		}
	}
	f.entries[k] = append(rows, entry)
	return nil
}

func (f *fakeStore) RemoveACL(_ context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(tenant, resourceUID)
	rows := f.entries[k]
	for i, row := range rows {
		if row.PrincipalID == principalID && row.PrincipalType == principalType {
			f.entries[k] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func TestACLMatrixScenario(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ev := acl.NewEvaluator(store)

	const r = "R"
	require.NoError(t, ev.Grant(ctx, "t1", r, "users", ace.TypeRole, ace.Read))
	require.NoError(t, ev.Grant(ctx, "t1", r, "contributors", ace.TypeRole, ace.Read|ace.Write))
	require.NoError(t, ev.Grant(ctx, "t1", r, "admins", ace.TypeRole, ace.Read|ace.Write|ace.Delete|ace.Execute))

	ok, err := ev.CheckPermission(ctx, "t1", r, "u1", []string{"users"}, ace.Write)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ev.CheckPermission(ctx, "t1", r, "u2", []string{"contributors"}, ace.Write)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.CheckPermission(ctx, "t1", r, "u3", []string{"admins"}, ace.Delete)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.CheckPermission(ctx, "t1", clock.Root, "anyone", nil, ace.Read)
	require.NoError(t, err)
	assert.True(t, ok, "ROOT always grants read")
}

func TestUserRowsAreAdditiveWithRoleRows(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ev := acl.NewEvaluator(store)

	require.NoError(t, ev.Grant(ctx, "t1", "R", "editors", ace.TypeRole, ace.Write))
	require.NoError(t, ev.Grant(ctx, "t1", "R", "alice", ace.TypeUser, ace.Read))

	perm, err := ev.EffectivePermissions(ctx, "t1", "R", "alice", []string{"editors"})
	require.NoError(t, err)
	assert.True(t, perm.Has(ace.Read))
	assert.True(t, perm.Has(ace.Write), "user rows must not mask matching role rows")
}

func TestGrantRevokeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ev := acl.NewEvaluator(store)

	before, err := ev.EffectivePermissions(ctx, "t1", "R", "alice", nil)
	require.NoError(t, err)

	require.NoError(t, ev.Grant(ctx, "t1", "R", "alice", ace.TypeUser, ace.Write))
	require.NoError(t, ev.Revoke(ctx, "t1", "R", "alice", ace.TypeUser, ace.Write))

	after, err := ev.EffectivePermissions(ctx, "t1", "R", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestInheritCopiesParentEntriesAtCreationTime(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ev := acl.NewEvaluator(store)

	require.NoError(t, ev.Grant(ctx, "t1", "parent", "bob", ace.TypeUser, ace.Read|ace.Write))
	require.NoError(t, ev.Inherit(ctx, "t1", "parent", "child"))

	perm, err := ev.EffectivePermissions(ctx, "t1", "child", "bob", nil)
	require.NoError(t, err)
	assert.True(t, perm.Has(ace.Read|ace.Write))

	// Changes to the parent after creation are not retroactively visible on the child.
	require.NoError(t, ev.Grant(ctx, "t1", "parent", "bob", ace.TypeUser, ace.Delete))
	perm, err = ev.EffectivePermissions(ctx, "t1", "child", "bob", nil)
	require.NoError(t, err)
	assert.False(t, perm.Has(ace.Delete))
}
