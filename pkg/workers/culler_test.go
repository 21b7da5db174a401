package workers_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusfs/nimbusfs/pkg/blobstore/localfs"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/metadata/memstore"
	"github.com/nimbusfs/nimbusfs/pkg/workers"
)

func TestCullerNeverDeletesSoleCopy(t *testing.T) {
	ctx := context.Background()
	base, err := os.MkdirTemp("", "nimbusfs-cull-*")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	store := memstore.New()
	require.NoError(t, store.CreateTenantSchema(ctx, "t1"))
	local := localfs.New(base, nil)
	remote := newFakeRemote() // blob not yet replicated

	uid := clock.NewUID()
	require.NoError(t, store.InsertFile(ctx, "t1", metadata.File{UID: uid, Name: "f", ParentUID: clock.Root, Type: metadata.TypeRegular}))
	ts := clock.NewVersionTS()
	storagePath, err := local.Put(ctx, "t1", uid, ts, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, store.AppendVersion(ctx, "t1", metadata.Version{FileUID: uid, VersionTS: ts, Size: 7, StoragePath: storagePath}))
	require.NoError(t, store.UpdateCurrentVersion(ctx, "t1", uid, ts))
	require.NoError(t, store.TouchAccess(ctx, uid, "host1"))

	c := workers.NewCuller(store, local, remote, nil, true, 0, workers.StrategyLRU, 50, "host1")
	require.NoError(t, c.RunOnce(ctx))

	exists, err := local.Exists(ctx, "t1", storagePath)
	require.NoError(t, err)
	assert.True(t, exists, "sole copy must never be culled")
}

func TestCullerDeletesLocalOnceReplicated(t *testing.T) {
	ctx := context.Background()
	base, err := os.MkdirTemp("", "nimbusfs-cull-*")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	store := memstore.New()
	require.NoError(t, store.CreateTenantSchema(ctx, "t1"))
	local := localfs.New(base, nil)
	remote := newFakeRemote()

	uid := clock.NewUID()
	require.NoError(t, store.InsertFile(ctx, "t1", metadata.File{UID: uid, Name: "f", ParentUID: clock.Root, Type: metadata.TypeRegular}))
	ts := clock.NewVersionTS()
	storagePath, err := local.Put(ctx, "t1", uid, ts, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, store.AppendVersion(ctx, "t1", metadata.Version{FileUID: uid, VersionTS: ts, Size: 7, StoragePath: storagePath}))
	require.NoError(t, store.UpdateCurrentVersion(ctx, "t1", uid, ts))
	require.NoError(t, store.TouchAccess(ctx, uid, "host1"))
	_, err = remote.Put(ctx, "t1", uid, ts, []byte("payload"))
	require.NoError(t, err)

	c := workers.NewCuller(store, local, remote, nil, true, 0, workers.StrategyLRU, 50, "host1")
	require.NoError(t, c.RunOnce(ctx))

	exists, err := local.Exists(ctx, "t1", storagePath)
	require.NoError(t, err)
	assert.False(t, exists, "replicated blob should be culled once usage crosses threshold")
}
