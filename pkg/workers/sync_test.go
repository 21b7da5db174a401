package workers_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusfs/nimbusfs/pkg/blobstore/localfs"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/metadata/memstore"
	"github.com/nimbusfs/nimbusfs/pkg/workers"
)

type fakeRemote struct {
	data map[string][]byte
}

func newFakeRemote() *fakeRemote { return &fakeRemote{data: map[string][]byte{}} }

func (f *fakeRemote) Put(_ context.Context, tenant, uid, versionTS string, data []byte) (string, error) {
	path := tenant + "/" + uid + "/" + versionTS
	f.data[path] = data
	return path, nil
}
func (f *fakeRemote) Get(_ context.Context, _tenant, storagePath string) ([]byte, error) {
	return f.data[storagePath], nil
}
func (f *fakeRemote) Exists(_ context.Context, _tenant, storagePath string) (bool, error) {
	_, ok := f.data[storagePath]
	return ok, nil
}
func (f *fakeRemote) Delete(context.Context, string, string) error { return nil }
func (f *fakeRemote) PathFor(tenant, uid, versionTS string) string {
	return tenant + "/" + uid + "/" + versionTS
}
func (f *fakeRemote) BucketExists(context.Context) (bool, error) { return true, nil }
func (f *fakeRemote) Initialize(context.Context) error           { return nil }

func TestSynchroniserUploadsQueuedTask(t *testing.T) {
	ctx := context.Background()
	base, err := os.MkdirTemp("", "nimbusfs-sync-*")
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

	sync := workers.NewSynchroniser(store, local, remote, time.Hour)
	sync.Enqueue("t1", uid, ts)

	require.NoError(t, sync.TriggerSync(ctx))

	ok, err := remote.Exists(ctx, "t1", remote.PathFor("t1", uid, ts))
	require.NoError(t, err)
	assert.True(t, ok)

	synced, failed := sync.Counters()
	assert.Equal(t, int64(1), synced)
	assert.Equal(t, int64(0), failed)
}

func TestSynchroniserWithNoRemoteIsANoOp(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	sync := workers.NewSynchroniser(store, nil, nil, time.Hour)

	sync.Enqueue("t1", "u", "ts")
	require.NoError(t, sync.TriggerSync(ctx))

	synced, failed := sync.Counters()
	assert.Equal(t, int64(0), synced)
	assert.Equal(t, int64(0), failed)
}
