package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/metadata/memstore"
)

func TestInsertFileDuplicateNameConflicts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTenantSchema(ctx, "t1"))

	f := metadata.File{UID: "a", Name: "same", ParentUID: clock.Root, Type: metadata.TypeRegular}
	require.NoError(t, s.InsertFile(ctx, "t1", f))

	dup := metadata.File{UID: "b", Name: "same", ParentUID: clock.Root, Type: metadata.TypeRegular}
	err := s.InsertFile(ctx, "t1", dup)
	var conflict errtypes.IsConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestSoftDeleteThenUndeleteRestoresVisibility(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTenantSchema(ctx, "t1"))
	require.NoError(t, s.InsertFile(ctx, "t1", metadata.File{UID: "f1", Name: "f.txt", ParentUID: clock.Root, Type: metadata.TypeRegular}))

	require.NoError(t, s.SoftDelete(ctx, "t1", "f1", time.Now()))
	_, err := s.GetByUID(ctx, "t1", "f1", false)
	var nf errtypes.IsNotFound
	assert.ErrorAs(t, err, &nf)

	f, err := s.GetByUID(ctx, "t1", "f1", true)
	require.NoError(t, err)
	assert.True(t, f.Deleted)

	require.NoError(t, s.Undelete(ctx, "t1", "f1"))
	f, err = s.GetByUID(ctx, "t1", "f1", false)
	require.NoError(t, err)
	assert.False(t, f.Deleted)
}

func TestListVersionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTenantSchema(ctx, "t1"))

	require.NoError(t, s.AppendVersion(ctx, "t1", metadata.Version{FileUID: "f1", VersionTS: "20260101_000000.000", Size: 1}))
	require.NoError(t, s.AppendVersion(ctx, "t1", metadata.Version{FileUID: "f1", VersionTS: "20260101_000001.000", Size: 2}))
	require.NoError(t, s.AppendVersion(ctx, "t1", metadata.Version{FileUID: "f1", VersionTS: "20260101_000002.000", Size: 3}))

	versions, err := s.ListVersions(ctx, "t1", "f1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "20260101_000002.000", versions[0].VersionTS)
	assert.Equal(t, "20260101_000000.000", versions[2].VersionTS)
}

func TestMetadataUpsert(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CreateTenantSchema(ctx, "t1"))

	require.NoError(t, s.SetMetadata(ctx, "t1", "f1", "v1", "author", "alice"))
	v, err := s.GetMetadata(ctx, "t1", "f1", "v1", "author")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	require.NoError(t, s.SetMetadata(ctx, "t1", "f1", "v1", "author", "bob"))
	v, err = s.GetMetadata(ctx, "t1", "f1", "v1", "author")
	require.NoError(t, err)
	assert.Equal(t, "bob", v)
}

func TestPrimaryDownReportedOnCheckConnection(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	require.NoError(t, s.CheckConnection(ctx))

	s.SetPrimaryAvailable(false)
	err := s.CheckConnection(ctx)
	var ro errtypes.IsReadOnly
	assert.ErrorAs(t, err, &ro)
}
