package namespace

import (
	"context"
	"sort"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// ListVersions returns uid's versions newest-first by version_ts.
func (e *Engine) ListVersions(ctx context.Context, auth AuthContext, uid string) ([]metadata.Version, error) {
	return op(ctx, e, auth, uid, ace.ViewVersions, false, func(ctx context.Context, b *tenant.Bundle) ([]metadata.Version, error) {
		versions, err := b.Store.ListVersions(ctx, b.ID, uid)
		if err != nil {
			return nil, err
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].VersionTS > versions[j].VersionTS })
		return versions, nil
	})
}

// GetVersion reads the bytes of a specific version via the cache.
func (e *Engine) GetVersion(ctx context.Context, auth AuthContext, uid, versionTS string) ([]byte, error) {
	return op(ctx, e, auth, uid, ace.RetrieveBackVersion, false, func(ctx context.Context, b *tenant.Bundle) ([]byte, error) {
		if _, err := b.Store.GetStoragePath(ctx, b.ID, uid, versionTS); err != nil {
			return nil, errtypes.NoSuchVersion(versionTS)
		}
		return e.readVersion(ctx, b, uid, versionTS)
	})
}

// RestoreToVersion appends a new version row pointing at versionTS's blob
// and updates current_version; the original version is preserved.
func (e *Engine) RestoreToVersion(ctx context.Context, auth AuthContext, uid, versionTS string) error {
	_, err := op(ctx, e, auth, uid, ace.RestoreToVersion, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		newTS := clock.NewVersionTS()
		restored, err := b.Store.RestoreToVersion(ctx, b.ID, uid, versionTS, newTS)
		if err != nil {
			return struct{}{}, err
		}
		if err := b.Store.UpdateCurrentVersion(ctx, b.ID, uid, restored.VersionTS); err != nil {
			return struct{}{}, err
		}
		e.sync.Enqueue(b.ID, uid, restored.VersionTS)
		return struct{}{}, nil
	})
	return err
}
