package namespace

import (
	"context"
	"sort"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// TriggerSync is satisfied by the sync worker; enqueuing a demand pass is
// distinct from per-version Enqueue calls made by put/restore.
type TriggerSync interface {
	TriggerSync(ctx context.Context) error
}

// BackupToObjectStore enqueues every version of uid into the sync worker.
func (e *Engine) BackupToObjectStore(ctx context.Context, auth AuthContext, uid string) error {
	_, err := op(ctx, e, auth, uid, ace.Read, false, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		versions, err := b.Store.ListVersions(ctx, b.ID, uid)
		if err != nil {
			return struct{}{}, err
		}
		for _, v := range versions {
			e.sync.Enqueue(b.ID, uid, v.VersionTS)
		}
		return struct{}{}, nil
	})
	return err
}

// PurgeOldVersions removes versions of uid strictly older than the
// keep_count most recent, skipping the current version and any version not
// yet replicated to the remote store, per the spec's optional semantics.
func (e *Engine) PurgeOldVersions(ctx context.Context, auth AuthContext, uid string, keepCount int) (int, error) {
	return op(ctx, e, auth, uid, ace.Delete, true, func(ctx context.Context, b *tenant.Bundle) (int, error) {
		f, err := b.Store.GetByUID(ctx, b.ID, uid, true)
		if err != nil {
			return 0, err
		}
		versions, err := b.Store.ListVersions(ctx, b.ID, uid)
		if err != nil {
			return 0, err
		}
		sort.Slice(versions, func(i, j int) bool { return versions[i].VersionTS > versions[j].VersionTS })
		if keepCount < 0 {
			keepCount = 0
		}
		if len(versions) <= keepCount {
			return 0, nil
		}

		purged := 0
		for _, v := range versions[keepCount:] {
			if v.VersionTS == f.CurrentVersion {
				continue
			}
			if b.Remote == nil {
				continue
			}
			if ok, _ := b.Remote.Exists(ctx, b.ID, b.Remote.PathFor(b.ID, uid, v.VersionTS)); !ok {
				continue
			}
			if err := b.Store.DeleteVersion(ctx, b.ID, uid, v.VersionTS); err != nil {
				return purged, err
			}
			_ = b.Local.Delete(ctx, b.ID, v.StoragePath)
			purged++
		}
		return purged, nil
	})
}

// StorageUsage reports aggregate byte usage for a tenant, the payload of
// the administrative GetStorageUsage operation.
type StorageUsage struct {
	TotalBytes     int64
	CachedBytes    int64
	FileCount      int
	DirectoryCount int
}

// GetStorageUsage walks every file row in a tenant and sums current
// version sizes, exposing the result alongside the in-process cache's
// current occupancy.
func (e *Engine) GetStorageUsage(ctx context.Context, auth AuthContext) (StorageUsage, error) {
	return op(ctx, e, auth, "", 0, false, func(ctx context.Context, b *tenant.Bundle) (StorageUsage, error) {
		files, err := b.Store.ListAll(ctx, b.ID)
		if err != nil {
			return StorageUsage{}, err
		}
		var usage StorageUsage
		for _, f := range files {
			if f.Deleted {
				continue
			}
			switch f.Type {
			case metadata.TypeDirectory:
				usage.DirectoryCount++
			default:
				usage.FileCount++
				size, err := e.sizeOf(ctx, b, f)
				if err == nil {
					usage.TotalBytes += size
				}
			}
		}
		if e.cache != nil {
			usage.CachedBytes = e.cache.CurrentBytes()
		}
		return usage, nil
	})
}

// TriggerSyncNow forces an immediate sync pass via the worker, returning
// Busy if one is already in flight; sync is nil-safe for engines without a
// wired worker.
func (e *Engine) TriggerSyncNow(ctx context.Context) error {
	if trigger, ok := e.sync.(TriggerSync); ok {
		return trigger.TriggerSync(ctx)
	}
	return nil
}
