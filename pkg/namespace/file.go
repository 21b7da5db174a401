package namespace

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// Touch inserts a zero-sized regular file row with no current version.
func (e *Engine) Touch(ctx context.Context, auth AuthContext, parent, name string) (string, error) {
	return op(ctx, e, auth, parent, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (string, error) {
		if _, err := b.Store.GetByNameAndParent(ctx, b.ID, name, parent, false); err == nil {
			return "", errtypes.Conflict(name)
		}

		uid := clock.NewUID()
		now := time.Now().UTC()
		f := metadata.File{
			UID:        uid,
			Name:       name,
			ParentUID:  parent,
			Type:       metadata.TypeRegular,
			Owner:      auth.User,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if err := b.Store.InsertFile(ctx, b.ID, f); err != nil {
			return "", err
		}
		if err := e.acls.Inherit(ctx, b.ID, parent, uid); err != nil {
			return "", err
		}
		if err := e.acls.GrantCreatorDefaults(ctx, b.ID, uid, auth.User); err != nil {
			return "", err
		}
		return uid, nil
	})
}

// Remove soft-deletes uid.
func (e *Engine) Remove(ctx context.Context, auth AuthContext, uid string) error {
	_, err := op(ctx, e, auth, uid, ace.Delete, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		if _, err := b.Store.GetByUID(ctx, b.ID, uid, false); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, b.Store.SoftDelete(ctx, b.ID, uid, time.Now().UTC())
	})
	return err
}

// Undelete clears the deleted flag, failing if a non-deleted sibling now
// shares the name.
func (e *Engine) Undelete(ctx context.Context, auth AuthContext, uid string) error {
	_, err := op(ctx, e, auth, uid, ace.Undelete, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		f, err := b.Store.GetByUID(ctx, b.ID, uid, true)
		if err != nil {
			return struct{}{}, err
		}
		if sibling, err := b.Store.GetByNameAndParent(ctx, b.ID, f.Name, f.ParentUID, false); err == nil && sibling.UID != uid {
			return struct{}{}, errtypes.Conflict(f.Name)
		}
		return struct{}{}, b.Store.Undelete(ctx, b.ID, uid)
	})
	return err
}

// Put mints a new version, writes it to the local blob store, admits it
// into the cache and enqueues it for sync.
func (e *Engine) Put(ctx context.Context, auth AuthContext, uid string, data []byte) error {
	_, err := op(ctx, e, auth, uid, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		f, err := b.Store.GetByUID(ctx, b.ID, uid, false)
		if err != nil {
			return struct{}{}, err
		}
		if f.Type != metadata.TypeRegular {
			return struct{}{}, errtypes.Internal("put target is not a regular file: " + uid)
		}

		versionTS := clock.NewVersionTS()
		storagePath, err := b.Local.Put(ctx, b.ID, uid, versionTS, data)
		if err != nil {
			return struct{}{}, err
		}

		v := metadata.Version{
			FileUID:     uid,
			VersionTS:   versionTS,
			Size:        int64(len(data)),
			StoragePath: storagePath,
			CreatedAt:   time.Now().UTC(),
		}
		if err := b.Store.AppendVersion(ctx, b.ID, v); err != nil {
			return struct{}{}, err
		}
		if err := b.Store.UpdateCurrentVersion(ctx, b.ID, uid, versionTS); err != nil {
			return struct{}{}, err
		}
		if err := b.Store.UpdateModified(ctx, b.ID, uid, v.CreatedAt); err != nil {
			return struct{}{}, err
		}

		if e.cache != nil {
			if admitErr := e.cache.Put(ctx, b.ID, storagePath, data); admitErr != nil {
				logger.Debug(ctx).Str("uid", uid).Err(admitErr).Msg("cache admission skipped on put")
			}
		}
		_ = b.Store.TouchAccess(ctx, uid, hostname())
		e.sync.Enqueue(b.ID, uid, versionTS)
		return struct{}{}, nil
	})
	return err
}

// Get resolves the current version and reads its bytes via the cache's
// fetch-if-missing path.
func (e *Engine) Get(ctx context.Context, auth AuthContext, uid string) ([]byte, error) {
	return op(ctx, e, auth, uid, ace.Read, false, func(ctx context.Context, b *tenant.Bundle) ([]byte, error) {
		f, err := b.Store.GetByUID(ctx, b.ID, uid, false)
		if err != nil {
			return nil, err
		}
		if f.CurrentVersion == "" {
			return nil, errtypes.NoVersion(uid)
		}
		data, err := e.readVersion(ctx, b, uid, f.CurrentVersion)
		if err != nil {
			return nil, err
		}
		_ = b.Store.TouchAccess(ctx, uid, hostname())
		return data, nil
	})
}

// Stat returns FileInfo for uid; size is the latest version's size.
func (e *Engine) Stat(ctx context.Context, auth AuthContext, uid string) (FileInfo, error) {
	return op(ctx, e, auth, uid, ace.Read, false, func(ctx context.Context, b *tenant.Bundle) (FileInfo, error) {
		f, err := b.Store.GetByUID(ctx, b.ID, uid, true)
		if err != nil {
			return FileInfo{}, err
		}
		size, err := e.sizeOf(ctx, b, f)
		if err != nil {
			return FileInfo{}, err
		}
		return fileInfoFrom(f, size), nil
	})
}

// Exists reports whether uid exists; ROOT always exists and no
// authorisation is required.
func (e *Engine) Exists(ctx context.Context, tenantID, uid string) (bool, error) {
	if uid == clock.Root {
		return true, nil
	}
	return op(ctx, e, AuthContext{Tenant: tenantID}, "", 0, false, func(ctx context.Context, b *tenant.Bundle) (bool, error) {
		_, err := b.Store.GetByUID(ctx, b.ID, uid, true)
		if err == nil {
			return true, nil
		}
		var nf errtypes.IsNotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	})
}

// readVersion fetches bytes for (uid, versionTS) through the cache's
// fetch-if-missing path, falling back to a direct local/remote read if no
// cache is configured.
func (e *Engine) readVersion(ctx context.Context, b *tenant.Bundle, uid, versionTS string) ([]byte, error) {
	storagePath, err := b.Store.GetStoragePath(ctx, b.ID, uid, versionTS)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		return e.cache.FetchIfMissing(ctx, b.ID, uid, versionTS, storagePath)
	}
	if ok, _ := b.Local.Exists(ctx, b.ID, storagePath); ok {
		return b.Local.Get(ctx, b.ID, storagePath)
	}
	if b.Remote != nil {
		return b.Remote.Get(ctx, b.ID, b.Remote.PathFor(b.ID, uid, versionTS))
	}
	return nil, errtypes.NotFound(storagePath)
}
