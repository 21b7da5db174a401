package namespace

import (
	"context"
	"time"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// Rename changes uid's name within its current parent, failing on a sibling
// name conflict.
func (e *Engine) Rename(ctx context.Context, auth AuthContext, uid, newName string) error {
	_, err := op(ctx, e, auth, uid, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		f, err := b.Store.GetByUID(ctx, b.ID, uid, false)
		if err != nil {
			return struct{}{}, err
		}
		if sibling, err := b.Store.GetByNameAndParent(ctx, b.ID, newName, f.ParentUID, false); err == nil && sibling.UID != uid {
			return struct{}{}, errtypes.Conflict(newName)
		}
		return struct{}{}, b.Store.UpdateName(ctx, b.ID, uid, newName)
	})
	return err
}

// Move reparents src under dstParent, failing on a directory cycle or name
// conflict. Both src and dstParent require write authorisation.
func (e *Engine) Move(ctx context.Context, auth AuthContext, src, dstParent string) error {
	if auth.Tenant == "" {
		auth.Tenant = tenant.DefaultTenant
	}
	if !e.PrimaryAvailable() {
		return errtypes.ReadOnly("primary metadata store is unavailable")
	}
	b, err := e.resolve(ctx, auth.Tenant)
	if err != nil {
		return err
	}
	if err := checkBoth(ctx, e, b.ID, auth.User, auth.Roles, src, ace.Write, dstParent, ace.Write); err != nil {
		return err
	}

	srcFile, err := b.Store.GetByUID(ctx, b.ID, src, false)
	if err != nil {
		return err
	}
	if err := e.rejectCycle(ctx, b, src, dstParent); err != nil {
		return err
	}
	if sibling, err := b.Store.GetByNameAndParent(ctx, b.ID, srcFile.Name, dstParent, false); err == nil && sibling.UID != src {
		return errtypes.Conflict(srcFile.Name)
	}
	return b.Store.UpdateParent(ctx, b.ID, src, dstParent)
}

// rejectCycle walks dstParent's ancestry up to ROOT, failing if src appears
// on the path (which would make src its own ancestor once reparented).
func (e *Engine) rejectCycle(ctx context.Context, b *tenant.Bundle, src, dstParent string) error {
	if src == dstParent {
		return errtypes.Cycle(src)
	}
	cur := dstParent
	for cur != clock.Root {
		f, err := b.Store.GetByUID(ctx, b.ID, cur, true)
		if err != nil {
			return err
		}
		if f.ParentUID == src {
			return errtypes.Cycle(src)
		}
		cur = f.ParentUID
	}
	return nil
}

// Copy deep-copies a file (new uid, new version, new blob) or recursively
// copies a directory. ACLs are inherited from dstParent, not the source.
func (e *Engine) Copy(ctx context.Context, auth AuthContext, src, dstParent string) (string, error) {
	if auth.Tenant == "" {
		auth.Tenant = tenant.DefaultTenant
	}
	if !e.PrimaryAvailable() {
		return "", errtypes.ReadOnly("primary metadata store is unavailable")
	}
	b, err := e.resolve(ctx, auth.Tenant)
	if err != nil {
		return "", err
	}
	if err := checkBoth(ctx, e, b.ID, auth.User, auth.Roles, src, ace.Read, dstParent, ace.Write); err != nil {
		return "", err
	}
	return e.copyRecursive(ctx, b, auth, src, dstParent)
}

func (e *Engine) copyRecursive(ctx context.Context, b *tenant.Bundle, auth AuthContext, src, dstParent string) (string, error) {
	f, err := b.Store.GetByUID(ctx, b.ID, src, false)
	if err != nil {
		return "", err
	}
	if _, err := b.Store.GetByNameAndParent(ctx, b.ID, f.Name, dstParent, false); err == nil {
		return "", errtypes.Conflict(f.Name)
	}

	newUID := clock.NewUID()
	now := time.Now().UTC()
	newFile := metadata.File{
		UID:        newUID,
		Name:       f.Name,
		ParentUID:  dstParent,
		Type:       f.Type,
		Owner:      auth.User,
		ModeBits:   f.ModeBits,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := b.Store.InsertFile(ctx, b.ID, newFile); err != nil {
		return "", err
	}
	if err := e.acls.Inherit(ctx, b.ID, dstParent, newUID); err != nil {
		return "", err
	}

	switch f.Type {
	case metadata.TypeDirectory:
		children, err := b.Store.ListChildren(ctx, b.ID, src, false)
		if err != nil {
			return "", err
		}
		for _, child := range children {
			if _, err := e.copyRecursive(ctx, b, auth, child.UID, newUID); err != nil {
				return "", err
			}
		}
	default:
		var newVersionTS string
		if f.CurrentVersion != "" {
			data, err := e.readVersion(ctx, b, src, f.CurrentVersion)
			if err != nil {
				return "", err
			}
			newVersionTS = clock.NewVersionTS()
			storagePath, err := b.Local.Put(ctx, b.ID, newUID, newVersionTS, data)
			if err != nil {
				return "", err
			}
			if err := b.Store.AppendVersion(ctx, b.ID, metadata.Version{
				FileUID: newUID, VersionTS: newVersionTS, Size: int64(len(data)),
				StoragePath: storagePath, CreatedAt: now,
			}); err != nil {
				return "", err
			}
			if err := b.Store.UpdateCurrentVersion(ctx, b.ID, newUID, newVersionTS); err != nil {
				return "", err
			}
			e.sync.Enqueue(b.ID, newUID, newVersionTS)
		}
		meta, err := b.Store.GetAllMetadata(ctx, b.ID, src, f.CurrentVersion)
		if err == nil {
			for k, v := range meta {
				_ = b.Store.SetMetadata(ctx, b.ID, newUID, newVersionTS, k, v)
			}
		}
	}

	return newUID, nil
}
