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

// Mkdir inserts a directory row under parent, inheriting the parent's ACLs
// and granting the creator full rights plus "other" read.
func (e *Engine) Mkdir(ctx context.Context, auth AuthContext, parent, name string) (string, error) {
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
			Type:       metadata.TypeDirectory,
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
		logger.Info(ctx).Str("uid", uid).Str("op", "mkdir").Msg("directory created")
		return uid, nil
	})
}

// Rmdir soft-deletes a directory row; children are not cascaded.
func (e *Engine) Rmdir(ctx context.Context, auth AuthContext, uid string) error {
	_, err := op(ctx, e, auth, uid, ace.Delete, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		if _, err := b.Store.GetByUID(ctx, b.ID, uid, false); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, b.Store.SoftDelete(ctx, b.ID, uid, time.Now().UTC())
	})
	return err
}

// ListDir returns the non-deleted children of uid.
func (e *Engine) ListDir(ctx context.Context, auth AuthContext, uid string) ([]FileInfo, error) {
	return op(ctx, e, auth, uid, ace.Read, false, func(ctx context.Context, b *tenant.Bundle) ([]FileInfo, error) {
		return e.listChildren(ctx, b, uid, false)
	})
}

// ListDirWithDeleted returns every child of uid, including soft-deleted ones.
func (e *Engine) ListDirWithDeleted(ctx context.Context, auth AuthContext, uid string) ([]FileInfo, error) {
	return op(ctx, e, auth, uid, ace.ListDeleted, false, func(ctx context.Context, b *tenant.Bundle) ([]FileInfo, error) {
		return e.listChildren(ctx, b, uid, true)
	})
}

func (e *Engine) listChildren(ctx context.Context, b *tenant.Bundle, parent string, includeDeleted bool) ([]FileInfo, error) {
	children, err := b.Store.ListChildren(ctx, b.ID, parent, includeDeleted)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(children))
	for _, c := range children {
		size, _ := e.sizeOf(ctx, b, c)
		out = append(out, fileInfoFrom(c, size))
	}
	return out, nil
}
