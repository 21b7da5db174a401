package namespace

import (
	"context"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// SetMetadata upserts key on uid's current version.
func (e *Engine) SetMetadata(ctx context.Context, auth AuthContext, uid, key, value string) error {
	return e.SetMetadataForVersion(ctx, auth, uid, "", key, value)
}

// SetMetadataForVersion upserts key on a specific version, or the current
// version if versionTS is empty.
func (e *Engine) SetMetadataForVersion(ctx context.Context, auth AuthContext, uid, versionTS, key, value string) error {
	_, err := op(ctx, e, auth, uid, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		ts, err := resolveVersionTS(ctx, b, uid, versionTS)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, b.Store.SetMetadata(ctx, b.ID, uid, ts, key, value)
	})
	return err
}

// GetMetadata reads key from uid's current version.
func (e *Engine) GetMetadata(ctx context.Context, auth AuthContext, uid, key string) (string, error) {
	return e.GetMetadataForVersion(ctx, auth, uid, "", key)
}

// GetMetadataForVersion reads key from a specific version, or the current
// version if versionTS is empty.
func (e *Engine) GetMetadataForVersion(ctx context.Context, auth AuthContext, uid, versionTS, key string) (string, error) {
	return op(ctx, e, auth, uid, ace.Read, false, func(ctx context.Context, b *tenant.Bundle) (string, error) {
		ts, err := resolveVersionTS(ctx, b, uid, versionTS)
		if err != nil {
			return "", err
		}
		return b.Store.GetMetadata(ctx, b.ID, uid, ts, key)
	})
}

// GetAllMetadata reads every key/value pair on uid's current version.
func (e *Engine) GetAllMetadata(ctx context.Context, auth AuthContext, uid string) (map[string]string, error) {
	return e.GetAllMetadataForVersion(ctx, auth, uid, "")
}

// GetAllMetadataForVersion reads every key/value pair on a specific
// version, or the current version if versionTS is empty.
func (e *Engine) GetAllMetadataForVersion(ctx context.Context, auth AuthContext, uid, versionTS string) (map[string]string, error) {
	return op(ctx, e, auth, uid, ace.Read, false, func(ctx context.Context, b *tenant.Bundle) (map[string]string, error) {
		ts, err := resolveVersionTS(ctx, b, uid, versionTS)
		if err != nil {
			return nil, err
		}
		return b.Store.GetAllMetadata(ctx, b.ID, uid, ts)
	})
}

// DeleteMetadata removes key from uid's current version.
func (e *Engine) DeleteMetadata(ctx context.Context, auth AuthContext, uid, key string) error {
	return e.DeleteMetadataForVersion(ctx, auth, uid, "", key)
}

// DeleteMetadataForVersion removes key from a specific version, or the
// current version if versionTS is empty.
func (e *Engine) DeleteMetadataForVersion(ctx context.Context, auth AuthContext, uid, versionTS, key string) error {
	_, err := op(ctx, e, auth, uid, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		ts, err := resolveVersionTS(ctx, b, uid, versionTS)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, b.Store.DeleteMetadata(ctx, b.ID, uid, ts, key)
	})
	return err
}

func resolveVersionTS(ctx context.Context, b *tenant.Bundle, uid, versionTS string) (string, error) {
	if versionTS != "" {
		return versionTS, nil
	}
	f, err := b.Store.GetByUID(ctx, b.ID, uid, false)
	if err != nil {
		return "", err
	}
	if f.CurrentVersion == "" {
		return "", errtypes.NoVersion(uid)
	}
	return f.CurrentVersion, nil
}
