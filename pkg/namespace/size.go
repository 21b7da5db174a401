package namespace

import (
	"context"

	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// sizeOf returns the size of f's current version, 0 for directories and
// never-written files.
func (e *Engine) sizeOf(ctx context.Context, b *tenant.Bundle, f metadata.File) (int64, error) {
	if f.Type == metadata.TypeDirectory || f.CurrentVersion == "" {
		return 0, nil
	}
	return b.Store.GetFileSize(ctx, b.ID, f.UID)
}
