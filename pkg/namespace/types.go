package namespace

import (
	"time"

	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

// FileInfo is the public, read-only projection of a files row returned by
// Stat; size is the latest version's size, not stored on the row itself.
type FileInfo struct {
	UID            string
	Name           string
	ParentUID      string
	Type           metadata.FileType
	Owner          string
	ModeBits       uint32
	Size           int64
	CurrentVersion string
	CreatedAt      time.Time
	ModifiedAt     time.Time
	Deleted        bool
}

func fileInfoFrom(f metadata.File, size int64) FileInfo {
	return FileInfo{
		UID:            f.UID,
		Name:           f.Name,
		ParentUID:      f.ParentUID,
		Type:           f.Type,
		Owner:          f.Owner,
		ModeBits:       f.ModeBits,
		Size:           size,
		CurrentVersion: f.CurrentVersion,
		CreatedAt:      f.CreatedAt,
		ModifiedAt:     f.ModifiedAt,
		Deleted:        f.Deleted,
	}
}
