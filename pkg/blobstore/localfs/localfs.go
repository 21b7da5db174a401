// Package localfs is the local, mutable/evictable blob store: component C.
// Blobs live at <base>/<tenant>/<uid[0:2]>/<uid[2:4]>/<uid[4:6]>/<uid>/<version_ts>,
// written atomically with github.com/google/renameio/v2 and protected
// against concurrent writers of the same path with github.com/gofrs/flock.
package localfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/blobstore"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
)

// Store is the local filesystem blob store.
type Store struct {
	base  string
	codec blobstore.Codec
}

// New builds a Store rooted at base, using codec for on-write/on-read
// transforms (blobstore.IdentityCodec if none is configured).
func New(base string, codec blobstore.Codec) *Store {
	if codec == nil {
		codec = blobstore.IdentityCodec{}
	}
	return &Store{base: base, codec: codec}
}

// PathFor deterministically derives <base>/<tenant>/<uid[0:2]>/<uid[2:4]>/<uid[4:6]>/<uid>/<version_ts>.
func (s *Store) PathFor(tenant, uid, versionTS string) string {
	var p1, p2, p3 string
	switch {
	case len(uid) >= 6:
		p1, p2, p3 = uid[0:2], uid[2:4], uid[4:6]
	case len(uid) >= 4:
		p1, p2, p3 = uid[0:2], uid[2:4], "00"
	case len(uid) >= 2:
		p1, p2, p3 = uid[0:2], "00", "00"
	default:
		p1, p2, p3 = "00", "00", "00"
	}
	return filepath.Join(tenant, p1, p2, p3, uid, versionTS)
}

func (s *Store) abs(storagePath string) string {
	return filepath.Join(s.base, storagePath)
}

// EnsureTenant creates the tenant's subtree root, a no-op if it already exists.
func (s *Store) EnsureTenant(tenant string) error {
	return os.MkdirAll(filepath.Join(s.base, tenant), 0o750)
}

// Put writes data (after the configured codec's Encode) atomically and
// returns the deterministic storage path.
func (s *Store) Put(_ context.Context, tenant, uid, versionTS string, data []byte) (string, error) {
	storagePath := s.PathFor(tenant, uid, versionTS)
	abs := s.abs(storagePath)

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", errtypes.IO(errors.Wrap(err, "error creating blob directory").Error())
	}

	lock := flock.New(abs + ".lock")
	if err := lock.Lock(); err != nil {
		return "", errtypes.IO(errors.Wrap(err, "error acquiring blob lock").Error())
	}
	defer lock.Unlock()

	encoded, err := s.codec.Encode(data)
	if err != nil {
		return "", errtypes.IO(err.Error())
	}

	if err := renameio.WriteFile(abs, encoded, 0o640); err != nil {
		return "", errtypes.IO(errors.Wrap(err, "error writing blob").Error())
	}
	return storagePath, nil
}

// Get reads and decodes the blob at storagePath.
func (s *Store) Get(_ context.Context, _tenant, storagePath string) ([]byte, error) {
	abs := s.abs(storagePath)
	raw, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, errtypes.NotFound(storagePath)
	}
	if err != nil {
		return nil, errtypes.IO(err.Error())
	}
	decoded, err := s.codec.Decode(raw)
	if err != nil {
		return nil, errtypes.IO(err.Error())
	}
	return decoded, nil
}

// Exists reports whether storagePath is present on the local filesystem.
func (s *Store) Exists(_ context.Context, _tenant, storagePath string) (bool, error) {
	_, err := os.Stat(s.abs(storagePath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errtypes.IO(err.Error())
}

// Delete removes the blob file and its lock file; idempotent. Used by the culler.
func (s *Store) Delete(_ context.Context, _tenant, storagePath string) error {
	abs := s.abs(storagePath)
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return errtypes.IO(err.Error())
	}
	_ = os.Remove(abs + ".lock")
	return nil
}

// Blob is one entry discovered by Walk: a candidate (tenant, uid,
// version_ts) triple recovered purely from path structure.
type Blob struct {
	Tenant      string
	UID         string
	VersionTS   string
	StoragePath string
}

// Walk enumerates every blob under base, used by the sync worker's startup
// comprehensive scan. It parses tenant/uid/version_ts out of the
// <tenant>/<uid[0:2]>/<uid[2:4]>/<uid[4:6]>/<uid>/<version_ts> layout,
// validating the uid segment looks like a canonical 36-char dashed UUID,
// and skips lock files.
func (s *Store) Walk(fn func(Blob) error) error {
	return filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 6 {
			return nil
		}
		tenant, uid, versionTS := parts[0], parts[4], parts[5]
		if !isCanonicalUID(uid) {
			return nil
		}
		return fn(Blob{Tenant: tenant, UID: uid, VersionTS: versionTS, StoragePath: filepath.ToSlash(rel)})
	})
}

// isCanonicalUID checks for the 36-char, four-dash shape of a minted UID
// without pulling in a UUID parser just to validate path segments.
func isCanonicalUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
				return false
			}
		}
	}
	return true
}
