// Package blobstore defines the two interchangeable byte stores keyed by
// (uid, version): component C (local, mutable/evictable) and component C'
// (object store, append-only).
package blobstore

import "context"

// BlobStore is the shared contract implemented by the local filesystem
// store and the remote object store.
type BlobStore interface {
	// Put writes bytes for (uid, versionTS) under tenant and returns the
	// storage path the caller should persist in the version row.
	Put(ctx context.Context, tenant, uid, versionTS string, data []byte) (storagePath string, err error)
	// Get reads the bytes at storagePath.
	Get(ctx context.Context, tenant, storagePath string) ([]byte, error)
	// Exists reports whether storagePath is present.
	Exists(ctx context.Context, tenant, storagePath string) (bool, error)
	// Delete removes storagePath. The object store does not support this
	// and always returns an error; it is authoritative history.
	Delete(ctx context.Context, tenant, storagePath string) error
	// PathFor deterministically derives the storage path for (uid,
	// versionTS) under tenant, without touching the store, so the sync
	// worker can check remote existence without consulting the metadata
	// store.
	PathFor(tenant, uid, versionTS string) string
}

// Codec optionally transforms bytes on write and reverses the transform on
// read. The identity codec is the default; compression/encryption plugins
// satisfy this interface but are out of scope for the spec beyond
// round-trip identity.
type Codec interface {
	Encode(data []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// IdentityCodec performs no transformation.
type IdentityCodec struct{}

// Encode returns data unchanged.
func (IdentityCodec) Encode(data []byte) ([]byte, error) { return data, nil }

// Decode returns data unchanged.
func (IdentityCodec) Decode(data []byte) ([]byte, error) { return data, nil }
