// Package objectstore is the remote, append-only blob store: component C'.
// Objects are keyed <tenant>/<uid>/<version_ts> in an S3-compatible bucket
// via github.com/minio/minio-go/v7. Put accepts only an absent key or a
// byte-identical payload; overwriting with different bytes is an error.
// Delete is unsupported: the object store is authoritative history.
package objectstore

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
)

// Store is the remote object-store blob store.
type Store struct {
	client *minio.Client
	bucket string
}

// Config describes how to reach the S3-compatible endpoint.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
	UseSSL    bool
}

// New builds a Store from cfg.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookupStyle(cfg.PathStyle),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error building object store client")
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func lookupStyle(pathStyle bool) minio.BucketLookupType {
	if pathStyle {
		return minio.BucketLookupPath
	}
	return minio.BucketLookupAuto
}

// BucketExists reports whether the configured bucket is reachable,
// consulted by the sync worker's connection-health check.
func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return false, errtypes.IO(errors.Wrap(err, "error checking bucket existence").Error())
	}
	return ok, nil
}

// Initialize creates the bucket; a best-effort call made on sustained
// connection failure per the sync worker's reconnection contract.
func (s *Store) Initialize(ctx context.Context) error {
	err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: ""})
	if err != nil {
		exists, existsErr := s.BucketExists(ctx)
		if existsErr == nil && exists {
			return nil
		}
		return errtypes.IO(errors.Wrap(err, "error creating bucket").Error())
	}
	return nil
}

// PathFor deterministically derives <tenant>/<uid>/<version_ts>.
func (s *Store) PathFor(tenant, uid, versionTS string) string {
	return tenant + "/" + uid + "/" + versionTS
}

// Put accepts only an absent key or a byte-identical payload.
func (s *Store) Put(ctx context.Context, tenant, uid, versionTS string, data []byte) (string, error) {
	storagePath := s.PathFor(tenant, uid, versionTS)

	existing, err := s.Get(ctx, tenant, storagePath)
	switch {
	case err == nil:
		if !bytes.Equal(existing, data) {
			return "", errtypes.IO("object " + storagePath + " already exists with different content")
		}
		return storagePath, nil
	case isNotFound(err):
		// fall through to upload
	default:
		return "", err
	}

	_, err = s.client.PutObject(ctx, s.bucket, storagePath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return "", errtypes.IO(errors.Wrap(err, "error uploading object").Error())
	}
	return storagePath, nil
}

func isNotFound(err error) bool {
	var nf errtypes.IsNotFound
	return errors.As(err, &nf)
}

// Get downloads the object at storagePath.
func (s *Store) Get(ctx context.Context, _tenant, storagePath string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, storagePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, errtypes.IO(errors.Wrap(err, "error opening object").Error())
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, errtypes.NotFound(storagePath)
		}
		return nil, errtypes.IO(errors.Wrap(err, "error reading object").Error())
	}
	if len(data) == 0 {
		if _, statErr := s.client.StatObject(ctx, s.bucket, storagePath, minio.StatObjectOptions{}); statErr != nil {
			if resp := minio.ToErrorResponse(statErr); resp.Code == "NoSuchKey" {
				return nil, errtypes.NotFound(storagePath)
			}
		}
	}
	return data, nil
}

// Exists reports whether storagePath is present remotely.
func (s *Store) Exists(ctx context.Context, _tenant, storagePath string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, storagePath, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return false, nil
	}
	return false, errtypes.IO(errors.Wrap(err, "error checking object existence").Error())
}

// Delete is unsupported: the object store is append-only authoritative history.
func (s *Store) Delete(context.Context, string, string) error {
	return errtypes.IO("delete is not supported on the object store")
}
