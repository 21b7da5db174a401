// Package metadata defines the Metadata Store contract (component B): the
// transactional persistence of files, versions, metadata key-value pairs,
// ACL rows and access statistics, with a per-tenant schema.
package metadata

import (
	"context"
	"time"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
)

// FileType is the closed set of file kinds.
type FileType string

// The file kinds a File row can hold.
const (
	TypeRegular   FileType = "regular_file"
	TypeDirectory FileType = "directory"
	TypeSymlink   FileType = "symlink"
)

// File is a namespace row: a file, directory, or symlink.
type File struct {
	UID            string
	Name           string
	ParentUID      string
	Type           FileType
	Owner          string
	ModeBits       uint32
	CurrentVersion string // empty for directories / never-written files
	CreatedAt      time.Time
	ModifiedAt     time.Time
	Deleted        bool
	DeletedAt      *time.Time
}

// Version is one immutable content version of a file.
type Version struct {
	FileUID     string
	VersionTS   string
	Size        int64
	StoragePath string
	CreatedAt   time.Time
}

// AccessStat is a host-local access counter, global across tenants.
type AccessStat struct {
	FileUID      string
	Host         string
	LastAccessed time.Time
	AccessCount  int64
}

// Store is the transactional contract over files, versions, metadata pairs,
// ACL rows and access statistics that the namespace engine requires.
// Implementations may be a real RDBMS with per-tenant schemas or an
// embedded store; the contract only requires serialisable-per-operation
// consistency with read-committed isolation.
type Store interface {
	// File CRUD.
	InsertFile(ctx context.Context, tenant string, f File) error
	GetByUID(ctx context.Context, tenant, uid string, includeDeleted bool) (File, error)
	GetByNameAndParent(ctx context.Context, tenant, name, parentUID string, includeDeleted bool) (File, error)
	UpdateName(ctx context.Context, tenant, uid, newName string) error
	UpdateParent(ctx context.Context, tenant, uid, newParentUID string) error
	UpdateModified(ctx context.Context, tenant, uid string, at time.Time) error
	UpdateCurrentVersion(ctx context.Context, tenant, uid, versionTS string) error
	SoftDelete(ctx context.Context, tenant, uid string, at time.Time) error
	Undelete(ctx context.Context, tenant, uid string) error
	ListChildren(ctx context.Context, tenant, parentUID string, includeDeleted bool) ([]File, error)
	ListAll(ctx context.Context, tenant string) ([]File, error)
	GetFileSize(ctx context.Context, tenant, uid string) (int64, error)
	GetDirectorySize(ctx context.Context, tenant, uid string) (int64, error)

	// Versions.
	AppendVersion(ctx context.Context, tenant string, v Version) error
	GetStoragePath(ctx context.Context, tenant, uid, versionTS string) (string, error)
	ListVersions(ctx context.Context, tenant, uid string) ([]Version, error)
	RestoreToVersion(ctx context.Context, tenant, uid, versionTS string, newVersionTS string) (Version, error)
	DeleteVersion(ctx context.Context, tenant, uid, versionTS string) error

	// Metadata key-value, keyed by (file_uid, version_ts, key).
	SetMetadata(ctx context.Context, tenant, uid, versionTS, key, value string) error
	GetMetadata(ctx context.Context, tenant, uid, versionTS, key string) (string, error)
	GetAllMetadata(ctx context.Context, tenant, uid, versionTS string) (map[string]string, error)
	DeleteMetadata(ctx context.Context, tenant, uid, versionTS, key string) error

	// ACL.
	AddACL(ctx context.Context, tenant string, entry ace.Entry) error
	RemoveACL(ctx context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType) error
	GetACLsForResource(ctx context.Context, tenant, resourceUID string) ([]ace.Entry, error)
	GetUserACLs(ctx context.Context, tenant, user string) ([]ace.Entry, error)

	// Access statistics (global, not tenant-scoped).
	TouchAccess(ctx context.Context, uid, host string) error
	LeastAccessed(ctx context.Context, host string, limit int) ([]AccessStat, error)
	InfrequentlyAccessed(ctx context.Context, host string, days int) ([]AccessStat, error)

	// Tenant admin.
	CreateTenantSchema(ctx context.Context, tenant string) error
	TenantExists(ctx context.Context, tenant string) (bool, error)
	CleanupTenantData(ctx context.Context, tenant string) error
	ListTenants(ctx context.Context) ([]string, error)

	// Health.
	CheckConnection(ctx context.Context) error
}

// Replica is the read-only handle kept available when the primary is down.
// It exposes the read operations of Store.
type Replica interface {
	GetByUID(ctx context.Context, tenant, uid string, includeDeleted bool) (File, error)
	GetByNameAndParent(ctx context.Context, tenant, name, parentUID string, includeDeleted bool) (File, error)
	ListChildren(ctx context.Context, tenant, parentUID string, includeDeleted bool) ([]File, error)
	ListAll(ctx context.Context, tenant string) ([]File, error)
	ListVersions(ctx context.Context, tenant, uid string) ([]Version, error)
	GetStoragePath(ctx context.Context, tenant, uid, versionTS string) (string, error)
	GetACLsForResource(ctx context.Context, tenant, resourceUID string) ([]ace.Entry, error)
	CheckConnection(ctx context.Context) error
}
