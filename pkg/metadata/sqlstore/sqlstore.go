// Package sqlstore is the relational implementation of metadata.Store. It
// runs over database/sql against either MySQL (github.com/go-sql-driver/mysql)
// or an embedded SQLite file (github.com/mattn/go-sqlite3); both drivers
// accept "?" placeholders so the query text below is dialect-agnostic.
//
// Per-tenant isolation is implemented as per-tenant table name prefixes
// rather than CREATE SCHEMA, since SQLite has no schema concept and this
// keeps the same query code working against either driver (see DESIGN.md).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

var logger = log.New("metadata/sqlstore")

var validTenant = regexp.MustCompile(`^[A-Za-z0-9_]{1,63}$`)

// Store is a database/sql-backed metadata.Store. primary is used for
// writes and consistent reads; replica, when non-nil, serves reads when
// primary is unavailable.
type Store struct {
	driver  string
	primary *sql.DB
	replica *sql.DB
}

// Open connects to driverName (mysql or sqlite3) using dsn for the primary
// connection, and optionally replicaDSN for a read replica.
func Open(driverName, dsn, replicaDSN string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error opening primary metadata store")
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	var replica *sql.DB
	if replicaDSN != "" {
		replica, err = sql.Open(driverName, replicaDSN)
		if err != nil {
			return nil, errors.Wrap(err, "error opening replica metadata store")
		}
	}

	return &Store{driver: driverName, primary: db, replica: replica}, nil
}

// readDB returns the replica when the primary is down and a replica is
// configured, otherwise the primary.
func (s *Store) readDB(ctx context.Context) *sql.DB {
	if s.replica == nil {
		return s.primary
	}
	if err := s.primary.PingContext(ctx); err != nil {
		return s.replica
	}
	return s.primary
}

// CheckConnection pings the primary, translating failure into ReadOnly per
// the health-monitor contract.
func (s *Store) CheckConnection(ctx context.Context) error {
	if err := s.primary.PingContext(ctx); err != nil {
		return errtypes.ReadOnly(err.Error())
	}
	return nil
}

func tablePrefix(tenant string) string { return "tenant_" + tenant + "_" }

// CreateTenantSchema creates the per-tenant tables if they do not already
// exist. Idempotent: CREATE TABLE IF NOT EXISTS.
func (s *Store) CreateTenantSchema(ctx context.Context, tenant string) error {
	if !validTenant.MatchString(tenant) {
		return errtypes.Internal("invalid tenant name: " + tenant)
	}
	p := tablePrefix(tenant)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sfiles (
			uid VARCHAR(36) PRIMARY KEY,
			name TEXT NOT NULL,
			parent_uid VARCHAR(36) NOT NULL,
			type VARCHAR(16) NOT NULL,
			owner TEXT NOT NULL,
			mode_bits INTEGER NOT NULL DEFAULT 0,
			current_version VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			modified_at DATETIME NOT NULL,
			deleted BOOLEAN NOT NULL DEFAULT 0,
			deleted_at DATETIME NULL
		)`, p),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %sfiles_parent_name ON %sfiles (parent_uid, name, deleted)`, p, p),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sversions (
			file_uid VARCHAR(36) NOT NULL,
			version_ts VARCHAR(64) NOT NULL,
			size BIGINT NOT NULL,
			storage_path TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (file_uid, version_ts)
		)`, p),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %smetadata (
			file_uid VARCHAR(36) NOT NULL,
			version_ts VARCHAR(64) NOT NULL,
			key_name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (file_uid, version_ts, key_name)
		)`, p),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %sfile_acls (
			resource_uid VARCHAR(36) NOT NULL,
			principal TEXT NOT NULL,
			principal_type VARCHAR(16) NOT NULL,
			permissions INTEGER NOT NULL,
			PRIMARY KEY (resource_uid, principal, principal_type)
		)`, p),
	}
	for _, stmt := range stmts {
		if _, err := s.primary.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "error creating tenant schema for %s", tenant)
		}
	}
	if err := s.ensureGlobalTables(ctx); err != nil {
		return err
	}
	return s.RegisterTenant(ctx, tenant)
}

func (s *Store) ensureGlobalTables(ctx context.Context) error {
	_, err := s.primary.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS file_access_stats (
		file_uid VARCHAR(36) NOT NULL,
		host TEXT NOT NULL,
		last_accessed DATETIME NOT NULL,
		access_count BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (file_uid, host)
	)`)
	if err != nil {
		return errors.Wrap(err, "error creating global access stats table")
	}
	_, err = s.primary.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS tenants (
		name VARCHAR(63) PRIMARY KEY,
		created_at DATETIME NOT NULL
	)`)
	if err != nil {
		return errors.Wrap(err, "error creating tenants table")
	}
	return nil
}

// TenantExists checks the tenant registry table; CreateTenantSchema records
// a tenant there once its tables are created (see RegisterTenant).
func (s *Store) TenantExists(ctx context.Context, tenant string) (bool, error) {
	var name string
	err := s.readDB(ctx).QueryRowContext(ctx, `SELECT name FROM tenants WHERE name = ?`, tenant).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "error checking tenant existence")
	}
	return true, nil
}

// RegisterTenant records a tenant in the registry table; called by
// CreateTenantSchema once the tenant's tables exist.
func (s *Store) RegisterTenant(ctx context.Context, tenant string) error {
	_, err := s.primary.ExecContext(ctx,
		`INSERT INTO tenants (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		tenant, time.Now().UTC())
	if err != nil {
		// Any failure, including a dialect without ON CONFLICT support, is
		// logged and otherwise ignored; the tenant is not registered then.
		logger.Warn(ctx).Err(err).Msg("tenant registration upsert failed, assuming already registered")
	}
	return nil
}

// ListTenants returns every registered tenant name.
func (s *Store) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := s.readDB(ctx).QueryContext(ctx, `SELECT name FROM tenants ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "error listing tenants")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// CleanupTenantData drops every per-tenant table. The caller is responsible
// for not touching the remote blob store (append-only, per spec).
func (s *Store) CleanupTenantData(ctx context.Context, tenant string) error {
	p := tablePrefix(tenant)
	for _, table := range []string{"files", "versions", "metadata", "file_acls"} {
		if _, err := s.primary.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s%s`, p, table)); err != nil {
			return errors.Wrapf(err, "error dropping %s%s", p, table)
		}
	}
	_, err := s.primary.ExecContext(ctx, `DELETE FROM tenants WHERE name = ?`, tenant)
	return errors.Wrap(err, "error deregistering tenant")
}

func scanFile(row interface{ Scan(...interface{}) error }) (metadata.File, error) {
	var f metadata.File
	var deletedAt sql.NullTime
	var deleted int
	err := row.Scan(&f.UID, &f.Name, &f.ParentUID, &f.Type, &f.Owner, &f.ModeBits,
		&f.CurrentVersion, &f.CreatedAt, &f.ModifiedAt, &deleted, &deletedAt)
	if err != nil {
		return metadata.File{}, err
	}
	f.Deleted = deleted != 0
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	return f, nil
}

const fileColumns = "uid, name, parent_uid, type, owner, mode_bits, current_version, created_at, modified_at, deleted, deleted_at"

// InsertFile inserts a new file row; the unique index on (parent_uid, name)
// where deleted=false (emulated here via an existence pre-check, since
// SQLite/MySQL partial indexes differ) makes a concurrent duplicate insert
// fail with Conflict.
func (s *Store) InsertFile(ctx context.Context, tenant string, f metadata.File) error {
	p := tablePrefix(tenant)
	var existing string
	err := s.primary.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uid FROM %sfiles WHERE parent_uid = ? AND name = ? AND deleted = 0`, p),
		f.ParentUID, f.Name).Scan(&existing)
	if err == nil {
		return errtypes.Conflict(f.Name)
	}
	if err != sql.ErrNoRows {
		return errors.Wrap(err, "error checking for name conflict")
	}

	_, err = s.primary.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %sfiles (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, p, fileColumns),
		f.UID, f.Name, f.ParentUID, f.Type, f.Owner, f.ModeBits, f.CurrentVersion,
		f.CreatedAt, f.ModifiedAt, boolToInt(f.Deleted), f.DeletedAt)
	if err != nil {
		return errors.Wrap(err, "error inserting file")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetByUID fetches a file row by uid.
func (s *Store) GetByUID(ctx context.Context, tenant, uid string, includeDeleted bool) (metadata.File, error) {
	p := tablePrefix(tenant)
	query := fmt.Sprintf(`SELECT %s FROM %sfiles WHERE uid = ?`, fileColumns, p)
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	f, err := scanFile(s.readDB(ctx).QueryRowContext(ctx, query, uid))
	if err == sql.ErrNoRows {
		return metadata.File{}, errtypes.NotFound(uid)
	}
	if err != nil {
		return metadata.File{}, errors.Wrap(err, "error fetching file by uid")
	}
	return f, nil
}

// GetByNameAndParent fetches a file row by (name, parent_uid).
func (s *Store) GetByNameAndParent(ctx context.Context, tenant, name, parentUID string, includeDeleted bool) (metadata.File, error) {
	p := tablePrefix(tenant)
	query := fmt.Sprintf(`SELECT %s FROM %sfiles WHERE name = ? AND parent_uid = ?`, fileColumns, p)
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	f, err := scanFile(s.readDB(ctx).QueryRowContext(ctx, query, name, parentUID))
	if err == sql.ErrNoRows {
		return metadata.File{}, errtypes.NotFound(name)
	}
	if err != nil {
		return metadata.File{}, errors.Wrap(err, "error fetching file by name and parent")
	}
	return f, nil
}

// UpdateName renames a file, rechecking the sibling uniqueness invariant.
func (s *Store) UpdateName(ctx context.Context, tenant, uid, newName string) error {
	p := tablePrefix(tenant)
	f, err := s.GetByUID(ctx, tenant, uid, true)
	if err != nil {
		return err
	}
	var existing string
	err = s.primary.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uid FROM %sfiles WHERE parent_uid = ? AND name = ? AND deleted = 0 AND uid != ?`, p),
		f.ParentUID, newName, uid).Scan(&existing)
	if err == nil {
		return errtypes.Conflict(newName)
	}
	if err != sql.ErrNoRows {
		return errors.Wrap(err, "error checking rename conflict")
	}
	_, err = s.primary.ExecContext(ctx, fmt.Sprintf(`UPDATE %sfiles SET name = ? WHERE uid = ?`, p), newName, uid)
	return errors.Wrap(err, "error renaming file")
}

// UpdateParent reparents a file, rechecking the sibling uniqueness invariant.
func (s *Store) UpdateParent(ctx context.Context, tenant, uid, newParentUID string) error {
	p := tablePrefix(tenant)
	f, err := s.GetByUID(ctx, tenant, uid, true)
	if err != nil {
		return err
	}
	var existing string
	err = s.primary.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uid FROM %sfiles WHERE parent_uid = ? AND name = ? AND deleted = 0 AND uid != ?`, p),
		newParentUID, f.Name, uid).Scan(&existing)
	if err == nil {
		return errtypes.Conflict(f.Name)
	}
	if err != sql.ErrNoRows {
		return errors.Wrap(err, "error checking move conflict")
	}
	_, err = s.primary.ExecContext(ctx, fmt.Sprintf(`UPDATE %sfiles SET parent_uid = ? WHERE uid = ?`, p), newParentUID, uid)
	return errors.Wrap(err, "error reparenting file")
}

// UpdateModified bumps modified_at.
func (s *Store) UpdateModified(ctx context.Context, tenant, uid string, at time.Time) error {
	p := tablePrefix(tenant)
	res, err := s.primary.ExecContext(ctx, fmt.Sprintf(`UPDATE %sfiles SET modified_at = ? WHERE uid = ?`, p), at, uid)
	return checkUpdated(res, err, uid)
}

// UpdateCurrentVersion flips current_version.
func (s *Store) UpdateCurrentVersion(ctx context.Context, tenant, uid, versionTS string) error {
	p := tablePrefix(tenant)
	res, err := s.primary.ExecContext(ctx, fmt.Sprintf(`UPDATE %sfiles SET current_version = ? WHERE uid = ?`, p), versionTS, uid)
	return checkUpdated(res, err, uid)
}

// SoftDelete flips the deleted flag.
func (s *Store) SoftDelete(ctx context.Context, tenant, uid string, at time.Time) error {
	p := tablePrefix(tenant)
	res, err := s.primary.ExecContext(ctx, fmt.Sprintf(`UPDATE %sfiles SET deleted = 1, deleted_at = ? WHERE uid = ?`, p), at, uid)
	return checkUpdated(res, err, uid)
}

// Undelete clears the deleted flag, rechecking the sibling uniqueness invariant.
func (s *Store) Undelete(ctx context.Context, tenant, uid string) error {
	p := tablePrefix(tenant)
	f, err := s.GetByUID(ctx, tenant, uid, true)
	if err != nil {
		return err
	}
	var existing string
	err = s.primary.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT uid FROM %sfiles WHERE parent_uid = ? AND name = ? AND deleted = 0 AND uid != ?`, p),
		f.ParentUID, f.Name, uid).Scan(&existing)
	if err == nil {
		return errtypes.Conflict(f.Name)
	}
	if err != sql.ErrNoRows {
		return errors.Wrap(err, "error checking undelete conflict")
	}
	res, err := s.primary.ExecContext(ctx, fmt.Sprintf(`UPDATE %sfiles SET deleted = 0, deleted_at = NULL WHERE uid = ?`, p), uid)
	return checkUpdated(res, err, uid)
}

func checkUpdated(res sql.Result, err error, uid string) error {
	if err != nil {
		return errors.Wrap(err, "error updating file")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error reading rows affected")
	}
	if n == 0 {
		return errtypes.NotFound(uid)
	}
	return nil
}

// ListChildren returns the non-self children of parentUID.
func (s *Store) ListChildren(ctx context.Context, tenant, parentUID string, includeDeleted bool) ([]metadata.File, error) {
	p := tablePrefix(tenant)
	query := fmt.Sprintf(`SELECT %s FROM %sfiles WHERE parent_uid = ? AND uid != ?`, fileColumns, p)
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY name`
	rows, err := s.readDB(ctx).QueryContext(ctx, query, parentUID, parentUID)
	if err != nil {
		return nil, errors.Wrap(err, "error listing children")
	}
	defer rows.Close()
	var out []metadata.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListAll returns every file row in the tenant.
func (s *Store) ListAll(ctx context.Context, tenant string) ([]metadata.File, error) {
	p := tablePrefix(tenant)
	rows, err := s.readDB(ctx).QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %sfiles ORDER BY uid`, fileColumns, p))
	if err != nil {
		return nil, errors.Wrap(err, "error listing all files")
	}
	defer rows.Close()
	var out []metadata.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFileSize returns the size of the file's current version.
func (s *Store) GetFileSize(ctx context.Context, tenant, uid string) (int64, error) {
	p := tablePrefix(tenant)
	var size sql.NullInt64
	err := s.readDB(ctx).QueryRowContext(ctx, fmt.Sprintf(`
		SELECT v.size FROM %sversions v
		JOIN %sfiles f ON f.uid = v.file_uid AND f.current_version = v.version_ts
		WHERE f.uid = ?`, p, p), uid).Scan(&size)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "error fetching file size")
	}
	return size.Int64, nil
}

// GetDirectorySize recursively sums the current-version size of every
// descendant regular file.
func (s *Store) GetDirectorySize(ctx context.Context, tenant, uid string) (int64, error) {
	var total int64
	children, err := s.ListChildren(ctx, tenant, uid, false)
	if err != nil {
		return 0, err
	}
	for _, c := range children {
		if c.Type == metadata.TypeDirectory {
			sub, err := s.GetDirectorySize(ctx, tenant, c.UID)
			if err != nil {
				return 0, err
			}
			total += sub
			continue
		}
		size, err := s.GetFileSize(ctx, tenant, c.UID)
		if err != nil {
			continue
		}
		total += size
	}
	return total, nil
}

// AppendVersion inserts a new immutable version row.
func (s *Store) AppendVersion(ctx context.Context, tenant string, v metadata.Version) error {
	p := tablePrefix(tenant)
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.primary.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %sversions (file_uid, version_ts, size, storage_path, created_at) VALUES (?, ?, ?, ?, ?)`, p),
		v.FileUID, v.VersionTS, v.Size, v.StoragePath, v.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "error appending version")
	}
	return nil
}

// GetStoragePath looks up the blob-store path for a specific version.
func (s *Store) GetStoragePath(ctx context.Context, tenant, uid, versionTS string) (string, error) {
	p := tablePrefix(tenant)
	var path string
	err := s.readDB(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT storage_path FROM %sversions WHERE file_uid = ? AND version_ts = ?`, p), uid, versionTS).Scan(&path)
	if err == sql.ErrNoRows {
		return "", errtypes.NoSuchVersion(versionTS)
	}
	return path, errors.Wrap(err, "error fetching storage path")
}

// ListVersions returns a file's versions, newest-first.
func (s *Store) ListVersions(ctx context.Context, tenant, uid string) ([]metadata.Version, error) {
	p := tablePrefix(tenant)
	rows, err := s.readDB(ctx).QueryContext(ctx,
		fmt.Sprintf(`SELECT file_uid, version_ts, size, storage_path, created_at FROM %sversions WHERE file_uid = ? ORDER BY version_ts DESC`, p), uid)
	if err != nil {
		return nil, errors.Wrap(err, "error listing versions")
	}
	defer rows.Close()
	var out []metadata.Version
	for rows.Next() {
		var v metadata.Version
		if err := rows.Scan(&v.FileUID, &v.VersionTS, &v.Size, &v.StoragePath, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RestoreToVersion duplicates the pointed-at version as a new top version.
func (s *Store) RestoreToVersion(ctx context.Context, tenant, uid, versionTS, newVersionTS string) (metadata.Version, error) {
	path, err := s.GetStoragePath(ctx, tenant, uid, versionTS)
	if err != nil {
		return metadata.Version{}, err
	}
	size, err := s.sizeOfVersion(ctx, tenant, uid, versionTS)
	if err != nil {
		return metadata.Version{}, err
	}
	restored := metadata.Version{FileUID: uid, VersionTS: newVersionTS, Size: size, StoragePath: path, CreatedAt: time.Now().UTC()}
	if err := s.AppendVersion(ctx, tenant, restored); err != nil {
		return metadata.Version{}, err
	}
	return restored, nil
}

func (s *Store) sizeOfVersion(ctx context.Context, tenant, uid, versionTS string) (int64, error) {
	p := tablePrefix(tenant)
	var size int64
	err := s.readDB(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT size FROM %sversions WHERE file_uid = ? AND version_ts = ?`, p), uid, versionTS).Scan(&size)
	return size, errors.Wrap(err, "error reading version size")
}

// DeleteVersion removes a version row and its metadata pairs.
func (s *Store) DeleteVersion(ctx context.Context, tenant, uid, versionTS string) error {
	p := tablePrefix(tenant)
	res, err := s.primary.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %sversions WHERE file_uid = ? AND version_ts = ?`, p), uid, versionTS)
	if err != nil {
		return errors.Wrap(err, "error deleting version")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errtypes.NoSuchVersion(versionTS)
	}
	_, err = s.primary.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %smetadata WHERE file_uid = ? AND version_ts = ?`, p), uid, versionTS)
	return errors.Wrap(err, "error deleting version metadata")
}

// SetMetadata upserts one metadata pair.
func (s *Store) SetMetadata(ctx context.Context, tenant, uid, versionTS, key, value string) error {
	p := tablePrefix(tenant)
	_, err := s.primary.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %smetadata WHERE file_uid = ? AND version_ts = ? AND key_name = ?`, p), uid, versionTS, key)
	if err != nil {
		return errors.Wrap(err, "error clearing old metadata value")
	}
	_, err = s.primary.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %smetadata (file_uid, version_ts, key_name, value) VALUES (?, ?, ?, ?)`, p), uid, versionTS, key, value)
	return errors.Wrap(err, "error setting metadata")
}

// GetMetadata reads one metadata value.
func (s *Store) GetMetadata(ctx context.Context, tenant, uid, versionTS, key string) (string, error) {
	p := tablePrefix(tenant)
	var value string
	err := s.readDB(ctx).QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %smetadata WHERE file_uid = ? AND version_ts = ? AND key_name = ?`, p), uid, versionTS, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errtypes.NotFound(key)
	}
	return value, errors.Wrap(err, "error getting metadata")
}

// GetAllMetadata returns every metadata pair for (uid, version_ts).
func (s *Store) GetAllMetadata(ctx context.Context, tenant, uid, versionTS string) (map[string]string, error) {
	p := tablePrefix(tenant)
	rows, err := s.readDB(ctx).QueryContext(ctx,
		fmt.Sprintf(`SELECT key_name, value FROM %smetadata WHERE file_uid = ? AND version_ts = ?`, p), uid, versionTS)
	if err != nil {
		return nil, errors.Wrap(err, "error listing metadata")
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// DeleteMetadata deletes one metadata pair.
func (s *Store) DeleteMetadata(ctx context.Context, tenant, uid, versionTS, key string) error {
	p := tablePrefix(tenant)
	_, err := s.primary.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %smetadata WHERE file_uid = ? AND version_ts = ? AND key_name = ?`, p), uid, versionTS, key)
	return errors.Wrap(err, "error deleting metadata")
}

// AddACL upserts one ACL row.
func (s *Store) AddACL(ctx context.Context, tenant string, entry ace.Entry) error {
	p := tablePrefix(tenant)
	_, err := s.primary.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %sfile_acls WHERE resource_uid = ? AND principal = ? AND principal_type = ?`, p),
		entry.ResourceUID, entry.PrincipalID, string(entry.PrincipalType))
	if err != nil {
		return errors.Wrap(err, "error clearing old acl row")
	}
	_, err = s.primary.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %sfile_acls (resource_uid, principal, principal_type, permissions) VALUES (?, ?, ?, ?)`, p),
		entry.ResourceUID, entry.PrincipalID, string(entry.PrincipalType), entry.Permissions)
	return errors.Wrap(err, "error adding acl row")
}

// RemoveACL deletes one ACL row.
func (s *Store) RemoveACL(ctx context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType) error {
	p := tablePrefix(tenant)
	_, err := s.primary.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %sfile_acls WHERE resource_uid = ? AND principal = ? AND principal_type = ?`, p),
		resourceUID, principalID, string(principalType))
	return errors.Wrap(err, "error removing acl row")
}

// GetACLsForResource returns every ACL row for resourceUID.
func (s *Store) GetACLsForResource(ctx context.Context, tenant, resourceUID string) ([]ace.Entry, error) {
	p := tablePrefix(tenant)
	rows, err := s.readDB(ctx).QueryContext(ctx,
		fmt.Sprintf(`SELECT resource_uid, principal, principal_type, permissions FROM %sfile_acls WHERE resource_uid = ?`, p), resourceUID)
	if err != nil {
		return nil, errors.Wrap(err, "error listing acl rows")
	}
	defer rows.Close()
	return scanACLRows(rows)
}

// GetUserACLs returns every ACL row naming user as a user-type principal.
func (s *Store) GetUserACLs(ctx context.Context, tenant, user string) ([]ace.Entry, error) {
	p := tablePrefix(tenant)
	rows, err := s.readDB(ctx).QueryContext(ctx,
		fmt.Sprintf(`SELECT resource_uid, principal, principal_type, permissions FROM %sfile_acls WHERE principal = ? AND principal_type = ?`, p),
		user, string(ace.TypeUser))
	if err != nil {
		return nil, errors.Wrap(err, "error listing user acl rows")
	}
	defer rows.Close()
	return scanACLRows(rows)
}

func scanACLRows(rows *sql.Rows) ([]ace.Entry, error) {
	var out []ace.Entry
	for rows.Next() {
		var e ace.Entry
		var pt string
		var perms uint16
		if err := rows.Scan(&e.ResourceUID, &e.PrincipalID, &pt, &perms); err != nil {
			return nil, err
		}
		e.PrincipalType = ace.PrincipalType(pt)
		e.Permissions = ace.Permission(perms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// TouchAccess upserts a (uid, host) access counter in the global table.
func (s *Store) TouchAccess(ctx context.Context, uid, host string) error {
	now := time.Now().UTC()
	res, err := s.primary.ExecContext(ctx,
		`UPDATE file_access_stats SET last_accessed = ?, access_count = access_count + 1 WHERE file_uid = ? AND host = ?`,
		now, uid, host)
	if err != nil {
		return errors.Wrap(err, "error touching access stat")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.primary.ExecContext(ctx,
		`INSERT INTO file_access_stats (file_uid, host, last_accessed, access_count) VALUES (?, ?, ?, 1)`, uid, host, now)
	return errors.Wrap(err, "error inserting access stat")
}

// LeastAccessed returns up to limit access stats for host, oldest first.
func (s *Store) LeastAccessed(ctx context.Context, host string, limit int) ([]metadata.AccessStat, error) {
	rows, err := s.readDB(ctx).QueryContext(ctx,
		`SELECT file_uid, host, last_accessed, access_count FROM file_access_stats WHERE host = ? ORDER BY last_accessed ASC LIMIT ?`,
		host, limit)
	if err != nil {
		return nil, errors.Wrap(err, "error listing least-accessed stats")
	}
	defer rows.Close()
	return scanStats(rows)
}

// InfrequentlyAccessed returns stats for host untouched in the last `days` days.
func (s *Store) InfrequentlyAccessed(ctx context.Context, host string, days int) ([]metadata.AccessStat, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.readDB(ctx).QueryContext(ctx,
		`SELECT file_uid, host, last_accessed, access_count FROM file_access_stats WHERE host = ? AND last_accessed < ? ORDER BY access_count ASC`,
		host, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "error listing infrequently-accessed stats")
	}
	defer rows.Close()
	return scanStats(rows)
}

func scanStats(rows *sql.Rows) ([]metadata.AccessStat, error) {
	var out []metadata.AccessStat
	for rows.Next() {
		var st metadata.AccessStat
		if err := rows.Scan(&st.FileUID, &st.Host, &st.LastAccessed, &st.AccessCount); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
