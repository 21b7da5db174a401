// Package memstore is an in-process implementation of metadata.Store,
// structured the way the reference SQL schema is (per-tenant file/version/
// metadata/acl tables, a global access-stats table) but backed by maps
// instead of a database connection. It satisfies the full metadata.Store
// contract and doubles as the Replica handle, which is what makes it usable
// both for unit tests and as an embedded default for single-node
// deployments that do not need a real RDBMS.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

type tenantData struct {
	files    map[string]metadata.File
	versions map[string][]metadata.Version // file uid -> versions, append order
	metaKV   map[string]map[string]string  // "uid|ts" -> key -> value
	acls     map[string][]ace.Entry        // resource uid -> entries
}

func newTenantData() *tenantData {
	return &tenantData{
		files:    map[string]metadata.File{},
		versions: map[string][]metadata.Version{},
		metaKV:   map[string]map[string]string{},
		acls:     map[string][]ace.Entry{},
	}
}

// Store is an in-memory metadata.Store.
type Store struct {
	mu       sync.RWMutex
	tenants  map[string]*tenantData
	stats    map[string]map[string]*metadata.AccessStat // uid -> host -> stat
	primary  bool
}

// New builds an empty in-memory store, primary available.
func New() *Store {
	return &Store{
		tenants: map[string]*tenantData{},
		stats:   map[string]map[string]*metadata.AccessStat{},
		primary: true,
	}
}

// SetPrimaryAvailable flips the simulated primary-down state, used by tests
// exercising read-only mode.
func (s *Store) SetPrimaryAvailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = v
}

func (s *Store) tenantLocked(tenant string) *tenantData {
	t, ok := s.tenants[tenant]
	if !ok {
		t = newTenantData()
		s.tenants[tenant] = t
	}
	return t
}

func metaKey(uid, versionTS string) string { return uid + "|" + versionTS }

// CreateTenantSchema is idempotent; it just ensures the in-memory bucket exists.
func (s *Store) CreateTenantSchema(_ context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenantLocked(tenant)
	return nil
}

// TenantExists reports whether the tenant bucket has been created.
func (s *Store) TenantExists(_ context.Context, tenant string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tenants[tenant]
	return ok, nil
}

// CleanupTenantData drops the tenant's bucket entirely.
func (s *Store) CleanupTenantData(_ context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, tenant)
	return nil
}

// ListTenants returns every tenant with a bucket.
func (s *Store) ListTenants(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tenants))
	for k := range s.tenants {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// CheckConnection reports the simulated primary's health.
func (s *Store) CheckConnection(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.primary {
		return errtypes.ReadOnly("primary connection unavailable")
	}
	return nil
}

// InsertFile inserts a new file row, enforcing the (name, parent_uid)
// uniqueness invariant among non-deleted siblings.
func (s *Store) InsertFile(_ context.Context, tenant string, f metadata.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantLocked(tenant)
	for _, existing := range t.files {
		if !existing.Deleted && existing.ParentUID == f.ParentUID && existing.Name == f.Name {
			return errtypes.Conflict(f.Name)
		}
	}
	t.files[f.UID] = f
	return nil
}

// GetByUID returns the file row for uid, or NotFound.
func (s *Store) GetByUID(_ context.Context, tenant, uid string, includeDeleted bool) (metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return metadata.File{}, errtypes.NotFound(uid)
	}
	f, ok := t.files[uid]
	if !ok || (f.Deleted && !includeDeleted) {
		return metadata.File{}, errtypes.NotFound(uid)
	}
	return f, nil
}

// GetByNameAndParent looks up a child by (name, parent_uid).
func (s *Store) GetByNameAndParent(_ context.Context, tenant, name, parentUID string, includeDeleted bool) (metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return metadata.File{}, errtypes.NotFound(name)
	}
	for _, f := range t.files {
		if f.ParentUID == parentUID && f.Name == name {
			if f.Deleted && !includeDeleted {
				continue
			}
			return f, nil
		}
	}
	return metadata.File{}, errtypes.NotFound(name)
}

func (s *Store) mustFile(t *tenantData, uid string) (metadata.File, error) {
	f, ok := t.files[uid]
	if !ok {
		return metadata.File{}, errtypes.NotFound(uid)
	}
	return f, nil
}

// UpdateName renames a file row in place, re-checking the sibling uniqueness invariant.
func (s *Store) UpdateName(_ context.Context, tenant, uid, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return err
	}
	for otherUID, other := range t.files {
		if otherUID != uid && !other.Deleted && other.ParentUID == f.ParentUID && other.Name == newName {
			return errtypes.Conflict(newName)
		}
	}
	f.Name = newName
	t.files[uid] = f
	return nil
}

// UpdateParent reparents a file row.
func (s *Store) UpdateParent(_ context.Context, tenant, uid, newParentUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return err
	}
	for otherUID, other := range t.files {
		if otherUID != uid && !other.Deleted && other.ParentUID == newParentUID && other.Name == f.Name {
			return errtypes.Conflict(f.Name)
		}
	}
	f.ParentUID = newParentUID
	t.files[uid] = f
	return nil
}

// UpdateModified bumps a file's modified_at timestamp.
func (s *Store) UpdateModified(_ context.Context, tenant, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return err
	}
	f.ModifiedAt = at
	t.files[uid] = f
	return nil
}

// UpdateCurrentVersion flips the file's current_version pointer.
func (s *Store) UpdateCurrentVersion(_ context.Context, tenant, uid, versionTS string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return err
	}
	f.CurrentVersion = versionTS
	t.files[uid] = f
	return nil
}

// SoftDelete flips the deleted flag without removing the row.
func (s *Store) SoftDelete(_ context.Context, tenant, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return err
	}
	f.Deleted = true
	atCopy := at
	f.DeletedAt = &atCopy
	t.files[uid] = f
	return nil
}

// Undelete clears the deleted flag, failing if a non-deleted sibling now
// shares the name.
func (s *Store) Undelete(_ context.Context, tenant, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return err
	}
	for otherUID, other := range t.files {
		if otherUID != uid && !other.Deleted && other.ParentUID == f.ParentUID && other.Name == f.Name {
			return errtypes.Conflict(f.Name)
		}
	}
	f.Deleted = false
	f.DeletedAt = nil
	t.files[uid] = f
	return nil
}

// ListChildren returns the children of parentUID.
func (s *Store) ListChildren(_ context.Context, tenant, parentUID string, includeDeleted bool) ([]metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil, nil
	}
	var out []metadata.File
	for _, f := range t.files {
		if f.ParentUID != parentUID || f.UID == parentUID {
			continue
		}
		if f.Deleted && !includeDeleted {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListAll returns every file row in the tenant, used by the sync worker's
// periodic scan.
func (s *Store) ListAll(_ context.Context, tenant string) ([]metadata.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil, nil
	}
	out := make([]metadata.File, 0, len(t.files))
	for _, f := range t.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out, nil
}

// GetFileSize returns the size of the file's current version, 0 if it has none.
func (s *Store) GetFileSize(_ context.Context, tenant, uid string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return 0, errtypes.NotFound(uid)
	}
	f, err := s.mustFile(t, uid)
	if err != nil {
		return 0, err
	}
	if f.CurrentVersion == "" {
		return 0, nil
	}
	for _, v := range t.versions[uid] {
		if v.VersionTS == f.CurrentVersion {
			return v.Size, nil
		}
	}
	return 0, nil
}

// GetDirectorySize recursively sums the current-version size of every
// descendant regular file.
func (s *Store) GetDirectorySize(ctx context.Context, tenant, uid string) (int64, error) {
	s.mu.RLock()
	t, ok := s.tenants[tenant]
	s.mu.RUnlock()
	if !ok {
		return 0, errtypes.NotFound(uid)
	}

	var total int64
	var walk func(parent string) error
	walk = func(parent string) error {
		children, err := s.ListChildren(ctx, tenant, parent, false)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.Type == metadata.TypeDirectory {
				if err := walk(c.UID); err != nil {
					return err
				}
				continue
			}
			size, err := s.GetFileSize(ctx, tenant, c.UID)
			if err != nil {
				continue
			}
			total += size
		}
		return nil
	}
	_ = t
	if err := walk(uid); err != nil {
		return 0, err
	}
	return total, nil
}

// AppendVersion appends a new immutable version row, failing with Conflict if
// the version_ts already exists for the file; ListVersions does the sorting.
func (s *Store) AppendVersion(_ context.Context, tenant string, v metadata.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantLocked(tenant)
	for _, existing := range t.versions[v.FileUID] {
		if existing.VersionTS == v.VersionTS {
			return errtypes.Conflict(v.VersionTS)
		}
	}
	t.versions[v.FileUID] = append(t.versions[v.FileUID], v)
	return nil
}

// GetStoragePath looks up the blob-store path for a specific version.
func (s *Store) GetStoragePath(_ context.Context, tenant, uid, versionTS string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return "", errtypes.NoSuchVersion(versionTS)
	}
	for _, v := range t.versions[uid] {
		if v.VersionTS == versionTS {
			return v.StoragePath, nil
		}
	}
	return "", errtypes.NoSuchVersion(versionTS)
}

// ListVersions returns a file's versions, newest-first.
func (s *Store) ListVersions(_ context.Context, tenant, uid string) ([]metadata.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil, nil
	}
	versions := append([]metadata.Version(nil), t.versions[uid]...)
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionTS > versions[j].VersionTS })
	return versions, nil
}

// RestoreToVersion duplicates the pointed-at version as a new top version
// with a freshly minted version_ts, preserving the original row.
func (s *Store) RestoreToVersion(_ context.Context, tenant, uid, versionTS, newVersionTS string) (metadata.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return metadata.Version{}, errtypes.NoSuchVersion(versionTS)
	}
	for _, v := range t.versions[uid] {
		if v.VersionTS == versionTS {
			restored := metadata.Version{
				FileUID:     uid,
				VersionTS:   newVersionTS,
				Size:        v.Size,
				StoragePath: v.StoragePath,
				CreatedAt:   time.Now().UTC(),
			}
			t.versions[uid] = append(t.versions[uid], restored)
			return restored, nil
		}
	}
	return metadata.Version{}, errtypes.NoSuchVersion(versionTS)
}

// DeleteVersion removes a version row and its metadata, used by purge-old-versions.
func (s *Store) DeleteVersion(_ context.Context, tenant, uid, versionTS string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return errtypes.NoSuchVersion(versionTS)
	}
	versions := t.versions[uid]
	for i, v := range versions {
		if v.VersionTS == versionTS {
			t.versions[uid] = append(versions[:i], versions[i+1:]...)
			delete(t.metaKV, metaKey(uid, versionTS))
			return nil
		}
	}
	return errtypes.NoSuchVersion(versionTS)
}

// SetMetadata upserts one (file_uid, version_ts, key) -> value pair.
func (s *Store) SetMetadata(_ context.Context, tenant, uid, versionTS, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantLocked(tenant)
	k := metaKey(uid, versionTS)
	if t.metaKV[k] == nil {
		t.metaKV[k] = map[string]string{}
	}
	t.metaKV[k][key] = value
	return nil
}

// GetMetadata reads one metadata value.
func (s *Store) GetMetadata(_ context.Context, tenant, uid, versionTS, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return "", errtypes.NotFound(key)
	}
	kv, ok := t.metaKV[metaKey(uid, versionTS)]
	if !ok {
		return "", errtypes.NotFound(key)
	}
	v, ok := kv[key]
	if !ok {
		return "", errtypes.NotFound(key)
	}
	return v, nil
}

// GetAllMetadata returns every metadata pair for (uid, version_ts).
func (s *Store) GetAllMetadata(_ context.Context, tenant, uid, versionTS string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return map[string]string{}, nil
	}
	kv := t.metaKV[metaKey(uid, versionTS)]
	out := make(map[string]string, len(kv))
	for k, v := range kv {
		out[k] = v
	}
	return out, nil
}

// DeleteMetadata deletes one metadata pair, a no-op if absent.
func (s *Store) DeleteMetadata(_ context.Context, tenant, uid, versionTS, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil
	}
	if kv, ok := t.metaKV[metaKey(uid, versionTS)]; ok {
		delete(kv, key)
	}
	return nil
}

// AddACL upserts one ACL row, replacing any row for the same principal.
func (s *Store) AddACL(_ context.Context, tenant string, entry ace.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenantLocked(tenant)
	rows := t.acls[entry.ResourceUID]
	for i, row := range rows {
		if row.PrincipalID == entry.PrincipalID && row.PrincipalType == entry.PrincipalType {
			rows[i] = entry
			t.acls[entry.ResourceUID] = rows
			return nil
		}
	}
	t.acls[entry.ResourceUID] = append(rows, entry)
	return nil
}

// RemoveACL deletes one ACL row by key, a no-op if absent.
func (s *Store) RemoveACL(_ context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil
	}
	rows := t.acls[resourceUID]
	for i, row := range rows {
		if row.PrincipalID == principalID && row.PrincipalType == principalType {
			t.acls[resourceUID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// GetACLsForResource returns every ACL row for resourceUID.
func (s *Store) GetACLsForResource(_ context.Context, tenant, resourceUID string) ([]ace.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil, nil
	}
	return append([]ace.Entry(nil), t.acls[resourceUID]...), nil
}

// GetUserACLs returns every ACL row naming user as a user-type principal,
// across the whole tenant.
func (s *Store) GetUserACLs(_ context.Context, tenant, user string) ([]ace.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenant]
	if !ok {
		return nil, nil
	}
	var out []ace.Entry
	for _, rows := range t.acls {
		for _, row := range rows {
			if row.PrincipalType == ace.TypeUser && row.PrincipalID == user {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

// TouchAccess records an access for (uid, host) in the global stats table.
func (s *Store) TouchAccess(_ context.Context, uid, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stats[uid] == nil {
		s.stats[uid] = map[string]*metadata.AccessStat{}
	}
	st, ok := s.stats[uid][host]
	if !ok {
		st = &metadata.AccessStat{FileUID: uid, Host: host}
		s.stats[uid][host] = st
	}
	st.LastAccessed = time.Now().UTC()
	st.AccessCount++
	return nil
}

// LeastAccessed returns up to limit access stats for host, oldest last-used first.
func (s *Store) LeastAccessed(_ context.Context, host string, limit int) ([]metadata.AccessStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []metadata.AccessStat
	for _, byHost := range s.stats {
		if st, ok := byHost[host]; ok {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAccessed.Before(out[j].LastAccessed) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InfrequentlyAccessed returns stats for host not accessed within the last
// `days` days, least-frequent first.
func (s *Store) InfrequentlyAccessed(_ context.Context, host string, days int) ([]metadata.AccessStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var out []metadata.AccessStat
	for _, byHost := range s.stats {
		if st, ok := byHost[host]; ok && st.LastAccessed.Before(cutoff) {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccessCount < out[j].AccessCount })
	return out, nil
}
