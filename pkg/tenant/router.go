// Package tenant implements the Tenant Router (component F): it resolves a
// tenant id to an isolated bundle of metadata store and local/remote blob
// stores, lazily initialising tenant schemas and storage prefixes on first
// use. The bundle carries no separate access tracker; access statistics
// live in the metadata store's global table.
package tenant

import (
	"context"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/blobstore"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

var logger = log.New("tenant")

// DefaultTenant is the synthetic tenant used when an empty id is passed.
const DefaultTenant = "default"

const maxTenantNameLen = 63

// LocalEnsurer is satisfied by the local blob store; its tenant subtree must
// exist before any write lands.
type LocalEnsurer interface {
	EnsureTenant(tenant string) error
}

// RemoteEnsurer is satisfied by the remote blob store; bucket creation is
// best-effort.
type RemoteEnsurer interface {
	BucketExists(ctx context.Context) (bool, error)
	Initialize(ctx context.Context) error
}

// Bundle is the isolated set of resources a tenant operates over.
type Bundle struct {
	ID     string
	Store  metadata.Store
	Local  blobstore.BlobStore
	Remote blobstore.BlobStore
}

// Router maintains the tenant -> Bundle map, initialising bundles lazily.
type Router struct {
	store  metadata.Store
	local  blobstore.BlobStore
	remote blobstore.BlobStore

	mu      sync.Mutex
	bundles map[string]*Bundle
}

// New builds a Router sharing one metadata store and pair of blob stores
// across all tenants (isolation is per-schema/prefix within them, not per
// connection).
func New(store metadata.Store, local, remote blobstore.BlobStore) *Router {
	return &Router{
		store:   store,
		local:   local,
		remote:  remote,
		bundles: map[string]*Bundle{},
	}
}

// Normalize maps an empty tenant id to "default" and replaces hyphens,
// spaces and dots with underscores.
func Normalize(id string) string {
	if id == "" {
		return DefaultTenant
	}
	id = strings.ReplaceAll(id, "-", "_")
	id = strings.ReplaceAll(id, " ", "_")
	id = strings.ReplaceAll(id, ".", "_")
	return id
}

func validName(id string) bool {
	if id == "" || len(id) > maxTenantNameLen {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

// Resolve returns the Bundle for tenantID, lazily creating it on first use.
func (r *Router) Resolve(ctx context.Context, tenantID string) (*Bundle, error) {
	id := Normalize(tenantID)
	// strcase keeps tenant-derived table/prefix names consistent with the
	// snake_case convention the metadata store's table-prefix scheme expects.
	id = strcase.ToSnake(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bundles[id]; ok {
		return b, nil
	}
	if !validName(id) {
		return nil, errtypes.Internal("invalid tenant name: " + tenantID)
	}

	if err := r.store.CreateTenantSchema(ctx, id); err != nil {
		return nil, errors.Wrapf(err, "error creating tenant schema for %s", id)
	}

	if ensurer, ok := r.local.(LocalEnsurer); ok {
		if err := ensurer.EnsureTenant(id); err != nil {
			return nil, errors.Wrapf(err, "error creating local storage subtree for %s", id)
		}
	}

	if r.remote != nil {
		if ensurer, ok := r.remote.(RemoteEnsurer); ok {
			exists, err := ensurer.BucketExists(ctx)
			if err != nil || !exists {
				if err := ensurer.Initialize(ctx); err != nil {
					logger.Warn(ctx).Str("tenant", id).Err(err).Msg("remote bucket initialisation failed, continuing best-effort")
				}
			}
		}
	}

	b := &Bundle{ID: id, Store: r.store, Local: r.local, Remote: r.remote}
	r.bundles[id] = b
	return b, nil
}

// Remove cleans up metadata and local blobs for a tenant; it never touches
// the remote store, which is append-only.
func (r *Router) Remove(ctx context.Context, tenantID string) error {
	id := strcase.ToSnake(Normalize(tenantID))

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.CleanupTenantData(ctx, id); err != nil {
		return errors.Wrapf(err, "error cleaning up tenant data for %s", id)
	}
	delete(r.bundles, id)
	return nil
}

// List returns the ids of every tenant currently resolved in-process.
func (r *Router) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.bundles))
	for id := range r.bundles {
		out = append(out, id)
	}
	return out
}
