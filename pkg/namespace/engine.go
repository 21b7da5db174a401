// Package namespace implements the Namespace & Version Engine (component
// G): the public operations of the file service. Every operation resolves
// its tenant (F), checks ACLs (E), performs a metadata transaction (B),
// touches the cache/blob stores (D/C/C') for payload operations, and
// enqueues background work (H). The shared shape is factored into the op
// combinator below rather than copied per operation.
package namespace

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/acl"
	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/cache"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

var logger = log.New("namespace")

// AuthContext is the authentication context carried by every public
// operation: the caller's identity, their roles, and the target tenant.
type AuthContext struct {
	User   string
	Roles  []string
	Tenant string
}

// SyncEnqueuer is the narrow interface the engine needs of the sync
// worker's queue; pkg/workers' synchroniser satisfies it.
type SyncEnqueuer interface {
	Enqueue(tenant, uid, versionTS string)
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(string, string, string) {}

// Engine wires together the tenant router, ACL evaluator and cache into the
// public operations of the file service.
type Engine struct {
	router *tenant.Router
	acls   *acl.Evaluator
	cache  *cache.Cache
	sync   SyncEnqueuer

	primaryAvailable atomic.Bool
}

// New builds an Engine. sync may be nil, in which case enqueue calls are a
// no-op (useful for tests that don't care about the sync worker).
func New(router *tenant.Router, acls *acl.Evaluator, c *cache.Cache, sync SyncEnqueuer) *Engine {
	if sync == nil {
		sync = noopEnqueuer{}
	}
	e := &Engine{router: router, acls: acls, cache: c, sync: sync}
	e.primaryAvailable.Store(true)
	return e
}

// PrimaryAvailable reports whether the primary metadata store is currently
// reachable; the monitor worker flips this.
func (e *Engine) PrimaryAvailable() bool { return e.primaryAvailable.Load() }

// SetPrimaryAvailable is called by the primary-DB monitor on a health
// transition.
func (e *Engine) SetPrimaryAvailable(v bool) { e.primaryAvailable.Store(v) }

// resolve looks up the tenant bundle and, on first use, ensures the
// self-parenting ROOT directory row exists.
func (e *Engine) resolve(ctx context.Context, tenantID string) (*tenant.Bundle, error) {
	b, err := e.router.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := e.ensureRoot(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) ensureRoot(ctx context.Context, b *tenant.Bundle) error {
	_, err := b.Store.GetByUID(ctx, b.ID, clock.Root, true)
	if err == nil {
		return nil
	}
	var nf errtypes.IsNotFound
	if !errors.As(err, &nf) {
		return err
	}
	root := metadata.File{
		UID:       clock.Root,
		Name:      "",
		ParentUID: clock.Root,
		Type:      metadata.TypeDirectory,
		Owner:     "root",
	}
	if insertErr := b.Store.InsertFile(ctx, b.ID, root); insertErr != nil {
		var conflict errtypes.IsConflict
		if errors.As(insertErr, &conflict) {
			return nil // lost the race to another caller, root now exists
		}
		return insertErr
	}
	// ROOT has no creating user to own it, so every tenant member gets full
	// rights by default; lock it down afterwards with an explicit revoke.
	return e.acls.Grant(ctx, b.ID, clock.Root, "everyone", ace.TypeOther, ace.All)
}

// op is the shared pipeline combinator every public operation is built on:
// read-only guard, tenant resolution and (when resource is non-empty) an
// ACL check, before handing off to fn for the metadata transaction and any
// post-I/O work.
func op[T any](ctx context.Context, e *Engine, auth AuthContext, resource string, required ace.Permission, mutate bool, fn func(ctx context.Context, b *tenant.Bundle) (T, error)) (T, error) {
	var zero T
	if mutate && !e.PrimaryAvailable() {
		return zero, errtypes.ReadOnly("primary metadata store is unavailable")
	}

	b, err := e.resolve(ctx, auth.Tenant)
	if err != nil {
		return zero, err
	}

	if resource != "" {
		allowed, err := e.acls.CheckPermission(ctx, b.ID, resource, auth.User, auth.Roles, required)
		if err != nil {
			return zero, err
		}
		if !allowed {
			return zero, errtypes.Denied(resource)
		}
	}

	return fn(ctx, b)
}

// checkBoth is used by move/copy, which authorise two distinct resources
// before transacting.
func checkBoth(ctx context.Context, e *Engine, tenantID, auth0 string, roles []string, a string, pa ace.Permission, bRes string, pb ace.Permission) error {
	okA, err := e.acls.CheckPermission(ctx, tenantID, a, auth0, roles, pa)
	if err != nil {
		return err
	}
	if !okA {
		return errtypes.Denied(a)
	}
	okB, err := e.acls.CheckPermission(ctx, tenantID, bRes, auth0, roles, pb)
	if err != nil {
		return err
	}
	if !okB {
		return errtypes.Denied(bRes)
	}
	return nil
}
