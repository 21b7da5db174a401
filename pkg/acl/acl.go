// Package acl implements the ACL Evaluator (component E): it computes
// effective permissions for a (resource, user, roles) triple, and mutates
// ACL rows for grant/revoke/inherit.
package acl

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bluele/gcache"
	intersect "github.com/juliangruber/go-intersect"
	"github.com/pkg/errors"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
)

// Store is the subset of the metadata store's contract the evaluator needs.
// pkg/metadata's Store satisfies this interface.
type Store interface {
	GetACLsForResource(ctx context.Context, tenant, resourceUID string) ([]ace.Entry, error)
	AddACL(ctx context.Context, tenant string, entry ace.Entry) error
	RemoveACL(ctx context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType) error
}

// Evaluator computes and mutates effective permissions.
type Evaluator struct {
	store Store
	memo  gcache.Cache
}

// NewEvaluator builds an Evaluator backed by store, memoizing effective
// permission computations for a short window since a resource's ACL rows
// rarely change between two reads on the same request burst.
func NewEvaluator(store Store) *Evaluator {
	memo := gcache.New(4096).LRU().Expiration(30 * time.Second).Build()
	return &Evaluator{store: store, memo: memo}
}

func memoKey(tenant, resourceUID, user string, roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%s|%s|%s", tenant, resourceUID, user, strings.Join(sorted, ","))
}

// EffectivePermissions computes the bitmask a user with the given roles
// holds on resourceUID, per spec: additive user rows, then role/group rows,
// falling back to "other" rows; ROOT always grants read.
func (e *Evaluator) EffectivePermissions(ctx context.Context, tenant, resourceUID, user string, roles []string) (ace.Permission, error) {
	key := memoKey(tenant, resourceUID, user, roles)
	if v, err := e.memo.Get(key); err == nil {
		return v.(ace.Permission), nil
	}

	entries, err := e.store.GetACLsForResource(ctx, tenant, resourceUID)
	if err != nil {
		return 0, errors.Wrap(err, "error fetching acl entries")
	}

	perm := e.compute(entries, user, roles)
	if resourceUID == clock.Root {
		perm |= ace.Read
	}

	_ = e.memo.Set(key, perm)
	return perm, nil
}

func (e *Evaluator) compute(entries []ace.Entry, user string, roles []string) ace.Permission {
	var userPerm, rolePerm, otherPerm ace.Permission
	var rolePrincipals []string
	hasUserRow := false

	for _, entry := range entries {
		switch entry.PrincipalType {
		case ace.TypeUser:
			if entry.PrincipalID == user {
				userPerm |= entry.Permissions
				hasUserRow = true
			}
		case ace.TypeRole, ace.TypeGroup:
			rolePrincipals = append(rolePrincipals, entry.PrincipalID)
		case ace.TypeOther:
			otherPerm |= entry.Permissions
		}
	}

	if len(roles) > 0 && len(rolePrincipals) > 0 {
		matched := intersect.Simple(roles, rolePrincipals)
		matchedSet := make(map[string]bool, len(matched))
		for _, m := range matched {
			if s, ok := m.(string); ok {
				matchedSet[s] = true
			}
		}
		for _, entry := range entries {
			if (entry.PrincipalType == ace.TypeRole || entry.PrincipalType == ace.TypeGroup) && matchedSet[entry.PrincipalID] {
				rolePerm |= entry.Permissions
			}
		}
	}

	switch {
	case hasUserRow:
		// User rows are additive with any matching role/group rows, never masked by them.
		return userPerm | rolePerm
	case rolePerm != 0:
		return rolePerm
	default:
		return otherPerm
	}
}

// CheckPermission succeeds iff the caller's effective permissions on
// resourceUID contain every bit in required.
func (e *Evaluator) CheckPermission(ctx context.Context, tenant, resourceUID, user string, roles []string, required ace.Permission) (bool, error) {
	effective, err := e.EffectivePermissions(ctx, tenant, resourceUID, user, roles)
	if err != nil {
		return false, err
	}
	return effective.Has(required), nil
}

// Grant upserts one row per (resource, principal, type), OR-ing the new
// bits into any already present.
func (e *Evaluator) Grant(ctx context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType, perms ace.Permission) error {
	entries, err := e.store.GetACLsForResource(ctx, tenant, resourceUID)
	if err != nil {
		return errors.Wrap(err, "error fetching acl entries for grant")
	}
	for _, entry := range entries {
		if entry.PrincipalID == principalID && entry.PrincipalType == principalType {
			perms |= entry.Permissions
			break
		}
	}
	if err := e.store.AddACL(ctx, tenant, ace.New(resourceUID, principalID, principalType, perms)); err != nil {
		return errors.Wrap(err, "error adding acl entry")
	}
	e.memo.Purge()
	return nil
}

// Revoke clears the given bits from a principal's row; if the resulting
// mask is zero the row is removed entirely.
func (e *Evaluator) Revoke(ctx context.Context, tenant, resourceUID, principalID string, principalType ace.PrincipalType, perms ace.Permission) error {
	entries, err := e.store.GetACLsForResource(ctx, tenant, resourceUID)
	if err != nil {
		return errors.Wrap(err, "error fetching acl entries for revoke")
	}
	var remaining ace.Permission
	found := false
	for _, entry := range entries {
		if entry.PrincipalID == principalID && entry.PrincipalType == principalType {
			remaining = entry.Permissions &^ perms
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	if remaining == 0 {
		if err := e.store.RemoveACL(ctx, tenant, resourceUID, principalID, principalType); err != nil {
			return errors.Wrap(err, "error removing acl entry")
		}
	} else if err := e.store.AddACL(ctx, tenant, ace.New(resourceUID, principalID, principalType, remaining)); err != nil {
		return errors.Wrap(err, "error updating acl entry")
	}
	e.memo.Purge()
	return nil
}

// Inherit copies every ACL row from parentUID onto childUID at
// child-creation time; no run-time walk up the tree is performed later.
func (e *Evaluator) Inherit(ctx context.Context, tenant, parentUID, childUID string) error {
	entries, err := e.store.GetACLsForResource(ctx, tenant, parentUID)
	if err != nil {
		return errors.Wrap(err, "error fetching parent acl entries")
	}
	for _, entry := range entries {
		child := ace.New(childUID, entry.PrincipalID, entry.PrincipalType, entry.Permissions)
		if err := e.store.AddACL(ctx, tenant, child); err != nil {
			return errors.Wrap(err, "error copying acl entry to child")
		}
	}
	return nil
}

// GrantCreatorDefaults grants the creating user full rights and "other" read
// on a freshly created resource, the defaults applied by mkdir/touch.
func (e *Evaluator) GrantCreatorDefaults(ctx context.Context, tenant, resourceUID, owner string) error {
	if err := e.Grant(ctx, tenant, resourceUID, owner, ace.TypeUser, ace.All); err != nil {
		return err
	}
	return e.Grant(ctx, tenant, resourceUID, "everyone", ace.TypeOther, ace.Read)
}
