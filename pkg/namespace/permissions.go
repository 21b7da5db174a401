package namespace

import (
	"context"

	"github.com/nimbusfs/nimbusfs/pkg/acl/ace"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

// GrantPermission mutates ACL rows via the evaluator; the caller must hold
// write on resourceUID.
func (e *Engine) GrantPermission(ctx context.Context, auth AuthContext, resourceUID, principalID string, principalType ace.PrincipalType, perms ace.Permission) error {
	_, err := op(ctx, e, auth, resourceUID, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		return struct{}{}, e.acls.Grant(ctx, b.ID, resourceUID, principalID, principalType, perms)
	})
	return err
}

// RevokePermission mutates ACL rows via the evaluator; the caller must hold
// write on resourceUID.
func (e *Engine) RevokePermission(ctx context.Context, auth AuthContext, resourceUID, principalID string, principalType ace.PrincipalType, perms ace.Permission) error {
	_, err := op(ctx, e, auth, resourceUID, ace.Write, true, func(ctx context.Context, b *tenant.Bundle) (struct{}, error) {
		return struct{}{}, e.acls.Revoke(ctx, b.ID, resourceUID, principalID, principalType, perms)
	})
	return err
}

// CheckPermission is a pass-through to the ACL evaluator; no authorisation
// is required to ask the question.
func (e *Engine) CheckPermission(ctx context.Context, tenantID, resourceUID, user string, roles []string, required ace.Permission) (bool, error) {
	return op(ctx, e, AuthContext{Tenant: tenantID}, "", 0, false, func(ctx context.Context, b *tenant.Bundle) (bool, error) {
		return e.acls.CheckPermission(ctx, b.ID, resourceUID, user, roles, required)
	})
}
