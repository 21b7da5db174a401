package tenant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusfs/nimbusfs/pkg/metadata/memstore"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

func TestResolveNormalizesEmptyToDefault(t *testing.T) {
	ctx := context.Background()
	r := tenant.New(memstore.New(), nil, nil)

	b, err := r.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, tenant.DefaultTenant, b.ID)
}

func TestResolveNormalizesPunctuation(t *testing.T) {
	ctx := context.Background()
	r := tenant.New(memstore.New(), nil, nil)

	b, err := r.Resolve(ctx, "acme-corp.eu")
	require.NoError(t, err)
	assert.Equal(t, "acme_corp_eu", b.ID)
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := tenant.New(memstore.New(), nil, nil)

	b1, err := r.Resolve(ctx, "acme")
	require.NoError(t, err)
	b2, err := r.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Same(t, b1, b2)
}

func TestRemoveDropsTenantFromMap(t *testing.T) {
	ctx := context.Background()
	r := tenant.New(memstore.New(), nil, nil)

	_, err := r.Resolve(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, "acme"))
	assert.NotContains(t, r.List(), "acme")
}
