package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusfs/nimbusfs/pkg/cache"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := cache.New(1024, 0.9, nil, nil)

	require.NoError(t, c.Put(ctx, "t1", "p1", []byte("hello")))
	data, err := c.Get(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestEvictsUnderThreshold(t *testing.T) {
	ctx := context.Background()
	c := cache.New(100, 0.5, nil, nil) // budget = 50 bytes

	require.NoError(t, c.Put(ctx, "t1", "a", make([]byte, 30)))
	require.NoError(t, c.Put(ctx, "t1", "b", make([]byte, 30)))

	assert.LessOrEqual(t, c.CurrentBytes(), int64(50))

	_, err := c.Get(ctx, "t1", "a")
	var nf errtypes.IsNotFound
	assert.ErrorAs(t, err, &nf, "oldest entry should have been evicted")
}

func TestOversizedFailsWithoutPartialAdmission(t *testing.T) {
	ctx := context.Background()
	c := cache.New(100, 0.9, nil, nil)

	err := c.Put(ctx, "t1", "huge", make([]byte, 200))
	var oversized errtypes.IsOversized
	assert.ErrorAs(t, err, &oversized)
	assert.Equal(t, int64(0), c.CurrentBytes())
}

func TestTouchPromotesWithoutEviction(t *testing.T) {
	ctx := context.Background()
	c := cache.New(100, 0.5, nil, nil)

	require.NoError(t, c.Put(ctx, "t1", "a", make([]byte, 20)))
	require.NoError(t, c.Put(ctx, "t1", "b", make([]byte, 20)))
	c.Touch("a")
	require.NoError(t, c.Put(ctx, "t1", "c", make([]byte, 20)))

	_, err := c.Get(ctx, "t1", "a")
	assert.NoError(t, err, "a was touched so b should be evicted instead")
}

func TestRemoveIsIdempotent(t *testing.T) {
	c := cache.New(100, 0.9, nil, nil)
	c.Remove("absent")
	c.Remove("absent")
}
