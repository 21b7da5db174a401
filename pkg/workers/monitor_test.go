package workers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbusfs/nimbusfs/pkg/metadata/memstore"
	"github.com/nimbusfs/nimbusfs/pkg/workers"
)

type fakeTarget struct {
	available bool
	calls     int
}

func (f *fakeTarget) SetPrimaryAvailable(v bool) {
	f.available = v
	f.calls++
}

func TestMonitorFlipsTargetsOnTransition(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	target := &fakeTarget{available: true}
	m := workers.NewMonitor(store, 0, target)

	assert.Equal(t, workers.PrimaryUp, m.State())

	store.SetPrimaryAvailable(false)
	m.CheckOnce(ctx)
	assert.Equal(t, workers.PrimaryDown, m.State())
	assert.False(t, target.available)
	assert.Equal(t, 1, target.calls)

	store.SetPrimaryAvailable(true)
	m.CheckOnce(ctx)
	assert.Equal(t, workers.PrimaryUp, m.State())
	assert.True(t, target.available)
	assert.Equal(t, 2, target.calls)
}
