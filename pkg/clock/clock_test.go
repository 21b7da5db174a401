package clock_test

import (
	"sort"
	"testing"

	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestNewUIDIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		uid := clock.NewUID()
		assert.False(t, seen[uid])
		assert.NotEqual(t, clock.Root, uid)
		seen[uid] = true
	}
}

func TestNewVersionTSOrdersWithCreation(t *testing.T) {
	ts := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		ts = append(ts, clock.NewVersionTS())
	}

	sorted := append([]string(nil), ts...)
	sort.Strings(sorted)

	assert.Equal(t, sorted, ts, "version timestamps must sort lexicographically in creation order")
}
