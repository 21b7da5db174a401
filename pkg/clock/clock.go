// Package clock mints file identifiers and version timestamps: component A
// of the file service. UIDs are collision-resistant 128-bit values; version
// timestamps are strings that sort lexicographically in creation order on a
// single host.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Root is the fixed, reserved UID of a tenant's self-parenting root
// directory. It is disjoint from the minting range because uuid.Nil is never
// produced by NewUID.
const Root = "00000000-0000-0000-0000-000000000000"

// NewUID returns a new 128-bit opaque identifier with negligible collision
// probability.
func NewUID() string {
	return uuid.New().String()
}

const tsLayout = "20060102_150405.000"

// clk serialises version timestamp minting so that two writes landing in
// the same millisecond still sort correctly against each other.
type clk struct {
	mu      sync.Mutex
	lastSec string
	counter int
}

var shared clk

// NewVersionTS returns a string that sorts lexicographically in creation
// order among all timestamps minted by this process. Ordering across
// processes/hosts is not guaranteed; the metadata store's uniqueness
// constraint on (file_uid, version_ts) is what resolves cross-host races.
func NewVersionTS() string {
	return shared.next(time.Now())
}

func (c *clk) next(now time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := now.UTC().Format(tsLayout)
	if base == c.lastSec {
		c.counter++
	} else {
		c.lastSec = base
		c.counter = 0
	}
	if c.counter == 0 {
		return base
	}
	return fmt.Sprintf("%s_%04d", base, c.counter)
}
