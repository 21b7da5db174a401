package workers

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/nimbusfs/nimbusfs/pkg/blobstore"
	"github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

var cullerLogger = log.New("workers.culler")

// CullerState is the file culler's state machine.
type CullerState int32

// The states a Culler moves through.
const (
	CullerIdle CullerState = iota
	CullerGathering
	CullerDeleting
	CullerStopped
)

// Strategy selects which candidates the culler evicts first.
type Strategy string

// The two eviction strategies the spec names.
const (
	StrategyLRU Strategy = "lru"
	StrategyLFU Strategy = "lfu"
)

// DiskUsage is supplied by the caller (typically a filesystem statfs call
// on STORAGE_BASE); the culler has no opinion on how usage is measured.
type DiskUsage func() (usedFraction float64, err error)

// Culler periodically deletes local blobs that are safely replicated
// remotely, freeing space once usage crosses a threshold.
type Culler struct {
	store     metadata.Store
	local     blobstore.BlobStore
	remote    blobstore.BlobStore
	usage     DiskUsage
	enabled   bool
	threshold float64
	strategy  Strategy
	batch     int
	host      string
	interval  time.Duration

	state  atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCuller builds a Culler. batch defaults to 50 if <= 0.
func NewCuller(store metadata.Store, local, remote blobstore.BlobStore, usage DiskUsage, enabled bool, threshold float64, strategy Strategy, batch int, host string) *Culler {
	if batch <= 0 {
		batch = 50
	}
	return &Culler{
		store:     store,
		local:     local,
		remote:    remote,
		usage:     usage,
		enabled:   enabled,
		threshold: threshold,
		strategy:  strategy,
		batch:     batch,
		host:      host,
		interval:  5 * time.Minute,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run drives the culler's periodic loop until Stop is called.
func (c *Culler) Run(ctx context.Context) {
	defer close(c.doneCh)
	c.state.Store(int32(CullerIdle))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.state.Store(int32(CullerStopped))
			return
		case <-ticker.C:
			if err := c.pass(ctx); err != nil {
				cullerLogger.Err(ctx, "cull_pass", err)
			}
		}
	}
}

// Stop signals the loop to finish its in-flight pass and return.
func (c *Culler) Stop() {
	close(c.stopCh)
	<-c.doneCh
}

// RunOnce executes a single gather-and-delete pass outside the periodic
// loop, used by tests and by an administrative on-demand trigger.
func (c *Culler) RunOnce(ctx context.Context) error {
	return c.pass(ctx)
}

func (c *Culler) pass(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	if c.usage != nil {
		used, err := c.usage()
		if err != nil {
			return err
		}
		if used < c.threshold {
			return nil
		}
	}

	c.state.Store(int32(CullerGathering))
	candidates, err := c.gather(ctx)
	if err != nil {
		return err
	}

	c.state.Store(int32(CullerDeleting))
	for _, cand := range candidates {
		if err := c.cullOne(ctx, cand); err != nil {
			cullerLogger.Warn(ctx).Str("uid", cand.uid).Err(err).Msg("cull candidate skipped")
		}
	}
	c.state.Store(int32(CullerIdle))
	return nil
}

type candidate struct {
	tenant      string
	uid         string
	versionTS   string
	storagePath string
}

func (c *Culler) gather(ctx context.Context) ([]candidate, error) {
	var stats []metadata.AccessStat
	var err error
	switch c.strategy {
	case StrategyLFU:
		stats, err = c.store.InfrequentlyAccessed(ctx, c.host, 30)
	default:
		stats, err = c.store.LeastAccessed(ctx, c.host, c.batch*4)
	}
	if err != nil {
		return nil, err
	}
	if c.strategy != StrategyLFU {
		sort.Slice(stats, func(i, j int) bool { return stats[i].LastAccessed.Before(stats[j].LastAccessed) })
	}

	tenants, err := c.store.ListTenants(ctx)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for _, stat := range stats {
		if len(out) >= c.batch {
			break
		}
		for _, tenant := range tenants {
			f, err := c.store.GetByUID(ctx, tenant, stat.FileUID, false)
			if err != nil || f.CurrentVersion == "" {
				continue
			}
			path, err := c.store.GetStoragePath(ctx, tenant, stat.FileUID, f.CurrentVersion)
			if err != nil {
				continue
			}
			out = append(out, candidate{tenant: tenant, uid: stat.FileUID, versionTS: f.CurrentVersion, storagePath: path})
			break
		}
	}
	return out, nil
}

// cullOne deletes the local copy of a candidate only after confirming the
// remote store holds it, and never if it is the version's sole copy.
func (c *Culler) cullOne(ctx context.Context, cand candidate) error {
	if c.remote == nil {
		return nil
	}
	ok, err := c.remote.Exists(ctx, cand.tenant, c.remote.PathFor(cand.tenant, cand.uid, cand.versionTS))
	if err != nil {
		return err
	}
	if !ok {
		return nil // sole copy: never delete
	}
	return c.local.Delete(ctx, cand.tenant, cand.storagePath)
}

// State reports the current state machine value.
func (c *Culler) State() CullerState { return CullerState(c.state.Load()) }
