package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/ristretto"

	"github.com/nimbusfs/nimbusfs/pkg/blobstore"
	"github.com/nimbusfs/nimbusfs/pkg/blobstore/localfs"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

var syncLogger = log.New("workers.sync")

// SyncState is the object-store synchroniser's state machine.
type SyncState int32

// The states a Synchroniser moves through.
const (
	SyncIdle SyncState = iota
	SyncScanning
	SyncUploading
	SyncBackoff
	SyncStopped
)

// Synchroniser is the object-store sync worker. It is safe to share its
// Enqueue method as a namespace.SyncEnqueuer across every tenant, since
// blob paths already carry the tenant prefix.
type Synchroniser struct {
	store  metadata.Store
	local  *localfs.Store
	remote blobstore.BlobStore

	retryInterval time.Duration

	queue  *syncQueue
	dedupe *ristretto.Cache

	state          atomic.Int32
	syncInProgress atomic.Bool
	syncedCount    atomic.Int64
	failedCount    atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSynchroniser builds a Synchroniser. remote may be nil, in which case
// every cycle is a no-op and the service serves strictly from local/cache.
func NewSynchroniser(store metadata.Store, local *localfs.Store, remote blobstore.BlobStore, retryInterval time.Duration) *Synchroniser {
	dedupe, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		// ristretto only fails on invalid config; the literal above is valid.
		panic(err)
	}
	return &Synchroniser{
		store:         store,
		local:         local,
		remote:        remote,
		retryInterval: retryInterval,
		queue:         newSyncQueue(),
		dedupe:        dedupe,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Enqueue records (tenant, uid, versionTS) as sync work; satisfies
// namespace.SyncEnqueuer. Never blocks the caller.
func (s *Synchroniser) Enqueue(tenant, uid, versionTS string) {
	s.queue.push(SyncTask{Tenant: tenant, UID: uid, VersionTS: versionTS})
}

func (s *Synchroniser) dedupeKey(t SyncTask) string {
	return t.Tenant + "|" + t.UID + "|" + t.VersionTS
}

func (s *Synchroniser) alreadySynced(t SyncTask) bool {
	_, found := s.dedupe.Get(s.dedupeKey(t))
	return found
}

func (s *Synchroniser) markSynced(t SyncTask) {
	s.dedupe.Set(s.dedupeKey(t), true, 1)
}

// Run drives the periodic-and-event-driven sync loop until Stop is called.
// It performs one startup comprehensive scan before entering the loop.
func (s *Synchroniser) Run(ctx context.Context) {
	defer close(s.doneCh)
	s.state.Store(int32(SyncIdle))

	if err := s.performSync(ctx, true); err != nil {
		syncLogger.Err(ctx, "startup_sync", err)
	}

	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.state.Store(int32(SyncStopped))
			return
		case <-ticker.C:
			if err := s.performSync(ctx, false); err != nil {
				syncLogger.Err(ctx, "periodic_sync", err)
			}
		case <-s.queue.wake:
			if err := s.performSync(ctx, false); err != nil {
				syncLogger.Err(ctx, "event_sync", err)
			}
		}
	}
}

// Stop signals the loop to finish its in-flight pass and return; it blocks
// until Run has returned.
func (s *Synchroniser) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// TriggerSync forces an immediate pass, satisfying namespace.TriggerSync.
// Returns Busy if a pass is already in flight.
func (s *Synchroniser) TriggerSync(ctx context.Context) error {
	return s.performSync(ctx, false)
}

func (s *Synchroniser) performSync(ctx context.Context, startupScan bool) error {
	if !s.syncInProgress.CompareAndSwap(false, true) {
		return errtypes.Busy("a sync pass is already in flight")
	}
	defer s.syncInProgress.Store(false)

	if s.remote == nil {
		return nil
	}

	s.state.Store(int32(SyncScanning))
	tasks, err := s.discoverWork(ctx, startupScan)
	if err != nil {
		return err
	}

	if healthy := s.checkRemoteHealth(ctx); !healthy {
		s.state.Store(int32(SyncBackoff))
		return nil
	}

	s.state.Store(int32(SyncUploading))
	for _, t := range tasks {
		if s.alreadySynced(t) {
			continue
		}
		if err := s.syncOne(ctx, t); err != nil {
			s.failedCount.Add(1)
			syncLogger.Warn(ctx).Str("tenant", t.Tenant).Str("uid", t.UID).Err(err).Msg("sync task failed, requeued after backoff")
			s.queue.push(t)
			continue
		}
		s.syncedCount.Add(1)
		s.markSynced(t)
	}

	s.state.Store(int32(SyncIdle))
	return nil
}

// discoverWork unions queued tasks, a periodic DB-vs-remote diff scan, and
// (on startupScan) a comprehensive local-filesystem walk.
func (s *Synchroniser) discoverWork(ctx context.Context, startupScan bool) ([]SyncTask, error) {
	tasks := s.queue.drain()

	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	for _, tenant := range tenants {
		files, err := s.store.ListAll(ctx, tenant)
		if err != nil {
			continue
		}
		for _, f := range files {
			versions, err := s.store.ListVersions(ctx, tenant, f.UID)
			if err != nil {
				continue
			}
			for _, v := range versions {
				if ok, _ := s.remote.Exists(ctx, tenant, s.remote.PathFor(tenant, f.UID, v.VersionTS)); !ok {
					tasks = append(tasks, SyncTask{Tenant: tenant, UID: f.UID, VersionTS: v.VersionTS})
				}
			}
		}
	}

	if startupScan && s.local != nil {
		_ = s.local.Walk(func(b localfs.Blob) error {
			if ok, _ := s.remote.Exists(ctx, b.Tenant, s.remote.PathFor(b.Tenant, b.UID, b.VersionTS)); !ok {
				tasks = append(tasks, SyncTask{Tenant: b.Tenant, UID: b.UID, VersionTS: b.VersionTS})
			}
			return nil
		})
	}

	seen := make(map[string]bool, len(tasks))
	unique := tasks[:0]
	for _, t := range tasks {
		if k := s.dedupeKey(t); !seen[k] {
			seen[k] = true
			unique = append(unique, t)
		}
	}
	return unique, nil
}

func (s *Synchroniser) syncOne(ctx context.Context, t SyncTask) error {
	storagePath, err := s.store.GetStoragePath(ctx, t.Tenant, t.UID, t.VersionTS)
	if err != nil {
		return err
	}
	data, err := s.local.Get(ctx, t.Tenant, storagePath)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		_, err := s.remote.Put(ctx, t.Tenant, t.UID, t.VersionTS, data)
		return err
	}, b)
}

// checkRemoteHealth calls bucket_exists before each cycle; on failure it
// attempts a best-effort initialize and signals the cycle should be skipped.
func (s *Synchroniser) checkRemoteHealth(ctx context.Context) bool {
	type healthChecker interface {
		BucketExists(ctx context.Context) (bool, error)
		Initialize(ctx context.Context) error
	}
	hc, ok := s.remote.(healthChecker)
	if !ok {
		return true
	}
	exists, err := hc.BucketExists(ctx)
	if err == nil && exists {
		return true
	}
	if initErr := hc.Initialize(ctx); initErr != nil {
		syncLogger.Warn(ctx).Err(initErr).Msg("remote bucket initialisation failed")
	}
	syncLogger.Warn(ctx).Err(err).Msg("remote bucket unreachable, skipping sync cycle")
	return false
}

// Counters exposes synced/failed totals for the admin surface.
func (s *Synchroniser) Counters() (synced, failed int64) {
	return s.syncedCount.Load(), s.failedCount.Load()
}

// State reports the current state machine value.
func (s *Synchroniser) State() SyncState { return SyncState(s.state.Load()) }
