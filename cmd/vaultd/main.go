// Command vaultd wires the multi-tenant file service's components together
// and exposes a minimal HTTP admin/health surface over them.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nimbusfs/nimbusfs/pkg/acl"
	"github.com/nimbusfs/nimbusfs/pkg/blobstore"
	"github.com/nimbusfs/nimbusfs/pkg/blobstore/localfs"
	"github.com/nimbusfs/nimbusfs/pkg/blobstore/objectstore"
	"github.com/nimbusfs/nimbusfs/pkg/cache"
	"github.com/nimbusfs/nimbusfs/pkg/config"
	vlog "github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
	"github.com/nimbusfs/nimbusfs/pkg/metadata/sqlstore"
	"github.com/nimbusfs/nimbusfs/pkg/namespace"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
	"github.com/nimbusfs/nimbusfs/pkg/workers"
)

var (
	versionFlag = flag.Bool("version", false, "show version and exit")
	configFlag  = flag.String("c", "/etc/vaultd/vaultd.toml", "set configuration file")
	addrFlag    = flag.String("addr", ":9998", "address for the admin/health HTTP surface")
	// Compile time variables, set with -ldflags by the release build.
	gitCommit, buildDate, version string
)

var logger = vlog.New("vaultd")

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Fprintf(os.Stderr, "version=%s commit=%s build_date=%s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %s\n", err)
		os.Exit(1)
	}
	vlog.Mode = os.Getenv("LOG_MODE")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openMetadataStore(cfg)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("error opening metadata store")
		os.Exit(1)
	}

	local := localfs.New(cfg.LocalStorage.Base, codecFor(cfg.LocalStorage))
	remote, err := openRemoteStore(cfg)
	if err != nil {
		logger.Error(ctx).Err(err).Msg("error opening remote object store")
		os.Exit(1)
	}

	var blobRemote blobstore.BlobStore
	if remote != nil {
		blobRemote = remote
	}

	c := cache.New(cfg.Cache.MaxCacheSizeMB*1024*1024, cfg.Cache.Threshold, local, blobRemote)
	evaluator := acl.NewEvaluator(store)
	router := tenant.New(store, local, blobRemote)

	sync := workers.NewSynchroniser(store, local, blobRemote, time.Duration(cfg.ObjectStorage.RetrySeconds)*time.Second)
	engine := namespace.New(router, evaluator, c, sync)

	strategy := workers.StrategyLRU
	if cfg.Culler.Strategy == "lfu" {
		strategy = workers.StrategyLFU
	}
	culler := workers.NewCuller(store, local, blobRemote, diskUsage(cfg.LocalStorage.Base), cfg.Culler.Enabled, cfg.Culler.Threshold, strategy, cfg.Culler.Batch, hostnameOrUnknown())
	monitor := workers.NewMonitor(store, time.Duration(cfg.Metadata.RetryIntervalS)*time.Second, engine)

	go sync.Run(ctx)
	go culler.Run(ctx)
	go monitor.Run(ctx)
	logger.Info(ctx).Msg("background workers started: sync, culler, monitor")

	srv := &http.Server{Addr: *addrFlag, Handler: newRouter(engine, store, sync, culler)}
	go func() {
		logger.Info(ctx).Str("addr", *addrFlag).Msg("admin/health http surface listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx).Err(err).Msg("admin http server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	sync.Stop()
	culler.Stop()
	monitor.Stop()
}

func openMetadataStore(cfg *config.Config) (metadata.Store, error) {
	dsn := cfg.Metadata.Database
	if cfg.Metadata.Driver == "mysql" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.Metadata.User, cfg.Metadata.Password, cfg.Metadata.Host, cfg.Metadata.Port, cfg.Metadata.Database)
	}
	return sqlstore.Open(cfg.Metadata.Driver, dsn, cfg.Metadata.ReplicaHost, cfg.Metadata.MaxOpenConns)
}

func openRemoteStore(cfg *config.Config) (*objectstore.Store, error) {
	if cfg.ObjectStorage.Endpoint == "" {
		return nil, nil
	}
	return objectstore.New(objectstore.Config{
		Endpoint:  cfg.ObjectStorage.Endpoint,
		Region:    cfg.ObjectStorage.Region,
		Bucket:    cfg.ObjectStorage.Bucket,
		AccessKey: cfg.ObjectStorage.AccessKey,
		SecretKey: cfg.ObjectStorage.SecretKey,
		PathStyle: cfg.ObjectStorage.PathStyle,
		UseSSL:    cfg.ObjectStorage.UseSSL,
	})
}

func codecFor(cfg config.LocalStorage) blobstore.Codec {
	if cfg.CompressData {
		return blobstore.GzipCodec{}
	}
	return blobstore.IdentityCodec{}
}

// diskUsage reports the fraction of the local storage filesystem in use,
// the signal the culler's threshold check consults before gathering
// candidates. Built on syscall.Statfs directly: no library in the stack
// wraps statfs, and wrapping a single syscall in a dependency would be
// backwards.
func diskUsage(base string) workers.DiskUsage {
	return func() (float64, error) {
		var st syscall.Statfs_t
		if err := syscall.Statfs(base, &st); err != nil {
			return 0, err
		}
		if st.Blocks == 0 {
			return 0, nil
		}
		used := st.Blocks - st.Bfree
		return float64(used) / float64(st.Blocks), nil
	}
}

func hostnameOrUnknown() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func newRouter(engine *namespace.Engine, store metadata.Store, sync *workers.Synchroniser, culler *workers.Culler) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := store.CheckConnection(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "primary unreachable: %s\n", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	r.Get("/admin/storage", func(w http.ResponseWriter, req *http.Request) {
		auth := authFromRequest(req)
		usage, err := engine.GetStorageUsage(req.Context(), auth)
		if err != nil {
			writeError(w, err)
			return
		}
		fmt.Fprintf(w, "total_bytes=%d cached_bytes=%d files=%d directories=%d\n",
			usage.TotalBytes, usage.CachedBytes, usage.FileCount, usage.DirectoryCount)
	})

	r.Post("/admin/sync", func(w http.ResponseWriter, req *http.Request) {
		if err := sync.TriggerSync(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		synced, failed := sync.Counters()
		fmt.Fprintf(w, "synced=%d failed=%d\n", synced, failed)
	})

	r.Post("/admin/cull", func(w http.ResponseWriter, req *http.Request) {
		if err := culler.RunOnce(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	return r
}

func authFromRequest(req *http.Request) namespace.AuthContext {
	auth := namespace.AuthContext{
		User:   req.Header.Get("X-User"),
		Tenant: req.Header.Get("X-Tenant"),
	}
	if roles := req.Header.Get("X-Roles"); roles != "" {
		auth.Roles = strings.Split(roles, ",")
	}
	return auth
}

func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "error: %s\n", err)
}
