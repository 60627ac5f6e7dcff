package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/bpepple/clu-comics-sub000/internal/config"
	"github.com/bpepple/clu-comics-sub000/internal/handlers"
	"github.com/bpepple/clu-comics-sub000/internal/index"
	"github.com/bpepple/clu-comics-sub000/internal/library"
	"github.com/bpepple/clu-comics-sub000/internal/listcache"
	"github.com/bpepple/clu-comics-sub000/internal/logging"
	"github.com/bpepple/clu-comics-sub000/internal/memory"
	"github.com/bpepple/clu-comics-sub000/internal/metrics"
	"github.com/bpepple/clu-comics-sub000/internal/middleware"
	"github.com/bpepple/clu-comics-sub000/internal/reconcile"
	"github.com/bpepple/clu-comics-sub000/internal/scanner"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	metrics.SetAppInfo(config.Version, config.Commit, config.GoVersion)

	// Open the index store
	dbStart := time.Now()
	store, err := index.Open(context.Background(), cfg.DatabasePath)
	if err != nil {
		logging.Fatal("Failed to open index database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn("Failed to close index database: %v", err)
		}
	}()
	logging.Info("Index database ready in %v", time.Since(dbStart).Round(time.Millisecond))

	// Listing cache, shrunk under memory pressure
	cache := listcache.New(cfg.CacheTTL, cfg.CacheCapacity)
	monitor := memory.NewMonitor(memory.DefaultConfig(), func() {
		logging.Warn("Memory pressure detected, shrinking listing cache")
		cache.Shrink()
	})
	monitor.Start()
	defer monitor.Stop()

	// Scanner and reconciler. Newly indexed paths are handed to the
	// enrichment queue; until the metadata scanner is wired in, the handoff
	// just records the batch.
	sc := scanner.New(cfg.LibraryRoots, cfg.StagingDir)
	enqueue := func(paths []string, priority int) {
		if len(paths) > 0 {
			logging.Debug("Enqueued %d paths for enrichment (priority %d)", len(paths), priority)
		}
	}
	rec := reconcile.New(store, sc, cfg.LibraryRoots, enqueue, cfg.RebuildInterval)
	rec.Start()
	defer rec.Stop()

	lib := library.New(store, cache, rec, cfg.LibraryRoots, cfg.StagingDir)

	// Filesystem watcher
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.WatchEnabled {
		go lib.Watch(watchCtx)
	} else {
		logging.Info("Filesystem watcher disabled")
	}

	h := handlers.New(lib)
	router := setupRouter(h, cfg)

	handler := middleware.Logger(middleware.DefaultLoggingConfig())(router)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.MetricsEnabled && cfg.MetricsPort != cfg.Port {
		go serveMetrics(h, cfg.MetricsPort)
	}

	go handleShutdown(srv, rec, monitor, cancelWatch)

	logging.Info("Server listening on :%s (started in %v)", cfg.Port, time.Since(startTime).Round(time.Millisecond))
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	// Health and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/browse", h.Browse).Methods("GET")
	api.HandleFunc("/files", h.ListFiles).Methods("GET")
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/rebuild", h.TriggerRebuild).Methods("POST")

	// Metrics on the main port when no separate metrics port is configured
	if cfg.MetricsEnabled && cfg.MetricsPort == cfg.Port {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	return r
}

func serveMetrics(h *handlers.Handlers, port string) {
	m := http.NewServeMux()
	m.Handle("/metrics", h.MetricsHandler())
	logging.Info("Metrics listening on :%s", port)
	if err := http.ListenAndServe(":"+port, m); err != nil {
		logging.Error("Metrics server error: %v", err)
	}
}

func handleShutdown(srv *http.Server, rec *reconcile.Reconciler, monitor *memory.Monitor, cancelWatch context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logging.Info("Received %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cancelWatch()
	rec.Stop()
	monitor.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	}
}
