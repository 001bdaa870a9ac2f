package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/medicaments-search/cache"
	"github.com/giygas/medicaments-search/config"
	"github.com/giygas/medicaments-search/data"
	"github.com/giygas/medicaments-search/dataset"
	"github.com/giygas/medicaments-search/handlers"
	"github.com/giygas/medicaments-search/health"
	"github.com/giygas/medicaments-search/logging"
	"github.com/giygas/medicaments-search/rpc"
	"github.com/giygas/medicaments-search/scheduler"
	"github.com/giygas/medicaments-search/search"
	"github.com/giygas/medicaments-search/server"
	"github.com/giygas/medicaments-search/validation"
	"github.com/giygas/medicaments-search/worker"
)

const shutdownTimeout = 30 * time.Second

// app owns every long-lived component so shutdown can release them in order
type app struct {
	cfg       *config.Config
	client    *rpc.Client
	store     *cache.SQLiteStore
	cache     *cache.Manager
	container *data.DataContainer
	scheduler *scheduler.Scheduler
	server    *server.Server
}

func main() {
	verbose := flag.Bool("v", false, "log debug output to the console")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.InitLoggerWithConfig(cfg, *verbose)
	defer logging.Close()

	a, err := newApp(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := a.scheduler.Start(); err != nil {
		logging.Error("Failed to start scheduler", "error", err)
		a.close()
		os.Exit(1)
	}

	// Profiling endpoint (accessible at /debug/pprof/) - only for local dev
	if cfg.Env == config.EnvDevelopment {
		go func() {
			logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				logging.Error("Profiling server failed", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case sig := <-quit:
		logging.Info("Received signal", "signal", sig.String())
	case err := <-serverErr:
		logging.Error("Server failed to start", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		logging.Error("Server shutdown error", "error", err)
	}
	a.close()

	logging.Info("Shutdown complete")
}

// newApp builds the component graph from cfg without starting anything
func newApp(cfg *config.Config) (*app, error) {
	opts, err := search.OptionsFor(cfg.SearchKeys)
	if err != nil {
		return nil, err
	}
	opts.Matcher, err = search.MatcherFor(cfg.SearchMatcher, opts.Threshold)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	host := worker.NewHost(worker.WithSearchOptions(opts))
	a.client = rpc.Dial(host, rpc.WithTimeout(cfg.SearchTimeout))

	cacheOpts := cache.Options{
		Namespace:  cfg.CacheNamespace,
		DefaultTTL: cfg.CacheTTL,
		MaxItems:   cfg.CacheMaxItems,
	}
	if cfg.CacheDBPath != "" {
		store, err := cache.OpenSQLiteStore(cfg.CacheDBPath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open cache store: %w", err)
		}
		a.store = store
		cacheOpts.Store = store
	}

	a.cache, err = cache.New(cacheOpts)
	if err != nil {
		a.close()
		return nil, err
	}

	a.container = data.NewDataContainer()
	a.container.SetServerStartTime(time.Now())

	loader := dataset.NewLoader(cfg.DatasetPath, cfg.DatasetURL)
	validator := validation.NewDataValidator()

	schedOpts := []scheduler.Option{
		scheduler.WithSchedule(cfg.ReloadSchedule),
		scheduler.WithCache(a.cache),
	}
	if a.store != nil {
		schedOpts = append(schedOpts, scheduler.WithPurger(a.store))
	}
	a.scheduler = scheduler.NewScheduler(a.container, loader, a.client, validator, schedOpts...)

	checker, err := health.NewHealthChecker(a.container, a.client, cfg.ReloadSchedule)
	if err != nil {
		a.close()
		return nil, err
	}

	handler := handlers.NewHTTPHandler(a.container, a.client, validator, checker, a.cache, cfg.CacheTTL)
	a.server = server.NewServer(cfg, handler)

	logging.Info("Application initialized",
		"dataset", loader.Source(),
		"search_keys", cfg.SearchKeys,
		"search_matcher", cfg.SearchMatcher,
		"cache_store", cfg.CacheDBPath,
		"schedule", cfg.ReloadSchedule)

	return a, nil
}

// close releases components in reverse dependency order
func (a *app) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			logging.Warn("Failed to close search client", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warn("Failed to close cache store", "error", err)
		}
	}
}
