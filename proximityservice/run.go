package proximityservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/api"
	"github.com/geosocial/proximity/internal/cache"
	"github.com/geosocial/proximity/internal/config"
	"github.com/geosocial/proximity/internal/factory"
	"github.com/geosocial/proximity/internal/geoindex"
	"github.com/geosocial/proximity/internal/health"
	"github.com/geosocial/proximity/internal/invalidate"
	"github.com/geosocial/proximity/internal/logger"
	"github.com/geosocial/proximity/internal/model"
	"github.com/geosocial/proximity/internal/proximity"
	"github.com/geosocial/proximity/internal/reindex"
	"github.com/geosocial/proximity/internal/services"
	"github.com/geosocial/proximity/internal/store"
	"github.com/geosocial/proximity/internal/store/sqlstore"
)

// Run starts the proximity service HTTP server and blocks until shutdown or error.
// A non-empty buildTarget overrides PROXIMITY_BUILD_TARGET.
func Run(buildTarget string) error {
	log := logger.New("proximity-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	if buildTarget != "" {
		cfg.BuildTarget = buildTarget
		cfg.DBDriver, cfg.CacheDriver = "auto", "auto"
		if err := cfg.ResolveDefaults(); err != nil {
			log.Error().Err(err).Msg("Invalid build-target override")
			return err
		}
	}
	log = log.Level(logger.ParseLevel(cfg.LogLevel))

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("cache_driver", cfg.CacheDriver).
		Int("http_port", cfg.HTTPPort).
		Float64("max_search_radius", cfg.MaxSearchRadius).
		Bool("nearby_result_cache", cfg.NearbyResultCache).
		Msg("Proximity service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, caching, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := caching.Close(); err != nil {
			log.Warn().Err(err).Msg("cache client close failed")
		}
		if err := st.DB().Close(); err != nil {
			log.Warn().Err(err).Msg("store close failed")
		}
	}()

	svcHealth := startHealthCheckers(ctx, cfg, log, st, caching)
	a := newApp(cfg, st, caching, log)
	router := api.NewRouter(a.deps(svcHealth))

	// Block startup until the store reports healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	startReindexer(ctx, cfg, log, st, caching.Index)

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs the store and the cache layer; either failing is fatal.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sqlstore.Store, *factory.Caching, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, err
	}

	caching, err := factory.NewCaching(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Cache adapter unavailable")
		_ = st.DB().Close()
		return nil, nil, err
	}
	return st, caching, nil
}

// app holds the domain services built on one store and cache layer.
type app struct {
	nearby     *proximity.Service
	users      *services.UserService
	groups     *services.GroupService
	activities *services.ActivityService
}

func newApp(cfg *config.Config, st store.Store, caching *factory.Caching, log zerolog.Logger) *app {
	ttls := factory.CacheTTLs(cfg)
	// group snapshots are read on every join, keep them warm
	entities := cache.NewEntityCache(caching.Backend, log, model.KindGroup)

	opts := proximity.Options{
		Index:  caching.Index,
		Cache:  entities,
		TTLs:   ttls,
		Limits: proximity.LimitsFromConfig(cfg),
		Log:    log,
	}
	if cfg.NearbyResultCache {
		opts.Results = cache.NewResultCache(caching.Backend, ttls.NearbyResults)
	}

	inv := invalidate.New(caching.Index, entities, ttls, log)
	hasher := services.NewBcryptHasher()
	acts := services.NewActivityService(st, inv, cfg.ActivityLifetime.Std())
	return &app{
		nearby:     proximity.NewService(st, opts),
		users:      services.NewUserService(st, inv, hasher, log),
		groups:     services.NewGroupService(st, inv, hasher, acts, log),
		activities: acts,
	}
}

func (a *app) deps(h api.HealthReporter) api.Deps {
	return api.Deps{
		Nearby:     a.nearby,
		Users:      a.users,
		Groups:     a.groups,
		Activities: a.activities,
		Health:     h,
	}
}

// startHealthCheckers starts component checkers and the service-level
// aggregator. Only the store is required; index and cache outages degrade.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, caching *factory.Caching) *health.ServiceHealthChecker {
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)

	idxChecker := geoindex.NewHealthChecker(caching.Index, log, probeTimeout)
	go idxChecker.Start(ctx, interval)

	svcHealth := health.NewServiceHealthChecker(log, storeChecker)
	svcHealth.AddOptional(idxChecker)
	if p, ok := caching.Backend.(health.HealthPinger); ok {
		cacheChecker := health.NewPingChecker("cache", p, log, probeTimeout)
		go cacheChecker.Start(ctx, interval)
		svcHealth.AddOptional(cacheChecker)
	}
	go svcHealth.Start(ctx, interval)
	return svcHealth
}

// startReindexer runs index reconciliation in the background; a zero interval disables it.
func startReindexer(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, idx geoindex.Index) {
	interval := cfg.ReindexInterval.Std()
	if interval <= 0 {
		log.Info().Msg("index reconciliation disabled")
		return
	}
	w := reindex.NewWorker(st, idx, reindex.Config{BatchSize: cfg.ReindexBatchSize, Interval: interval}, log)
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Stack().Err(err).Msg("reindex worker stopped")
		}
	}()
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

type healthFlag interface{ IsHealthy() bool }

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth healthFlag) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
