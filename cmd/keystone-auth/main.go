package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/platinummonkey/keystone-auth/pkg/api"
	"github.com/platinummonkey/keystone-auth/pkg/auth"
	"github.com/platinummonkey/keystone-auth/pkg/config"
	"github.com/platinummonkey/keystone-auth/pkg/identity"
	"github.com/platinummonkey/keystone-auth/pkg/middleware"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
	"github.com/platinummonkey/keystone-auth/pkg/projects"
	"github.com/platinummonkey/keystone-auth/pkg/session"
)

var (
	addr            = flag.String("addr", "", "Listen address (overrides KEYSTONE_LISTEN_ADDR)")
	cleanupSchedule = flag.String("throttle-cleanup-schedule", "@every 5m", "Cron schedule for pruning idle login throttle buckets")
)

// version is set at build time
var version = "dev"

func main() {
	flag.Parse()

	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		boot.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	boot.Infof("Identity service %s (API v%d)", cfg.Identity.AuthURL, cfg.IdentityVersion())

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		boot.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	var (
		registry *prometheus.Registry
		metrics  *observability.AuthMetrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewAuthMetrics(registry)
		if otelProviders != nil {
			if err := metrics.EnableOTel(otel.Meter(observability.TracerName)); err != nil {
				boot.Fatalf("Failed to create OpenTelemetry instruments: %v", err)
			}
		}
	}

	httpClient, err := identity.NewSession(identity.SessionConfig{
		Insecure:   cfg.Identity.Insecure,
		CACertFile: cfg.Identity.CACertFile,
		Timeout:    cfg.Identity.HTTPTimeout,
	})
	if err != nil {
		boot.Fatalf("Failed to configure identity session: %v", err)
	}
	client := identity.NewHTTPClient(cfg.IdentityVersion(), httpClient, metrics)

	health := observability.NewHealthChecker(version)
	health.AddCheck("identity", observability.HTTPCheck(httpClient, cfg.Identity.AuthURL), true)

	var (
		redisClient *redis.Client
		cache       projects.Cache = projects.NewLRUCache(cfg.Cache.ProjectCacheSize, cfg.Cache.ProjectCacheTTL)
		throttle    middleware.Throttle
	)
	throttleCfg := &middleware.ThrottleConfig{Attempts: cfg.Server.LoginRateLimit, Window: time.Minute}
	if cfg.Cache.RedisURL != "" {
		redisClient, err = projects.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			boot.Fatalf("Failed to connect to Redis: %v", err)
		}
		cache = projects.NewTieredCache(cache, projects.NewRedisCache(redisClient, cfg.Cache.ProjectCacheTTL, "", logger))
		health.AddCheck("redis", observability.RedisCheck(redisClient), false)
		if cfg.Server.LoginRateLimit > 0 {
			throttle = middleware.NewDistributedLoginThrottle(redisClient, throttleCfg, middleware.DefaultThrottlePrefix)
		}
		boot.Info("Using Redis for the project cache and login throttle")
	}

	scheduler := cron.New()
	if throttle == nil && cfg.Server.LoginRateLimit > 0 {
		local := middleware.NewLoginThrottle(throttleCfg)
		if _, err := scheduler.AddFunc(*cleanupSchedule, local.Cleanup); err != nil {
			boot.Fatalf("Invalid throttle cleanup schedule: %v", err)
		}
		throttle = local
	}

	resolver := projects.NewResolver(client, cache, logger, metrics)
	backend := auth.NewBackend(client, resolver, auth.BackendConfig{
		DefaultAuthURL: cfg.Identity.AuthURL,
		DefaultDomain:  cfg.Identity.DefaultDomain,
		TokenMargin:    cfg.Identity.TokenMargin,
	}, logger, metrics)

	var settings config.SettingsSource = config.Static(cfg.Settings)
	if cfg.SettingsFile != "" {
		watcher := config.NewWatcher(cfg.SettingsFile, cfg, logger)
		settings = watcher
		go func() {
			defer observability.RecoverPanic(logger, "settings watcher")
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("Settings watcher stopped")
			}
		}()
	}

	store, db, err := openSessionStore(ctx, cfg.Session)
	if err != nil {
		boot.Fatalf("Failed to open session store: %v", err)
	}
	if sqlStore, ok := store.(*session.SQLStore); ok {
		sessionLogger := logger.WithComponent("sessions")
		if _, err := scheduler.AddFunc(cfg.Session.CleanupSchedule, func() {
			removed, err := sqlStore.DeleteExpired(context.Background())
			if err != nil {
				sessionLogger.WithError(err).Warn("Failed to prune expired sessions")
				return
			}
			sessionLogger.WithField("removed", removed).Debug("Pruned expired sessions")
		}); err != nil {
			boot.Fatalf("Invalid session cleanup schedule: %v", err)
		}
		boot.Infof("Using %s for sessions", cfg.Session.Driver)
	}

	srv := api.NewServer(cfg, api.ServerOptions{
		Backend:  backend,
		Resolver: backend,
		Sessions: session.NewManager(store, "", cfg.Web.SecureCookies),
		Settings: settings,
		Throttle: throttle,
		Health:   health,
		Registry: registry,
		Metrics:  metrics,
		Logger:   logger,
		Tracing:  otelProviders != nil,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("scheduler", func(context.Context) error {
		<-scheduler.Stop().Done()
		return nil
	})
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})
	if db != nil {
		shutdown.Register("sessions", func(context.Context) error {
			return db.Close()
		})
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error {
			return redisClient.Close()
		})
	}

	scheduler.Start()

	serveErr := make(chan error, 1)
	go func() {
		boot.Infof("Starting keystone-auth %s on %s", version, cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	waitCtx, stopWaiting := context.WithCancel(ctx)
	go func() {
		if err, ok := <-serveErr; ok {
			boot.Errorf("Server failed: %v", err)
			stopWaiting()
		}
	}()

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		boot.Errorf("Shutdown finished with errors: %v", err)
		cancel()
		os.Exit(1)
	}
	boot.Info("keystone-auth stopped")
}

// openSessionStore returns the configured session store, plus its database
// handle for the SQL drivers.
func openSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, *sql.DB, error) {
	if cfg.Driver == config.SessionDriverMemory {
		return session.NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil, nil
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Driver == config.SessionDriverSQLite {
		// SQLite allows one writer at a time.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store, err := session.NewSQLStore(db, cfg.TTL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}
