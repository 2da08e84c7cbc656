package appbootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"monitor-hub/api"
	"monitor-hub/config"
	"monitor-hub/core/auth"
	"monitor-hub/core/cache"
	"monitor-hub/core/metrics"
	"monitor-hub/core/monitoring"
	"monitor-hub/core/notify"
	"monitor-hub/core/ratelimit"
	"monitor-hub/core/store"
	"monitor-hub/core/utils"
)

const shutdownTimeout = 15 * time.Second

// BackgroundWorker is a component with its own scheduling loop.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

// App holds every long-lived component of one process.
type App struct {
	Config  *config.AppConfig
	Logger  *utils.Logger
	DB      *store.DB
	Engine  *monitoring.Engine
	Server  *api.Server
	Keys    *auth.KeyService
	Metrics *metrics.Collector
	Cache   *cache.Cache[any]
	Limiter *ratelimit.Limiter

	workers []BackgroundWorker
}

// Compose opens the database, applies migrations and wires the components.
func Compose(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*App, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	app, err := composeRuntime(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*App, error) {
	targets := store.NewTargetsStore(db)
	checks := store.NewChecksStore(db)
	incidents := store.NewIncidentsStore(db)
	rules := store.NewAlertRulesStore(db)
	notifications := store.NewNotificationsStore(db)
	apiKeys := store.NewAPIKeysStore(db)

	collector := metrics.NewCollector(cfg.Metrics.HistogramSamples)
	readCache := cache.New[any](cache.Options{
		MaxSize:       cfg.Cache.MaxSize,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	})
	limiter := ratelimit.New()
	dispatcher := notify.NewDefaultDispatcher(cfg.Notify, logger, collector)
	engine := monitoring.NewEngine(cfg.Checks, monitoring.Deps{
		Targets:       targets,
		Checks:        checks,
		Incidents:     incidents,
		Rules:         rules,
		Notifications: notifications,
		Dispatcher:    dispatcher,
		Metrics:       collector,
		Cache:         readCache,
		Logger:        logger,
	})
	keys := auth.NewKeyService(apiKeys, logger)
	authz, err := auth.NewAuthorizer()
	if err != nil {
		return nil, err
	}
	server := api.NewServer(cfg, api.Deps{
		DB:            db,
		Targets:       targets,
		Incidents:     incidents,
		Rules:         rules,
		Notifications: notifications,
		Engine:        engine,
		Metrics:       collector,
		Cache:         readCache,
		Limiter:       limiter,
		Keys:          keys,
		Authorizer:    authz,
		Logger:        logger,
	})
	app := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Engine:  engine,
		Server:  server,
		Keys:    keys,
		Metrics: collector,
		Cache:   readCache,
		Limiter: limiter,
	}
	if cfg.Checks.Enabled {
		app.workers = append(app.workers, engine)
	}
	return app, nil
}

// Run serves HTTP and runs the background workers until ctx is cancelled.
// When configPath is set the file is watched and hot settings are reapplied.
func (a *App) Run(ctx context.Context, configPath string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, w := range a.workers {
		if err := w.StartWithContext(runCtx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Cache.Run(runCtx)
	}()
	go func() {
		defer wg.Done()
		a.Limiter.Run(runCtx, a.Config.RateLimit.SweepInterval)
	}()
	if configPath != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := config.Watch(runCtx, configPath, a.Logger, a.ApplyConfig); err != nil {
				a.Logger.Warnf("config watch disabled: %v", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Server.ListenAndServe() }()

	var err error
	select {
	case <-runCtx.Done():
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if shutdownErr := a.Server.Shutdown(shutdownCtx); shutdownErr != nil {
		a.Logger.Errorf("http shutdown: %v", shutdownErr)
	}
	for _, w := range a.workers {
		if stopErr := w.StopWithContext(shutdownCtx); stopErr != nil && !errors.Is(stopErr, context.Canceled) {
			a.Logger.Errorf("worker stop: %v", stopErr)
		}
	}
	wg.Wait()
	return err
}

// ApplyConfig reapplies the settings that can change without a restart:
// log level, rate limit, auth, trusted proxies and check tuning.
func (a *App) ApplyConfig(cfg *config.AppConfig) {
	if cfg == nil {
		return
	}
	a.Logger.SetLevel(cfg.Log.Level)
	a.Server.ApplyConfig(cfg)
	a.Engine.ApplyConfig(cfg.Checks)
	a.Logger.Printf("config reloaded")
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
