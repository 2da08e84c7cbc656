package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"monitor-hub/api/handlers"
	"monitor-hub/api/routegroups"
	"monitor-hub/config"
	"monitor-hub/core/auth"
	"monitor-hub/core/cache"
	"monitor-hub/core/metrics"
	"monitor-hub/core/monitoring"
	"monitor-hub/core/ratelimit"
	"monitor-hub/core/store"
	"monitor-hub/core/utils"

	"github.com/go-chi/chi/v5"
)

const healthTimeout = 2 * time.Second

var errNoDatabase = errors.New("database not configured")

type Deps struct {
	DB            *store.DB
	Targets       store.TargetsStore
	Incidents     store.IncidentsStore
	Rules         store.AlertRulesStore
	Notifications store.NotificationsStore
	Engine        *monitoring.Engine
	Metrics       *metrics.Collector
	Cache         *cache.Cache[any]
	Limiter       *ratelimit.Limiter
	Keys          *auth.KeyService
	Authorizer    *auth.Authorizer
	Logger        *utils.Logger
}

type Server struct {
	mu  sync.RWMutex
	cfg *config.AppConfig

	db         *store.DB
	engine     *monitoring.Engine
	metrics    *metrics.Collector
	cache      *cache.Cache[any]
	limiter    *ratelimit.Limiter
	keys       *auth.KeyService
	authz      *auth.Authorizer
	logger     *utils.Logger
	router     chi.Router
	httpServer *http.Server

	monitors  *handlers.MonitorsHandler
	incidents *handlers.IncidentsHandler
	alerts    *handlers.AlertsHandler
	stats     *handlers.StatsHandler
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		db:      deps.DB,
		engine:  deps.Engine,
		metrics: deps.Metrics,
		cache:   deps.Cache,
		limiter: deps.Limiter,
		keys:    deps.Keys,
		authz:   deps.Authorizer,
		logger:  deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.NewCollector(0)
	}
	s.monitors = handlers.NewMonitorsHandler(deps.Targets, deps.Engine, func() config.ChecksConfig { return s.config().Checks }, deps.Logger)
	s.incidents = handlers.NewIncidentsHandler(deps.Incidents, deps.Logger)
	s.alerts = handlers.NewAlertsHandler(deps.Rules, deps.Targets, deps.Notifications, deps.Engine, deps.Logger)
	s.stats = handlers.NewStatsHandler(deps.Engine, s.metrics, deps.Logger)
	s.router = s.routes()
	return s
}

func (s *Server) config() config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// ApplyConfig swaps the settings read per request: rate limit, auth and
// trusted proxies.
func (s *Server) ApplyConfig(cfg *config.AppConfig) {
	if cfg == nil {
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware, s.requestIDMiddleware, s.loggingMiddleware, s.rateLimitMiddleware)
	r.Get("/healthz", s.health)
	r.Get("/metrics", s.authorized(s.prometheusMetrics))
	r.Route("/api", func(apiRouter chi.Router) {
		g := routegroups.Guards{Authorized: s.authorized}
		routegroups.RegisterMonitors(apiRouter, g, s.monitors)
		routegroups.RegisterAlerts(apiRouter, g, s.alerts)
		routegroups.RegisterInsights(apiRouter, g, s.incidents, s.stats)
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	srv := s.httpServer
	s.mu.Unlock()
	s.logger.Printf("http: listening on %s", srv.Addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpServer
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	dbCheck := map[string]any{"status": "healthy"}
	status, code := "healthy", http.StatusOK
	start := time.Now()
	var err error
	if s.db == nil {
		err = errNoDatabase
	} else {
		err = s.db.PingContext(ctx)
	}
	dbCheck["response_time_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		s.logger.Warnf("health: database: %v", err)
		dbCheck["status"] = "unhealthy"
		dbCheck["error"] = err.Error()
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    map[string]any{"database": dbCheck},
		"timestamp": utils.NowUTC().Format(time.RFC3339),
	})
}

func (s *Server) prometheusMetrics(w http.ResponseWriter, r *http.Request) {
	if s.cache != nil {
		s.metrics.SetGauge("cache_entries", float64(s.cache.Len()), nil)
	}
	if s.limiter != nil {
		s.metrics.SetGauge("ratelimit_identities", float64(s.limiter.Len()), nil)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := s.metrics.WritePrometheus(w); err != nil {
		s.logger.Errorf("metrics export: %v", err)
	}
}
