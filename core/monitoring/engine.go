package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/cache"
	"monitor-hub/core/metrics"
	"monitor-hub/core/notify"
	"monitor-hub/core/store"
	"monitor-hub/core/utils"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTargetNotFound   = fmt.Errorf("target not found: %w", store.ErrNotFound)
	ErrInvalidCondition = errors.New("invalid alert condition")
)

type Deps struct {
	Targets       store.TargetsStore
	Checks        store.ChecksStore
	Incidents     store.IncidentsStore
	Rules         store.AlertRulesStore
	Notifications store.NotificationsStore
	Prober        *Prober
	Dispatcher    *notify.Dispatcher
	Metrics       *metrics.Collector
	Cache         *cache.Cache[any]
	Logger        *utils.Logger
}

type SweepItem struct {
	ID           int64   `json:"monitor_id"`
	Name         string  `json:"monitor_name"`
	Status       string  `json:"status"`
	ResponseTime *int    `json:"response_time,omitempty"`
	StatusCode   *int    `json:"status_code,omitempty"`
	Error        *string `json:"error,omitempty"`
}

type SweepSummary struct {
	Checked int         `json:"checked"`
	Results []SweepItem `json:"results"`
}

type Engine struct {
	targets       store.TargetsStore
	checks        store.ChecksStore
	incidents     store.IncidentsStore
	notifications store.NotificationsStore
	matcher       *Matcher
	prober        *Prober
	dispatcher    *notify.Dispatcher
	metrics       *metrics.Collector
	cache         *cache.Cache[any]
	logger        *utils.Logger
	locks         *keyedMutex

	mu          sync.Mutex
	cfg         config.ChecksConfig
	lastChecked map[int64]time.Time
	cron        *cron.Cron
	cancel      context.CancelFunc
	running     bool
	wg          sync.WaitGroup
	now         func() time.Time
}

func NewEngine(cfg config.ChecksConfig, deps Deps) *Engine {
	e := &Engine{
		targets:       deps.Targets,
		checks:        deps.Checks,
		incidents:     deps.Incidents,
		notifications: deps.Notifications,
		matcher:       NewMatcher(deps.Rules),
		prober:        deps.Prober,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		cache:         deps.Cache,
		logger:        deps.Logger,
		locks:         newKeyedMutex(),
		cfg:           cfg,
		lastChecked:   map[int64]time.Time{},
		now:           time.Now,
	}
	if e.prober == nil {
		e.prober = NewProber(cfg)
	}
	if e.metrics == nil {
		e.metrics = metrics.NewCollector(0)
	}
	if e.dispatcher == nil {
		e.dispatcher = notify.NewDispatcher(deps.Logger, e.metrics)
	}
	return e
}

// ApplyConfig swaps the hot-reloadable check settings. Cron schedules are
// only read on Start.
func (e *Engine) ApplyConfig(cfg config.ChecksConfig) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

func (e *Engine) SetMaxConcurrent(n int) {
	e.mu.Lock()
	e.cfg.MaxConcurrent = n
	e.mu.Unlock()
}

func (e *Engine) config() config.ChecksConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Engine) Start() {
	if err := e.StartWithContext(context.Background()); err != nil {
		e.logger.Errorf("monitoring start: %v", err)
	}
}

func (e *Engine) StartWithContext(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cron.PrintfLogger(e.logger)
	c := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(e.cfg.Schedule, func() { e.runDue(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("checks schedule %q: %w", e.cfg.Schedule, err)
	}
	if e.cfg.RetentionDays > 0 && e.cfg.RetentionSchedule != "" {
		if _, err := c.AddFunc(e.cfg.RetentionSchedule, func() { e.runRetention(runCtx) }); err != nil {
			cancel()
			return fmt.Errorf("retention schedule %q: %w", e.cfg.RetentionSchedule, err)
		}
	}
	c.Start()
	e.cron = c
	e.cancel = cancel
	e.running = true
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		<-runCtx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func (e *Engine) Stop() {
	_ = e.StopWithContext(context.Background())
}

func (e *Engine) StopWithContext(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel == nil || !e.running {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	cancel()
	waitDone := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		e.mu.Lock()
		e.running = false
		e.cron = nil
		e.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunSweep checks every active target once.
func (e *Engine) RunSweep(ctx context.Context) (SweepSummary, error) {
	targets, err := e.targets.ListActive(ctx)
	if err != nil {
		return SweepSummary{}, fmt.Errorf("list active targets: %w", err)
	}
	return e.sweep(ctx, targets), nil
}

func (e *Engine) CheckOne(ctx context.Context, targetID int64) (store.ProbeResult, error) {
	t, err := e.targets.GetTarget(ctx, targetID)
	if err != nil {
		return store.ProbeResult{}, err
	}
	if t == nil {
		return store.ProbeResult{}, ErrTargetNotFound
	}
	return e.runTarget(ctx, *t), nil
}

func (e *Engine) sweep(ctx context.Context, targets []store.Target) SweepSummary {
	start := e.now()
	items := make([]SweepItem, len(targets))
	var g errgroup.Group
	g.SetLimit(e.config().EffectiveMaxConcurrent())
	for i := range targets {
		i := i
		t := targets[i]
		g.Go(func() error {
			res := e.runTarget(ctx, t)
			items[i] = SweepItem{
				ID:           t.ID,
				Name:         t.Name,
				Status:       res.Status,
				ResponseTime: res.ResponseTimeMs,
				StatusCode:   res.StatusCode,
				Error:        res.Error,
			}
			return nil
		})
	}
	_ = g.Wait()
	e.metrics.SetGauge("sweep_last_duration_ms", float64(e.now().Sub(start).Milliseconds()), nil)
	return SweepSummary{Checked: len(items), Results: items}
}

// runTarget probes one target and applies the result while holding the
// target lock. Panics are turned into a down result for this target only.
func (e *Engine) runTarget(ctx context.Context, t store.Target) (res store.ProbeResult) {
	unlock := e.locks.Lock(t.ID)
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("monitoring target %d panic: %v\n%s", t.ID, r, debug.Stack())
			msg := fmt.Sprint(r)
			res = store.ProbeResult{TargetID: t.ID, Status: store.StatusDown, Error: &msg, CheckedAt: e.now().UTC()}
		}
	}()
	res = e.prober.Probe(ctx, t)
	e.recordProbe(res)
	if _, err := e.checks.AddCheck(ctx, &res); err != nil {
		e.logger.WithField("monitor_id", t.ID).Errorf("monitoring add check: %v", err)
	}
	e.invalidateTarget(t)
	e.applyTransition(ctx, t, res)
	return res
}

func (e *Engine) recordProbe(res store.ProbeResult) {
	e.metrics.IncCounter("monitor_checks_total", 1, metrics.Tags{"status": res.Status})
	if res.ResponseTimeMs != nil {
		e.metrics.Observe("monitor_check_duration_ms", float64(*res.ResponseTimeMs), metrics.Tags{"monitor_id": strconv.FormatInt(res.TargetID, 10)})
	}
}

func (e *Engine) runDue(ctx context.Context) {
	targets, err := e.targets.ListActive(ctx)
	if err != nil {
		e.logger.Errorf("monitoring due checks: %v", err)
		return
	}
	due := e.dueTargets(targets, e.now())
	if len(due) == 0 {
		return
	}
	summary := e.sweep(ctx, due)
	e.logger.Debugf("monitoring scheduled sweep checked %d targets", summary.Checked)
}

// dueTargets returns targets whose interval has elapsed since the last
// scheduled check and marks them as checked at now.
func (e *Engine) dueTargets(targets []store.Target, now time.Time) []store.Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	defInterval := e.cfg.DefaultIntervalM
	if defInterval <= 0 {
		defInterval = 5
	}
	seen := make(map[int64]struct{}, len(targets))
	var due []store.Target
	for _, t := range targets {
		seen[t.ID] = struct{}{}
		interval := t.IntervalMin
		if interval <= 0 {
			interval = defInterval
		}
		last, ok := e.lastChecked[t.ID]
		if ok && now.Sub(last) < time.Duration(interval)*time.Minute {
			continue
		}
		e.lastChecked[t.ID] = now
		due = append(due, t)
	}
	for id := range e.lastChecked {
		if _, ok := seen[id]; !ok {
			delete(e.lastChecked, id)
		}
	}
	return due
}

func (e *Engine) runRetention(ctx context.Context) {
	days := e.config().RetentionDays
	if days <= 0 {
		return
	}
	before := e.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := e.checks.DeleteChecksBefore(ctx, before)
	if err != nil {
		e.logger.Errorf("monitoring retention: %v", err)
		return
	}
	if n > 0 {
		e.logger.Printf("monitoring retention removed %d checks older than %s", n, before.Format(time.RFC3339))
		if e.cache != nil {
			e.cache.DeletePrefix(checksKeyPrefix)
		}
	}
}
