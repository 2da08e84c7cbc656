package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/monitoring"
	"monitor-hub/core/store"
	"monitor-hub/core/utils"
)

const checkNowCooldown = 2 * time.Second

type MonitorsHandler struct {
	targets      store.TargetsStore
	engine       *monitoring.Engine
	defaults     func() config.ChecksConfig
	logger       *utils.Logger
	checkNowMu   sync.Mutex
	lastCheckNow map[int64]time.Time
}

func NewMonitorsHandler(targets store.TargetsStore, engine *monitoring.Engine, defaults func() config.ChecksConfig, logger *utils.Logger) *MonitorsHandler {
	if defaults == nil {
		defaults = func() config.ChecksConfig { return config.ChecksConfig{DefaultTimeoutSec: 30, DefaultIntervalM: 5} }
	}
	return &MonitorsHandler{
		targets:      targets,
		engine:       engine,
		defaults:     defaults,
		logger:       logger,
		lastCheckNow: map[int64]time.Time{},
	}
}

func (h *MonitorsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.targets.ListTargets(r.Context(), currentUserID(r))
	if err != nil {
		h.logger.Errorf("list monitors: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.Target{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *MonitorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload monitorPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	t, err := payloadToTarget(payload, h.defaults(), currentUserID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.targets.CreateTarget(r.Context(), t); err != nil {
		h.logger.Errorf("create monitor: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *MonitorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.ownedTarget(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *MonitorsHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedTarget(w, r)
	if !ok {
		return
	}
	var payload monitorPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	t, err := mergeTarget(existing, payload, h.defaults())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.targets.UpdateTarget(r.Context(), t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		h.logger.Errorf("update monitor %d: %v", t.ID, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *MonitorsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.ownedTarget(w, r)
	if !ok {
		return
	}
	if err := h.engine.DeleteTarget(r.Context(), *t); err != nil {
		if errors.Is(err, monitoring.ErrTargetNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		h.logger.Errorf("delete monitor %d: %v", t.ID, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Monitor deleted successfully"})
}

// ChartData answers hourly response-time averages and status class counts
// over ?hours= (default 24).
func (h *MonitorsHandler) ChartData(w http.ResponseWriter, r *http.Request) {
	data, err := h.engine.ChartData(r.Context(), currentUserID(r), queryInt(r, "hours", 24))
	if err != nil {
		h.logger.Errorf("monitor chart data: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *MonitorsHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.RecentActivity(r.Context(), currentUserID(r), queryInt(r, "limit", 10))
	if err != nil {
		h.logger.Errorf("monitor recent activity: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": items})
}

// CheckNow runs one probe for the monitor and applies the result.
func (h *MonitorsHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	t, ok := h.ownedTarget(w, r)
	if !ok {
		return
	}
	if !h.allowCheckNow(t.ID) {
		http.Error(w, "monitors.error.tooFrequent", http.StatusTooManyRequests)
		return
	}
	res, err := h.engine.CheckOne(r.Context(), t.ID)
	if err != nil {
		if errors.Is(err, monitoring.ErrTargetNotFound) {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
		h.logger.Errorf("check monitor %d: %v", t.ID, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MonitorsHandler) Checks(w http.ResponseWriter, r *http.Request) {
	t, ok := h.ownedTarget(w, r)
	if !ok {
		return
	}
	checks, err := h.engine.RecentChecks(r.Context(), t.ID, queryInt(r, "hours", 24), queryInt(r, "limit", 100))
	if err != nil {
		h.logger.Errorf("monitor %d checks: %v", t.ID, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checks": checks})
}

// Sweep checks every active monitor once and returns the per-monitor summary.
func (h *MonitorsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.RunSweep(r.Context())
	if err != nil {
		h.logger.Errorf("sweep: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ownedTarget loads the {id} target and answers 404 when it does not belong
// to the caller.
func (h *MonitorsHandler) ownedTarget(w http.ResponseWriter, r *http.Request) (*store.Target, bool) {
	id, err := parseID(pathParams(r)["id"])
	if err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return nil, false
	}
	t, err := h.targets.GetTarget(r.Context(), id)
	if err != nil {
		h.logger.Errorf("get monitor %d: %v", id, err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return nil, false
	}
	if t == nil || t.UserID != currentUserID(r) {
		http.Error(w, errNotFound, http.StatusNotFound)
		return nil, false
	}
	return t, true
}

func (h *MonitorsHandler) allowCheckNow(id int64) bool {
	h.checkNowMu.Lock()
	defer h.checkNowMu.Unlock()
	now := time.Now().UTC()
	last := h.lastCheckNow[id]
	if !last.IsZero() && now.Sub(last) < checkNowCooldown {
		return false
	}
	h.lastCheckNow[id] = now
	if len(h.lastCheckNow) > 2000 {
		for key, ts := range h.lastCheckNow {
			if now.Sub(ts) >= checkNowCooldown {
				delete(h.lastCheckNow, key)
			}
		}
	}
	return true
}
