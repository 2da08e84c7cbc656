package handlers

import (
	"net/http"
	"time"

	"monitor-hub/core/metrics"
	"monitor-hub/core/monitoring"
	"monitor-hub/core/utils"
)

type StatsHandler struct {
	engine  *monitoring.Engine
	metrics *metrics.Collector
	logger  *utils.Logger
}

func NewStatsHandler(engine *monitoring.Engine, collector *metrics.Collector, logger *utils.Logger) *StatsHandler {
	return &StatsHandler{engine: engine, metrics: collector, logger: logger}
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context(), currentUserID(r))
	if err != nil {
		h.logger.Errorf("stats: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Metrics returns the in-process collector snapshot as JSON.
func (h *StatsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":   h.metrics.Snapshot(),
		"timestamp": utils.NowUTC().Format(time.RFC3339),
	})
}
