package handlers

import (
	"net/http"
	"strings"

	"monitor-hub/core/store"
	"monitor-hub/core/utils"
)

type IncidentsHandler struct {
	incidents store.IncidentsStore
	logger    *utils.Logger
}

func NewIncidentsHandler(incidents store.IncidentsStore, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{incidents: incidents, logger: logger}
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" && status != store.IncidentOpen && status != store.IncidentResolved {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	filter := store.IncidentFilter{
		UserID: currentUserID(r),
		Status: status,
		Limit:  queryInt(r, "limit", 100),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("monitor_id")); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			http.Error(w, errBadRequest, http.StatusBadRequest)
			return
		}
		filter.TargetID = id
	}
	items, err := h.incidents.ListIncidents(r.Context(), filter)
	if err != nil {
		h.logger.Errorf("list incidents: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
