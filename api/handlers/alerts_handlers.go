package handlers

import (
	"errors"
	"net/http"
	"strings"

	"monitor-hub/core/monitoring"
	"monitor-hub/core/notify"
	"monitor-hub/core/store"
	"monitor-hub/core/utils"
)

type AlertsHandler struct {
	rules         store.AlertRulesStore
	targets       store.TargetsStore
	notifications store.NotificationsStore
	engine        *monitoring.Engine
	logger        *utils.Logger
}

func NewAlertsHandler(rules store.AlertRulesStore, targets store.TargetsStore, notifications store.NotificationsStore, engine *monitoring.Engine, logger *utils.Logger) *AlertsHandler {
	return &AlertsHandler{rules: rules, targets: targets, notifications: notifications, engine: engine, logger: logger}
}

type alertRulePayload struct {
	Name           string                `json:"name"`
	TargetID       *int64                `json:"monitor_id"`
	Condition      string                `json:"condition"`
	ThresholdValue *float64              `json:"threshold_value"`
	Channels       []store.ChannelConfig `json:"notification_channels"`
	IsActive       *bool                 `json:"is_active"`
}

type triggerPayload struct {
	TargetID   int64  `json:"monitor_id"`
	IncidentID *int64 `json:"incident_id"`
	Condition  string `json:"condition"`
	Message    string `json:"message"`
}

func (h *AlertsHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	items, err := h.rules.ListAlertRules(r.Context(), currentUserID(r))
	if err != nil {
		h.logger.Errorf("list alert rules: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.AlertRule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AlertsHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var payload alertRulePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	userID := currentUserID(r)
	rule := &store.AlertRule{
		UserID:         userID,
		Name:           strings.TrimSpace(payload.Name),
		TargetID:       payload.TargetID,
		ThresholdValue: payload.ThresholdValue,
		Channels:       payload.Channels,
		IsActive:       true,
	}
	if payload.IsActive != nil {
		rule.IsActive = *payload.IsActive
	}
	if rule.Name == "" {
		http.Error(w, "alerts.error.nameRequired", http.StatusBadRequest)
		return
	}
	cond, err := monitoring.NormalizeCondition(payload.Condition)
	if err != nil {
		http.Error(w, "alerts.error.invalidCondition", http.StatusBadRequest)
		return
	}
	rule.Condition = cond
	if len(rule.Channels) == 0 {
		http.Error(w, "alerts.error.channelsRequired", http.StatusBadRequest)
		return
	}
	for _, ch := range rule.Channels {
		if strings.TrimSpace(ch.Kind) == "" {
			http.Error(w, "alerts.error.invalidChannel", http.StatusBadRequest)
			return
		}
	}
	if rule.TargetID != nil {
		t, err := h.targets.GetTarget(r.Context(), *rule.TargetID)
		if err != nil {
			h.logger.Errorf("alert rule target: %v", err)
			http.Error(w, errServerError, http.StatusInternalServerError)
			return
		}
		if t == nil || t.UserID != userID {
			http.Error(w, errNotFound, http.StatusNotFound)
			return
		}
	}
	if _, err := h.rules.CreateAlertRule(r.Context(), rule); err != nil {
		h.logger.Errorf("create alert rule: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// Trigger notifies every active rule of the monitor owner that matches the
// condition and reports the per-rule channel outcomes.
func (h *AlertsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var payload triggerPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		http.Error(w, errBadRequest, http.StatusBadRequest)
		return
	}
	if payload.TargetID <= 0 || strings.TrimSpace(payload.Condition) == "" || strings.TrimSpace(payload.Message) == "" {
		http.Error(w, "alerts.error.missingFields", http.StatusBadRequest)
		return
	}
	t, err := h.targets.GetTarget(r.Context(), payload.TargetID)
	if err != nil {
		h.logger.Errorf("alert trigger target: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if t == nil || t.UserID != currentUserID(r) {
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	}
	results, err := h.engine.DispatchAlert(r.Context(), payload.TargetID, payload.Condition, payload.Message, payload.IncidentID)
	switch {
	case errors.Is(err, monitoring.ErrInvalidCondition):
		http.Error(w, "alerts.error.invalidCondition", http.StatusBadRequest)
		return
	case errors.Is(err, monitoring.ErrTargetNotFound):
		http.Error(w, errNotFound, http.StatusNotFound)
		return
	case err != nil:
		h.logger.Errorf("alert trigger: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	resp := map[string]any{
		"success":         true,
		"processed_rules": len(results),
		"results":         results,
	}
	if len(results) == 0 {
		resp["results"] = []notify.RuleDispatchResult{}
		resp["message"] = "No matching alert rules found"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AlertsHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := h.notifications.ListNotifications(r.Context(), currentUserID(r), queryInt(r, "limit", 50))
	if err != nil {
		h.logger.Errorf("list notifications: %v", err)
		http.Error(w, errServerError, http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
