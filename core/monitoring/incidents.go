package monitoring

import (
	"context"
	"errors"

	"monitor-hub/core/store"
)

const (
	defaultIncidentDescription = "Monitor check failed"
	severityHigh               = "high"
)

// applyTransition opens an incident on down and resolves the open one on
// any other status. Callers hold the target lock.
func (e *Engine) applyTransition(ctx context.Context, t store.Target, res store.ProbeResult) {
	if res.Status == store.StatusDown {
		e.openIncident(ctx, t, res)
		return
	}
	e.resolveIncident(ctx, t)
}

func (e *Engine) openIncident(ctx context.Context, t store.Target, res store.ProbeResult) {
	open, err := e.incidents.FindOpenIncident(ctx, t.ID)
	if err != nil {
		e.logger.WithField("monitor_id", t.ID).Errorf("monitoring find open incident: %v", err)
		return
	}
	if open != nil {
		return
	}
	desc := res.ErrorText()
	if desc == "" {
		desc = defaultIncidentDescription
	}
	inc := &store.Incident{
		TargetID:    t.ID,
		Title:       t.Name + " is down",
		Description: desc,
		Status:      store.IncidentOpen,
		Severity:    severityHigh,
		OpenedAt:    res.CheckedAt,
	}
	id, err := e.incidents.CreateIncident(ctx, inc)
	if errors.Is(err, store.ErrConflict) {
		return
	}
	if err != nil {
		e.logger.WithField("monitor_id", t.ID).Errorf("monitoring create incident: %v", err)
		return
	}
	e.metrics.IncCounter("incidents_opened_total", 1, nil)
	e.logger.WithFields(map[string]any{"monitor_id": t.ID, "incident_id": id}).Warnf("incident opened: %s", inc.Title)
	if _, err := e.dispatchForTarget(ctx, t, store.ConditionDown, desc, &id); err != nil {
		e.logger.WithField("monitor_id", t.ID).Errorf("monitoring down alert: %v", err)
	}
}

func (e *Engine) resolveIncident(ctx context.Context, t store.Target) {
	open, err := e.incidents.FindOpenIncident(ctx, t.ID)
	if err != nil {
		e.logger.WithField("monitor_id", t.ID).Errorf("monitoring find open incident: %v", err)
		return
	}
	if open == nil {
		return
	}
	resolvedAt := e.now().UTC()
	if resolvedAt.Before(open.OpenedAt) {
		resolvedAt = open.OpenedAt
	}
	if err := e.incidents.ResolveIncident(ctx, open.ID, resolvedAt); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			e.logger.WithField("incident_id", open.ID).Errorf("monitoring resolve incident: %v", err)
		}
		return
	}
	e.metrics.IncCounter("incidents_resolved_total", 1, nil)
	e.logger.WithFields(map[string]any{"monitor_id": t.ID, "incident_id": open.ID}).Printf("incident resolved: %s", open.Title)
}
