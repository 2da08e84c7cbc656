package monitoring

import (
	"context"
	"fmt"
	"strings"

	"monitor-hub/core/notify"
	"monitor-hub/core/store"
)

// Matcher selects the alert rules that apply to a target and condition.
type Matcher struct {
	rules store.AlertRulesStore
}

func NewMatcher(rules store.AlertRulesStore) *Matcher {
	return &Matcher{rules: rules}
}

// Match returns the active rules of the target owner for condition that are
// unscoped or scoped to the target.
func (m *Matcher) Match(ctx context.Context, t store.Target, condition string) ([]store.AlertRule, error) {
	if m == nil || m.rules == nil {
		return nil, nil
	}
	id := t.ID
	return m.rules.FindMatchingRules(ctx, t.UserID, &id, condition)
}

func NormalizeCondition(condition string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(condition))
	switch c {
	case store.ConditionDown, store.ConditionSlow, store.ConditionStatusCode:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCondition, condition)
}

// DispatchAlert notifies every matching rule of the target about condition
// and records one notification per channel attempt.
func (e *Engine) DispatchAlert(ctx context.Context, targetID int64, condition, message string, incidentID *int64) ([]notify.RuleDispatchResult, error) {
	cond, err := NormalizeCondition(condition)
	if err != nil {
		return nil, err
	}
	t, err := e.targets.GetTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTargetNotFound
	}
	return e.dispatchForTarget(ctx, *t, cond, message, incidentID)
}

func (e *Engine) dispatchForTarget(ctx context.Context, t store.Target, condition, message string, incidentID *int64) ([]notify.RuleDispatchResult, error) {
	rules, err := e.matcher.Match(ctx, t, condition)
	if err != nil {
		return nil, fmt.Errorf("match alert rules: %w", err)
	}
	if len(rules) == 0 {
		return []notify.RuleDispatchResult{}, nil
	}
	payload := notify.Payload{
		UserID:     t.UserID,
		TargetID:   t.ID,
		IncidentID: incidentID,
		Title:      "Alert: " + t.Name,
		Message:    message,
	}
	results := e.dispatcher.DispatchAll(ctx, rules, payload)
	e.recordDeliveries(ctx, payload, results)
	return results, nil
}

func (e *Engine) recordDeliveries(ctx context.Context, p notify.Payload, results []notify.RuleDispatchResult) {
	if e.notifications == nil {
		return
	}
	for _, rule := range results {
		if rule.Error != "" {
			e.logger.WithField("rule_id", rule.RuleID).Errorf("alert rule dispatch failed: %s", rule.Error)
		}
		for _, ch := range rule.Results {
			status := store.DeliverySent
			if !ch.Success {
				status = store.DeliveryFailed
			}
			rec := &store.NotificationRecord{
				UserID:     p.UserID,
				TargetID:   p.TargetID,
				IncidentID: p.IncidentID,
				Channel:    ch.Channel,
				Title:      p.Title,
				Message:    p.Message,
				Status:     status,
				MessageID:  ch.MessageID,
				Error:      ch.Error,
			}
			if _, err := e.notifications.AddNotification(ctx, rec); err != nil {
				e.logger.Errorf("monitoring notification log: %v", err)
			}
		}
	}
}
