package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type AlertRulesStore interface {
	CreateAlertRule(ctx context.Context, rule *AlertRule) (int64, error)
	ListAlertRules(ctx context.Context, userID int64) ([]AlertRule, error)
	FindMatchingRules(ctx context.Context, userID int64, targetID *int64, condition string) ([]AlertRule, error)
}

type alertRulesStore struct {
	db *DB
}

func NewAlertRulesStore(db *DB) AlertRulesStore {
	return &alertRulesStore{db: db}
}

const alertRuleColumns = `id, user_id, target_id, name, trigger_condition, threshold_value, channels_json, is_active, created_at`

func (s *alertRulesStore) CreateAlertRule(ctx context.Context, rule *AlertRule) (int64, error) {
	now := time.Now().UTC()
	channelsJSON, err := json.Marshal(normalizeChannels(rule.Channels))
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO alert_rules(user_id, target_id, name, trigger_condition, threshold_value, channels_json, is_active, created_at)
		VALUES(?,?,?,?,?,?,?,?)
		RETURNING id`,
		rule.UserID, nullableID(rule.TargetID), strings.TrimSpace(rule.Name), strings.ToLower(strings.TrimSpace(rule.Condition)),
		nullableFloat(rule.ThresholdValue), string(channelsJSON), boolToInt(rule.IsActive), now,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	rule.ID = id
	rule.CreatedAt = now
	return id, nil
}

func (s *alertRulesStore) ListAlertRules(ctx context.Context, userID int64) ([]AlertRule, error) {
	return s.list(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE user_id=? ORDER BY id`, userID)
}

// FindMatchingRules returns active rules of userID for condition that are
// either unscoped or scoped to targetID. A nil targetID matches unscoped rules only.
func (s *alertRulesStore) FindMatchingRules(ctx context.Context, userID int64, targetID *int64, condition string) ([]AlertRule, error) {
	cond := strings.ToLower(strings.TrimSpace(condition))
	if targetID == nil {
		return s.list(ctx, `
			SELECT `+alertRuleColumns+` FROM alert_rules
			WHERE user_id=? AND is_active=1 AND trigger_condition=? AND target_id IS NULL
			ORDER BY id`, userID, cond)
	}
	return s.list(ctx, `
		SELECT `+alertRuleColumns+` FROM alert_rules
		WHERE user_id=? AND is_active=1 AND trigger_condition=? AND (target_id IS NULL OR target_id=?)
		ORDER BY id`, userID, cond, *targetID)
}

func (s *alertRulesStore) list(ctx context.Context, query string, args ...any) ([]AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AlertRule
	for rows.Next() {
		var r AlertRule
		var targetID sql.NullInt64
		var threshold sql.NullFloat64
		var channelsRaw string
		var isActive int
		if err := rows.Scan(&r.ID, &r.UserID, &targetID, &r.Name, &r.Condition, &threshold, &channelsRaw, &isActive, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.TargetID = idPtr(targetID)
		if threshold.Valid {
			val := threshold.Float64
			r.ThresholdValue = &val
		}
		r.IsActive = isActive == 1
		if channelsRaw != "" {
			if err := json.Unmarshal([]byte(channelsRaw), &r.Channels); err != nil {
				return nil, fmt.Errorf("decode channels of alert rule %d: %w", r.ID, err)
			}
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func normalizeChannels(in []ChannelConfig) []ChannelConfig {
	out := make([]ChannelConfig, 0, len(in))
	for _, ch := range in {
		kind := strings.ToLower(strings.TrimSpace(ch.Kind))
		if kind == "" {
			continue
		}
		cfg := map[string]string{}
		for k, v := range ch.Config {
			cfg[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		out = append(out, ChannelConfig{Kind: kind, Config: cfg})
	}
	return out
}
