package monitoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"monitor-hub/core/cache"
	"monitor-hub/core/store"
)

const (
	statsKeyPrefix  = "monitor:stats:"
	checksKeyPrefix = "monitor:checks:"
)

type UserStats struct {
	TotalMonitors    int     `json:"totalMonitors"`
	ActiveMonitors   int     `json:"activeMonitors"`
	UptimePercentage float64 `json:"uptimePercentage"`
	AvgResponseTime  int     `json:"avgResponseTime"`
	ActiveIncidents  int     `json:"activeIncidents"`
}

func StatsKey(userID int64) string {
	return fmt.Sprintf("%s%d", statsKeyPrefix, userID)
}

func ChecksKey(targetID int64, hours, limit int) string {
	return fmt.Sprintf("%s%d:%dh:%d", checksKeyPrefix, targetID, hours, limit)
}

func cached[T any](ctx context.Context, c *cache.Cache[any], key string, fn func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return fn(ctx)
	}
	v, err := c.GetOrCompute(ctx, key, 0, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		c.Delete(key)
		return fn(ctx)
	}
	return typed, nil
}

// invalidateTarget drops the cached read models that a new check of t makes stale.
func (e *Engine) invalidateTarget(t store.Target) {
	if e.cache == nil {
		return
	}
	e.cache.DeletePrefix(fmt.Sprintf("%s%d:", checksKeyPrefix, t.ID))
	e.cache.DeletePrefix(fmt.Sprintf("%s%d:", activityKeyPrefix, t.UserID))
}

// Stats summarises a user's targets: uptime over 24h, average response
// time over the last hour and open incidents.
func (e *Engine) Stats(ctx context.Context, userID int64) (UserStats, error) {
	return cached(ctx, e.cache, StatsKey(userID), func(ctx context.Context) (UserStats, error) {
		return e.computeStats(ctx, userID)
	})
}

func (e *Engine) computeStats(ctx context.Context, userID int64) (UserStats, error) {
	var st UserStats
	targets, err := e.targets.ListTargets(ctx, userID)
	if err != nil {
		return st, fmt.Errorf("list targets: %w", err)
	}
	st.TotalMonitors = len(targets)
	for _, t := range targets {
		if t.IsActive {
			st.ActiveMonitors++
		}
	}
	now := e.now().UTC()
	up, total, _, err := e.checks.ChecksSummary(ctx, userID, now.Add(-24*time.Hour))
	if err != nil {
		return st, fmt.Errorf("checks summary: %w", err)
	}
	st.UptimePercentage = 100.0
	if total > 0 {
		st.UptimePercentage = math.Round(float64(up)/float64(total)*1000) / 10
	}
	_, _, avg, err := e.checks.ChecksSummary(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		return st, fmt.Errorf("checks summary: %w", err)
	}
	st.AvgResponseTime = int(math.Round(avg))
	st.ActiveIncidents, err = e.incidents.CountOpenIncidents(ctx, userID)
	if err != nil {
		return st, fmt.Errorf("count incidents: %w", err)
	}
	return st, nil
}

// RecentChecks returns the checks of a target within the last hours, newest first.
func (e *Engine) RecentChecks(ctx context.Context, targetID int64, hours, limit int) ([]store.ProbeResult, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return cached(ctx, e.cache, ChecksKey(targetID, hours, limit), func(ctx context.Context) ([]store.ProbeResult, error) {
		res, err := e.checks.RecentChecks(ctx, targetID, e.now().UTC().Add(-time.Duration(hours)*time.Hour), limit)
		if err != nil {
			return nil, err
		}
		if res == nil {
			res = []store.ProbeResult{}
		}
		return res, nil
	})
}
