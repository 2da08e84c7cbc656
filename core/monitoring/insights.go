package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"monitor-hub/core/store"
)

const (
	chartKeyPrefix    = "monitor:chart:"
	activityKeyPrefix = "monitor:activity:"

	maxChartHours     = 168
	defaultChartHours = 24
	defaultActivity   = 10
	maxActivity       = 100
)

type ChartPoint struct {
	Time  string `json:"time"`
	Value int    `json:"value"`
}

// ChartData holds hourly average response times and status class counts.
type ChartData struct {
	Hours        int            `json:"hours"`
	ResponseTime []ChartPoint   `json:"responseTime"`
	StatusCodes  map[string]int `json:"statusCodes"`
	TotalChecks  int            `json:"totalChecks"`
}

type ActivityItem struct {
	ID           int64     `json:"id"`
	MonitorID    int64     `json:"monitor_id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	Time         string    `json:"time"`
	Message      string    `json:"message"`
	ResponseTime *int      `json:"responseTime,omitempty"`
	CheckedAt    time.Time `json:"checkedAt"`
}

func ChartKey(userID int64, hours int) string {
	return fmt.Sprintf("%s%d:%dh", chartKeyPrefix, userID, hours)
}

func ActivityKey(userID int64, limit int) string {
	return fmt.Sprintf("%s%d:%d", activityKeyPrefix, userID, limit)
}

// ChartData buckets the user's checks of the last hours into hourly windows
// ending now. The last point covers the most recent hour.
func (e *Engine) ChartData(ctx context.Context, userID int64, hours int) (ChartData, error) {
	if hours <= 0 {
		hours = defaultChartHours
	}
	if hours > maxChartHours {
		hours = maxChartHours
	}
	return cached(ctx, e.cache, ChartKey(userID, hours), func(ctx context.Context) (ChartData, error) {
		now := e.now().UTC()
		checks, err := e.checks.ChecksSince(ctx, userID, now.Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			return ChartData{}, fmt.Errorf("chart checks: %w", err)
		}
		return buildChart(checks, hours, now), nil
	})
}

func buildChart(checks []store.ProbeResult, hours int, now time.Time) ChartData {
	out := ChartData{
		Hours:        hours,
		ResponseTime: make([]ChartPoint, hours),
		StatusCodes:  map[string]int{"2XX": 0, "4XX": 0, "5XX": 0},
		TotalChecks:  len(checks),
	}
	sums := make([]int, hours)
	counts := make([]int, hours)
	start := now.Add(-time.Duration(hours) * time.Hour)
	for _, c := range checks {
		if c.StatusCode != nil {
			switch code := *c.StatusCode; {
			case code >= 200 && code < 300:
				out.StatusCodes["2XX"]++
			case code >= 400 && code < 500:
				out.StatusCodes["4XX"]++
			case code >= 500:
				out.StatusCodes["5XX"]++
			}
		}
		if c.CheckedAt.Before(start) || c.CheckedAt.After(now) {
			continue
		}
		idx := int(c.CheckedAt.Sub(start) / time.Hour)
		if idx >= hours {
			idx = hours - 1
		}
		counts[idx]++
		if c.ResponseTimeMs != nil {
			sums[idx] += *c.ResponseTimeMs
		}
	}
	for i := range out.ResponseTime {
		bucketStart := start.Add(time.Duration(i) * time.Hour)
		p := ChartPoint{Time: fmt.Sprintf("%02d:00", bucketStart.Hour())}
		if counts[i] > 0 {
			p.Value = int(math.Round(float64(sums[i]) / float64(counts[i])))
		}
		out.ResponseTime[i] = p
	}
	return out
}

// RecentActivity lists the latest checks across the user's targets, newest first.
func (e *Engine) RecentActivity(ctx context.Context, userID int64, limit int) ([]ActivityItem, error) {
	if limit <= 0 {
		limit = defaultActivity
	}
	if limit > maxActivity {
		limit = maxActivity
	}
	rows, err := cached(ctx, e.cache, ActivityKey(userID, limit), func(ctx context.Context) ([]store.ActivityCheck, error) {
		res, err := e.checks.RecentActivity(ctx, userID, limit)
		if err != nil {
			return nil, fmt.Errorf("recent activity: %w", err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	items := make([]ActivityItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, ActivityItem{
			ID:           r.ID,
			MonitorID:    r.TargetID,
			Title:        r.TargetName + " - " + r.TargetKind,
			Status:       r.Status,
			Time:         timeAgo(now, r.CheckedAt),
			Message:      activityMessage(r.ProbeResult),
			ResponseTime: r.ResponseTimeMs,
			CheckedAt:    r.CheckedAt,
		})
	}
	return items, nil
}

func activityMessage(r store.ProbeResult) string {
	if r.Status == store.StatusUp {
		if r.ResponseTimeMs == nil {
			return "Response time: 0ms"
		}
		return fmt.Sprintf("Response time: %dms", *r.ResponseTimeMs)
	}
	if msg := r.ErrorText(); msg != "" {
		return msg
	}
	return "Check failed"
}

func timeAgo(now, at time.Time) string {
	minutes := int(now.Sub(at) / time.Minute)
	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return plural(minutes, "minute") + " ago"
	case minutes < 24*60:
		return plural(minutes/60, "hour") + " ago"
	default:
		return plural(minutes/(24*60), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// DeleteTarget removes a target while holding its lock so no check of it is
// applied halfway through. Cached read models for the owner are dropped.
func (e *Engine) DeleteTarget(ctx context.Context, t store.Target) error {
	unlock := e.locks.Lock(t.ID)
	defer unlock()
	if err := e.targets.DeleteTarget(ctx, t.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTargetNotFound
		}
		return fmt.Errorf("delete target %d: %w", t.ID, err)
	}
	e.invalidateTarget(t)
	if e.cache != nil {
		e.cache.Delete(StatsKey(t.UserID))
		e.cache.DeletePrefix(fmt.Sprintf("%s%d:", chartKeyPrefix, t.UserID))
	}
	e.logger.WithField("monitor_id", t.ID).Printf("monitor deleted: %s", t.Name)
	return nil
}
