package monitoring

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"monitor-hub/core/store"
)

func intp(v int) *int { return &v }

func TestBuildChartBucketsByHour(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	checks := []store.ProbeResult{
		{Status: store.StatusUp, ResponseTimeMs: intp(100), StatusCode: intp(200), CheckedAt: now.Add(-150 * time.Minute)},
		{Status: store.StatusUp, ResponseTimeMs: intp(300), StatusCode: intp(204), CheckedAt: now.Add(-140 * time.Minute)},
		{Status: store.StatusDegraded, ResponseTimeMs: intp(50), StatusCode: intp(404), CheckedAt: now.Add(-10 * time.Minute)},
		{Status: store.StatusDown, StatusCode: intp(503), CheckedAt: now},
		{Status: store.StatusDown, CheckedAt: now.Add(-5 * time.Minute)},
	}
	chart := buildChart(checks, 3, now)
	if len(chart.ResponseTime) != 3 || chart.TotalChecks != 5 {
		t.Fatalf("unexpected chart: %+v", chart)
	}
	want := []ChartPoint{{Time: "09:00", Value: 200}, {Time: "10:00", Value: 0}, {Time: "11:00", Value: 17}}
	for i, p := range want {
		if chart.ResponseTime[i] != p {
			t.Fatalf("point %d: got %+v want %+v", i, chart.ResponseTime[i], p)
		}
	}
	if chart.StatusCodes["2XX"] != 2 || chart.StatusCodes["4XX"] != 1 || chart.StatusCodes["5XX"] != 1 {
		t.Fatalf("unexpected status classes: %+v", chart.StatusCodes)
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := map[time.Duration]string{
		30 * time.Second: "Just now",
		time.Minute:      "1 minute ago",
		5 * time.Minute:  "5 minutes ago",
		time.Hour:        "1 hour ago",
		49 * time.Hour:   "2 days ago",
	}
	for ago, want := range cases {
		if got := timeAgo(now, now.Add(-ago)); got != want {
			t.Fatalf("%s: got %q want %q", ago, got, want)
		}
	}
}

func TestRecentActivityAndChartData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	api := newSwitchServer(t, http.StatusOK)
	target := env.addTarget(t, 1, "shop", api.srv.URL)
	if _, err := env.engine.CheckOne(ctx, target.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	items, err := env.engine.RecentActivity(ctx, 1, 0)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(items) != 1 || items[0].Title != "shop - api" || items[0].Status != store.StatusUp || items[0].Time != "Just now" {
		t.Fatalf("unexpected activity: %+v", items)
	}
	if _, ok := env.cache.Get(ActivityKey(1, defaultActivity)); !ok {
		t.Fatalf("activity must be cached")
	}

	api.status.Store(http.StatusInternalServerError)
	if _, err := env.engine.CheckOne(ctx, target.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, ok := env.cache.Get(ActivityKey(1, defaultActivity)); ok {
		t.Fatalf("a new check must drop the owner's activity cache")
	}
	items, err = env.engine.RecentActivity(ctx, 1, 10)
	if err != nil || len(items) != 2 || items[0].Status != store.StatusDown {
		t.Fatalf("expected newest down first: %+v %v", items, err)
	}

	chart, err := env.engine.ChartData(ctx, 1, 1000)
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	if chart.Hours != maxChartHours || chart.TotalChecks != 2 || chart.StatusCodes["2XX"] != 1 || chart.StatusCodes["5XX"] != 1 {
		t.Fatalf("unexpected chart: hours=%d total=%d codes=%v", chart.Hours, chart.TotalChecks, chart.StatusCodes)
	}
	if _, ok := env.cache.Get(ChartKey(1, maxChartHours)); !ok {
		t.Fatalf("chart must be cached")
	}
}

func TestDeleteTargetDropsCachesAndState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	api := newSwitchServer(t, http.StatusServiceUnavailable)
	target := env.addTarget(t, 1, "legacy", api.srv.URL)
	if _, err := env.engine.CheckOne(ctx, target.ID); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := env.engine.Stats(ctx, 1); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if _, err := env.engine.ChartData(ctx, 1, 24); err != nil {
		t.Fatalf("chart: %v", err)
	}

	if err := env.engine.DeleteTarget(ctx, target); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := env.cache.Get(StatsKey(1)); ok {
		t.Fatalf("stats cache must be dropped")
	}
	if _, ok := env.cache.Get(ChartKey(1, 24)); ok {
		t.Fatalf("chart cache must be dropped")
	}
	st, err := env.engine.Stats(ctx, 1)
	if err != nil || st.TotalMonitors != 0 || st.ActiveIncidents != 0 {
		t.Fatalf("unexpected stats after delete: %+v %v", st, err)
	}
	if err := env.engine.DeleteTarget(ctx, target); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if env.engine.locks.size() != 0 {
		t.Fatalf("target lock must be released")
	}
}
