package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/auth"
	"monitor-hub/core/cache"
	"monitor-hub/core/metrics"
	"monitor-hub/core/monitoring"
	"monitor-hub/core/notify"
	"monitor-hub/core/ratelimit"
	"monitor-hub/core/store"
)

type apiEnv struct {
	srv     *Server
	keys    *auth.KeyService
	targets store.TargetsStore
	db      *store.DB
}

func newAPIEnv(t *testing.T, authEnabled bool) *apiEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:  "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "api.db"),
		RateLimit: config.RateLimitConfig{Enabled: true, Limit: 1000, Window: time.Minute},
		Checks:    config.ChecksConfig{MaxConcurrent: 4, DefaultTimeoutSec: 5, DefaultIntervalM: 5, SlowThresholdMs: 5000, UserAgent: "Monitor-Hub/1.0"},
		Security:  config.SecurityConfig{AuthEnabled: authEnabled},
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	collector := metrics.NewCollector(0)
	c := cache.New[any](cache.Options{})
	targets := store.NewTargetsStore(db)
	incidents := store.NewIncidentsStore(db)
	rules := store.NewAlertRulesStore(db)
	notifications := store.NewNotificationsStore(db)
	engine := monitoring.NewEngine(cfg.Checks, monitoring.Deps{
		Targets:       targets,
		Checks:        store.NewChecksStore(db),
		Incidents:     incidents,
		Rules:         rules,
		Notifications: notifications,
		Dispatcher:    notify.NewDefaultDispatcher(config.NotifyConfig{HTTPTimeout: 2 * time.Second}, nil, collector),
		Metrics:       collector,
		Cache:         c,
	})
	keys := auth.NewKeyService(store.NewAPIKeysStore(db), nil)
	authz, err := auth.NewAuthorizer()
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	srv := NewServer(cfg, Deps{
		DB:            db,
		Targets:       targets,
		Incidents:     incidents,
		Rules:         rules,
		Notifications: notifications,
		Engine:        engine,
		Metrics:       collector,
		Cache:         c,
		Limiter:       ratelimit.New(),
		Keys:          keys,
		Authorizer:    authz,
	})
	return &apiEnv{srv: srv, keys: keys, targets: targets, db: db}
}

func (env *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t, true)
	rr := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	decodeBody(t, rr, &body)
	if body.Status != "healthy" || body.Checks["database"]["status"] != "healthy" {
		t.Fatalf("unexpected health: %s", rr.Body.String())
	}

	_ = env.db.Close()
	rr = env.do(t, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after db close, got %d", rr.Code)
	}
}

func TestMonitorLifecycleAndAlertTrigger(t *testing.T) {
	env := newAPIEnv(t, false)
	var hookHits atomic.Int64
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hookHits.Add(1)
	}))
	defer hook.Close()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	rr := env.do(t, http.MethodPost, "/api/monitors", "", map[string]any{"name": "shop", "kind": "api", "url": upstream.URL})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create monitor: %d %s", rr.Code, rr.Body.String())
	}
	var created store.Target
	decodeBody(t, rr, &created)
	if created.ID == 0 || created.TimeoutSec != 5 || created.IntervalMin != 5 || created.ExpectedStatus != 200 {
		t.Fatalf("unexpected defaults: %+v", created)
	}

	rr = env.do(t, http.MethodPost, "/api/monitors", "", map[string]any{"name": "bad", "url": "ftp://x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad url, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/alert-rules", "", map[string]any{
		"name":                  "hook",
		"condition":             "down",
		"notification_channels": []map[string]any{{"type": "webhook", "config": map[string]string{"webhookUrl": hook.URL}}},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create rule: %d %s", rr.Code, rr.Body.String())
	}

	path := "/api/monitors/" + itoa(created.ID)
	rr = env.do(t, http.MethodPost, path+"/check", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rr.Code, rr.Body.String())
	}
	var res store.ProbeResult
	decodeBody(t, rr, &res)
	if res.Status != store.StatusDown {
		t.Fatalf("expected down, got %+v", res)
	}
	if hookHits.Load() != 1 {
		t.Fatalf("expected down alert on incident open, got %d", hookHits.Load())
	}

	rr = env.do(t, http.MethodGet, "/api/incidents?status=open", "", nil)
	var incidents struct {
		Items []store.Incident `json:"items"`
	}
	decodeBody(t, rr, &incidents)
	if len(incidents.Items) != 1 || incidents.Items[0].TargetID != created.ID {
		t.Fatalf("expected 1 open incident, got %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, path+"/checks?hours=1", "", nil)
	var checks struct {
		Checks []store.ProbeResult `json:"checks"`
	}
	decodeBody(t, rr, &checks)
	if len(checks.Checks) != 1 {
		t.Fatalf("expected 1 check, got %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/alerts/trigger", "", map[string]any{"monitor_id": created.ID, "condition": "down", "message": "manual"})
	if rr.Code != http.StatusOK {
		t.Fatalf("trigger: %d %s", rr.Code, rr.Body.String())
	}
	var trig struct {
		Success        bool                        `json:"success"`
		ProcessedRules int                         `json:"processed_rules"`
		Results        []notify.RuleDispatchResult `json:"results"`
	}
	decodeBody(t, rr, &trig)
	if !trig.Success || trig.ProcessedRules != 1 || len(trig.Results) != 1 || !trig.Results[0].Results[0].Success {
		t.Fatalf("unexpected trigger response: %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/notifications", "", nil)
	var notes struct {
		Items []store.NotificationRecord `json:"items"`
	}
	decodeBody(t, rr, &notes)
	if len(notes.Items) != 2 {
		t.Fatalf("expected 2 notification records, got %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/stats", "", nil)
	var st monitoring.UserStats
	decodeBody(t, rr, &st)
	if st.TotalMonitors != 1 || st.ActiveIncidents != 1 || st.UptimePercentage != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestAlertTriggerValidation(t *testing.T) {
	env := newAPIEnv(t, false)
	cases := []struct {
		body map[string]any
		want int
	}{
		{map[string]any{"condition": "down", "message": "x"}, http.StatusBadRequest},
		{map[string]any{"monitor_id": 1, "message": "x"}, http.StatusBadRequest},
		{map[string]any{"monitor_id": 1, "condition": "down"}, http.StatusBadRequest},
		{map[string]any{"monitor_id": 999, "condition": "down", "message": "x"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := env.do(t, http.MethodPost, "/api/alerts/trigger", "", tc.body)
		if rr.Code != tc.want {
			t.Fatalf("body %v: expected %d, got %d", tc.body, tc.want, rr.Code)
		}
	}

	target := store.Target{UserID: auth.DefaultUser, Name: "api", URL: "http://127.0.0.1:1", IsActive: true}
	if _, err := env.targets.CreateTarget(context.Background(), &target); err != nil {
		t.Fatalf("create: %v", err)
	}
	rr := env.do(t, http.MethodPost, "/api/alerts/trigger", "", map[string]any{"monitor_id": target.ID, "condition": "meltdown", "message": "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid condition, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/alerts/trigger", "", map[string]any{"monitor_id": target.ID, "condition": "slow", "message": "x"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "\"processed_rules\":0") {
		t.Fatalf("expected empty success, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAPIKeyRolesAndOwnership(t *testing.T) {
	env := newAPIEnv(t, true)
	ctx := context.Background()
	adminToken, _, err := env.keys.Create(ctx, 1, "admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("admin key: %v", err)
	}
	viewerToken, _, err := env.keys.Create(ctx, 1, "viewer", auth.RoleViewer)
	if err != nil {
		t.Fatalf("viewer key: %v", err)
	}
	otherToken, _, err := env.keys.Create(ctx, 2, "other", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("other key: %v", err)
	}

	if rr := env.do(t, http.MethodGet, "/api/monitors", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/monitors", "mh_deadbeef_nope", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad key, got %d", rr.Code)
	}
	body := map[string]any{"name": "site", "url": "https://example.invalid"}
	if rr := env.do(t, http.MethodPost, "/api/monitors", viewerToken, body); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer must not create monitors, got %d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/api/monitors", adminToken, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin create: %d %s", rr.Code, rr.Body.String())
	}
	var created store.Target
	decodeBody(t, rr, &created)

	if rr := env.do(t, http.MethodGet, "/api/monitors/"+itoa(created.ID), viewerToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("viewer read: %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/monitors/"+itoa(created.ID), otherToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign monitor must be hidden, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/sweep", viewerToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer must not sweep, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/metrics", viewerToken, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: %d %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateMonitor(t *testing.T) {
	env := newAPIEnv(t, false)
	rr := env.do(t, http.MethodPost, "/api/monitors", "", map[string]any{"name": "site", "url": "https://example.invalid"})
	var created store.Target
	decodeBody(t, rr, &created)
	rr = env.do(t, http.MethodPut, "/api/monitors/"+itoa(created.ID), "", map[string]any{"name": "renamed", "is_active": false})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}
	got, err := env.targets.GetTarget(context.Background(), created.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "renamed" || got.IsActive || got.URL != "https://example.invalid" {
		t.Fatalf("unexpected update: %+v", got)
	}
}

func TestChartDataRecentActivityAndDelete(t *testing.T) {
	env := newAPIEnv(t, true)
	ctx := context.Background()
	adminToken, _, err := env.keys.Create(ctx, 1, "admin", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("admin key: %v", err)
	}
	viewerToken, _, err := env.keys.Create(ctx, 1, "viewer", auth.RoleViewer)
	if err != nil {
		t.Fatalf("viewer key: %v", err)
	}
	otherToken, _, err := env.keys.Create(ctx, 2, "other", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("other key: %v", err)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	rr := env.do(t, http.MethodPost, "/api/monitors", adminToken, map[string]any{"name": "shop", "kind": "api", "url": upstream.URL})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var created store.Target
	decodeBody(t, rr, &created)
	path := "/api/monitors/" + itoa(created.ID)
	if rr := env.do(t, http.MethodPost, path+"/check", adminToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("check: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/monitors/chart-data?hours=6", viewerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("chart data: %d %s", rr.Code, rr.Body.String())
	}
	var chart struct {
		Hours        int              `json:"hours"`
		ResponseTime []map[string]any `json:"responseTime"`
		StatusCodes  map[string]int   `json:"statusCodes"`
	}
	decodeBody(t, rr, &chart)
	if chart.Hours != 6 || len(chart.ResponseTime) != 6 || chart.StatusCodes["2XX"] != 1 {
		t.Fatalf("unexpected chart: %s", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/monitors/recent-activity?limit=5", viewerToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("recent activity: %d %s", rr.Code, rr.Body.String())
	}
	var activity struct {
		Activity []struct {
			MonitorID int64  `json:"monitor_id"`
			Title     string `json:"title"`
			Status    string `json:"status"`
		} `json:"activity"`
	}
	decodeBody(t, rr, &activity)
	if len(activity.Activity) != 1 || activity.Activity[0].Title != "shop - api" || activity.Activity[0].MonitorID != created.ID {
		t.Fatalf("unexpected activity: %s", rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/monitors/recent-activity", otherToken, nil)
	decodeBody(t, rr, &activity)
	if len(activity.Activity) != 0 {
		t.Fatalf("activity of other users must stay hidden: %s", rr.Body.String())
	}

	if rr := env.do(t, http.MethodDelete, path, viewerToken, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("viewer must not delete, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, path, otherToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign delete must be hidden, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, path, adminToken, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Monitor deleted successfully") {
		t.Fatalf("delete: %d %s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodGet, path, adminToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("deleted monitor must be gone, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, path, adminToken, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete must be 404, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/monitors/recent-activity?limit=5", adminToken, nil)
	decodeBody(t, rr, &activity)
	if len(activity.Activity) != 0 {
		t.Fatalf("activity must drop the deleted monitor: %s", rr.Body.String())
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
