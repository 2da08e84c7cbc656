package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/store"
)

const (
	msgPaused      = "Monitor is paused"
	msgDNS         = "DNS resolution failed"
	msgRefused     = "Connection refused"
	msgSlow        = "Slow response time detected"
	maxBodyDrained = 1 << 20
)

// nativeProbe connects to a database-like endpoint and pings it.
type nativeProbe func(ctx context.Context, rawURL string, timeout time.Duration) error

// Prober runs a single health check against a target. It never returns an
// error: every failure is folded into the ProbeResult.
type Prober struct {
	client         *http.Client
	userAgent      string
	slowThreshold  time.Duration
	defaultTimeout time.Duration
	native         map[string]nativeProbe
	now            func() time.Time
}

func NewProber(cfg config.ChecksConfig) *Prober {
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "Monitor-Hub/1.0"
	}
	timeout := time.Duration(cfg.DefaultTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Prober{
		client:         &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		userAgent:      ua,
		slowThreshold:  cfg.SlowThreshold(),
		defaultTimeout: timeout,
		native:         defaultNativeProbes(),
		now:            time.Now,
	}
}

func (p *Prober) timeoutFor(t store.Target) (time.Duration, int) {
	if t.TimeoutSec > 0 {
		return time.Duration(t.TimeoutSec) * time.Second, t.TimeoutSec
	}
	return p.defaultTimeout, int(p.defaultTimeout / time.Second)
}

func (p *Prober) Probe(ctx context.Context, t store.Target) store.ProbeResult {
	if !t.IsActive {
		return p.result(t, store.StatusDown, nil, nil, msgPaused)
	}
	timeout, seconds := p.timeoutFor(t)
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if t.Kind == store.KindDatabase {
		if probe, ok := p.native[urlScheme(t.URL)]; ok {
			return p.probeNative(probeCtx, t, probe, timeout, seconds)
		}
	}
	return p.probeHTTP(probeCtx, t, seconds)
}

func (p *Prober) probeNative(ctx context.Context, t store.Target, probe nativeProbe, timeout time.Duration, seconds int) store.ProbeResult {
	start := p.now()
	err := probe(ctx, t.URL, timeout)
	elapsed := msSince(p.now, start)
	if err != nil {
		return p.result(t, store.StatusDown, &elapsed, nil, classifyError(ctx, err, seconds))
	}
	if p.isSlow(elapsed) {
		return p.result(t, store.StatusDegraded, &elapsed, nil, msgSlow)
	}
	return p.result(t, store.StatusUp, &elapsed, nil, "")
}

func (p *Prober) probeHTTP(ctx context.Context, t store.Target, seconds int) store.ProbeResult {
	req, err := p.buildRequest(ctx, t)
	if err != nil {
		return p.result(t, store.StatusDown, nil, nil, err.Error())
	}
	start := p.now()
	resp, err := p.client.Do(req)
	elapsed := msSince(p.now, start)
	if err != nil {
		return p.result(t, store.StatusDown, &elapsed, nil, classifyError(ctx, err, seconds))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrained))
	_ = resp.Body.Close()

	code := resp.StatusCode
	expected := t.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if code != expected {
		status := store.StatusDegraded
		if code >= 500 {
			status = store.StatusDown
		}
		return p.result(t, status, &elapsed, &code, fmt.Sprintf("Expected status %d, got %d", expected, code))
	}
	if p.isSlow(elapsed) {
		return p.result(t, store.StatusDegraded, &elapsed, &code, msgSlow)
	}
	return p.result(t, store.StatusUp, &elapsed, &code, "")
}

func (p *Prober) buildRequest(ctx context.Context, t store.Target) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(t.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers := make(map[string]string, len(t.Headers)+1)
	for k, v := range t.Headers {
		headers[k] = v
	}
	var body io.Reader
	if t.Kind == store.KindWebhook {
		method = http.MethodPost
		raw, _ := json.Marshal(map[string]any{"test": true, "timestamp": p.now().UTC().Format(time.RFC3339)})
		body = strings.NewReader(string(raw))
		setHeader(headers, "Content-Type", "application/json")
	} else if t.Body != nil && *t.Body != "" && methodHasBody(method) {
		body = strings.NewReader(*t.Body)
		if !hasHeader(headers, "Content-Type") {
			headers["Content-Type"] = "application/json"
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, t.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (p *Prober) isSlow(elapsedMs int) bool {
	return p.slowThreshold > 0 && time.Duration(elapsedMs)*time.Millisecond > p.slowThreshold
}

func (p *Prober) result(t store.Target, status string, elapsed, code *int, msg string) store.ProbeResult {
	res := store.ProbeResult{
		TargetID:       t.ID,
		Status:         status,
		ResponseTimeMs: elapsed,
		StatusCode:     code,
		CheckedAt:      p.now().UTC(),
	}
	if msg != "" {
		res.Error = &msg
	}
	return res
}

// classifyError maps transport failures to the user-facing messages, in
// order: deadline, DNS, refused, anything else.
func classifyError(ctx context.Context, err error, timeoutSec int) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("Request timeout after %ds", timeoutSec)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return msgDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return msgRefused
	}
	return err.Error()
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func setHeader(headers map[string]string, name, value string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
	headers[name] = value
}

func urlScheme(raw string) string {
	idx := strings.Index(raw, "://")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(raw[:idx])
}

func msSince(now func() time.Time, start time.Time) int {
	return int(now().Sub(start).Milliseconds())
}
