package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"monitor-hub/config"
	"monitor-hub/core/metrics"
	"monitor-hub/core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.UnixMilli(1700000000123).UTC() }

type captured struct {
	mu      sync.Mutex
	bodies  [][]byte
	headers []http.Header
}

func (c *captured) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, raw)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func incidentID(v int64) *int64 { return &v }

func TestWebhookSenderPostsPayload(t *testing.T) {
	var rec captured
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()

	s := NewWebhookSender(time.Second)
	s.now = fixedNow
	id, err := s.Send(context.Background(), Payload{TargetID: 7, IncidentID: incidentID(3), Title: "Alert: api", Message: "api is down"},
		map[string]string{ConfigWebhookURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "webhook_1700000000123", id)

	require.Len(t, rec.bodies, 1)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.bodies[0], &body))
	assert.Equal(t, "Alert: api", body["title"])
	assert.Equal(t, "api is down", body["message"])
	assert.EqualValues(t, 7, body["monitor_id"])
	assert.EqualValues(t, 3, body["incident_id"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, "Monitor-Hub/1.0", rec.headers[0].Get("User-Agent"))
	assert.Equal(t, "application/json", rec.headers[0].Get("Content-Type"))
}

func TestWebhookSenderNon2xxFails(t *testing.T) {
	var rec captured
	srv := httptest.NewServer(rec.handler(http.StatusBadGateway))
	defer srv.Close()

	id, err := NewWebhookSender(time.Second).Send(context.Background(), Payload{Title: "t"}, map[string]string{ConfigWebhookURL: srv.URL})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(id, "webhook_"))
}

func TestWebhookSenderRequiresURL(t *testing.T) {
	_, err := NewWebhookSender(time.Second).Send(context.Background(), Payload{}, nil)
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestSlackSenderColours(t *testing.T) {
	assert.Equal(t, "danger", slackColor("API is DOWN"))
	assert.Equal(t, "warning", slackColor("api degraded"))
	assert.Equal(t, "good", slackColor("Alert: api"))

	var rec captured
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()
	s := NewSlackSender(time.Second)
	s.now = fixedNow
	id, err := s.Send(context.Background(), Payload{Title: "api is down", Message: "503"}, map[string]string{ConfigSlackWebhook: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "slack_1700000000123", id)

	var msg slackMessage
	require.NoError(t, json.Unmarshal(rec.bodies[0], &msg))
	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "danger", att.Color)
	require.Len(t, att.Fields, 2)
	assert.Equal(t, "Monitor ID", att.Fields[0].Title)
	assert.Equal(t, "N/A", att.Fields[0].Value)
	assert.Equal(t, "Time", att.Fields[1].Title)
}

func TestEmailSenderWithoutSMTPSucceeds(t *testing.T) {
	s := NewEmailSender(config.SMTPConfig{}, nil)
	s.now = fixedNow
	id, err := s.Send(context.Background(), Payload{Title: "t", Message: "m"}, map[string]string{ConfigEmail: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "email_1700000000123", id)
}

func TestEmailSenderUsesSMTP(t *testing.T) {
	s := NewEmailSender(config.SMTPConfig{Host: "smtp.example.com", Port: 25, From: "alerts@example.com"}, nil)
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		return nil
	}
	_, err := s.Send(context.Background(), Payload{Title: "Alert:\r\napi", Message: "down"}, map[string]string{ConfigEmail: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:25", gotAddr)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Alert:  api\r\n")
}

func TestSMSSenderGateway(t *testing.T) {
	var rec captured
	srv := httptest.NewServer(rec.handler(http.StatusAccepted))
	defer srv.Close()
	s := NewSMSSender(config.SMSConfig{GatewayURL: srv.URL, APIKey: "k"}, time.Second, nil)
	s.now = fixedNow
	id, err := s.Send(context.Background(), Payload{Title: "Alert: api", Message: "down"}, map[string]string{ConfigPhoneNumber: "+100"})
	require.NoError(t, err)
	assert.Equal(t, "sms_1700000000123", id)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.bodies[0], &body))
	assert.Equal(t, "Alert: api: down", body["message"])
	assert.Equal(t, "+100", body["to"])
	assert.Equal(t, "Bearer k", rec.headers[0].Get("Authorization"))
}

func TestDispatchIsolatesFailingChannel(t *testing.T) {
	collector := metrics.NewCollector(0)
	d := NewDispatcher(nil, collector)
	d.Register("webhook", SenderFunc(func(context.Context, Payload, map[string]string) (string, error) {
		return "webhook_1", nil
	}))
	d.Register("email", SenderFunc(func(context.Context, Payload, map[string]string) (string, error) {
		return "", errors.New("smtp down")
	}))
	d.Register("slack", SenderFunc(func(context.Context, Payload, map[string]string) (string, error) {
		panic("boom")
	}))
	rule := store.AlertRule{ID: 4, Name: "ops", Channels: []store.ChannelConfig{
		{Kind: "email"}, {Kind: "webhook"}, {Kind: "pager"}, {Kind: "slack"},
	}}

	res := d.Dispatch(context.Background(), rule, Payload{Title: "t"})
	assert.EqualValues(t, 4, res.RuleID)
	require.Len(t, res.Results, 4)
	assert.Equal(t, ChannelResult{Channel: "email", Error: "smtp down"}, res.Results[0])
	assert.Equal(t, ChannelResult{Channel: "webhook", Success: true, MessageID: "webhook_1"}, res.Results[1])
	assert.Equal(t, ChannelResult{Channel: "pager", Error: "Unknown notification type"}, res.Results[2])
	assert.False(t, res.Results[3].Success)
	assert.Equal(t, "boom", res.Results[3].Error)

	assert.Equal(t, 1.0, collector.Counter("notifications_total", metrics.Tags{"channel": "webhook", "status": "sent"}))
	assert.Equal(t, 1.0, collector.Counter("notifications_total", metrics.Tags{"channel": "email", "status": "failed"}))
}

func TestDispatchAllKeepsRuleOrder(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Register("webhook", SenderFunc(func(_ context.Context, _ Payload, cfg map[string]string) (string, error) {
		if cfg["fail"] == "1" {
			return "", errors.New("nope")
		}
		return "ok", nil
	}))
	rules := []store.AlertRule{
		{ID: 1, Name: "a", Channels: []store.ChannelConfig{{Kind: "webhook", Config: map[string]string{"fail": "1"}}}},
		{ID: 2, Name: "b", Channels: []store.ChannelConfig{{Kind: "webhook"}}},
	}
	out := d.DispatchAll(context.Background(), rules, Payload{})
	require.Len(t, out, 2)
	assert.EqualValues(t, 1, out[0].RuleID)
	assert.False(t, out[0].Results[0].Success)
	assert.EqualValues(t, 2, out[1].RuleID)
	assert.True(t, out[1].Results[0].Success)
}

func TestDispatchAllCancelledContext(t *testing.T) {
	d := NewDispatcher(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := d.DispatchAll(ctx, []store.AlertRule{{ID: 9, Name: "x"}}, Payload{})
	require.Len(t, out, 1)
	assert.Equal(t, context.Canceled.Error(), out[0].Error)
}
