package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"monitor-hub/config"
	"monitor-hub/core/store"
)

type monitorPayload struct {
	Name           string            `json:"name"`
	Kind           string            `json:"kind"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers"`
	Body           *string           `json:"body"`
	ExpectedStatus int               `json:"expected_status_code"`
	TimeoutSec     int               `json:"timeout_sec"`
	IntervalMin    int               `json:"interval_min"`
	IsActive       *bool             `json:"is_active"`
}

var validKinds = map[string]struct{}{
	store.KindWebsite:  {},
	store.KindAPI:      {},
	store.KindDatabase: {},
	store.KindWebhook:  {},
}

var validMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodHead:   {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

func payloadToTarget(p monitorPayload, defaults config.ChecksConfig, userID int64) (*store.Target, error) {
	t := &store.Target{
		UserID:         userID,
		Name:           strings.TrimSpace(p.Name),
		Kind:           strings.ToLower(strings.TrimSpace(p.Kind)),
		URL:            strings.TrimSpace(p.URL),
		Method:         strings.ToUpper(strings.TrimSpace(p.Method)),
		Headers:        p.Headers,
		Body:           p.Body,
		ExpectedStatus: p.ExpectedStatus,
		TimeoutSec:     p.TimeoutSec,
		IntervalMin:    p.IntervalMin,
		IsActive:       true,
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	applyTargetDefaults(t, defaults)
	if err := validateTarget(t); err != nil {
		return nil, err
	}
	return t, nil
}

func mergeTarget(existing *store.Target, p monitorPayload, defaults config.ChecksConfig) (*store.Target, error) {
	t := *existing
	if p.Name != "" {
		t.Name = strings.TrimSpace(p.Name)
	}
	if p.Kind != "" {
		t.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	}
	if p.URL != "" {
		t.URL = strings.TrimSpace(p.URL)
	}
	if p.Method != "" {
		t.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	}
	if p.Headers != nil {
		t.Headers = p.Headers
	}
	if p.Body != nil {
		t.Body = p.Body
	}
	if p.ExpectedStatus > 0 {
		t.ExpectedStatus = p.ExpectedStatus
	}
	if p.TimeoutSec > 0 {
		t.TimeoutSec = p.TimeoutSec
	}
	if p.IntervalMin > 0 {
		t.IntervalMin = p.IntervalMin
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	applyTargetDefaults(&t, defaults)
	if err := validateTarget(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

func applyTargetDefaults(t *store.Target, defaults config.ChecksConfig) {
	if t.Kind == "" {
		t.Kind = store.KindWebsite
	}
	if t.Method == "" {
		t.Method = http.MethodGet
	}
	if t.ExpectedStatus == 0 {
		t.ExpectedStatus = http.StatusOK
	}
	if t.TimeoutSec <= 0 {
		t.TimeoutSec = defaults.DefaultTimeoutSec
	}
	if t.IntervalMin <= 0 {
		t.IntervalMin = defaults.DefaultIntervalM
	}
}

func validateTarget(t *store.Target) error {
	if t.Name == "" {
		return errors.New("monitors.error.nameRequired")
	}
	if _, ok := validKinds[t.Kind]; !ok {
		return errors.New("monitors.error.invalidKind")
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("monitors.error.invalidUrl")
	}
	if t.Kind != store.KindDatabase {
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return errors.New("monitors.error.invalidUrl")
		}
	}
	if _, ok := validMethods[t.Method]; !ok {
		return errors.New("monitors.error.invalidMethod")
	}
	if t.ExpectedStatus < 100 || t.ExpectedStatus > 599 {
		return errors.New("monitors.error.invalidStatus")
	}
	if t.TimeoutSec < 0 || t.TimeoutSec > 300 {
		return errors.New("monitors.error.invalidTimeout")
	}
	if t.IntervalMin < 0 || t.IntervalMin > 1440 {
		return errors.New("monitors.error.invalidInterval")
	}
	for k := range t.Headers {
		if strings.TrimSpace(k) == "" || strings.ContainsAny(k, "\r\n:") {
			return errors.New("monitors.error.invalidHeaders")
		}
	}
	return nil
}
