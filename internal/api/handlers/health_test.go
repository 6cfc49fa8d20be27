package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// staticChecker — ReadinessChecker с фиксированным ответом.
type staticChecker struct {
	status  string
	message string
}

func (c staticChecker) CheckReady() (string, string) {
	return c.status, c.message
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, хотели 200", rec.Code)
	}

	var resp probeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "identity-module" {
		t.Errorf("ответ = %+v", resp)
	}
	if resp.Checks != nil {
		t.Errorf("liveness не должен содержать checks: %+v", resp.Checks)
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		store      ReadinessChecker
		registry   ReadinessChecker
		wantStatus string
		wantCode   int
	}{
		{"всё ok", staticChecker{"ok", ""}, staticChecker{"ok", ""}, "ok", http.StatusOK},
		{"реестр degraded", staticChecker{"ok", ""}, staticChecker{"degraded", "статус 404"}, "degraded", http.StatusOK},
		{"хранилище fail", staticChecker{"fail", "нет соединения"}, staticChecker{"ok", ""}, "fail", http.StatusServiceUnavailable},
		{"не инициализирован", nil, staticChecker{"ok", ""}, "fail", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.registry)

			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("код = %d, хотели %d", rec.Code, tt.wantCode)
			}

			var resp probeResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("ошибка декодирования: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("статус = %q, хотели %q", resp.Status, tt.wantStatus)
			}
			for _, name := range []string{"store", "person_registry"} {
				if _, ok := resp.Checks[name]; !ok {
					t.Errorf("в checks нет %q", name)
				}
			}
		})
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		statuses []string
		want     string
	}{
		{[]string{"ok", "ok"}, "ok"},
		{[]string{"ok", "degraded"}, "degraded"},
		{[]string{"degraded", "fail"}, "fail"},
		{nil, "ok"},
		{[]string{"ok", "unknown"}, "fail"},
	}

	for _, tt := range tests {
		if got := overallStatus(tt.statuses...); got != tt.want {
			t.Errorf("overallStatus(%v) = %q, хотели %q", tt.statuses, got, tt.want)
		}
	}
}
