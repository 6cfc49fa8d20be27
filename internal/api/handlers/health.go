// Пакет handlers — операционные endpoints Identity Module: liveness,
// readiness по зависимостям (хранилище, реестр персон) и /metrics.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/identity-module/internal/config"
)

const serviceName = "identity-module"

// Статусы проверок в порядке возрастания тяжести.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

var severity = map[string]int{statusOK: 0, statusDegraded: 1, statusFail: 2}

// ReadinessChecker — проверка готовности одной зависимости.
// CheckReady возвращает "ok", "degraded" или "fail" и пояснение.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// dependency — зависимость под именем, под которым она видна в ответе.
type dependency struct {
	name    string
	checker ReadinessChecker
}

// HealthHandler обслуживает /health/live, /health/ready и /metrics.
type HealthHandler struct {
	deps    []dependency
	metrics http.Handler
}

// NewHealthHandler создаёт обработчик. nil-зависимость считается
// неготовой, readiness для неё вернёт fail.
func NewHealthHandler(store, personRegistry ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "store", checker: store},
			{name: "person_registry", checker: personRegistry},
		},
		metrics: promhttp.Handler(),
	}
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// probeResponse — тело ответа обоих probe. Checks есть только у readiness.
type probeResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

func newProbeResponse() probeResponse {
	return probeResponse{
		Status:    statusOK,
		Service:   serviceName,
		Version:   config.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// HealthLive отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newProbeResponse())
}

// HealthReady опрашивает зависимости. degraded не снимает под
// с балансировки (200), fail отвечает 503.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := newProbeResponse()
	resp.Checks = make(map[string]checkResult, len(h.deps))

	statuses := make([]string, 0, len(h.deps))
	for _, dep := range h.deps {
		res := check(dep.checker)
		resp.Checks[dep.name] = res
		statuses = append(statuses, res.Status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics отдаёт метрики из глобального Prometheus registry.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func check(checker ReadinessChecker) checkResult {
	if checker == nil {
		return checkResult{Status: statusFail, Message: "не инициализирован"}
	}
	status, msg := checker.CheckReady()
	return checkResult{Status: status, Message: msg}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// overallStatus — самый тяжёлый из статусов. Неизвестный статус
// приравнивается к fail.
func overallStatus(statuses ...string) string {
	worst := statusOK
	for _, s := range statuses {
		rank, known := severity[s]
		if !known {
			return statusFail
		}
		if rank > severity[worst] {
			worst = s
		}
	}
	return worst
}
