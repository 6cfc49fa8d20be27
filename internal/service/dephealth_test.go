// dephealth_test.go — unit-тесты конфигурации мониторинга зависимостей.
package service

import (
	"database/sql"
	"slices"
	"testing"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/prometheus/client_golang/prometheus"
)

// TestRegistryHealthPath проверяет построение пути health endpoint реестра.
func TestRegistryHealthPath(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"без пути", "http://registry:8080", "/health"},
		{"корень", "http://registry:8080/", "/health"},
		{"с префиксом", "https://api.example.org/registry", "/registry/health"},
		{"с префиксом и слэшем", "https://api.example.org/registry/", "/registry/health"},
		{"некорректный URL", "://bad", "/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registryHealthPath(tt.input); got != tt.expected {
				t.Errorf("registryHealthPath(%q) = %q, хотели %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestDephealthTargets_Names проверяет, что PostgreSQL не отслеживается без пула.
func TestDephealthTargets_Names(t *testing.T) {
	if got := (DephealthTargets{}).names(); !slices.Equal(got, []string{depRegistry}) {
		t.Errorf("names() без пула = %v, хотели [%s]", got, depRegistry)
	}

	got := DephealthTargets{DB: &sql.DB{}}.names()
	if !slices.Equal(got, []string{depPostgres, depRegistry}) {
		t.Errorf("names() с пулом = %v", got)
	}
}

// TestNewDephealthService_MemoryBackend — сервис создаётся без пула PostgreSQL.
func TestNewDephealthService_MemoryBackend(t *testing.T) {
	ds, err := NewDephealthService("identity-module", "identity",
		DephealthTargets{
			RegistryURL: "http://registry.example.org:8080",
			Interval:    15 * time.Second,
		},
		testLogger(),
		dephealth.WithRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("NewDephealthService() ошибка: %v", err)
	}
	if !slices.Equal(ds.Dependencies(), []string{depRegistry}) {
		t.Errorf("Dependencies() = %v", ds.Dependencies())
	}
}
