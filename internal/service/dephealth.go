// Мониторинг зависимостей Identity Module через topologymetrics.
//
// Отслеживаются:
//   - postgresql: SQL-проверка поверх существующего pgxpool (pool mode),
//     только для бэкенда postgres;
//   - person-registry: HTTP GET <base>/health.
//
// Обе зависимости критичны. Метрики app_dependency_* публикуются на /metrics.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрирует HTTP checker
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
)

const (
	depPostgres = "postgresql"
	depRegistry = "person-registry"
)

// DephealthTargets — что мониторить.
type DephealthTargets struct {
	// DB — пул PostgreSQL в обёртке database/sql. nil для in-memory хранилища.
	DB *sql.DB
	// PostgresURL используется только для лейблов метрик.
	PostgresURL string
	// RegistryURL — базовый URL реестра персон.
	RegistryURL string
	// Interval — период проверок.
	Interval time.Duration
}

// names возвращает имена отслеживаемых зависимостей в порядке регистрации.
func (t DephealthTargets) names() []string {
	if t.DB == nil {
		return []string{depRegistry}
	}
	return []string{depPostgres, depRegistry}
}

// DephealthService — периодическая проверка зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	deps   []string
	logger *slog.Logger
}

// NewDephealthService собирает мониторинг для serviceID в группе group.
// Дополнительные опции передаются в dephealth.New как есть,
// например dephealth.WithRegisterer в тестах.
func NewDephealthService(
	serviceID, group string,
	targets DephealthTargets,
	logger *slog.Logger,
	extra ...dephealth.Option,
) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if targets.DB != nil {
		opts = append(opts, dephealth.AddDependency(depPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(targets.DB)),
			dephealth.FromURL(targets.PostgresURL),
			dephealth.CheckInterval(targets.Interval),
			dephealth.Critical(true),
		))
	}
	opts = append(opts, dephealth.HTTP(depRegistry, registryCheckOptions(targets.RegistryURL, targets.Interval)...))
	opts = append(opts, extra...)

	dh, err := dephealth.New(serviceID, group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		deps:   targets.names(),
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

func registryCheckOptions(registryURL string, interval time.Duration) []dephealth.DependencyOption {
	opts := []dephealth.DependencyOption{
		dephealth.FromURL(registryURL),
		dephealth.WithHTTPHealthPath(registryHealthPath(registryURL)),
		dephealth.CheckInterval(interval),
		dephealth.Critical(true),
	}
	if parsed, err := url.Parse(registryURL); err == nil && parsed.Scheme == "https" {
		opts = append(opts, dephealth.WithHTTPTLSSkipVerify(false))
	}
	return opts
}

// registryHealthPath сохраняет префикс пути базового URL:
// https://api/registry -> /registry/health.
func registryHealthPath(registryURL string) string {
	parsed, err := url.Parse(registryURL)
	if err != nil {
		return "/health"
	}
	return strings.TrimRight(parsed.Path, "/") + "/health"
}

// Dependencies возвращает имена отслеживаемых зависимостей.
func (ds *DephealthService) Dependencies() []string {
	return ds.deps
}

func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен",
		slog.String("dependencies", strings.Join(ds.deps, ", ")),
	)
	return ds.dh.Start(ctx)
}

func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health — последнее известное состояние: имя зависимости -> ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
