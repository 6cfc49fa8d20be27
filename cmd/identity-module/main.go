// Точка входа Identity Module — хранилище идентичностей платформы.
// Загружает конфигурацию, открывает хранилище (PostgreSQL с миграциями
// или in-memory), создаёт сервисный слой, клиент реестра персон и резолвер
// провижининга, запускает topologymetrics и HTTP-сервер health/metrics
// с graceful shutdown.
//
// Подкоманда provision выполняет провижининг одной персоны и печатает
// полученных пользователей в JSON:
//
//	identity-module provision -national-id 01017012345 [-legacy-id kari]
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/goartstore/identity-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/identity-module/internal/config"
	"github.com/bigkaa/goartstore/identity-module/internal/database"
	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
	"github.com/bigkaa/goartstore/identity-module/internal/registry"
	"github.com/bigkaa/goartstore/identity-module/internal/server"
	"github.com/bigkaa/goartstore/identity-module/internal/service"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "provision" {
		os.Exit(runProvision(os.Args[2:]))
	}
	os.Exit(runServer())
}

// app — собранные компоненты сервиса.
type app struct {
	storage      *database.Storage
	registry     *registry.Client
	roles        *service.RoleService
	provisioning *service.ProvisioningService
	defaultRole  model.Role
}

// bootstrap загружает конфигурацию и собирает хранилище и сервисы.
func bootstrap(ctx context.Context) (*config.Config, *slog.Logger, *app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	logger := config.SetupLogger(cfg)

	storage, err := database.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("открытие хранилища: %w", err)
	}

	// Клиент реестра персон
	registryClient := registry.New(
		cfg.RegistryURL,
		cfg.RegistryUsername,
		cfg.RegistryPassword,
		&http.Client{Timeout: cfg.RegistryTimeout},
		logger,
	)

	roles := service.NewRoleService(storage.Table, logger)
	users := service.NewUserService(storage.Table, roles, logger)
	customers := service.NewCustomerService(storage.Table, logger)
	tenants := service.NewTenantCache(customers, cfg.TenantCacheSize, cfg.TenantCacheTTL)
	customers.OnInstitutionChanged(tenants.Invalidate)
	defaultRole := model.NewRole(cfg.DefaultRole, cfg.DefaultRoleAccessRights...)

	return cfg, logger, &app{
		storage:  storage,
		registry: registryClient,
		roles:    roles,
		provisioning: service.NewProvisioningService(
			users, roles, registryClient, tenants, defaultRole, logger,
		),
		defaultRole: defaultRole,
	}, nil
}

// runServer запускает HTTP-сервер и мониторинг зависимостей.
func runServer() int {
	ctx := context.Background()

	cfg, logger, a, err := bootstrap(ctx)
	if err != nil {
		slog.Error("Ошибка запуска Identity Module", slog.String("error", err.Error()))
		return 1
	}
	defer a.storage.Close()

	logger.Info("Identity Module запущен",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("registry_url", a.registry.BaseURL()),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("IM_DEPHEALTH_GROUP") == "" {
		logger.Warn("IM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// Роль по умолчанию создаётся заранее, чтобы первый провижининг
	// не ждал записи в реестр ролей. Ошибка не фатальна: резолвер повторит.
	if err := a.roles.EnsureRole(ctx, a.defaultRole); err != nil {
		logger.Warn("Не удалось создать роль по умолчанию",
			slog.String("role", a.defaultRole.Name),
			slog.String("error", err.Error()),
		)
	}

	// topologymetrics — мониторинг зависимостей (PostgreSQL + реестр персон).
	// Адаптер pgxpool → *sql.DB нужен для connection pool mode.
	pgPool := a.storage.Pool
	var pgDB *sql.DB
	var pgURL string
	if pgPool != nil {
		pgDB = stdlib.OpenDBFromPool(pgPool)
		defer pgDB.Close()
		pgURL = cfg.DatabaseURL()
	}

	dephealthSvc, dephealthErr := service.NewDephealthService("identity-module", cfg.DephealthGroup,
		service.DephealthTargets{
			DB:          pgDB,
			PostgresURL: pgURL,
			RegistryURL: cfg.RegistryURL,
			Interval:    cfg.DephealthCheckInterval,
		},
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pgPool),
		a.registry,
	)

	srv := server.New(cfg, logger, healthHandler)
	runErr := srv.Run()

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if runErr != nil {
		logger.Error("Ошибка сервера", slog.String("error", runErr.Error()))
		return 1
	}

	logger.Info("Identity Module остановлен")
	return 0
}

// runProvision выполняет провижининг одной персоны.
func runProvision(args []string) int {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	nationalID := fs.String("national-id", "", "национальный идентификатор персоны")
	legacyID := fs.String("legacy-id", "", "ранее выданный локальный username (опционально)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	_, logger, a, err := bootstrap(ctx)
	if err != nil {
		slog.Error("Ошибка запуска Identity Module", slog.String("error", err.Error()))
		return 1
	}
	defer a.storage.Close()

	users, err := a.provisioning.Provision(ctx, service.ProvisionRequest{
		NationalID:       *nationalID,
		LegacyIdentifier: *legacyID,
	})
	if err != nil {
		logger.Error("Ошибка провижининга",
			slog.String("error", err.Error()),
			slog.Bool("upstream", errors.Is(err, service.ErrUpstream)),
		)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(users); err != nil {
		logger.Error("Ошибка вывода результата", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
