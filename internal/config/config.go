// Пакет config — загрузка и валидация конфигурации Identity Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config содержит все параметры конфигурации Identity Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8010-8019)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище ---

	// Бэкенд хранилища: postgres или memory
	StoreBackend string

	// --- PostgreSQL (только для бэкенда postgres) ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Реестр персон ---

	// Базовый URL внешнего реестра персон
	RegistryURL string
	// Basic auth для реестра (опционально)
	RegistryUsername string
	RegistryPassword string
	// Таймаут HTTP-запросов к реестру
	RegistryTimeout time.Duration

	// --- Провижининг ---

	// Роль, назначаемая новым пользователям
	DefaultRole string
	// Права роли по умолчанию (используются, если роли ещё нет)
	DefaultRoleAccessRights []string

	// --- Кэш арендаторов ---

	TenantCacheSize int
	TenantCacheTTL  time.Duration

	// --- Мониторинг зависимостей ---

	// Группа сервиса в topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// IM_PORT — порт HTTP-сервера (по умолчанию 8010)
	cfg.Port, err = getEnvInt("IM_PORT", 8010)
	if err != nil {
		return nil, fmt.Errorf("IM_PORT: %w", err)
	}
	if cfg.Port < 8010 || cfg.Port > 8019 {
		return nil, fmt.Errorf("IM_PORT: значение %d вне допустимого диапазона 8010-8019", cfg.Port)
	}

	// IM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("IM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("IM_LOG_LEVEL: %w", err)
	}

	// IM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("IM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("IM_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище ---

	// IM_STORE_BACKEND — бэкенд хранилища (по умолчанию postgres)
	cfg.StoreBackend = getEnvDefault("IM_STORE_BACKEND", BackendPostgres)
	if cfg.StoreBackend != BackendPostgres && cfg.StoreBackend != BackendMemory {
		return nil, fmt.Errorf("IM_STORE_BACKEND: недопустимое значение %q, допустимые: postgres, memory", cfg.StoreBackend)
	}

	if cfg.StoreBackend == BackendPostgres {
		if err := loadDatabase(cfg); err != nil {
			return nil, err
		}
	}

	// --- Реестр персон ---

	// IM_REGISTRY_URL — обязательный
	cfg.RegistryURL, err = getEnvRequired("IM_REGISTRY_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.RegistryURL = strings.TrimRight(cfg.RegistryURL, "/")

	cfg.RegistryUsername = getEnvDefault("IM_REGISTRY_USERNAME", "")
	cfg.RegistryPassword = getEnvDefault("IM_REGISTRY_PASSWORD", "")
	if (cfg.RegistryUsername == "") != (cfg.RegistryPassword == "") {
		return nil, fmt.Errorf("IM_REGISTRY_USERNAME и IM_REGISTRY_PASSWORD задаются только вместе")
	}

	// IM_REGISTRY_TIMEOUT — таймаут запросов к реестру (по умолчанию 10s)
	cfg.RegistryTimeout, err = getEnvDuration("IM_REGISTRY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_REGISTRY_TIMEOUT: %w", err)
	}

	// --- Провижининг ---

	// IM_DEFAULT_ROLE — роль новых пользователей (по умолчанию Creator)
	cfg.DefaultRole = strings.TrimSpace(getEnvDefault("IM_DEFAULT_ROLE", "Creator"))
	if cfg.DefaultRole == "" {
		return nil, fmt.Errorf("IM_DEFAULT_ROLE: пустое имя роли")
	}

	// IM_DEFAULT_ROLE_ACCESS_RIGHTS — права роли по умолчанию (CSV)
	cfg.DefaultRoleAccessRights = parseCSV(getEnvDefault("IM_DEFAULT_ROLE_ACCESS_RIGHTS", ""))

	// --- Кэш арендаторов ---

	// IM_TENANT_CACHE_SIZE — размер LRU-кэша арендаторов (по умолчанию 1000)
	cfg.TenantCacheSize, err = getEnvInt("IM_TENANT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("IM_TENANT_CACHE_SIZE: %w", err)
	}
	if cfg.TenantCacheSize < 1 {
		return nil, fmt.Errorf("IM_TENANT_CACHE_SIZE: значение %d должно быть положительным", cfg.TenantCacheSize)
	}

	// IM_TENANT_CACHE_TTL — время жизни записи кэша (по умолчанию 5m)
	cfg.TenantCacheTTL, err = getEnvDuration("IM_TENANT_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("IM_TENANT_CACHE_TTL: %w", err)
	}

	// --- Мониторинг зависимостей ---

	// IM_DEPHEALTH_GROUP — группа сервиса (по умолчанию identity)
	cfg.DephealthGroup = getEnvDefault("IM_DEPHEALTH_GROUP", "identity")

	// IM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("IM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// IM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("IM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("IM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// loadDatabase загружает параметры PostgreSQL.
func loadDatabase(cfg *Config) error {
	var err error

	// IM_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("IM_DB_HOST")
	if err != nil {
		return err
	}

	// IM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("IM_DB_PORT", 5432)
	if err != nil {
		return fmt.Errorf("IM_DB_PORT: %w", err)
	}

	// IM_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("IM_DB_NAME")
	if err != nil {
		return err
	}

	// IM_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("IM_DB_USER")
	if err != nil {
		return err
	}

	// IM_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("IM_DB_PASSWORD")
	if err != nil {
		return err
	}

	// IM_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("IM_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("IM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для topologymetrics).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
