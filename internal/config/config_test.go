package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"IM_DB_HOST":      "localhost",
		"IM_DB_NAME":      "identity",
		"IM_DB_USER":      "identity",
		"IM_DB_PASSWORD":  "secret",
		"IM_REGISTRY_URL": "https://registry.kryukov.lan",
	}
}

// resetEnvs очищает переменные, которые могли остаться от окружения.
func resetEnvs(t *testing.T) {
	t.Helper()
	for k := range minimalEnvs() {
		os.Unsetenv(k)
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8010 {
		t.Errorf("Port = %d, ожидается 8010", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("StoreBackend = %q, ожидается postgres", cfg.StoreBackend)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.RegistryTimeout != 10*time.Second {
		t.Errorf("RegistryTimeout = %v, ожидается 10s", cfg.RegistryTimeout)
	}
	if cfg.DefaultRole != "Creator" {
		t.Errorf("DefaultRole = %q, ожидается Creator", cfg.DefaultRole)
	}
	if cfg.DefaultRoleAccessRights != nil {
		t.Errorf("DefaultRoleAccessRights = %v, ожидается nil", cfg.DefaultRoleAccessRights)
	}
	if cfg.TenantCacheSize != 1000 {
		t.Errorf("TenantCacheSize = %d, ожидается 1000", cfg.TenantCacheSize)
	}
	if cfg.TenantCacheTTL != 5*time.Minute {
		t.Errorf("TenantCacheTTL = %v, ожидается 5m", cfg.TenantCacheTTL)
	}
	if cfg.DephealthGroup != "identity" {
		t.Errorf("DephealthGroup = %q, ожидается identity", cfg.DephealthGroup)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["IM_PORT"] = "8015"
	envs["IM_LOG_LEVEL"] = "debug"
	envs["IM_LOG_FORMAT"] = "text"
	envs["IM_DB_PORT"] = "5433"
	envs["IM_DB_SSL_MODE"] = "require"
	envs["IM_REGISTRY_USERNAME"] = "svc"
	envs["IM_REGISTRY_PASSWORD"] = "pw"
	envs["IM_REGISTRY_TIMEOUT"] = "3s"
	envs["IM_DEFAULT_ROLE"] = "Publisher"
	envs["IM_DEFAULT_ROLE_ACCESS_RIGHTS"] = "PUBLISH, EDIT"
	envs["IM_TENANT_CACHE_SIZE"] = "50"
	envs["IM_TENANT_CACHE_TTL"] = "1m"
	envs["IM_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 8015 {
		t.Errorf("Port = %d, ожидается 8015", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBPort != 5433 {
		t.Errorf("DBPort = %d, ожидается 5433", cfg.DBPort)
	}
	if cfg.DBSSLMode != "require" {
		t.Errorf("DBSSLMode = %q, ожидается require", cfg.DBSSLMode)
	}
	if cfg.RegistryUsername != "svc" || cfg.RegistryPassword != "pw" {
		t.Errorf("Registry basic auth = %q/%q, ожидается svc/pw", cfg.RegistryUsername, cfg.RegistryPassword)
	}
	if cfg.RegistryTimeout != 3*time.Second {
		t.Errorf("RegistryTimeout = %v, ожидается 3s", cfg.RegistryTimeout)
	}
	if cfg.DefaultRole != "Publisher" {
		t.Errorf("DefaultRole = %q, ожидается Publisher", cfg.DefaultRole)
	}
	if len(cfg.DefaultRoleAccessRights) != 2 || cfg.DefaultRoleAccessRights[0] != "PUBLISH" {
		t.Errorf("DefaultRoleAccessRights = %v, ожидается [PUBLISH EDIT]", cfg.DefaultRoleAccessRights)
	}
	if cfg.TenantCacheSize != 50 {
		t.Errorf("TenantCacheSize = %d, ожидается 50", cfg.TenantCacheSize)
	}
	if cfg.TenantCacheTTL != time.Minute {
		t.Errorf("TenantCacheTTL = %v, ожидается 1m", cfg.TenantCacheTTL)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_MemoryBackendSkipsDatabase(t *testing.T) {
	resetEnvs(t)
	setEnvs(t, map[string]string{
		"IM_STORE_BACKEND": "memory",
		"IM_REGISTRY_URL":  "https://registry.kryukov.lan",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, ожидается memory", cfg.StoreBackend)
	}
	if cfg.DBHost != "" {
		t.Errorf("DBHost = %q, для memory не должен заполняться", cfg.DBHost)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for missing := range minimalEnvs() {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)
			resetEnvs(t)
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт ниже диапазона", "IM_PORT", "8009"},
		{"порт выше диапазона", "IM_PORT", "8020"},
		{"порт не число", "IM_PORT", "abc"},
		{"уровень логирования", "IM_LOG_LEVEL", "verbose"},
		{"формат логов", "IM_LOG_FORMAT", "xml"},
		{"бэкенд хранилища", "IM_STORE_BACKEND", "dynamodb"},
		{"режим SSL", "IM_DB_SSL_MODE", "prefer"},
		{"таймаут реестра", "IM_REGISTRY_TIMEOUT", "abc"},
		{"размер кэша", "IM_TENANT_CACHE_SIZE", "0"},
		{"TTL кэша", "IM_TENANT_CACHE_TTL", "forever"},
		{"пустая роль", "IM_DEFAULT_ROLE", "   "},
		{"логин без пароля", "IM_REGISTRY_USERNAME", "svc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			resetEnvs(t)
			setEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_RegistryURLTrailingSlash(t *testing.T) {
	envs := minimalEnvs()
	envs["IM_REGISTRY_URL"] = "https://registry.kryukov.lan/"
	resetEnvs(t)
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.RegistryURL != "https://registry.kryukov.lan" {
		t.Errorf("RegistryURL = %q, ожидается без trailing slash", cfg.RegistryURL)
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5432,
		DBName:     "identity",
		DBUser:     "user",
		DBPassword: "pass",
		DBSSLMode:  "disable",
	}
	expected := "host=db.example.com port=5432 dbname=identity user=user password=pass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, expected)
	}
	if u := cfg.DatabaseURL(); u != "postgres://db.example.com:5432/identity" {
		t.Errorf("DatabaseURL() = %q", u)
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Error("SetupLogger() вернул nil")
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"EDIT", []string{"EDIT"}},
		{"EDIT, PUBLISH", []string{"EDIT", "PUBLISH"}},
		{"EDIT,,PUBLISH,", []string{"EDIT", "PUBLISH"}},
		{" EDIT , PUBLISH , APPROVE_DOI ", []string{"EDIT", "PUBLISH", "APPROVE_DOI"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseCSV(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseCSV(%q) = %v (len %d), ожидается %v (len %d)",
					tt.input, result, len(result), tt.expected, len(tt.expected))
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCSV(%q)[%d] = %q, ожидается %q", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
