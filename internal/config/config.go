// Пакет config — загрузка и валидация конфигурации сервиса propertydash
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

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера. Обогащение выполняется синхронно
	// в рамках запроса, поэтому значение по умолчанию большое.
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера
	HTTPIdleTimeout time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Аутентификация ---

	// AuthEnabled — проверять JWT и фильтровать записи по владельцу.
	// При false сервис работает в локальном режиме: владелец не задан.
	AuthEnabled bool
	// URL Keycloak (обязателен при AuthEnabled)
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Путь к CA-сертификату для TLS-соединений (Keycloak, lookup API)
	CACertPath string

	// --- Lookup API ---

	// URL сервиса поиска сведений об объекте недвижимости
	LookupURL string
	// API-ключ (передаётся как Bearer token, опционально)
	LookupAPIKey string
	// Таймаут одного запроса к lookup API
	LookupTimeout time.Duration
	// Ограничение частоты запросов (запросов в секунду, 0 — без ограничения)
	LookupRateLimit float64
	// Размер LRU-кэша ответов lookup API (0 — кэш отключён)
	LookupCacheSize int
	// Время жизни записи в кэше ответов
	LookupCacheTTL time.Duration
	// Путь health endpoint lookup API для topologymetrics
	LookupHealthPath string

	// --- Обогащение ---

	// Размер пакета (одновременных lookup-запросов) по умолчанию
	EnrichConcurrency int
	// Максимально допустимый размер пакета
	EnrichMaxConcurrency int
	// Время, после которого захват записи считается брошенным
	EnrichClaimTTL time.Duration

	// --- Импорт ---

	// Максимальный размер CSV-файла в байтах
	ImportMaxBytes int64

	// --- Мониторинг ---

	// Группа в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Интервал keep-alive комментариев в SSE-потоке
	SSEKeepAliveInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:gocyclo,cyclop // линейная последовательность проверок
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// PD_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("PD_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("PD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PD_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PD_LOG_LEVEL: %w", err)
	}

	// PD_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("PD_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("PD_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PD_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("PD_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("PD_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("PD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PD_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("PD_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("PD_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("PD_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("PD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Аутентификация ---

	cfg.AuthEnabled, err = getEnvBool("PD_AUTH_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("PD_AUTH_ENABLED: %w", err)
	}

	cfg.KeycloakURL = strings.TrimRight(getEnvDefault("PD_KEYCLOAK_URL", ""), "/")
	if cfg.AuthEnabled && cfg.KeycloakURL == "" {
		return nil, fmt.Errorf("PD_KEYCLOAK_URL: обязательная переменная окружения не задана (PD_AUTH_ENABLED=true)")
	}
	cfg.KeycloakRealm = getEnvDefault("PD_KEYCLOAK_REALM", "propertydash")

	cfg.JWTIssuer = getEnvDefault("PD_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("PD_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWKSClientTimeout, err = getEnvDuration("PD_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("PD_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PD_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("PD_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_JWT_LEEWAY: %w", err)
	}
	cfg.CACertPath = getEnvDefault("PD_CA_CERT_PATH", "")

	// --- Lookup API ---

	cfg.LookupURL, err = getEnvRequired("PD_LOOKUP_URL")
	if err != nil {
		return nil, err
	}
	cfg.LookupAPIKey = getEnvDefault("PD_LOOKUP_API_KEY", "")
	cfg.LookupTimeout, err = getEnvDurationPositive("PD_LOOKUP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_LOOKUP_TIMEOUT: %w", err)
	}
	cfg.LookupRateLimit, err = getEnvFloat("PD_LOOKUP_RATE_LIMIT", 0)
	if err != nil {
		return nil, fmt.Errorf("PD_LOOKUP_RATE_LIMIT: %w", err)
	}
	if cfg.LookupRateLimit < 0 {
		return nil, fmt.Errorf("PD_LOOKUP_RATE_LIMIT: значение не может быть отрицательным")
	}
	cfg.LookupCacheSize, err = getEnvInt("PD_LOOKUP_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("PD_LOOKUP_CACHE_SIZE: %w", err)
	}
	if cfg.LookupCacheSize < 0 {
		return nil, fmt.Errorf("PD_LOOKUP_CACHE_SIZE: значение не может быть отрицательным")
	}
	cfg.LookupCacheTTL, err = getEnvDurationPositive("PD_LOOKUP_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PD_LOOKUP_CACHE_TTL: %w", err)
	}
	cfg.LookupHealthPath = getEnvDefault("PD_LOOKUP_HEALTH_PATH", "/health")

	// --- Обогащение ---

	cfg.EnrichConcurrency, err = getEnvInt("PD_ENRICH_CONCURRENCY", 5)
	if err != nil {
		return nil, fmt.Errorf("PD_ENRICH_CONCURRENCY: %w", err)
	}
	cfg.EnrichMaxConcurrency, err = getEnvInt("PD_ENRICH_MAX_CONCURRENCY", 20)
	if err != nil {
		return nil, fmt.Errorf("PD_ENRICH_MAX_CONCURRENCY: %w", err)
	}
	if cfg.EnrichConcurrency < 1 {
		return nil, fmt.Errorf("PD_ENRICH_CONCURRENCY: значение должно быть >= 1")
	}
	if cfg.EnrichMaxConcurrency < cfg.EnrichConcurrency {
		return nil, fmt.Errorf("PD_ENRICH_MAX_CONCURRENCY: значение %d меньше PD_ENRICH_CONCURRENCY=%d",
			cfg.EnrichMaxConcurrency, cfg.EnrichConcurrency)
	}
	cfg.EnrichClaimTTL, err = getEnvDurationPositive("PD_ENRICH_CLAIM_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PD_ENRICH_CLAIM_TTL: %w", err)
	}

	// --- Импорт ---

	importMax, err := getEnvInt("PD_IMPORT_MAX_BYTES", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("PD_IMPORT_MAX_BYTES: %w", err)
	}
	if importMax < 1 {
		return nil, fmt.Errorf("PD_IMPORT_MAX_BYTES: значение должно быть > 0")
	}
	cfg.ImportMaxBytes = int64(importMax)

	// --- Мониторинг ---

	cfg.DephealthGroup = getEnvDefault("PD_DEPHEALTH_GROUP", "propertydash")
	cfg.DephealthCheckInterval, err = getEnvDuration("PD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.SSEKeepAliveInterval, err = getEnvDurationPositive("PD_SSE_KEEPALIVE_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_SSE_KEEPALIVE_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("PD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL без пароля.
// Используется для лейблов topologymetrics.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName)
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

// getEnvFloat возвращает дробное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
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

// getEnvDurationPositive — как getEnvDuration, но значение должно быть > 0.
func getEnvDurationPositive(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
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
