// Точка входа propertydash — сервис обогащения адресов объектов недвижимости.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт lookup-клиент, сервисный слой и API handlers,
// запускает topologymetrics и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/propertydash/internal/api/handlers"
	"github.com/bigkaa/propertydash/internal/api/middleware"
	"github.com/bigkaa/propertydash/internal/api/openapi"
	"github.com/bigkaa/propertydash/internal/config"
	"github.com/bigkaa/propertydash/internal/database"
	"github.com/bigkaa/propertydash/internal/lookupclient"
	"github.com/bigkaa/propertydash/internal/repository"
	"github.com/bigkaa/propertydash/internal/server"
	"github.com/bigkaa/propertydash/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("propertydash запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Bool("auth_enabled", cfg.AuthEnabled),
	)

	if os.Getenv("PD_DEPHEALTH_GROUP") == "" {
		logger.Warn("PD_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}
	if !cfg.AuthEnabled {
		logger.Warn("Аутентификация отключена: все запросы работают с записями без владельца")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Lookup API клиент (rate limiter + опциональный LRU-кэш)
	lookupHTTP, err := lookupclient.New(lookupclient.Options{
		URL:        cfg.LookupURL,
		APIKey:     cfg.LookupAPIKey,
		Timeout:    cfg.LookupTimeout,
		CACertPath: cfg.CACertPath,
		RateLimit:  cfg.LookupRateLimit,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания lookup-клиента", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var lookup lookupclient.Lookuper = lookupHTTP
	if cfg.LookupCacheSize > 0 {
		lookup = lookupclient.NewCachedClient(lookupHTTP, cfg.LookupCacheSize, cfg.LookupCacheTTL)
		logger.Info("Кэш ответов lookup API включён",
			slog.Int("size", cfg.LookupCacheSize),
			slog.String("ttl", cfg.LookupCacheTTL.String()),
		)
	}

	// 6. Repository
	recordRepo := repository.NewPropertyRecordRepository(pool)

	// 7. Services
	broker := service.NewProgressBroker(logger)
	importSvc := service.NewImportService(recordRepo, logger)
	recordSvc := service.NewRecordService(recordRepo, logger)
	enrichSvc := service.NewEnrichmentService(recordRepo, lookup, broker, service.EnrichmentConfig{
		DefaultConcurrency: cfg.EnrichConcurrency,
		MaxConcurrency:     cfg.EnrichMaxConcurrency,
		ClaimTTL:           cfg.EnrichClaimTTL,
	}, logger)

	// 8. Readiness checkers (PostgreSQL + Keycloak при включённой аутентификации)
	pgChecker := database.NewReadinessChecker(pool)
	var kcChecker handlers.ReadinessChecker
	var jwtAuth *middleware.JWTAuth
	jwksURL := ""

	if cfg.AuthEnabled {
		jwksURL = cfg.JWTJWKSURL
		checker, err := middleware.NewKeycloakReadinessChecker(cfg.JWTJWKSURL, cfg.CACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			logger.Error("Ошибка создания Keycloak readiness checker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		kcChecker = checker

		// 9. JWT middleware
		jwtAuth, err = middleware.NewJWTAuth(
			cfg.JWTJWKSURL,
			cfg.CACertPath,
			cfg.JWTIssuer,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("JWT middleware инициализирован",
			slog.String("jwks_url", cfg.JWTJWKSURL),
			slog.String("issuer", cfg.JWTIssuer),
		)
	}

	// 10. API handler (реализует openapi.ServerInterface)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewHealthHandler(pgChecker, kcChecker),
		importSvc,
		recordSvc,
		enrichSvc,
		broker,
		handlers.Options{
			ImportMaxBytes:       cfg.ImportMaxBytes,
			SSEKeepAliveInterval: cfg.SSEKeepAliveInterval,
		},
		logger,
	)

	// 11. topologymetrics — мониторинг зависимостей
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:        "propertydash",
		Group:            cfg.DephealthGroup,
		DB:               pgDB,
		PostgresURL:      cfg.DatabaseURL(),
		LookupURL:        cfg.LookupURL,
		LookupHealthPath: cfg.LookupHealthPath,
		KeycloakJWKSURL:  jwksURL,
		CheckInterval:    cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 12. Создание и запуск HTTP-сервера
	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-документа", slog.String("error", err.Error()))
		os.Exit(1)
	}
	srv, err := server.New(cfg, logger, apiHandler, doc, jwtAuth)
	if err != nil {
		logger.Error("Ошибка создания HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 13. Остановка фоновых задач
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("propertydash остановлен")
}
