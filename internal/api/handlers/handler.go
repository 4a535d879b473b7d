// handler.go — основной обработчик API, реализующий openapi.ServerInterface.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/propertydash/internal/api/middleware"
	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/service"
)

// Importer — импорт CSV (реализуется service.ImportService).
type Importer interface {
	Import(ctx context.Context, ownerID string, r io.Reader) (*model.ImportResult, error)
}

// RecordBrowser — чтение и очистка записей (реализуется service.RecordService).
type RecordBrowser interface {
	List(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.PropertyRecord, int, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error)
	ClearAll(ctx context.Context, ownerID string) (int, error)
}

// Enricher — запуск обогащения (реализуется service.EnrichmentService).
type Enricher interface {
	Enrich(ctx context.Context, ownerID string, candidates []uuid.UUID, concurrency int) (*model.EnrichmentSummary, error)
}

// ProgressSubscriber — подписка на события прогресса (реализуется service.ProgressBroker).
type ProgressSubscriber interface {
	Subscribe(ownerID string) (<-chan model.BatchProgress, func())
}

// Options — параметры обработчика.
type Options struct {
	// ImportMaxBytes — максимальный размер CSV
	ImportMaxBytes int64
	// SSEKeepAliveInterval — интервал keep-alive комментариев SSE
	SSEKeepAliveInterval time.Duration
}

// APIHandler — основной обработчик API propertydash.
type APIHandler struct {
	health   *HealthHandler
	imports  Importer
	records  RecordBrowser
	enricher Enricher
	progress ProgressSubscriber
	opts     Options
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	imports Importer,
	records RecordBrowser,
	enricher Enricher,
	progress ProgressSubscriber,
	opts Options,
	logger *slog.Logger,
) *APIHandler {
	if opts.ImportMaxBytes <= 0 {
		opts.ImportMaxBytes = 10 << 20
	}
	if opts.SSEKeepAliveInterval <= 0 {
		opts.SSEKeepAliveInterval = 15 * time.Second
	}
	return &APIHandler{
		health:   health,
		imports:  imports,
		records:  records,
		enricher: enricher,
		progress: progress,
		opts:     opts,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

var (
	_ Importer           = (*service.ImportService)(nil)
	_ RecordBrowser      = (*service.RecordService)(nil)
	_ Enricher           = (*service.EnrichmentService)(nil)
	_ ProgressSubscriber = (*service.ProgressBroker)(nil)
)

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// ownerID возвращает владельца запроса: sub из JWT или пустую строку,
// если аутентификация отключена (локальный режим).
func ownerID(r *http.Request) string {
	return middleware.SubjectFromContext(r.Context())
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// paginationDefaults нормализует параметры пагинации.
// Возвращает корректные limit и offset.
func paginationDefaults(limit *int, offset *int) (int, int) {
	l := 100
	o := 0

	if limit != nil {
		l = *limit
		if l < 1 {
			l = 1
		}
		if l > 1000 {
			l = 1000
		}
	}

	if offset != nil {
		o = *offset
		if o < 0 {
			o = 0
		}
	}

	return l, o
}
