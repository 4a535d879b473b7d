// enrichments.go — обработчик POST /api/v1/enrichments.
// Запуск синхронный: ответ содержит итог после завершения всех пакетов.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/propertydash/internal/api/errors"
	"github.com/bigkaa/propertydash/internal/api/openapi"
	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/service"
)

// RunEnrichment — POST /api/v1/enrichments.
// Пустой record_ids — все записи вызывающего в pending.
func (h *APIHandler) RunEnrichment(w http.ResponseWriter, r *http.Request) {
	var req openapi.EnrichmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	concurrency := 0
	if req.Concurrency != nil {
		concurrency = *req.Concurrency
	}
	summary, err := h.enricher.Enrich(r.Context(), ownerID(r), req.RecordIDs, concurrency)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			apierrors.ValidationError(w, err.Error())
		case errors.Is(err, service.ErrPersistenceUnavailable):
			h.logger.Error("Обогащение прервано", slog.String("error", err.Error()))
			apierrors.PersistenceUnavailable(w, "Хранилище записей недоступно, часть записей могла быть обработана")
		default:
			// Отмена запроса клиентом: ответ уже никто не прочитает
			h.logger.Warn("Обогащение остановлено", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Обогащение остановлено")
		}
		return
	}

	writeJSON(w, http.StatusOK, mapSummary(summary))
}

func mapSummary(s *model.EnrichmentSummary) openapi.EnrichmentSummary {
	return openapi.EnrichmentSummary{
		RunID:             s.RunID,
		Attempted:         s.Attempted,
		Succeeded:         s.Succeeded,
		Failed:            s.Failed,
		Batches:           s.Batches,
		NoEligibleRecords: s.NoEligibleRecords,
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
	}
}
