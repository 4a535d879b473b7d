// records.go — обработчики /api/v1/records endpoints.
// Список записей с фильтром по статусу, получение одной записи, очистка.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/propertydash/internal/api/errors"
	"github.com/bigkaa/propertydash/internal/api/openapi"
	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/service"
)

// ListRecords — GET /api/v1/records.
// Записи вызывающего, новые изменения первыми.
func (h *APIHandler) ListRecords(w http.ResponseWriter, r *http.Request, params openapi.ListRecordsParams) {
	limit, offset := paginationDefaults(params.Limit, params.Offset)

	var status *model.Status
	if params.Status != nil {
		s := model.Status(*params.Status)
		status = &s
	}

	records, total, err := h.records.List(r.Context(), ownerID(r), status, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка записей")
		return
	}

	writeJSON(w, http.StatusOK, openapi.RecordListResponse{
		Items:   mapRecords(records),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// GetRecord — GET /api/v1/records/{record_id}.
func (h *APIHandler) GetRecord(w http.ResponseWriter, r *http.Request, recordID openapi.RecordID) {
	rec, err := h.records.Get(r.Context(), ownerID(r), recordID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Запись не найдена")
			return
		}
		h.writeServiceError(w, err, "Ошибка получения записи")
		return
	}

	writeJSON(w, http.StatusOK, mapRecord(rec))
}

// ClearRecords — DELETE /api/v1/records.
// Удаляет все записи вызывающего.
func (h *APIHandler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.records.ClearAll(r.Context(), ownerID(r))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка удаления записей")
		return
	}

	writeJSON(w, http.StatusOK, openapi.ClearRecordsResponse{Deleted: deleted})
}

// writeServiceError маппит ошибки сервисного слоя в HTTP-ответ.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrPersistenceUnavailable):
		h.logger.Error(msg, slog.String("error", err.Error()))
		apierrors.PersistenceUnavailable(w, "Хранилище записей недоступно")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		apierrors.InternalError(w, msg)
	}
}

// mapRecord преобразует доменную модель в ответ API.
func mapRecord(rec *model.PropertyRecord) openapi.PropertyRecord {
	return openapi.PropertyRecord{
		ID:              rec.ID,
		OriginalAddress: rec.OriginalAddress,
		Status:          openapi.RecordStatus(rec.Status),
		ProcessedData:   rec.ProcessedData,
		ErrorMessage:    rec.ErrorMessage,
		DateProcessed:   rec.DateProcessed,
		CreatedAt:       rec.CreatedAt,
	}
}

func mapRecords(records []model.PropertyRecord) []openapi.PropertyRecord {
	items := make([]openapi.PropertyRecord, len(records))
	for i := range records {
		items[i] = mapRecord(&records[i])
	}
	return items
}
