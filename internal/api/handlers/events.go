// events.go — обработчик GET /api/v1/events.
// Server-Sent Events: событие batch-progress после каждого пакета обогащения
// вызывающего и keep-alive комментарий при простое.
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/propertydash/internal/api/openapi"
	"github.com/bigkaa/propertydash/internal/domain/model"
)

const eventBatchProgress = "batch-progress"

// StreamEvents — GET /api/v1/events.
func (h *APIHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	owner := ownerID(r)

	events, unsubscribe := h.progress.Subscribe(owner)
	defer unsubscribe()

	// Поток живёт дольше WriteTimeout сервера
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Не удалось снять write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("SSE не поддерживается", slog.String("error", err.Error()))
		return
	}

	keepAlive := time.NewTicker(h.opts.SSEKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, eventBatchProgress, mapProgress(&event)); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent записывает одно SSE-событие с JSON-данными.
func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

func mapProgress(e *model.BatchProgress) openapi.BatchProgressEvent {
	return openapi.BatchProgressEvent{
		RunID:        e.RunID,
		Batch:        e.Batch,
		TotalBatches: e.TotalBatches,
		Attempted:    e.Attempted,
		Succeeded:    e.Succeeded,
		Failed:       e.Failed,
		Summary:      mapSummary(&e.Summary),
	}
}
