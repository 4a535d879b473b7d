// imports.go — обработчик POST /api/v1/imports.
// CSV целиком читается в память (не более ImportMaxBytes) и импортируется
// одной транзакцией.
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	apierrors "github.com/bigkaa/propertydash/internal/api/errors"
	"github.com/bigkaa/propertydash/internal/api/openapi"
	"github.com/bigkaa/propertydash/internal/repository"
	"github.com/bigkaa/propertydash/internal/service"
)

// CreateImport — POST /api/v1/imports.
// Тело — CSV с заголовком; первая колонка с "address" в имени — адрес.
func (h *APIHandler) CreateImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.ImportMaxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер CSV превышает %d байт", tooLarge.Limit))
			return
		}
		apierrors.ValidationError(w, "Ошибка чтения тела запроса: "+err.Error())
		return
	}

	result, err := h.imports.Import(r.Context(), ownerID(r), bytes.NewReader(body))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingAddressColumn):
			apierrors.MissingAddressColumn(w, "В CSV нет колонки, содержащей \"address\" в имени")
		case errors.Is(err, service.ErrEmptyImport):
			apierrors.EmptyImport(w, "В CSV нет строк с адресами")
		case errors.Is(err, repository.ErrConflict):
			apierrors.Conflict(w, "Конфликт при создании записей")
		default:
			h.writeServiceError(w, err, "Ошибка импорта CSV")
		}
		return
	}

	writeJSON(w, http.StatusCreated, openapi.ImportResponse{
		AddressColumn: result.AddressColumn,
		Created:       len(result.Created),
		Skipped:       result.Skipped,
		Items:         mapRecords(result.Created),
	})
}
