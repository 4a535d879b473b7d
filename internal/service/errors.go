// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrMissingAddressColumn — в заголовке CSV нет колонки с "address" в имени.
	ErrMissingAddressColumn = errors.New("в CSV нет колонки адреса")
	// ErrEmptyImport — в CSV нет строк с адресами.
	ErrEmptyImport = errors.New("в CSV нет строк с адресами")
	// ErrPersistenceUnavailable — хранилище записей недоступно.
	ErrPersistenceUnavailable = errors.New("хранилище записей недоступно")
)

// LookupFailedError — ошибка lookup для конкретной записи.
// Не возвращается вызывающему Enrich: сообщение сохраняется в записи.
type LookupFailedError struct {
	RecordID uuid.UUID
	Cause    error
}

func (e *LookupFailedError) Error() string {
	return fmt.Sprintf("lookup записи %s: %v", e.RecordID, e.Cause)
}

func (e *LookupFailedError) Unwrap() error {
	return e.Cause
}
