// Пакет model — доменные модели сервиса propertydash.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status — статус записи в жизненном цикле обогащения.
type Status string

const (
	// StatusPending — запись импортирована и ожидает обогащения
	StatusPending Status = "pending"
	// StatusProcessed — lookup выполнен, ProcessedData заполнено
	StatusProcessed Status = "processed"
	// StatusError — lookup завершился ошибкой, ErrorMessage заполнено
	StatusError Status = "error"
)

// Valid сообщает, является ли s допустимым статусом.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusError:
		return true
	}
	return false
}

// PropertyRecord — запись об объекте недвижимости.
// Хранится в таблице property_records.
type PropertyRecord struct {
	// ID — UUID записи (назначается хранилищем)
	ID uuid.UUID
	// OwnerID — владелец (sub из JWT). Пустая строка в локальном режиме.
	OwnerID string
	// OriginalAddress — адрес из CSV, не изменяется после создания
	OriginalAddress string
	// Status — pending, processed, error
	Status Status
	// ProcessedData — ответ lookup API (только для processed)
	ProcessedData json.RawMessage
	// ErrorMessage — описание ошибки lookup (только для error)
	ErrorMessage *string
	// DateProcessed — время создания или последней смены статуса
	DateProcessed time.Time
	// CreatedAt — время создания записи
	CreatedAt time.Time
}

// RecordPatch — исход обогащения одной записи.
// Ровно одно из полей ProcessedData и ErrorMessage задано.
type RecordPatch struct {
	Status        Status
	ProcessedData json.RawMessage
	ErrorMessage  *string
	DateProcessed time.Time
}

// ProcessedPatch — патч успешного lookup.
func ProcessedPatch(data json.RawMessage, now time.Time) RecordPatch {
	return RecordPatch{Status: StatusProcessed, ProcessedData: data, DateProcessed: now}
}

// ErrorPatch — патч неудачного lookup.
func ErrorPatch(message string, now time.Time) RecordPatch {
	return RecordPatch{Status: StatusError, ErrorMessage: &message, DateProcessed: now}
}
