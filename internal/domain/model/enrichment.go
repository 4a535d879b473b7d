package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrichmentSummary — итог одного вызова обогащения.
type EnrichmentSummary struct {
	// RunID — идентификатор запуска (для логов и событий прогресса)
	RunID uuid.UUID
	// Attempted — записей, для которых выполнен lookup
	Attempted int
	// Succeeded — записей, переведённых в processed
	Succeeded int
	// Failed — записей, переведённых в error
	Failed int
	// Batches — количество выполненных пакетов
	Batches int
	// NoEligibleRecords — после перепроверки не осталось записей в pending
	NoEligibleRecords bool
	// StartedAt — время начала
	StartedAt time.Time
	// CompletedAt — время завершения
	CompletedAt time.Time
}

// BatchProgress — событие о завершении очередного пакета.
type BatchProgress struct {
	RunID        uuid.UUID
	OwnerID      string
	Batch        int
	TotalBatches int
	// Счётчики пакета
	Attempted int
	Succeeded int
	Failed    int
	// Нарастающий итог запуска
	Summary EnrichmentSummary
}

// ImportResult — итог импорта CSV.
type ImportResult struct {
	// AddressColumn — выбранная колонка адреса
	AddressColumn string
	// Created — созданные записи в порядке строк файла
	Created []PropertyRecord
	// Skipped — строк с пустым адресом
	Skipped int
}
