// types.go — типы запросов и ответов API (соответствуют components/schemas).
package openapi

import (
	"encoding/json"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// RecordStatus — статус записи.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusProcessed RecordStatus = "processed"
	RecordStatusError     RecordStatus = "error"
)

// RecordID — path-параметр record_id.
type RecordID = openapi_types.UUID

// ListRecordsParams — query-параметры GET /api/v1/records.
type ListRecordsParams struct {
	Status *RecordStatus `form:"status,omitempty" json:"status,omitempty"`
	Limit  *int          `form:"limit,omitempty" json:"limit,omitempty"`
	Offset *int          `form:"offset,omitempty" json:"offset,omitempty"`
}

// PropertyRecord — запись в ответах API.
type PropertyRecord struct {
	ID              openapi_types.UUID `json:"id"`
	OriginalAddress string             `json:"original_address"`
	Status          RecordStatus       `json:"status"`
	ProcessedData   json.RawMessage    `json:"processed_data,omitempty"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
	DateProcessed   time.Time          `json:"date_processed"`
	CreatedAt       time.Time          `json:"created_at"`
}

// RecordListResponse — страница записей.
type RecordListResponse struct {
	Items   []PropertyRecord `json:"items"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	HasMore bool             `json:"has_more"`
}

// ImportResponse — итог импорта CSV.
type ImportResponse struct {
	AddressColumn string           `json:"address_column"`
	Created       int              `json:"created"`
	Skipped       int              `json:"skipped"`
	Items         []PropertyRecord `json:"items"`
}

// ClearRecordsResponse — итог удаления записей.
type ClearRecordsResponse struct {
	Deleted int `json:"deleted"`
}

// EnrichmentRequest — тело POST /api/v1/enrichments.
type EnrichmentRequest struct {
	RecordIDs   []openapi_types.UUID `json:"record_ids,omitempty"`
	Concurrency *int                 `json:"concurrency,omitempty"`
}

// EnrichmentSummary — итог запуска обогащения.
type EnrichmentSummary struct {
	RunID             openapi_types.UUID `json:"run_id"`
	Attempted         int                `json:"attempted"`
	Succeeded         int                `json:"succeeded"`
	Failed            int                `json:"failed"`
	Batches           int                `json:"batches"`
	NoEligibleRecords bool               `json:"no_eligible_records"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// BatchProgressEvent — данные SSE-события batch-progress.
type BatchProgressEvent struct {
	RunID        openapi_types.UUID `json:"run_id"`
	Batch        int                `json:"batch"`
	TotalBatches int                `json:"total_batches"`
	Attempted    int                `json:"attempted"`
	Succeeded    int                `json:"succeeded"`
	Failed       int                `json:"failed"`
	Summary      EnrichmentSummary  `json:"summary"`
}
