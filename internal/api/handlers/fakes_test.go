package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeImporter — мок Importer.
type fakeImporter struct {
	gotOwner string
	gotBody  string
	result   *model.ImportResult
	err      error
}

func (f *fakeImporter) Import(_ context.Context, ownerID string, r io.Reader) (*model.ImportResult, error) {
	body, _ := io.ReadAll(r)
	f.gotOwner = ownerID
	f.gotBody = string(body)
	return f.result, f.err
}

// fakeRecords — мок RecordBrowser.
type fakeRecords struct {
	records []model.PropertyRecord
	total   int
	err     error

	gotOwner  string
	gotStatus *model.Status
	gotLimit  int
	gotOffset int
	deleted   int
}

func (f *fakeRecords) List(_ context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.PropertyRecord, int, error) {
	f.gotOwner, f.gotStatus, f.gotLimit, f.gotOffset = ownerID, status, limit, offset
	return f.records, f.total, f.err
}

func (f *fakeRecords) Get(_ context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error) {
	f.gotOwner = ownerID
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i], nil
		}
	}
	return nil, service.ErrNotFound
}

func (f *fakeRecords) ClearAll(_ context.Context, ownerID string) (int, error) {
	f.gotOwner = ownerID
	return f.deleted, f.err
}

// fakeEnricher — мок Enricher.
type fakeEnricher struct {
	gotOwner       string
	gotCandidates  []uuid.UUID
	gotConcurrency int
	summary        *model.EnrichmentSummary
	err            error
}

func (f *fakeEnricher) Enrich(_ context.Context, ownerID string, candidates []uuid.UUID, concurrency int) (*model.EnrichmentSummary, error) {
	f.gotOwner, f.gotCandidates, f.gotConcurrency = ownerID, candidates, concurrency
	return f.summary, f.err
}

// fakeProgress — мок ProgressSubscriber с ручной отправкой событий.
type fakeProgress struct {
	mu         sync.Mutex
	ch         chan model.BatchProgress
	subscribed chan string
	closed     bool
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{
		ch:         make(chan model.BatchProgress, 4),
		subscribed: make(chan string, 1),
	}
}

func (f *fakeProgress) Subscribe(ownerID string) (<-chan model.BatchProgress, func()) {
	f.subscribed <- ownerID
	return f.ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.closed = true
	}
}

func (f *fakeProgress) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func sampleRecord(status model.Status) model.PropertyRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := model.PropertyRecord{
		ID:              uuid.New(),
		OriginalAddress: "1 Main St",
		Status:          status,
		DateProcessed:   now,
		CreatedAt:       now,
	}
	switch status {
	case model.StatusProcessed:
		rec.ProcessedData = json.RawMessage(`{"beds":3}`)
	case model.StatusError:
		msg := "lookup API вернул статус 500"
		rec.ErrorMessage = &msg
	}
	return rec
}
