package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/propertydash/internal/api/errors"
	"github.com/bigkaa/propertydash/internal/api/middleware"
	"github.com/bigkaa/propertydash/internal/api/openapi"
	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/repository"
	"github.com/bigkaa/propertydash/internal/service"
)

type testDeps struct {
	imports  *fakeImporter
	records  *fakeRecords
	enricher *fakeEnricher
	progress *fakeProgress
}

func newTestHandler(opts Options) (*APIHandler, *testDeps) {
	deps := &testDeps{
		imports:  &fakeImporter{},
		records:  &fakeRecords{},
		enricher: &fakeEnricher{},
		progress: newFakeProgress(),
	}
	h := NewAPIHandler(NewHealthHandler(nil, nil), deps.imports, deps.records, deps.enricher, deps.progress, opts, testLogger())
	return h, deps
}

// withOwner добавляет в запрос claims аутентифицированного пользователя.
func withOwner(r *http.Request, owner string) *http.Request {
	claims := &middleware.AuthClaims{Subject: owner}
	return r.WithContext(context.WithValue(r.Context(), middleware.ContextKeyClaims, claims))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("декодирование ошибки: %v", err)
	}
	return body.Error.Code
}

// --- imports ---

func TestCreateImport_Success(t *testing.T) {
	h, deps := newTestHandler(Options{})
	created := []model.PropertyRecord{sampleRecord(model.StatusPending), sampleRecord(model.StatusPending)}
	deps.imports.result = &model.ImportResult{AddressColumn: "Mailing Address", Created: created, Skipped: 1}

	csv := "Name,Mailing Address\nA,1 Main St\nB,2 Oak Ave\nC,\n"
	req := withOwner(httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(csv)), "alice")
	rec := httptest.NewRecorder()

	h.CreateImport(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидается 201; тело: %s", rec.Code, rec.Body.String())
	}
	if deps.imports.gotOwner != "alice" {
		t.Errorf("владелец = %q, ожидается alice", deps.imports.gotOwner)
	}
	if deps.imports.gotBody != csv {
		t.Errorf("тело CSV передано с изменениями: %q", deps.imports.gotBody)
	}

	var resp openapi.ImportResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if resp.Created != 2 || resp.Skipped != 1 || len(resp.Items) != 2 {
		t.Errorf("ответ = %+v, хотели created=2 skipped=1 items=2", resp)
	}
	if resp.AddressColumn != "Mailing Address" {
		t.Errorf("address_column = %q", resp.AddressColumn)
	}
	if resp.Items[0].Status != openapi.RecordStatusPending {
		t.Errorf("статус записи = %q, ожидается pending", resp.Items[0].Status)
	}
}

func TestCreateImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"нет колонки адреса", fmt.Errorf("%w: колонки [name]", service.ErrMissingAddressColumn), http.StatusBadRequest, apierrors.CodeMissingAddressColumn},
		{"нет строк", service.ErrEmptyImport, http.StatusBadRequest, apierrors.CodeEmptyImport},
		{"битый CSV", fmt.Errorf("%w: чтение CSV", service.ErrValidation), http.StatusBadRequest, apierrors.CodeValidationError},
		{"конфликт", fmt.Errorf("создание записей: %w", repository.ErrConflict), http.StatusConflict, apierrors.CodeConflict},
		{"хранилище недоступно", fmt.Errorf("%w: создание записей", service.ErrPersistenceUnavailable), http.StatusServiceUnavailable, apierrors.CodePersistenceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newTestHandler(Options{})
			deps.imports.err = tt.err

			req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader("name\nx\n"))
			rec := httptest.NewRecorder()
			h.CreateImport(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
			if code := decodeError(t, rec); code != tt.wantErr {
				t.Errorf("код = %s, ожидается %s", code, tt.wantErr)
			}
		})
	}
}

func TestCreateImport_TooLarge(t *testing.T) {
	h, deps := newTestHandler(Options{ImportMaxBytes: 16})
	deps.imports.result = &model.ImportResult{}

	body := "Address\n" + strings.Repeat("1 Main St\n", 10)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateImport(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("статус = %d, ожидается 413", rec.Code)
	}
	if code := decodeError(t, rec); code != apierrors.CodePayloadTooLarge {
		t.Errorf("код = %s, ожидается %s", code, apierrors.CodePayloadTooLarge)
	}
	if deps.imports.gotBody != "" {
		t.Error("импорт не должен вызываться для слишком большого файла")
	}
}

// --- records ---

func TestListRecords(t *testing.T) {
	h, deps := newTestHandler(Options{})
	deps.records.records = []model.PropertyRecord{sampleRecord(model.StatusProcessed), sampleRecord(model.StatusError)}
	deps.records.total = 5

	status := openapi.RecordStatusProcessed
	limit, offset := 2, 0
	req := withOwner(httptest.NewRequest(http.MethodGet, "/api/v1/records", nil), "alice")
	rec := httptest.NewRecorder()

	h.ListRecords(rec, req, openapi.ListRecordsParams{Status: &status, Limit: &limit, Offset: &offset})

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if deps.records.gotOwner != "alice" || deps.records.gotLimit != 2 || deps.records.gotOffset != 0 {
		t.Errorf("аргументы List: owner=%q limit=%d offset=%d", deps.records.gotOwner, deps.records.gotLimit, deps.records.gotOffset)
	}
	if deps.records.gotStatus == nil || *deps.records.gotStatus != model.StatusProcessed {
		t.Errorf("фильтр статуса = %v, ожидается processed", deps.records.gotStatus)
	}

	var resp openapi.RecordListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if resp.Total != 5 || !resp.HasMore || len(resp.Items) != 2 {
		t.Errorf("ответ = %+v, хотели total=5 has_more=true items=2", resp)
	}
	if string(resp.Items[0].ProcessedData) != `{"beds":3}` {
		t.Errorf("processed_data = %s", resp.Items[0].ProcessedData)
	}
	if resp.Items[1].ErrorMessage == nil || resp.Items[1].ProcessedData != nil {
		t.Errorf("запись error: processed_data=%s error_message=%v", resp.Items[1].ProcessedData, resp.Items[1].ErrorMessage)
	}
}

func TestListRecords_DefaultsAndLocalOwner(t *testing.T) {
	h, deps := newTestHandler(Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/records", nil)
	rec := httptest.NewRecorder()
	h.ListRecords(rec, req, openapi.ListRecordsParams{})

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if deps.records.gotOwner != "" {
		t.Errorf("владелец без аутентификации = %q, ожидается пустой", deps.records.gotOwner)
	}
	if deps.records.gotLimit != 100 || deps.records.gotOffset != 0 || deps.records.gotStatus != nil {
		t.Errorf("значения по умолчанию: limit=%d offset=%d status=%v", deps.records.gotLimit, deps.records.gotOffset, deps.records.gotStatus)
	}
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("пустой список должен сериализоваться как []: %s", rec.Body.String())
	}
}

func TestGetRecord(t *testing.T) {
	h, deps := newTestHandler(Options{})
	stored := sampleRecord(model.StatusProcessed)
	deps.records.records = []model.PropertyRecord{stored}

	rec := httptest.NewRecorder()
	h.GetRecord(rec, withOwner(httptest.NewRequest(http.MethodGet, "/", nil), "alice"), stored.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	var got openapi.PropertyRecord
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if got.ID != stored.ID || got.OriginalAddress != stored.OriginalAddress {
		t.Errorf("запись = %+v", got)
	}

	rec = httptest.NewRecorder()
	h.GetRecord(rec, httptest.NewRequest(http.MethodGet, "/", nil), uuid.New())
	if rec.Code != http.StatusNotFound {
		t.Errorf("статус для неизвестной записи = %d, ожидается 404", rec.Code)
	}
}

func TestClearRecords(t *testing.T) {
	h, deps := newTestHandler(Options{})
	deps.records.deleted = 7

	rec := httptest.NewRecorder()
	h.ClearRecords(rec, withOwner(httptest.NewRequest(http.MethodDelete, "/api/v1/records", nil), "bob"))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if deps.records.gotOwner != "bob" {
		t.Errorf("владелец = %q, ожидается bob", deps.records.gotOwner)
	}
	var resp openapi.ClearRecordsResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Deleted != 7 {
		t.Errorf("deleted = %d, ожидается 7", resp.Deleted)
	}
}

// --- enrichments ---

func TestRunEnrichment(t *testing.T) {
	h, deps := newTestHandler(Options{})
	runID := uuid.New()
	deps.enricher.summary = &model.EnrichmentSummary{RunID: runID, Attempted: 3, Succeeded: 2, Failed: 1, Batches: 2}

	id1, id2 := uuid.New(), uuid.New()
	body := fmt.Sprintf(`{"record_ids":[%q,%q],"concurrency":2}`, id1, id2)
	req := withOwner(httptest.NewRequest(http.MethodPost, "/api/v1/enrichments", strings.NewReader(body)), "alice")
	rec := httptest.NewRecorder()

	h.RunEnrichment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200; тело: %s", rec.Code, rec.Body.String())
	}
	if deps.enricher.gotOwner != "alice" || deps.enricher.gotConcurrency != 2 {
		t.Errorf("owner=%q concurrency=%d", deps.enricher.gotOwner, deps.enricher.gotConcurrency)
	}
	if len(deps.enricher.gotCandidates) != 2 || deps.enricher.gotCandidates[0] != id1 || deps.enricher.gotCandidates[1] != id2 {
		t.Errorf("кандидаты = %v, хотели [%s %s] в исходном порядке", deps.enricher.gotCandidates, id1, id2)
	}

	var resp openapi.EnrichmentSummary
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if resp.RunID != runID || resp.Attempted != 3 || resp.Succeeded != 2 || resp.Failed != 1 || resp.Batches != 2 {
		t.Errorf("итог = %+v", resp)
	}
}

func TestRunEnrichment_EmptyBodyMeansAllPending(t *testing.T) {
	h, deps := newTestHandler(Options{})
	deps.enricher.summary = &model.EnrichmentSummary{NoEligibleRecords: true}

	rec := httptest.NewRecorder()
	h.RunEnrichment(rec, httptest.NewRequest(http.MethodPost, "/api/v1/enrichments", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	if len(deps.enricher.gotCandidates) != 0 || deps.enricher.gotConcurrency != 0 {
		t.Errorf("кандидаты=%v concurrency=%d, хотели пусто и 0", deps.enricher.gotCandidates, deps.enricher.gotConcurrency)
	}
	if !strings.Contains(rec.Body.String(), `"no_eligible_records":true`) {
		t.Errorf("тело: %s", rec.Body.String())
	}
}

func TestRunEnrichment_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"битый JSON", `{`, nil, http.StatusBadRequest},
		{"валидация", `{}`, fmt.Errorf("%w: concurrency", service.ErrValidation), http.StatusBadRequest},
		{"хранилище недоступно", `{}`, fmt.Errorf("%w: claim", service.ErrPersistenceUnavailable), http.StatusServiceUnavailable},
		{"отмена", `{}`, context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, deps := newTestHandler(Options{})
			deps.enricher.err = tt.err
			deps.enricher.summary = &model.EnrichmentSummary{}

			rec := httptest.NewRecorder()
			h.RunEnrichment(rec, httptest.NewRequest(http.MethodPost, "/api/v1/enrichments", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
		})
	}
}

// --- events ---

func TestStreamEvents(t *testing.T) {
	h, deps := newTestHandler(Options{SSEKeepAliveInterval: time.Hour})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.StreamEvents(w, withOwner(r, "alice"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("запрос: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if owner := <-deps.progress.subscribed; owner != "alice" {
		t.Errorf("подписка на владельца %q, ожидается alice", owner)
	}

	runID := uuid.New()
	deps.progress.ch <- model.BatchProgress{
		RunID: runID, OwnerID: "alice", Batch: 1, TotalBatches: 2, Attempted: 2, Succeeded: 1, Failed: 1,
		Summary: model.EnrichmentSummary{RunID: runID, Attempted: 2, Succeeded: 1, Failed: 1, Batches: 1},
	}

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("чтение потока: %v", err)
		}
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	if eventLine != "batch-progress" {
		t.Errorf("event = %q, ожидается batch-progress", eventLine)
	}
	var ev openapi.BatchProgressEvent
	if err := json.Unmarshal([]byte(dataLine), &ev); err != nil {
		t.Fatalf("data: %v", err)
	}
	if ev.RunID != runID || ev.Batch != 1 || ev.TotalBatches != 2 || ev.Summary.Batches != 1 {
		t.Errorf("событие = %+v", ev)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for !deps.progress.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("подписка не закрыта после отключения клиента")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- health ---

type stubChecker struct{ status string }

func (s stubChecker) CheckReady() (string, string) { return s.status, "" }

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name     string
		pg       ReadinessChecker
		kc       ReadinessChecker
		wantCode int
		wantKC   bool
	}{
		{"postgres ok, без keycloak", stubChecker{"ok"}, nil, http.StatusOK, false},
		{"postgres fail", stubChecker{"fail"}, nil, http.StatusServiceUnavailable, false},
		{"keycloak degraded", stubChecker{"ok"}, stubChecker{"degraded"}, http.StatusOK, true},
		{"keycloak fail", stubChecker{"ok"}, stubChecker{"fail"}, http.StatusServiceUnavailable, true},
		{"postgres не инициализирован", nil, nil, http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hh := NewHealthHandler(tt.pg, tt.kc)
			rec := httptest.NewRecorder()
			hh.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantCode)
			}
			if got := strings.Contains(rec.Body.String(), `"keycloak"`); got != tt.wantKC {
				t.Errorf("наличие проверки keycloak = %v, ожидается %v", got, tt.wantKC)
			}
		})
	}
}

func TestOverallStatus(t *testing.T) {
	if s := overallStatus("ok", "degraded"); s != "degraded" {
		t.Errorf("overallStatus = %s, ожидается degraded", s)
	}
	if s := overallStatus("degraded", "fail"); s != "fail" {
		t.Errorf("overallStatus = %s, ожидается fail", s)
	}
	if s := overallStatus("ok"); s != "ok" {
		t.Errorf("overallStatus = %s, ожидается ok", s)
	}
}
