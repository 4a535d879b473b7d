package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/repository"
)

// testLogger — logger, отбрасывающий вывод.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRecord — запись in-memory хранилища с полями захвата.
type fakeRecord struct {
	rec       model.PropertyRecord
	seq       int
	token     uuid.UUID
	claimedAt time.Time
}

// fakeStore — in-memory хранилище с семантикой CAS как у PostgreSQL-репозитория.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*fakeRecord
	seq     int

	// Внедряемые ошибки
	createErr error
	listErr   error
	claimErr  error
	updateErr error
	// rejectPatch — ошибка хранилища для конкретного патча (nil — принять)
	rejectPatch func(id uuid.UUID, patch model.RecordPatch) error

	// now — часы хранилища для claimed_at и TTL захвата
	now func() time.Time
	// onUpdate вызывается после применения патча (под мьютексом хранилища)
	onUpdate func(rec model.PropertyRecord)

	// Счётчики вызовов
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[uuid.UUID]*fakeRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// seed создаёт записи владельца в pending и возвращает их ID в порядке addresses.
func (s *fakeStore) seed(ownerID string, addresses ...string) []uuid.UUID {
	created, _ := s.CreateMany(context.Background(), ownerID, addresses)
	ids := make([]uuid.UUID, len(created))
	for i, rec := range created {
		ids[i] = rec.ID
	}
	return ids
}

// setStatus принудительно задаёт статус записи.
func (s *fakeStore) setStatus(id uuid.UUID, status model.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.rec.Status = status
	switch status {
	case model.StatusProcessed:
		r.rec.ProcessedData = json.RawMessage(`{}`)
		r.rec.ErrorMessage = nil
	case model.StatusError:
		msg := "earlier failure"
		r.rec.ErrorMessage = &msg
		r.rec.ProcessedData = nil
	}
}

func (s *fakeStore) get(id uuid.UUID) model.PropertyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].rec
}

func (s *fakeStore) sorted(match func(*fakeRecord) bool) []model.PropertyRecord {
	var list []*fakeRecord
	for _, r := range s.records {
		if match(r) {
			list = append(list, r)
		}
	}
	slices.SortFunc(list, func(a, b *fakeRecord) int { return a.seq - b.seq })
	out := make([]model.PropertyRecord, len(list))
	for i, r := range list {
		out[i] = r.rec
	}
	return out
}

func (s *fakeStore) CreateMany(_ context.Context, ownerID string, addresses []string) ([]model.PropertyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := time.Now().UTC()
	out := make([]model.PropertyRecord, 0, len(addresses))
	for _, addr := range addresses {
		s.seq++
		rec := model.PropertyRecord{
			ID:              uuid.New(),
			OwnerID:         ownerID,
			OriginalAddress: addr,
			Status:          model.StatusPending,
			DateProcessed:   now,
			CreatedAt:       now,
		}
		s.records[rec.ID] = &fakeRecord{rec: rec, seq: s.seq}
		out = append(out, rec)
	}
	return out, nil
}

func (s *fakeStore) GetByID(_ context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.rec.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	rec := r.rec
	return &rec, nil
}

func (s *fakeStore) ListByStatus(_ context.Context, ownerID string, status model.Status) ([]model.PropertyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.sorted(func(r *fakeRecord) bool {
		return r.rec.OwnerID == ownerID && r.rec.Status == status
	}), nil
}

func (s *fakeStore) ListByIDs(_ context.Context, ownerID string, ids []uuid.UUID) ([]model.PropertyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.sorted(func(r *fakeRecord) bool {
		return r.rec.OwnerID == ownerID && slices.Contains(ids, r.rec.ID)
	}), nil
}

func (s *fakeStore) List(_ context.Context, filters repository.RecordListFilters, limit, offset int) ([]model.PropertyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	all := s.sorted(func(r *fakeRecord) bool {
		return r.rec.OwnerID == filters.OwnerID && (filters.Status == nil || r.rec.Status == *filters.Status)
	})
	slices.Reverse(all)
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (s *fakeStore) Count(ctx context.Context, filters repository.RecordListFilters) (int, error) {
	all, err := s.List(ctx, filters, 1<<30, 0)
	return len(all), err
}

func (s *fakeStore) Claim(_ context.Context, id, token uuid.UUID, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return false, s.claimErr
	}
	r, ok := s.records[id]
	if !ok || r.rec.Status != model.StatusPending {
		return false, nil
	}
	now := s.now()
	if r.token != uuid.Nil && !r.claimedAt.Before(now.Add(-ttl)) {
		return false, nil
	}
	r.token = token
	r.claimedAt = now
	return true, nil
}

func (s *fakeStore) UpdateIfStatus(
	_ context.Context, id uuid.UUID, expected model.Status, token uuid.UUID, patch model.RecordPatch,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	r, ok := s.records[id]
	if !ok || r.rec.Status != expected {
		return false, nil
	}
	if token != uuid.Nil && r.token != token {
		return false, nil
	}
	if s.rejectPatch != nil {
		if err := s.rejectPatch(id, patch); err != nil {
			return false, err
		}
	}
	r.rec.Status = patch.Status
	r.rec.ProcessedData = patch.ProcessedData
	r.rec.ErrorMessage = patch.ErrorMessage
	r.rec.DateProcessed = patch.DateProcessed
	r.token = uuid.Nil
	s.updates++
	if s.onUpdate != nil {
		s.onUpdate(r.rec)
	}
	return true, nil
}

func (s *fakeStore) DeleteAllByOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.records {
		if r.rec.OwnerID == ownerID {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// fakeLookup — lookup с настраиваемыми отказами, задержкой и учётом параллелизма.
type fakeLookup struct {
	mu sync.Mutex
	// fail — адреса, для которых lookup завершается ошибкой
	fail map[string]bool
	// delay — длительность одного lookup
	delay time.Duration
	// onStart вызывается в начале lookup (вне мьютекса)
	onStart func(address string)

	calls       map[string]int
	inFlight    int
	maxInFlight int
	events      []string // "start:<addr>" / "end:<addr>"
}

func newFakeLookup(failing ...string) *fakeLookup {
	f := &fakeLookup{fail: make(map[string]bool), calls: make(map[string]int)}
	for _, a := range failing {
		f.fail[a] = true
	}
	return f
}

func (f *fakeLookup) Lookup(_ context.Context, address string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[address]++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	f.events = append(f.events, "start:"+address)
	f.mu.Unlock()

	if f.onStart != nil {
		f.onStart(address)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.events = append(f.events, "end:"+address)
	if f.fail[address] {
		return nil, errLookupStub
	}
	return json.RawMessage(`{"address":"` + strings.ReplaceAll(address, `"`, `\"`) + `"}`), nil
}

func (f *fakeLookup) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

// errLookupStub — ошибка lookup в тестах.
var errLookupStub = &stubError{"lookup API вернул статус 500"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

// recordingNotifier сохраняет опубликованные события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []model.BatchProgress
}

func (n *recordingNotifier) Publish(event model.BatchProgress) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}
