package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/bigkaa/propertydash/internal/domain/model"
)

func TestRecordService_ListGetClear(t *testing.T) {
	store := newFakeStore()
	ids := store.seed("user-1", "a", "b", "c")
	store.seed("user-2", "x")
	store.setStatus(ids[0], model.StatusError)
	svc := NewRecordService(store, testLogger())
	ctx := context.Background()

	records, total, err := svc.List(ctx, "user-1", nil, 2, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(records) != 2 || total != 3 {
		t.Errorf("List() = %d записей, total %d; хотели 2 и 3", len(records), total)
	}

	status := model.StatusError
	records, total, err = svc.List(ctx, "user-1", &status, 10, 0)
	if err != nil || total != 1 || records[0].ID != ids[0] {
		t.Errorf("List(error) = %v, %d, %v", records, total, err)
	}

	bad := model.Status("done")
	if _, _, err := svc.List(ctx, "user-1", &bad, 10, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("List(bad status) err = %v, хотели ErrValidation", err)
	}

	if _, err := svc.Get(ctx, "user-1", ids[1]); err != nil {
		t.Errorf("Get() ошибка: %v", err)
	}
	if _, err := svc.Get(ctx, "user-2", ids[1]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() чужой записи err = %v, хотели ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, "user-1", uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() несуществующей записи err = %v, хотели ErrNotFound", err)
	}

	n, err := svc.ClearAll(ctx, "user-1")
	if err != nil || n != 3 {
		t.Errorf("ClearAll() = %d, %v; хотели 3", n, err)
	}
	if _, total, _ := svc.List(ctx, "user-2", nil, 10, 0); total != 1 {
		t.Errorf("записи user-2 затронуты: total = %d", total)
	}
}

func TestRecordService_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection refused")
	svc := NewRecordService(store, testLogger())

	if _, _, err := svc.List(context.Background(), "user-1", nil, 10, 0); !errors.Is(err, ErrPersistenceUnavailable) {
		t.Errorf("List() err = %v, хотели ErrPersistenceUnavailable", err)
	}
}
