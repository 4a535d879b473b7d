// records.go — чтение и очистка записей владельца.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/repository"
)

// RecordReader — операции чтения и удаления записей.
type RecordReader interface {
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error)
	List(ctx context.Context, filters repository.RecordListFilters, limit, offset int) ([]model.PropertyRecord, error)
	Count(ctx context.Context, filters repository.RecordListFilters) (int, error)
	DeleteAllByOwner(ctx context.Context, ownerID string) (int, error)
}

// RecordService — список, получение и очистка записей.
type RecordService struct {
	store  RecordReader
	logger *slog.Logger
}

// NewRecordService создаёт сервис записей.
func NewRecordService(store RecordReader, logger *slog.Logger) *RecordService {
	return &RecordService{
		store:  store,
		logger: logger.With(slog.String("component", "record_service")),
	}
}

// List возвращает страницу записей владельца и общее количество по фильтру.
func (s *RecordService) List(ctx context.Context, ownerID string, status *model.Status, limit, offset int) ([]model.PropertyRecord, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, *status)
	}
	filters := repository.RecordListFilters{OwnerID: ownerID, Status: status}

	records, err := s.store.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: получение списка записей: %w", ErrPersistenceUnavailable, err)
	}
	total, err := s.store.Count(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: подсчёт записей: %w", ErrPersistenceUnavailable, err)
	}
	return records, total, nil
}

// Get возвращает запись владельца.
func (s *RecordService) Get(ctx context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error) {
	rec, err := s.store.GetByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: получение записи: %w", ErrPersistenceUnavailable, err)
	}
	return rec, nil
}

// ClearAll удаляет все записи владельца. Отмена невозможна.
func (s *RecordService) ClearAll(ctx context.Context, ownerID string) (int, error) {
	n, err := s.store.DeleteAllByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%w: удаление записей: %w", ErrPersistenceUnavailable, err)
	}
	s.logger.Info("Записи владельца удалены",
		slog.String("owner_id", ownerID),
		slog.Int("deleted", n),
	)
	return n, nil
}
