// import.go — импорт CSV с адресами в записи со статусом pending.
package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/repository"
)

// RecordCreator — массовое создание записей (одна транзакция).
type RecordCreator interface {
	CreateMany(ctx context.Context, ownerID string, addresses []string) ([]model.PropertyRecord, error)
}

// ImportService — разбор CSV и массовое создание записей.
type ImportService struct {
	store  RecordCreator
	logger *slog.Logger
}

// NewImportService создаёт сервис импорта.
func NewImportService(store RecordCreator, logger *slog.Logger) *ImportService {
	return &ImportService{
		store:  store,
		logger: logger.With(slog.String("component", "import_service")),
	}
}

// FindAddressColumn возвращает индекс первой колонки, в имени которой
// есть "address" без учёта регистра, или -1.
func FindAddressColumn(header []string) int {
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if strings.Contains(strings.ToLower(name), "address") {
			return i
		}
	}
	return -1
}

// ParseAddresses читает CSV с заголовком и возвращает имя колонки адреса,
// адреса в порядке строк и количество строк с пустым адресом.
func ParseAddresses(r io.Reader) (column string, addresses []string, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil, 0, fmt.Errorf("%w: файл пуст", ErrMissingAddressColumn)
		}
		return "", nil, 0, fmt.Errorf("%w: чтение заголовка CSV: %v", ErrValidation, err)
	}

	idx := FindAddressColumn(header)
	if idx < 0 {
		return "", nil, 0, fmt.Errorf("%w: колонки %q", ErrMissingAddressColumn, header)
	}
	column = strings.TrimSpace(strings.TrimPrefix(header[idx], "\ufeff"))

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, 0, fmt.Errorf("%w: чтение CSV: %v", ErrValidation, err)
		}
		if idx >= len(row) || strings.TrimSpace(row[idx]) == "" {
			skipped++
			continue
		}
		addresses = append(addresses, row[idx])
	}
	return column, addresses, skipped, nil
}

// Import разбирает CSV и создаёт записи владельца ownerID в статусе pending.
// При любой ошибке не создаётся ни одной записи.
func (s *ImportService) Import(ctx context.Context, ownerID string, r io.Reader) (*model.ImportResult, error) {
	column, addresses, skipped, err := ParseAddresses(r)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("%w: пропущено строк с пустым адресом: %d", ErrEmptyImport, skipped)
	}

	created, err := s.store.CreateMany(ctx, ownerID, addresses)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("создание записей: %w", err)
		}
		return nil, fmt.Errorf("%w: создание записей: %w", ErrPersistenceUnavailable, err)
	}

	s.logger.Info("CSV импортирован",
		slog.String("owner_id", ownerID),
		slog.String("address_column", column),
		slog.Int("created", len(created)),
		slog.Int("skipped", skipped),
	)

	return &model.ImportResult{
		AddressColumn: column,
		Created:       created,
		Skipped:       skipped,
	}, nil
}
