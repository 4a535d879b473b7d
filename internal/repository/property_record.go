package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/propertydash/internal/domain/model"
)

// PropertyRecordRepository — хранилище записей property_records.
// Все операции, кроме Claim и UpdateIfStatus, ограничены владельцем.
type PropertyRecordRepository interface {
	// CreateMany создаёт записи в статусе pending одной транзакцией.
	// Порядок результата совпадает с порядком addresses.
	CreateMany(ctx context.Context, ownerID string, addresses []string) ([]model.PropertyRecord, error)
	// GetByID возвращает запись владельца по UUID.
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error)
	// ListByStatus возвращает все записи владельца в статусе status в порядке импорта.
	ListByStatus(ctx context.Context, ownerID string, status model.Status) ([]model.PropertyRecord, error)
	// ListByIDs возвращает найденные записи владельца из ids (в произвольном порядке).
	ListByIDs(ctx context.Context, ownerID string, ids []uuid.UUID) ([]model.PropertyRecord, error)
	// List возвращает страницу записей, новые по date_processed первыми.
	List(ctx context.Context, filters RecordListFilters, limit, offset int) ([]model.PropertyRecord, error)
	// Count возвращает количество записей по фильтрам.
	Count(ctx context.Context, filters RecordListFilters) (int, error)
	// Claim атомарно захватывает запись в pending для обогащения.
	// Захват старше ttl (по часам PostgreSQL) считается брошенным и перехватывается.
	Claim(ctx context.Context, id, token uuid.UUID, ttl time.Duration) (bool, error)
	// UpdateIfStatus применяет patch, только если текущий статус равен expected
	// и (при token != uuid.Nil) запись захвачена этим token. Захват снимается.
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected model.Status, token uuid.UUID, patch model.RecordPatch) (bool, error)
	// DeleteAllByOwner удаляет все записи владельца.
	DeleteAllByOwner(ctx context.Context, ownerID string) (int, error)
}

// RecordListFilters — фильтры списка записей.
type RecordListFilters struct {
	OwnerID string
	Status  *model.Status
}

// propertyRecordRepo — реализация PropertyRecordRepository.
type propertyRecordRepo struct {
	db DBTX
}

// NewPropertyRecordRepository создаёт репозиторий записей.
func NewPropertyRecordRepository(db DBTX) PropertyRecordRepository {
	return &propertyRecordRepo{db: db}
}

const recordColumns = `id, owner_id, original_address, status, processed_data,
	error_message, date_processed, created_at`

// scanRecord читает запись в порядке recordColumns.
func scanRecord(row pgx.Row) (model.PropertyRecord, error) {
	var (
		rec    model.PropertyRecord
		owner  *string
		status string
		data   []byte
	)
	if err := row.Scan(
		&rec.ID, &owner, &rec.OriginalAddress, &status, &data,
		&rec.ErrorMessage, &rec.DateProcessed, &rec.CreatedAt,
	); err != nil {
		return rec, err
	}
	if owner != nil {
		rec.OwnerID = *owner
	}
	rec.Status = model.Status(status)
	if data != nil {
		rec.ProcessedData = data
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]model.PropertyRecord, error) {
	defer rows.Close()

	var result []model.PropertyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// CreateMany вставляет записи через COPY внутри транзакции:
// либо создаются все записи, либо ни одной.
func (r *propertyRecordRepo) CreateMany(ctx context.Context, ownerID string, addresses []string) ([]model.PropertyRecord, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	owner := ownerArg(ownerID)
	records := make([]model.PropertyRecord, len(addresses))
	for i, addr := range addresses {
		records[i] = model.PropertyRecord{
			ID:              uuid.New(),
			OwnerID:         ownerID,
			OriginalAddress: addr,
			Status:          model.StatusPending,
			DateProcessed:   now,
			CreatedAt:       now,
		}
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"property_records"},
			[]string{"id", "owner_id", "original_address", "status", "date_processed", "created_at"},
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				rec := records[i]
				return []any{rec.ID, owner, rec.OriginalAddress, string(rec.Status), rec.DateProcessed, rec.CreatedAt}, nil
			}),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: запись с таким ID уже существует", ErrConflict)
		}
		return nil, fmt.Errorf("ошибка массового создания записей: %w", err)
	}
	return records, nil
}

func (r *propertyRecordRepo) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*model.PropertyRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM property_records
		WHERE id = $1 AND owner_id IS NOT DISTINCT FROM $2`

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id, ownerArg(ownerID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return &rec, nil
}

func (r *propertyRecordRepo) ListByStatus(ctx context.Context, ownerID string, status model.Status) ([]model.PropertyRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM property_records
		WHERE owner_id IS NOT DISTINCT FROM $1 AND status = $2
		ORDER BY seq`

	rows, err := r.db.Query(ctx, query, ownerArg(ownerID), string(status))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей по статусу: %w", err)
	}
	return collectRecords(rows)
}

func (r *propertyRecordRepo) ListByIDs(ctx context.Context, ownerID string, ids []uuid.UUID) ([]model.PropertyRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `SELECT ` + recordColumns + `
		FROM property_records
		WHERE owner_id IS NOT DISTINCT FROM $1 AND id = ANY($2::uuid[])
		ORDER BY seq`

	rows, err := r.db.Query(ctx, query, ownerArg(ownerID), strIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения записей по ID: %w", err)
	}
	return collectRecords(rows)
}

// buildRecordWhere строит WHERE-условие и аргументы для фильтрации записей.
func buildRecordWhere(filters RecordListFilters, startArg int) (string, []any) {
	argNum := startArg
	conditions := []string{fmt.Sprintf("owner_id IS NOT DISTINCT FROM $%d", argNum)}
	args := []any{ownerArg(filters.OwnerID)}
	argNum++

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, string(*filters.Status))
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *propertyRecordRepo) List(ctx context.Context, filters RecordListFilters, limit, offset int) ([]model.PropertyRecord, error) {
	where, args := buildRecordWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`SELECT %s
		FROM property_records
		%s
		ORDER BY date_processed DESC, seq DESC
		LIMIT $%d OFFSET $%d`, recordColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	return collectRecords(rows)
}

func (r *propertyRecordRepo) Count(ctx context.Context, filters RecordListFilters) (int, error) {
	where, args := buildRecordWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM property_records %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return count, nil
}

func (r *propertyRecordRepo) Claim(ctx context.Context, id, token uuid.UUID, ttl time.Duration) (bool, error) {
	// claimed_at и порог брошенного захвата считаются по часам PostgreSQL
	query := `
		UPDATE property_records
		SET claim_token = $2, claimed_at = NOW()
		WHERE id = $1
			AND status = 'pending'
			AND (claim_token IS NULL OR claimed_at < NOW() - $3::double precision * INTERVAL '1 second')`

	tag, err := r.db.Exec(ctx, query, id, token, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("ошибка захвата записи %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *propertyRecordRepo) UpdateIfStatus(
	ctx context.Context, id uuid.UUID, expected model.Status, token uuid.UUID, patch model.RecordPatch,
) (bool, error) {
	query := `
		UPDATE property_records
		SET status = $3, processed_data = $4, error_message = $5, date_processed = $6,
			claim_token = NULL, claimed_at = NULL
		WHERE id = $1
			AND status = $2
			AND ($7::uuid IS NULL OR claim_token = $7::uuid)`

	var tokenArg *string
	if token != uuid.Nil {
		s := token.String()
		tokenArg = &s
	}
	var data []byte
	if patch.ProcessedData != nil {
		data = patch.ProcessedData
	}

	tag, err := r.db.Exec(ctx, query,
		id, string(expected), string(patch.Status), data, patch.ErrorMessage, patch.DateProcessed, tokenArg,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления записи %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *propertyRecordRepo) DeleteAllByOwner(ctx context.Context, ownerID string) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM property_records WHERE owner_id IS NOT DISTINCT FROM $1`, ownerArg(ownerID))
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления записей: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
