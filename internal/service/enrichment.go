// enrichment.go — пакетное обогащение записей через lookup API.
//
// Enrich выбирает записи в статусе pending, делит их на последовательные
// пакеты размером concurrency и для каждого пакета:
//  1. захватывает запись (Claim, атомарный CAS по статусу pending);
//  2. параллельно выполняет lookup по захваченным записям;
//  3. сохраняет исход (UpdateIfStatus pending → processed | error);
//  4. ждёт завершения всего пакета и публикует BatchProgress.
//
// Ошибка lookup сохраняется в записи и не прерывает обработку. Исход,
// отвергнутый хранилищем (SQLSTATE класса 22), сохраняется как ошибка записи.
// Ошибка хранилища прерывает вызов после барьера текущего пакета.
//
// Prometheus-метрики:
//   - pd_enrichment_records_total — исходы по записям (processed, error, lost)
//   - pd_enrichment_batch_duration_seconds — длительность пакета
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/propertydash/internal/domain/model"
	"github.com/bigkaa/propertydash/internal/domain/selection"
	"github.com/bigkaa/propertydash/internal/lookupclient"
	"github.com/bigkaa/propertydash/internal/repository"
)

// Prometheus-метрики обогащения.
var (
	enrichRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pd_enrichment_records_total",
		Help: "Количество обработанных записей по исходу",
	}, []string{"outcome"}) // outcome: processed, error, lost

	enrichBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pd_enrichment_batch_duration_seconds",
		Help:    "Длительность обработки одного пакета записей",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 0.05s … ~102s
	})
)

// EnrichmentStore — операции хранилища, нужные движку обогащения.
type EnrichmentStore interface {
	ListByStatus(ctx context.Context, ownerID string, status model.Status) ([]model.PropertyRecord, error)
	ListByIDs(ctx context.Context, ownerID string, ids []uuid.UUID) ([]model.PropertyRecord, error)
	Claim(ctx context.Context, id, token uuid.UUID, ttl time.Duration) (bool, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, expected model.Status, token uuid.UUID, patch model.RecordPatch) (bool, error)
}

// Notifier получает событие после каждого завершённого пакета.
type Notifier interface {
	Publish(event model.BatchProgress)
}

// EnrichmentConfig — параметры движка обогащения.
type EnrichmentConfig struct {
	// DefaultConcurrency — размер пакета, если вызывающий передал 0
	DefaultConcurrency int
	// MaxConcurrency — верхняя граница размера пакета
	MaxConcurrency int
	// ClaimTTL — возраст захвата, после которого он считается брошенным
	ClaimTTL time.Duration
}

// EnrichmentService — движок пакетного обогащения.
type EnrichmentService struct {
	store    EnrichmentStore
	lookup   lookupclient.Lookuper
	notifier Notifier
	cfg      EnrichmentConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewEnrichmentService создаёт движок обогащения. notifier может быть nil.
func NewEnrichmentService(
	store EnrichmentStore,
	lookup lookupclient.Lookuper,
	notifier Notifier,
	cfg EnrichmentConfig,
	logger *slog.Logger,
) *EnrichmentService {
	if cfg.DefaultConcurrency < 1 {
		cfg.DefaultConcurrency = 5
	}
	if cfg.MaxConcurrency < cfg.DefaultConcurrency {
		cfg.MaxConcurrency = cfg.DefaultConcurrency
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	return &EnrichmentService{
		store:    store,
		lookup:   lookup,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "enrichment")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// errUnstorableOutcome — сообщение записи, исход которой хранилище не приняло.
const errUnstorableOutcome = "lookup вернул данные, недопустимые для хранения"

// batchStats — счётчики одного пакета.
type batchStats struct {
	mu        sync.Mutex
	succeeded int
	failed    int
}

func (b *batchStats) add(processed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if processed {
		b.succeeded++
	} else {
		b.failed++
	}
}

// Enrich обрабатывает записи владельца из candidates (пустой список — все
// записи в pending) пакетами по concurrency (0 — значение по умолчанию).
//
// Записи не в pending, чужие и несуществующие пропускаются без ошибки.
// Ошибка возвращается только при недоступности хранилища
// (ErrPersistenceUnavailable) или отмене ctx между пакетами; в обоих
// случаях возвращается также итог по уже обработанным пакетам.
func (s *EnrichmentService) Enrich(
	ctx context.Context, ownerID string, candidates []uuid.UUID, concurrency int,
) (*model.EnrichmentSummary, error) {
	limit, err := s.resolveConcurrency(concurrency)
	if err != nil {
		return nil, err
	}

	summary := &model.EnrichmentSummary{
		RunID:     uuid.New(),
		StartedAt: s.now(),
	}
	log := s.logger.With(
		slog.String("run_id", summary.RunID.String()),
		slog.String("owner_id", ownerID),
	)

	records, err := s.resolve(ctx, ownerID, candidates)
	if err != nil {
		summary.CompletedAt = s.now()
		return summary, err
	}
	if len(records) == 0 {
		summary.NoEligibleRecords = true
		summary.CompletedAt = s.now()
		log.Info("Нет записей в pending для обогащения",
			slog.Int("candidates", len(candidates)),
		)
		return summary, nil
	}

	totalBatches := (len(records) + limit - 1) / limit
	log.Info("Обогащение запущено",
		slog.Int("records", len(records)),
		slog.Int("concurrency", limit),
		slog.Int("batches", totalBatches),
	)

	for batch := range slices.Chunk(records, limit) {
		if err := ctx.Err(); err != nil {
			summary.CompletedAt = s.now()
			log.Warn("Обогащение отменено между пакетами",
				slog.Int("batches_done", summary.Batches),
				slog.String("error", err.Error()),
			)
			return summary, err
		}

		stats, err := s.runBatch(ctx, summary.RunID, batch, limit, log)
		summary.Batches++
		summary.Succeeded += stats.succeeded
		summary.Failed += stats.failed
		summary.Attempted += stats.succeeded + stats.failed

		if s.notifier != nil {
			s.notifier.Publish(model.BatchProgress{
				RunID:        summary.RunID,
				OwnerID:      ownerID,
				Batch:        summary.Batches,
				TotalBatches: totalBatches,
				Attempted:    stats.succeeded + stats.failed,
				Succeeded:    stats.succeeded,
				Failed:       stats.failed,
				Summary:      *summary,
			})
		}

		if err != nil {
			summary.CompletedAt = s.now()
			log.Error("Обогащение прервано: хранилище недоступно",
				slog.Int("batches_done", summary.Batches),
				slog.String("error", err.Error()),
			)
			return summary, fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
		}
	}

	summary.CompletedAt = s.now()
	log.Info("Обогащение завершено",
		slog.Int("attempted", summary.Attempted),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("batches", summary.Batches),
		slog.Duration("duration", summary.CompletedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

// resolveConcurrency проверяет и нормализует размер пакета.
func (s *EnrichmentService) resolveConcurrency(concurrency int) (int, error) {
	switch {
	case concurrency < 0:
		return 0, fmt.Errorf("%w: concurrency должен быть >= 1, получено %d", ErrValidation, concurrency)
	case concurrency == 0:
		return s.cfg.DefaultConcurrency, nil
	case concurrency > s.cfg.MaxConcurrency:
		return s.cfg.MaxConcurrency, nil
	}
	return concurrency, nil
}

// resolve перечитывает кандидатов из хранилища и оставляет записи
// владельца в pending в порядке candidates (дубликаты отбрасываются).
func (s *EnrichmentService) resolve(ctx context.Context, ownerID string, candidates []uuid.UUID) ([]model.PropertyRecord, error) {
	if len(candidates) == 0 {
		records, err := s.store.ListByStatus(ctx, ownerID, model.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("%w: выборка записей в pending: %w", ErrPersistenceUnavailable, err)
		}
		return records, nil
	}

	sel := selection.New(candidates...)
	found, err := s.store.ListByIDs(ctx, ownerID, sel.IDs())
	if err != nil {
		return nil, fmt.Errorf("%w: выборка записей по ID: %w", ErrPersistenceUnavailable, err)
	}
	byID := make(map[uuid.UUID]model.PropertyRecord, len(found))
	pendingIDs := make([]uuid.UUID, 0, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
		if rec.Status == model.StatusPending {
			pendingIDs = append(pendingIDs, rec.ID)
		}
	}
	if dropped := sel.Retain(pendingIDs); dropped > 0 {
		s.logger.Debug("Кандидаты не в pending пропущены",
			slog.Int("dropped", dropped),
		)
	}

	records := make([]model.PropertyRecord, 0, sel.Len())
	for _, id := range sel.IDs() {
		records = append(records, byID[id])
	}
	return records, nil
}

// runBatch выполняет один пакет и ждёт завершения всех его записей.
// Lookup и сохранение работают на контексте без отмены: начатый пакет
// всегда доводится до конца.
func (s *EnrichmentService) runBatch(
	ctx context.Context, token uuid.UUID, batch []model.PropertyRecord, limit int, log *slog.Logger,
) (*batchStats, error) {
	start := time.Now()
	defer func() { enrichBatchDuration.Observe(time.Since(start).Seconds()) }()

	detached := context.WithoutCancel(ctx)
	stats := &batchStats{}

	// errgroup без WithContext: ошибка одной записи не отменяет соседние
	var g errgroup.Group
	g.SetLimit(limit)
	for _, rec := range batch {
		g.Go(func() error {
			return s.processOne(detached, token, rec, stats, log)
		})
	}
	err := g.Wait()
	return stats, err
}

// processOne захватывает запись, выполняет lookup и сохраняет исход.
// Возвращает ошибку только при сбое хранилища.
func (s *EnrichmentService) processOne(
	ctx context.Context, token uuid.UUID, rec model.PropertyRecord, stats *batchStats, log *slog.Logger,
) error {
	claimed, err := s.store.Claim(ctx, rec.ID, token, s.cfg.ClaimTTL)
	if err != nil {
		return fmt.Errorf("захват записи %s: %w", rec.ID, err)
	}
	if !claimed {
		log.Debug("Запись уже захвачена или не в pending",
			slog.String("record_id", rec.ID.String()),
		)
		return nil
	}

	var patch model.RecordPatch
	data, lookupErr := s.lookup.Lookup(ctx, rec.OriginalAddress)
	if lookupErr != nil {
		failure := &LookupFailedError{RecordID: rec.ID, Cause: lookupErr}
		log.Warn("Lookup не удался",
			slog.String("record_id", rec.ID.String()),
			slog.String("error", failure.Error()),
		)
		patch = model.ErrorPatch(lookupErr.Error(), s.now())
	} else {
		patch = model.ProcessedPatch(data, s.now())
	}

	ok, err := s.store.UpdateIfStatus(ctx, rec.ID, model.StatusPending, token, patch)
	if err != nil && repository.IsDataException(err) {
		// Хранилище отвергло значения исхода: запись переводится в error
		log.Warn("Исход отвергнут хранилищем, запись помечается ошибкой",
			slog.String("record_id", rec.ID.String()),
			slog.String("error", err.Error()),
		)
		patch = model.ErrorPatch(errUnstorableOutcome, s.now())
		ok, err = s.store.UpdateIfStatus(ctx, rec.ID, model.StatusPending, token, patch)
	}
	if err != nil {
		return fmt.Errorf("сохранение исхода записи %s: %w", rec.ID, err)
	}
	if !ok {
		// Захват перехвачен после истечения ClaimTTL
		enrichRecordsTotal.WithLabelValues("lost").Inc()
		log.Warn("Исход не сохранён: запись перехвачена другим запуском",
			slog.String("record_id", rec.ID.String()),
		)
		return nil
	}

	enrichRecordsTotal.WithLabelValues(string(patch.Status)).Inc()
	stats.add(patch.Status == model.StatusProcessed)
	return nil
}
