// events.go — in-process рассылка событий прогресса обогащения.
package service

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/propertydash/internal/domain/model"
)

var progressDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pd_progress_events_dropped_total",
	Help: "События прогресса, не доставленные медленному подписчику",
})

// subscriberBuffer — размер буфера канала подписчика.
const subscriberBuffer = 32

// ProgressBroker рассылает BatchProgress подписчикам того же владельца.
// Реализует Notifier. Publish не блокируется: при переполненном буфере
// подписчика событие отбрасывается.
type ProgressBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan model.BatchProgress]struct{}
	logger *slog.Logger
}

// NewProgressBroker создаёт брокер событий прогресса.
func NewProgressBroker(logger *slog.Logger) *ProgressBroker {
	return &ProgressBroker{
		subs:   make(map[string]map[chan model.BatchProgress]struct{}),
		logger: logger.With(slog.String("component", "progress_broker")),
	}
}

// Subscribe подписывает на события владельца ownerID.
// Возвращённую функцию отписки нужно вызвать ровно один раз; после неё канал закрыт.
func (b *ProgressBroker) Subscribe(ownerID string) (<-chan model.BatchProgress, func()) {
	ch := make(chan model.BatchProgress, subscriberBuffer)

	b.mu.Lock()
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[chan model.BatchProgress]struct{})
	}
	b.subs[ownerID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[ownerID], ch)
			if len(b.subs[ownerID]) == 0 {
				delete(b.subs, ownerID)
			}
			close(ch)
		})
	}
}

// Publish отправляет событие всем подписчикам владельца события.
func (b *ProgressBroker) Publish(event model.BatchProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[event.OwnerID] {
		select {
		case ch <- event:
		default:
			progressDroppedTotal.Inc()
			b.logger.Warn("Событие прогресса отброшено: буфер подписчика переполнен",
				slog.String("run_id", event.RunID.String()),
				slog.Int("batch", event.Batch),
			)
		}
	}
}

// Subscribers возвращает количество подписчиков владельца.
func (b *ProgressBroker) Subscribers(ownerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[ownerID])
}
