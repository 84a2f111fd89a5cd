package memory

import (
	"sort"
	"sync"

	"github.com/afmurillo/checkout-payments/internal/domain"
)

// timelineRepositoryInMemory хранит события в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в хранилище.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.TransactionID] = append(r.events[event.TransactionID], event)

	sort.Slice(r.events[event.TransactionID], func(i, j int) bool {
		return r.events[event.TransactionID][i].Occurred.Before(r.events[event.TransactionID][j].Occurred)
	})

	return nil
}

// List возвращает события транзакции в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(transactionID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[transactionID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
