package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// journalRepositoryInMemory хранит журнал событий кассы в памяти.
type journalRepositoryInMemory struct {
	mu     sync.RWMutex
	events []domain.JournalEvent
}

// NewJournalRepository создаёт in-memory журнал кассы.
func NewJournalRepository() *journalRepositoryInMemory {
	return &journalRepositoryInMemory{}
}

// Append дописывает событие в журнал, присваивая идентификатор и время,
// если они не заданы.
func (r *journalRepositoryInMemory) Append(event domain.JournalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return nil
}

// List возвращает события по чеку в порядке записи.
func (r *journalRepositoryInMemory) List(receiptID string) ([]domain.JournalEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.JournalEvent, 0)
	for _, e := range r.events {
		if e.ReceiptID == receiptID {
			result = append(result, e)
		}
	}
	return result, nil
}

var _ domain.JournalRepository = (*journalRepositoryInMemory)(nil)
