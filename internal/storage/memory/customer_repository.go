package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// customerRepositoryInMemory — простая in-memory реализация справочника клиентов.
type customerRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.CustomerSnapshot
}

// NewCustomerRepository возвращает in-memory справочник, заполненный seed-клиентами.
func NewCustomerRepository(seed ...domain.CustomerSnapshot) *customerRepositoryInMemory {
	items := make(map[string]domain.CustomerSnapshot, len(seed))
	for _, c := range seed {
		items[c.ID] = c
	}
	return &customerRepositoryInMemory{items: items}
}

// Upsert сохраняет или перезаписывает клиента.
func (r *customerRepositoryInMemory) Upsert(c domain.CustomerSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = c
}

// ReadCustomer возвращает свежий снапшот клиента с отметкой времени чтения.
func (r *customerRepositoryInMemory) ReadCustomer(_ context.Context, id string) (domain.CustomerSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return domain.CustomerSnapshot{}, domain.ErrCustomerNotFound
	}
	c.ReadAt = time.Now().UTC()
	return c, nil
}

// AddDues увеличивает задолженность клиента на deltaMinor (отложенная продажа).
func (r *customerRepositoryInMemory) AddDues(id string, deltaMinor int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok {
		return domain.ErrCustomerNotFound
	}
	c.OutstandingDuesMinor += deltaMinor
	r.items[id] = c
	return nil
}

var _ domain.CustomerReader = (*customerRepositoryInMemory)(nil)
