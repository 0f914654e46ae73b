// Пакет memory содержит in-memory реализации портов персистентности
// для локальной разработки и тестов. Семантика повторяет postgres-слой,
// включая атомарность CommitSale.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// productRepositoryInMemory — простая in-memory реализация каталога товаров.
type productRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ProductSnapshot
}

// NewProductRepository возвращает in-memory каталог, заполненный seed-товарами.
func NewProductRepository(seed ...domain.ProductSnapshot) *productRepositoryInMemory {
	items := make(map[string]domain.ProductSnapshot, len(seed))
	for _, p := range seed {
		items[p.ID] = p
	}
	return &productRepositoryInMemory{items: items}
}

// Upsert сохраняет или перезаписывает товар.
func (r *productRepositoryInMemory) Upsert(p domain.ProductSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = p
}

// ReadProduct возвращает свежий снапшот товара с отметкой времени чтения.
func (r *productRepositoryInMemory) ReadProduct(_ context.Context, id string) (domain.ProductSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	p.ReadAt = time.Now().UTC()
	return p, nil
}

// AdjustStock применяет внешнее изменение стока. Сток не опускается ниже
// нуля; возвращается новое значение.
func (r *productRepositoryInMemory) AdjustStock(_ context.Context, productID string, delta int32) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	p.StockQuantity += delta
	if p.StockQuantity < 0 {
		p.StockQuantity = 0
	}
	r.items[productID] = p
	return p.StockQuantity, nil
}

// DecrementBatch атомарно списывает сток по всем строкам продажи:
// сначала валидация каждой строки под одной блокировкой, затем
// применение. При любой нехватке ни одна строка не списывается.
func (r *productRepositoryInMemory) DecrementBatch(lines []domain.SaleLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conflicts := make([]domain.StockShortfall, 0)
	for _, line := range lines {
		p, ok := r.items[line.ProductID]
		available := int32(0)
		if ok && p.StockQuantity > 0 {
			available = p.StockQuantity
		}
		if !ok || available < line.Quantity {
			conflicts = append(conflicts, domain.StockShortfall{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: available,
			})
		}
	}
	if len(conflicts) > 0 {
		return &domain.StockConflictError{Conflicts: conflicts}
	}

	for _, line := range lines {
		p := r.items[line.ProductID]
		p.StockQuantity -= line.Quantity
		r.items[line.ProductID] = p
	}
	return nil
}

var _ domain.ProductReader = (*productRepositoryInMemory)(nil)
var _ domain.StockAdjuster = (*productRepositoryInMemory)(nil)
