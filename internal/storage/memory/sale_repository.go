package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// saleRepositoryInMemory фиксирует продажи поверх in-memory каталога и
// справочника клиентов. CommitSale повторяет транзакционную семантику
// postgres-слоя: валидация всех эффектов, затем применение целиком.
type saleRepositoryInMemory struct {
	mu        sync.RWMutex
	sales     map[string]domain.Sale
	order     []string
	products  *productRepositoryInMemory
	customers *customerRepositoryInMemory
}

// NewSaleRepository создаёт in-memory репозиторий продаж.
func NewSaleRepository(products *productRepositoryInMemory, customers *customerRepositoryInMemory) *saleRepositoryInMemory {
	return &saleRepositoryInMemory{
		sales:     make(map[string]domain.Sale),
		products:  products,
		customers: customers,
	}
}

// CommitSale атомарно фиксирует продажу: запись чека, списание стока по
// каждой строке и, для отложенной оплаты, увеличение долга клиента.
// Повторный коммит того же ReceiptID отклоняется ErrDuplicateReceipt,
// при стоковом конфликте ни один эффект не применяется.
func (r *saleRepositoryInMemory) CommitSale(_ context.Context, sale domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sales[sale.ReceiptID]; exists {
		return domain.ErrDuplicateReceipt
	}

	// Проверяем клиента до списания стока: после DecrementBatch откат невозможен.
	if sale.Tender == domain.TenderDeferred {
		if _, err := r.customers.ReadCustomer(context.Background(), sale.CustomerID); err != nil {
			return err
		}
	}

	if err := r.products.DecrementBatch(sale.Lines); err != nil {
		return err
	}

	if sale.Tender == domain.TenderDeferred {
		if err := r.customers.AddDues(sale.CustomerID, sale.GrandTotalMinor); err != nil {
			return err
		}
	}

	r.sales[sale.ReceiptID] = sale
	r.order = append(r.order, sale.ReceiptID)
	return nil
}

// Get возвращает продажу по номеру чека.
func (r *saleRepositoryInMemory) Get(_ context.Context, receiptID string) (domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.sales[receiptID]
	if !ok {
		return domain.Sale{}, domain.ErrSaleNotFound
	}
	return sale, nil
}

// ListRecent возвращает последние продажи, новые первыми.
func (r *saleRepositoryInMemory) ListRecent(_ context.Context, limit int) ([]domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	result := make([]domain.Sale, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.sales[r.order[i]])
	}
	return result, nil
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)
