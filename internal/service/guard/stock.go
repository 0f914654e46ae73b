// Пакет guard содержит синхронные проверки корзины над уже прочитанными
// снапшотами: стоковую и кредитную. Проверки чистые, без I/O; свежесть
// снапшотов — ответственность вызывающей стороны.
package guard

import "github.com/vladislavdragonenkov/pos/internal/domain"

// StockVerdict — результат стоковой проверки. При нехватке стока
// MaxAvailable несёт максимум, который оператор может взять; guard
// никогда не уменьшает корзину сам — решение остаётся за вызывающим.
type StockVerdict struct {
	OK bool
	// MaxAvailable заполняется только при отказе.
	MaxAvailable int32
}

// CheckStock сверяет запрошенное количество с доступным стоком снапшота.
// Нулевой или отрицательный сток всегда даёт отказ с MaxAvailable=0.
func CheckStock(product domain.ProductSnapshot, requested int32) StockVerdict {
	available := product.StockQuantity
	if available < 0 {
		available = 0
	}
	if requested <= available {
		return StockVerdict{OK: true}
	}
	return StockVerdict{OK: false, MaxAvailable: available}
}

// Shortfall строит описание нехватки для вердикта-отказа.
func (v StockVerdict) Shortfall(productID string, requested int32) domain.StockShortfall {
	return domain.StockShortfall{
		ProductID: productID,
		Requested: requested,
		Available: v.MaxAvailable,
	}
}
