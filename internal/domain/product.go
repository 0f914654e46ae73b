package domain

import "time"

// ProductSnapshot — точка-во-времени чтение товара из каталога.
// Ядро никогда не мутирует товар напрямую: списание стока происходит
// только внутри атомарного коммита продажи.
type ProductSnapshot struct {
	// ID — внешний идентификатор товара в каталоге.
	ID string
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	// StockQuantity — доступный сток на момент чтения; инвариант: >= 0.
	StockQuantity int32
	// ReadAt фиксирует момент снятия снапшота.
	ReadAt time.Time
}
