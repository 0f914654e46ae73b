package domain

import "time"

// PaymentStatus описывает статус оплаты зафиксированной продажи.
type PaymentStatus string

const (
	// PaymentStatusPaid — продажа оплачена (наличные или карта).
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusPendingDeferred — сумма отнесена на долг клиента.
	PaymentStatusPendingDeferred PaymentStatus = "pending_deferred"
)

// SaleLine — зафиксированная позиция продажи. Все значения — плоские
// числа, не ссылки на каталог: история не должна меняться задним числом.
type SaleLine struct {
	ProductID      string
	Quantity       int32
	UnitPriceMinor int64
	// DiscountMinor — применённая скидка строки в минимальных единицах.
	DiscountMinor int64
	// TotalMinor — итог строки после скидки.
	TotalMinor int64
}

// Sale — неизменяемая запись завершённой продажи. Создаётся только
// финализатором; после создания ядро её не мутирует.
type Sale struct {
	// ReceiptID — сгенерированный идентификатор чека/инвойса.
	ReceiptID string
	// CustomerID пуст для покупателя без карточки.
	CustomerID         string
	Lines              []SaleLine
	SubtotalMinor      int64
	DiscountMinor      int64
	TaxMinor           int64
	GrandTotalMinor    int64
	Tender             TenderMethod
	PaymentStatus      PaymentStatus
	// TenderedMinor и ChangeMinor заполняются только для наличных.
	TenderedMinor int64
	ChangeMinor   int64
	CreatedAt     time.Time
}
