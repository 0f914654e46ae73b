package kafka

import "time"

// EventType определяет тип события кассы
type EventType string

const (
	// События продаж
	EventTypeSaleCompleted EventType = "sale.completed"
	EventTypeSaleDeferred  EventType = "sale.deferred"

	// События стока
	EventTypeStockDecremented EventType = "stock.decremented"
	EventTypeStockChanged     EventType = "stock.changed"
	EventTypeStockConflict    EventType = "stock.conflict"
)

// Topics для Kafka
const (
	TopicSaleEvents      = "pos.sale.events"
	TopicStockEvents     = "pos.stock.events"
	TopicDeadLetterQueue = "pos.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// SaleEvent представляет событие завершённой продажи
type SaleEvent struct {
	EventType       EventType `json:"event_type"`
	ReceiptID       string    `json:"receipt_id"`
	CustomerID      string    `json:"customer_id,omitempty"`
	GrandTotalMinor int64     `json:"grand_total_minor"`
	Tender          string    `json:"tender"`
	Timestamp       time.Time `json:"timestamp"`
}

// StockEvent представляет изменение стока товара извне: другой терминал
// или правка администратора. Delta может быть отрицательной.
type StockEvent struct {
	EventType EventType `json:"event_type"`
	ProductID string    `json:"product_id"`
	Delta     int32     `json:"delta"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSaleEvent создает новое событие продажи
func NewSaleEvent(eventType EventType, receiptID, customerID string, grandTotalMinor int64, tender string) *SaleEvent {
	return &SaleEvent{
		EventType:       eventType,
		ReceiptID:       receiptID,
		CustomerID:      customerID,
		GrandTotalMinor: grandTotalMinor,
		Tender:          tender,
		Timestamp:       time.Now(),
	}
}
