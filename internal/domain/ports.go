package domain

import (
	"context"
	"time"
)

// ProductReader читает свежий снапшот товара из каталога.
// Реализуется исключённым из ядра слоем персистентности.
type ProductReader interface {
	ReadProduct(ctx context.Context, id string) (ProductSnapshot, error)
}

// CustomerReader читает свежий снапшот клиента.
type CustomerReader interface {
	ReadCustomer(ctx context.Context, id string) (CustomerSnapshot, error)
}

// StockAdjuster применяет внешние изменения стока (другие терминалы,
// правки администратора). Возвращает новое значение стока; сток не
// опускается ниже нуля.
type StockAdjuster interface {
	AdjustStock(ctx context.Context, productID string, delta int32) (int32, error)
}

// SaleRepository фиксирует продажи. CommitSale — единый атомарный блок:
// запись продажи с позициями, списание стока по каждой строке и, для
// отложенной оплаты, увеличение долга клиента либо выполняются целиком,
// либо не наблюдаемы вовсе. Повторный коммит того же ReceiptID
// отклоняется с ErrDuplicateReceipt.
type SaleRepository interface {
	CommitSale(ctx context.Context, sale Sale) error
	Get(ctx context.Context, receiptID string) (Sale, error)
	ListRecent(ctx context.Context, limit int) ([]Sale, error)
}

// OutboxRepository сохраняет события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher публикует события из transactional outbox.
// Должен быть идемпотентным.
type OutboxPublisher interface {
	Publish(event OutboxMessage) error
}

// JournalRepository хранит журнал событий кассы по чекам.
type JournalRepository interface {
	Append(event JournalEvent) error
	List(receiptID string) ([]JournalEvent, error)
}

// OutboxMessage хранит данные публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущий backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// JournalEvent — одно событие журнала кассы.
type JournalEvent struct {
	ID        string
	ReceiptID string
	Type      string
	Detail    string
	Occurred  time.Time
}
