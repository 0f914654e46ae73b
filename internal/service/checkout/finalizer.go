// Пакет checkout реализует финализатор продажи: перевод валидной корзины
// в неизменяемую запись Sale. Снапшоты корзины не считаются свежими:
// перед коммитом сток и кредит перечитываются заново (read-then-decide),
// а сам коммит выполняется строго атомарно слоем персистентности.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/cart"
	"github.com/vladislavdragonenkov/pos/internal/service/guard"
	"github.com/vladislavdragonenkov/pos/internal/service/pricing"
)

// Finalizer превращает корзину в продажу. Предусловия проверяются в
// фиксированном порядке, каждое прерывает попытку: непустая корзина,
// свежая кредитная проверка для отложенной оплаты, достаточность
// наличных, свежая стоковая проверка по каждой строке.
type Finalizer struct {
	products  domain.ProductReader
	customers domain.CustomerReader
	sales     domain.SaleRepository
	outbox    domain.OutboxRepository
	journal   domain.JournalRepository
	logger    *log.Entry
	metrics   *metrics.CheckoutMetrics
}

// NewFinalizer создаёт рабочий экземпляр финализатора.
func NewFinalizer(
	products domain.ProductReader,
	customers domain.CustomerReader,
	sales domain.SaleRepository,
	outbox domain.OutboxRepository,
	journal domain.JournalRepository,
	logger *log.Entry,
) *Finalizer {
	f := newFinalizer(products, customers, sales, outbox, journal, logger)
	f.metrics = metrics.NewCheckoutMetrics()
	return f
}

// NewFinalizerWithoutMetrics создаёт финализатор без метрик (для тестов).
func NewFinalizerWithoutMetrics(
	products domain.ProductReader,
	customers domain.CustomerReader,
	sales domain.SaleRepository,
	outbox domain.OutboxRepository,
	journal domain.JournalRepository,
	logger *log.Entry,
) *Finalizer {
	return newFinalizer(products, customers, sales, outbox, journal, logger)
}

func newFinalizer(
	products domain.ProductReader,
	customers domain.CustomerReader,
	sales domain.SaleRepository,
	outbox domain.OutboxRepository,
	journal domain.JournalRepository,
	logger *log.Entry,
) *Finalizer {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Finalizer{
		products:  products,
		customers: customers,
		sales:     sales,
		outbox:    outbox,
		journal:   journal,
		logger:    logger,
	}
}

// Finalize выполняет попытку финализации корзины машины m.
// tenderedMinor — внесённые наличные; учитывается только для cash.
//
// Любая отклонённая или проваленная попытка оставляет корзину ровно в
// прежнем состоянии, чтобы оператор мог поправить её и повторить без
// повторного ввода строк. Корзина сбрасывается только после успешного
// коммита. Вызов можно отменить контекстом до начала коммита; начатый
// коммит выполняется до конца либо возвращает жёсткую ошибку.
func (f *Finalizer) Finalize(ctx context.Context, m *cart.Machine, tenderedMinor int64) (domain.Sale, error) {
	start := time.Now()
	if f.metrics != nil {
		f.metrics.RecordFinalizeStarted()
		defer func() {
			f.metrics.RecordFinalizeDuration(time.Since(start))
		}()
	}

	snapshot := m.Cart()
	totals := m.Totals()

	// Номер чека живёт в машине до успешного коммита или Clear: повтор
	// после неопределённого сбоя предъявляет хранилищу тот же номер.
	// При отказе он же служит ключом журнала.
	receiptID := m.ReceiptID()
	logger := f.logger.WithField("receipt_id", receiptID)

	if snapshot.IsEmpty() {
		f.recordFailure()
		return domain.Sale{}, domain.ErrEmptyCart
	}

	if snapshot.Tender == domain.TenderDeferred {
		if err := f.recheckCredit(ctx, snapshot, totals, receiptID, logger); err != nil {
			return domain.Sale{}, err
		}
	}

	var changeMinor int64
	if snapshot.Tender == domain.TenderCash {
		if tenderedMinor < totals.GrandTotalMinor {
			f.recordFailure()
			return domain.Sale{}, &domain.InsufficientPaymentError{
				RequiredMinor: totals.GrandTotalMinor,
				TenderedMinor: tenderedMinor,
			}
		}
		changeMinor = tenderedMinor - totals.GrandTotalMinor
	}

	if err := f.recheckStock(ctx, snapshot, receiptID, logger); err != nil {
		return domain.Sale{}, err
	}

	// Последняя точка отмены: дальше коммит идёт до конца.
	if err := ctx.Err(); err != nil {
		f.recordFailure()
		return domain.Sale{}, fmt.Errorf("finalize canceled before commit: %w", err)
	}

	sale := buildSale(receiptID, snapshot, totals, tenderedMinor, changeMinor)

	if err := f.sales.CommitSale(ctx, sale); err != nil {
		f.recordFailure()
		if domain.IsStockConflict(err) {
			// Гонка между перепроверкой и коммитом: хранилище вернуло
			// актуальные нехватки, отдаём их вызывающему как есть.
			var conflict *domain.StockConflictError
			if errors.As(err, &conflict) {
				f.journalConflict(receiptID, conflict)
			}
			if f.metrics != nil {
				f.metrics.RecordStockConflict()
			}
			return domain.Sale{}, err
		}
		if errors.Is(err, domain.ErrDuplicateReceipt) {
			// Чек с этим номером уже закоммичен: предыдущая попытка
			// прошла, а ответ потерялся. Продажа не дублируется, сток не
			// списывается повторно; корзина остаётся вызывающей стороне.
			logger.Warn("duplicate receipt id, sale already committed")
			return domain.Sale{}, err
		}
		logger.WithError(err).Error("sale commit failed")
		return domain.Sale{}, fmt.Errorf("%w: %v", domain.ErrPersistenceFailure, err)
	}

	f.emitSaleEvents(sale, logger)
	if f.metrics != nil {
		f.metrics.RecordFinalizeCompleted()
	}
	logger.WithFields(log.Fields{
		"grand_total_minor": sale.GrandTotalMinor,
		"tender":            string(sale.Tender),
		"lines":             len(sale.Lines),
	}).Info("sale finalized")

	// Сброс корзины — только после успешного коммита.
	m.Clear()
	return sale, nil
}

// recheckCredit перечитывает клиента и повторяет кредитную проверку
// по свежему снапшоту непосредственно перед коммитом.
func (f *Finalizer) recheckCredit(ctx context.Context, snapshot domain.Cart, totals domain.Totals, receiptID string, logger *log.Entry) error {
	if snapshot.Customer == nil {
		f.recordCreditDecline()
		return &domain.CreditError{Reason: domain.CreditReasonNoCustomer}
	}

	fresh, err := f.customers.ReadCustomer(ctx, snapshot.Customer.ID)
	if err != nil {
		f.recordFailure()
		return fmt.Errorf("%w: read customer %s: %v", domain.ErrPersistenceFailure, snapshot.Customer.ID, err)
	}

	if v := guard.CheckCredit(&fresh, totals.GrandTotalMinor); !v.Eligible {
		f.recordCreditDecline()
		f.appendJournal(domain.JournalEvent{
			ReceiptID: receiptID,
			Type:      "credit.declined",
			Detail:    fmt.Sprintf("customer %s short by %d", fresh.ID, v.ShortfallMinor),
			Occurred:  time.Now().UTC(),
		})
		logger.WithFields(log.Fields{
			"customer_id":     fresh.ID,
			"shortfall_minor": v.ShortfallMinor,
		}).Warn("deferred tender declined at finalize")
		return v.Err()
	}
	return nil
}

// recheckStock перечитывает товары всех строк и собирает полный список
// нехваток. Финализатор никогда не уменьшает продажу сам: при конфликте
// корзина не меняется, решение остаётся за вызывающей стороной.
func (f *Finalizer) recheckStock(ctx context.Context, snapshot domain.Cart, receiptID string, logger *log.Entry) error {
	conflicts := make([]domain.StockShortfall, 0)
	for _, line := range snapshot.Lines {
		fresh, err := f.products.ReadProduct(ctx, line.Product.ID)
		if err != nil {
			if errors.Is(err, domain.ErrProductNotFound) {
				// Товар исчез из каталога: для оператора это нулевой сток.
				conflicts = append(conflicts, domain.StockShortfall{
					ProductID: line.Product.ID,
					Requested: line.Quantity,
					Available: 0,
				})
				continue
			}
			f.recordFailure()
			return fmt.Errorf("%w: read product %s: %v", domain.ErrPersistenceFailure, line.Product.ID, err)
		}
		if v := guard.CheckStock(fresh, line.Quantity); !v.OK {
			conflicts = append(conflicts, v.Shortfall(line.Product.ID, line.Quantity))
		}
	}

	if len(conflicts) == 0 {
		return nil
	}

	conflict := &domain.StockConflictError{Conflicts: conflicts}
	f.recordFailure()
	if f.metrics != nil {
		f.metrics.RecordStockConflict()
	}
	f.journalConflict(receiptID, conflict)
	logger.WithField("conflicts", len(conflicts)).Warn("stock re-check failed at finalize")
	return conflict
}

func buildSale(receiptID string, snapshot domain.Cart, totals domain.Totals, tenderedMinor, changeMinor int64) domain.Sale {
	lines := make([]domain.SaleLine, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		lines = append(lines, domain.SaleLine{
			ProductID:      line.Product.ID,
			Quantity:       line.Quantity,
			UnitPriceMinor: line.Product.UnitPriceMinor,
			DiscountMinor:  pricing.LineDiscount(line),
			TotalMinor:     pricing.LineTotal(line),
		})
	}

	status := domain.PaymentStatusPaid
	if snapshot.Tender == domain.TenderDeferred {
		status = domain.PaymentStatusPendingDeferred
	}

	sale := domain.Sale{
		ReceiptID:       receiptID,
		Lines:           lines,
		SubtotalMinor:   totals.SubtotalMinor,
		DiscountMinor:   totals.OrderDiscountMinor,
		TaxMinor:        totals.TaxMinor,
		GrandTotalMinor: totals.GrandTotalMinor,
		Tender:          snapshot.Tender,
		PaymentStatus:   status,
		CreatedAt:       time.Now().UTC(),
	}
	if snapshot.Customer != nil {
		sale.CustomerID = snapshot.Customer.ID
	}
	if snapshot.Tender == domain.TenderCash {
		sale.TenderedMinor = tenderedMinor
		sale.ChangeMinor = changeMinor
	}
	return sale
}

// emitSaleEvents пишет событие продажи в outbox и журнал. Ошибки здесь
// не отменяют уже закоммиченную продажу и только логируются.
func (f *Finalizer) emitSaleEvents(sale domain.Sale, logger *log.Entry) {
	eventType := kafka.EventTypeSaleCompleted
	if sale.Tender == domain.TenderDeferred {
		eventType = kafka.EventTypeSaleDeferred
	}

	payload, err := json.Marshal(kafka.NewSaleEvent(eventType, sale.ReceiptID, sale.CustomerID, sale.GrandTotalMinor, string(sale.Tender)))
	if err != nil {
		logger.WithError(err).Error("marshal sale event failed")
	} else if f.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "sale",
			AggregateID:   sale.ReceiptID,
			EventType:     string(eventType),
			Payload:       payload,
		}
		if _, err := f.outbox.Enqueue(msg); err != nil {
			logger.WithError(err).Error("enqueue sale event failed")
		} else if f.metrics != nil {
			f.metrics.RecordOutboxEvent()
		}
	}

	f.appendJournal(domain.JournalEvent{
		ReceiptID: sale.ReceiptID,
		Type:      "sale.finalized",
		Detail:    fmt.Sprintf("%s %d minor", sale.Tender, sale.GrandTotalMinor),
		Occurred:  sale.CreatedAt,
	})
}

func (f *Finalizer) journalConflict(receiptID string, conflict *domain.StockConflictError) {
	f.appendJournal(domain.JournalEvent{
		ReceiptID: receiptID,
		Type:      "stock.conflict",
		Detail:    conflict.Error(),
		Occurred:  time.Now().UTC(),
	})
}

func (f *Finalizer) appendJournal(event domain.JournalEvent) {
	if f.journal == nil {
		return
	}
	if err := f.journal.Append(event); err != nil {
		f.logger.WithError(err).WithField("receipt_id", event.ReceiptID).Warn("append journal event failed")
	} else if f.metrics != nil {
		f.metrics.RecordJournalEvent()
	}
}

func (f *Finalizer) recordFailure() {
	if f.metrics != nil {
		f.metrics.RecordFinalizeFailed()
	}
}

func (f *Finalizer) recordCreditDecline() {
	f.recordFailure()
	if f.metrics != nil {
		f.metrics.RecordCreditDecline()
	}
}
