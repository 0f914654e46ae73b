package checkout

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/cart"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

type fakeProducts struct {
	products map[string]domain.ProductSnapshot
	readErr  error
}

func (f *fakeProducts) ReadProduct(_ context.Context, id string) (domain.ProductSnapshot, error) {
	if f.readErr != nil {
		return domain.ProductSnapshot{}, f.readErr
	}
	p, ok := f.products[id]
	if !ok {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	p.ReadAt = time.Now()
	return p, nil
}

type fakeCustomers struct {
	customers map[string]domain.CustomerSnapshot
}

func (f *fakeCustomers) ReadCustomer(_ context.Context, id string) (domain.CustomerSnapshot, error) {
	c, ok := f.customers[id]
	if !ok {
		return domain.CustomerSnapshot{}, domain.ErrCustomerNotFound
	}
	c.ReadAt = time.Now()
	return c, nil
}

type fakeSales struct {
	committed []domain.Sale
	commitErr error
	// lostReplyErr моделирует сбой после записи: коммит проходит, но
	// вызывающий получает ошибку. Срабатывает один раз.
	lostReplyErr error
}

func (f *fakeSales) CommitSale(_ context.Context, sale domain.Sale) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	for _, s := range f.committed {
		if s.ReceiptID == sale.ReceiptID {
			return domain.ErrDuplicateReceipt
		}
	}
	f.committed = append(f.committed, sale)
	if err := f.lostReplyErr; err != nil {
		f.lostReplyErr = nil
		return err
	}
	return nil
}

func (f *fakeSales) Get(_ context.Context, receiptID string) (domain.Sale, error) {
	for _, s := range f.committed {
		if s.ReceiptID == receiptID {
			return s, nil
		}
	}
	return domain.Sale{}, domain.ErrSaleNotFound
}

func (f *fakeSales) ListRecent(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit > len(f.committed) {
		limit = len(f.committed)
	}
	return f.committed[:limit], nil
}

type fakeOutbox struct {
	enqueued []domain.OutboxMessage
}

func (f *fakeOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	f.enqueued = append(f.enqueued, msg)
	return msg, nil
}

func (f *fakeOutbox) PullPending(int) ([]domain.OutboxMessage, error) { return nil, nil }
func (f *fakeOutbox) Stats() (domain.OutboxStats, error)             { return domain.OutboxStats{}, nil }
func (f *fakeOutbox) MarkSent(string) error                          { return nil }
func (f *fakeOutbox) MarkFailed(string) error                        { return nil }

type fakeJournal struct {
	events []domain.JournalEvent
}

func (f *fakeJournal) Append(event domain.JournalEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeJournal) List(receiptID string) ([]domain.JournalEvent, error) {
	out := make([]domain.JournalEvent, 0)
	for _, e := range f.events {
		if e.ReceiptID == receiptID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeJournal) hasType(eventType string) bool {
	for _, e := range f.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type finalizeEnv struct {
	products  *fakeProducts
	customers *fakeCustomers
	sales     *fakeSales
	outbox    *fakeOutbox
	journal   *fakeJournal
	finalizer *Finalizer
}

func newFinalizeEnv() *finalizeEnv {
	env := &finalizeEnv{
		products:  &fakeProducts{products: map[string]domain.ProductSnapshot{}},
		customers: &fakeCustomers{customers: map[string]domain.CustomerSnapshot{}},
		sales:     &fakeSales{},
		outbox:    &fakeOutbox{},
		journal:   &fakeJournal{},
	}
	env.finalizer = NewFinalizerWithoutMetrics(
		env.products, env.customers, env.sales, env.outbox, env.journal, testLogger(),
	)
	return env
}

func TestFinalize_EmptyCart(t *testing.T) {
	env := newFinalizeEnv()
	m := cart.NewMachine(500, testLogger())

	_, err := env.finalizer.Finalize(context.Background(), m, 0)
	if !errors.Is(err, domain.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if len(env.sales.committed) != 0 {
		t.Fatalf("expected no committed sales")
	}
}

// Сценарий из чека: 3 x 10000, плоская скидка заказа 1000, налог 5%.
func TestFinalize_CashSuccess(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 10000, StockQuantity: 12}

	m := cart.NewMachine(500, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 3); err != nil {
		t.Fatalf("add line: %v", err)
	}
	flat, err := domain.NewAmountDiscount(1000)
	if err != nil {
		t.Fatalf("new discount: %v", err)
	}
	if _, err := m.SetOrderDiscount(flat); err != nil {
		t.Fatalf("set order discount: %v", err)
	}

	sale, err := env.finalizer.Finalize(context.Background(), m, 31000)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if sale.GrandTotalMinor != 30450 {
		t.Fatalf("grand total: expected 30450, got %d", sale.GrandTotalMinor)
	}
	if sale.TenderedMinor != 31000 || sale.ChangeMinor != 550 {
		t.Fatalf("tendered/change: expected 31000/550, got %d/%d", sale.TenderedMinor, sale.ChangeMinor)
	}
	if sale.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("payment status: expected paid, got %s", sale.PaymentStatus)
	}
	if sale.ReceiptID == "" {
		t.Fatalf("expected non-empty receipt id")
	}
	if len(sale.Lines) != 1 || sale.Lines[0].Quantity != 3 || sale.Lines[0].TotalMinor != 30000 {
		t.Fatalf("unexpected sale lines: %+v", sale.Lines)
	}

	if len(env.sales.committed) != 1 {
		t.Fatalf("expected 1 committed sale, got %d", len(env.sales.committed))
	}
	if len(env.outbox.enqueued) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(env.outbox.enqueued))
	}
	if env.outbox.enqueued[0].EventType != "sale.completed" {
		t.Fatalf("outbox event type: expected sale.completed, got %s", env.outbox.enqueued[0].EventType)
	}
	if !env.journal.hasType("sale.finalized") {
		t.Fatalf("expected sale.finalized journal event")
	}
	if m.State() != cart.StateEmpty {
		t.Fatalf("expected cart cleared after successful finalize")
	}
}

func TestFinalize_CashInsufficientPayment(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 10000, StockQuantity: 12}

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 2); err != nil {
		t.Fatalf("add line: %v", err)
	}

	_, err := env.finalizer.Finalize(context.Background(), m, 15000)
	var payErr *domain.InsufficientPaymentError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected InsufficientPaymentError, got %v", err)
	}
	if payErr.RequiredMinor != 20000 || payErr.TenderedMinor != 15000 {
		t.Fatalf("unexpected payment error: %+v", payErr)
	}
	if !errors.Is(err, domain.ErrInsufficientPayment) {
		t.Fatalf("expected wrap of ErrInsufficientPayment")
	}

	// Корзина сохранена для повтора.
	if m.State() != cart.StateReady {
		t.Fatalf("expected cart preserved after rejection")
	}
	if len(env.sales.committed) != 0 {
		t.Fatalf("expected no committed sales")
	}
}

// Сток изменился между добавлением строки и финализацией: свежая
// перепроверка должна собрать все нехватки и оставить корзину нетронутой.
func TestFinalize_StockConflictCollectsAllShortfalls(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["a"] = domain.ProductSnapshot{ID: "a", UnitPriceMinor: 1000, StockQuantity: 10}
	env.products.products["b"] = domain.ProductSnapshot{ID: "b", UnitPriceMinor: 2000, StockQuantity: 10}

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["a"], 5); err != nil {
		t.Fatalf("add line a: %v", err)
	}
	if _, err := m.AddLine(env.products.products["b"], 4); err != nil {
		t.Fatalf("add line b: %v", err)
	}

	// Другой терминал успел списать сток.
	env.products.products["a"] = domain.ProductSnapshot{ID: "a", UnitPriceMinor: 1000, StockQuantity: 2}
	env.products.products["b"] = domain.ProductSnapshot{ID: "b", UnitPriceMinor: 2000, StockQuantity: 0}

	_, err := env.finalizer.Finalize(context.Background(), m, 100000)
	var conflict *domain.StockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StockConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(conflict.Conflicts))
	}
	if conflict.Conflicts[0].ProductID != "a" || conflict.Conflicts[0].Requested != 5 || conflict.Conflicts[0].Available != 2 {
		t.Fatalf("unexpected first conflict: %+v", conflict.Conflicts[0])
	}
	if conflict.Conflicts[1].ProductID != "b" || conflict.Conflicts[1].Available != 0 {
		t.Fatalf("unexpected second conflict: %+v", conflict.Conflicts[1])
	}

	if m.State() != cart.StateReady {
		t.Fatalf("expected cart preserved after stock conflict")
	}
	if len(env.sales.committed) != 0 {
		t.Fatalf("expected no committed sales")
	}
	if !env.journal.hasType("stock.conflict") {
		t.Fatalf("expected stock.conflict journal event")
	}
}

// Исчезнувший из каталога товар трактуется как нулевой сток.
func TestFinalize_VanishedProductBecomesConflict(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["ghost"] = domain.ProductSnapshot{ID: "ghost", UnitPriceMinor: 500, StockQuantity: 3}

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["ghost"], 2); err != nil {
		t.Fatalf("add line: %v", err)
	}
	delete(env.products.products, "ghost")

	_, err := env.finalizer.Finalize(context.Background(), m, 10000)
	var conflict *domain.StockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StockConflictError, got %v", err)
	}
	if conflict.Conflicts[0].Available != 0 || conflict.Conflicts[0].Requested != 2 {
		t.Fatalf("unexpected conflict: %+v", conflict.Conflicts[0])
	}
}

func TestFinalize_DeferredSuccess(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 10000, StockQuantity: 12}
	env.customers.customers["cust-1"] = domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000, OutstandingDuesMinor: 0}

	m := cart.NewMachine(500, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 2); err != nil {
		t.Fatalf("add line: %v", err)
	}
	customer := env.customers.customers["cust-1"]
	if _, err := m.SelectCustomer(&customer); err != nil {
		t.Fatalf("select customer: %v", err)
	}
	if _, err := m.SetTender(domain.TenderDeferred); err != nil {
		t.Fatalf("set tender: %v", err)
	}

	sale, err := env.finalizer.Finalize(context.Background(), m, 0)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sale.PaymentStatus != domain.PaymentStatusPendingDeferred {
		t.Fatalf("expected pending_deferred, got %s", sale.PaymentStatus)
	}
	if sale.CustomerID != "cust-1" {
		t.Fatalf("expected customer id on sale, got %q", sale.CustomerID)
	}
	if sale.TenderedMinor != 0 || sale.ChangeMinor != 0 {
		t.Fatalf("deferred sale must not carry tendered/change: %+v", sale)
	}
	if env.outbox.enqueued[0].EventType != "sale.deferred" {
		t.Fatalf("outbox event type: expected sale.deferred, got %s", env.outbox.enqueued[0].EventType)
	}
}

// Долг клиента вырос между выбором отложенной оплаты и финализацией:
// свежая кредитная перепроверка обязана отклонить попытку.
func TestFinalize_DeferredDeclinedOnFreshRead(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 10000, StockQuantity: 12}
	env.customers.customers["cust-1"] = domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000}

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 3); err != nil {
		t.Fatalf("add line: %v", err)
	}
	customer := env.customers.customers["cust-1"]
	if _, err := m.SelectCustomer(&customer); err != nil {
		t.Fatalf("select customer: %v", err)
	}
	if _, err := m.SetTender(domain.TenderDeferred); err != nil {
		t.Fatalf("set tender: %v", err)
	}

	// Параллельная продажа почти исчерпала лимит.
	env.customers.customers["cust-1"] = domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000, OutstandingDuesMinor: 90000}

	_, err := env.finalizer.Finalize(context.Background(), m, 0)
	var creditErr *domain.CreditError
	if !errors.As(err, &creditErr) {
		t.Fatalf("expected CreditError, got %v", err)
	}
	if creditErr.Reason != domain.CreditReasonInsufficientCredit {
		t.Fatalf("expected insufficient_credit, got %s", creditErr.Reason)
	}
	if creditErr.ShortfallMinor != 20000 {
		t.Fatalf("expected shortfall 20000, got %d", creditErr.ShortfallMinor)
	}
	if !errors.Is(err, domain.ErrInsufficientCredit) {
		t.Fatalf("expected wrap of ErrInsufficientCredit")
	}
	if m.State() != cart.StateReady {
		t.Fatalf("expected cart preserved after credit decline")
	}
	if len(env.sales.committed) != 0 {
		t.Fatalf("expected no committed sales")
	}
	if !env.journal.hasType("credit.declined") {
		t.Fatalf("expected credit.declined journal event")
	}
}

func TestFinalize_CommitFailureWrapsPersistence(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 1000, StockQuantity: 5}
	env.sales.commitErr = errors.New("connection reset")

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 1); err != nil {
		t.Fatalf("add line: %v", err)
	}

	_, err := env.finalizer.Finalize(context.Background(), m, 1000)
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	if m.State() != cart.StateReady {
		t.Fatalf("expected cart preserved after commit failure")
	}
}

// Коммит прошёл, но ответ потерялся (таймаут после записи). Повторная
// попытка предъявляет тот же номер чека: хранилище отклоняет дубликат,
// вторая продажа не создаётся и сток не списывается повторно.
func TestFinalize_RetryAfterIndeterminateCommitFailure(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 1000, StockQuantity: 5}
	env.sales.lostReplyErr = errors.New("i/o timeout")

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 2); err != nil {
		t.Fatalf("add line: %v", err)
	}

	_, err := env.finalizer.Finalize(context.Background(), m, 2000)
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure on first attempt, got %v", err)
	}
	if m.State() != cart.StateReady {
		t.Fatalf("expected cart preserved after commit failure")
	}
	if len(env.sales.committed) != 1 {
		t.Fatalf("expected 1 committed sale after lost reply, got %d", len(env.sales.committed))
	}

	_, err = env.finalizer.Finalize(context.Background(), m, 2000)
	if !errors.Is(err, domain.ErrDuplicateReceipt) {
		t.Fatalf("expected ErrDuplicateReceipt on retry, got %v", err)
	}
	if errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("duplicate receipt must not be reported as persistence failure")
	}
	if len(env.sales.committed) != 1 {
		t.Fatalf("retry must not commit a second sale, got %d", len(env.sales.committed))
	}
	if env.sales.committed[0].ReceiptID != m.ReceiptID() {
		t.Fatalf("retry must present the same receipt id")
	}
}

// Конфликт, пойманный самим хранилищем в момент коммита, отдаётся
// вызывающему как стоковый, не как ошибка персистентности.
func TestFinalize_CommitStockConflictPassedThrough(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 1000, StockQuantity: 5}
	env.sales.commitErr = &domain.StockConflictError{
		Conflicts: []domain.StockShortfall{{ProductID: "widget", Requested: 1, Available: 0}},
	}

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 1); err != nil {
		t.Fatalf("add line: %v", err)
	}

	_, err := env.finalizer.Finalize(context.Background(), m, 1000)
	if !domain.IsStockConflict(err) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	if errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("stock conflict must not be reported as persistence failure")
	}
}

func TestFinalize_CanceledContext(t *testing.T) {
	env := newFinalizeEnv()
	env.products.products["widget"] = domain.ProductSnapshot{ID: "widget", UnitPriceMinor: 1000, StockQuantity: 5}

	m := cart.NewMachine(0, testLogger())
	if _, err := m.AddLine(env.products.products["widget"], 1); err != nil {
		t.Fatalf("add line: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.finalizer.Finalize(ctx, m, 1000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(env.sales.committed) != 0 {
		t.Fatalf("expected no committed sales after cancellation")
	}
}
