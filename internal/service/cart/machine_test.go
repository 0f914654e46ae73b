package cart

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func product(id string, priceMinor int64, stock int32) domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: id, UnitPriceMinor: priceMinor, StockQuantity: stock}
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	return NewMachine(500, nil) // 5% налог
}

func TestMachine_AddLine_MergesByProduct(t *testing.T) {
	m := newTestMachine(t)

	if _, err := m.AddLine(product("sku-1", 10000, 10), 2); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := m.AddLine(product("sku-1", 10000, 10), 3); err != nil {
		t.Fatalf("second add: %v", err)
	}

	c := m.Cart()
	if len(c.Lines) != 1 {
		t.Fatalf("expected one merged line, got %d", len(c.Lines))
	}
	if c.Lines[0].Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", c.Lines[0].Quantity)
	}
}

func TestMachine_AddLine_GuardRunsOnNewTotalQuantity(t *testing.T) {
	m := newTestMachine(t)

	if _, err := m.AddLine(product("sku-1", 10000, 5), 4); err != nil {
		t.Fatalf("first add: %v", err)
	}

	// 4 уже в корзине, добавление ещё 3 превышает сток 5.
	_, err := m.AddLine(product("sku-1", 10000, 5), 3)
	var conflict *domain.StockConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StockConflictError, got %v", err)
	}
	if conflict.Conflicts[0].Requested != 7 || conflict.Conflicts[0].Available != 5 {
		t.Fatalf("unexpected shortfall: %+v", conflict.Conflicts[0])
	}

	if got := m.Cart().Lines[0].Quantity; got != 4 {
		t.Fatalf("rejected add must not mutate cart, quantity=%d", got)
	}
}

func TestMachine_AddLine_InvalidQuantity(t *testing.T) {
	m := newTestMachine(t)

	for _, qty := range []int32{0, -1} {
		if _, err := m.AddLine(product("sku-1", 10000, 10), qty); !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("qty=%d: expected ErrInvalidQuantity, got %v", qty, err)
		}
	}
	if m.State() != StateEmpty {
		t.Fatal("rejected adds must leave the cart empty")
	}
}

// Сумма количеств не должна переполнять int32: отрицательный итог
// проскочил бы стоковую проверку.
func TestMachine_AddLine_QuantityOverflowRejected(t *testing.T) {
	m := newTestMachine(t)

	if _, err := m.AddLine(product("sku-1", 100, math.MaxInt32), math.MaxInt32-1); err != nil {
		t.Fatalf("first add: %v", err)
	}

	if _, err := m.AddLine(product("sku-1", 100, math.MaxInt32), 2); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity on overflow, got %v", err)
	}
	if got := m.Cart().Lines[0].Quantity; got != math.MaxInt32-1 {
		t.Fatalf("rejected add must not mutate cart, quantity=%d", got)
	}
}

func TestMachine_AddLine_ZeroStockRejected(t *testing.T) {
	m := newTestMachine(t)

	_, err := m.AddLine(product("sku-1", 10000, 0), 1)
	if !domain.IsStockConflict(err) {
		t.Fatalf("expected stock conflict, got %v", err)
	}
	if m.State() != StateEmpty {
		t.Fatal("cart must stay empty after rejected add")
	}
}

func TestMachine_SetQuantityZero_EquivalentToRemove(t *testing.T) {
	left := newTestMachine(t)
	right := newTestMachine(t)

	for _, m := range []*Machine{left, right} {
		if _, err := m.AddLine(product("sku-1", 10000, 10), 2); err != nil {
			t.Fatalf("add: %v", err)
		}
		if _, err := m.AddLine(product("sku-2", 5000, 10), 1); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if _, err := left.SetQuantity("sku-1", 0); err != nil {
		t.Fatalf("set quantity 0: %v", err)
	}
	if _, err := right.RemoveLine("sku-1"); err != nil {
		t.Fatalf("remove line: %v", err)
	}

	if !reflect.DeepEqual(left.Cart(), right.Cart()) {
		t.Fatal("setQuantity(id, 0) must leave the same cart state as removeLine(id)")
	}
	if !reflect.DeepEqual(left.Totals(), right.Totals()) {
		t.Fatal("totals must match after equivalent mutations")
	}
}

func TestMachine_SetQuantity_NegativeRejected(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.AddLine(product("sku-1", 10000, 10), 2); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := m.SetQuantity("sku-1", -1); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if got := m.Cart().Lines[0].Quantity; got != 2 {
		t.Fatalf("cart must be unchanged, quantity=%d", got)
	}
}

func TestMachine_RemoveLine_Idempotent(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.AddLine(product("sku-1", 10000, 10), 2); err != nil {
		t.Fatalf("add: %v", err)
	}

	before := m.Cart()
	beforeTotals := m.Totals()

	if _, err := m.RemoveLine("absent"); err != nil {
		t.Fatalf("remove absent line must be a no-op, got %v", err)
	}

	if !reflect.DeepEqual(before, m.Cart()) || !reflect.DeepEqual(beforeTotals, m.Totals()) {
		t.Fatal("removing an absent line must not change cart state")
	}
}

func TestMachine_SetLineDiscount_InvalidRetainsPrior(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.AddLine(product("sku-1", 10000, 10), 2); err != nil {
		t.Fatalf("add: %v", err)
	}

	ten, _ := domain.NewPercentageDiscount(1000)
	if _, err := m.SetLineDiscount("sku-1", ten); err != nil {
		t.Fatalf("set discount: %v", err)
	}

	bad := domain.Discount{Kind: domain.DiscountPercentage, PercentBP: 20000}
	if _, err := m.SetLineDiscount("sku-1", bad); !errors.Is(err, domain.ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got %v", err)
	}

	line := m.Cart().Lines[0]
	if line.Discount == nil || line.Discount.PercentBP != 1000 {
		t.Fatalf("prior discount must be retained, got %+v", line.Discount)
	}
}

func TestMachine_SetOrderDiscount_NegativeAmountRejected(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.AddLine(product("sku-1", 10000, 10), 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	bad := domain.Discount{Kind: domain.DiscountAmount, AmountMinor: -100}
	if _, err := m.SetOrderDiscount(bad); !errors.Is(err, domain.ErrInvalidDiscount) {
		t.Fatalf("expected ErrInvalidDiscount, got %v", err)
	}
	if m.Cart().OrderDiscount != nil {
		t.Fatal("rejected order discount must not be stored")
	}
}

func TestMachine_SetTender_DeferredRequiresCustomer(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.AddLine(product("sku-1", 10000, 10), 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := m.SetTender(domain.TenderDeferred)
	if !errors.Is(err, domain.ErrNoCustomer) {
		t.Fatalf("expected ErrNoCustomer, got %v", err)
	}
	if m.Cart().Tender != domain.TenderCash {
		t.Fatal("tender must be unchanged after rejection")
	}
}

func TestMachine_SetTender_UnknownMethod(t *testing.T) {
	m := newTestMachine(t)
	if _, err := m.SetTender("crypto"); !errors.Is(err, domain.ErrInvalidTender) {
		t.Fatalf("expected ErrInvalidTender, got %v", err)
	}
}

// Регрессия перепроверки кредита: клиент с доступным кредитом 1000.00,
// отложенная оплата выбрана успешно, затем корзина дорастает до суммы
// выше лимита — оплата обязана сброситься на наличные, и сброс должен
// быть виден вызывающей стороне.
func TestMachine_DeferredTenderAutoDowngradesWhenTotalGrows(t *testing.T) {
	m := NewMachine(0, nil)
	customer := &domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000}

	if _, err := m.AddLine(product("sku-1", 40000, 10), 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.SelectCustomer(customer); err != nil {
		t.Fatalf("select customer: %v", err)
	}
	if _, err := m.SetTender(domain.TenderDeferred); err != nil {
		t.Fatalf("set deferred tender: %v", err)
	}

	res, err := m.AddLine(product("sku-2", 70000, 10), 1)
	if err != nil {
		t.Fatalf("add over limit: %v", err)
	}
	if !res.TenderDowngraded {
		t.Fatal("expected observable tender downgrade")
	}
	if m.Cart().Tender != domain.TenderCash {
		t.Fatalf("expected cash after downgrade, got %s", m.Cart().Tender)
	}
}

func TestMachine_SelectCustomerNil_DowngradesDeferred(t *testing.T) {
	m := NewMachine(0, nil)
	customer := &domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000}

	if _, err := m.AddLine(product("sku-1", 40000, 10), 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.SelectCustomer(customer); err != nil {
		t.Fatalf("select customer: %v", err)
	}
	if _, err := m.SetTender(domain.TenderDeferred); err != nil {
		t.Fatalf("set tender: %v", err)
	}

	res, err := m.SelectCustomer(nil)
	if err != nil {
		t.Fatalf("select nil customer: %v", err)
	}
	if !res.TenderDowngraded || m.Cart().Tender != domain.TenderCash {
		t.Fatalf("expected downgrade to cash, got %+v tender=%s", res, m.Cart().Tender)
	}
}

func TestMachine_Clear_ResetsEverythingButTaxRate(t *testing.T) {
	m := newTestMachine(t)
	ten, _ := domain.NewPercentageDiscount(1000)

	if _, err := m.AddLine(product("sku-1", 10000, 10), 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.SetOrderDiscount(ten); err != nil {
		t.Fatalf("order discount: %v", err)
	}
	if _, err := m.SelectCustomer(&domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 1000000}); err != nil {
		t.Fatalf("select customer: %v", err)
	}

	m.Clear()

	c := m.Cart()
	if m.State() != StateEmpty || len(c.Lines) != 0 || c.OrderDiscount != nil || c.Customer != nil {
		t.Fatalf("expected pristine cart after clear, got %+v", c)
	}
	if c.Tender != domain.TenderCash {
		t.Fatalf("expected default cash tender, got %s", c.Tender)
	}
	if c.TaxRateBP != 500 {
		t.Fatalf("tax rate must survive clear, got %d", c.TaxRateBP)
	}
}

// Номер чека стабилен между обращениями и сбрасывается только Clear:
// повторная попытка финализации предъявляет хранилищу тот же номер.
func TestMachine_ReceiptIDStableUntilClear(t *testing.T) {
	m := newTestMachine(t)

	first := m.ReceiptID()
	if first == "" {
		t.Fatal("expected non-empty receipt id")
	}
	if _, err := m.AddLine(product("sku-1", 10000, 10), 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := m.ReceiptID(); got != first {
		t.Fatalf("receipt id must survive mutations: %q != %q", got, first)
	}

	m.Clear()
	if got := m.ReceiptID(); got == first {
		t.Fatal("clear must start a new receipt id")
	}
}

func TestMachine_TotalsRecomputedAfterEveryMutation(t *testing.T) {
	m := newTestMachine(t)

	res, err := m.AddLine(product("sku-1", 10000, 10), 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if res.Totals.SubtotalMinor != 30000 {
		t.Fatalf("expected subtotal 30000, got %d", res.Totals.SubtotalMinor)
	}

	flat, _ := domain.NewAmountDiscount(1000)
	res, err = m.SetLineDiscount("sku-1", flat)
	if err != nil {
		t.Fatalf("line discount: %v", err)
	}
	if res.Totals.SubtotalMinor != 29000 || res.Totals.TaxMinor != 1450 || res.Totals.GrandTotalMinor != 30450 {
		t.Fatalf("unexpected totals: %+v", res.Totals)
	}
}
