package pricing

import (
	"testing"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func line(unitPriceMinor int64, qty int32, d *domain.Discount) domain.CartLine {
	return domain.CartLine{
		Product:  domain.ProductSnapshot{ID: "sku-1", UnitPriceMinor: unitPriceMinor, StockQuantity: 100},
		Quantity: qty,
		Discount: d,
	}
}

func TestCalculate_EmptyCart(t *testing.T) {
	totals := Calculate(domain.Cart{TaxRateBP: 500})

	if totals.SubtotalMinor != 0 || totals.TaxMinor != 0 || totals.GrandTotalMinor != 0 {
		t.Fatalf("expected all zeros for empty cart, got %+v", totals)
	}
	if len(totals.LineTotalsMinor) != 0 {
		t.Fatalf("expected no line totals, got %d", len(totals.LineTotalsMinor))
	}
}

// Сценарий из приёмочного набора: цена 100.00, количество 3, строчная
// скидка суммой 10.00, налог 5% -> строка 290.00, налог 14.50, итог 304.50.
func TestCalculate_ReceiptScenario(t *testing.T) {
	d, _ := domain.NewAmountDiscount(1000)
	cart := domain.Cart{
		Lines:     []domain.CartLine{line(10000, 3, &d)},
		TaxRateBP: 500,
	}

	totals := Calculate(cart)

	if totals.LineTotalsMinor[0] != 29000 {
		t.Fatalf("line total: expected 29000, got %d", totals.LineTotalsMinor[0])
	}
	if totals.SubtotalMinor != 29000 {
		t.Fatalf("subtotal: expected 29000, got %d", totals.SubtotalMinor)
	}
	if totals.TaxMinor != 1450 {
		t.Fatalf("tax: expected 1450, got %d", totals.TaxMinor)
	}
	if totals.GrandTotalMinor != 30450 {
		t.Fatalf("grand total: expected 30450, got %d", totals.GrandTotalMinor)
	}
}

// Скидка заказа применяется к уже скидочному промежуточному итогу:
// две строки по -10% и заказ -10% дают 0.9 * 0.9 * сырого итога.
func TestCalculate_DiscountsComposeMultiplicatively(t *testing.T) {
	ten, _ := domain.NewPercentageDiscount(1000)
	cart := domain.Cart{
		Lines: []domain.CartLine{
			line(10000, 1, &ten),
			line(20000, 1, &ten),
		},
		OrderDiscount: &ten,
		TaxRateBP:     1000,
	}

	totals := Calculate(cart)

	// raw 30000 -> line discounts -> 27000 -> order 10% -> 24300 -> tax 10% -> 26730
	if totals.SubtotalMinor != 27000 {
		t.Fatalf("subtotal: expected 27000, got %d", totals.SubtotalMinor)
	}
	if totals.OrderDiscountMinor != 2700 {
		t.Fatalf("order discount: expected 2700, got %d", totals.OrderDiscountMinor)
	}
	if totals.TaxMinor != 2430 {
		t.Fatalf("tax: expected 2430, got %d", totals.TaxMinor)
	}
	if totals.GrandTotalMinor != 26730 {
		t.Fatalf("grand total: expected 26730, got %d", totals.GrandTotalMinor)
	}
}

func TestCalculate_TaxRoundsHalfUp(t *testing.T) {
	cart := domain.Cart{
		Lines:     []domain.CartLine{line(30, 1, nil)},
		TaxRateBP: 500, // 5% от 30 = 1.5 -> 2
	}

	totals := Calculate(cart)

	if totals.TaxMinor != 2 {
		t.Fatalf("tax: expected half-up to 2, got %d", totals.TaxMinor)
	}
}

// Фиксированная скидка больше базы обрезается по базе и никогда
// не уводит строку или заказ в минус.
func TestCalculate_OversizedFlatDiscountClamps(t *testing.T) {
	huge, _ := domain.NewAmountDiscount(1_000_000)
	cart := domain.Cart{
		Lines:         []domain.CartLine{line(5000, 2, &huge)},
		OrderDiscount: &huge,
		TaxRateBP:     500,
	}

	totals := Calculate(cart)

	if totals.LineTotalsMinor[0] != 0 {
		t.Fatalf("line total: expected 0, got %d", totals.LineTotalsMinor[0])
	}
	if totals.SubtotalMinor != 0 || totals.GrandTotalMinor != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
	if totals.GrandTotalMinor < totals.DiscountedSubtotalMinor() || totals.DiscountedSubtotalMinor() < 0 {
		t.Fatalf("total ordering invariant violated: %+v", totals)
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	ten, _ := domain.NewPercentageDiscount(1000)
	cart := domain.Cart{
		Lines:         []domain.CartLine{line(12345, 7, &ten), line(999, 3, nil)},
		OrderDiscount: &ten,
		TaxRateBP:     1800,
	}

	first := Calculate(cart)
	second := Calculate(cart)

	if first.GrandTotalMinor != second.GrandTotalMinor || first.TaxMinor != second.TaxMinor {
		t.Fatalf("expected identical totals, got %+v vs %+v", first, second)
	}
}
