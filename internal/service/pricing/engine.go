// Пакет pricing реализует ценовой движок корзины: чистые детерминированные
// функции без I/O. Порядок вычислений фиксирован и является частью контракта:
// строчные скидки, промежуточный итог, скидка заказа, налог, итог.
package pricing

import "github.com/vladislavdragonenkov/pos/internal/domain"

// Calculate считает производные суммы корзины.
//
// Шаги, строго по порядку:
//  1. для каждой строки: база = цена × количество, минус скидка строки;
//  2. промежуточный итог = сумма строк (скидка заказа применяется уже
//     к нему, то есть скидки складываются мультипликативно);
//  3. скидка заказа тем же способом (процент либо сумма с обрезкой);
//  4. налог от скидочного итога, round-half-up до минимальной единицы;
//  5. итог = скидочный итог + налог.
//
// Пустая корзина даёт нули. Отрицательные количества сюда не попадают:
// их отклоняет машина состояний на границе мутаций.
func Calculate(cart domain.Cart) domain.Totals {
	totals := domain.Totals{
		LineTotalsMinor: make([]int64, 0, len(cart.Lines)),
	}

	for _, line := range cart.Lines {
		lineTotal := LineTotal(line)
		totals.LineTotalsMinor = append(totals.LineTotalsMinor, lineTotal)
		totals.SubtotalMinor += lineTotal
	}

	if cart.OrderDiscount != nil {
		totals.OrderDiscountMinor = cart.OrderDiscount.AppliedTo(totals.SubtotalMinor)
	}

	discounted := totals.SubtotalMinor - totals.OrderDiscountMinor
	totals.TaxMinor = taxOf(discounted, cart.TaxRateBP)
	totals.GrandTotalMinor = discounted + totals.TaxMinor

	return totals
}

// LineTotal считает итог одной строки: база минус строчная скидка.
func LineTotal(line domain.CartLine) int64 {
	base := line.Product.UnitPriceMinor * int64(line.Quantity)
	if line.Discount == nil {
		return base
	}
	return base - line.Discount.AppliedTo(base)
}

// LineDiscount возвращает применённую скидку строки в минимальных единицах.
func LineDiscount(line domain.CartLine) int64 {
	if line.Discount == nil {
		return 0
	}
	base := line.Product.UnitPriceMinor * int64(line.Quantity)
	return line.Discount.AppliedTo(base)
}

// taxOf считает налог от суммы по ставке в базисных пунктах,
// округляя half-up до минимальной единицы.
func taxOf(amountMinor, rateBP int64) int64 {
	if amountMinor <= 0 || rateBP <= 0 {
		return 0
	}
	return (amountMinor*rateBP + 5000) / 10000
}
