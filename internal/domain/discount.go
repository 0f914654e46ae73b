package domain

import "fmt"

// DiscountKind различает два вида скидки.
type DiscountKind string

const (
	// DiscountPercentage — процент от базы скоупа (строки или заказа).
	DiscountPercentage DiscountKind = "percentage"
	// DiscountAmount — фиксированная сумма, обрезаемая по базе скоупа.
	DiscountAmount DiscountKind = "amount"
)

// Discount — тегированное значение скидки. Применяется ровно к одному
// скоупу: отдельной строке корзины либо заказу целиком.
type Discount struct {
	Kind DiscountKind
	// PercentBP — процент в базисных пунктах (100 bp = 1%), только для Kind=percentage.
	PercentBP int64
	// AmountMinor — сумма в минимальных единицах, только для Kind=amount.
	AmountMinor int64
}

// NewPercentageDiscount создаёт процентную скидку; допустимый диапазон 0..100%.
func NewPercentageDiscount(percentBP int64) (Discount, error) {
	d := Discount{Kind: DiscountPercentage, PercentBP: percentBP}
	if err := d.Validate(); err != nil {
		return Discount{}, err
	}
	return d, nil
}

// NewAmountDiscount создаёт фиксированную скидку; сумма не может быть отрицательной.
func NewAmountDiscount(amountMinor int64) (Discount, error) {
	d := Discount{Kind: DiscountAmount, AmountMinor: amountMinor}
	if err := d.Validate(); err != nil {
		return Discount{}, err
	}
	return d, nil
}

// Validate проверяет инварианты скидки: процент в пределах 0..100,
// сумма неотрицательна, вид известен.
func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountPercentage:
		if d.PercentBP < 0 || d.PercentBP > 10000 {
			return fmt.Errorf("%w: percent %d bp is outside 0..10000", ErrInvalidDiscount, d.PercentBP)
		}
		return nil
	case DiscountAmount:
		if d.AmountMinor < 0 {
			return fmt.Errorf("%w: amount %d is negative", ErrInvalidDiscount, d.AmountMinor)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDiscount, d.Kind)
	}
}

// AppliedTo возвращает сумму скидки для базы baseMinor.
// Процент округляется вниз до минимальной единицы; фиксированная сумма,
// превышающая базу, молча обрезается по базе — строка или заказ никогда
// не уходят в минус. Неизвестный вид трактуется как нулевая скидка:
// валидация на границе мутаций не пропускает такие значения внутрь.
func (d Discount) AppliedTo(baseMinor int64) int64 {
	if baseMinor <= 0 {
		return 0
	}
	switch d.Kind {
	case DiscountPercentage:
		return baseMinor * d.PercentBP / 10000
	case DiscountAmount:
		if d.AmountMinor > baseMinor {
			return baseMinor
		}
		return d.AmountMinor
	default:
		return 0
	}
}
