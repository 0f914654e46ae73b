package domain

// TenderMethod — способ оплаты продажи.
type TenderMethod string

const (
	// TenderCash — наличные; при финализации требуется внесённая сумма.
	TenderCash TenderMethod = "cash"
	// TenderCard — карта; оплата подтверждается терминалом вне ядра.
	TenderCard TenderMethod = "card"
	// TenderDeferred — отложенная оплата (BNPL) в счёт кредитного лимита клиента.
	TenderDeferred TenderMethod = "deferred"
)

// ValidTender сообщает, известен ли способ оплаты.
func ValidTender(m TenderMethod) bool {
	switch m {
	case TenderCash, TenderCard, TenderDeferred:
		return true
	default:
		return false
	}
}

// CartLine — одна позиция корзины: снапшот товара, запрошенное количество
// и опциональная скидка строки. Снапшот снимается в момент добавления и
// перед финализацией перепроверяется, а не молча обновляется.
type CartLine struct {
	Product  ProductSnapshot
	Quantity int32
	Discount *Discount
}

// Cart — изменяемое состояние покупки одной операторской сессии.
// Мутируется исключительно машиной состояний корзины.
type Cart struct {
	// Lines упорядочены по моменту добавления; товар встречается не более одного раза.
	Lines []CartLine
	// OrderDiscount — скидка уровня заказа, поверх скидок строк.
	OrderDiscount *Discount
	// Customer — выбранный клиент; nil означает покупателя без карточки (walk-in).
	Customer *CustomerSnapshot
	// Tender — выбранный способ оплаты.
	Tender TenderMethod
	// TaxRateBP — ставка налога в базисных пунктах, загружается из конфигурации.
	TaxRateBP int64
}

// IsEmpty сообщает, пуста ли корзина.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// FindLine возвращает индекс строки с товаром productID или -1.
func (c Cart) FindLine(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// Clone возвращает глубокую копию корзины: машина состояний отдаёт
// наружу только копии, чтобы исключить мутации в обход неё.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = make([]CartLine, len(c.Lines))
	copy(out.Lines, c.Lines)
	for i := range out.Lines {
		if d := out.Lines[i].Discount; d != nil {
			cp := *d
			out.Lines[i].Discount = &cp
		}
	}
	if c.OrderDiscount != nil {
		cp := *c.OrderDiscount
		out.OrderDiscount = &cp
	}
	if c.Customer != nil {
		cp := *c.Customer
		out.Customer = &cp
	}
	return out
}

// Totals — производные суммы корзины, результат работы ценового движка.
// Все значения в минимальных денежных единицах.
type Totals struct {
	// LineTotalsMinor — суммы строк после строчных скидок, в порядке строк корзины.
	LineTotalsMinor []int64
	// SubtotalMinor — сумма строк после строчных скидок.
	SubtotalMinor int64
	// OrderDiscountMinor — применённая скидка уровня заказа.
	OrderDiscountMinor int64
	// TaxMinor — налог от скидочного промежуточного итога, round-half-up.
	TaxMinor int64
	// GrandTotalMinor — итог к оплате.
	GrandTotalMinor int64
}

// DiscountedSubtotalMinor — промежуточный итог после скидки заказа.
func (t Totals) DiscountedSubtotalMinor() int64 {
	return t.SubtotalMinor - t.OrderDiscountMinor
}
