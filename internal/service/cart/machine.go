// Пакет cart реализует машину состояний корзины: единственного владельца
// изменяемого состояния покупки. Каждая мутация проходит стоковую и
// кредитную проверки и синхронно пересчитывает итоги; отклонённая
// операция оставляет корзину ровно в прежнем состоянии.
package cart

import (
	"math"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/guard"
	"github.com/vladislavdragonenkov/pos/internal/service/pricing"
)

// State описывает наблюдаемое состояние машины.
type State string

const (
	// StateEmpty — корзина пуста; финализация невозможна.
	StateEmpty State = "empty"
	// StateReady — корзина не пуста и текущая валидация проходит.
	// Машина пересчитывает валидность после каждой мутации, поэтому
	// непустая корзина всегда готова к попытке финализации.
	StateReady State = "ready_to_finalize"
)

// Mutation — результат успешной мутации: свежие итоги и признак
// принудительного сброса отложенной оплаты на наличные. Сброс —
// наблюдаемый побочный эффект, вызывающая сторона обязана показать его
// оператору.
type Mutation struct {
	Totals           domain.Totals
	TenderDowngraded bool
}

// Machine владеет корзиной одной операторской сессии. Экземпляр
// создаётся на сессию и передаётся явно — никакого общего глобального
// состояния. Внутренней блокировки нет: корзину мутирует один логический
// владелец, сериализацию конкурентных вызовов обеспечивает транспорт.
type Machine struct {
	cart      domain.Cart
	totals    domain.Totals
	receiptID string
	logger    *log.Entry
}

// NewMachine создаёт машину с пустой корзиной. Ставка налога загружается
// один раз из конфигурации и живёт в корзине до Clear.
func NewMachine(taxRateBP int64, logger *log.Entry) *Machine {
	if logger == nil {
		logger = log.WithField("component", "cart")
	}
	return &Machine{
		cart:   domain.Cart{Tender: domain.TenderCash, TaxRateBP: taxRateBP},
		logger: logger,
	}
}

// AddLine добавляет товар в корзину. Повторное добавление того же товара
// увеличивает количество существующей строки, а не создаёт дубликат;
// стоковая проверка выполняется по новому суммарному количеству.
func (m *Machine) AddLine(product domain.ProductSnapshot, qty int32) (Mutation, error) {
	if qty < 1 {
		return Mutation{}, domain.ErrInvalidQuantity
	}

	idx := m.cart.FindLine(product.ID)
	newQty := qty
	if idx >= 0 {
		existing := m.cart.Lines[idx].Quantity
		// Переполнение суммы дало бы отрицательное количество, которое
		// проскочило бы стоковую проверку.
		if existing > math.MaxInt32-qty {
			return Mutation{}, domain.ErrInvalidQuantity
		}
		newQty += existing
	}

	// Проверяем по свежепереданному снапшоту: вызывающая сторона читает
	// товар непосредственно перед добавлением.
	if v := guard.CheckStock(product, newQty); !v.OK {
		m.logger.WithFields(log.Fields{
			"product_id": product.ID,
			"requested":  newQty,
			"available":  v.MaxAvailable,
		}).Warn("add line rejected by stock guard")
		return Mutation{}, &domain.StockConflictError{
			Conflicts: []domain.StockShortfall{v.Shortfall(product.ID, newQty)},
		}
	}

	if idx >= 0 {
		// Снапшот строки не подменяется: цена фиксируется на момент
		// первого добавления и перепроверяется при финализации.
		m.cart.Lines[idx].Quantity = newQty
	} else {
		m.cart.Lines = append(m.cart.Lines, domain.CartLine{Product: product, Quantity: qty})
	}

	return m.finishMutation(), nil
}

// SetQuantity выставляет количество строки. Ноль эквивалентен удалению
// строки; отрицательное значение отклоняется без мутации. Стоковая
// проверка идёт по снапшоту товара, зафиксированному при добавлении
// строки; актуальный сток перечитывается при финализации.
func (m *Machine) SetQuantity(productID string, qty int32) (Mutation, error) {
	if qty < 0 {
		return Mutation{}, domain.ErrInvalidQuantity
	}
	if qty == 0 {
		return m.RemoveLine(productID)
	}

	idx := m.cart.FindLine(productID)
	if idx < 0 {
		return Mutation{}, domain.ErrLineNotFound
	}

	lineProduct := m.cart.Lines[idx].Product
	if v := guard.CheckStock(lineProduct, qty); !v.OK {
		return Mutation{}, &domain.StockConflictError{
			Conflicts: []domain.StockShortfall{v.Shortfall(productID, qty)},
		}
	}

	m.cart.Lines[idx].Quantity = qty
	return m.finishMutation(), nil
}

// RemoveLine удаляет строку товара. Операция идемпотентна: удаление
// отсутствующей строки — no-op, а не ошибка.
func (m *Machine) RemoveLine(productID string) (Mutation, error) {
	idx := m.cart.FindLine(productID)
	if idx >= 0 {
		m.cart.Lines = append(m.cart.Lines[:idx], m.cart.Lines[idx+1:]...)
	}
	return m.finishMutation(), nil
}

// SetLineDiscount выставляет скидку строки. Невалидная скидка
// отклоняется, прежняя скидка строки сохраняется.
func (m *Machine) SetLineDiscount(productID string, d domain.Discount) (Mutation, error) {
	if err := d.Validate(); err != nil {
		return Mutation{}, err
	}
	idx := m.cart.FindLine(productID)
	if idx < 0 {
		return Mutation{}, domain.ErrLineNotFound
	}

	cp := d
	m.cart.Lines[idx].Discount = &cp
	return m.finishMutation(), nil
}

// SetOrderDiscount выставляет скидку уровня заказа с теми же правилами
// валидации, что и у строчной.
func (m *Machine) SetOrderDiscount(d domain.Discount) (Mutation, error) {
	if err := d.Validate(); err != nil {
		return Mutation{}, err
	}

	cp := d
	m.cart.OrderDiscount = &cp
	return m.finishMutation(), nil
}

// SelectCustomer выбирает клиента (nil — покупатель без карточки).
// Если текущая оплата отложенная, а новый клиент отсутствует или не
// проходит кредитную проверку на текущий итог, оплата принудительно
// сбрасывается на наличные; сброс виден в результате мутации.
func (m *Machine) SelectCustomer(customer *domain.CustomerSnapshot) (Mutation, error) {
	if customer == nil {
		m.cart.Customer = nil
	} else {
		cp := *customer
		m.cart.Customer = &cp
	}
	return m.finishMutation(), nil
}

// SetTender выбирает способ оплаты. Отложенная оплата доступна только
// когда кредитная проверка проходит для текущего итога; при отказе
// состояние не меняется и возвращается структурная ошибка.
func (m *Machine) SetTender(method domain.TenderMethod) (Mutation, error) {
	if !domain.ValidTender(method) {
		return Mutation{}, domain.ErrInvalidTender
	}
	if method == domain.TenderDeferred {
		if v := guard.CheckCredit(m.cart.Customer, m.totals.GrandTotalMinor); !v.Eligible {
			return Mutation{}, v.Err()
		}
	}

	m.cart.Tender = method
	return m.finishMutation(), nil
}

// Clear безусловно сбрасывает корзину: строки, скидки, клиента, способ
// оплаты и номер чека текущей попытки. Ставка налога сохраняется на
// следующую покупку.
func (m *Machine) Clear() {
	m.cart = domain.Cart{Tender: domain.TenderCash, TaxRateBP: m.cart.TaxRateBP}
	m.totals = domain.Totals{}
	m.receiptID = ""
}

// ReceiptID возвращает номер чека текущей последовательности попыток
// финализации. Номер генерируется при первом обращении и живёт до
// успешного коммита или Clear: повтор после неопределённого сбоя
// предъявляет хранилищу тот же номер, и уже закоммиченная продажа
// отклоняется по ключу чека вместо повторного списания стока.
func (m *Machine) ReceiptID() string {
	if m.receiptID == "" {
		m.receiptID = uuid.NewString()
	}
	return m.receiptID
}

// State возвращает наблюдаемое состояние машины.
func (m *Machine) State() State {
	if m.cart.IsEmpty() {
		return StateEmpty
	}
	return StateReady
}

// Cart возвращает глубокую копию корзины для чтения.
func (m *Machine) Cart() domain.Cart {
	return m.cart.Clone()
}

// Totals возвращает текущие производные итоги.
func (m *Machine) Totals() domain.Totals {
	out := m.totals
	out.LineTotalsMinor = append([]int64(nil), m.totals.LineTotalsMinor...)
	return out
}

// finishMutation пересчитывает итоги и заново оценивает кредитный
// вердикт: изменение скидок или состава корзины меняет требуемую сумму,
// и успешная проверка в прошлом ничего не гарантирует.
func (m *Machine) finishMutation() Mutation {
	m.totals = pricing.Calculate(m.cart)

	downgraded := false
	if m.cart.Tender == domain.TenderDeferred {
		if v := guard.CheckCredit(m.cart.Customer, m.totals.GrandTotalMinor); !v.Eligible {
			m.cart.Tender = domain.TenderCash
			downgraded = true
			m.logger.WithFields(log.Fields{
				"reason":          string(v.Reason),
				"shortfall_minor": v.ShortfallMinor,
			}).Warn("deferred tender downgraded to cash")
		}
	}

	return Mutation{Totals: m.Totals(), TenderDowngraded: downgraded}
}
