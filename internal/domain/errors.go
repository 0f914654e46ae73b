package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка некорректного количества (отрицательное или нулевое там, где запрещено).
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// Ошибка некорректной скидки (отрицательная сумма, процент вне 0..100, неизвестный вид).
	ErrInvalidDiscount = errors.New("invalid discount")
	// Ошибка неизвестного способа оплаты.
	ErrInvalidTender = errors.New("invalid tender method")
	// Ошибка финализации пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// Ошибка отсутствующей строки корзины при адресной мутации.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrNoCustomer — отложенная оплата без выбранного клиента.
	ErrNoCustomer = errors.New("deferred tender requires a customer")
	// ErrInsufficientCredit — доступного кредита клиента не хватает на итог.
	ErrInsufficientCredit = errors.New("insufficient customer credit")
	// ErrStockConflict — запрошенное количество превышает доступный сток.
	ErrStockConflict = errors.New("stock conflict")
	// ErrInsufficientPayment — внесённых наличных меньше итога.
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrPersistenceFailure — атомарный коммит продажи не выполнен.
	ErrPersistenceFailure = errors.New("sale persistence failed")
	// ErrProductNotFound возвращается хранилищем, если товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCustomerNotFound возвращается хранилищем, если клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrSaleNotFound возвращается хранилищем, если чек не найден.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrDuplicateReceipt — повторный коммит чека с тем же идентификатором.
	ErrDuplicateReceipt = errors.New("duplicate receipt id")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// StockShortfall описывает нехватку стока по одной строке.
type StockShortfall struct {
	ProductID string
	Requested int32
	Available int32
}

// StockConflictError перечисляет все строки с нехваткой стока.
// Ядро никогда не разрешает конфликт само: решение о снижении
// количества или отмене остаётся за вызывающей стороной.
type StockConflictError struct {
	Conflicts []StockShortfall
}

func (e *StockConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", c.ProductID, c.Requested, c.Available))
	}
	return "stock conflict: " + strings.Join(parts, "; ")
}

func (e *StockConflictError) Unwrap() error {
	return ErrStockConflict
}

// CreditReason уточняет причину отказа в отложенной оплате.
type CreditReason string

const (
	CreditReasonNoCustomer         CreditReason = "no_customer"
	CreditReasonInsufficientCredit CreditReason = "insufficient_credit"
)

// CreditError — отказ в отложенной оплате с причиной и недостачей.
type CreditError struct {
	Reason CreditReason
	// ShortfallMinor — сколько не хватает до итога; только для insufficient_credit.
	ShortfallMinor int64
}

func (e *CreditError) Error() string {
	if e.Reason == CreditReasonNoCustomer {
		return "credit ineligible: no customer selected"
	}
	return fmt.Sprintf("credit ineligible: short by %d", e.ShortfallMinor)
}

func (e *CreditError) Unwrap() error {
	if e.Reason == CreditReasonNoCustomer {
		return ErrNoCustomer
	}
	return ErrInsufficientCredit
}

// InsufficientPaymentError — нехватка наличных при финализации.
type InsufficientPaymentError struct {
	RequiredMinor int64
	TenderedMinor int64
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: required %d, tendered %d", e.RequiredMinor, e.TenderedMinor)
}

func (e *InsufficientPaymentError) Unwrap() error {
	return ErrInsufficientPayment
}

// IsStockConflict проверяет, является ли ошибка конфликтом стока.
func IsStockConflict(err error) bool {
	return errors.Is(err, ErrStockConflict)
}
