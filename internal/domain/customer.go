package domain

import "time"

// CustomerSnapshot — точка-во-времени чтение клиента.
// Ядро читает кредитные поля и увеличивает задолженность только
// в рамках атомарного коммита отложенной (BNPL) продажи.
type CustomerSnapshot struct {
	// ID — внешний идентификатор клиента.
	ID string
	// CreditLimitMinor — кредитный лимит в минимальных единицах.
	CreditLimitMinor int64
	// OutstandingDuesMinor — текущая задолженность клиента.
	OutstandingDuesMinor int64
	// ReadAt фиксирует момент снятия снапшота.
	ReadAt time.Time
}

// AvailableCreditMinor возвращает доступный кредит: лимит минус долг.
// Значение может быть отрицательным (клиент превысил лимит) и никогда
// не обрезается до нуля.
func (c CustomerSnapshot) AvailableCreditMinor() int64 {
	return c.CreditLimitMinor - c.OutstandingDuesMinor
}
