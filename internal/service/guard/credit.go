package guard

import "github.com/vladislavdragonenkov/pos/internal/domain"

// CreditVerdict — результат кредитной проверки для отложенной оплаты.
type CreditVerdict struct {
	Eligible bool
	Reason   domain.CreditReason
	// ShortfallMinor — недостача до требуемой суммы; только для insufficient_credit.
	ShortfallMinor int64
}

// CheckCredit проверяет право клиента на отложенную оплату требуемой суммы.
// nil-клиент — отказ no_customer; нехватка доступного кредита — отказ
// insufficient_credit с недостачей. Проверка идемпотентна, но не кэшируется:
// каждое изменение итога требует повторного вызова, а перед финализацией
// она выполняется заново по свежему снапшоту.
func CheckCredit(customer *domain.CustomerSnapshot, requiredMinor int64) CreditVerdict {
	if customer == nil {
		return CreditVerdict{Eligible: false, Reason: domain.CreditReasonNoCustomer}
	}
	available := customer.AvailableCreditMinor()
	if available < requiredMinor {
		return CreditVerdict{
			Eligible:       false,
			Reason:         domain.CreditReasonInsufficientCredit,
			ShortfallMinor: requiredMinor - available,
		}
	}
	return CreditVerdict{Eligible: true}
}

// Err превращает вердикт-отказ в структурную ошибку домена.
// Для Eligible-вердикта возвращает nil.
func (v CreditVerdict) Err() error {
	if v.Eligible {
		return nil
	}
	return &domain.CreditError{Reason: v.Reason, ShortfallMinor: v.ShortfallMinor}
}
