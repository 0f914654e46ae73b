package guard

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestCheckCredit_NoCustomer(t *testing.T) {
	v := CheckCredit(nil, 100)

	if v.Eligible {
		t.Fatal("expected ineligible for nil customer")
	}
	if v.Reason != domain.CreditReasonNoCustomer {
		t.Fatalf("expected no_customer, got %s", v.Reason)
	}
	if !errors.Is(v.Err(), domain.ErrNoCustomer) {
		t.Fatalf("expected ErrNoCustomer, got %v", v.Err())
	}
}

func TestCheckCredit_InsufficientCreditCarriesShortfall(t *testing.T) {
	c := &domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000, OutstandingDuesMinor: 40000}

	v := CheckCredit(c, 75000)
	if v.Eligible {
		t.Fatal("expected ineligible")
	}
	if v.ShortfallMinor != 15000 {
		t.Fatalf("expected shortfall 15000, got %d", v.ShortfallMinor)
	}

	var credErr *domain.CreditError
	if !errors.As(v.Err(), &credErr) {
		t.Fatalf("expected CreditError, got %v", v.Err())
	}
	if !errors.Is(credErr, domain.ErrInsufficientCredit) {
		t.Fatal("expected unwrap to ErrInsufficientCredit")
	}
}

func TestCheckCredit_NegativeAvailableCreditNotClamped(t *testing.T) {
	c := &domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 10000, OutstandingDuesMinor: 30000}

	v := CheckCredit(c, 5000)
	if v.Eligible {
		t.Fatal("expected ineligible for over-limit customer")
	}
	// доступный кредит -20000, недостача 25000
	if v.ShortfallMinor != 25000 {
		t.Fatalf("expected shortfall 25000, got %d", v.ShortfallMinor)
	}
}

func TestCheckCredit_EligibleAtExactLimit(t *testing.T) {
	c := &domain.CustomerSnapshot{ID: "cust-1", CreditLimitMinor: 100000}

	v := CheckCredit(c, 100000)
	if !v.Eligible {
		t.Fatalf("expected eligible at exact available credit, got %+v", v)
	}
	if v.Err() != nil {
		t.Fatalf("expected nil error, got %v", v.Err())
	}
}
