package domain

import (
	"errors"
	"testing"
)

func TestDiscount_Validate(t *testing.T) {
	cases := []struct {
		name    string
		d       Discount
		wantErr bool
	}{
		{"percentage ok", Discount{Kind: DiscountPercentage, PercentBP: 1000}, false},
		{"percentage zero", Discount{Kind: DiscountPercentage, PercentBP: 0}, false},
		{"percentage full", Discount{Kind: DiscountPercentage, PercentBP: 10000}, false},
		{"percentage over 100", Discount{Kind: DiscountPercentage, PercentBP: 10001}, true},
		{"percentage negative", Discount{Kind: DiscountPercentage, PercentBP: -1}, true},
		{"amount ok", Discount{Kind: DiscountAmount, AmountMinor: 500}, false},
		{"amount negative", Discount{Kind: DiscountAmount, AmountMinor: -500}, true},
		{"unknown kind", Discount{Kind: "loyalty"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.d.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidDiscount) {
				t.Fatalf("expected ErrInvalidDiscount, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDiscount_AppliedTo_CapsAmountAtBase(t *testing.T) {
	d, err := NewAmountDiscount(50000)
	if err != nil {
		t.Fatalf("new amount discount: %v", err)
	}

	if got := d.AppliedTo(29000); got != 29000 {
		t.Fatalf("expected clamp at base 29000, got %d", got)
	}
	if got := d.AppliedTo(0); got != 0 {
		t.Fatalf("expected zero discount on zero base, got %d", got)
	}
}

func TestDiscount_AppliedTo_Percentage(t *testing.T) {
	d, err := NewPercentageDiscount(1000) // 10%
	if err != nil {
		t.Fatalf("new percentage discount: %v", err)
	}

	if got := d.AppliedTo(30000); got != 3000 {
		t.Fatalf("expected 3000, got %d", got)
	}
}

func TestCustomerSnapshot_AvailableCredit_MayBeNegative(t *testing.T) {
	c := CustomerSnapshot{CreditLimitMinor: 100000, OutstandingDuesMinor: 120000}
	if got := c.AvailableCreditMinor(); got != -20000 {
		t.Fatalf("expected -20000, got %d", got)
	}
}
