package guard

import (
	"testing"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func TestCheckStock_Accept(t *testing.T) {
	p := domain.ProductSnapshot{ID: "sku-1", StockQuantity: 10}

	v := CheckStock(p, 10)
	if !v.OK {
		t.Fatalf("expected accept for requested=available, got %+v", v)
	}
}

func TestCheckStock_Clamp(t *testing.T) {
	p := domain.ProductSnapshot{ID: "sku-1", StockQuantity: 3}

	v := CheckStock(p, 10)
	if v.OK {
		t.Fatal("expected clamp verdict")
	}
	if v.MaxAvailable != 3 {
		t.Fatalf("expected max available 3, got %d", v.MaxAvailable)
	}

	s := v.Shortfall(p.ID, 10)
	if s.ProductID != "sku-1" || s.Requested != 10 || s.Available != 3 {
		t.Fatalf("unexpected shortfall: %+v", s)
	}
}

func TestCheckStock_ZeroOrNegativeStockClampsToZero(t *testing.T) {
	for _, stock := range []int32{0, -5} {
		v := CheckStock(domain.ProductSnapshot{ID: "sku-1", StockQuantity: stock}, 1)
		if v.OK || v.MaxAvailable != 0 {
			t.Fatalf("stock=%d: expected Clamp(0), got %+v", stock, v)
		}
	}
}
