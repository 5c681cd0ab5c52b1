package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func intPtr(i int) *int { return &i }

func TestRunStatsAddProduct(t *testing.T) {
	var s RunStats
	s.AddProduct(Product{PriceNumeric: intPtr(100)})
	s.AddProduct(Product{PriceNumeric: intPtr(201)})
	s.AddProduct(Product{PriceNumeric: nil})
	s.AddProduct(Product{PriceNumeric: intPtr(0)})

	if s.ProductsFound != 4 {
		t.Fatalf("expected 4 products, got %d", s.ProductsFound)
	}
	if s.PriceCount != 2 || s.TotalPrice != 301 {
		t.Fatalf("expected 2 prices totalling 301, got %d totalling %d", s.PriceCount, s.TotalPrice)
	}
	if s.AveragePrice != 151 {
		t.Fatalf("expected average 151, got %d", s.AveragePrice)
	}
}

func TestProductJSONFieldNames(t *testing.T) {
	b, err := json.Marshal(Product{GlobalPosition: 1, Brand: "MediS", Name: "Mask", PriceText: "N/A", Page: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := string(b)
	for _, want := range []string{`"global_position":1`, `"price_text":"N/A"`, `"price_numeric":null`, `"page":2`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %s in %s", want, got)
		}
	}
}
