package suggest

import (
	"testing"

	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
)

func catalog() []domain.Product {
	d := decimal.RequireFromString
	return []domain.Product{
		{ID: 1, SKU: "SKU-SERUM-01", Name: "Vitamin C Serum", Category: "skincare", Price: d("1233.00"), StockQuantity: 50, IsActive: true},
		{ID: 2, SKU: "SKU-TONER-01", Name: "Rose Water Toner", Category: "skincare", Price: d("350.00"), StockQuantity: 80, IsActive: true},
		{ID: 3, SKU: "SKU-LIP-01", Name: "Matte Lipstick", Category: "makeup", Price: d("499.00"), DiscountPercent: decimal.NewFromInt(10), StockQuantity: 60, IsActive: true},
		{ID: 4, SKU: "SKU-BRUSH-01", Name: "Foundation Brush", Category: "tools", Price: d("220.00"), StockQuantity: 40, IsActive: true},
		{ID: 5, SKU: "SKU-GONE-01", Name: "Discontinued Cream", Category: "skincare", Price: d("100.00"), StockQuantity: 20, IsActive: false},
		{ID: 6, SKU: "SKU-OOS-01", Name: "Sold Out Mask", Category: "skincare", Price: d("90.00"), StockQuantity: 0, IsActive: true},
	}
}

func TestSuggestEmptyCart(t *testing.T) {
	engine := NewEngine()
	if got := engine.Suggest(nil, catalog()); got != nil {
		t.Fatalf("expected no suggestion for empty cart, got %+v", got)
	}
}

func TestSuggestSkipsCartInactiveAndOutOfStock(t *testing.T) {
	engine := NewEngine()
	cart := []domain.CheckoutItem{{ProductID: 1, Quantity: 1}}

	got := engine.Suggest(cart, catalog())
	if got == nil {
		t.Fatal("expected a suggestion")
	}
	if got.ProductID == 1 {
		t.Fatal("suggested a product already in the cart")
	}
	if got.ProductID == 5 || got.ProductID == 6 {
		t.Fatalf("suggested unsellable product %d", got.ProductID)
	}
}

func TestSuggestPrefersCheaperAttachment(t *testing.T) {
	engine := NewEngine()
	cart := []domain.CheckoutItem{{ProductID: 1, Quantity: 1}}

	got := engine.Suggest(cart, catalog())
	if got == nil {
		t.Fatal("expected a suggestion")
	}
	// Everything sellable outside the cart is cheaper than the serum; the
	// pick must cost less than the cart average.
	if !got.Price.LessThan(decimal.RequireFromString("1233.00")) {
		t.Fatalf("suggested %s at %s, want a cheaper add-on", got.SKU, got.Price)
	}
	if got.Reason == "" {
		t.Fatal("suggestion missing a reason code")
	}
	if got.Score <= 0 || got.Score > 1 {
		t.Fatalf("score = %f, want (0, 1]", got.Score)
	}
}

func TestSuggestNothingSellable(t *testing.T) {
	engine := NewEngine()
	cart := []domain.CheckoutItem{{ProductID: 1, Quantity: 1}}
	products := []domain.Product{
		{ID: 1, Category: "skincare", Price: decimal.NewFromInt(100), StockQuantity: 5, IsActive: true},
		{ID: 2, Category: "skincare", Price: decimal.NewFromInt(50), StockQuantity: 0, IsActive: true},
	}
	if got := engine.Suggest(cart, products); got != nil {
		t.Fatalf("expected no suggestion, got %+v", got)
	}
}

func TestCategoryAffinity(t *testing.T) {
	cartCategories := map[string]int{"skincare": 2}
	if got := categoryAffinity(cartCategories, "skincare"); got != 0.9 {
		t.Fatalf("same category affinity = %f", got)
	}
	if got := categoryAffinity(cartCategories, "tools"); got != 0.75 {
		t.Fatalf("cross category affinity = %f", got)
	}
	if got := categoryAffinity(cartCategories, "fragrance"); got != 0.3 {
		t.Fatalf("unknown category affinity = %f", got)
	}
}
