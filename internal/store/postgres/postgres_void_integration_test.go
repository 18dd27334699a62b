package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
)

func TestVoidTransactionRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("GLOWPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GLOWPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	sku := fmt.Sprintf("SKU-VOID-IT-%d", stamp)
	code := fmt.Sprintf("TXN-IT-%d", stamp)

	product, err := s.CreateProduct(ctx, domain.Product{
		SKU:           sku,
		Name:          "Void IT Serum",
		Category:      "skincare",
		Price:         decimal.RequireFromString("250.00"),
		StockQuantity: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE code = $1`, code)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
	})

	result, err := s.CreateCheckout(ctx, domain.Transaction{
		Code:            code,
		CashierUsername: "integration",
		Subtotal:        decimal.RequireFromString("500.00"),
		DiscountAmount:  decimal.Zero,
		VoucherDiscount: decimal.Zero,
		TaxAmount:       decimal.Zero,
		TotalAmount:     decimal.RequireFromString("500.00"),
		PaymentMethod:   "cash",
		AmountReceived:  decimal.RequireFromString("500.00"),
		ChangeAmount:    decimal.Zero,
		Items: []domain.TransactionItem{{
			ProductID:       product.ID,
			ProductSKU:      product.SKU,
			ProductName:     product.Name,
			Quantity:        2,
			UnitPrice:       product.Price,
			DiscountPercent: decimal.Zero,
			LineTotal:       decimal.RequireFromString("500.00"),
		}},
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if result.Transaction.Status != domain.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Transaction.Status)
	}

	afterSale, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if afterSale.StockQuantity != 8 {
		t.Fatalf("stock = %d after sale, want 8", afterSale.StockQuantity)
	}

	voided, err := s.VoidTransaction(ctx, code, "integration test void", "supervisor", time.Now().UTC())
	if err != nil {
		t.Fatalf("void transaction: %v", err)
	}
	if voided.Status != domain.TxStatusVoided {
		t.Fatalf("status = %s, want voided", voided.Status)
	}

	afterVoid, err := s.GetProductByID(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if afterVoid.StockQuantity != 10 {
		t.Fatalf("stock = %d after void, want 10", afterVoid.StockQuantity)
	}

	if _, err := s.VoidTransaction(ctx, code, "second void", "supervisor", time.Now().UTC()); !errors.Is(err, domain.ErrAlreadyVoided) {
		t.Fatalf("err = %v, want ErrAlreadyVoided", err)
	}
}
