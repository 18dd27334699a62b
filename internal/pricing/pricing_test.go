package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glowpos/backend/internal/domain"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func product(id int64, price string, discountPercent string) domain.Product {
	return domain.Product{
		ID:              id,
		SKU:             "SKU-TEST",
		Name:            "Test Product",
		Price:           d(price),
		DiscountPercent: d(discountPercent),
		IsActive:        true,
	}
}

func TestLineTotalAppliesItemDiscount(t *testing.T) {
	total := LineTotal(d("10.05"), 1, d("15"))
	assert.True(t, total.Equal(d("8.54")), "got %s", total)
}

func TestLineTotalRoundsHalfUp(t *testing.T) {
	// 10.01 * 0.5 = 5.005, the half cent rounds up.
	total := LineTotal(d("10.01"), 1, d("50"))
	assert.True(t, total.Equal(d("5.01")), "got %s", total)
}

func TestPriceCartSubtotal(t *testing.T) {
	breakdown, err := PriceCart([]Line{
		{Product: product(1, "1233.00", "0"), Quantity: 2},
	}, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, breakdown.Subtotal.Equal(d("2466.00")), "got %s", breakdown.Subtotal)
	assert.True(t, breakdown.DiscountAmount.IsZero())
	require.Len(t, breakdown.Items, 1)
	assert.True(t, breakdown.Items[0].LineTotal.Equal(d("2466.00")))
}

func TestPriceCartTierDiscount(t *testing.T) {
	breakdown, err := PriceCart([]Line{
		{Product: product(1, "100.00", "0"), Quantity: 1},
	}, d("10"))
	require.NoError(t, err)

	assert.True(t, breakdown.DiscountAmount.Equal(d("10.00")), "got %s", breakdown.DiscountAmount)
	assert.True(t, breakdown.EligibleForVoucher().Equal(d("90.00")))
}

func TestFinalizeAppliesVoucherThenTax(t *testing.T) {
	breakdown, err := PriceCart([]Line{
		{Product: product(1, "100.00", "0"), Quantity: 1},
	}, d("10"))
	require.NoError(t, err)

	// Voucher applies to the tier-discounted remainder, tax to what is left.
	breakdown.Finalize(d("10.00"), d("12"))
	assert.True(t, breakdown.TaxAmount.Equal(d("9.60")), "got %s", breakdown.TaxAmount)
	assert.True(t, breakdown.TotalAmount.Equal(d("89.60")), "got %s", breakdown.TotalAmount)
}

func TestFinalizeWithoutVoucherOrTax(t *testing.T) {
	breakdown, err := PriceCart([]Line{
		{Product: product(1, "1233.00", "0"), Quantity: 1},
	}, decimal.Zero)
	require.NoError(t, err)

	breakdown.Finalize(d("123.30"), decimal.Zero)
	assert.True(t, breakdown.TotalAmount.Equal(d("1109.70")), "got %s", breakdown.TotalAmount)
}

func TestChangeDue(t *testing.T) {
	change, err := ChangeDue(d("89.60"), d("100.00"))
	require.NoError(t, err)
	assert.True(t, change.Equal(d("10.40")), "got %s", change)
}

func TestChangeDueExactPayment(t *testing.T) {
	change, err := ChangeDue(d("89.60"), d("89.60"))
	require.NoError(t, err)
	assert.True(t, change.IsZero())
}

func TestChangeDueInsufficientPayment(t *testing.T) {
	_, err := ChangeDue(d("89.60"), d("89.59"))
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)
}

func TestPriceCartRejectsEmptyCart(t *testing.T) {
	_, err := PriceCart(nil, decimal.Zero)
	assert.Error(t, err)
}

func TestPriceCartRejectsNonPositiveQuantity(t *testing.T) {
	_, err := PriceCart([]Line{
		{Product: product(1, "100.00", "0"), Quantity: 0},
	}, decimal.Zero)
	assert.Error(t, err)
}
