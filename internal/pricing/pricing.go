// Package pricing computes checkout totals. Every function is pure: inputs
// are product snapshots and percentages, output is a Breakdown. The order is
// fixed and not configurable: per-item discounts, then the tier discount on
// the subtotal, then the voucher discount on the remainder, then flat tax.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type Line struct {
	Product  domain.Product
	Quantity int
}

type Breakdown struct {
	Items           []domain.TransactionItem
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	VoucherDiscount decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
}

// Round2 rounds a currency amount to 2 decimal places, half away from zero.
// Amounts are never negative here, so this is round-half-up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal applies the per-item discount to unit_price x quantity and
// rounds once, at the line boundary.
func LineTotal(unitPrice decimal.Decimal, quantity int, discountPercent decimal.Decimal) decimal.Decimal {
	gross := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	return Round2(gross.Mul(factor))
}

// PriceCart builds item snapshots and computes the subtotal and the tier
// discount. Voucher and tax stages are applied afterwards because the
// voucher must be validated against the tier-discounted amount first.
func PriceCart(lines []Line, tierDiscountPercent decimal.Decimal) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, fmt.Errorf("cart must contain at least one item")
	}

	b := Breakdown{
		Items:    make([]domain.TransactionItem, 0, len(lines)),
		Subtotal: decimal.Zero,
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Breakdown{}, fmt.Errorf("quantity for product %s must be positive", line.Product.SKU)
		}
		lineTotal := LineTotal(line.Product.Price, line.Quantity, line.Product.DiscountPercent)
		b.Items = append(b.Items, domain.TransactionItem{
			ProductID:       line.Product.ID,
			ProductSKU:      line.Product.SKU,
			ProductName:     line.Product.Name,
			UnitPrice:       line.Product.Price,
			Quantity:        line.Quantity,
			DiscountPercent: line.Product.DiscountPercent,
			LineTotal:       lineTotal,
		})
		b.Subtotal = b.Subtotal.Add(lineTotal)
	}

	if tierDiscountPercent.IsNegative() {
		return Breakdown{}, fmt.Errorf("tier discount percent must not be negative")
	}
	b.DiscountAmount = Round2(b.Subtotal.Mul(tierDiscountPercent.Div(hundred)))
	return b, nil
}

// EligibleForVoucher is the amount voucher rules are evaluated against.
func (b Breakdown) EligibleForVoucher() decimal.Decimal {
	return b.Subtotal.Sub(b.DiscountAmount)
}

// Finalize applies the voucher discount and the flat tax, in that order, and
// fills in the total.
func (b *Breakdown) Finalize(voucherDiscount decimal.Decimal, taxRatePercent decimal.Decimal) {
	b.VoucherDiscount = voucherDiscount
	taxable := b.Subtotal.Sub(b.DiscountAmount).Sub(b.VoucherDiscount)
	b.TaxAmount = Round2(taxable.Mul(taxRatePercent.Div(hundred)))
	b.TotalAmount = taxable.Add(b.TaxAmount)
}

// ChangeDue validates the tendered amount against the total. A zero change
// is valid; a shortfall of any size is not.
func ChangeDue(total decimal.Decimal, amountReceived decimal.Decimal) (decimal.Decimal, error) {
	change := amountReceived.Sub(total)
	if change.IsNegative() {
		return decimal.Zero, domain.ErrInsufficientPayment
	}
	return change, nil
}
