// Package voucher holds voucher eligibility rules and discount arithmetic.
// State transitions (used_count changes) live in the store so they stay
// inside the checkout commit.
package voucher

import (
	"time"

	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
	"glowpos/backend/internal/pricing"
)

var hundred = decimal.NewFromInt(100)

// Validate checks a voucher against the tier-discounted cart amount. Checks
// run in a fixed order so callers always see the most fundamental failure
// first: active flag, validity window, usage limit, minimum purchase.
func Validate(v domain.Voucher, eligible decimal.Decimal, now time.Time) error {
	if !v.IsActive {
		return domain.ErrVoucherInactive
	}
	if now.Before(v.ValidFrom) || now.After(v.ValidUntil) {
		return domain.ErrVoucherExpired
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return domain.ErrVoucherExhausted
	}
	if eligible.LessThan(v.MinPurchase) {
		return &domain.MinPurchaseError{MinPurchase: v.MinPurchase, Eligible: eligible}
	}
	return nil
}

// Discount computes the voucher discount against the eligible amount.
// Percentage vouchers are capped by max_discount when one is set; fixed
// vouchers never exceed the eligible amount.
func Discount(v domain.Voucher, eligible decimal.Decimal) decimal.Decimal {
	switch v.DiscountType {
	case domain.VoucherTypePercentage:
		discount := pricing.Round2(eligible.Mul(v.DiscountValue.Div(hundred)))
		if v.MaxDiscount != nil && discount.GreaterThan(*v.MaxDiscount) {
			discount = *v.MaxDiscount
		}
		return discount
	case domain.VoucherTypeFixed:
		if v.DiscountValue.GreaterThan(eligible) {
			return eligible
		}
		return v.DiscountValue
	default:
		return decimal.Zero
	}
}
