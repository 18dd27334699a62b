// Package loyalty holds the accrual and tier resolution rules. The ledger
// itself is append-only and lives in the store; these functions are pure so
// both store implementations share the exact same arithmetic.
package loyalty

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
)

// PointsEarned floors total x multiplier. Fractional points are never
// awarded.
func PointsEarned(total decimal.Decimal, multiplier decimal.Decimal) int64 {
	if total.IsNegative() || multiplier.IsNegative() {
		return 0
	}
	return total.Mul(multiplier).Floor().IntPart()
}

// ResolveTier picks the band containing lifetimePoints. Lifetime totals
// below the lowest band resolve to the lowest band, so freshly enrolled
// members always have a tier. Resolution is idempotent: resolving twice for
// the same lifetime total yields the same tier.
func ResolveTier(tiers []domain.LoyaltyTier, lifetimePoints int64) (domain.LoyaltyTier, bool) {
	if len(tiers) == 0 {
		return domain.LoyaltyTier{}, false
	}
	sorted := sortedByMinPoints(tiers)
	for i := len(sorted) - 1; i >= 0; i-- {
		t := sorted[i]
		if lifetimePoints >= t.MinPoints && (t.MaxPoints == nil || lifetimePoints <= *t.MaxPoints) {
			return t, true
		}
	}
	return sorted[0], true
}

// ValidateBands rejects tier configurations with gaps, overlaps, a closed
// top band, or an open-ended band anywhere but the top. Run once at startup
// so a misconfigured ladder fails fast instead of corrupting accruals.
func ValidateBands(tiers []domain.LoyaltyTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one loyalty tier is required")
	}
	sorted := sortedByMinPoints(tiers)
	for i, t := range sorted {
		last := i == len(sorted)-1
		if last {
			if t.MaxPoints != nil {
				return fmt.Errorf("top tier %q must be open-ended", t.Name)
			}
			continue
		}
		if t.MaxPoints == nil {
			return fmt.Errorf("tier %q is open-ended but is not the top tier", t.Name)
		}
		if *t.MaxPoints < t.MinPoints {
			return fmt.Errorf("tier %q has max_points below min_points", t.Name)
		}
		next := sorted[i+1]
		if next.MinPoints != *t.MaxPoints+1 {
			return fmt.Errorf("tiers %q and %q do not form contiguous bands: %d..%d then %d",
				t.Name, next.Name, t.MinPoints, *t.MaxPoints, next.MinPoints)
		}
	}
	return nil
}

func sortedByMinPoints(tiers []domain.LoyaltyTier) []domain.LoyaltyTier {
	sorted := make([]domain.LoyaltyTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPoints < sorted[j].MinPoints })
	return sorted
}
