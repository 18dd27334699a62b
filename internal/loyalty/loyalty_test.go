package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glowpos/backend/internal/domain"
)

func ladder() []domain.LoyaltyTier {
	maxBronze, maxSilver, maxGold := int64(99), int64(499), int64(999)
	return []domain.LoyaltyTier{
		{ID: 1, Name: "Bronze", MinPoints: 1, MaxPoints: &maxBronze, DiscountPercent: decimal.NewFromInt(5), PointsMultiplier: decimal.NewFromInt(1)},
		{ID: 2, Name: "Silver", MinPoints: 100, MaxPoints: &maxSilver, DiscountPercent: decimal.NewFromInt(10), PointsMultiplier: decimal.RequireFromString("1.5")},
		{ID: 3, Name: "Gold", MinPoints: 500, MaxPoints: &maxGold, DiscountPercent: decimal.NewFromInt(15), PointsMultiplier: decimal.NewFromInt(2)},
		{ID: 4, Name: "Platinum", MinPoints: 1000, DiscountPercent: decimal.NewFromInt(20), PointsMultiplier: decimal.NewFromInt(2)},
	}
}

func TestPointsEarnedFloors(t *testing.T) {
	points := PointsEarned(decimal.RequireFromString("1109.70"), decimal.RequireFromString("1.5"))
	assert.Equal(t, int64(1664), points)
}

func TestPointsEarnedWholeMultiplier(t *testing.T) {
	points := PointsEarned(decimal.RequireFromString("142.50"), decimal.NewFromInt(1))
	assert.Equal(t, int64(142), points)
}

func TestPointsEarnedNeverNegative(t *testing.T) {
	assert.Equal(t, int64(0), PointsEarned(decimal.RequireFromString("-5"), decimal.NewFromInt(1)))
}

func TestResolveTierBands(t *testing.T) {
	cases := []struct {
		lifetime int64
		want     string
	}{
		{0, "Bronze"}, // below the lowest band resolves to the lowest band
		{1, "Bronze"},
		{95, "Bronze"},
		{99, "Bronze"},
		{100, "Silver"},
		{105, "Silver"},
		{499, "Silver"},
		{620, "Gold"},
		{999, "Gold"},
		{1000, "Platinum"},
		{50000, "Platinum"},
	}
	for _, tc := range cases {
		tier, ok := ResolveTier(ladder(), tc.lifetime)
		require.True(t, ok)
		assert.Equal(t, tc.want, tier.Name, "lifetime %d", tc.lifetime)
	}
}

func TestResolveTierIsIdempotent(t *testing.T) {
	first, ok := ResolveTier(ladder(), 237)
	require.True(t, ok)
	second, ok := ResolveTier(ladder(), 237)
	require.True(t, ok)
	assert.Equal(t, first.ID, second.ID)
}

func TestValidateBandsAcceptsContiguousLadder(t *testing.T) {
	require.NoError(t, ValidateBands(ladder()))
}

func TestValidateBandsRejectsGap(t *testing.T) {
	tiers := ladder()
	tiers[1].MinPoints = 150
	assert.Error(t, ValidateBands(tiers))
}

func TestValidateBandsRejectsOverlap(t *testing.T) {
	tiers := ladder()
	tiers[1].MinPoints = 90
	assert.Error(t, ValidateBands(tiers))
}

func TestValidateBandsRejectsClosedTopBand(t *testing.T) {
	tiers := ladder()
	maxPlatinum := int64(5000)
	tiers[3].MaxPoints = &maxPlatinum
	assert.Error(t, ValidateBands(tiers))
}

func TestValidateBandsRejectsOpenMiddleBand(t *testing.T) {
	tiers := ladder()
	tiers[1].MaxPoints = nil
	assert.Error(t, ValidateBands(tiers))
}

func TestValidateBandsRejectsEmpty(t *testing.T) {
	assert.Error(t, ValidateBands(nil))
}
