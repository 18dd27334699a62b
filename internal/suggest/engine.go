// Package suggest picks one add-on product for the cashier to offer while
// ringing up a cart. Scoring is heuristic and must stay fast enough to run
// inline on every suggestion request.
package suggest

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
)

type Engine struct {
	minScore float64
}

func NewEngine() *Engine {
	return &Engine{minScore: 0.35}
}

type Suggestion struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Reason    string          `json:"reason"`
	Score     float64         `json:"score"`
}

// Suggest scores every sellable product outside the cart and returns the
// best candidate, or nil when nothing clears the confidence floor.
func (e *Engine) Suggest(items []domain.CheckoutItem, products []domain.Product) *Suggestion {
	cart := normalizeItems(items)
	if len(cart) == 0 {
		return nil
	}

	inCart := make(map[int64]struct{}, len(cart))
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	cartCategories := make(map[string]int)
	for _, item := range cart {
		inCart[item.ProductID] = struct{}{}
		if p, ok := byID[item.ProductID]; ok {
			cartCategories[p.Category] += item.Quantity
		}
	}

	var best *Suggestion
	bestScore := 0.0

	for _, p := range products {
		if _, exists := inCart[p.ID]; exists {
			continue
		}
		if !p.IsActive || p.StockQuantity <= 0 {
			continue
		}

		affinity := categoryAffinity(cartCategories, p.Category)
		stockScore := clamp(float64(p.StockQuantity)/90.0, 0, 1)
		promoScore := clamp(decimalToFloat(p.DiscountPercent)/25.0, 0, 1)
		priceFit := priceBandFit(cart, byID, p.Price)

		score := 0.45*affinity +
			0.20*promoScore +
			0.20*priceFit +
			0.15*stockScore

		if score < e.minScore || score <= bestScore {
			continue
		}

		bestScore = score
		best = &Suggestion{
			ProductID: p.ID,
			SKU:       p.SKU,
			Name:      p.Name,
			Price:     p.Price,
			Reason:    deriveReason(affinity, promoScore, priceFit, stockScore),
			Score:     round2(score),
		}
	}

	return best
}

// categoryAffinity rates how well a candidate category complements what is
// already in the basket. Same-category attachments dominate in beauty
// retail; the cross-category pairs come from what the floor staff actually
// bundle.
func categoryAffinity(cartCategories map[string]int, candidate string) float64 {
	if len(cartCategories) == 0 {
		return 0.4
	}
	if _, ok := cartCategories[candidate]; ok {
		return 0.9
	}

	pairs := map[string]map[string]float64{
		"skincare": {"makeup": 0.6, "tools": 0.75, "haircare": 0.45},
		"makeup":   {"skincare": 0.7, "tools": 0.8, "haircare": 0.4},
		"haircare": {"skincare": 0.5, "tools": 0.6, "makeup": 0.4},
		"tools":    {"skincare": 0.65, "makeup": 0.65, "haircare": 0.5},
	}

	best := 0.3
	for category := range cartCategories {
		if affinity, ok := pairs[category][candidate]; ok && affinity > best {
			best = affinity
		}
	}
	return best
}

// priceBandFit favours add-ons noticeably cheaper than the cart average:
// a 150 polish attaches to a 1200 serum, not the other way round.
func priceBandFit(cart []domain.CheckoutItem, byID map[int64]domain.Product, candidatePrice decimal.Decimal) float64 {
	total := decimal.Zero
	count := 0
	for _, item := range cart {
		if p, ok := byID[item.ProductID]; ok {
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
			count += item.Quantity
		}
	}
	if count == 0 || !total.IsPositive() {
		return 0.5
	}

	avg := total.Div(decimal.NewFromInt(int64(count)))
	ratio := decimalToFloat(candidatePrice) / decimalToFloat(avg)
	switch {
	case ratio <= 0.5:
		return 1.0
	case ratio <= 1.0:
		return 0.7
	case ratio <= 1.5:
		return 0.4
	default:
		return 0.15
	}
}

func deriveReason(affinity float64, promoScore float64, priceFit float64, stockScore float64) string {
	type reasonWeight struct {
		code  string
		value float64
	}

	reasons := []reasonWeight{
		{code: "pairs_with_cart", value: affinity},
		{code: "on_promotion", value: promoScore},
		{code: "easy_add_on", value: priceFit},
		{code: "healthy_stock", value: stockScore},
	}

	sort.Slice(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

func normalizeItems(items []domain.CheckoutItem) []domain.CheckoutItem {
	aggregated := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID < 1 || item.Quantity < 1 {
			continue
		}
		aggregated[item.ProductID] += item.Quantity
	}

	result := make([]domain.CheckoutItem, 0, len(aggregated))
	for id, qty := range aggregated {
		result = append(result, domain.CheckoutItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result
}

func decimalToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
