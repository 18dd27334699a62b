package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"glowpos/backend/internal/cache"
	"glowpos/backend/internal/domain"
	"glowpos/backend/internal/loyalty"
	"glowpos/backend/internal/pricing"
	"glowpos/backend/internal/store"
	"glowpos/backend/internal/suggest"
	"glowpos/backend/internal/voucher"
)

type contextKey string

const actorContextKey contextKey = "actor"

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	receipts   cache.ReceiptCache
	receiptTTL time.Duration
	suggester  *suggest.Engine
	now        func() time.Time
}

func New(repo store.Repository, receipts cache.ReceiptCache, receiptTTL time.Duration) *Service {
	if receipts == nil {
		receipts = cache.NoopReceiptCache{}
	}
	if receiptTTL <= 0 {
		receiptTTL = 15 * time.Minute
	}
	return &Service{
		repo:       repo,
		receipts:   receipts,
		receiptTTL: receiptTTL,
		suggester:  suggest.NewEngine(),
		now:        time.Now,
	}
}

// ValidateTierConfig runs at startup. A tier ladder with gaps or overlaps
// would make accruals ambiguous, so the process refuses to start on one.
func (s *Service) ValidateTierConfig(ctx context.Context) error {
	tiers, err := s.repo.ListTiers(ctx)
	if err != nil {
		return fmt.Errorf("load loyalty tiers: %w", err)
	}
	if err := loyalty.ValidateBands(tiers); err != nil {
		return fmt.Errorf("loyalty tier configuration: %w", err)
	}
	return nil
}

// Checkout prices the cart, validates payment and voucher eligibility, then
// hands the fully priced transaction to the repository for the atomic
// commit. Tax rate is snapshotted from settings once per request.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		p, ok := products[item.ProductID]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if !p.IsActive {
			return nil, domain.ErrProductInactive
		}
		if p.StockQuantity < item.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID: p.ID,
				SKU:       p.SKU,
				Requested: item.Quantity,
				Available: p.StockQuantity,
			}
		}
		lines = append(lines, pricing.Line{Product: p, Quantity: item.Quantity})
	}

	tierDiscountPercent := decimal.Zero
	if req.CustomerID != nil {
		member, err := s.repo.GetMemberByCustomerID(ctx, *req.CustomerID)
		switch {
		case err == nil && member.IsActive:
			tiers, err := s.repo.ListTiers(ctx)
			if err != nil {
				return nil, err
			}
			for _, tier := range tiers {
				if tier.ID == member.TierID {
					tierDiscountPercent = tier.DiscountPercent
					break
				}
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	breakdown, err := pricing.PriceCart(lines, tierDiscountPercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}

	voucherCode := strings.ToUpper(strings.TrimSpace(req.VoucherCode))
	voucherDiscount := decimal.Zero
	if voucherCode != "" {
		v, err := s.repo.GetVoucherByCode(ctx, voucherCode)
		if err != nil {
			return nil, err
		}
		if err := voucher.Validate(*v, breakdown.EligibleForVoucher(), s.now().UTC()); err != nil {
			return nil, err
		}
		voucherDiscount = voucher.Discount(*v, breakdown.EligibleForVoucher())
	}

	breakdown.Finalize(voucherDiscount, settings.TaxRatePercent)

	change, err := pricing.ChangeDue(breakdown.TotalAmount, req.AmountReceived)
	if err != nil {
		return nil, err
	}

	actor, _ := ActorFromContext(ctx)
	tx := domain.Transaction{
		Code:            s.transactionCode(),
		CashierUsername: actor.Username,
		CustomerID:      req.CustomerID,
		Subtotal:        breakdown.Subtotal,
		DiscountAmount:  breakdown.DiscountAmount,
		VoucherCode:     voucherCode,
		VoucherDiscount: breakdown.VoucherDiscount,
		TaxAmount:       breakdown.TaxAmount,
		TotalAmount:     breakdown.TotalAmount,
		PaymentMethod:   defaultString(strings.TrimSpace(req.PaymentMethod), "cash"),
		AmountReceived:  req.AmountReceived,
		ChangeAmount:    change,
		Notes:           strings.TrimSpace(req.Notes),
		Items:           breakdown.Items,
	}

	result, err := s.repo.CreateCheckout(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := s.receipts.Set(ctx, result.Transaction.Code, &result.Transaction, s.receiptTTL); err != nil {
		log.Warn().Err(err).Str("code", result.Transaction.Code).Msg("receipt cache write failed")
	}

	for _, alert := range result.LowStock {
		log.Warn().
			Str("sku", alert.SKU).
			Int("stock_quantity", alert.StockQuantity).
			Int("threshold", alert.Threshold).
			Msg("product is low on stock")
	}

	s.logActivity(ctx, "checkout", "transaction", result.Transaction.Code,
		fmt.Sprintf("total=%s payment=%s voucher=%s", result.Transaction.TotalAmount.StringFixed(2),
			result.Transaction.PaymentMethod, defaultString(voucherCode, "-")))

	return &domain.CheckoutResponse{
		Transaction: result.Transaction,
		LowStock:    result.LowStock,
		Loyalty:     result.Loyalty,
	}, nil
}

// VoidTransaction reverses a completed sale. Only supervisors and admins may
// void; cashiers must call one over.
func (s *Service) VoidTransaction(ctx context.Context, code string, reason string) (*domain.Transaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleSupervisor && actor.Role != domain.RoleAdmin) {
		return nil, domain.ErrVoidNotAuthorized
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: transaction code is required", store.ErrInvalid)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: void reason is required", store.ErrInvalid)
	}

	voided, err := s.repo.VoidTransaction(ctx, code, reason, actor.Username, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.receipts.Set(ctx, voided.Code, voided, s.receiptTTL); err != nil {
		log.Warn().Err(err).Str("code", voided.Code).Msg("receipt cache refresh failed")
	}

	s.logActivity(ctx, "void", "transaction", voided.Code, fmt.Sprintf("reason=%s", reason))
	return voided, nil
}

func (s *Service) GetTransaction(ctx context.Context, code string) (*domain.Transaction, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: transaction code is required", store.ErrInvalid)
	}

	if cached, ok, err := s.receipts.Get(ctx, code); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Warn().Err(err).Str("code", code).Msg("receipt cache read failed")
	}

	tx, err := s.repo.GetTransactionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.receipts.Set(ctx, code, tx, s.receiptTTL); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("receipt cache write failed")
	}
	return tx, nil
}

// SuggestAddOn proposes one product for the cashier to offer against the
// in-progress cart. No suggestion is a normal outcome, not an error.
func (s *Service) SuggestAddOn(ctx context.Context, items []domain.CheckoutItem) (*suggest.Suggestion, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return s.suggester.Suggest(items, products), nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, limit)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() || req.DiscountPercent.IsNegative() || req.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: price, discount and stock must not be negative", store.ErrInvalid)
	}
	if req.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: discount percent must be at most 100", store.ErrInvalid)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		SKU:             strings.TrimSpace(req.SKU),
		Name:            strings.TrimSpace(req.Name),
		Category:        strings.TrimSpace(req.Category),
		Price:           req.Price,
		DiscountPercent: req.DiscountPercent,
		StockQuantity:   req.StockQuantity,
	})
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, "product_create", "product", created.SKU, fmt.Sprintf("price=%s", created.Price.StringFixed(2)))
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (*domain.Product, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, fmt.Errorf("%w: price must not be negative", store.ErrInvalid)
		}
		updated.Price = *req.Price
	}
	if req.DiscountPercent != nil {
		if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: discount percent must be between 0 and 100", store.ErrInvalid)
		}
		updated.DiscountPercent = *req.DiscountPercent
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return nil, fmt.Errorf("%w: stock must not be negative", store.ErrInvalid)
		}
		updated.StockQuantity = *req.StockQuantity
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, "product_update", "product", saved.SKU, fmt.Sprintf("active=%t", saved.IsActive))
	return saved, nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) CreateVoucher(ctx context.Context, req domain.VoucherCreateRequest) (*domain.Voucher, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if req.DiscountType != domain.VoucherTypePercentage && req.DiscountType != domain.VoucherTypeFixed {
		return nil, fmt.Errorf("%w: discount_type must be percentage or fixed", store.ErrInvalid)
	}
	if !req.DiscountValue.IsPositive() {
		return nil, fmt.Errorf("%w: discount value must be positive", store.ErrInvalid)
	}
	if req.DiscountType == domain.VoucherTypePercentage && req.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("%w: percentage discount must be at most 100", store.ErrInvalid)
	}
	if req.MinPurchase.IsNegative() {
		return nil, fmt.Errorf("%w: minimum purchase must not be negative", store.ErrInvalid)
	}
	if !req.ValidUntil.After(req.ValidFrom) {
		return nil, fmt.Errorf("%w: valid_until must be after valid_from", store.ErrInvalid)
	}
	if req.UsageLimit != nil && *req.UsageLimit < 1 {
		return nil, fmt.Errorf("%w: usage limit must be positive", store.ErrInvalid)
	}

	created, err := s.repo.CreateVoucher(ctx, domain.Voucher{
		Code:          req.Code,
		Description:   strings.TrimSpace(req.Description),
		DiscountType:  req.DiscountType,
		DiscountValue: req.DiscountValue,
		MinPurchase:   req.MinPurchase,
		MaxDiscount:   req.MaxDiscount,
		UsageLimit:    req.UsageLimit,
		ValidFrom:     req.ValidFrom,
		ValidUntil:    req.ValidUntil,
		IsActive:      true,
	})
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, "voucher_create", "voucher", created.Code, fmt.Sprintf("type=%s value=%s", created.DiscountType, created.DiscountValue))
	return created, nil
}

func (s *Service) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	return s.repo.ListVouchers(ctx)
}

// ValidateVoucher previews a voucher against an amount without consuming a
// use. Invalid vouchers report the reason instead of failing the call.
func (s *Service) ValidateVoucher(ctx context.Context, req domain.VoucherValidateRequest) (*domain.VoucherValidateResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, fmt.Errorf("%w: voucher code is required", store.ErrInvalid)
	}

	v, err := s.repo.GetVoucherByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrVoucherNotFound) {
			return &domain.VoucherValidateResponse{Valid: false, Code: code, Reason: err.Error()}, nil
		}
		return nil, err
	}

	if err := voucher.Validate(*v, req.Amount, s.now().UTC()); err != nil {
		return &domain.VoucherValidateResponse{Valid: false, Code: code, Reason: err.Error()}, nil
	}
	return &domain.VoucherValidateResponse{
		Valid:    true,
		Code:     code,
		Discount: voucher.Discount(*v, req.Amount),
	}, nil
}

// EnrollMember enrolls an existing customer, or creates the customer first
// when only contact details are supplied.
func (s *Service) EnrollMember(ctx context.Context, req domain.MemberEnrollRequest) (*domain.LoyaltyMember, error) {
	customerID := int64(0)
	if req.CustomerID != nil {
		customerID = *req.CustomerID
	} else {
		if strings.TrimSpace(req.Name) == "" {
			return nil, fmt.Errorf("%w: customer_id or name is required", store.ErrInvalid)
		}
		customer, err := s.repo.CreateCustomer(ctx, domain.Customer{
			Name:  strings.TrimSpace(req.Name),
			Phone: strings.TrimSpace(req.Phone),
			Email: strings.TrimSpace(req.Email),
		})
		if err != nil {
			return nil, err
		}
		customerID = customer.ID
	}

	member, err := s.repo.EnrollMember(ctx, domain.LoyaltyMember{CustomerID: customerID})
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, "member_enroll", "member", member.MemberNumber, fmt.Sprintf("customer_id=%d", customerID))
	return member, nil
}

func (s *Service) ListMembers(ctx context.Context) ([]domain.LoyaltyMember, error) {
	return s.repo.ListMembers(ctx)
}

func (s *Service) ListTiers(ctx context.Context) ([]domain.LoyaltyTier, error) {
	return s.repo.ListTiers(ctx)
}

func (s *Service) ListMemberLedger(ctx context.Context, memberID int64, limit int) ([]domain.LoyaltyEntry, error) {
	return s.repo.ListMemberLedger(ctx, memberID, limit)
}

func (s *Service) AdjustPoints(ctx context.Context, memberID int64, req domain.PointsAdjustRequest) (*domain.LoyaltyMember, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	member, err := s.repo.AdjustPoints(ctx, memberID, req.Points, strings.TrimSpace(req.Notes))
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, "points_adjust", "member", member.MemberNumber, fmt.Sprintf("points=%d", req.Points))
	return member, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.repo.GetSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.Settings{}, err
	}

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if req.StoreName != nil {
		settings.StoreName = strings.TrimSpace(*req.StoreName)
	}
	if req.CurrencyCode != nil {
		settings.CurrencyCode = strings.ToUpper(strings.TrimSpace(*req.CurrencyCode))
	}
	if req.TaxRatePercent != nil {
		settings.TaxRatePercent = *req.TaxRatePercent
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Settings{}, fmt.Errorf("%w: low stock threshold must not be negative", store.ErrInvalid)
		}
		settings.LowStockThreshold = *req.LowStockThreshold
	}

	updated, err := s.repo.UpdateSettings(ctx, settings)
	if err != nil {
		return domain.Settings{}, err
	}
	s.logActivity(ctx, "settings_update", "settings", "store", fmt.Sprintf("tax_rate=%s", updated.TaxRatePercent))
	return updated, nil
}

func (s *Service) ListActivityLogs(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	return s.repo.ListActivityLogs(ctx, limit)
}

// transactionCode is second-resolution by design: receipts quote it verbatim
// and the format predates this backend. Collisions within the same second
// surface as ErrDuplicateTransactionID and the caller retries.
func (s *Service) transactionCode() string {
	return "TXN-" + s.now().UTC().Format("20060102150405")
}

// logActivity is best-effort: the sale is already committed, so a failed
// audit write is logged and swallowed.
func (s *Service) logActivity(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateActivityLog(ctx, domain.ActivityLog{
		Username:   actor.Username,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("activity log write failed")
	}
}

func requireRole(ctx context.Context, role string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != role {
		return fmt.Errorf("%w: %s role required", domain.ErrForbiddenRole, role)
	}
	return nil
}

// normalizeItems merges duplicate product lines and orders them so the
// repository locks rows in a stable order.
func normalizeItems(items []domain.CheckoutItem) ([]domain.CheckoutItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart must contain at least one item", store.ErrInvalid)
	}

	merged := make(map[int64]int, len(items))
	for _, item := range items {
		if item.ProductID < 1 {
			return nil, fmt.Errorf("%w: product_id is required", store.ErrInvalid)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalid)
		}
		merged[item.ProductID] += item.Quantity
	}

	result := make([]domain.CheckoutItem, 0, len(merged))
	for productID, quantity := range merged {
		result = append(result, domain.CheckoutItem{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result, nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
