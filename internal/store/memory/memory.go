package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"glowpos/backend/internal/domain"
	"glowpos/backend/internal/loyalty"
	"glowpos/backend/internal/store"
	"glowpos/backend/internal/xid"
)

type Store struct {
	mu sync.RWMutex

	nextProductID  int64
	nextVoucherID  int64
	nextCustomerID int64
	nextMemberID   int64
	nextLedgerID   int64
	nextTxID       int64
	nextItemID     int64

	products           map[int64]domain.Product
	productIDBySKU     map[string]int64
	vouchersByCode     map[string]domain.Voucher
	customers          map[int64]domain.Customer
	members            map[int64]domain.LoyaltyMember
	memberIDByCustomer map[int64]int64
	tiers              []domain.LoyaltyTier
	ledgerByMember     map[int64][]domain.LoyaltyEntry
	transactionsByCode map[string]*domain.Transaction
	settings           domain.Settings
	activityLogs       []domain.ActivityLog
	usersByUsername    map[string]domain.UserAccount
}

func defaultTiers() []domain.LoyaltyTier {
	maxBronze, maxSilver, maxGold := int64(99), int64(499), int64(999)
	return []domain.LoyaltyTier{
		{ID: 1, Name: "Bronze", MinPoints: 1, MaxPoints: &maxBronze, DiscountPercent: decimal.NewFromInt(5), PointsMultiplier: decimal.NewFromInt(1)},
		{ID: 2, Name: "Silver", MinPoints: 100, MaxPoints: &maxSilver, DiscountPercent: decimal.NewFromInt(10), PointsMultiplier: decimal.RequireFromString("1.5")},
		{ID: 3, Name: "Gold", MinPoints: 500, MaxPoints: &maxGold, DiscountPercent: decimal.NewFromInt(15), PointsMultiplier: decimal.NewFromInt(2)},
		{ID: 4, Name: "Platinum", MinPoints: 1000, DiscountPercent: decimal.NewFromInt(20), PointsMultiplier: decimal.NewFromInt(2)},
	}
}

func defaultSettings() domain.Settings {
	return domain.Settings{
		StoreName:         "Glow Beauty Supply",
		CurrencyCode:      "PHP",
		TaxRatePercent:    decimal.Zero,
		LowStockThreshold: 10,
	}
}

// New returns an empty store with the default tier ladder and settings.
func New() *Store {
	return &Store{
		products:           make(map[int64]domain.Product),
		productIDBySKU:     make(map[string]int64),
		vouchersByCode:     make(map[string]domain.Voucher),
		customers:          make(map[int64]domain.Customer),
		members:            make(map[int64]domain.LoyaltyMember),
		memberIDByCustomer: make(map[int64]int64),
		tiers:              defaultTiers(),
		ledgerByMember:     make(map[int64][]domain.LoyaltyEntry),
		transactionsByCode: make(map[string]*domain.Transaction),
		settings:           defaultSettings(),
		activityLogs:       make([]domain.ActivityLog, 0, 128),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_*_PASSWORD environment variables, with dev
// defaults and a warning when unset. These are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	supervisorPwd := envOr("SEED_SUPERVISOR_PASSWORD", "super123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Msg("memory-store: using default dev credentials, set SEED_ADMIN_PASSWORD / SEED_SUPERVISOR_PASSWORD / SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"supervisor", supervisorPwd, domain.RoleSupervisor},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", u.username).Msg("memory-store: failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store pre-loaded with a demo catalog, vouchers, a
// small loyalty base and dev user accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	d := decimal.RequireFromString
	products := []domain.Product{
		{SKU: "SKU-SERUM-01", Name: "Vitamin C Serum", Category: "skincare", Price: d("1233.00"), StockQuantity: 50},
		{SKU: "SKU-TONER-01", Name: "Rose Water Toner", Category: "skincare", Price: d("350.00"), StockQuantity: 80},
		{SKU: "SKU-LIP-01", Name: "Matte Lipstick", Category: "makeup", Price: d("499.00"), DiscountPercent: decimal.NewFromInt(10), StockQuantity: 60},
		{SKU: "SKU-MASK-01", Name: "Clay Mask", Category: "skincare", Price: d("275.50"), StockQuantity: 40},
		{SKU: "SKU-SUN-01", Name: "Sunscreen SPF50", Category: "skincare", Price: d("620.00"), StockQuantity: 70},
		{SKU: "SKU-CLEAN-01", Name: "Facial Cleanser", Category: "skincare", Price: d("310.00"), StockQuantity: 90},
		{SKU: "SKU-CREAM-01", Name: "Night Cream", Category: "skincare", Price: d("880.00"), DiscountPercent: decimal.NewFromInt(5), StockQuantity: 30},
		{SKU: "SKU-POLISH-01", Name: "Nail Polish", Category: "makeup", Price: d("150.00"), StockQuantity: 100},
	}
	for _, p := range products {
		s.nextProductID++
		p.ID = s.nextProductID
		p.IsActive = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
		s.productIDBySKU[p.SKU] = p.ID
	}

	usage := 500
	vouchers := []domain.Voucher{
		{
			Code: "BEAUTY10", Description: "10% off skincare haul",
			DiscountType: domain.VoucherTypePercentage, DiscountValue: decimal.NewFromInt(10),
			MinPurchase: d("500.00"), UsageLimit: &usage,
		},
		{
			Code: "WELCOME50", Description: "Flat 50 off first basket",
			DiscountType: domain.VoucherTypeFixed, DiscountValue: d("50.00"),
			MinPurchase: d("300.00"),
		},
	}
	for _, v := range vouchers {
		s.nextVoucherID++
		v.ID = s.nextVoucherID
		v.IsActive = true
		v.ValidFrom = now.AddDate(0, -1, 0)
		v.ValidUntil = now.AddDate(1, 0, 0)
		v.CreatedAt = now
		s.vouchersByCode[v.Code] = v
	}

	seedMembers := []struct {
		name     string
		phone    string
		lifetime int64
	}{
		{"Maya Santos", "+63-917-555-0101", 95},
		{"Lena Cruz", "+63-917-555-0102", 620},
	}
	for _, m := range seedMembers {
		s.nextCustomerID++
		customer := domain.Customer{ID: s.nextCustomerID, Name: m.name, Phone: m.phone, CreatedAt: now}
		s.customers[customer.ID] = customer

		tier, _ := loyalty.ResolveTier(s.tiers, m.lifetime)
		s.nextMemberID++
		member := domain.LoyaltyMember{
			ID:             s.nextMemberID,
			CustomerID:     customer.ID,
			MemberNumber:   fmt.Sprintf("MBR-%05d", s.nextMemberID),
			CardBarcode:    xid.New("CARD"),
			TierID:         tier.ID,
			CurrentPoints:  m.lifetime,
			LifetimePoints: m.lifetime,
			IsActive:       true,
			JoinedAt:       now,
		}
		s.members[member.ID] = member
		s.memberIDByCustomer[customer.ID] = member.ID
	}

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	sku := strings.TrimSpace(product.SKU)
	if sku == "" || strings.TrimSpace(product.Name) == "" {
		return nil, fmt.Errorf("%w: sku and name are required", store.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productIDBySKU[sku]; exists {
		return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalid, sku)
	}
	now := time.Now().UTC()
	s.nextProductID++
	product.ID = s.nextProductID
	product.SKU = sku
	product.IsActive = true
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	s.productIDBySKU[sku] = product.ID
	return &product, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	product.SKU = existing.SKU
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.IsActive && p.StockQuantity <= s.settings.LowStockThreshold {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StockQuantity < result[j].StockQuantity })
	return result, nil
}

func (s *Store) CreateVoucher(_ context.Context, voucher domain.Voucher) (*domain.Voucher, error) {
	code := strings.ToUpper(strings.TrimSpace(voucher.Code))
	if code == "" {
		return nil, fmt.Errorf("%w: voucher code is required", store.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vouchersByCode[code]; exists {
		return nil, fmt.Errorf("%w: voucher code %s already exists", store.ErrInvalid, code)
	}
	s.nextVoucherID++
	voucher.ID = s.nextVoucherID
	voucher.Code = code
	voucher.UsedCount = 0
	voucher.CreatedAt = time.Now().UTC()
	s.vouchersByCode[code] = voucher
	cloned := cloneVoucher(voucher)
	return &cloned, nil
}

func (s *Store) GetVoucherByCode(_ context.Context, code string) (*domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vouchersByCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, domain.ErrVoucherNotFound
	}
	cloned := cloneVoucher(v)
	return &cloned, nil
}

func (s *Store) ListVouchers(_ context.Context) ([]domain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Voucher, 0, len(s.vouchersByCode))
	for _, v := range s.vouchersByCode {
		result = append(result, cloneVoucher(v))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomerID++
	customer.ID = s.nextCustomerID
	customer.CreatedAt = time.Now().UTC()
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) EnrollMember(_ context.Context, member domain.LoyaltyMember) (*domain.LoyaltyMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[member.CustomerID]; !ok {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, member.CustomerID)
	}
	if _, exists := s.memberIDByCustomer[member.CustomerID]; exists {
		return nil, fmt.Errorf("%w: customer %d is already enrolled", store.ErrInvalid, member.CustomerID)
	}

	tier, ok := loyalty.ResolveTier(s.tiers, 0)
	if !ok {
		return nil, fmt.Errorf("no loyalty tiers configured")
	}
	s.nextMemberID++
	member.ID = s.nextMemberID
	member.MemberNumber = fmt.Sprintf("MBR-%05d", s.nextMemberID)
	if member.CardBarcode == "" {
		member.CardBarcode = xid.New("CARD")
	}
	member.TierID = tier.ID
	member.CurrentPoints = 0
	member.LifetimePoints = 0
	member.IsActive = true
	member.JoinedAt = time.Now().UTC()
	s.members[member.ID] = member
	s.memberIDByCustomer[member.CustomerID] = member.ID

	result := s.withTierName(member)
	return &result, nil
}

func (s *Store) GetMemberByID(_ context.Context, id int64) (*domain.LoyaltyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: member %d", store.ErrNotFound, id)
	}
	result := s.withTierName(m)
	return &result, nil
}

func (s *Store) GetMemberByCustomerID(_ context.Context, customerID int64) (*domain.LoyaltyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memberID, ok := s.memberIDByCustomer[customerID]
	if !ok {
		return nil, fmt.Errorf("%w: no member for customer %d", store.ErrNotFound, customerID)
	}
	result := s.withTierName(s.members[memberID])
	return &result, nil
}

func (s *Store) ListMembers(_ context.Context) ([]domain.LoyaltyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LoyaltyMember, 0, len(s.members))
	for _, m := range s.members {
		result = append(result, s.withTierName(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListTiers(_ context.Context) ([]domain.LoyaltyTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LoyaltyTier, len(s.tiers))
	copy(result, s.tiers)
	return result, nil
}

func (s *Store) ListMemberLedger(_ context.Context, memberID int64, limit int) ([]domain.LoyaltyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.members[memberID]; !ok {
		return nil, fmt.Errorf("%w: member %d", store.ErrNotFound, memberID)
	}
	entries := s.ledgerByMember[memberID]
	result := make([]domain.LoyaltyEntry, len(entries))
	copy(result, entries)
	// Newest first.
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) AdjustPoints(_ context.Context, memberID int64, points int64, notes string) (*domain.LoyaltyMember, error) {
	if points == 0 {
		return nil, fmt.Errorf("%w: adjustment must be non-zero", store.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[memberID]
	if !ok {
		return nil, fmt.Errorf("%w: member %d", store.ErrNotFound, memberID)
	}
	m.CurrentPoints = maxInt64(0, m.CurrentPoints+points)
	m.LifetimePoints = maxInt64(0, m.LifetimePoints+points)
	if tier, ok := loyalty.ResolveTier(s.tiers, m.LifetimePoints); ok {
		m.TierID = tier.ID
	}
	s.members[memberID] = m
	s.appendLedgerLocked(memberID, domain.LedgerTypeAdjust, points, m.CurrentPoints, "", notes)

	result := s.withTierName(m)
	return &result, nil
}

// CreateCheckout commits a priced transaction: stock reservation, voucher
// consumption and loyalty accrual all succeed or all fail. The caller owns
// pricing; this method owns every ledger transition.
func (s *Store) CreateCheckout(_ context.Context, tx domain.Transaction) (*store.CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByCode[tx.Code]; exists {
		return nil, domain.ErrDuplicateTransactionID
	}

	// Validate everything before mutating anything.
	for _, item := range tx.Items {
		p, ok := s.products[item.ProductID]
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
	}

	var voucherHeld *domain.Voucher
	if tx.VoucherCode != "" {
		v, ok := s.vouchersByCode[tx.VoucherCode]
		if !ok {
			return nil, domain.ErrVoucherNotFound
		}
		if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
			return nil, domain.ErrVoucherExhausted
		}
		voucherHeld = &v
	}

	var memberHeld *domain.LoyaltyMember
	if tx.CustomerID != nil {
		if memberID, ok := s.memberIDByCustomer[*tx.CustomerID]; ok {
			m := s.members[memberID]
			memberHeld = &m
		}
	}

	result := &store.CheckoutResult{}

	now := time.Now().UTC()
	for _, item := range tx.Items {
		p := s.products[item.ProductID]
		p.StockQuantity -= item.Quantity
		p.UpdatedAt = now
		s.products[p.ID] = p
		if p.StockQuantity <= s.settings.LowStockThreshold {
			result.LowStock = append(result.LowStock, domain.LowStockAlert{
				ProductID:     p.ID,
				SKU:           p.SKU,
				Name:          p.Name,
				StockQuantity: p.StockQuantity,
				Threshold:     s.settings.LowStockThreshold,
			})
		}
	}

	if voucherHeld != nil {
		voucherHeld.UsedCount++
		s.vouchersByCode[voucherHeld.Code] = *voucherHeld
	}

	if memberHeld != nil {
		multiplier := decimal.NewFromInt(1)
		if tier, ok := s.tierByID(memberHeld.TierID); ok {
			multiplier = tier.PointsMultiplier
		}
		points := loyalty.PointsEarned(tx.TotalAmount, multiplier)
		memberHeld.CurrentPoints += points
		memberHeld.LifetimePoints += points
		tierChanged := false
		tierName := ""
		if tier, ok := loyalty.ResolveTier(s.tiers, memberHeld.LifetimePoints); ok {
			tierChanged = tier.ID != memberHeld.TierID
			memberHeld.TierID = tier.ID
			tierName = tier.Name
		}
		s.members[memberHeld.ID] = *memberHeld
		s.appendLedgerLocked(memberHeld.ID, domain.LedgerTypeEarn, points, memberHeld.CurrentPoints, tx.Code, "")

		tx.PointsEarned = points
		result.Loyalty = &domain.LoyaltyResult{
			MemberID:     memberHeld.ID,
			PointsEarned: points,
			BalanceAfter: memberHeld.CurrentPoints,
			TierName:     tierName,
			TierChanged:  tierChanged,
		}
	}

	s.nextTxID++
	tx.ID = s.nextTxID
	tx.Status = domain.TxStatusCompleted
	tx.CreatedAt = now
	for i := range tx.Items {
		s.nextItemID++
		tx.Items[i].ID = s.nextItemID
	}
	stored := cloneTransaction(tx)
	s.transactionsByCode[tx.Code] = &stored

	result.Transaction = cloneTransaction(tx)
	return result, nil
}

// VoidTransaction reverses a completed sale: restock, voucher release and a
// compensating loyalty adjustment, then the status flip. Stock is restored
// even when a product has since been deactivated.
func (s *Store) VoidTransaction(_ context.Context, code string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactionsByCode[code]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	if t.Status == domain.TxStatusVoided {
		return nil, domain.ErrAlreadyVoided
	}

	for _, item := range t.Items {
		if p, ok := s.products[item.ProductID]; ok {
			p.StockQuantity += item.Quantity
			p.UpdatedAt = at
			s.products[p.ID] = p
		}
	}

	if t.VoucherCode != "" {
		if v, ok := s.vouchersByCode[t.VoucherCode]; ok && v.UsedCount > 0 {
			v.UsedCount--
			s.vouchersByCode[t.VoucherCode] = v
		}
	}

	if t.PointsEarned > 0 && t.CustomerID != nil {
		if memberID, ok := s.memberIDByCustomer[*t.CustomerID]; ok {
			m := s.members[memberID]
			m.CurrentPoints = maxInt64(0, m.CurrentPoints-t.PointsEarned)
			m.LifetimePoints = maxInt64(0, m.LifetimePoints-t.PointsEarned)
			if tier, ok := loyalty.ResolveTier(s.tiers, m.LifetimePoints); ok {
				m.TierID = tier.ID
			}
			s.members[memberID] = m
			s.appendLedgerLocked(memberID, domain.LedgerTypeAdjust, -t.PointsEarned, m.CurrentPoints, t.Code, "void reversal")
		}
	}

	voidedAt := at
	t.Status = domain.TxStatusVoided
	t.VoidReason = reason
	t.VoidedBy = voidedBy
	t.VoidedAt = &voidedAt

	cloned := cloneTransaction(*t)
	return &cloned, nil
}

func (s *Store) GetTransactionByCode(_ context.Context, code string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactionsByCode[code]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	cloned := cloneTransaction(*t)
	return &cloned, nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByCode))
	for _, t := range s.transactionsByCode {
		result = append(result, cloneTransaction(*t))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.TaxRatePercent.IsNegative() {
		return domain.Settings{}, fmt.Errorf("%w: tax rate must not be negative", store.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.settings, nil
}

func (s *Store) CreateActivityLog(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.activityLogs = append(s.activityLogs, entry)
	return nil
}

func (s *Store) ListActivityLogs(_ context.Context, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ActivityLog, len(s.activityLogs))
	copy(result, s.activityLogs)
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return fmt.Errorf("%w: username is required", store.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username %s already exists", store.ErrInvalid, username)
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func (s *Store) appendLedgerLocked(memberID int64, entryType string, points int64, balanceAfter int64, referenceCode string, notes string) {
	s.nextLedgerID++
	s.ledgerByMember[memberID] = append(s.ledgerByMember[memberID], domain.LoyaltyEntry{
		ID:              s.nextLedgerID,
		MemberID:        memberID,
		TransactionType: entryType,
		Points:          points,
		BalanceAfter:    balanceAfter,
		ReferenceCode:   referenceCode,
		Notes:           notes,
		CreatedAt:       time.Now().UTC(),
	})
}

func (s *Store) tierByID(id int64) (domain.LoyaltyTier, bool) {
	for _, t := range s.tiers {
		if t.ID == id {
			return t, true
		}
	}
	return domain.LoyaltyTier{}, false
}

func (s *Store) withTierName(m domain.LoyaltyMember) domain.LoyaltyMember {
	if tier, ok := s.tierByID(m.TierID); ok {
		m.TierName = tier.Name
	}
	return m
}

func cloneVoucher(v domain.Voucher) domain.Voucher {
	if v.MaxDiscount != nil {
		maxDiscount := *v.MaxDiscount
		v.MaxDiscount = &maxDiscount
	}
	if v.UsageLimit != nil {
		limit := *v.UsageLimit
		v.UsageLimit = &limit
	}
	return v
}

func cloneTransaction(t domain.Transaction) domain.Transaction {
	items := make([]domain.TransactionItem, len(t.Items))
	copy(items, t.Items)
	t.Items = items
	if t.CustomerID != nil {
		customerID := *t.CustomerID
		t.CustomerID = &customerID
	}
	if t.VoidedAt != nil {
		voidedAt := *t.VoidedAt
		t.VoidedAt = &voidedAt
	}
	return t
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
