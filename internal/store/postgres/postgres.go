package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"glowpos/backend/internal/domain"
	"glowpos/backend/internal/loyalty"
	"glowpos/backend/internal/store"
	"glowpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface{ Scan(...any) error }

const productColumns = `id, sku, name, category, price, discount_percent, stock_quantity, is_active, created_at, updated_at`

func scanProduct(scanner rowScanner) (domain.Product, error) {
	var p domain.Product
	err := scanner.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.DiscountPercent,
		&p.StockQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" {
		return nil, fmt.Errorf("%w: sku and name are required", store.ErrInvalid)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, category, price, discount_percent, stock_quantity, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,true,now(),now())
		RETURNING `+productColumns+`
	`, product.SKU, product.Name, product.Category, product.Price, product.DiscountPercent, product.StockQuantity).
		Scan(&product.ID, &product.SKU, &product.Name, &product.Category, &product.Price, &product.DiscountPercent,
			&product.StockQuantity, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalid, product.SKU)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	if len(ids) == 0 {
		return map[int64]domain.Product{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrInvalid)
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, discount_percent = $5, stock_quantity = $6, is_active = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns+`
	`, product.ID, product.Name, product.Category, product.Price, product.DiscountPercent, product.StockQuantity, product.IsActive).
		Scan(&product.ID, &product.SKU, &product.Name, &product.Category, &product.Price, &product.DiscountPercent,
			&product.StockQuantity, &product.IsActive, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_active = true AND stock_quantity <= $1
		ORDER BY stock_quantity ASC
	`, settings.LowStockThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

const voucherColumns = `id, code, description, discount_type, discount_value, min_purchase, max_discount, usage_limit, used_count, valid_from, valid_until, is_active, created_at`

func scanVoucher(scanner rowScanner) (domain.Voucher, error) {
	var v domain.Voucher
	var maxDiscount decimal.NullDecimal
	var usageLimit sql.NullInt64
	err := scanner.Scan(&v.ID, &v.Code, &v.Description, &v.DiscountType, &v.DiscountValue, &v.MinPurchase,
		&maxDiscount, &usageLimit, &v.UsedCount, &v.ValidFrom, &v.ValidUntil, &v.IsActive, &v.CreatedAt)
	if err != nil {
		return v, err
	}
	if maxDiscount.Valid {
		v.MaxDiscount = &maxDiscount.Decimal
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		v.UsageLimit = &limit
	}
	return v, nil
}

func (s *Store) CreateVoucher(ctx context.Context, voucher domain.Voucher) (*domain.Voucher, error) {
	code := strings.ToUpper(strings.TrimSpace(voucher.Code))
	if code == "" {
		return nil, fmt.Errorf("%w: voucher code is required", store.ErrInvalid)
	}

	var maxDiscount decimal.NullDecimal
	if voucher.MaxDiscount != nil {
		maxDiscount = decimal.NullDecimal{Decimal: *voucher.MaxDiscount, Valid: true}
	}
	var usageLimit sql.NullInt64
	if voucher.UsageLimit != nil {
		usageLimit = sql.NullInt64{Int64: int64(*voucher.UsageLimit), Valid: true}
	}

	created, err := scanVoucher(s.db.QueryRowContext(ctx, `
		INSERT INTO vouchers (code, description, discount_type, discount_value, min_purchase, max_discount, usage_limit, used_count, valid_from, valid_until, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10,now())
		RETURNING `+voucherColumns+`
	`, code, voucher.Description, voucher.DiscountType, voucher.DiscountValue, voucher.MinPurchase,
		maxDiscount, usageLimit, voucher.ValidFrom, voucher.ValidUntil, voucher.IsActive))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: voucher code %s already exists", store.ErrInvalid, code)
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	v, err := scanVoucher(s.db.QueryRowContext(ctx, `
		SELECT `+voucherColumns+`
		FROM vouchers
		WHERE code = $1
	`, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVoucherNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+voucherColumns+`
		FROM vouchers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vouchers := make([]domain.Voucher, 0, 32)
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, fmt.Errorf("%w: customer name is required", store.ErrInvalid)
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at
	`, customer.Name, customer.Phone, customer.Email).Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

const memberColumns = `m.id, m.customer_id, m.member_number, m.card_barcode, m.tier_id, t.name, m.current_points, m.lifetime_points, m.is_active, m.joined_at`

func scanMember(scanner rowScanner) (domain.LoyaltyMember, error) {
	var m domain.LoyaltyMember
	err := scanner.Scan(&m.ID, &m.CustomerID, &m.MemberNumber, &m.CardBarcode, &m.TierID, &m.TierName,
		&m.CurrentPoints, &m.LifetimePoints, &m.IsActive, &m.JoinedAt)
	return m, err
}

func (s *Store) EnrollMember(ctx context.Context, member domain.LoyaltyMember) (*domain.LoyaltyMember, error) {
	pgTx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	created, err := enrollMemberTx(ctx, pgTx, member)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return created, nil
}

func enrollMemberTx(ctx context.Context, pgTx *sql.Tx, member domain.LoyaltyMember) (*domain.LoyaltyMember, error) {
	var exists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, member.CustomerID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, member.CustomerID)
	}

	// New members start in the lowest band.
	var tierID int64
	if err := pgTx.QueryRowContext(ctx, `SELECT id FROM loyalty_tiers ORDER BY min_points ASC LIMIT 1`).Scan(&tierID); err != nil {
		return nil, err
	}

	cardBarcode := member.CardBarcode
	if cardBarcode == "" {
		cardBarcode = xid.New("CARD")
	}

	var memberID int64
	err := pgTx.QueryRowContext(ctx, `
		INSERT INTO loyalty_members (customer_id, member_number, card_barcode, tier_id, current_points, lifetime_points, is_active, joined_at)
		VALUES ($1, 'pending', $2, $3, 0, 0, true, now())
		RETURNING id
	`, member.CustomerID, cardBarcode, tierID).Scan(&memberID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer %d is already enrolled", store.ErrInvalid, member.CustomerID)
		}
		return nil, err
	}

	memberNumber := fmt.Sprintf("MBR-%05d", memberID)
	created, err := scanMember(pgTx.QueryRowContext(ctx, `
		UPDATE loyalty_members m
		SET member_number = $2
		FROM loyalty_tiers t
		WHERE m.id = $1 AND t.id = m.tier_id
		RETURNING `+memberColumns+`
	`, memberID, memberNumber))
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) GetMemberByID(ctx context.Context, id int64) (*domain.LoyaltyMember, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM loyalty_members m
		JOIN loyalty_tiers t ON t.id = m.tier_id
		WHERE m.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: member %d", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMemberByCustomerID(ctx context.Context, customerID int64) (*domain.LoyaltyMember, error) {
	m, err := scanMember(s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM loyalty_members m
		JOIN loyalty_tiers t ON t.id = m.tier_id
		WHERE m.customer_id = $1
	`, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no member for customer %d", store.ErrNotFound, customerID)
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context) ([]domain.LoyaltyMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM loyalty_members m
		JOIN loyalty_tiers t ON t.id = m.tier_id
		ORDER BY m.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.LoyaltyMember, 0, 64)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) ListTiers(ctx context.Context) ([]domain.LoyaltyTier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, min_points, max_points, discount_percent, points_multiplier
		FROM loyalty_tiers
		ORDER BY min_points
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tiers := make([]domain.LoyaltyTier, 0, 8)
	for rows.Next() {
		var t domain.LoyaltyTier
		var maxPoints sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Name, &t.MinPoints, &maxPoints, &t.DiscountPercent, &t.PointsMultiplier); err != nil {
			return nil, err
		}
		if maxPoints.Valid {
			maxValue := maxPoints.Int64
			t.MaxPoints = &maxValue
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *Store) ListMemberLedger(ctx context.Context, memberID int64, limit int) ([]domain.LoyaltyEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, transaction_type, points, balance_after, reference_code, notes, created_at
		FROM loyalty_transactions
		WHERE member_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LoyaltyEntry, 0, limit)
	for rows.Next() {
		var e domain.LoyaltyEntry
		if err := rows.Scan(&e.ID, &e.MemberID, &e.TransactionType, &e.Points, &e.BalanceAfter,
			&e.ReferenceCode, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) AdjustPoints(ctx context.Context, memberID int64, points int64, notes string) (*domain.LoyaltyMember, error) {
	if points == 0 {
		return nil, fmt.Errorf("%w: adjustment must be non-zero", store.ErrInvalid)
	}

	pgTx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	member, err := adjustPointsTx(ctx, pgTx, memberID, points, notes)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return member, nil
}

func adjustPointsTx(ctx context.Context, pgTx *sql.Tx, memberID int64, points int64, notes string) (*domain.LoyaltyMember, error) {
	var current, lifetime int64
	err := pgTx.QueryRowContext(ctx, `
		SELECT current_points, lifetime_points
		FROM loyalty_members
		WHERE id = $1
		FOR UPDATE
	`, memberID).Scan(&current, &lifetime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: member %d", store.ErrNotFound, memberID)
		}
		return nil, err
	}

	current = maxInt64(0, current+points)
	lifetime = maxInt64(0, lifetime+points)
	tierID, _, err := resolveTierTx(ctx, pgTx, lifetime)
	if err != nil {
		return nil, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE loyalty_members
		SET current_points = $2, lifetime_points = $3, tier_id = $4
		WHERE id = $1
	`, memberID, current, lifetime, tierID); err != nil {
		return nil, err
	}

	if err := insertLedgerTx(ctx, pgTx, memberID, domain.LedgerTypeAdjust, points, current, "", notes); err != nil {
		return nil, err
	}

	member, err := scanMember(pgTx.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM loyalty_members m
		JOIN loyalty_tiers t ON t.id = m.tier_id
		WHERE m.id = $1
	`, memberID))
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateCheckout is the atomic commit of a priced sale. One serializable
// transaction covers the sale row, item snapshots, stock decrements, the
// voucher counter and the loyalty accrual. A failure at any point rolls the
// whole sale back.
func (s *Store) CreateCheckout(ctx context.Context, tx domain.Transaction) (*store.CheckoutResult, error) {
	if tx.Code == "" || len(tx.Items) == 0 {
		return nil, fmt.Errorf("%w: code and items are required", store.ErrInvalid)
	}

	pgTx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	result, err := createCheckoutTx(ctx, pgTx, tx)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return result, nil
}

// createCheckoutTx is the checkout body. Statement errors bubble up unmapped;
// the caller routes them through mapTxError so a serialization failure on any
// statement surfaces the same way as one on commit.
func createCheckoutTx(ctx context.Context, pgTx *sql.Tx, tx domain.Transaction) (*store.CheckoutResult, error) {
	// Lock product rows in a stable order so concurrent checkouts of
	// overlapping carts cannot deadlock.
	ids := uniqueProductIDs(tx.Items)
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, sku, name, stock_quantity, is_active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	type lockedProduct struct {
		sku      string
		name     string
		stock    int
		isActive bool
	}
	locked := make(map[int64]lockedProduct, len(ids))
	for rows.Next() {
		var id int64
		var lp lockedProduct
		if err := rows.Scan(&id, &lp.sku, &lp.name, &lp.stock, &lp.isActive); err != nil {
			_ = rows.Close()
			return nil, err
		}
		locked[id] = lp
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, item := range tx.Items {
		lp, ok := locked[item.ProductID]
		if !ok {
			return nil, domain.ErrProductNotFound
		}
		if !lp.isActive {
			return nil, domain.ErrProductInactive
		}
		if lp.stock < item.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID: item.ProductID,
				SKU:       lp.sku,
				Requested: item.Quantity,
				Available: lp.stock,
			}
		}
	}

	var txID int64
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO transactions (code, cashier_username, customer_id, status, subtotal, discount_amount, voucher_code, voucher_discount, tax_amount, total_amount, payment_method, amount_received, change_amount, points_earned, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,$14,now())
		RETURNING id
	`, tx.Code, tx.CashierUsername, tx.CustomerID, domain.TxStatusCompleted, tx.Subtotal, tx.DiscountAmount,
		nullString(tx.VoucherCode), tx.VoucherDiscount, tx.TaxAmount, tx.TotalAmount, tx.PaymentMethod,
		tx.AmountReceived, tx.ChangeAmount, tx.Notes).Scan(&txID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateTransactionID
		}
		return nil, err
	}

	settings, err := getSettingsTx(ctx, pgTx)
	if err != nil {
		return nil, err
	}

	result := &store.CheckoutResult{}
	for i := range tx.Items {
		item := &tx.Items[i]
		var remaining int
		err := pgTx.QueryRowContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1 AND stock_quantity >= $2
			RETURNING stock_quantity
		`, item.ProductID, item.Quantity).Scan(&remaining)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				lp := locked[item.ProductID]
				return nil, &domain.InsufficientStockError{
					ProductID: item.ProductID,
					SKU:       lp.sku,
					Requested: item.Quantity,
					Available: lp.stock,
				}
			}
			return nil, err
		}

		if err := pgTx.QueryRowContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, product_sku, product_name, unit_price, quantity, discount_percent, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING id
		`, txID, item.ProductID, item.ProductSKU, item.ProductName, item.UnitPrice, item.Quantity,
			item.DiscountPercent, item.LineTotal).Scan(&item.ID); err != nil {
			return nil, err
		}

		if remaining <= settings.LowStockThreshold {
			result.LowStock = append(result.LowStock, domain.LowStockAlert{
				ProductID:     item.ProductID,
				SKU:           item.ProductSKU,
				Name:          item.ProductName,
				StockQuantity: remaining,
				Threshold:     settings.LowStockThreshold,
			})
		}
	}

	if tx.VoucherCode != "" {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE vouchers
			SET used_count = used_count + 1
			WHERE code = $1 AND is_active = true AND (usage_limit IS NULL OR used_count < usage_limit)
		`, tx.VoucherCode)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, domain.ErrVoucherExhausted
		}
	}

	if tx.CustomerID != nil {
		loyaltyResult, points, err := accrueTx(ctx, pgTx, *tx.CustomerID, tx.TotalAmount, tx.Code)
		if err != nil {
			return nil, err
		}
		if loyaltyResult != nil {
			tx.PointsEarned = points
			result.Loyalty = loyaltyResult
			if _, err := pgTx.ExecContext(ctx, `
				UPDATE transactions SET points_earned = $2 WHERE id = $1
			`, txID, points); err != nil {
				return nil, err
			}
		}
	}

	tx.ID = txID
	tx.Status = domain.TxStatusCompleted
	tx.CreatedAt = time.Now().UTC()
	result.Transaction = tx
	return result, nil
}

// accrueTx applies the loyalty accrual inside the checkout transaction. The
// member row is locked so the balance_after snapshot and the tier
// re-resolution see a consistent point total.
func accrueTx(ctx context.Context, pgTx *sql.Tx, customerID int64, total decimal.Decimal, referenceCode string) (*domain.LoyaltyResult, int64, error) {
	var memberID, tierID, current, lifetime int64
	var multiplier decimal.Decimal
	err := pgTx.QueryRowContext(ctx, `
		SELECT m.id, m.tier_id, m.current_points, m.lifetime_points, t.points_multiplier
		FROM loyalty_members m
		JOIN loyalty_tiers t ON t.id = m.tier_id
		WHERE m.customer_id = $1 AND m.is_active = true
		FOR UPDATE OF m
	`, customerID).Scan(&memberID, &tierID, &current, &lifetime, &multiplier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Customer without an enrolled member: no accrual.
			return nil, 0, nil
		}
		return nil, 0, err
	}

	points := loyalty.PointsEarned(total, multiplier)
	current += points
	lifetime += points

	newTierID, newTierName, err := resolveTierTx(ctx, pgTx, lifetime)
	if err != nil {
		return nil, 0, err
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE loyalty_members
		SET current_points = $2, lifetime_points = $3, tier_id = $4
		WHERE id = $1
	`, memberID, current, lifetime, newTierID); err != nil {
		return nil, 0, err
	}

	if err := insertLedgerTx(ctx, pgTx, memberID, domain.LedgerTypeEarn, points, current, referenceCode, ""); err != nil {
		return nil, 0, err
	}

	return &domain.LoyaltyResult{
		MemberID:     memberID,
		PointsEarned: points,
		BalanceAfter: current,
		TierName:     newTierName,
		TierChanged:  newTierID != tierID,
	}, points, nil
}

// resolveTierTx picks the band containing lifetime, falling back to the
// lowest band for totals below it.
func resolveTierTx(ctx context.Context, pgTx *sql.Tx, lifetime int64) (int64, string, error) {
	var tierID int64
	var tierName string
	err := pgTx.QueryRowContext(ctx, `
		SELECT id, name
		FROM loyalty_tiers
		WHERE min_points <= $1 AND (max_points IS NULL OR max_points >= $1)
		ORDER BY min_points DESC
		LIMIT 1
	`, lifetime).Scan(&tierID, &tierName)
	if errors.Is(err, sql.ErrNoRows) {
		err = pgTx.QueryRowContext(ctx, `
			SELECT id, name FROM loyalty_tiers ORDER BY min_points ASC LIMIT 1
		`).Scan(&tierID, &tierName)
	}
	if err != nil {
		return 0, "", err
	}
	return tierID, tierName, nil
}

func insertLedgerTx(ctx context.Context, pgTx *sql.Tx, memberID int64, entryType string, points int64, balanceAfter int64, referenceCode string, notes string) error {
	_, err := pgTx.ExecContext(ctx, `
		INSERT INTO loyalty_transactions (member_id, transaction_type, points, balance_after, reference_code, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, memberID, entryType, points, balanceAfter, referenceCode, notes)
	return err
}

// VoidTransaction reverses a completed sale in one serializable transaction:
// restock every item (including deactivated products), release the voucher
// use, append a compensating loyalty adjustment, then flip the status.
func (s *Store) VoidTransaction(ctx context.Context, code string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.beginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	voided, err := voidTransactionTx(ctx, pgTx, code, reason, voidedBy, at)
	if err != nil {
		return nil, mapTxError(err)
	}
	if err := pgTx.Commit(); err != nil {
		return nil, mapTxError(err)
	}
	return voided, nil
}

func voidTransactionTx(ctx context.Context, pgTx *sql.Tx, code string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error) {
	var txID int64
	var status string
	var customerID sql.NullInt64
	var voucherCode sql.NullString
	var pointsEarned int64
	err := pgTx.QueryRowContext(ctx, `
		SELECT id, status, customer_id, voucher_code, points_earned
		FROM transactions
		WHERE code = $1
		FOR UPDATE
	`, code).Scan(&txID, &status, &customerID, &voucherCode, &pointsEarned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	if status == domain.TxStatusVoided {
		return nil, domain.ErrAlreadyVoided
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY product_id
	`, txID)
	if err != nil {
		return nil, err
	}
	type restock struct {
		productID int64
		quantity  int
	}
	restocks := make([]restock, 0, 8)
	for itemRows.Next() {
		var r restock
		if err := itemRows.Scan(&r.productID, &r.quantity); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		restocks = append(restocks, r)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, r := range restocks {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $2, updated_at = now()
			WHERE id = $1
		`, r.productID, r.quantity); err != nil {
			return nil, err
		}
	}

	if voucherCode.Valid && voucherCode.String != "" {
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE vouchers
			SET used_count = GREATEST(used_count - 1, 0)
			WHERE code = $1
		`, voucherCode.String); err != nil {
			return nil, err
		}
	}

	if pointsEarned > 0 && customerID.Valid {
		var memberID, current, lifetime int64
		err := pgTx.QueryRowContext(ctx, `
			SELECT id, current_points, lifetime_points
			FROM loyalty_members
			WHERE customer_id = $1
			FOR UPDATE
		`, customerID.Int64).Scan(&memberID, &current, &lifetime)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil {
			current = maxInt64(0, current-pointsEarned)
			lifetime = maxInt64(0, lifetime-pointsEarned)
			tierID, _, err := resolveTierTx(ctx, pgTx, lifetime)
			if err != nil {
				return nil, err
			}
			if _, err := pgTx.ExecContext(ctx, `
				UPDATE loyalty_members
				SET current_points = $2, lifetime_points = $3, tier_id = $4
				WHERE id = $1
			`, memberID, current, lifetime, tierID); err != nil {
				return nil, err
			}
			if err := insertLedgerTx(ctx, pgTx, memberID, domain.LedgerTypeAdjust, -pointsEarned, current, code, "void reversal"); err != nil {
				return nil, err
			}
		}
	}

	if _, err := pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, void_reason = $3, voided_by = $4, voided_at = $5
		WHERE id = $1
	`, txID, domain.TxStatusVoided, reason, voidedBy, at); err != nil {
		return nil, err
	}

	return findTransactionTx(ctx, pgTx, code)
}

func (s *Store) GetTransactionByCode(ctx context.Context, code string) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	t, err := findTransactionTx(ctx, pgTx, code)
	if err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

const transactionColumns = `id, code, cashier_username, customer_id, status, subtotal, discount_amount, voucher_code, voucher_discount, tax_amount, total_amount, payment_method, amount_received, change_amount, points_earned, notes, void_reason, voided_by, voided_at, created_at`

func scanTransaction(scanner rowScanner) (domain.Transaction, error) {
	var t domain.Transaction
	var customerID sql.NullInt64
	var voucherCode, notes, voidReason, voidedBy sql.NullString
	var voidedAt sql.NullTime
	err := scanner.Scan(&t.ID, &t.Code, &t.CashierUsername, &customerID, &t.Status, &t.Subtotal,
		&t.DiscountAmount, &voucherCode, &t.VoucherDiscount, &t.TaxAmount, &t.TotalAmount,
		&t.PaymentMethod, &t.AmountReceived, &t.ChangeAmount, &t.PointsEarned, &notes,
		&voidReason, &voidedBy, &voidedAt, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	if customerID.Valid {
		id := customerID.Int64
		t.CustomerID = &id
	}
	t.VoucherCode = voucherCode.String
	t.Notes = notes.String
	t.VoidReason = voidReason.String
	t.VoidedBy = voidedBy.String
	if voidedAt.Valid {
		at := voidedAt.Time
		t.VoidedAt = &at
	}
	return t, nil
}

func findTransactionTx(ctx context.Context, pgTx *sql.Tx, code string) (*domain.Transaction, error) {
	t, err := scanTransaction(pgTx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE code = $1
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT id, product_id, product_sku, product_name, unit_price, quantity, discount_percent, line_total
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id
	`, t.ID)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item domain.TransactionItem
		if err := itemRows.Scan(&item.ID, &item.ProductID, &item.ProductSKU, &item.ProductName,
			&item.UnitPrice, &item.Quantity, &item.DiscountPercent, &item.LineTotal); err != nil {
			return nil, err
		}
		t.Items = append(t.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

const (
	settingStoreName         = "store_name"
	settingCurrencyCode      = "currency_code"
	settingTaxRatePercent    = "tax_rate_percent"
	settingLowStockThreshold = "low_stock_threshold"
)

type settingsQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getSettingsFrom(ctx context.Context, q settingsQuerier) (domain.Settings, error) {
	settings := domain.Settings{
		StoreName:         "Glow Beauty Supply",
		CurrencyCode:      "PHP",
		TaxRatePercent:    decimal.Zero,
		LowStockThreshold: 10,
	}

	rows, err := q.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return settings, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		switch key {
		case settingStoreName:
			settings.StoreName = value
		case settingCurrencyCode:
			settings.CurrencyCode = value
		case settingTaxRatePercent:
			if rate, err := decimal.NewFromString(value); err == nil {
				settings.TaxRatePercent = rate
			}
		case settingLowStockThreshold:
			if threshold, err := strconv.Atoi(value); err == nil && threshold >= 0 {
				settings.LowStockThreshold = threshold
			}
		}
	}
	return settings, rows.Err()
}

func getSettingsTx(ctx context.Context, pgTx *sql.Tx) (domain.Settings, error) {
	return getSettingsFrom(ctx, pgTx)
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	return getSettingsFrom(ctx, s.db)
}

func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if settings.TaxRatePercent.IsNegative() {
		return domain.Settings{}, fmt.Errorf("%w: tax rate must not be negative", store.ErrInvalid)
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer func() { _ = pgTx.Rollback() }()

	pairs := map[string]string{
		settingStoreName:         settings.StoreName,
		settingCurrencyCode:      settings.CurrencyCode,
		settingTaxRatePercent:    settings.TaxRatePercent.String(),
		settingLowStockThreshold: strconv.Itoa(settings.LowStockThreshold),
	}
	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`, key, pairs[key]); err != nil {
			return domain.Settings{}, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return domain.Settings{}, mapTxError(err)
	}
	return settings, nil
}

func (s *Store) CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("log")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, username, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, entry.ID, entry.Username, entry.Action, entry.EntityType, entry.EntityID, entry.Detail)
	return err
}

func (s *Store) ListActivityLogs(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, action, entity_type, entity_id, detail, created_at
		FROM activity_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ActivityLog, 0, limit)
	for rows.Next() {
		var entry domain.ActivityLog
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: username %s already exists", store.ErrInvalid, user.Username)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.TransactionItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// beginSerializable opens a serializable transaction with a bounded lock
// wait, so a checkout stuck behind a long row lock fails as a retryable
// conflict instead of hanging the request.
func (s *Store) beginSerializable(ctx context.Context) (*sql.Tx, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		_ = pgTx.Rollback()
		return nil, err
	}
	return pgTx, nil
}

// mapTxError surfaces serialization failures, deadlocks and lock timeouts as
// a retryable conflict instead of an opaque driver error.
func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return domain.ErrConcurrencyConflict
		case "23505":
			return domain.ErrDuplicateTransactionID
		}
	}
	return err
}

func maxInt64(a int64, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
