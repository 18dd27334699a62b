package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxStatusCompleted = "completed"
	TxStatusVoided    = "voided"
)

const (
	VoucherTypePercentage = "percentage"
	VoucherTypeFixed      = "fixed"
)

const (
	LedgerTypeEarn   = "earn"
	LedgerTypeRedeem = "redeem"
	LedgerTypeAdjust = "adjust"
)

const (
	RoleCashier    = "cashier"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

type Product struct {
	ID              int64           `json:"id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StockQuantity   int             `json:"stock_quantity"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Voucher struct {
	ID            int64            `json:"id"`
	Code          string           `json:"code"`
	Description   string           `json:"description"`
	DiscountType  string           `json:"discount_type"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	MinPurchase   decimal.Decimal  `json:"min_purchase"`
	MaxDiscount   *decimal.Decimal `json:"max_discount,omitempty"`
	UsageLimit    *int             `json:"usage_limit,omitempty"`
	UsedCount     int              `json:"used_count"`
	ValidFrom     time.Time        `json:"valid_from"`
	ValidUntil    time.Time        `json:"valid_until"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// LoyaltyTier is one contiguous band over lifetime points. MaxPoints is nil
// for the open-ended top band.
type LoyaltyTier struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	MinPoints        int64           `json:"min_points"`
	MaxPoints        *int64          `json:"max_points,omitempty"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	PointsMultiplier decimal.Decimal `json:"points_multiplier"`
}

type LoyaltyMember struct {
	ID             int64     `json:"id"`
	CustomerID     int64     `json:"customer_id"`
	MemberNumber   string    `json:"member_number"`
	CardBarcode    string    `json:"card_barcode"`
	TierID         int64     `json:"tier_id"`
	TierName       string    `json:"tier_name,omitempty"`
	CurrentPoints  int64     `json:"current_points"`
	LifetimePoints int64     `json:"lifetime_points"`
	IsActive       bool      `json:"is_active"`
	JoinedAt       time.Time `json:"joined_at"`
}

// LoyaltyEntry is one append-only ledger row. BalanceAfter snapshots the
// member's current points immediately after the row was applied.
type LoyaltyEntry struct {
	ID              int64     `json:"id"`
	MemberID        int64     `json:"member_id"`
	TransactionType string    `json:"transaction_type"`
	Points          int64     `json:"points"`
	BalanceAfter    int64     `json:"balance_after"`
	ReferenceCode   string    `json:"reference_code"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Transaction struct {
	ID              int64             `json:"id"`
	Code            string            `json:"code"`
	CashierUsername string            `json:"cashier_username"`
	CustomerID      *int64            `json:"customer_id,omitempty"`
	Status          string            `json:"status"`
	Subtotal        decimal.Decimal   `json:"subtotal"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	VoucherCode     string            `json:"voucher_code,omitempty"`
	VoucherDiscount decimal.Decimal   `json:"voucher_discount"`
	TaxAmount       decimal.Decimal   `json:"tax_amount"`
	TotalAmount     decimal.Decimal   `json:"total_amount"`
	PaymentMethod   string            `json:"payment_method"`
	AmountReceived  decimal.Decimal   `json:"amount_received"`
	ChangeAmount    decimal.Decimal   `json:"change_amount"`
	PointsEarned    int64             `json:"points_earned"`
	Notes           string            `json:"notes,omitempty"`
	VoidReason      string            `json:"void_reason,omitempty"`
	VoidedBy        string            `json:"voided_by,omitempty"`
	VoidedAt        *time.Time        `json:"voided_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []TransactionItem `json:"items"`
}

// TransactionItem snapshots the product at sale time so later catalog edits
// never change a past receipt.
type TransactionItem struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	ProductSKU      string          `json:"product_sku"`
	ProductName     string          `json:"product_name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	LineTotal       decimal.Decimal `json:"line_total"`
}

type Settings struct {
	StoreName         string          `json:"store_name"`
	CurrencyCode      string          `json:"currency_code"`
	TaxRatePercent    decimal.Decimal `json:"tax_rate_percent"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

type ActivityLog struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CheckoutItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CheckoutRequest struct {
	Items          []CheckoutItem  `json:"items"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	VoucherCode    string          `json:"voucher_code,omitempty"`
	PaymentMethod  string          `json:"payment_method"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Notes          string          `json:"notes,omitempty"`
}

type LowStockAlert struct {
	ProductID     int64  `json:"product_id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
	Threshold     int    `json:"threshold"`
}

type LoyaltyResult struct {
	MemberID     int64  `json:"member_id"`
	PointsEarned int64  `json:"points_earned"`
	BalanceAfter int64  `json:"balance_after"`
	TierName     string `json:"tier_name"`
	TierChanged  bool   `json:"tier_changed"`
}

type CheckoutResponse struct {
	Transaction Transaction     `json:"transaction"`
	LowStock    []LowStockAlert `json:"low_stock,omitempty"`
	Loyalty     *LoyaltyResult  `json:"loyalty,omitempty"`
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

type ProductCreateRequest struct {
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Price           decimal.Decimal `json:"price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StockQuantity   int             `json:"stock_quantity"`
}

type ProductUpdateRequest struct {
	Name            *string          `json:"name,omitempty"`
	Category        *string          `json:"category,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	DiscountPercent *decimal.Decimal `json:"discount_percent,omitempty"`
	StockQuantity   *int             `json:"stock_quantity,omitempty"`
	IsActive        *bool            `json:"is_active,omitempty"`
}

type VoucherCreateRequest struct {
	Code          string           `json:"code"`
	Description   string           `json:"description"`
	DiscountType  string           `json:"discount_type"`
	DiscountValue decimal.Decimal  `json:"discount_value"`
	MinPurchase   decimal.Decimal  `json:"min_purchase"`
	MaxDiscount   *decimal.Decimal `json:"max_discount,omitempty"`
	UsageLimit    *int             `json:"usage_limit,omitempty"`
	ValidFrom     time.Time        `json:"valid_from"`
	ValidUntil    time.Time        `json:"valid_until"`
}

type VoucherValidateRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type VoucherValidateResponse struct {
	Valid    bool            `json:"valid"`
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Reason   string          `json:"reason,omitempty"`
}

type MemberEnrollRequest struct {
	CustomerID *int64 `json:"customer_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
}

type PointsAdjustRequest struct {
	Points int64  `json:"points"`
	Notes  string `json:"notes"`
}

type SettingsUpdateRequest struct {
	StoreName         *string          `json:"store_name,omitempty"`
	CurrencyCode      *string          `json:"currency_code,omitempty"`
	TaxRatePercent    *decimal.Decimal `json:"tax_rate_percent,omitempty"`
	LowStockThreshold *int             `json:"low_stock_threshold,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
