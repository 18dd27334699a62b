package store

import (
	"context"
	"errors"
	"time"

	"glowpos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

// CheckoutResult is what an atomic checkout commit returns: the persisted
// transaction plus side effects observed inside the same commit.
type CheckoutResult struct {
	Transaction domain.Transaction
	LowStock    []domain.LowStockAlert
	Loyalty     *domain.LoyaltyResult
}

// Repository is implemented by the in-memory store (dev/tests) and the
// postgres store (production). CreateCheckout and VoidTransaction are atomic
// units: either every ledger they touch moves, or none does.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)

	CreateVoucher(ctx context.Context, voucher domain.Voucher) (*domain.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error)
	ListVouchers(ctx context.Context) ([]domain.Voucher, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	EnrollMember(ctx context.Context, member domain.LoyaltyMember) (*domain.LoyaltyMember, error)
	GetMemberByID(ctx context.Context, id int64) (*domain.LoyaltyMember, error)
	GetMemberByCustomerID(ctx context.Context, customerID int64) (*domain.LoyaltyMember, error)
	ListMembers(ctx context.Context) ([]domain.LoyaltyMember, error)
	ListTiers(ctx context.Context) ([]domain.LoyaltyTier, error)
	ListMemberLedger(ctx context.Context, memberID int64, limit int) ([]domain.LoyaltyEntry, error)
	AdjustPoints(ctx context.Context, memberID int64, points int64, notes string) (*domain.LoyaltyMember, error)

	CreateCheckout(ctx context.Context, tx domain.Transaction) (*CheckoutResult, error)
	VoidTransaction(ctx context.Context, code string, reason string, voidedBy string, at time.Time) (*domain.Transaction, error)
	GetTransactionByCode(ctx context.Context, code string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error)

	CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error
	ListActivityLogs(ctx context.Context, limit int) ([]domain.ActivityLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
