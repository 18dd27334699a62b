package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrProductInactive        = errors.New("product is inactive")
	ErrVoucherNotFound        = errors.New("voucher not found")
	ErrVoucherInactive        = errors.New("voucher is inactive")
	ErrVoucherExpired         = errors.New("voucher is outside its validity window")
	ErrVoucherExhausted       = errors.New("voucher usage limit reached")
	ErrInsufficientPayment    = errors.New("amount received is less than total")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrAlreadyVoided          = errors.New("transaction already voided")
	ErrVoidNotAuthorized      = errors.New("void requires supervisor or admin role")
	ErrForbiddenRole          = errors.New("insufficient role for this operation")
	ErrDuplicateTransactionID = errors.New("transaction code already exists")
	ErrConcurrencyConflict    = errors.New("concurrent update conflict, retry the request")
)

// InsufficientStockError reports the first cart line that could not be
// reserved. The cart is rejected as a whole.
type InsufficientStockError struct {
	ProductID int64
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (id %d): requested %d, available %d",
		e.SKU, e.ProductID, e.Requested, e.Available)
}

type MinPurchaseError struct {
	MinPurchase decimal.Decimal
	Eligible    decimal.Decimal
}

func (e *MinPurchaseError) Error() string {
	return fmt.Sprintf("voucher requires a minimum purchase of %s, eligible amount is %s",
		e.MinPurchase.StringFixed(2), e.Eligible.StringFixed(2))
}
