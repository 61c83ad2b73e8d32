// Package promo models percentage promo codes attached to a checkout.
package promo

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
)

// ErrInvalidCode is returned when the upstream rejects a code as unknown or
// inactive. The attachment must be cleared and the discount reset to zero.
var ErrInvalidCode = errors.New("invalid promo code")

// ErrNotAttached is returned when no promo code is attached to the checkout.
var ErrNotAttached = errors.New("no promo code attached")

// Code is a validated promo code.
type Code struct {
	ID              int64
	Code            string
	DiscountPercent decimal.Decimal
	Active          bool
}

// Applies reports whether c contributes a discount.
func (c *Code) Applies() bool {
	return c != nil && c.Active
}

// Validator validates a code string against the upstream.
type Validator interface {
	ActivatePromoCode(ctx context.Context, cred account.Credentials, code string) (*Code, error)
}
