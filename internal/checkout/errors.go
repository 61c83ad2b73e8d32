package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/money"
)

// ErrStalePrice is returned when the upstream rejected an order computed
// from an outdated cart. The cart has been refetched.
var ErrStalePrice = errors.New("cart changed, review the updated total")

// StalePriceError carries the view recomputed from the refetched cart.
type StalePriceError struct {
	Cause error
	// View is nil when the cart could not be refetched or is now empty.
	View *View
}

func (e *StalePriceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrStalePrice, e.Cause)
}

func (e *StalePriceError) Is(target error) bool {
	return target == ErrStalePrice
}

func (e *StalePriceError) Unwrap() error {
	return e.Cause
}

// InsufficientFundsError blocks submission until the wallet is topped up.
type InsufficientFundsError struct {
	Balance   decimal.Decimal
	Required  decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, required %s",
		money.Format(e.Balance), money.Format(e.Required))
}
