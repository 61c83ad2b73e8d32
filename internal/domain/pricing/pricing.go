// Package pricing computes the checkout price breakdown of a cart.
//
// The stages run in order over one snapshot: Valuate, Discount,
// ResolveDelivery and Aggregate. Each stage is a pure function of its inputs,
// and Quote chains them. Results are advisory: the upstream recomputes the
// charged amount and is the final arbiter.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
)

var (
	// ErrEmptyCart is returned by Quote for a cart with no lines. Checkout
	// must not be entered.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNegativeTotal marks a breakdown whose grand total is below zero.
	ErrNegativeTotal = errors.New("grand total is negative")
)

// Subtotals are the undiscounted line-item sums of a cart.
type Subtotals struct {
	Purchase decimal.Decimal
	Borrow   decimal.Decimal
	Deposit  decimal.Decimal
}

// Revenue is the discountable part: purchase plus borrow fees.
func (s Subtotals) Revenue() decimal.Decimal {
	return s.Purchase.Add(s.Borrow)
}

// Valuate sums purchase lines (price × quantity), borrow fees (weekly fee ×
// weeks) and deposits. Deposits are neither multiplied by weeks nor
// discounted.
func Valuate(s *cart.Snapshot) Subtotals {
	out := Subtotals{
		Purchase: decimal.Zero,
		Borrow:   decimal.Zero,
		Deposit:  decimal.Zero,
	}
	if s == nil {
		return out
	}
	for _, l := range s.PurchaseItems {
		out.Purchase = out.Purchase.Add(l.Subtotal())
	}
	for _, l := range s.BorrowItems {
		out.Borrow = out.Borrow.Add(l.BorrowFee())
		out.Deposit = out.Deposit.Add(l.DepositFee)
	}
	return out
}

// Discount returns (purchase + borrow) × percent / 100 for an active code,
// zero otherwise. The amount is not clamped to the subtotal.
func Discount(purchase, borrow decimal.Decimal, code *promo.Code) decimal.Decimal {
	if !code.Applies() {
		return decimal.Zero
	}
	return purchase.Add(borrow).Mul(money.Percent(code.DiscountPercent))
}

// ResolveDelivery returns the flat delivery fee for courier pickup and zero
// for on-site pickup.
func ResolveDelivery(pickup cart.PickupType, fee decimal.Decimal) decimal.Decimal {
	if pickup == cart.PickupCourier {
		return fee
	}
	return decimal.Zero
}

// Quote runs the full pipeline over a snapshot.
func Quote(s *cart.Snapshot, pickup cart.PickupType, code *promo.Code) (Breakdown, error) {
	if s.IsEmpty() {
		return Breakdown{}, ErrEmptyCart
	}
	sub := Valuate(s)
	discount := Discount(sub.Purchase, sub.Borrow, code)
	delivery := ResolveDelivery(pickup, s.DeliveryFee)
	return Aggregate(sub.Purchase, sub.Borrow, sub.Deposit, delivery, discount), nil
}
