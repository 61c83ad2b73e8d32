package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/money"
)

// Breakdown is the computed checkout price. It is never persisted upstream.
type Breakdown struct {
	PurchaseTotal decimal.Decimal
	BorrowTotal   decimal.Decimal
	DepositTotal  decimal.Decimal
	DeliveryFee   decimal.Decimal
	PromoDiscount decimal.Decimal
	GrandTotal    decimal.Decimal
}

// Aggregate sums the components:
//
//	grand = purchase + borrow + deposit + delivery - discount
//
// No validation happens here; see Breakdown.Validate.
func Aggregate(purchase, borrow, deposit, delivery, discount decimal.Decimal) Breakdown {
	return Breakdown{
		PurchaseTotal: purchase,
		BorrowTotal:   borrow,
		DepositTotal:  deposit,
		DeliveryFee:   delivery,
		PromoDiscount: discount,
		GrandTotal:    purchase.Add(borrow).Add(deposit).Add(delivery).Sub(discount),
	}
}

// Validate reports ErrNegativeTotal for a grand total below zero.
func (b Breakdown) Validate() error {
	if b.GrandTotal.IsNegative() {
		return errors.Wrapf(ErrNegativeTotal, "grand total %s", money.Format(b.GrandTotal))
	}
	return nil
}

// Shortfall is how much balance is missing to pay the grand total, zero when
// balance covers it.
func (b Breakdown) Shortfall(balance decimal.Decimal) decimal.Decimal {
	missing := b.GrandTotal.Sub(balance)
	if missing.IsPositive() {
		return missing
	}
	return decimal.Zero
}

// RowKind identifies a display row of the breakdown.
type RowKind string

// Row kinds in display order.
const (
	RowPurchase RowKind = "purchase_total"
	RowBorrow   RowKind = "borrow_total"
	RowDeposit  RowKind = "deposit_total"
	RowDelivery RowKind = "delivery_fee"
	RowDiscount RowKind = "promo_discount"
	RowTotal    RowKind = "grand_total"
)

// Row is one formatted line of the checkout summary.
type Row struct {
	Kind   RowKind
	Label  string
	Amount decimal.Decimal
	// Display is the two-decimal rendering. Discounts carry a leading minus.
	Display string
}

// Rows returns the display rows. Rows whose amount is exactly zero are left
// out; the grand total is always present.
func (b Breakdown) Rows() []Row {
	candidates := []Row{
		{Kind: RowPurchase, Label: "Purchase total", Amount: b.PurchaseTotal},
		{Kind: RowBorrow, Label: "Borrow total", Amount: b.BorrowTotal},
		{Kind: RowDeposit, Label: "Deposit total", Amount: b.DepositTotal},
		{Kind: RowDelivery, Label: "Delivery", Amount: b.DeliveryFee},
		{Kind: RowDiscount, Label: "Promo code", Amount: b.PromoDiscount},
	}
	rows := make([]Row, 0, len(candidates)+1)
	for _, r := range candidates {
		if r.Amount.IsZero() {
			continue
		}
		r.Display = money.Format(r.Amount)
		if r.Kind == RowDiscount {
			r.Display = "-" + r.Display
		}
		rows = append(rows, r)
	}
	return append(rows, Row{
		Kind:    RowTotal,
		Label:   "Total",
		Amount:  b.GrandTotal,
		Display: money.Format(b.GrandTotal),
	})
}
