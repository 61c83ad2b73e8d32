package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/checkout"
	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
	"github.com/xenking/bookstore-checkout/internal/returns"
)

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// Amounts are rendered as two-decimal strings.
func moneyField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Str(money.Format(v))
}

func encodeProfile(e *jx.Encoder, p account.Profile) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("email")
	e.Str(p.Email)
	e.FieldStart("first_name")
	e.Str(p.FirstName)
	e.FieldStart("last_name")
	e.Str(p.LastName)
	e.FieldStart("role")
	e.Str(string(p.Role))
	moneyField(e, "wallet", p.Wallet)
	e.ObjEnd()
}

func encodeBook(e *jx.Encoder, b cart.Book) {
	e.FieldStart("book")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(b.ID)
	e.FieldStart("title")
	e.Str(b.Title)
	e.FieldStart("author")
	e.Str(b.Author)
	e.FieldStart("cover_img")
	e.Str(b.CoverImage)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, s *cart.Snapshot) {
	if s == nil {
		s = &cart.Snapshot{}
	}
	e.ObjStart()
	e.FieldStart("purchase_items")
	e.ArrStart()
	for _, l := range s.PurchaseItems {
		e.ObjStart()
		e.FieldStart("cart_item_id")
		e.Int64(l.CartItemID)
		e.FieldStart("book_details_id")
		e.Int64(l.BookDetailsID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		moneyField(e, "unit_price", l.UnitPrice)
		moneyField(e, "subtotal", l.Subtotal())
		encodeBook(e, l.Book)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("borrow_items")
	e.ArrStart()
	for _, l := range s.BorrowItems {
		e.ObjStart()
		e.FieldStart("cart_item_id")
		e.Int64(l.CartItemID)
		e.FieldStart("book_details_id")
		e.Int64(l.BookDetailsID)
		e.FieldStart("borrowing_weeks")
		e.Int(l.BorrowingWeeks)
		moneyField(e, "weekly_fee", l.WeeklyFee)
		moneyField(e, "deposit_fee", l.DepositFee)
		moneyField(e, "delay_fee_per_day", l.DelayFeePerDay)
		moneyField(e, "borrow_fee", l.BorrowFee())
		moneyField(e, "subtotal", l.Subtotal())
		encodeBook(e, l.Book)
		e.ObjEnd()
	}
	e.ArrEnd()

	moneyField(e, "delivery_fee", s.DeliveryFee)
	e.FieldStart("remaining_borrow_quota")
	e.Int(s.RemainingBorrowQuota)
	e.ObjEnd()
}

func encodePromo(e *jx.Encoder, c *promo.Code) {
	e.FieldStart("promo")
	if c == nil {
		e.Null()
		return
	}
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount_percent")
	e.Str(c.DiscountPercent.String())
	e.ObjEnd()
}

func encodeCartView(e *jx.Encoder, v *checkout.CartView) {
	e.ObjStart()
	e.FieldStart("cart")
	encodeCart(e, v.Cart)
	e.FieldStart("subtotals")
	e.ObjStart()
	moneyField(e, "purchase", v.Subtotals.Purchase)
	moneyField(e, "borrow", v.Subtotals.Borrow)
	moneyField(e, "deposit", v.Subtotals.Deposit)
	e.ObjEnd()
	encodePromo(e, v.Promo)
	e.ObjEnd()
}

func encodeBreakdown(e *jx.Encoder, b pricing.Breakdown) {
	e.FieldStart("breakdown")
	e.ObjStart()
	moneyField(e, "purchase_total", b.PurchaseTotal)
	moneyField(e, "borrow_total", b.BorrowTotal)
	moneyField(e, "deposit_total", b.DepositTotal)
	moneyField(e, "delivery_fee", b.DeliveryFee)
	moneyField(e, "promo_discount", b.PromoDiscount)
	moneyField(e, "grand_total", b.GrandTotal)
	e.ObjEnd()

	e.FieldStart("rows")
	e.ArrStart()
	for _, r := range b.Rows() {
		e.ObjStart()
		e.FieldStart("kind")
		e.Str(string(r.Kind))
		e.FieldStart("label")
		e.Str(r.Label)
		e.FieldStart("amount")
		e.Str(r.Display)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeCheckoutView(e *jx.Encoder, v *checkout.View) {
	e.ObjStart()
	e.FieldStart("cart")
	encodeCart(e, v.Cart)
	e.FieldStart("pickup_type")
	e.Str(string(v.PickupType))
	encodeBreakdown(e, v.Breakdown)
	encodePromo(e, v.Promo)
	e.FieldStart("promo_cleared")
	e.Bool(v.PromoCleared)
	moneyField(e, "wallet", v.Wallet)
	e.FieldStart("affordable")
	e.Bool(v.Affordable())
	moneyField(e, "shortfall", v.Shortfall)
	e.ObjEnd()
}

func encodePlaced(e *jx.Encoder, p *checkout.Placed) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(p.OrderID)
	e.FieldStart("message")
	e.Str(p.Message)
	encodeBreakdown(e, p.Breakdown)
	e.ObjEnd()
}

func encodeTime(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeBorrowsView(e *jx.Encoder, v *returns.View) {
	e.ObjStart()
	encodeTime(e, "computed_at", v.ComputedAt)

	e.FieldStart("borrows")
	e.ArrStart()
	for i, b := range v.Books {
		s := v.Settlements[i]
		e.ObjStart()
		e.FieldStart("book_details_id")
		e.Int64(b.BookDetailsID)
		e.FieldStart("borrowing_weeks")
		e.Int(b.BorrowingWeeks)
		encodeTime(e, "expected_return_date", b.ExpectedReturnDate)
		moneyField(e, "deposit_fee", b.DepositFee)
		moneyField(e, "borrow_fees", b.BorrowFees)
		moneyField(e, "delay_fee_per_day", b.DelayFeePerDay)
		encodeBook(e, b.Book)
		encodeSettlement(e, s)
		e.FieldStart("selected")
		e.Bool(v.Selection.Contains(b.BookDetailsID))
		e.ObjEnd()
	}
	e.ArrEnd()

	encodeSummary(e, v.Summary)

	e.FieldStart("selection")
	e.ObjStart()
	e.FieldStart("book_details_ids")
	e.ArrStart()
	for _, id := range v.Selection.IDs() {
		e.Int64(id)
	}
	e.ArrEnd()
	moneyField(e, "net_refund", v.Selection.Total())
	e.FieldStart("label")
	e.Str(refundLabel(v.Selection.Total()))
	e.ObjEnd()

	e.ObjEnd()
}

func encodeSettlement(e *jx.Encoder, s settlement.Settlement) {
	e.FieldStart("settlement")
	e.ObjStart()
	e.FieldStart("overdue")
	e.Bool(s.Overdue)
	e.FieldStart("days_overdue")
	e.Int(s.DaysOverdue)
	moneyField(e, "delay_fees", s.DelayFees)
	moneyField(e, "net_refund", s.NetRefund)
	moneyField(e, "amount", s.Amount())
	e.FieldStart("label")
	e.Str(s.Label())
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s settlement.Summary) {
	e.FieldStart("summary")
	e.ObjStart()
	e.FieldStart("total_books")
	e.Int(s.TotalBooks)
	e.FieldStart("on_time")
	e.Int(s.OnTime)
	e.FieldStart("overdue")
	e.Int(s.Overdue)
	e.FieldStart("total_overdue_days")
	e.Int(s.TotalOverdueDays)
	moneyField(e, "total_deposit", s.TotalDeposit)
	moneyField(e, "total_borrow_fees", s.TotalBorrowFees)
	moneyField(e, "total_delay_fees", s.TotalDelayFees)
	moneyField(e, "total_fees", s.TotalFees)
	e.ObjEnd()
}

func refundLabel(net decimal.Decimal) string {
	if net.IsNegative() {
		return "owed"
	}
	return "refund"
}

func encodeSubmitted(e *jx.Encoder, s *returns.Submitted) {
	e.ObjStart()
	e.FieldStart("return_order_id")
	e.Int64(s.ReturnOrderID)
	e.FieldStart("message")
	e.Str(s.Message)
	e.FieldStart("books")
	e.Int(s.Books)
	moneyField(e, "net_refund", s.NetRefund)
	e.FieldStart("label")
	e.Str(refundLabel(s.NetRefund))
	e.ObjEnd()
}
