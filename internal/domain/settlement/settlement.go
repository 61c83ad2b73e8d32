// Package settlement nets delay fees against deposits for borrowed books.
//
// Every value here is a function of the current instant. Callers pass now
// explicitly and must not memoize results across requests: overdue status
// changes as time passes.
package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
)

// Day is the unit overdue time is counted in.
const Day = 24 * time.Hour

// BorrowedBook is an active borrow as reported by the upstream.
// BookDetailsID identifies the borrow record and is what a return order
// references.
type BorrowedBook struct {
	BookDetailsID      int64
	BorrowingWeeks     int
	ExpectedReturnDate time.Time
	DepositFee         decimal.Decimal
	BorrowFees         decimal.Decimal
	DelayFeePerDay     decimal.Decimal
	Book               cart.Book
}

// Settlement is the outcome of returning one book at a given instant.
type Settlement struct {
	BookDetailsID int64
	Overdue       bool
	DaysOverdue   int
	DelayFees     decimal.Decimal
	// NetRefund is deposit minus delay fees. Negative means the borrower
	// owes the difference.
	NetRefund decimal.Decimal
}

// Compute settles b at now. A book is overdue only when now is strictly
// after the expected return date; any partial day counts as a full one.
func Compute(b BorrowedBook, now time.Time) Settlement {
	s := Settlement{
		BookDetailsID: b.BookDetailsID,
		DelayFees:     decimal.Zero,
		NetRefund:     b.DepositFee,
	}
	if !now.After(b.ExpectedReturnDate) {
		return s
	}
	s.Overdue = true
	s.DaysOverdue = overdueDays(now.Sub(b.ExpectedReturnDate))
	s.DelayFees = b.DelayFeePerDay.Mul(decimal.NewFromInt(int64(s.DaysOverdue)))
	s.NetRefund = b.DepositFee.Sub(s.DelayFees)
	return s
}

// overdueDays rounds a positive duration up to whole days.
func overdueDays(d time.Duration) int {
	return int((d + Day - 1) / Day)
}

// IsOwed reports whether the borrower pays on return instead of being refunded.
func (s Settlement) IsOwed() bool {
	return s.NetRefund.IsNegative()
}

// Amount is the magnitude to display next to Label.
func (s Settlement) Amount() decimal.Decimal {
	return s.NetRefund.Abs()
}

// Label names the direction of the settlement for display.
func (s Settlement) Label() string {
	if s.IsOwed() {
		return "owed"
	}
	return "refund"
}

// ComputeAll settles every book at the same instant.
func ComputeAll(books []BorrowedBook, now time.Time) []Settlement {
	out := make([]Settlement, len(books))
	for i, b := range books {
		out[i] = Compute(b, now)
	}
	return out
}

// Source lists the signed-in user's active borrows.
type Source interface {
	ClientBorrows(ctx context.Context, cred account.Credentials) ([]BorrowedBook, error)
}
