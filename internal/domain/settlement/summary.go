package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Summary aggregates the current borrows of a user at one instant.
type Summary struct {
	TotalBooks       int
	OnTime           int
	Overdue          int
	TotalOverdueDays int
	TotalDeposit     decimal.Decimal
	TotalBorrowFees  decimal.Decimal
	TotalDelayFees   decimal.Decimal
	// TotalFees is borrow fees plus delay fees. Deposits are excluded.
	TotalFees decimal.Decimal
}

// Summarize computes the summary of books at now.
func Summarize(books []BorrowedBook, now time.Time) Summary {
	sum := Summary{
		TotalBooks:      len(books),
		TotalDeposit:    decimal.Zero,
		TotalBorrowFees: decimal.Zero,
		TotalDelayFees:  decimal.Zero,
	}
	for _, b := range books {
		s := Compute(b, now)
		if s.Overdue {
			sum.Overdue++
		} else {
			sum.OnTime++
		}
		sum.TotalOverdueDays += s.DaysOverdue
		sum.TotalDeposit = sum.TotalDeposit.Add(b.DepositFee)
		sum.TotalBorrowFees = sum.TotalBorrowFees.Add(b.BorrowFees)
		sum.TotalDelayFees = sum.TotalDelayFees.Add(s.DelayFees)
	}
	sum.TotalFees = sum.TotalBorrowFees.Add(sum.TotalDelayFees)
	return sum
}
