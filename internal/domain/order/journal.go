package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
)

// Quote is the locally computed price of a submitted order, kept next to
// the upstream order id so divergence from the charged amount can be
// audited.
type Quote struct {
	ID              uuid.UUID
	UserID          int64
	UpstreamOrderID int64
	PickupType      cart.PickupType
	PromoCodeID     int64
	Breakdown       pricing.Breakdown
	CreatedAt       time.Time
}

// ReturnQuote is the locally computed settlement of a submitted return
// order.
type ReturnQuote struct {
	ID              uuid.UUID
	UserID          int64
	UpstreamOrderID int64
	PickupType      cart.PickupType
	BorrowedBookIDs []int64
	NetRefund       decimal.Decimal
	CreatedAt       time.Time
}

// Journal records quotes of submitted orders.
type Journal interface {
	RecordOrder(ctx context.Context, q *Quote) error
	RecordReturn(ctx context.Context, q *ReturnQuote) error
}

// NopJournal discards quotes.
type NopJournal struct{}

var _ Journal = NopJournal{}

func (NopJournal) RecordOrder(context.Context, *Quote) error { return nil }

func (NopJournal) RecordReturn(context.Context, *ReturnQuote) error { return nil }
