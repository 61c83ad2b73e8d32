package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
)

const (
	insertOrderQuoteSQL = `INSERT INTO order_quotes (id, user_id, upstream_order_id, pickup_type, promo_code_id,
		purchase_total, borrow_total, deposit_total, delivery_fee, promo_discount, grand_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertReturnQuoteSQL = `INSERT INTO return_quotes (id, user_id, upstream_order_id, pickup_type,
		borrowed_book_ids, net_refund, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	listOrderQuotesSQL = `SELECT id, user_id, upstream_order_id, pickup_type, promo_code_id,
		purchase_total, borrow_total, deposit_total, delivery_fee, promo_discount, grand_total, created_at
		FROM order_quotes WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	listReturnQuotesSQL = `SELECT id, user_id, upstream_order_id, pickup_type, borrowed_book_ids, net_refund, created_at
		FROM return_quotes WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
)

var _ order.Journal = (*Journal)(nil)

// Journal implements order.Journal backed by PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewJournal returns a Journal that uses the given pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool, now: time.Now}
}

func (j *Journal) stamp(id *uuid.UUID, at *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if at.IsZero() {
		*at = j.now()
	}
}

// nullID maps the zero id to NULL.
func nullID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

// RecordOrder stores q. Missing ids and timestamps are filled in.
func (j *Journal) RecordOrder(ctx context.Context, q *order.Quote) error {
	j.stamp(&q.ID, &q.CreatedAt)
	b := q.Breakdown
	_, err := j.pool.Exec(ctx, insertOrderQuoteSQL,
		q.ID.String(), q.UserID, q.UpstreamOrderID, string(q.PickupType), nullID(q.PromoCodeID),
		b.PurchaseTotal, b.BorrowTotal, b.DepositTotal, b.DeliveryFee, b.PromoDiscount, b.GrandTotal,
		q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording quote of order %d: %w", q.UpstreamOrderID, err)
	}
	return nil
}

// RecordReturn stores q. Missing ids and timestamps are filled in.
func (j *Journal) RecordReturn(ctx context.Context, q *order.ReturnQuote) error {
	j.stamp(&q.ID, &q.CreatedAt)
	ids := q.BorrowedBookIDs
	if ids == nil {
		ids = []int64{}
	}
	_, err := j.pool.Exec(ctx, insertReturnQuoteSQL,
		q.ID.String(), q.UserID, q.UpstreamOrderID, string(q.PickupType), ids, q.NetRefund, q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording quote of return order %d: %w", q.UpstreamOrderID, err)
	}
	return nil
}

// OrderQuotes returns the latest order quotes of a user, newest first.
func (j *Journal) OrderQuotes(ctx context.Context, userID int64, limit int) ([]order.Quote, error) {
	rows, err := j.pool.Query(ctx, listOrderQuotesSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing order quotes of user %d: %w", userID, err)
	}
	quotes, err := pgx.CollectRows(rows, scanOrderQuote)
	if err != nil {
		return nil, fmt.Errorf("scanning order quotes: %w", err)
	}
	return quotes, nil
}

// ReturnQuotes returns the latest return quotes of a user, newest first.
func (j *Journal) ReturnQuotes(ctx context.Context, userID int64, limit int) ([]order.ReturnQuote, error) {
	rows, err := j.pool.Query(ctx, listReturnQuotesSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing return quotes of user %d: %w", userID, err)
	}
	quotes, err := pgx.CollectRows(rows, scanReturnQuote)
	if err != nil {
		return nil, fmt.Errorf("scanning return quotes: %w", err)
	}
	return quotes, nil
}

func scanOrderQuote(row pgx.CollectableRow) (order.Quote, error) {
	var (
		q                                                    order.Quote
		id, pickup                                           string
		promoID                                              *int64
		purchase, borrow, deposit, delivery, discount, grand decimal.Decimal
	)
	if err := row.Scan(&id, &q.UserID, &q.UpstreamOrderID, &pickup, &promoID,
		&purchase, &borrow, &deposit, &delivery, &discount, &grand, &q.CreatedAt); err != nil {
		return q, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return q, fmt.Errorf("parsing quote id: %w", err)
	}
	q.ID = parsed
	q.PickupType = cart.PickupType(pickup)
	if promoID != nil {
		q.PromoCodeID = *promoID
	}
	q.Breakdown = pricing.Breakdown{
		PurchaseTotal: purchase,
		BorrowTotal:   borrow,
		DepositTotal:  deposit,
		DeliveryFee:   delivery,
		PromoDiscount: discount,
		GrandTotal:    grand,
	}
	return q, nil
}

func scanReturnQuote(row pgx.CollectableRow) (order.ReturnQuote, error) {
	var (
		q          order.ReturnQuote
		id, pickup string
	)
	if err := row.Scan(&id, &q.UserID, &q.UpstreamOrderID, &pickup, &q.BorrowedBookIDs, &q.NetRefund, &q.CreatedAt); err != nil {
		return q, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return q, fmt.Errorf("parsing quote id: %w", err)
	}
	q.ID = parsed
	q.PickupType = cart.PickupType(pickup)
	return q, nil
}
