package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
)

const capturedCart = `{
  "purchase_items": [{"id": 1, "book_details_id": 10, "quantity": 2, "book_price": "25.00"}],
  "borrow_items": [{"id": 2, "book_details_id": 20, "borrow_weeks": 2, "borrow_fees_per_week": "10.00",
    "deposit_fees": "30.00", "delay_fees_per_day": "2.00"}],
  "delevary_fees": "15.00",
  "remaining_borrow_books_count": 1
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func writeGz(t *testing.T, name, body string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return writeFile(t, name, buf.String())
}

func TestRunCheckout(t *testing.T) {
	cartPath := writeGz(t, "cart.json.gz", capturedCart)
	promoPath := writeFile(t, "promo.json", `{"id":5,"code":"TEN","discount_perc":"10","is_active":true}`)

	var out bytes.Buffer
	require.NoError(t, runCheckout([]string{"-cart", cartPath, "-pickup", "COURIER", "-promo", promoPath}, &out))

	s := out.String()
	assert.Contains(t, s, "Delivery")
	assert.Contains(t, s, "15.00")
	assert.Contains(t, s, "108.00")
}

func TestRunCheckoutErrors(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, runCheckout(nil, &out))
	require.Error(t, runCheckout([]string{"-cart", writeFile(t, "c.json", capturedCart), "-pickup", "BOAT"}, &out))
	require.Error(t, runCheckout([]string{"-cart", filepath.Join(t.TempDir(), "missing.json")}, &out))
}

func TestRunSettle(t *testing.T) {
	path := writeFile(t, "borrows.json", `[
	  {"book_details_id": 3, "borrowing_weeks": 2, "expected_return_date": "2026-03-05T12:00:00",
	   "deposit_fees": "50.00", "borrow_fees": "20.00", "delay_fees_per_day": "5.00", "book": {"id": 1, "title": "Emma"}}
	]`)

	var out bytes.Buffer
	require.NoError(t, runSettle([]string{"-borrows", path, "-at", "2026-03-10T12:00:00Z"}, &out))

	s := out.String()
	assert.Contains(t, s, "Emma")
	assert.Contains(t, s, "25.00")
	assert.Contains(t, s, "refund 25.00")
}

type journalStub struct {
	orders  []order.Quote
	returns []order.ReturnQuote
}

func (j journalStub) OrderQuotes(_ context.Context, _ int64, limit int) ([]order.Quote, error) {
	return j.orders[:min(limit, len(j.orders))], nil
}

func (j journalStub) ReturnQuotes(_ context.Context, _ int64, limit int) ([]order.ReturnQuote, error) {
	return j.returns[:min(limit, len(j.returns))], nil
}

func TestWriteJournal(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	j := journalStub{
		orders: []order.Quote{{
			UpstreamOrderID: 99,
			PickupType:      cart.PickupCourier,
			Breakdown: pricing.Aggregate(
				decimal.NewFromInt(50), decimal.NewFromInt(20), decimal.NewFromInt(30),
				decimal.NewFromInt(15), decimal.NewFromInt(7),
			),
			CreatedAt: at,
		}},
		returns: []order.ReturnQuote{{
			UpstreamOrderID: 41,
			PickupType:      cart.PickupSite,
			BorrowedBookIDs: []int64{3, 4},
			NetRefund:       decimal.NewFromInt(40),
			CreatedAt:       at,
		}},
	}

	var out bytes.Buffer
	require.NoError(t, writeJournal(context.Background(), &out, j, 7, 10))

	s := out.String()
	assert.Contains(t, s, "108.00")
	assert.Contains(t, s, "COURIER")
	assert.Contains(t, s, "3,4")
	assert.Contains(t, s, "40.00")
	assert.Contains(t, s, "2026-03-10T12:00:00Z")
}

func TestRunJournalFlags(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	var out bytes.Buffer
	require.Error(t, runJournal(context.Background(), []string{"-user", "7"}, &out))
	require.Error(t, runJournal(context.Background(), []string{"-database-url", "postgres://x", "-user", "0"}, &out))
	require.Error(t, runJournal(context.Background(), []string{"-database-url", "postgres://x", "-user", "7", "-limit", "0"}, &out))
}
