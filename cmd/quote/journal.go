package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/storage/postgres"
)

type journalReader interface {
	OrderQuotes(ctx context.Context, userID int64, limit int) ([]order.Quote, error)
	ReturnQuotes(ctx context.Context, userID int64, limit int) ([]order.ReturnQuote, error)
}

func runJournal(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	databaseURL := fs.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL of the quote journal")
	userID := fs.Int64("user", 0, "upstream user id")
	limit := fs.Int("limit", 20, "quotes of each kind to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *databaseURL == "" {
		return errors.New("-database-url or DATABASE_URL is required")
	}
	if *userID <= 0 {
		return errors.New("-user is required")
	}
	if *limit <= 0 {
		return errors.Errorf("-limit must be positive, got %d", *limit)
	}

	pool, err := postgres.NewPool(ctx, *databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("reading quote journal", slog.Int64("user_id", *userID), slog.Int("limit", *limit))
	return writeJournal(ctx, out, postgres.NewJournal(pool), *userID, *limit)
}

func writeJournal(ctx context.Context, out io.Writer, j journalReader, userID int64, limit int) error {
	orders, err := j.OrderQuotes(ctx, userID, limit)
	if err != nil {
		return err
	}
	returns, err := j.ReturnQuotes(ctx, userID, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tPICKUP\tPURCHASE\tBORROW\tDEPOSIT\tDELIVERY\tDISCOUNT\tTOTAL\tAT\t")
	for _, q := range orders {
		b := q.Breakdown
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			q.UpstreamOrderID,
			q.PickupType,
			money.Format(b.PurchaseTotal),
			money.Format(b.BorrowTotal),
			money.Format(b.DepositTotal),
			money.Format(b.DeliveryFee),
			money.Format(b.PromoDiscount),
			money.Format(b.GrandTotal),
			q.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	fmt.Fprintln(tw, "\t\t\t\t\t\t\t\t\t")
	fmt.Fprintln(tw, "RETURN\tPICKUP\tBOOKS\tNET REFUND\tAT\t\t\t\t\t")
	for _, q := range returns {
		ids := make([]string, len(q.BorrowedBookIDs))
		for i, id := range q.BorrowedBookIDs {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\t\t\t\t\n",
			q.UpstreamOrderID,
			q.PickupType,
			strings.Join(ids, ","),
			money.Format(q.NetRefund),
			q.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return tw.Flush()
}
