// Command quote prices captured upstream payloads offline.
//
//	quote checkout -cart cart.json.gz -pickup COURIER -promo promo.json
//	quote settle -borrows borrows.json -at 2026-03-10T12:00:00Z
//	quote journal -database-url postgres://... -user 7
//
// Inputs ending in .gz are decompressed.
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
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/bookstore-checkout/internal/bookapi"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "checkout":
		err = runCheckout(os.Args[2:], os.Stdout)
	case "settle":
		err = runSettle(os.Args[2:], os.Stdout)
	case "journal":
		err = runJournal(context.Background(), os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("quote failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: quote checkout|settle|journal [flags]")
}

func runCheckout(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	cartPath := fs.String("cart", "", "captured GET /cart body (.json or .json.gz)")
	promoPath := fs.String("promo", "", "captured POST /promo-codes/active body")
	pickupRaw := fs.String("pickup", string(cart.PickupSite), "pickup type: SITE or COURIER")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cartPath == "" {
		return errors.New("-cart is required")
	}

	pickup, err := cart.ParsePickupType(*pickupRaw)
	if err != nil {
		return err
	}
	data, err := readInput(*cartPath)
	if err != nil {
		return err
	}
	snap, err := bookapi.DecodeCart(data)
	if err != nil {
		return errors.Wrap(err, "decode cart")
	}

	var code *promo.Code
	if *promoPath != "" {
		data, err := readInput(*promoPath)
		if err != nil {
			return err
		}
		if code, err = bookapi.DecodePromo(data); err != nil {
			return errors.Wrap(err, "decode promo")
		}
		if !code.Active {
			slog.Warn("promo code is inactive, ignoring", slog.String("code", code.Code))
			code = nil
		}
	}

	b, err := pricing.Quote(snap, pickup, code)
	if err != nil {
		return errors.Wrap(err, "quote")
	}
	if err := b.Validate(); err != nil {
		return err
	}

	slog.Info("cart priced",
		slog.Int("purchase_lines", len(snap.PurchaseItems)),
		slog.Int("borrow_lines", len(snap.BorrowItems)),
		slog.String("pickup", string(pickup)),
	)
	return writeBreakdown(out, b)
}

func writeBreakdown(out io.Writer, b pricing.Breakdown) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, r := range b.Rows() {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t\n", r.Label, r.Display); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runSettle(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	borrowsPath := fs.String("borrows", "", "captured GET /return-order/client-borrows body (.json or .json.gz)")
	atRaw := fs.String("at", "", "evaluation instant in RFC 3339, defaults to now")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *borrowsPath == "" {
		return errors.New("-borrows is required")
	}

	at := time.Now()
	if *atRaw != "" {
		t, err := time.Parse(time.RFC3339, *atRaw)
		if err != nil {
			return errors.Wrap(err, "parse -at")
		}
		at = t
	}

	data, err := readInput(*borrowsPath)
	if err != nil {
		return err
	}
	books, err := bookapi.DecodeBorrows(data)
	if err != nil {
		return errors.Wrap(err, "decode borrows")
	}

	slog.Info("settling borrows", slog.Int("books", len(books)), slog.Time("at", at))
	return writeSettlements(out, books, at)
}

func writeSettlements(out io.Writer, books []settlement.BorrowedBook, at time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOOK\tTITLE\tDUE\tDAYS OVERDUE\tDELAY FEES\tNET\t")
	for i, s := range settlement.ComputeAll(books, at) {
		b := books[i]
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s %s\t\n",
			b.BookDetailsID,
			b.Book.Title,
			b.ExpectedReturnDate.UTC().Format(time.RFC3339),
			s.DaysOverdue,
			money.Format(s.DelayFees),
			s.Label(),
			money.Format(s.Amount()),
		)
	}

	sum := settlement.Summarize(books, at)
	fmt.Fprintln(tw, strings.Repeat("-", 8))
	fmt.Fprintf(tw, "books\t%d\ton time %d\toverdue %d\toverdue days %d\t\t\t\n",
		sum.TotalBooks, sum.OnTime, sum.Overdue, sum.TotalOverdueDays)
	fmt.Fprintf(tw, "deposit\t%s\tborrow fees %s\tdelay fees %s\ttotal fees %s\t\t\t\n",
		money.Format(sum.TotalDeposit),
		money.Format(sum.TotalBorrowFees),
		money.Format(sum.TotalDelayFees),
		money.Format(sum.TotalFees),
	)
	return tw.Flush()
}

// readInput reads path, gunzipping it when it ends in .gz.
func readInput(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}
