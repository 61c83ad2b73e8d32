package bookapi

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
)

// ErrMalformedTime is returned for a timestamp in an unknown layout.
var ErrMalformedTime = errors.New("malformed timestamp")

// decodeDecimal reads a decimal encoded either as a JSON string or a JSON
// number. Anything else, null included, fails: a missing price must never be
// read as zero.
func decodeDecimal(d *jx.Decoder, field string) (decimal.Decimal, error) {
	var raw string
	switch tt := d.Next(); tt {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, errors.Wrap(err, field)
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, errors.Wrap(err, field)
		}
		raw = string(n)
	default:
		return decimal.Decimal{}, errors.Wrapf(money.ErrMalformed, "%s: unexpected %s", field, tt)
	}
	v, err := money.Parse(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, field)
	}
	return v, nil
}

// decodeOptString reads a string that may be null.
func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// Timestamp layouts accepted from the upstream, tried in order. Layouts
// without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Wrapf(ErrMalformedTime, "%q", s)
}

func decodeProfile(d *jx.Decoder) (*account.Profile, error) {
	var p account.Profile
	p.Wallet = decimal.Zero
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Int64()
		case "email":
			p.Email, err = decodeOptString(d)
		case "first_name":
			p.FirstName, err = decodeOptString(d)
		case "last_name":
			p.LastName, err = decodeOptString(d)
		case "phone_number":
			p.PhoneNumber, err = decodeOptString(d)
		case "wallet":
			p.Wallet, err = decodeDecimal(d, "wallet")
		case "role":
			var role string
			role, err = d.Str()
			p.Role = account.Role(role)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "profile")
	}
	if p.ID == 0 {
		return nil, errors.New("profile: missing id")
	}
	return &p, nil
}

func decodeBook(d *jx.Decoder) (cart.Book, error) {
	var b cart.Book
	if d.Next() == jx.Null {
		return b, d.Null()
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			b.ID, err = d.Int64()
		case "title":
			b.Title, err = decodeOptString(d)
		case "cover_img":
			b.CoverImage, err = decodeOptString(d)
		case "author":
			b.Author, err = decodeAuthor(d)
		default:
			return d.Skip()
		}
		return err
	})
	return b, err
}

// decodeAuthor accepts an author object with a name, or a plain name.
func decodeAuthor(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.Object:
		var name string
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "name" {
				return d.Skip()
			}
			var err error
			name, err = decodeOptString(d)
			return err
		})
		return name, err
	default:
		return decodeOptString(d)
	}
}

func decodePurchaseLine(d *jx.Decoder) (cart.PurchaseLine, error) {
	var (
		l        cart.PurchaseLine
		hasPrice bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			l.CartItemID, err = d.Int64()
		case "book_details_id":
			l.BookDetailsID, err = d.Int64()
		case "quantity":
			l.Quantity, err = d.Int()
		case "book_price":
			l.UnitPrice, err = decodeDecimal(d, "book_price")
			hasPrice = true
		case "book":
			l.Book, err = decodeBook(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err == nil && !hasPrice {
		err = errors.Wrap(money.ErrMalformed, "book_price: missing")
	}
	return l, err
}

func decodeBorrowLine(d *jx.Decoder) (cart.BorrowLine, error) {
	var (
		l    cart.BorrowLine
		seen int
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			l.CartItemID, err = d.Int64()
		case "book_details_id":
			l.BookDetailsID, err = d.Int64()
		case "borrowing_weeks", "borrow_weeks":
			l.BorrowingWeeks, err = d.Int()
		case "borrow_fees_per_week":
			l.WeeklyFee, err = decodeDecimal(d, "borrow_fees_per_week")
			seen++
		case "deposit_fees":
			l.DepositFee, err = decodeDecimal(d, "deposit_fees")
			seen++
		case "delay_fees_per_day":
			l.DelayFeePerDay, err = decodeDecimal(d, "delay_fees_per_day")
			seen++
		case "book":
			l.Book, err = decodeBook(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err == nil && seen < 3 {
		err = errors.Wrap(money.ErrMalformed, "borrow fees: missing")
	}
	return l, err
}

func decodeCart(d *jx.Decoder) (*cart.Snapshot, error) {
	s := &cart.Snapshot{DeliveryFee: decimal.Zero}
	hasFee := false
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch k := string(key); k {
		case "purchase_items":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodePurchaseLine(d)
				if err != nil {
					return errors.Wrapf(err, "purchase_items[%d]", len(s.PurchaseItems))
				}
				s.PurchaseItems = append(s.PurchaseItems, l)
				return nil
			})
		case "borrow_items":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeBorrowLine(d)
				if err != nil {
					return errors.Wrapf(err, "borrow_items[%d]", len(s.BorrowItems))
				}
				s.BorrowItems = append(s.BorrowItems, l)
				return nil
			})
		case "delivery_fees", "delevary_fees":
			fee, err := decodeDecimal(d, k)
			if err != nil {
				return err
			}
			s.DeliveryFee = fee
			hasFee = true
			return nil
		case "remaining_borrow_books_count":
			n, err := d.Int()
			s.RemainingBorrowQuota = n
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "cart")
	}
	if !hasFee {
		return nil, errors.Wrap(money.ErrMalformed, "cart: delivery_fees missing")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "cart")
	}
	return s, nil
}

func decodePromo(d *jx.Decoder) (*promo.Code, error) {
	c := &promo.Code{Active: true}
	hasPercent := false
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			c.ID, err = d.Int64()
		case "code":
			c.Code, err = decodeOptString(d)
		case "discount_perc":
			c.DiscountPercent, err = decodeDecimal(d, "discount_perc")
			hasPercent = true
		case "is_active":
			c.Active, err = d.Bool()
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "promo code")
	}
	if !hasPercent {
		return nil, errors.Wrap(money.ErrMalformed, "promo code: discount_perc missing")
	}
	// Above 100 is passed through; the total check catches it.
	if c.DiscountPercent.IsNegative() {
		return nil, errors.Wrapf(money.ErrMalformed, "promo code: negative discount_perc %s", c.DiscountPercent)
	}
	return c, nil
}

func decodeBorrowedBook(d *jx.Decoder) (settlement.BorrowedBook, error) {
	var (
		b      settlement.BorrowedBook
		hasDue bool
	)
	fees := make(map[string]*decimal.Decimal, len(borrowFeeFields))
	fee := func(d *jx.Decoder, field string, dst *decimal.Decimal) (err error) {
		*dst, err = decodeDecimal(d, field)
		fees[field] = dst
		return err
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch k := string(key); k {
		case "book_details_id":
			b.BookDetailsID, err = d.Int64()
		case "borrowing_weeks":
			b.BorrowingWeeks, err = d.Int()
		case "expected_return_date":
			var s string
			if s, err = d.Str(); err == nil {
				b.ExpectedReturnDate, err = parseTime(s)
				hasDue = true
			}
		case "deposit_fees":
			err = fee(d, k, &b.DepositFee)
		case "borrow_fees":
			err = fee(d, k, &b.BorrowFees)
		case "delay_fees_per_day":
			err = fee(d, k, &b.DelayFeePerDay)
		case "book":
			b.Book, err = decodeBook(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return b, err
	}
	if !hasDue {
		return b, errors.Wrap(ErrMalformedTime, "expected_return_date: missing")
	}
	for _, field := range borrowFeeFields {
		v, ok := fees[field]
		if !ok {
			return b, errors.Wrapf(money.ErrMalformed, "%s: missing", field)
		}
		if v.IsNegative() {
			return b, errors.Wrapf(money.ErrMalformed, "%s: negative %s", field, v)
		}
	}
	return b, nil
}

// borrowFeeFields must all be present on a borrow record.
var borrowFeeFields = []string{"deposit_fees", "borrow_fees", "delay_fees_per_day"}

func decodeBorrows(d *jx.Decoder) ([]settlement.BorrowedBook, error) {
	books := make([]settlement.BorrowedBook, 0)
	if err := d.Arr(func(d *jx.Decoder) error {
		b, err := decodeBorrowedBook(d)
		if err != nil {
			return errors.Wrapf(err, "[%d]", len(books))
		}
		books = append(books, b)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "client borrows")
	}
	return books, nil
}

// decodeCreated reads an order acknowledgement. Orders answer with
// order_id, return orders with the created object's id.
func decodeCreated(d *jx.Decoder) (*order.Created, error) {
	var c order.Created
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "order_id", "return_order_id", "id":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c.ID, err = d.Int64()
		case "message":
			c.Message, err = decodeOptString(d)
		default:
			return d.Skip()
		}
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "created order")
	}
	return &c, nil
}
