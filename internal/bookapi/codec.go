package bookapi

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
)

// The functions below read and write payloads in the upstream wire shape.
// They back the snapshot store and offline tooling working on captured
// responses. Decimals are written as strings, delivery fees under
// "delivery_fees".

// DecodeCart parses a GET /cart body.
func DecodeCart(data []byte) (*cart.Snapshot, error) {
	return decodeCart(jx.DecodeBytes(data))
}

// DecodePromo parses a POST /promo-codes/active body.
func DecodePromo(data []byte) (*promo.Code, error) {
	return decodePromo(jx.DecodeBytes(data))
}

// DecodeBorrows parses a GET /return-order/client-borrows body.
func DecodeBorrows(data []byte) ([]settlement.BorrowedBook, error) {
	return decodeBorrows(jx.DecodeBytes(data))
}

func encodeDecimal(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Str(v.String())
}

func encodeBook(e *jx.Encoder, b cart.Book) {
	e.FieldStart("book")
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(b.ID)
	e.FieldStart("title")
	e.Str(b.Title)
	e.FieldStart("cover_img")
	e.Str(b.CoverImage)
	e.FieldStart("author")
	e.ObjStart()
	e.FieldStart("name")
	e.Str(b.Author)
	e.ObjEnd()
	e.ObjEnd()
}

// EncodeCart writes s in the GET /cart shape.
func EncodeCart(s *cart.Snapshot) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("purchase_items")
	e.ArrStart()
	for _, l := range s.PurchaseItems {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(l.CartItemID)
		e.FieldStart("book_details_id")
		e.Int64(l.BookDetailsID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encodeDecimal(&e, "book_price", l.UnitPrice)
		encodeBook(&e, l.Book)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("borrow_items")
	e.ArrStart()
	for _, l := range s.BorrowItems {
		e.ObjStart()
		e.FieldStart("id")
		e.Int64(l.CartItemID)
		e.FieldStart("book_details_id")
		e.Int64(l.BookDetailsID)
		e.FieldStart("borrowing_weeks")
		e.Int(l.BorrowingWeeks)
		encodeDecimal(&e, "borrow_fees_per_week", l.WeeklyFee)
		encodeDecimal(&e, "deposit_fees", l.DepositFee)
		encodeDecimal(&e, "delay_fees_per_day", l.DelayFeePerDay)
		encodeBook(&e, l.Book)
		e.ObjEnd()
	}
	e.ArrEnd()
	encodeDecimal(&e, "delivery_fees", s.DeliveryFee)
	e.FieldStart("remaining_borrow_books_count")
	e.Int(s.RemainingBorrowQuota)
	e.ObjEnd()
	return e.Bytes()
}

// EncodePromo writes c in the POST /promo-codes/active shape.
func EncodePromo(c *promo.Code) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	encodeDecimal(&e, "discount_perc", c.DiscountPercent)
	e.FieldStart("is_active")
	e.Bool(c.Active)
	e.ObjEnd()
	return e.Bytes()
}

// EncodeBorrows writes books in the GET /return-order/client-borrows shape.
func EncodeBorrows(books []settlement.BorrowedBook) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, b := range books {
		e.ObjStart()
		e.FieldStart("book_details_id")
		e.Int64(b.BookDetailsID)
		e.FieldStart("borrowing_weeks")
		e.Int(b.BorrowingWeeks)
		e.FieldStart("expected_return_date")
		e.Str(b.ExpectedReturnDate.UTC().Format(time.RFC3339Nano))
		encodeDecimal(&e, "deposit_fees", b.DepositFee)
		encodeDecimal(&e, "borrow_fees", b.BorrowFees)
		encodeDecimal(&e, "delay_fees_per_day", b.DelayFeePerDay)
		encodeBook(&e, b.Book)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}
