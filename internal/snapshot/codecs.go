package snapshot

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bookstore-checkout/internal/bookapi"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
)

// ErrNilSnapshot is returned when encoding a nil snapshot.
var ErrNilSnapshot = errors.New("nil snapshot")

// CartCodec stores carts in the upstream wire shape.
var CartCodec = Codec[*cart.Snapshot]{
	Encode: func(s *cart.Snapshot) ([]byte, error) {
		if s == nil {
			return nil, ErrNilSnapshot
		}
		return bookapi.EncodeCart(s), nil
	},
	Decode: bookapi.DecodeCart,
}

// PromoCodec stores the attached promo code.
var PromoCodec = Codec[*promo.Code]{
	Encode: func(c *promo.Code) ([]byte, error) {
		if c == nil {
			return nil, ErrNilSnapshot
		}
		return bookapi.EncodePromo(c), nil
	},
	Decode: bookapi.DecodePromo,
}

// BorrowsCodec stores the current borrows.
var BorrowsCodec = Codec[[]settlement.BorrowedBook]{
	Encode: func(books []settlement.BorrowedBook) ([]byte, error) {
		return bookapi.EncodeBorrows(books), nil
	},
	Decode: bookapi.DecodeBorrows,
}

// SelectionCodec stores a return selection as a list of
// {"book_details_id", "net_refund"} objects.
var SelectionCodec = Codec[*settlement.Selection]{
	Encode: encodeSelection,
	Decode: decodeSelection,
}

func encodeSelection(sel *settlement.Selection) ([]byte, error) {
	if sel == nil {
		return nil, ErrNilSnapshot
	}
	var e jx.Encoder
	e.ArrStart()
	for _, entry := range sel.Entries() {
		e.ObjStart()
		e.FieldStart("book_details_id")
		e.Int64(entry.BookDetailsID)
		e.FieldStart("net_refund")
		e.Str(entry.NetRefund.String())
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes(), nil
}

func decodeSelection(data []byte) (*settlement.Selection, error) {
	var entries []settlement.Entry
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		var entry settlement.Entry
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "book_details_id":
				id, err := d.Int64()
				entry.BookDetailsID = id
				return err
			case "net_refund":
				s, err := d.Str()
				if err != nil {
					return err
				}
				entry.NetRefund, err = money.Parse(s)
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode selection")
	}
	return settlement.Restore(entries), nil
}
