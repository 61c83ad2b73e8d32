package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
)

const maxBodyBytes = 64 << 10

// BadRequestError reports a malformed request.
type BadRequestError struct {
	Reason string
	Err    error
}

func (e *BadRequestError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *BadRequestError) Unwrap() error {
	return e.Err
}

func badRequest(reason string, err error) error {
	return &BadRequestError{Reason: reason, Err: err}
}

// decodeBody reads an object body and hands every field to fn.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body", err)
	}
	if err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		return badRequest("decode body", err)
	}
	return nil
}

func (h *Handler) check(v any) error {
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return badRequest("invalid field "+verrs[0].Field(), err)
		}
		return badRequest("invalid request", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid "+name, err)
	}
	return id, nil
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type addItemBody struct {
	BookDetailsID  int64 `validate:"gt=0"`
	Quantity       int   `validate:"gte=0"`
	BorrowingWeeks int   `validate:"gte=0"`
}

func (b *addItemBody) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "book_details_id":
		b.BookDetailsID, err = d.Int64()
	case "quantity":
		b.Quantity, err = d.Int()
	case "borrowing_weeks":
		b.BorrowingWeeks, err = d.Int()
	default:
		err = d.Skip()
	}
	return err
}

func (b addItemBody) item() cart.AddItem {
	return cart.AddItem{BookDetailsID: b.BookDetailsID, Quantity: b.Quantity, BorrowingWeeks: b.BorrowingWeeks}
}

type updateItemBody struct {
	CartItemID     int64 `validate:"gt=0"`
	Quantity       *int
	BorrowingWeeks *int
}

func (b *updateItemBody) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "cart_item_id":
		b.CartItemID, err = d.Int64()
	case "quantity":
		b.Quantity, err = decodeOptInt(d)
	case "borrowing_weeks":
		b.BorrowingWeeks, err = decodeOptInt(d)
	default:
		err = d.Skip()
	}
	return err
}

func (b updateItemBody) item() cart.UpdateItem {
	return cart.UpdateItem{CartItemID: b.CartItemID, Quantity: b.Quantity, BorrowingWeeks: b.BorrowingWeeks}
}

type promoBody struct {
	Code       string `validate:"required,max=64"`
	PickupType string `validate:"omitempty,oneof=SITE COURIER"`
}

func (b *promoBody) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "code":
		b.Code, err = d.Str()
	case "pickup_type":
		b.PickupType, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

// deliveryBody is the structural part of the delivery form. Courier rules
// are enforced by order.Delivery.
type deliveryBody struct {
	PickupType  string `validate:"required,oneof=SITE COURIER"`
	Address     string `validate:"max=512"`
	PhoneNumber string `validate:"max=32"`
}

func (b *deliveryBody) decode(d *jx.Decoder, key string) (err error) {
	switch key {
	case "pickup_type":
		b.PickupType, err = d.Str()
	case "address":
		b.Address, err = decodeOptStr(d)
	case "phone_number":
		b.PhoneNumber, err = decodeOptStr(d)
	default:
		err = d.Skip()
	}
	return err
}

func (b deliveryBody) delivery() order.Delivery {
	return order.Delivery{
		PickupType:  cart.PickupType(b.PickupType),
		Address:     b.Address,
		PhoneNumber: b.PhoneNumber,
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// pickupParam reads ?pickup_type=, defaulting to on-site pickup.
func pickupParam(r *http.Request, fallback string) (cart.PickupType, error) {
	v := r.URL.Query().Get("pickup_type")
	if v == "" {
		v = fallback
	}
	if v == "" {
		return cart.PickupSite, nil
	}
	p, err := cart.ParsePickupType(v)
	if err != nil {
		return "", badRequest("invalid pickup_type", err)
	}
	return p, nil
}
