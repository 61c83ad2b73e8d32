package bookapi

import (
	"github.com/go-faster/jx"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
)

func encodeAddItem(item cart.AddItem) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("book_details_id")
	e.Int64(item.BookDetailsID)
	e.FieldStart("quantity")
	e.Int(max(item.Quantity, 1))
	e.FieldStart("borrowing_weeks")
	e.Int(item.BorrowingWeeks)
	e.ObjEnd()
	return e.Bytes()
}

func encodeUpdateItem(item cart.UpdateItem) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("cart_item_id")
	e.Int64(item.CartItemID)
	if item.Quantity != nil {
		e.FieldStart("quantity")
		e.Int(*item.Quantity)
	}
	if item.BorrowingWeeks != nil {
		e.FieldStart("borrowing_weeks")
		e.Int(*item.BorrowingWeeks)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodePromo(code string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.ObjEnd()
	return e.Bytes()
}

func encodeDelivery(e *jx.Encoder, d order.Delivery) {
	e.FieldStart("pickup_type")
	e.Str(string(d.PickupType))
	e.FieldStart("address")
	if d.Address == "" {
		e.Null()
	} else {
		e.Str(d.Address)
	}
	e.FieldStart("phone_number")
	if d.PhoneNumber == "" {
		e.Null()
	} else {
		e.Str(d.PhoneNumber)
	}
}

func encodeOrder(req order.Request) []byte {
	var e jx.Encoder
	e.ObjStart()
	encodeDelivery(&e, req.Delivery)
	if req.PromoCodeID != 0 {
		e.FieldStart("promo_code_id")
		e.Int64(req.PromoCodeID)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeReturnOrder(req order.ReturnRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	encodeDelivery(&e, req.Delivery)
	e.FieldStart("borrowed_books_ids")
	e.ArrStart()
	for _, id := range req.BorrowedBookIDs {
		e.Int64(id)
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}
