package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/bookstore-checkout/internal/checkout"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, v *checkout.CartView, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartView(e, v) })
}

// getCart serves GET /api/cart. With refresh=true the snapshot is refetched
// regardless of its age.
func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	v, err := h.checkout.Cart(r.Context(), mustSession(r), refresh)
	h.writeCart(w, r, v, err)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var body addItemBody
	if err := decodeBody(w, r, body.decode); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(body); err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.checkout.AddItem(r.Context(), mustSession(r), body.item())
	h.writeCart(w, r, v, err)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var body updateItemBody
	if err := decodeBody(w, r, body.decode); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.Quantity == nil && body.BorrowingWeeks == nil {
		writeError(w, r, badRequest("quantity or borrowing_weeks required", nil))
		return
	}
	v, err := h.checkout.UpdateItem(r.Context(), mustSession(r), body.item())
	h.writeCart(w, r, v, err)
}

func (h *Handler) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.checkout.RemoveItem(r.Context(), mustSession(r), id)
	h.writeCart(w, r, v, err)
}
