package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// enterCheckout serves GET /api/checkout. The cart is always refetched and
// the attached promo code re-validated.
func (h *Handler) enterCheckout(w http.ResponseWriter, r *http.Request) {
	pickup, err := pickupParam(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.checkout.Enter(r.Context(), mustSession(r), pickup)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCheckoutView(e, v) })
}

func (h *Handler) applyPromo(w http.ResponseWriter, r *http.Request) {
	var body promoBody
	if err := decodeBody(w, r, body.decode); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(body); err != nil {
		writeError(w, r, err)
		return
	}
	pickup, err := pickupParam(r, body.PickupType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.checkout.ApplyPromo(r.Context(), mustSession(r), body.Code, pickup)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCheckoutView(e, v) })
}

func (h *Handler) removePromo(w http.ResponseWriter, r *http.Request) {
	if err := h.checkout.RemovePromo(r.Context(), mustSession(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// placeOrder serves POST /api/checkout/order. The submission is sent once;
// a stale price answers 409 with the recomputed checkout.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body deliveryBody
	if err := decodeBody(w, r, body.decode); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(body); err != nil {
		writeError(w, r, err)
		return
	}
	placed, err := h.checkout.PlaceOrder(r.Context(), mustSession(r), body.delivery())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePlaced(e, placed) })
}
