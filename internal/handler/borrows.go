package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/bookstore-checkout/internal/returns"
)

func (h *Handler) writeBorrows(w http.ResponseWriter, r *http.Request, v *returns.View, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBorrowsView(e, v) })
}

// getBorrows serves GET /api/borrows. Settlements are evaluated at request
// time.
func (h *Handler) getBorrows(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	v, err := h.returns.Borrows(r.Context(), mustSession(r), refresh)
	h.writeBorrows(w, r, v, err)
}

func (h *Handler) selectBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.returns.Select(r.Context(), mustSession(r), id)
	h.writeBorrows(w, r, v, err)
}

func (h *Handler) deselectBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	v, err := h.returns.Deselect(r.Context(), mustSession(r), id)
	h.writeBorrows(w, r, v, err)
}

func (h *Handler) selectAll(w http.ResponseWriter, r *http.Request) {
	v, err := h.returns.SelectAll(r.Context(), mustSession(r))
	h.writeBorrows(w, r, v, err)
}

func (h *Handler) clearSelection(w http.ResponseWriter, r *http.Request) {
	v, err := h.returns.Clear(r.Context(), mustSession(r))
	h.writeBorrows(w, r, v, err)
}

func (h *Handler) submitReturn(w http.ResponseWriter, r *http.Request) {
	var body deliveryBody
	if err := decodeBody(w, r, body.decode); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.check(body); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.returns.Submit(r.Context(), mustSession(r), body.delivery())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSubmitted(e, s) })
}
