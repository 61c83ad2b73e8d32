// Package handler serves the BFF REST API consumed by the bookstore
// frontend.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/bookstore-checkout/internal/checkout"
	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/returns"
)

// Handler serves the cart, checkout and return-order endpoints.
type Handler struct {
	checkout *checkout.Service
	returns  *returns.Service
	validate *validator.Validate
}

// New creates a Handler.
func New(co *checkout.Service, rt *returns.Service) *Handler {
	return &Handler{
		checkout: co,
		returns:  rt,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Mount registers the API under /api. Every route requires a session
// resolved by resolver.
func (h *Handler) Mount(r chi.Router, resolver account.Resolver) {
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(resolver))

		r.Get("/me", h.me)

		r.Get("/cart", h.getCart)
		r.Post("/cart", h.addCartItem)
		r.Patch("/cart", h.updateCartItem)
		r.Delete("/cart/{id}", h.deleteCartItem)

		r.Get("/checkout", h.enterCheckout)
		r.Post("/checkout/promo", h.applyPromo)
		r.Delete("/checkout/promo", h.removePromo)
		r.Post("/checkout/order", h.placeOrder)

		r.Get("/borrows", h.getBorrows)
		r.Put("/borrows/selection", h.selectAll)
		r.Delete("/borrows/selection", h.clearSelection)
		r.Put("/borrows/selection/{id}", h.selectBook)
		r.Delete("/borrows/selection/{id}", h.deselectBook)
		r.Post("/return-order", h.submitReturn)
	})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProfile(e, sess.Profile) })
}
