package snapshot

import (
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
	"github.com/xenking/bookstore-checkout/internal/store"
)

// Set groups the loaders of every snapshot kind over one store.
type Set struct {
	Carts      *Loader[*cart.Snapshot]
	Promos     *Loader[*promo.Code]
	Borrows    *Loader[[]settlement.BorrowedBook]
	Selections *Loader[*settlement.Selection]
}

// NewSet creates loaders for all kinds.
func NewSet(s store.Store, opts ...Option) *Set {
	return &Set{
		Carts:      NewLoader(store.KindCart, s, CartCodec, opts...),
		Promos:     NewLoader(store.KindPromo, s, PromoCodec, opts...),
		Borrows:    NewLoader(store.KindBorrows, s, BorrowsCodec, opts...),
		Selections: NewLoader(store.KindSelection, s, SelectionCodec, opts...),
	}
}
