// Package order describes the order and return-order requests submitted to
// the upstream store.
package order

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
)

var (
	// ErrRejected is returned when the upstream refuses a submitted order for
	// a business reason. The client view of the cart is stale.
	ErrRejected = errors.New("order rejected by upstream")
	// ErrAddressRequired is returned for courier pickup without an address.
	ErrAddressRequired = errors.New("address is required for courier pickup")
	// ErrInvalidPhone is returned for courier pickup with a phone number that
	// is not exactly 11 digits.
	ErrInvalidPhone = errors.New("phone number must be 11 digits")
	// ErrNoBooks is returned for a return order without books.
	ErrNoBooks = errors.New("no borrowed books selected")
)

var phonePattern = regexp.MustCompile(`^\d{11}$`)

// Delivery is how an order is handed over.
type Delivery struct {
	PickupType  cart.PickupType
	Address     string
	PhoneNumber string
}

// Validate checks courier delivery details. On-site pickup needs none.
func (d Delivery) Validate() error {
	if d.PickupType != cart.PickupCourier {
		return nil
	}
	if strings.TrimSpace(d.Address) == "" {
		return ErrAddressRequired
	}
	if !phonePattern.MatchString(d.PhoneNumber) {
		return ErrInvalidPhone
	}
	return nil
}

// Normalize drops courier details for on-site pickup.
func (d Delivery) Normalize() Delivery {
	if d.PickupType == cart.PickupSite {
		return Delivery{PickupType: cart.PickupSite}
	}
	d.Address = strings.TrimSpace(d.Address)
	return d
}

// Request is a purchase/borrow order for the whole cart.
type Request struct {
	Delivery
	// PromoCodeID is zero when no promo code is attached.
	PromoCodeID int64
}

// ReturnRequest is a return order for borrowed books.
type ReturnRequest struct {
	Delivery
	BorrowedBookIDs []int64
}

// Created is the upstream acknowledgement of a submitted order.
type Created struct {
	ID      int64
	Message string
}

// Placer submits orders upstream. Submissions are never retried.
type Placer interface {
	CreateOrder(ctx context.Context, cred account.Credentials, req Request) (*Created, error)
	CreateReturnOrder(ctx context.Context, cred account.Credentials, req ReturnRequest) (*Created, error)
}
