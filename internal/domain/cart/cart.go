package cart

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
)

// Borrowing period bounds in weeks, inclusive.
const (
	MinBorrowWeeks = 1
	MaxBorrowWeeks = 4
)

var (
	// ErrInvalidQuantity is returned for a purchase line with quantity below 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrInvalidWeeks is returned when borrowing weeks fall outside [1,4].
	ErrInvalidWeeks = errors.New("borrowing weeks must be between 1 and 4")
	// ErrBorrowQuotaExceeded is returned when adding a borrow line would
	// exceed the remaining borrow quota.
	ErrBorrowQuotaExceeded = errors.New("borrow quota exceeded")
	// ErrNegativeAmount is returned when a snapshot carries a negative price or fee.
	ErrNegativeAmount = errors.New("negative amount in cart")
	// ErrItemNotFound is returned when a mutation targets a missing cart line.
	ErrItemNotFound = errors.New("cart item not found")
)

// Book is the display information attached to a cart line.
type Book struct {
	ID         int64
	Title      string
	CoverImage string
	Author     string
}

// PurchaseLine is a cart entry for a book being bought.
type PurchaseLine struct {
	CartItemID    int64
	BookDetailsID int64
	Quantity      int
	UnitPrice     decimal.Decimal
	Book          Book
}

// Subtotal is unit price times quantity.
func (l PurchaseLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// BorrowLine is a cart entry for a time-bound rental.
type BorrowLine struct {
	CartItemID     int64
	BookDetailsID  int64
	BorrowingWeeks int
	WeeklyFee      decimal.Decimal
	DepositFee     decimal.Decimal
	DelayFeePerDay decimal.Decimal
	Book           Book
}

// BorrowFee is the weekly fee times the number of weeks, deposit excluded.
func (l BorrowLine) BorrowFee() decimal.Decimal {
	return l.WeeklyFee.Mul(decimal.NewFromInt(int64(l.BorrowingWeeks)))
}

// Subtotal is the borrow fee plus the refundable deposit, as shown on the
// line itself.
func (l BorrowLine) Subtotal() decimal.Decimal {
	return l.BorrowFee().Add(l.DepositFee)
}

// Snapshot is an immutable view of a user's cart as returned by the API.
type Snapshot struct {
	PurchaseItems        []PurchaseLine
	BorrowItems          []BorrowLine
	DeliveryFee          decimal.Decimal
	RemainingBorrowQuota int
}

// IsEmpty reports whether the cart holds neither purchase nor borrow lines.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || (len(s.PurchaseItems) == 0 && len(s.BorrowItems) == 0)
}

// Validate checks the snapshot invariants.
func (s *Snapshot) Validate() error {
	if s == nil {
		return nil
	}
	if s.DeliveryFee.IsNegative() {
		return errors.Wrap(ErrNegativeAmount, "delivery fee")
	}
	for i, l := range s.PurchaseItems {
		if l.Quantity < 1 {
			return errors.Wrapf(ErrInvalidQuantity, "purchase item %d (book %d)", i, l.BookDetailsID)
		}
		if l.UnitPrice.IsNegative() {
			return errors.Wrapf(ErrNegativeAmount, "purchase item %d unit price", i)
		}
	}
	for i, l := range s.BorrowItems {
		if err := ValidateWeeks(l.BorrowingWeeks); err != nil {
			return errors.Wrapf(err, "borrow item %d (book %d)", i, l.BookDetailsID)
		}
		if l.WeeklyFee.IsNegative() || l.DepositFee.IsNegative() || l.DelayFeePerDay.IsNegative() {
			return errors.Wrapf(ErrNegativeAmount, "borrow item %d fees", i)
		}
	}
	return nil
}

// ValidateWeeks checks that weeks is a valid borrowing period.
func ValidateWeeks(weeks int) error {
	if weeks < MinBorrowWeeks || weeks > MaxBorrowWeeks {
		return errors.Wrapf(ErrInvalidWeeks, "got %d", weeks)
	}
	return nil
}

// PickupType selects how an order is handed over.
type PickupType string

const (
	// PickupSite is on-site pickup; no delivery fee.
	PickupSite PickupType = "SITE"
	// PickupCourier is courier delivery; the flat delivery fee applies.
	PickupCourier PickupType = "COURIER"
)

// ParsePickupType validates a pickup type received from a client.
func ParsePickupType(s string) (PickupType, error) {
	switch PickupType(s) {
	case PickupSite, PickupCourier:
		return PickupType(s), nil
	default:
		return "", &InvalidPickupTypeError{Value: s}
	}
}

// InvalidPickupTypeError reports an unsupported pickup type.
type InvalidPickupTypeError struct {
	Value string
}

func (e *InvalidPickupTypeError) Error() string {
	return fmt.Sprintf("invalid pickup type %q", e.Value)
}

// AddItem is a request to put a book into the cart. BorrowingWeeks is zero
// for purchase books.
type AddItem struct {
	BookDetailsID  int64
	Quantity       int
	BorrowingWeeks int
}

// IsBorrow reports whether the add targets a borrowable book.
func (a AddItem) IsBorrow() bool {
	return a.BorrowingWeeks != 0
}

// CheckAdd enforces the add-to-cart boundary rules against the current
// snapshot: weeks in range and remaining borrow quota for borrow lines, a
// positive quantity for purchase lines.
func CheckAdd(s *Snapshot, a AddItem) error {
	if a.IsBorrow() {
		if err := ValidateWeeks(a.BorrowingWeeks); err != nil {
			return err
		}
		if s != nil && s.RemainingBorrowQuota <= 0 {
			return ErrBorrowQuotaExceeded
		}
		return nil
	}
	if a.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

// UpdateItem changes quantity or borrowing weeks of an existing line. Only
// the field matching the line kind is set.
type UpdateItem struct {
	CartItemID     int64
	Quantity       *int
	BorrowingWeeks *int
}

// Validate checks the update fields.
func (u UpdateItem) Validate() error {
	if u.Quantity == nil && u.BorrowingWeeks == nil {
		return errors.New("quantity or borrowing weeks required")
	}
	if u.Quantity != nil && *u.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if u.BorrowingWeeks != nil {
		return ValidateWeeks(*u.BorrowingWeeks)
	}
	return nil
}

// Source fetches and mutates the authoritative cart.
type Source interface {
	Cart(ctx context.Context, cred account.Credentials) (*Snapshot, error)
	AddCartItem(ctx context.Context, cred account.Credentials, item AddItem) error
	UpdateCartItem(ctx context.Context, cred account.Credentials, item UpdateItem) error
	DeleteCartItem(ctx context.Context, cred account.Credentials, cartItemID int64) error
}
