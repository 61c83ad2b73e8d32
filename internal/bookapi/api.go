package bookapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
)

var (
	_ account.Resolver  = (*Client)(nil)
	_ cart.Source       = (*Client)(nil)
	_ promo.Validator   = (*Client)(nil)
	_ settlement.Source = (*Client)(nil)
	_ order.Placer      = (*Client)(nil)
)

// Me returns the profile of the credentials' owner.
func (c *Client) Me(ctx context.Context, cred account.Credentials) (*account.Profile, error) {
	var p *account.Profile
	err := c.read(ctx, cred, "/auth/me", func(d *jx.Decoder) (err error) {
		p, err = decodeProfile(d)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "get profile")
	}
	return p, nil
}

// Cart returns the current cart.
func (c *Client) Cart(ctx context.Context, cred account.Credentials) (*cart.Snapshot, error) {
	var s *cart.Snapshot
	err := c.read(ctx, cred, "/cart", func(d *jx.Decoder) (err error) {
		s, err = decodeCart(d)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return s, nil
}

// AddCartItem puts a book into the cart.
func (c *Client) AddCartItem(ctx context.Context, cred account.Credentials, item cart.AddItem) error {
	if err := c.write(ctx, cred, http.MethodPost, "/cart", encodeAddItem(item), nil); err != nil {
		return errors.Wrap(err, "add cart item")
	}
	return nil
}

// UpdateCartItem changes quantity or borrowing weeks of a cart line.
func (c *Client) UpdateCartItem(ctx context.Context, cred account.Credentials, item cart.UpdateItem) error {
	err := c.write(ctx, cred, http.MethodPatch, "/cart", encodeUpdateItem(item), nil)
	if err != nil {
		return errors.Wrap(classify(err, http.StatusNotFound, cart.ErrItemNotFound), "update cart item")
	}
	return nil
}

// DeleteCartItem removes a cart line.
func (c *Client) DeleteCartItem(ctx context.Context, cred account.Credentials, cartItemID int64) error {
	path := "/cart/" + strconv.FormatInt(cartItemID, 10)
	if err := c.write(ctx, cred, http.MethodDelete, path, nil, nil); err != nil {
		return errors.Wrap(classify(err, http.StatusNotFound, cart.ErrItemNotFound), "delete cart item")
	}
	return nil
}

// ActivatePromoCode validates a promo code. Unknown or inactive codes
// yield promo.ErrInvalidCode.
func (c *Client) ActivatePromoCode(ctx context.Context, cred account.Credentials, code string) (*promo.Code, error) {
	var out *promo.Code
	err := c.write(ctx, cred, http.MethodPost, "/promo-codes/active", encodePromo(code), func(d *jx.Decoder) (err error) {
		out, err = decodePromo(d)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(classifyRejected(err, promo.ErrInvalidCode), "activate promo code")
	}
	if out == nil || !out.Active {
		return nil, errors.Wrapf(promo.ErrInvalidCode, "code %q is inactive", code)
	}
	return out, nil
}

// ClientBorrows lists the user's active borrows.
func (c *Client) ClientBorrows(ctx context.Context, cred account.Credentials) ([]settlement.BorrowedBook, error) {
	var books []settlement.BorrowedBook
	err := c.read(ctx, cred, "/return-order/client-borrows", func(d *jx.Decoder) (err error) {
		books, err = decodeBorrows(d)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "get client borrows")
	}
	return books, nil
}

// CreateOrder submits an order for the whole cart. A business rejection
// from the upstream yields order.ErrRejected.
func (c *Client) CreateOrder(ctx context.Context, cred account.Credentials, req order.Request) (*order.Created, error) {
	var out *order.Created
	err := c.write(ctx, cred, http.MethodPost, "/order/", encodeOrder(req), func(d *jx.Decoder) (err error) {
		out, err = decodeCreated(d)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(classifyRejected(err, order.ErrRejected), "create order")
	}
	if out == nil {
		out = &order.Created{}
	}
	return out, nil
}

// CreateReturnOrder submits a return order for the given borrows.
func (c *Client) CreateReturnOrder(ctx context.Context, cred account.Credentials, req order.ReturnRequest) (*order.Created, error) {
	var out *order.Created
	err := c.write(ctx, cred, http.MethodPost, "/return-order", encodeReturnOrder(req), func(d *jx.Decoder) (err error) {
		out, err = decodeCreated(d)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(classifyRejected(err, order.ErrRejected), "create return order")
	}
	if out == nil {
		out = &order.Created{}
	}
	return out, nil
}

// classify sets kind on a StatusError with the given status code.
func classify(err error, code int, kind error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Kind == nil && se.StatusCode == code {
		se.Kind = kind
	}
	return err
}

// classifyRejected sets kind on a StatusError for any business rejection.
func classifyRejected(err error, kind error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Kind == nil && se.Rejected() {
		se.Kind = kind
	}
	return err
}
