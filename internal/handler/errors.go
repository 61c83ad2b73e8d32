package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore-checkout/internal/bookapi"
	"github.com/xenking/bookstore-checkout/internal/checkout"
	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/returns"
)

// apiError is the failure body: {"code", "error", "message"} plus optional
// details for the frontend to render.
type apiError struct {
	status  int
	code    string
	message string
	extra   func(e *jx.Encoder)
}

func (a apiError) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(a.code)
	e.FieldStart("error")
	e.Str(http.StatusText(a.status))
	e.FieldStart("message")
	e.Str(a.message)
	if a.extra != nil {
		a.extra(e)
	}
	e.ObjEnd()
}

// writeError maps err to a status and error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	a := mapError(err)
	lg := zctx.From(r.Context())
	switch {
	case a.status >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.String("code", a.code), zap.Error(err))
	case a.status == http.StatusBadGateway || a.status == http.StatusServiceUnavailable:
		lg.Warn("Upstream failure", zap.String("code", a.code), zap.Error(err))
	default:
		lg.Debug("Request rejected", zap.String("code", a.code), zap.Error(err))
	}
	writeJSON(w, a.status, a.encode)
}

func mapError(err error) apiError {
	var (
		stale   *checkout.StalePriceError
		funds   *checkout.InsufficientFundsError
		bad     *BadRequestError
		pickup  *cart.InvalidPickupTypeError
		payload *bookapi.PayloadError
		status  *bookapi.StatusError
		netErr  *bookapi.TransportError
	)
	switch {
	case errors.As(err, &stale):
		a := apiError{
			status:  http.StatusConflict,
			code:    "stale_price",
			message: "the cart changed, review the updated total",
		}
		if stale.View != nil {
			a.extra = func(e *jx.Encoder) {
				e.FieldStart("checkout")
				encodeCheckoutView(e, stale.View)
			}
		}
		return a
	case errors.As(err, &funds):
		return apiError{
			status:  http.StatusPaymentRequired,
			code:    "top_up_required",
			message: funds.Error(),
			extra: func(e *jx.Encoder) {
				moneyField(e, "balance", funds.Balance)
				moneyField(e, "required", funds.Required)
				moneyField(e, "shortfall", funds.Shortfall)
			},
		}
	case errors.Is(err, promo.ErrInvalidCode):
		return apiError{status: http.StatusUnprocessableEntity, code: "invalid_promo_code", message: "invalid promo code"}
	case errors.Is(err, pricing.ErrEmptyCart):
		return apiError{
			status:  http.StatusConflict,
			code:    "cart_empty",
			message: "cart is empty",
			extra: func(e *jx.Encoder) {
				e.FieldStart("redirect")
				e.Str("/cart")
			},
		}
	case errors.Is(err, pricing.ErrNegativeTotal):
		return apiError{status: http.StatusUnprocessableEntity, code: "negative_total", message: "order total is negative"}
	case errors.Is(err, account.ErrUnauthenticated):
		return apiError{status: http.StatusUnauthorized, code: "unauthenticated", message: "sign in required"}
	case errors.As(err, &payload), errors.Is(err, money.ErrMalformed), errors.Is(err, bookapi.ErrMalformedTime):
		return apiError{status: http.StatusBadGateway, code: "bad_upstream_payload", message: "upstream returned a malformed payload"}
	case errors.Is(err, order.ErrAddressRequired), errors.Is(err, order.ErrInvalidPhone), errors.As(err, &pickup):
		return apiError{status: http.StatusBadRequest, code: "invalid_delivery", message: rootMessage(err)}
	case errors.As(err, &bad):
		return apiError{status: http.StatusBadRequest, code: "invalid_request", message: bad.Reason}
	case errors.Is(err, cart.ErrBorrowQuotaExceeded):
		return apiError{status: http.StatusUnprocessableEntity, code: "borrow_quota_exceeded", message: "borrow limit reached"}
	case errors.Is(err, cart.ErrInvalidWeeks):
		return apiError{status: http.StatusUnprocessableEntity, code: "invalid_borrowing_weeks", message: cart.ErrInvalidWeeks.Error()}
	case errors.Is(err, cart.ErrInvalidQuantity):
		return apiError{status: http.StatusUnprocessableEntity, code: "invalid_quantity", message: cart.ErrInvalidQuantity.Error()}
	case errors.Is(err, cart.ErrItemNotFound):
		return apiError{status: http.StatusNotFound, code: "cart_item_not_found", message: cart.ErrItemNotFound.Error()}
	case errors.Is(err, returns.ErrUnknownBook):
		return apiError{status: http.StatusNotFound, code: "borrow_not_found", message: returns.ErrUnknownBook.Error()}
	case errors.Is(err, order.ErrNoBooks):
		return apiError{status: http.StatusUnprocessableEntity, code: "no_books_selected", message: order.ErrNoBooks.Error()}
	case errors.Is(err, order.ErrRejected):
		msg := "the store rejected the order"
		if errors.As(err, &status) && status.Detail != "" {
			msg = status.Detail
		}
		return apiError{status: http.StatusUnprocessableEntity, code: "order_rejected", message: msg}
	case errors.As(err, &status):
		return apiError{status: http.StatusBadGateway, code: "upstream_error", message: "the store API failed"}
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return apiError{status: http.StatusServiceUnavailable, code: "upstream_unavailable", message: "the store API is unreachable"}
	default:
		return apiError{status: http.StatusInternalServerError, code: "internal", message: "internal server error"}
	}
}

// rootMessage is the message of the innermost wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
