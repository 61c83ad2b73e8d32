// Package checkout composes orders from the user's cart.
//
// The service keeps the cart and the attached promo code as per-user
// snapshots, computes the price breakdown locally and submits orders to the
// upstream, which recomputes the charged amount and has the final word.
package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/snapshot"
)

// Upstream is the part of the store API the checkout talks to.
type Upstream interface {
	cart.Source
	promo.Validator
	order.Placer
}

// Service implements the cart and checkout workflows.
type Service struct {
	api     Upstream
	carts   *snapshot.Loader[*cart.Snapshot]
	promos  *snapshot.Loader[*promo.Code]
	journal order.Journal
	metrics *Metrics
}

// NewService creates a checkout Service. A nil journal discards quotes and
// nil metrics are not recorded.
func NewService(api Upstream, snaps *snapshot.Set, journal order.Journal, metrics *Metrics) *Service {
	if journal == nil {
		journal = order.NopJournal{}
	}
	if metrics == nil {
		metrics, _ = NewMetrics(nil)
	}
	return &Service{
		api:     api,
		carts:   snaps.Carts,
		promos:  snaps.Promos,
		journal: journal,
		metrics: metrics,
	}
}

// CartView is the cart page: the snapshot and its undiscounted subtotals.
type CartView struct {
	Cart      *cart.Snapshot
	Subtotals pricing.Subtotals
	// Promo is the attached code, if any. It is re-validated on mutations.
	Promo *promo.Code
}

// View is the checkout page.
type View struct {
	Cart       *cart.Snapshot
	PickupType cart.PickupType
	Breakdown  pricing.Breakdown
	Promo      *promo.Code
	// PromoCleared reports that the attached code failed re-validation and
	// was detached.
	PromoCleared bool
	Wallet       decimal.Decimal
	Shortfall    decimal.Decimal
}

// Affordable reports whether the wallet covers the grand total.
func (v *View) Affordable() bool {
	return !v.Shortfall.IsPositive()
}

// Placed is a successfully submitted order.
type Placed struct {
	OrderID   int64
	Message   string
	Breakdown pricing.Breakdown
}

func (s *Service) fetchCart(sess account.Session) snapshot.FetchFunc[*cart.Snapshot] {
	return func(ctx context.Context) (*cart.Snapshot, error) {
		return s.api.Cart(ctx, sess.Credentials)
	}
}

func (s *Service) loadCart(ctx context.Context, sess account.Session, refresh bool) (*cart.Snapshot, error) {
	if refresh {
		return s.carts.Refresh(ctx, sess.UserID(), s.fetchCart(sess))
	}
	return s.carts.Get(ctx, sess.UserID(), s.fetchCart(sess))
}

// Cart returns the cart page. Refresh bypasses the freshness window.
func (s *Service) Cart(ctx context.Context, sess account.Session, refresh bool) (*CartView, error) {
	snap, err := s.loadCart(ctx, sess, refresh)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	code, _ := s.promos.Peek(ctx, sess.UserID())
	return &CartView{Cart: snap, Subtotals: pricing.Valuate(snap), Promo: code}, nil
}

// AddItem puts a book into the cart after checking the borrow rules
// against the current snapshot.
func (s *Service) AddItem(ctx context.Context, sess account.Session, item cart.AddItem) (*CartView, error) {
	snap, err := s.loadCart(ctx, sess, false)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	if err := cart.CheckAdd(snap, item); err != nil {
		return nil, err
	}
	if err := s.api.AddCartItem(ctx, sess.Credentials, item); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, sess)
}

// UpdateItem changes quantity or borrowing weeks of a cart line.
func (s *Service) UpdateItem(ctx context.Context, sess account.Session, item cart.UpdateItem) (*CartView, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := s.api.UpdateCartItem(ctx, sess.Credentials, item); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, sess)
}

// RemoveItem deletes a cart line.
func (s *Service) RemoveItem(ctx context.Context, sess account.Session, cartItemID int64) (*CartView, error) {
	if err := s.api.DeleteCartItem(ctx, sess.Credentials, cartItemID); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, sess)
}

// afterMutation replaces the cart snapshot once the upstream confirmed a
// change, and re-validates the attached promo against it.
func (s *Service) afterMutation(ctx context.Context, sess account.Session) (*CartView, error) {
	if err := s.carts.Invalidate(ctx, sess.UserID()); err != nil {
		zctx.From(ctx).Warn("Cart invalidation failed", zap.Error(err))
	}
	var (
		snap *cart.Snapshot
		code *promo.Code
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if snap, err = s.carts.Refresh(gctx, sess.UserID(), s.fetchCart(sess)); err != nil {
			return errors.Wrap(err, "refresh cart")
		}
		return nil
	})
	g.Go(func() (err error) {
		code, _, err = s.revalidate(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &CartView{Cart: snap, Subtotals: pricing.Valuate(snap), Promo: code}, nil
}

// revalidate re-checks the attached promo code upstream. An invalid code is
// detached and reported as cleared.
func (s *Service) revalidate(ctx context.Context, sess account.Session) (*promo.Code, bool, error) {
	attached, ok := s.promos.Peek(ctx, sess.UserID())
	if !ok {
		return nil, false, nil
	}
	code, err := s.api.ActivatePromoCode(ctx, sess.Credentials, attached.Code)
	switch {
	case errors.Is(err, promo.ErrInvalidCode):
		s.metrics.promoInvalid(ctx)
		if err := s.promos.Invalidate(ctx, sess.UserID()); err != nil {
			return nil, true, errors.Wrap(err, "detach promo code")
		}
		return nil, true, nil
	case err != nil:
		return nil, false, errors.Wrap(err, "revalidate promo code")
	}
	if err := s.promos.Put(ctx, sess.UserID(), code); err != nil {
		zctx.From(ctx).Warn("Promo code store failed", zap.Error(err))
	}
	return code, false, nil
}

// Enter opens the checkout: the cart is always refetched and the attached
// promo code re-validated.
func (s *Service) Enter(ctx context.Context, sess account.Session, pickup cart.PickupType) (*View, error) {
	var (
		snap    *cart.Snapshot
		code    *promo.Code
		cleared bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if snap, err = s.carts.Refresh(gctx, sess.UserID(), s.fetchCart(sess)); err != nil {
			return errors.Wrap(err, "refresh cart")
		}
		return nil
	})
	g.Go(func() (err error) {
		code, cleared, err = s.revalidate(gctx, sess)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v, err := s.view(sess, snap, pickup, code)
	if err != nil {
		return nil, err
	}
	v.PromoCleared = cleared
	return v, nil
}

func (s *Service) view(sess account.Session, snap *cart.Snapshot, pickup cart.PickupType, code *promo.Code) (*View, error) {
	b, err := pricing.Quote(snap, pickup, code)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	wallet := sess.Profile.Wallet
	return &View{
		Cart:       snap,
		PickupType: pickup,
		Breakdown:  b,
		Promo:      code,
		Wallet:     wallet,
		Shortfall:  b.Shortfall(wallet),
	}, nil
}

// ApplyPromo validates and attaches a promo code. A rejected code detaches
// whatever was attached before.
func (s *Service) ApplyPromo(ctx context.Context, sess account.Session, raw string, pickup cart.PickupType) (*View, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.Wrap(promo.ErrInvalidCode, "empty code")
	}
	code, err := s.api.ActivatePromoCode(ctx, sess.Credentials, raw)
	if errors.Is(err, promo.ErrInvalidCode) {
		s.metrics.promoInvalid(ctx)
		if err := s.promos.Invalidate(ctx, sess.UserID()); err != nil {
			zctx.From(ctx).Warn("Promo code detach failed", zap.Error(err))
		}
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrap(err, "activate promo code")
	}
	if err := s.promos.Put(ctx, sess.UserID(), code); err != nil {
		return nil, errors.Wrap(err, "attach promo code")
	}

	snap, err := s.loadCart(ctx, sess, false)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	return s.view(sess, snap, pickup, code)
}

// RemovePromo detaches the promo code.
func (s *Service) RemovePromo(ctx context.Context, sess account.Session) error {
	return s.promos.Invalidate(ctx, sess.UserID())
}

// PlaceOrder submits the cart as an order. The submission is attempted
// once; the outcome is reported as is.
func (s *Service) PlaceOrder(ctx context.Context, sess account.Session, d order.Delivery) (*Placed, error) {
	lg := zctx.From(ctx)

	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.carts.Refresh(ctx, sess.UserID(), s.fetchCart(sess))
	if err != nil {
		return nil, errors.Wrap(err, "refresh cart")
	}
	if snap.IsEmpty() {
		return nil, pricing.ErrEmptyCart
	}
	code, cleared, err := s.revalidate(ctx, sess)
	if err != nil {
		return nil, err
	}
	if cleared {
		return nil, errors.Wrap(promo.ErrInvalidCode, "attached promo code is no longer valid")
	}

	b, err := pricing.Quote(snap, d.PickupType, code)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if shortfall := b.Shortfall(sess.Profile.Wallet); shortfall.IsPositive() {
		s.metrics.insufficientFunds(ctx, d.PickupType)
		return nil, &InsufficientFundsError{
			Balance:   sess.Profile.Wallet,
			Required:  b.GrandTotal,
			Shortfall: shortfall,
		}
	}

	req := order.Request{Delivery: d}
	if code != nil {
		req.PromoCodeID = code.ID
	}
	created, err := s.api.CreateOrder(ctx, sess.Credentials, req)
	if errors.Is(err, order.ErrRejected) {
		s.metrics.orderRejected(ctx, d.PickupType)
		lg.Info("Order rejected upstream", zap.Error(err), zap.String("local_total", money.Format(b.GrandTotal)))
		return nil, s.stale(ctx, sess, d.PickupType, err)
	}
	if err != nil {
		return nil, errors.Wrap(err, "submit order")
	}

	s.metrics.orderPlaced(ctx, d.PickupType)
	lg.Info("Order placed",
		zap.Int64("order_id", created.ID),
		zap.String("grand_total", money.Format(b.GrandTotal)),
	)

	if err := s.carts.Invalidate(ctx, sess.UserID()); err != nil {
		lg.Warn("Cart invalidation failed", zap.Error(err))
	}
	if err := s.promos.Invalidate(ctx, sess.UserID()); err != nil {
		lg.Warn("Promo code detach failed", zap.Error(err))
	}
	if err := s.journal.RecordOrder(ctx, &order.Quote{
		UserID:          sess.UserID(),
		UpstreamOrderID: created.ID,
		PickupType:      d.PickupType,
		PromoCodeID:     req.PromoCodeID,
		Breakdown:       b,
	}); err != nil {
		lg.Warn("Quote journal write failed", zap.Int64("order_id", created.ID), zap.Error(err))
	}

	return &Placed{OrderID: created.ID, Message: created.Message, Breakdown: b}, nil
}

// stale refetches the cart after a rejection and wraps cause with the
// recomputed view.
func (s *Service) stale(ctx context.Context, sess account.Session, pickup cart.PickupType, cause error) error {
	lg := zctx.From(ctx)
	if err := s.carts.Invalidate(ctx, sess.UserID()); err != nil {
		lg.Warn("Cart invalidation failed", zap.Error(err))
	}
	out := &StalePriceError{Cause: cause}
	snap, err := s.carts.Refresh(ctx, sess.UserID(), s.fetchCart(sess))
	if err != nil {
		lg.Warn("Cart refetch after rejection failed", zap.Error(err))
		return out
	}
	code, _ := s.promos.Peek(ctx, sess.UserID())
	if v, err := s.view(sess, snap, pickup, code); err == nil {
		out.View = v
	}
	return out
}
