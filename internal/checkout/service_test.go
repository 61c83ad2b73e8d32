package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/cart"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/pricing"
	"github.com/xenking/bookstore-checkout/internal/domain/promo"
	"github.com/xenking/bookstore-checkout/internal/snapshot"
	"github.com/xenking/bookstore-checkout/internal/store"
)

// --- Mock implementations ---

type fakeUpstream struct {
	mu sync.Mutex

	cart   cart.Snapshot
	codes  map[string]*promo.Code
	nextID int64

	// onOrder runs before CreateOrder answers; a non-nil result is returned
	// as the error.
	onOrder func(f *fakeUpstream) error

	cartCalls  int
	addCalls   int
	orderCalls int
	lastOrder  order.Request
}

func newFakeUpstream(s cart.Snapshot) *fakeUpstream {
	return &fakeUpstream{cart: s, codes: map[string]*promo.Code{}, nextID: 100}
}

func (f *fakeUpstream) Cart(_ context.Context, _ account.Credentials) (*cart.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartCalls++
	s := f.cart
	s.PurchaseItems = append([]cart.PurchaseLine(nil), f.cart.PurchaseItems...)
	s.BorrowItems = append([]cart.BorrowLine(nil), f.cart.BorrowItems...)
	return &s, nil
}

func (f *fakeUpstream) AddCartItem(_ context.Context, _ account.Credentials, item cart.AddItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if item.IsBorrow() {
		f.cart.BorrowItems = append(f.cart.BorrowItems, cart.BorrowLine{
			CartItemID:     int64(len(f.cart.BorrowItems) + 10),
			BookDetailsID:  item.BookDetailsID,
			BorrowingWeeks: item.BorrowingWeeks,
			WeeklyFee:      d("5"),
			DepositFee:     d("20"),
		})
		f.cart.RemainingBorrowQuota--
		return nil
	}
	f.cart.PurchaseItems = append(f.cart.PurchaseItems, cart.PurchaseLine{
		CartItemID:    int64(len(f.cart.PurchaseItems) + 1),
		BookDetailsID: item.BookDetailsID,
		Quantity:      item.Quantity,
		UnitPrice:     d("12.50"),
	})
	return nil
}

func (f *fakeUpstream) UpdateCartItem(_ context.Context, _ account.Credentials, item cart.UpdateItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cart.PurchaseItems {
		if f.cart.PurchaseItems[i].CartItemID == item.CartItemID && item.Quantity != nil {
			f.cart.PurchaseItems[i].Quantity = *item.Quantity
			return nil
		}
	}
	for i := range f.cart.BorrowItems {
		if f.cart.BorrowItems[i].CartItemID == item.CartItemID && item.BorrowingWeeks != nil {
			f.cart.BorrowItems[i].BorrowingWeeks = *item.BorrowingWeeks
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeUpstream) DeleteCartItem(_ context.Context, _ account.Credentials, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.cart.PurchaseItems {
		if l.CartItemID == id {
			f.cart.PurchaseItems = append(f.cart.PurchaseItems[:i], f.cart.PurchaseItems[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (f *fakeUpstream) ActivatePromoCode(_ context.Context, _ account.Credentials, code string) (*promo.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[code]
	if !ok || !c.Active {
		return nil, promo.ErrInvalidCode
	}
	out := *c
	return &out, nil
}

func (f *fakeUpstream) CreateOrder(_ context.Context, _ account.Credentials, req order.Request) (*order.Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	f.lastOrder = req
	if f.onOrder != nil {
		if err := f.onOrder(f); err != nil {
			return nil, err
		}
	}
	f.nextID++
	f.cart = cart.Snapshot{DeliveryFee: f.cart.DeliveryFee, RemainingBorrowQuota: f.cart.RemainingBorrowQuota}
	return &order.Created{ID: f.nextID, Message: "Order created"}, nil
}

func (f *fakeUpstream) CreateReturnOrder(context.Context, account.Credentials, order.ReturnRequest) (*order.Created, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeUpstream) setCode(c *promo.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[c.Code] = c
}

func (f *fakeUpstream) calls() (cartCalls, orderCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cartCalls, f.orderCalls
}

type recordingJournal struct {
	mu     sync.Mutex
	orders []*order.Quote
	err    error
}

func (j *recordingJournal) RecordOrder(_ context.Context, q *order.Quote) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.orders = append(j.orders, q)
	return j.err
}

func (j *recordingJournal) RecordReturn(context.Context, *order.ReturnQuote) error {
	return nil
}

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// mixedCart prices to 50 purchase, 20 borrow, 30 deposit and 15 delivery.
func mixedCart() cart.Snapshot {
	return cart.Snapshot{
		PurchaseItems: []cart.PurchaseLine{
			{CartItemID: 1, BookDetailsID: 11, Quantity: 2, UnitPrice: d("25.00")},
		},
		BorrowItems: []cart.BorrowLine{
			{CartItemID: 2, BookDetailsID: 12, BorrowingWeeks: 2, WeeklyFee: d("10.00"), DepositFee: d("30.00"), DelayFeePerDay: d("1.00")},
		},
		DeliveryFee:          d("15.00"),
		RemainingBorrowQuota: 2,
	}
}

func session(wallet string) account.Session {
	return account.Session{
		Profile:     account.Profile{ID: 1, Wallet: d(wallet), Role: account.RoleClient},
		Credentials: account.Credentials{Authorization: "Bearer t"},
	}
}

type fixture struct {
	svc     *Service
	api     *fakeUpstream
	snaps   *snapshot.Set
	journal *recordingJournal
}

func newFixture(t *testing.T, s cart.Snapshot) *fixture {
	t.Helper()
	api := newFakeUpstream(s)
	snaps := snapshot.NewSet(store.NewMemory(store.DefaultRetention))
	j := &recordingJournal{}
	return &fixture{svc: NewService(api, snaps, j, nil), api: api, snaps: snaps, journal: j}
}

var tenPercent = &promo.Code{ID: 4, Code: "TEN", DiscountPercent: d("10"), Active: true}

// --- Tests ---

func TestCart_ServesFreshSnapshot(t *testing.T) {
	f := newFixture(t, mixedCart())
	ctx := context.Background()
	sess := session("500")

	v, err := f.svc.Cart(ctx, sess, false)
	require.NoError(t, err)
	assertDecimal(t, "50", v.Subtotals.Purchase)
	assertDecimal(t, "20", v.Subtotals.Borrow)
	assertDecimal(t, "30", v.Subtotals.Deposit)

	_, err = f.svc.Cart(ctx, sess, false)
	require.NoError(t, err)
	calls, _ := f.api.calls()
	assert.Equal(t, 1, calls)

	_, err = f.svc.Cart(ctx, sess, true)
	require.NoError(t, err)
	calls, _ = f.api.calls()
	assert.Equal(t, 2, calls)
}

func TestEnter_WithPromo(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.setCode(tenPercent)
	ctx := context.Background()
	sess := session("500")

	_, err := f.svc.ApplyPromo(ctx, sess, " TEN ", cart.PickupSite)
	require.NoError(t, err)

	tests := []struct {
		pickup cart.PickupType
		total  string
	}{
		{cart.PickupSite, "93.00"},
		{cart.PickupCourier, "108.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pickup), func(t *testing.T) {
			v, err := f.svc.Enter(ctx, sess, tt.pickup)
			require.NoError(t, err)
			assert.False(t, v.PromoCleared)
			require.NotNil(t, v.Promo)
			assertDecimal(t, "7.00", v.Breakdown.PromoDiscount)
			assertDecimal(t, tt.total, v.Breakdown.GrandTotal)
			assert.True(t, v.Affordable())
		})
	}
}

func TestEnter_EmptyCart(t *testing.T) {
	f := newFixture(t, cart.Snapshot{DeliveryFee: d("15")})
	_, err := f.svc.Enter(context.Background(), session("500"), cart.PickupCourier)
	require.ErrorIs(t, err, pricing.ErrEmptyCart)
}

func TestEnter_ClearsInvalidatedPromo(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.setCode(&promo.Code{ID: 4, Code: "TEN", DiscountPercent: d("10"), Active: true})
	ctx := context.Background()
	sess := session("500")

	_, err := f.svc.ApplyPromo(ctx, sess, "TEN", cart.PickupSite)
	require.NoError(t, err)

	f.api.setCode(&promo.Code{ID: 4, Code: "TEN", DiscountPercent: d("10"), Active: false})

	v, err := f.svc.Enter(ctx, sess, cart.PickupSite)
	require.NoError(t, err)
	assert.True(t, v.PromoCleared)
	assert.Nil(t, v.Promo)
	assertDecimal(t, "0", v.Breakdown.PromoDiscount)
	assertDecimal(t, "100.00", v.Breakdown.GrandTotal)

	_, attached := f.snaps.Promos.Peek(ctx, sess.UserID())
	assert.False(t, attached)
}

func TestApplyPromo_InvalidDetachesPrevious(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.setCode(tenPercent)
	ctx := context.Background()
	sess := session("500")

	_, err := f.svc.ApplyPromo(ctx, sess, "TEN", cart.PickupSite)
	require.NoError(t, err)

	_, err = f.svc.ApplyPromo(ctx, sess, "NOPE", cart.PickupSite)
	require.ErrorIs(t, err, promo.ErrInvalidCode)

	_, attached := f.snaps.Promos.Peek(ctx, sess.UserID())
	assert.False(t, attached)

	_, err = f.svc.ApplyPromo(ctx, sess, "  ", cart.PickupSite)
	require.ErrorIs(t, err, promo.ErrInvalidCode)
}

func TestRemovePromo(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.setCode(tenPercent)
	ctx := context.Background()
	sess := session("500")

	_, err := f.svc.ApplyPromo(ctx, sess, "TEN", cart.PickupSite)
	require.NoError(t, err)
	require.NoError(t, f.svc.RemovePromo(ctx, sess))

	v, err := f.svc.Enter(ctx, sess, cart.PickupSite)
	require.NoError(t, err)
	assert.False(t, v.PromoCleared)
	assertDecimal(t, "100.00", v.Breakdown.GrandTotal)
}

func TestAddItem(t *testing.T) {
	ctx := context.Background()
	sess := session("500")

	t.Run("refreshes snapshot", func(t *testing.T) {
		f := newFixture(t, mixedCart())
		_, err := f.svc.Cart(ctx, sess, false)
		require.NoError(t, err)

		v, err := f.svc.AddItem(ctx, sess, cart.AddItem{BookDetailsID: 20, Quantity: 2})
		require.NoError(t, err)
		require.Len(t, v.Cart.PurchaseItems, 2)
		assertDecimal(t, "75.00", v.Subtotals.Purchase)
	})

	t.Run("quota exhausted", func(t *testing.T) {
		s := mixedCart()
		s.RemainingBorrowQuota = 0
		f := newFixture(t, s)

		_, err := f.svc.AddItem(ctx, sess, cart.AddItem{BookDetailsID: 21, BorrowingWeeks: 2})
		require.ErrorIs(t, err, cart.ErrBorrowQuotaExceeded)
		assert.Zero(t, f.api.addCalls)
	})

	t.Run("weeks out of range", func(t *testing.T) {
		f := newFixture(t, mixedCart())
		_, err := f.svc.AddItem(ctx, sess, cart.AddItem{BookDetailsID: 21, BorrowingWeeks: 5})
		require.ErrorIs(t, err, cart.ErrInvalidWeeks)
		assert.Zero(t, f.api.addCalls)
	})
}

func TestUpdateAndRemoveItem(t *testing.T) {
	f := newFixture(t, mixedCart())
	ctx := context.Background()
	sess := session("500")

	weeks := 4
	v, err := f.svc.UpdateItem(ctx, sess, cart.UpdateItem{CartItemID: 2, BorrowingWeeks: &weeks})
	require.NoError(t, err)
	assertDecimal(t, "40.00", v.Subtotals.Borrow)
	assertDecimal(t, "30.00", v.Subtotals.Deposit, "deposit is not multiplied by weeks")

	bad := 0
	_, err = f.svc.UpdateItem(ctx, sess, cart.UpdateItem{CartItemID: 2, BorrowingWeeks: &bad})
	require.ErrorIs(t, err, cart.ErrInvalidWeeks)

	v, err = f.svc.RemoveItem(ctx, sess, 1)
	require.NoError(t, err)
	assert.Empty(t, v.Cart.PurchaseItems)

	_, err = f.svc.RemoveItem(ctx, sess, 1)
	require.ErrorIs(t, err, cart.ErrItemNotFound)
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.setCode(tenPercent)
	ctx := context.Background()
	sess := session("500")

	_, err := f.svc.ApplyPromo(ctx, sess, "TEN", cart.PickupCourier)
	require.NoError(t, err)

	placed, err := f.svc.PlaceOrder(ctx, sess, order.Delivery{
		PickupType:  cart.PickupCourier,
		Address:     " 12 Nile St ",
		PhoneNumber: "01012345678",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(101), placed.OrderID)
	assertDecimal(t, "108.00", placed.Breakdown.GrandTotal)

	assert.Equal(t, int64(4), f.api.lastOrder.PromoCodeID)
	assert.Equal(t, "12 Nile St", f.api.lastOrder.Address)

	require.Len(t, f.journal.orders, 1)
	q := f.journal.orders[0]
	assert.Equal(t, int64(101), q.UpstreamOrderID)
	assert.Equal(t, int64(1), q.UserID)
	assertDecimal(t, "108.00", q.Breakdown.GrandTotal)

	_, attached := f.snaps.Promos.Peek(ctx, sess.UserID())
	assert.False(t, attached, "promo is detached after the order")

	v, err := f.svc.Cart(ctx, sess, false)
	require.NoError(t, err)
	assert.True(t, v.Cart.IsEmpty(), "cart snapshot is refetched after the order")
}

func TestPlaceOrder_JournalFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.journal.err = errors.New("db down")

	placed, err := f.svc.PlaceOrder(context.Background(), session("500"), order.Delivery{PickupType: cart.PickupSite})
	require.NoError(t, err)
	assertDecimal(t, "100.00", placed.Breakdown.GrandTotal)
}

func TestPlaceOrder_InsufficientFunds(t *testing.T) {
	f := newFixture(t, mixedCart())

	_, err := f.svc.PlaceOrder(context.Background(), session("90.50"), order.Delivery{PickupType: cart.PickupSite})
	var funds *InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assertDecimal(t, "9.50", funds.Shortfall)
	assertDecimal(t, "100.00", funds.Required)

	_, orders := f.api.calls()
	assert.Zero(t, orders)
}

func TestPlaceOrder_InvalidDelivery(t *testing.T) {
	f := newFixture(t, mixedCart())

	tests := []struct {
		name string
		d    order.Delivery
		want error
	}{
		{"missing address", order.Delivery{PickupType: cart.PickupCourier, PhoneNumber: "01012345678"}, order.ErrAddressRequired},
		{"short phone", order.Delivery{PickupType: cart.PickupCourier, Address: "x", PhoneNumber: "0101"}, order.ErrInvalidPhone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(context.Background(), session("500"), tt.d)
			require.ErrorIs(t, err, tt.want)
		})
	}
	calls, orders := f.api.calls()
	assert.Zero(t, calls)
	assert.Zero(t, orders)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t, cart.Snapshot{})
	_, err := f.svc.PlaceOrder(context.Background(), session("500"), order.Delivery{PickupType: cart.PickupSite})
	require.ErrorIs(t, err, pricing.ErrEmptyCart)
}

func TestPlaceOrder_PromoInvalidatedBeforeSubmit(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.setCode(&promo.Code{ID: 4, Code: "TEN", DiscountPercent: d("10"), Active: true})
	ctx := context.Background()
	sess := session("500")

	_, err := f.svc.ApplyPromo(ctx, sess, "TEN", cart.PickupSite)
	require.NoError(t, err)
	f.api.setCode(&promo.Code{ID: 4, Code: "TEN", DiscountPercent: d("10"), Active: false})

	_, err = f.svc.PlaceOrder(ctx, sess, order.Delivery{PickupType: cart.PickupSite})
	require.ErrorIs(t, err, promo.ErrInvalidCode)

	_, orders := f.api.calls()
	assert.Zero(t, orders)
}

func TestPlaceOrder_StalePrice(t *testing.T) {
	f := newFixture(t, mixedCart())
	f.api.onOrder = func(f *fakeUpstream) error {
		f.cart.PurchaseItems[0].UnitPrice = d("30.00")
		f.onOrder = nil
		return errors.Wrap(order.ErrRejected, "price changed")
	}

	_, err := f.svc.PlaceOrder(context.Background(), session("500"), order.Delivery{PickupType: cart.PickupSite})
	require.ErrorIs(t, err, ErrStalePrice)
	require.ErrorIs(t, err, order.ErrRejected)

	var stale *StalePriceError
	require.ErrorAs(t, err, &stale)
	require.NotNil(t, stale.View)
	assertDecimal(t, "110.00", stale.View.Breakdown.GrandTotal)

	_, orders := f.api.calls()
	assert.Equal(t, 1, orders, "submission is not retried")
	assert.Empty(t, f.journal.orders)
}
