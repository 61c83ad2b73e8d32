package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore-checkout/internal/bookapi"
	"github.com/xenking/bookstore-checkout/internal/checkout"
	"github.com/xenking/bookstore-checkout/internal/returns"
	"github.com/xenking/bookstore-checkout/internal/snapshot"
	"github.com/xenking/bookstore-checkout/internal/store"
)

// Purchase 2 x 25, borrow 2 weeks x 10 with a 30 deposit, delivery 15.
const upstreamCart = `{
  "purchase_items": [{"id": 1, "book_details_id": 10, "quantity": 2, "book_price": "25.00",
    "book": {"id": 1, "title": "Dune"}}],
  "borrow_items": [{"id": 2, "book_details_id": 20, "borrowing_weeks": 2, "borrow_fees_per_week": "10.00",
    "deposit_fees": "30.00", "delay_fees_per_day": "2.00", "book": {"id": 2, "title": "Emma"}}],
  "delivery_fees": "15.00",
  "remaining_borrow_books_count": 2
}`

const upstreamBorrows = `[
  {"book_details_id": 3, "borrowing_weeks": 2, "expected_return_date": "2099-01-01T00:00:00",
   "deposit_fees": "40.00", "borrow_fees": "20.00", "delay_fees_per_day": "5.00", "book": {"id": 3, "title": "Ulysses"}},
  {"book_details_id": 4, "borrowing_weeks": 1, "expected_return_date": "2099-01-01T00:00:00",
   "deposit_fees": "10.00", "borrow_fees": "5.00", "delay_fees_per_day": "1.00", "book": {"id": 4, "title": "Middlemarch"}}
]`

type upstream struct {
	mu sync.Mutex

	wallet      string
	cart        string
	cartStatus  int
	orderStatus int
	orderBody   string

	orderCalls  int
	returnCalls int
	lastReturn  string
}

func (u *upstream) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
			return
		}
		u.mu.Lock()
		defer u.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":7,"email":"reader@example.com","first_name":"Ada","wallet":"`+u.wallet+`","role":"CLIENT"}`)
	})
	mux.HandleFunc("GET /cart", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.cartStatus != 0 {
			w.WriteHeader(u.cartStatus)
			return
		}
		_, _ = io.WriteString(w, u.cart)
	})
	mux.HandleFunc("POST /promo-codes/active", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"TEN"`) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Promo code not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":5,"code":"TEN","discount_perc":"10.00","is_active":true}`)
	})
	mux.HandleFunc("POST /order/", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.orderCalls++
		if u.orderStatus != 0 {
			w.WriteHeader(u.orderStatus)
		}
		_, _ = io.WriteString(w, u.orderBody)
	})
	mux.HandleFunc("GET /return-order/client-borrows", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, upstreamBorrows)
	})
	mux.HandleFunc("POST /return-order", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		defer u.mu.Unlock()
		u.returnCalls++
		u.lastReturn = string(body)
		_, _ = io.WriteString(w, `{"id":41,"message":"Return order created"}`)
	})
	return mux
}

func (u *upstream) set(fn func(u *upstream)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fn(u)
}

func (u *upstream) orders() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.orderCalls
}

func (u *upstream) returned() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastReturn
}

type testEnv struct {
	up  *upstream
	srv *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	up := &upstream{
		wallet:    "500.00",
		cart:      upstreamCart,
		orderBody: `{"message":"Order created successfully","order_id":99}`,
	}
	upSrv := httptest.NewServer(up.routes())
	t.Cleanup(upSrv.Close)

	api, err := bookapi.New(upSrv.URL, bookapi.Options{
		HTTPClient:   upSrv.Client(),
		ReadAttempts: 2,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	snaps := snapshot.NewSet(store.NewMemory(store.DefaultRetention))
	h := New(
		checkout.NewService(api, snaps, nil, nil),
		returns.NewService(api, snaps, nil),
	)
	r := chi.NewRouter()
	h.Mount(r, api)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{up: up, srv: srv}
}

type response struct {
	status int
	body   []byte
}

func (e *testEnv) do(t *testing.T, method, path, body string) response {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer good")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: data}
}

// field returns the string value at the dotted path, or "" if absent.
func field(t *testing.T, data []byte, path string) string {
	t.Helper()

	keys := strings.Split(path, ".")
	var found string
	var walk func(d *jx.Decoder, keys []string) error
	walk = func(d *jx.Decoder, keys []string) error {
		if len(keys) == 0 {
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				found = s
				return err
			default:
				raw, err := d.Raw()
				found = raw.String()
				return err
			}
		}
		if d.Next() != jx.Object {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != keys[0] {
				return d.Skip()
			}
			return walk(d, keys[1:])
		})
	}
	require.NoError(t, walk(jx.DecodeBytes(data), keys))
	return found
}

func TestAPI_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.srv.Client().Get(env.srv.URL + "/api/cart")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", field(t, data, "code"))

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/cart", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer expired")
	resp2, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAPI_Me(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	assert.Equal(t, "7", field(t, res.body, "id"))
	assert.Equal(t, "500.00", field(t, res.body, "wallet"))
}

func TestAPI_Cart(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	assert.Equal(t, "50.00", field(t, res.body, "subtotals.purchase"))
	assert.Equal(t, "20.00", field(t, res.body, "subtotals.borrow"))
	assert.Equal(t, "30.00", field(t, res.body, "subtotals.deposit"))
	assert.Equal(t, "null", field(t, res.body, "promo"))
}

func TestAPI_CartErrors(t *testing.T) {
	env := newTestEnv(t)

	for _, tt := range []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "bad id", method: http.MethodDelete, path: "/api/cart/abc", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "bad json", method: http.MethodPost, path: "/api/cart", body: `{"book_details_id":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing book", method: http.MethodPost, path: "/api/cart", body: `{"quantity":1}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "zero quantity", method: http.MethodPost, path: "/api/cart", body: `{"book_details_id":10,"quantity":0}`, status: http.StatusUnprocessableEntity, code: "invalid_quantity"},
		{name: "weeks out of range", method: http.MethodPost, path: "/api/cart", body: `{"book_details_id":10,"borrowing_weeks":9}`, status: http.StatusUnprocessableEntity, code: "invalid_borrowing_weeks"},
		{name: "empty update", method: http.MethodPatch, path: "/api/cart", body: `{"cart_item_id":1}`, status: http.StatusBadRequest, code: "invalid_request"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, res.status, string(res.body))
			assert.Equal(t, tt.code, field(t, res.body, "code"))
		})
	}
}

func TestAPI_CheckoutTotals(t *testing.T) {
	env := newTestEnv(t)

	for _, tt := range []struct {
		pickup string
		want   string
	}{
		{pickup: "SITE", want: "100.00"},
		{pickup: "COURIER", want: "115.00"},
	} {
		t.Run(tt.pickup, func(t *testing.T) {
			res := env.do(t, http.MethodGet, "/api/checkout?pickup_type="+tt.pickup, "")
			require.Equal(t, http.StatusOK, res.status, string(res.body))
			assert.Equal(t, tt.want, field(t, res.body, "breakdown.grand_total"))
			assert.Equal(t, tt.pickup, field(t, res.body, "pickup_type"))
			assert.Equal(t, "true", field(t, res.body, "affordable"))
		})
	}

	res := env.do(t, http.MethodGet, "/api/checkout?pickup_type=BOAT", "")
	assert.Equal(t, http.StatusBadRequest, res.status)
}

func TestAPI_Promo(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/api/checkout/promo", `{"code":"TEN","pickup_type":"COURIER"}`)
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	assert.Equal(t, "7.00", field(t, res.body, "breakdown.promo_discount"))
	assert.Equal(t, "108.00", field(t, res.body, "breakdown.grand_total"))
	assert.Equal(t, "TEN", field(t, res.body, "promo.code"))

	res = env.do(t, http.MethodGet, "/api/checkout", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "93.00", field(t, res.body, "breakdown.grand_total"))

	res = env.do(t, http.MethodPost, "/api/checkout/promo", `{"code":"NOPE"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "invalid_promo_code", field(t, res.body, "code"))

	res = env.do(t, http.MethodPost, "/api/checkout/promo", `{"code":""}`)
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = env.do(t, http.MethodDelete, "/api/checkout/promo", "")
	assert.Equal(t, http.StatusNoContent, res.status)

	res = env.do(t, http.MethodGet, "/api/checkout", "")
	assert.Equal(t, "100.00", field(t, res.body, "breakdown.grand_total"))
}

func TestAPI_PlaceOrder(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"COURIER","address":"  5 Main St ","phone_number":"01012345678"}`)
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	assert.Equal(t, "99", field(t, res.body, "order_id"))
	assert.Equal(t, "115.00", field(t, res.body, "breakdown.grand_total"))
	assert.Equal(t, 1, env.up.orders())
}

func TestAPI_PlaceOrderErrors(t *testing.T) {
	t.Run("address required", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"COURIER","phone_number":"01012345678"}`)
		assert.Equal(t, http.StatusBadRequest, res.status)
		assert.Equal(t, "invalid_delivery", field(t, res.body, "code"))
		assert.Zero(t, env.up.orders())
	})
	t.Run("unknown pickup", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"DRONE"}`)
		assert.Equal(t, http.StatusBadRequest, res.status)
		assert.Equal(t, "invalid_request", field(t, res.body, "code"))
	})
	t.Run("top up required", func(t *testing.T) {
		env := newTestEnv(t)
		env.up.set(func(u *upstream) { u.wallet = "60.00" })
		res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"SITE"}`)
		assert.Equal(t, http.StatusPaymentRequired, res.status)
		assert.Equal(t, "top_up_required", field(t, res.body, "code"))
		assert.Equal(t, "40.00", field(t, res.body, "shortfall"))
		assert.Zero(t, env.up.orders())
	})
	t.Run("empty cart", func(t *testing.T) {
		env := newTestEnv(t)
		env.up.set(func(u *upstream) { u.cart = `{"purchase_items":[],"borrow_items":[],"delivery_fees":"15.00"}` })
		res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"SITE"}`)
		assert.Equal(t, http.StatusConflict, res.status)
		assert.Equal(t, "cart_empty", field(t, res.body, "code"))
	})
	t.Run("stale price", func(t *testing.T) {
		env := newTestEnv(t)
		env.up.set(func(u *upstream) {
			u.orderStatus = http.StatusBadRequest
			u.orderBody = `{"detail":"Price changed"}`
		})
		res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"SITE"}`)
		assert.Equal(t, http.StatusConflict, res.status)
		assert.Equal(t, "stale_price", field(t, res.body, "code"))
		assert.Equal(t, "100.00", field(t, res.body, "checkout.breakdown.grand_total"))
		assert.Equal(t, 1, env.up.orders(), "order submission is never retried")
	})
	t.Run("upstream failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.up.set(func(u *upstream) { u.orderStatus = http.StatusInternalServerError })
		res := env.do(t, http.MethodPost, "/api/checkout/order", `{"pickup_type":"SITE"}`)
		assert.Equal(t, http.StatusBadGateway, res.status)
		assert.Equal(t, "upstream_error", field(t, res.body, "code"))
		assert.Equal(t, 1, env.up.orders())
	})
}

func TestAPI_UpstreamPayload(t *testing.T) {
	env := newTestEnv(t)
	env.up.set(func(u *upstream) {
		u.cart = `{"purchase_items":[{"book_details_id":1,"quantity":1,"book_price":"abc"}],"delivery_fees":"0"}`
	})

	res := env.do(t, http.MethodGet, "/api/cart", "")
	assert.Equal(t, http.StatusBadGateway, res.status)
	assert.Equal(t, "bad_upstream_payload", field(t, res.body, "code"))

	env.up.set(func(u *upstream) { u.cart = "" })
	res = env.do(t, http.MethodGet, "/api/cart?refresh=true", "")
	assert.Equal(t, http.StatusBadGateway, res.status)
	assert.Equal(t, "bad_upstream_payload", field(t, res.body, "code"))

	env.up.set(func(u *upstream) { u.cartStatus = http.StatusServiceUnavailable })
	res = env.do(t, http.MethodGet, "/api/cart?refresh=true", "")
	assert.Equal(t, http.StatusBadGateway, res.status)
	assert.Equal(t, "upstream_error", field(t, res.body, "code"))
}

func TestAPI_Returns(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/borrows", "")
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	assert.Equal(t, "2", field(t, res.body, "summary.total_books"))
	assert.Equal(t, "0.00", field(t, res.body, "selection.net_refund"))

	res = env.do(t, http.MethodPost, "/api/return-order", `{"pickup_type":"SITE"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "no_books_selected", field(t, res.body, "code"))

	res = env.do(t, http.MethodPut, "/api/borrows/selection/99", "")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.Equal(t, "borrow_not_found", field(t, res.body, "code"))

	res = env.do(t, http.MethodPut, "/api/borrows/selection", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "50.00", field(t, res.body, "selection.net_refund"))

	res = env.do(t, http.MethodDelete, "/api/borrows/selection/4", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "40.00", field(t, res.body, "selection.net_refund"))
	assert.Equal(t, "refund", field(t, res.body, "selection.label"))

	res = env.do(t, http.MethodPost, "/api/return-order", `{"pickup_type":"SITE","address":"ignored"}`)
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	assert.Equal(t, "41", field(t, res.body, "return_order_id"))
	assert.Equal(t, "40.00", field(t, res.body, "net_refund"))
	assert.JSONEq(t, `{"pickup_type":"SITE","address":null,"phone_number":null,"borrowed_books_ids":[3]}`, env.up.returned())

	res = env.do(t, http.MethodDelete, "/api/borrows/selection", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "0.00", field(t, res.body, "selection.net_refund"))
}
