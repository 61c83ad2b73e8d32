package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
)

type resolverFunc func(ctx context.Context, cred account.Credentials) (*account.Profile, error)

func (f resolverFunc) Me(ctx context.Context, cred account.Credentials) (*account.Profile, error) {
	return f(ctx, cred)
}

func TestAuthenticate_NoProfile(t *testing.T) {
	mw := Authenticate(resolverFunc(func(context.Context, account.Credentials) (*account.Profile, error) {
		return nil, nil
	}))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler must not run without a profile")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "bad_upstream_payload", field(t, rec.Body.Bytes(), "code"))
}
