package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore-checkout/internal/bookapi"
	"github.com/xenking/bookstore-checkout/internal/domain/account"
)

// Authenticate resolves the forwarded credentials to a profile through the
// upstream /auth/me and stores the session in the request context. The
// frontend authenticates with a bearer token or with the session cookie;
// both are forwarded unchanged.
func Authenticate(resolver account.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := account.Credentials{
				Authorization: r.Header.Get("Authorization"),
				Cookie:        r.Header.Get("Cookie"),
			}
			if cred.IsZero() {
				writeError(w, r, errors.Wrap(account.ErrUnauthenticated, "no credentials"))
				return
			}

			profile, err := resolver.Me(r.Context(), cred)
			if err == nil && profile == nil {
				err = &bookapi.PayloadError{Method: http.MethodGet, Path: "/auth/me", Err: errors.New("no profile")}
			}
			if err != nil {
				writeError(w, r, errors.Wrap(err, "resolve session"))
				return
			}

			sess := account.Session{Profile: *profile, Credentials: cred}
			ctx := account.WithSession(r.Context(), sess)
			ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.Int64("user_id", sess.UserID())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// mustSession returns the session set by Authenticate.
func mustSession(r *http.Request) account.Session {
	sess, ok := account.FromContext(r.Context())
	if !ok {
		panic("handler: route mounted without Authenticate")
	}
	return sess
}
