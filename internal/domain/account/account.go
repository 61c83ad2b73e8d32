// Package account describes the signed-in user as seen by the upstream API.
package account

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnauthenticated is returned when the upstream rejects the forwarded
// credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Role is the upstream user role.
type Role string

// Known roles.
const (
	RoleClient   Role = "CLIENT"
	RoleEmployee Role = "EMPLOYEE"
	RoleCourier  Role = "COURIER"
	RoleManager  Role = "MANAGER"
)

// Credentials are forwarded verbatim to the upstream API. The upstream
// authenticates either by bearer token or by session cookie.
type Credentials struct {
	Authorization string
	Cookie        string
}

// IsZero reports whether no credential is present.
func (c Credentials) IsZero() bool {
	return c.Authorization == "" && c.Cookie == ""
}

// Profile is the upstream /auth/me payload.
type Profile struct {
	ID          int64
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Wallet      decimal.Decimal
	Role        Role
}

// Session binds a profile to the credentials it was resolved with.
type Session struct {
	Profile     Profile
	Credentials Credentials
}

// UserID is the store scope of the session.
func (s Session) UserID() int64 {
	return s.Profile.ID
}

// Resolver resolves credentials to a profile.
type Resolver interface {
	Me(ctx context.Context, cred Credentials) (*Profile, error)
}

type sessionKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
