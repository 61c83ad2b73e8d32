package bookapi

import (
	"fmt"
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Detail is the upstream error message, when one was sent.
	Detail string
	// Kind is the domain error the status was classified as, if any.
	Kind error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("upstream %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap exposes Kind to errors.Is.
func (e *StatusError) Unwrap() error {
	return e.Kind
}

// Rejected reports a client-side status other than authentication failures.
func (e *StatusError) Rejected() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusUnauthorized && e.StatusCode != http.StatusForbidden
}

func newStatusError(req *http.Request, code int, body []byte) *StatusError {
	e := &StatusError{
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: code,
		Detail:     errorDetail(body),
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		e.Kind = account.ErrUnauthenticated
	}
	return e
}

// errorDetail extracts the "detail" member of an upstream error body. It is
// either a message or a list of validation errors, the latter kept raw.
func errorDetail(body []byte) string {
	var detail string
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return ""
	}
	_ = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "detail" {
			return d.Skip()
		}
		if d.Next() == jx.String {
			s, err := d.Str()
			detail = s
			return err
		}
		raw, err := d.Raw()
		detail = string(raw)
		return err
	})
	return detail
}

// TransportError is a failure to get any response from the upstream.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PayloadError is a 2xx response whose body could not be decoded.
type PayloadError struct {
	Method string
	Path   string
	Err    error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("decode upstream %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}
