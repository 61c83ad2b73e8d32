// Package bookapi is the client of the authoritative book store REST API.
//
// Reads are retried a bounded number of times on transport errors and 5xx
// responses. Mutations are sent exactly once: a failed submission is
// reported to the caller, who decides whether to try again.
package bookapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/pkg/httpmiddleware"
)

// Options configures a Client.
type Options struct {
	// HTTPClient overrides the instrumented default client. Timeout is
	// ignored when it is set.
	HTTPClient *http.Client
	// Timeout bounds a single attempt.
	Timeout time.Duration
	// ReadAttempts is the maximum number of attempts for GET requests.
	ReadAttempts int
	// RetryBackoff is the delay before the second attempt; it doubles after
	// each failed attempt.
	RetryBackoff time.Duration

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.ReadAttempts <= 0 {
		o.ReadAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 100 * time.Millisecond
	}
}

// Client talks to the upstream API on behalf of a signed-in user.
type Client struct {
	base         *url.URL
	http         *http.Client
	readAttempts int
	backoff      time.Duration
}

// New creates a Client for the API rooted at rawURL.
func New(rawURL string, opts Options) (*Client, error) {
	opts.setDefaults()

	base, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse upstream url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("upstream url %q must be absolute", rawURL)
	}

	hc := opts.HTTPClient
	if hc == nil {
		var otelOpts []otelhttp.Option
		if opts.TracerProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
		}
		if opts.MeterProvider != nil {
			otelOpts = append(otelOpts, otelhttp.WithMeterProvider(opts.MeterProvider))
		}
		hc = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelOpts...),
			Timeout:   opts.Timeout,
		}
	}

	return &Client{
		base:         base,
		http:         hc,
		readAttempts: opts.ReadAttempts,
		backoff:      opts.RetryBackoff,
	}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, cred account.Credentials, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), r)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred.Authorization != "" {
		req.Header.Set("Authorization", cred.Authorization)
	}
	if cred.Cookie != "" {
		req.Header.Set("Cookie", cred.Cookie)
	}
	if id := httpmiddleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpmiddleware.RequestIDHeader, id)
	}
	return req, nil
}

// decodeFunc consumes a successful response body.
type decodeFunc func(d *jx.Decoder) error

// read performs a GET with bounded retry.
func (c *Client) read(ctx context.Context, cred account.Credentials, path string, decode decodeFunc) error {
	lg := zctx.From(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.readAttempts; attempt++ {
		req, err := c.newRequest(ctx, cred, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		err = c.do(req, decode, true)
		if err == nil || !retryable(err) {
			return err
		}
		lastErr = err
		if attempt == c.readAttempts {
			break
		}

		wait := c.backoff << (attempt - 1)
		lg.Debug("Retrying upstream read",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return errors.Wrapf(lastErr, "after %d attempts", c.readAttempts)
}

// write performs a mutation exactly once. An empty acknowledgement is
// accepted: the mutation already happened.
func (c *Client) write(ctx context.Context, cred account.Credentials, method, path string, body []byte, decode decodeFunc) error {
	req, err := c.newRequest(ctx, cred, method, path, body)
	if err != nil {
		return err
	}
	return c.do(req, decode, false)
}

// errEmptyBody is reported for a successful read without a body.
var errEmptyBody = errors.New("empty body")

func (c *Client) do(req *http.Request, decode decodeFunc, requireBody bool) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: req.Method, Path: req.URL.Path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: req.Method, Path: req.URL.Path, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode >= 300 {
		return newStatusError(req, resp.StatusCode, data)
	}
	if decode == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if requireBody {
			return &PayloadError{Method: req.Method, Path: req.URL.Path, Err: errEmptyBody}
		}
		return nil
	}
	if err := decode(jx.DecodeBytes(data)); err != nil {
		return &PayloadError{Method: req.Method, Path: req.URL.Path, Err: err}
	}
	return nil
}

func retryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return !errors.Is(te.Err, context.Canceled)
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return false
}
