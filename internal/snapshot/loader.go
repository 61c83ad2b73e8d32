// Package snapshot loads per-user upstream snapshots through a Store.
package snapshot

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/bookstore-checkout/internal/store"
)

// DefaultMaxAge is how long a stored snapshot is served without refetching.
const DefaultMaxAge = 5 * time.Minute

// Codec converts snapshots to and from their stored form.
type Codec[T any] struct {
	Encode func(T) ([]byte, error)
	Decode func([]byte) (T, error)
}

// FetchFunc fetches the authoritative value.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Loader serves snapshots of one kind. Concurrent fetches for the same user
// are coalesced into one upstream call.
type Loader[T any] struct {
	kind   store.Kind
	store  store.Store
	codec  Codec[T]
	maxAge time.Duration
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	maxAge time.Duration
	now    func() time.Time
}

// WithMaxAge sets the freshness window.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxAge = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewLoader creates a Loader of kind backed by s.
func NewLoader[T any](kind store.Kind, s store.Store, codec Codec[T], opts ...Option) *Loader[T] {
	o := options{maxAge: DefaultMaxAge, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Loader[T]{
		kind:   kind,
		store:  s,
		codec:  codec,
		maxAge: o.maxAge,
		now:    o.now,
	}
}

func (l *Loader[T]) key(userID int64) store.Key {
	return store.Key{Kind: l.kind, UserID: userID}
}

// Get returns the stored snapshot when it is fresh, fetching otherwise.
func (l *Loader[T]) Get(ctx context.Context, userID int64, fetch FetchFunc[T]) (T, error) {
	if v, e, ok := l.stored(ctx, userID); ok && e.Age(l.now()) < l.maxAge {
		return v, nil
	}
	return l.Refresh(ctx, userID, fetch)
}

// Peek returns the stored snapshot regardless of age. The boolean is false
// when nothing is stored.
func (l *Loader[T]) Peek(ctx context.Context, userID int64) (T, bool) {
	v, _, ok := l.stored(ctx, userID)
	return v, ok
}

func (l *Loader[T]) stored(ctx context.Context, userID int64) (v T, _ store.Entry, _ bool) {
	key := l.key(userID)
	e, err := l.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zctx.From(ctx).Warn("Snapshot store read failed", zap.Stringer("key", key), zap.Error(err))
		}
		return v, e, false
	}
	v, err = l.codec.Decode(e.Data)
	if err != nil {
		zctx.From(ctx).Warn("Dropping undecodable snapshot", zap.Stringer("key", key), zap.Error(err))
		return v, e, false
	}
	return v, e, true
}

// Refresh fetches the snapshot unconditionally and stores it. When a newer
// snapshot was stored while the fetch was in flight, the newer one is
// returned.
func (l *Loader[T]) Refresh(ctx context.Context, userID int64, fetch FetchFunc[T]) (T, error) {
	key := l.key(userID)
	ch := l.group.DoChan(key.String(), func() (any, error) {
		// The shared fetch outlives any single waiter.
		fctx := context.WithoutCancel(ctx)
		started := l.now()
		v, err := fetch(fctx)
		if err != nil {
			return v, err
		}
		return l.save(fctx, userID, v, started)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// save stores v and returns the value to serve. A value the codec rejects
// is never served.
func (l *Loader[T]) save(ctx context.Context, userID int64, v T, fetchedAt time.Time) (T, error) {
	key := l.key(userID)
	data, err := l.codec.Encode(v)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(err, "encode %s snapshot", l.kind)
	}
	switch err := l.store.Put(ctx, key, store.Entry{Data: data, FetchedAt: fetchedAt}); {
	case errors.Is(err, store.ErrStale):
		if newer, _, ok := l.stored(ctx, userID); ok {
			return newer, nil
		}
	case err != nil:
		zctx.From(ctx).Warn("Snapshot store write failed", zap.Stringer("key", key), zap.Error(err))
	}
	return v, nil
}

// Put stores a locally patched snapshot. Call it only after the upstream
// confirmed the change the patch reflects.
func (l *Loader[T]) Put(ctx context.Context, userID int64, v T) error {
	data, err := l.codec.Encode(v)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	if err := l.store.Put(ctx, l.key(userID), store.Entry{Data: data, FetchedAt: l.now()}); err != nil {
		return errors.Wrapf(err, "put %s snapshot of user %s", l.kind, strconv.FormatInt(userID, 10))
	}
	return nil
}

// Invalidate drops the stored snapshot. Fetches that started earlier will
// not store their result, and later loads do not join them.
func (l *Loader[T]) Invalidate(ctx context.Context, userID int64) error {
	key := l.key(userID)
	l.group.Forget(key.String())
	if err := l.store.Delete(ctx, key, l.now()); err != nil {
		return errors.Wrapf(err, "invalidate %s snapshot", l.kind)
	}
	return nil
}
