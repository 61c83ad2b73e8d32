// Package store keeps per-user snapshots keyed by (kind, user id).
//
// Entries are replaced wholesale. Every write carries the instant its data
// was fetched at, and a write older than what is stored is discarded, so a
// slow fetch never overwrites a newer one. Deletions leave a tombstone with
// the same rule.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned by Get for a missing or deleted entry.
	ErrNotFound = errors.New("snapshot not found")
	// ErrStale is returned by Put when a newer entry or tombstone exists.
	ErrStale = errors.New("snapshot is older than stored")
)

// Kind is the entity type of a snapshot.
type Kind string

// Snapshot kinds.
const (
	KindCart      Kind = "cart"
	KindPromo     Kind = "promo"
	KindBorrows   Kind = "borrows"
	KindSelection Kind = "selection"
)

// Key scopes a snapshot to a user.
type Key struct {
	Kind   Kind
	UserID int64
}

func (k Key) String() string {
	return "bookstore:" + string(k.Kind) + ":" + strconv.FormatInt(k.UserID, 10)
}

// Entry is a stored snapshot.
type Entry struct {
	Data []byte
	// FetchedAt is when the fetch producing Data started.
	FetchedAt time.Time
}

// Age is how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// Store is a snapshot store. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	// Put stores e unless a newer entry or tombstone exists, in which case
	// it returns ErrStale.
	Put(ctx context.Context, key Key, e Entry) error
	// Delete removes the entry and rejects later Puts fetched before at.
	Delete(ctx context.Context, key Key, at time.Time) error
	Ping(ctx context.Context) error
}

// DefaultRetention bounds how long entries and tombstones are kept.
const DefaultRetention = 24 * time.Hour
