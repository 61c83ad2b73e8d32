// Package returns settles the user's current borrows and submits return
// orders for a selection of them.
package returns

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bookstore-checkout/internal/domain/account"
	"github.com/xenking/bookstore-checkout/internal/domain/money"
	"github.com/xenking/bookstore-checkout/internal/domain/order"
	"github.com/xenking/bookstore-checkout/internal/domain/settlement"
	"github.com/xenking/bookstore-checkout/internal/snapshot"
)

// ErrUnknownBook is returned when a selection targets a book that is not
// currently borrowed.
var ErrUnknownBook = errors.New("book is not currently borrowed")

// Upstream is the part of the store API the return flow talks to.
type Upstream interface {
	settlement.Source
	CreateReturnOrder(ctx context.Context, cred account.Credentials, req order.ReturnRequest) (*order.Created, error)
}

// Service implements the current-borrows page and return orders.
type Service struct {
	api        Upstream
	borrows    *snapshot.Loader[[]settlement.BorrowedBook]
	selections *snapshot.Loader[*settlement.Selection]
	journal    order.Journal
	now        func() time.Time

	// locks serializes selection updates of one user within this process.
	locks sync.Map // int64 -> *sync.Mutex
}

// NewService creates a returns Service. A nil journal discards quotes.
func NewService(api Upstream, snaps *snapshot.Set, journal order.Journal) *Service {
	if journal == nil {
		journal = order.NopJournal{}
	}
	return &Service{
		api:        api,
		borrows:    snaps.Borrows,
		selections: snaps.Selections,
		journal:    journal,
		now:        time.Now,
	}
}

// View is the current-borrows page. Settlements are evaluated at
// ComputedAt and never cached.
type View struct {
	Books       []settlement.BorrowedBook
	Settlements []settlement.Settlement
	Summary     settlement.Summary
	Selection   *settlement.Selection
	ComputedAt  time.Time
}

// Settlement returns the settlement of the given borrow record.
func (v *View) Settlement(bookDetailsID int64) (settlement.Settlement, bool) {
	for _, s := range v.Settlements {
		if s.BookDetailsID == bookDetailsID {
			return s, true
		}
	}
	return settlement.Settlement{}, false
}

// Submitted is an accepted return order.
type Submitted struct {
	ReturnOrderID int64
	Message       string
	Books         int
	NetRefund     decimal.Decimal
}

func (s *Service) lock(userID int64) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) fetchBorrows(sess account.Session) snapshot.FetchFunc[[]settlement.BorrowedBook] {
	return func(ctx context.Context) ([]settlement.BorrowedBook, error) {
		return s.api.ClientBorrows(ctx, sess.Credentials)
	}
}

// load builds the view. Selected books that are no longer borrowed are
// dropped from the view's selection; only callers holding the user lock
// store it.
func (s *Service) load(ctx context.Context, sess account.Session, refresh bool) (*View, error) {
	var (
		books []settlement.BorrowedBook
		err   error
	)
	if refresh {
		books, err = s.borrows.Refresh(ctx, sess.UserID(), s.fetchBorrows(sess))
	} else {
		books, err = s.borrows.Get(ctx, sess.UserID(), s.fetchBorrows(sess))
	}
	if err != nil {
		return nil, errors.Wrap(err, "load borrows")
	}

	sel, ok := s.selections.Peek(ctx, sess.UserID())
	if !ok || sel == nil {
		sel = settlement.NewSelection()
	}
	ids := make([]int64, len(books))
	for i, b := range books {
		ids[i] = b.BookDetailsID
	}
	if dropped := sel.Retain(ids); dropped > 0 {
		zctx.From(ctx).Debug("Dropped returned books from selection", zap.Int("count", dropped))
	}

	now := s.now()
	return &View{
		Books:       books,
		Settlements: settlement.ComputeAll(books, now),
		Summary:     settlement.Summarize(books, now),
		Selection:   sel,
		ComputedAt:  now,
	}, nil
}

// Borrows returns the current-borrows page. Refresh bypasses the freshness
// window. The stored selection is not written.
func (s *Service) Borrows(ctx context.Context, sess account.Session, refresh bool) (*View, error) {
	return s.load(ctx, sess, refresh)
}

// update applies fn to the selection and stores the result.
func (s *Service) update(ctx context.Context, sess account.Session, fn func(v *View) error) (*View, error) {
	defer s.lock(sess.UserID())()

	v, err := s.load(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	if err := fn(v); err != nil {
		return nil, err
	}
	if err := s.selections.Put(ctx, sess.UserID(), v.Selection); err != nil {
		return nil, errors.Wrap(err, "store selection")
	}
	return v, nil
}

// Select adds a borrowed book to the return selection with its net refund
// evaluated now. Selecting twice keeps the first recorded refund.
func (s *Service) Select(ctx context.Context, sess account.Session, bookDetailsID int64) (*View, error) {
	return s.update(ctx, sess, func(v *View) error {
		st, ok := v.Settlement(bookDetailsID)
		if !ok {
			return errors.Wrapf(ErrUnknownBook, "book %d", bookDetailsID)
		}
		v.Selection.Select(st)
		return nil
	})
}

// Deselect removes a book from the selection, subtracting the refund
// recorded when it was selected.
func (s *Service) Deselect(ctx context.Context, sess account.Session, bookDetailsID int64) (*View, error) {
	return s.update(ctx, sess, func(v *View) error {
		v.Selection.Deselect(bookDetailsID)
		return nil
	})
}

// SelectAll selects every borrowed book not selected yet.
func (s *Service) SelectAll(ctx context.Context, sess account.Session) (*View, error) {
	return s.update(ctx, sess, func(v *View) error {
		v.Selection.SelectAll(v.Settlements)
		return nil
	})
}

// Clear empties the selection.
func (s *Service) Clear(ctx context.Context, sess account.Session) (*View, error) {
	return s.update(ctx, sess, func(v *View) error {
		v.Selection.Clear()
		return nil
	})
}

// Submit sends a return order for the selected books. The submission is
// attempted once.
func (s *Service) Submit(ctx context.Context, sess account.Session, d order.Delivery) (*Submitted, error) {
	lg := zctx.From(ctx)

	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	defer s.lock(sess.UserID())()

	v, err := s.load(ctx, sess, true)
	if err != nil {
		return nil, err
	}
	if v.Selection.Len() == 0 {
		return nil, order.ErrNoBooks
	}

	req := order.ReturnRequest{Delivery: d, BorrowedBookIDs: v.Selection.IDs()}
	created, err := s.api.CreateReturnOrder(ctx, sess.Credentials, req)
	if err != nil {
		if errors.Is(err, order.ErrRejected) {
			if err := s.borrows.Invalidate(ctx, sess.UserID()); err != nil {
				lg.Warn("Borrows invalidation failed", zap.Error(err))
			}
		}
		return nil, errors.Wrap(err, "submit return order")
	}

	refund := v.Selection.Total()
	lg.Info("Return order placed",
		zap.Int64("return_order_id", created.ID),
		zap.Int("books", len(req.BorrowedBookIDs)),
		zap.String("net_refund", money.Format(refund)),
	)

	if err := s.borrows.Invalidate(ctx, sess.UserID()); err != nil {
		lg.Warn("Borrows invalidation failed", zap.Error(err))
	}
	if err := s.selections.Invalidate(ctx, sess.UserID()); err != nil {
		lg.Warn("Selection reset failed", zap.Error(err))
	}
	if err := s.journal.RecordReturn(ctx, &order.ReturnQuote{
		UserID:          sess.UserID(),
		UpstreamOrderID: created.ID,
		PickupType:      d.PickupType,
		BorrowedBookIDs: req.BorrowedBookIDs,
		NetRefund:       refund,
	}); err != nil {
		lg.Warn("Return quote journal write failed", zap.Int64("return_order_id", created.ID), zap.Error(err))
	}

	return &Submitted{
		ReturnOrderID: created.ID,
		Message:       created.Message,
		Books:         len(req.BorrowedBookIDs),
		NetRefund:     refund,
	}, nil
}
