package settlement

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Selection is the set of borrowed books picked for a return order, with a
// running refund total.
//
// Each entry records the net refund computed when the book was selected.
// Deselecting subtracts exactly that recorded value, so Total always equals
// the sum of the recorded refunds. Not safe for concurrent use.
type Selection struct {
	items map[int64]decimal.Decimal
	total decimal.Decimal
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{
		items: make(map[int64]decimal.Decimal),
		total: decimal.Zero,
	}
}

// Entry is a selected book with the refund recorded at selection time.
type Entry struct {
	BookDetailsID int64
	NetRefund     decimal.Decimal
}

// Restore rebuilds a selection from stored entries. Duplicate ids keep the
// first entry.
func Restore(entries []Entry) *Selection {
	sel := NewSelection()
	for _, e := range entries {
		sel.add(e.BookDetailsID, e.NetRefund)
	}
	return sel
}

func (sel *Selection) add(id int64, refund decimal.Decimal) bool {
	if _, ok := sel.items[id]; ok {
		return false
	}
	sel.items[id] = refund
	sel.total = sel.total.Add(refund)
	return true
}

// Select adds s. It reports false and changes nothing when the book is
// already selected.
func (sel *Selection) Select(s Settlement) bool {
	return sel.add(s.BookDetailsID, s.NetRefund)
}

// Deselect removes the book. It reports false when it was not selected.
func (sel *Selection) Deselect(id int64) bool {
	refund, ok := sel.items[id]
	if !ok {
		return false
	}
	delete(sel.items, id)
	sel.total = sel.total.Sub(refund)
	return true
}

// Toggle selects s when absent and deselects it otherwise. It reports
// whether the book is selected afterwards.
func (sel *Selection) Toggle(s Settlement) bool {
	if sel.Deselect(s.BookDetailsID) {
		return false
	}
	return sel.Select(s)
}

// SelectAll selects every settlement not selected yet.
func (sel *Selection) SelectAll(all []Settlement) {
	for _, s := range all {
		sel.Select(s)
	}
}

// Clear empties the selection.
func (sel *Selection) Clear() {
	clear(sel.items)
	sel.total = decimal.Zero
}

// Retain drops selected books whose id is not in ids, such as books already
// returned. It reports how many entries were dropped.
func (sel *Selection) Retain(ids []int64) int {
	dropped := 0
	for id := range sel.items {
		if !slices.Contains(ids, id) {
			sel.Deselect(id)
			dropped++
		}
	}
	return dropped
}

// Contains reports whether the book is selected.
func (sel *Selection) Contains(id int64) bool {
	_, ok := sel.items[id]
	return ok
}

// Len is the number of selected books.
func (sel *Selection) Len() int {
	return len(sel.items)
}

// Total is the running net refund of the selection. Negative means the
// borrower owes money overall.
func (sel *Selection) Total() decimal.Decimal {
	return sel.total
}

// IDs returns the selected book ids in ascending order.
func (sel *Selection) IDs() []int64 {
	ids := make([]int64, 0, len(sel.items))
	for id := range sel.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Entries returns the selection in ascending id order, suitable for Restore.
func (sel *Selection) Entries() []Entry {
	ids := sel.IDs()
	out := make([]Entry, len(ids))
	for i, id := range ids {
		out[i] = Entry{BookDetailsID: id, NetRefund: sel.items[id]}
	}
	return out
}
