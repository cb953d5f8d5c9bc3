package recordstore

import (
	"context"

	"github.com/roach88/rekey/internal/model"
)

// PageFunc fetches one page starting at cursor. An empty next cursor ends the
// sequence. The first call receives "".
type PageFunc func(ctx context.Context, cursor string) (page []model.Record, next string, err error)

// Iterator is a lazy, finite, non-restartable sequence of pages.
//
//	it := client.Select(ctx, q)
//	for it.Next(ctx) {
//	    for _, rec := range it.Page() { ... }
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	fetch  PageFunc
	cursor string
	page   []model.Record
	done   bool
	err    error
}

// NewIterator returns an iterator driven by fetch.
func NewIterator(fetch PageFunc) *Iterator {
	return &Iterator{fetch: fetch}
}

// ErrIterator returns an iterator that yields no pages and reports err.
func ErrIterator(err error) *Iterator {
	return &Iterator{done: true, err: err}
}

// Next advances to the next non-empty page. It returns false when the
// sequence is exhausted or an error occurred.
func (it *Iterator) Next(ctx context.Context) bool {
	for !it.done {
		if err := ctx.Err(); err != nil {
			it.err = err
			it.done = true
			break
		}

		page, next, err := it.fetch(ctx, it.cursor)
		if err != nil {
			it.err = err
			it.done = true
			break
		}
		it.cursor = next
		if next == "" {
			it.done = true
		}
		if len(page) > 0 {
			it.page = page
			return true
		}
	}
	it.page = nil
	return false
}

// Page returns the current page.
func (it *Iterator) Page() []model.Record {
	return it.page
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Collect drains the iterator into a single slice.
func Collect(ctx context.Context, it *Iterator) ([]model.Record, error) {
	var all []model.Record
	for it.Next(ctx) {
		all = append(all, it.Page()...)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return all, nil
}
