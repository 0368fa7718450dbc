// Package pager provides pull-based iteration over token-paginated APIs.
//
// A Pager fetches one page at a time, hands out its items through Next and
// only asks for the following page once the current one is drained. The
// fetch loop has a do-while shape: the first page is always requested and
// iteration ends only when a page comes back without a continuation token.
// The context passed to Next is checked before every page request, so a
// caller can cancel between pages.
package pager

import (
	"context"
)

// Iterator is a lazy, finite sequence of items.
//
// Next returns the next item and true, or the zero value and false once the
// sequence is exhausted or has failed; Err reports the failure, if any.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, bool)
	Err() error
}

// FetchFunc requests one page. token is empty for the first page. A
// non-empty next token means another page is available.
type FetchFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// Pager is an Iterator over a token-paginated API.
type Pager[T any] struct {
	fetch FetchFunc[T]

	buf     []T
	token   string
	started bool
	done    bool
	pages   int
	err     error
}

var _ Iterator[int] = (*Pager[int])(nil)

// New creates a Pager. No request is made until the first call to Next.
func New[T any](fetch FetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// Next implements Iterator.
func (p *Pager[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for len(p.buf) == 0 {
		if p.done || p.err != nil {
			return zero, false
		}
		if p.started && p.token == "" {
			p.done = true
			return zero, false
		}
		if err := ctx.Err(); err != nil {
			p.err = err
			return zero, false
		}

		items, next, err := p.fetch(ctx, p.token)
		p.started = true
		if err != nil {
			p.err = err
			return zero, false
		}
		p.pages++
		p.buf = items
		p.token = next
	}

	item := p.buf[0]
	p.buf = p.buf[1:]
	return item, true
}

// Err implements Iterator.
func (p *Pager[T]) Err() error {
	return p.err
}

// Pages returns the number of pages fetched so far.
func (p *Pager[T]) Pages() int {
	return p.pages
}

// Collect drains it into a slice. On failure the items read so far are
// discarded and the error is returned.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	var items []T
	for {
		item, ok := it.Next(ctx)
		if !ok {
			break
		}
		items = append(items, item)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type concat[T any] struct {
	its []Iterator[T]
	err error
}

// Concat chains iterators. Each one is drained before the next is touched,
// and iteration stops at the first failure.
func Concat[T any](its ...Iterator[T]) Iterator[T] {
	return &concat[T]{its: its}
}

func (c *concat[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for len(c.its) > 0 && c.err == nil {
		if item, ok := c.its[0].Next(ctx); ok {
			return item, true
		}
		if err := c.its[0].Err(); err != nil {
			c.err = err
			return zero, false
		}
		c.its = c.its[1:]
	}
	return zero, false
}

func (c *concat[T]) Err() error {
	return c.err
}

// Empty returns an iterator without items.
func Empty[T any]() Iterator[T] {
	return &concat[T]{}
}

type failed[T any] struct {
	err error
}

// Failed returns an iterator that yields nothing and reports err.
func Failed[T any](err error) Iterator[T] {
	return failed[T]{err: err}
}

func (f failed[T]) Next(context.Context) (T, bool) {
	var zero T
	return zero, false
}

func (f failed[T]) Err() error {
	return f.err
}
