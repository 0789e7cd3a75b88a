// Package paginate turns a page-fetching function into a lazy sequence
// that halts on a short or empty page, without loading the whole result
// set into memory up front. It offers a closure-returning Pages[T]
// iterator plus a channel-based Stream[T] for range-style consumption.
package paginate

import "context"

// FetchPage fetches one page of up to pageSize items, starting at
// pageNumber (1-indexed). It returns fewer than pageSize items on the
// last page.
type FetchPage[T any] func(ctx context.Context, pageSize, pageNumber int) ([]T, error)

// Next returns the next item, whether more remain, and any error. When
// ok is false and err is nil, the sequence is exhausted. Callers must
// stop calling Next after the first error or after ok is false.
type Next[T any] func() (T, bool, error)

// Pages converts fetchPage into a lazy sequence: it calls fetchPage with
// successive page numbers until a short page (len < pageSize) or an
// empty page is returned, or ctx is cancelled.
func Pages[T any](ctx context.Context, pageSize int, fetchPage FetchPage[T]) Next[T] {
	pageNumber := 0
	var buf []T
	done := false
	var pageErr error

	return func() (T, bool, error) {
		var zero T
		for len(buf) == 0 && !done {
			if pageErr != nil {
				return zero, false, pageErr
			}
			select {
			case <-ctx.Done():
				done = true
				return zero, false, ctx.Err()
			default:
			}

			pageNumber++
			page, err := fetchPage(ctx, pageSize, pageNumber)
			if err != nil {
				done = true
				pageErr = err
				return zero, false, err
			}
			buf = page
			if len(page) < pageSize {
				done = true // short or empty page: this is the last one
			}
		}
		if len(buf) == 0 {
			return zero, false, nil
		}
		item := buf[0]
		buf = buf[1:]
		return item, true, nil
	}
}

// Stream drains a Next[T] into a channel for range-style consumption.
// Both channels are closed when the sequence ends; a terminal error is
// delivered on errCh (buffered, at most one send) before it is closed, so
// a receive from errCh after draining items yields nil on a clean finish.
func Stream[T any](ctx context.Context, next Next[T]) (<-chan T, <-chan error) {
	items := make(chan T)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(items)
		for {
			item, ok, err := next()
			if err != nil {
				errCh <- err
				return
			}
			if !ok {
				return
			}
			select {
			case items <- item:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return items, errCh
}

// Collect drains a Next[T] sequence into a slice. Useful for callers
// that want the pagination-termination guarantees without streaming.
func Collect[T any](next Next[T]) ([]T, error) {
	var out []T
	for {
		item, ok, err := next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

// CursorOf extracts the next-page cursor from an item, typically its id.
type CursorOf[T any] func(item T) string

// FetchByCursor fetches up to pageSize items starting after cursor (the
// empty string requests the first page).
type FetchByCursor[T any] func(ctx context.Context, pageSize int, cursor string) ([]T, error)

// Cursor converts a cursor-paginated endpoint into a lazy sequence. The
// last item's id on each page becomes the next page's cursor, and a
// short or empty page stops iteration, the same termination rule as
// Pages.
func Cursor[T any](ctx context.Context, pageSize int, fetch FetchByCursor[T], cursorOf CursorOf[T]) Next[T] {
	cursor := ""
	var buf []T
	done := false
	var pageErr error

	return func() (T, bool, error) {
		var zero T
		for len(buf) == 0 && !done {
			if pageErr != nil {
				return zero, false, pageErr
			}
			select {
			case <-ctx.Done():
				done = true
				return zero, false, ctx.Err()
			default:
			}

			page, err := fetch(ctx, pageSize, cursor)
			if err != nil {
				done = true
				pageErr = err
				return zero, false, err
			}
			buf = page
			if len(page) < pageSize {
				done = true
			} else {
				cursor = cursorOf(page[len(page)-1])
			}
		}
		if len(buf) == 0 {
			return zero, false, nil
		}
		item := buf[0]
		buf = buf[1:]
		return item, true, nil
	}
}
