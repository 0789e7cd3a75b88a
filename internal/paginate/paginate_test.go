package paginate

import (
	"context"
	"errors"
	"testing"
)

func fixedPages(sizes ...int) FetchPage[int] {
	counter := 0
	return func(ctx context.Context, pageSize, pageNumber int) ([]int, error) {
		if pageNumber > len(sizes) {
			return nil, nil
		}
		n := sizes[pageNumber-1]
		page := make([]int, n)
		for i := range page {
			counter++
			page[i] = counter
		}
		return page, nil
	}
}

func TestPages_TerminatesOnShortPage(t *testing.T) {
	next := Pages[int](context.Background(), 50, fixedPages(50, 50, 17))
	items, err := Collect(next)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 117 {
		t.Fatalf("want 117 items per pagination law, got %d", len(items))
	}
}

func TestPages_TerminatesOnEmptyPage(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, pageSize, pageNumber int) ([]int, error) {
		calls++
		if pageNumber == 1 {
			return []int{1, 2, 3}, nil
		}
		return nil, nil
	}
	next := Pages[int](context.Background(), 10, fetch)
	items, err := Collect(next)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
}

func TestPages_CountsExactFetchCalls(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, pageSize, pageNumber int) ([]int, error) {
		calls++
		switch pageNumber {
		case 1, 2:
			page := make([]int, pageSize)
			return page, nil
		case 3:
			return make([]int, 17), nil
		}
		t.Fatalf("unexpected extra fetch for page %d", pageNumber)
		return nil, nil
	}
	next := Pages[int](context.Background(), 50, fetch)
	if _, err := Collect(next); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("want exactly 3 page fetches, got %d", calls)
	}
}

func TestPages_PropagatesFetchError(t *testing.T) {
	wantErr := errors.New("boom")
	fetch := func(ctx context.Context, pageSize, pageNumber int) ([]int, error) {
		return nil, wantErr
	}
	next := Pages[int](context.Background(), 10, fetch)
	_, _, err := next()
	if !errors.Is(err, wantErr) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestPages_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetch := func(ctx context.Context, pageSize, pageNumber int) ([]int, error) {
		t.Fatal("fetch should not be called after cancellation")
		return nil, nil
	}
	next := Pages[int](ctx, 10, fetch)
	_, ok, err := next()
	if ok || err == nil {
		t.Fatalf("want immediate cancellation, got ok=%v err=%v", ok, err)
	}
}

func TestStream_YieldsItemsInOrder(t *testing.T) {
	next := Pages[int](context.Background(), 50, fixedPages(50, 17))
	items, errCh := Stream(context.Background(), next)

	var got []int
	for v := range items {
		got = append(got, v)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if len(got) != 67 {
		t.Fatalf("want 67 items, got %d", len(got))
	}
	for i, v := range got {
		if v != i+1 {
			t.Fatalf("out of order at %d: %d", i, v)
		}
	}
}

type cursorItem struct{ ID string }

func TestCursor_UsesLastItemIDAsNextCursor(t *testing.T) {
	pages := [][]cursorItem{
		{{ID: "a"}, {ID: "b"}},
		{{ID: "c"}, {ID: "d"}},
		{{ID: "e"}},
	}
	var gotCursors []string
	fetch := func(ctx context.Context, pageSize int, cursor string) ([]cursorItem, error) {
		gotCursors = append(gotCursors, cursor)
		idx := len(gotCursors) - 1
		if idx >= len(pages) {
			return nil, nil
		}
		return pages[idx], nil
	}
	next := Cursor[cursorItem](context.Background(), 2, fetch, func(i cursorItem) string { return i.ID })
	items, err := Collect(next)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 5 {
		t.Fatalf("want 5 items, got %d", len(items))
	}
	if gotCursors[0] != "" || gotCursors[1] != "b" || gotCursors[2] != "d" {
		t.Fatalf("unexpected cursor progression: %v", gotCursors)
	}
}
