package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTTLCache_GetMissThenSetThenHit(t *testing.T) {
	c := NewTTLCache(10)
	defer c.Stop()

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set("k", []byte("v"), time.Minute)
	v, ok := c.Get("k")
	if !ok || string(v) != "v" {
		t.Fatalf("want hit v, got %q %v", v, ok)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("want 1 hit 1 miss, got %+v", stats)
	}
}

func TestTTLCache_ExpiresAfterTTL(t *testing.T) {
	c := NewTTLCache(10)
	defer c.Stop()

	c.Set("k", []byte("v"), 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to be expired")
	}
}

func TestTTLCache_EvictsLRUAtCapacity(t *testing.T) {
	c := NewTTLCache(2)
	defer c.Stop()

	c.Set("a", []byte("1"), time.Minute)
	c.Set("b", []byte("2"), time.Minute)
	c.Get("b") // touch b so a is the least recently used
	c.Set("c", []byte("3"), time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to have been evicted as LRU")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("expected b to survive eviction")
	}
}

func TestCoalescer_ConcurrentCallersShareOneFetch(t *testing.T) {
	var fetches int64
	coalescer := NewCoalescer(NewTTLCache(10))

	var wg sync.WaitGroup
	results := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := coalescer.Fetch(context.Background(), "shared", time.Minute, func(ctx context.Context) ([]byte, error) {
				atomic.AddInt64(&fetches, 1)
				time.Sleep(5 * time.Millisecond)
				return []byte("value"), nil
			})
			if err != nil {
				t.Error(err)
				return
			}
			results[idx] = string(v)
		}(i)
	}
	wg.Wait()

	if fetches > 2 {
		t.Fatalf("want coalesced fetch count close to 1, got %d", fetches)
	}
	for _, r := range results {
		if r != "value" {
			t.Fatalf("want every caller to observe the fetched value, got %q", r)
		}
	}
}

func TestCoalescer_PropagatesFetchError(t *testing.T) {
	coalescer := NewCoalescer(NewTTLCache(10))
	wantErr := errors.New("boom")

	_, err := coalescer.Fetch(context.Background(), "k", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("want wrapped boom, got %v", err)
	}

	if _, ok := coalescer.cache.Get("k"); ok {
		t.Fatal("a failed fetch must not populate the cache")
	}
}
