// Package ratelimit implements a hierarchical rate limiter over four
// independent scopes (Global, Trading, PublicData, ListOrders); every
// request acquires from all relevant scopes before proceeding. Trading,
// PublicData, and ListOrders are token buckets; Global is a dedicated
// sliding-minute counter since it resets once a minute rather than
// refilling continuously.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Scope identifies one of the four rate-limit scopes.
type Scope string

const (
	Global     Scope = "global"
	Trading    Scope = "trading"
	PublicData Scope = "public_data"
	ListOrders Scope = "list_orders"
)

// ScopeConfig carries the (limit, window) pair for one scope.
type ScopeConfig struct {
	Limit  int
	Window time.Duration
}

// DefaultScopeConfigs returns the bucket sizes used when a config file
// does not override a scope.
func DefaultScopeConfigs() map[Scope]ScopeConfig {
	return map[Scope]ScopeConfig{
		Global:     {Limit: 500, Window: time.Minute},
		Trading:    {Limit: 3, Window: time.Second},
		PublicData: {Limit: 1, Window: time.Second},
		ListOrders: {Limit: 10, Window: time.Second},
	}
}

// Hit describes a rejected non-blocking acquisition, or a utilization
// warning.
type Hit struct {
	Scope   Scope
	At      time.Time
	Warning bool // true when this Hit is the 80% utilization warning, not a rejection
}

// HitObserver receives Hit events for observability: a rejection, or a
// warning once a scope's utilization crosses 80%.
type HitObserver func(Hit)

// minuteCounter is a sliding-minute hard-cap counter for the Global scope.
// It resets its window on first use after the window has elapsed, which is
// sufficient for a per-minute cap rather than a continuously-sliding one.
type minuteCounter struct {
	mu         sync.Mutex
	limit      int
	windowSize time.Duration
	count      int
	windowEnd  time.Time
}

func newMinuteCounter(limit int, window time.Duration) *minuteCounter {
	return &minuteCounter{limit: limit, windowSize: window, windowEnd: time.Now().Add(window)}
}

func (c *minuteCounter) tryAcquire() (ok bool, utilization float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.After(c.windowEnd) {
		c.count = 0
		c.windowEnd = now.Add(c.windowSize)
	}
	if c.count >= c.limit {
		return false, float64(c.count) / float64(c.limit)
	}
	c.count++
	return true, float64(c.count) / float64(c.limit)
}

// Limiter is the hierarchical, multi-scope rate limiter. One Limiter is
// shared across every request a facade instance issues.
type Limiter struct {
	buckets  map[Scope]*rate.Limiter
	global   *minuteCounter
	mu       sync.Mutex // guards observer swap only
	observer HitObserver
}

// New constructs a Limiter from per-scope configs. Trading/PublicData/
// ListOrders are modeled as token buckets holding Limit tokens that refill
// continuously at Limit per Window; they are not reset to full at window
// boundaries. Global is modeled as a sliding-minute hard cap.
func New(cfgs map[Scope]ScopeConfig, observer HitObserver) *Limiter {
	l := &Limiter{buckets: make(map[Scope]*rate.Limiter), observer: observer}
	for scope, cfg := range cfgs {
		if scope == Global {
			l.global = newMinuteCounter(cfg.Limit, cfg.Window)
			continue
		}
		rps := float64(cfg.Limit) / cfg.Window.Seconds()
		l.buckets[scope] = rate.NewLimiter(rate.Limit(rps), cfg.Limit)
	}
	return l
}

func (l *Limiter) emit(h Hit) {
	l.mu.Lock()
	observer := l.observer
	l.mu.Unlock()
	if observer != nil {
		observer(h)
	}
}

// TryAcquire attempts a non-blocking acquisition from every scope in
// scopes, in order. On the first scope that rejects, it returns that
// scope's Hit; scopes already consumed earlier in this call are not
// refunded, matching token-bucket semantics — callers should order scopes
// cheapest-first (Global last) to minimize wasted tokens.
func (l *Limiter) TryAcquire(scopes ...Scope) (ok bool, hit Hit) {
	for _, scope := range scopes {
		if scope == Global {
			allowed, utilization := l.global.tryAcquire()
			if utilization >= 0.8 {
				l.emit(Hit{Scope: Global, At: time.Now(), Warning: true})
			}
			if !allowed {
				h := Hit{Scope: Global, At: time.Now()}
				l.emit(h)
				return false, h
			}
			continue
		}
		b, ok := l.buckets[scope]
		if !ok {
			continue
		}
		if !b.Allow() {
			h := Hit{Scope: scope, At: time.Now()}
			l.emit(h)
			return false, h
		}
	}
	return true, Hit{}
}

// Acquire blocks until every scope grants a token or ctx is cancelled.
// Global's sliding-minute cap is polled rather than awaited continuously,
// since x/time/rate has no native per-minute-reset primitive.
func (l *Limiter) Acquire(ctx context.Context, scopes ...Scope) error {
	for _, scope := range scopes {
		if scope == Global {
			if err := l.waitGlobal(ctx); err != nil {
				return err
			}
			continue
		}
		b, ok := l.buckets[scope]
		if !ok {
			continue
		}
		if err := b.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (l *Limiter) waitGlobal(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if allowed, utilization := l.global.tryAcquire(); allowed {
			if utilization >= 0.8 {
				l.emit(Hit{Scope: Global, At: time.Now(), Warning: true})
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release is a no-op for token-bucket/sliding-window scopes: tokens are
// never "held" past acquisition. It exists so callers that model
// acquire/release symmetrically (alongside a semaphore) have a uniform API.
func (l *Limiter) Release(scopes ...Scope) {}

// SetObserver replaces the Hit observer.
func (l *Limiter) SetObserver(observer HitObserver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = observer
}
