// Package retry implements the HTTP middleware stack's retry layer:
// exponential backoff with jitter, configurable retryable conditions, and
// an optional honoring of a server-supplied Retry-After.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"xchclient/internal/xerrors"
)

// Config parameterizes the retry layer.
type Config struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	BackoffMultiplier  float64
	MaxDelay           time.Duration
	JitterMax          time.Duration
	RespectRetryAfter  bool
	RetryNetworkErrors bool
	RetryTimeouts      bool
	RetryStatuses      map[int]bool
}

// DefaultConfig returns the retry layer's default tuning and retryable
// status set.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        3,
		BaseDelay:          time.Second,
		BackoffMultiplier:  2,
		MaxDelay:           30 * time.Second,
		JitterMax:          250 * time.Millisecond,
		RespectRetryAfter:  true,
		RetryNetworkErrors: true,
		RetryTimeouts:      true,
		RetryStatuses: map[int]bool{
			http.StatusRequestTimeout:      true,
			http.StatusTooManyRequests:     true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:          true,
			http.StatusServiceUnavailable:  true,
			http.StatusGatewayTimeout:      true,
		},
	}
}

// Jitterer abstracts the random jitter source so tests can make it
// deterministic: a jitterMax of 0 gives an exact sleep sequence.
type Jitterer func(max time.Duration) time.Duration

func defaultJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

// Delay computes the backoff delay for attempt n (1-indexed):
// min(maxDelay, baseDelay*multiplier^(n-1)) + U(0, jitterMax).
func Delay(cfg Config, attempt int, jitter Jitterer) time.Duration {
	if jitter == nil {
		jitter = defaultJitter
	}
	d := float64(cfg.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= cfg.BackoffMultiplier
	}
	base := time.Duration(d)
	if base > cfg.MaxDelay {
		base = cfg.MaxDelay
	}
	return base + jitter(cfg.JitterMax)
}

// ShouldRetry decides whether an attempt outcome is retryable: network
// errors, client-deadline timeouts, and HTTP {408,429,500,502,503,504}
// are retryable; everything else (other 4xx, caller cancellation) is not.
func ShouldRetry(cfg Config, err error, statusCode int) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		if statusCode != 0 {
			// A response arrived, so its status decides, not the error.
			return cfg.RetryStatuses[statusCode]
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				return cfg.RetryTimeouts
			}
			return cfg.RetryNetworkErrors
		}
		return cfg.RetryNetworkErrors
	}
	if statusCode == 0 {
		return false
	}
	return cfg.RetryStatuses[statusCode]
}

// RetryAfter parses a Retry-After header value as a duration, supporting
// both the delta-seconds and HTTP-date forms.
func RetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// NextDelay computes the delay to sleep before attempt (attempt+1),
// factoring in a Retry-After header that overrides the computed delay
// when it is larger.
func NextDelay(cfg Config, attempt int, retryAfterHeader string, jitter Jitterer) time.Duration {
	computed := Delay(cfg, attempt, jitter)
	if !cfg.RespectRetryAfter {
		return computed
	}
	if ra, ok := RetryAfter(retryAfterHeader); ok && ra > computed {
		return ra
	}
	return computed
}

// Do executes fn up to cfg.MaxAttempts times, sleeping between attempts
// per NextDelay, stopping early on ctx cancellation or a non-retryable
// outcome. fn must return the HTTP status it observed (0 if none) and an
// error; Do returns the last error/status observed.
func Do(ctx context.Context, cfg Config, sleep func(context.Context, time.Duration) error, jitter Jitterer, fn func(ctx context.Context, attempt int) (statusCode int, retryAfterHeader string, err error)) (int, error) {
	var lastErr error
	var lastStatus int

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		status, retryAfter, err := fn(ctx, attempt)
		lastErr, lastStatus = err, status

		if err == nil && !cfg.RetryStatuses[status] {
			return status, nil
		}
		if ctx.Err() != nil {
			return status, xerrors.Cancelled("retry", ctx.Err())
		}
		if !ShouldRetry(cfg, err, status) {
			return status, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		delay := NextDelay(cfg, attempt, retryAfter, jitter)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return status, xerrors.Cancelled("retry", sleepErr)
		}
	}
	return lastStatus, lastErr
}

// Sleep is the production sleep function: context-cancellable time.Sleep.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
