// Package circuit implements the request-execution circuit breaker:
// Closed counts failures in a rolling window and opens when failures
// reach minimumThroughput and the failure ratio crosses its threshold;
// Open fast-fails; HalfOpen allows exactly one probe.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"xchclient/internal/xerrors"
)

// ErrCircuitOpen is returned (wrapped) when the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures the breaker.
type Config struct {
	// MinimumThroughput is the minimum number of requests in the rolling
	// window before the failure ratio is evaluated at all.
	MinimumThroughput uint32
	// FailureRatio is the fraction of failed requests (within the rolling
	// window, once MinimumThroughput is met) that trips the breaker open.
	FailureRatio float64
	// RollingWindow is the duration over which Counts are accumulated
	// while Closed (gobreaker's Interval).
	RollingWindow time.Duration
	// BreakDuration is how long the breaker stays Open before allowing a
	// single HalfOpen probe (gobreaker's Timeout).
	BreakDuration time.Duration
}

// DefaultConfig returns the breaker's default tuning: four requests
// before the ratio is evaluated, a 50% failure ratio, a one-minute
// rolling window, and a 30-second break duration.
func DefaultConfig() Config {
	return Config{
		MinimumThroughput: 4,
		FailureRatio:      0.5,
		RollingWindow:     time.Minute,
		BreakDuration:     30 * time.Second,
	}
}

// Breaker wraps gobreaker.CircuitBreaker with closed/open/half-open
// vocabulary.
type Breaker struct {
	gb   *gobreaker.CircuitBreaker
	name string
}

// New constructs a Breaker.
func New(name string, cfg Config) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one probe allowed while HalfOpen
		Interval:    cfg.RollingWindow,
		Timeout:     cfg.BreakDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumThroughput {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
	}
	return &Breaker{gb: gobreaker.NewCircuitBreaker(settings), name: name}
}

// Call executes fn if the breaker allows it, fast-failing with
// ErrCircuitOpen (wrapped as xerrors.KindCircuitOpen) otherwise. No network
// call and no rate-limit token is spent when the breaker is open.
func (b *Breaker) Call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := b.gb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return xerrors.CircuitOpen(op)
	}
	return err
}

// State reports the current breaker state: "closed", "open", or
// "half-open".
func (b *Breaker) State() string {
	switch b.gb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Counts exposes the raw rolling-window counters, for health dashboards.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.gb.Counts()
}

// Manager manages one Breaker per named scope (e.g. one per REST host, or
// a single "global" scope for a client with a single base URL).
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewManager constructs a Manager that lazily creates breakers with cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), cfg: cfg}
}

func (m *Manager) get(name string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b = New(name, m.cfg)
	m.breakers[name] = b
	return b
}

// Call executes fn through the named scope's breaker.
func (m *Manager) Call(ctx context.Context, scope, op string, fn func(ctx context.Context) error) error {
	return m.get(scope).Call(ctx, op, fn)
}

// Stats returns a snapshot of state per scope, for diagnostics.
func (m *Manager) Stats() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = fmt.Sprintf("%s (requests=%d failures=%d)", b.State(), b.Counts().Requests, b.Counts().TotalFailures)
	}
	return out
}
