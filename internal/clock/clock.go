// Package clock estimates the offset between the exchange's server clock
// and the local clock from the HTTP Date header, so request signing can use
// a corrected timestamp.
package clock

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Estimator tracks a signed offset Δ = serverTime - localTime, updated on
// every response carrying a trustworthy Date header. Safe for concurrent
// use; a single Estimator is shared by every request the facade issues.
type Estimator struct {
	offsetNanos atomic.Int64
}

// New returns an Estimator with a zero offset.
func New() *Estimator {
	return &Estimator{}
}

// Observe updates the offset from a response's Date header. Responses
// without a parseable Date header are ignored; a single bad header never
// corrupts the running estimate.
func (e *Estimator) Observe(resp *http.Response) {
	if resp == nil {
		return
	}
	raw := resp.Header.Get("Date")
	if raw == "" {
		return
	}
	serverTime, err := http.ParseTime(raw)
	if err != nil {
		return
	}
	e.set(serverTime, time.Now())
}

// set records serverTime - localTime as the current offset.
func (e *Estimator) set(serverTime, localTime time.Time) {
	e.offsetNanos.Store(int64(serverTime.Sub(localTime)))
}

// Offset returns the current estimated clock skew (serverTime - localTime).
func (e *Estimator) Offset() time.Duration {
	return time.Duration(e.offsetNanos.Load())
}

// Now returns the local clock corrected by the current offset, to seconds
// precision as required for request signing.
func (e *Estimator) Now() time.Time {
	return time.Now().Add(e.Offset()).Truncate(time.Second)
}

// NowUnix returns Now() as Unix seconds, the form most signing schemes want.
func (e *Estimator) NowUnix() int64 {
	return e.Now().Unix()
}
