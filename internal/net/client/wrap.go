// Package client assembles the HTTP middleware stack: requests flow
// Auth -> Retry -> CircuitBreaker -> RateLimit -> transport, each layer a
// nested http.RoundTripper composed as a non-cyclic chain.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"xchclient/internal/auth"
	"xchclient/internal/clock"
	"xchclient/internal/net/circuit"
	"xchclient/internal/net/outcome"
	"xchclient/internal/net/ratelimit"
	"xchclient/internal/net/retry"
	"xchclient/internal/xerrors"
)

type scopesKey struct{}

// WithScopes attaches the rate-limit scopes that a request belongs to.
// The REST client sets this per call (e.g. ratelimit.Trading for an order
// placement, ratelimit.PublicData for a ticker read).
func WithScopes(ctx context.Context, scopes ...ratelimit.Scope) context.Context {
	return context.WithValue(ctx, scopesKey{}, scopes)
}

func scopesFrom(ctx context.Context) []ratelimit.Scope {
	scopes, _ := ctx.Value(scopesKey{}).([]ratelimit.Scope)
	return scopes
}

// RateLimitTransport blocks until every scope attached to the request's
// context (via WithScopes) has a token available, then delegates.
type RateLimitTransport struct {
	Next    http.RoundTripper
	Limiter *ratelimit.Limiter
}

func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		scopes := scopesFrom(req.Context())
		if len(scopes) > 0 {
			if err := t.Limiter.Acquire(req.Context(), scopes...); err != nil {
				return nil, xerrors.New("http.ratelimit", xerrors.KindRateLimit, err)
			}
		}
	}
	return t.Next.RoundTrip(req)
}

// CircuitTransport routes the request through a named circuit breaker
// scope, fast-failing without consuming a rate-limit token or touching
// the network when the breaker is open.
type CircuitTransport struct {
	Next    http.RoundTripper
	Manager *circuit.Manager
	Scope   string
}

func (t *CircuitTransport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	if t.Manager == nil {
		return t.Next.RoundTrip(req)
	}
	callErr := t.Manager.Call(req.Context(), t.Scope, req.URL.Path, func(ctx context.Context) error {
		resp, err = t.Next.RoundTrip(req.WithContext(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return xerrors.New("http.circuit", xerrors.KindTransient, fmt.Errorf("HTTP %d", resp.StatusCode))
		}
		return nil
	})
	if callErr != nil && xerrors.KindOf(callErr) == xerrors.KindCircuitOpen {
		return nil, callErr
	}
	return resp, err
}

// RetryTransport retries the request per the retry layer's backoff
// policy, restoring the request body between attempts so it stays
// replayable across retries.
type RetryTransport struct {
	Next    http.RoundTripper
	Config  retry.Config
	Jitter  retry.Jitterer
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, xerrors.New("http.retry", xerrors.KindTransient, err)
		}
		req.Body.Close()
	}

	var finalResp *http.Response
	_, err := retry.Do(req.Context(), t.Config, retry.Sleep, t.Jitter, func(ctx context.Context, attempt int) (int, string, error) {
		r := req.Clone(ctx)
		if bodyBytes != nil {
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			r.ContentLength = int64(len(bodyBytes))
		}
		resp, rtErr := t.Next.RoundTrip(r)
		if rtErr != nil {
			return 0, "", rtErr
		}
		if retry.ShouldRetry(t.Config, nil, resp.StatusCode) {
			retryAfter := resp.Header.Get("Retry-After")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return resp.StatusCode, retryAfter, nil
		}
		finalResp = resp
		return resp.StatusCode, "", nil
	})
	if err != nil {
		return nil, err
	}
	return finalResp, nil
}

// AuthTransport injects the bearer/API-key credential from a TokenStore
// and transparently refreshes once on a 401, replaying the request
// exactly once with the new token.
type AuthTransport struct {
	Next    http.RoundTripper
	Store   *auth.TokenStore
	Refresh func(ctx context.Context) (auth.Token, error)
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Store == nil {
		return t.Next.RoundTrip(req)
	}

	if err := t.ensureValid(req.Context()); err != nil {
		return nil, err
	}
	t.setAuthHeader(req)

	resp, err := t.Next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	t.Store.Invalidate()
	if err := t.ensureValid(req.Context()); err != nil {
		return nil, err
	}

	retryReq := req.Clone(req.Context())
	t.setAuthHeader(retryReq)
	return t.Next.RoundTrip(retryReq)
}

func (t *AuthTransport) ensureValid(ctx context.Context) error {
	if _, ok := t.Store.Valid(); ok {
		return nil
	}
	if t.Refresh == nil {
		return xerrors.Authentication("http.auth", fmt.Errorf("no credential available"))
	}
	tok, err := t.Refresh(ctx)
	if err != nil {
		return xerrors.Authentication("http.auth", err)
	}
	t.Store.Set(tok)
	return nil
}

func (t *AuthTransport) setAuthHeader(req *http.Request) {
	tok, ok := t.Store.Valid()
	if !ok {
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
}

// ObserveFunc records the terminal outcome of a request for telemetry.
type ObserveFunc func(tag outcome.Tag, elapsed time.Duration)

// ObserveTransport is the outermost layer: it classifies the final
// outcome of the whole chain and reports it via Observe.
type ObserveTransport struct {
	Next    http.RoundTripper
	Observe ObserveFunc
}

func (t *ObserveTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Next.RoundTrip(req)
	if t.Observe == nil {
		return resp, err
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.Observe(outcome.Classify(err, status), time.Since(start))
	return resp, err
}

// ClockTransport feeds every response's Date header into a shared
// clock.Estimator, so the facade's corrected-time source stays current
// without a dedicated polling loop.
type ClockTransport struct {
	Next      http.RoundTripper
	Estimator *clock.Estimator
}

func (t *ClockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.Next.RoundTrip(req)
	if t.Estimator != nil && resp != nil {
		t.Estimator.Observe(resp)
	}
	return resp, err
}

// ChainConfig carries every optional layer of the middleware stack; nil
// fields are skipped (e.g. a public-data client with no AuthTransport).
type ChainConfig struct {
	Base           http.RoundTripper
	TokenStore     *auth.TokenStore
	Refresh        func(ctx context.Context) (auth.Token, error)
	RetryConfig    retry.Config
	CircuitManager *circuit.Manager
	CircuitScope   string
	RateLimiter    *ratelimit.Limiter
	Clock          *clock.Estimator
	Observe        ObserveFunc
}

// Chain composes the full middleware stack:
// Auth(Retry(CircuitBreaker(RateLimit(Clock(transport))))), wrapped once
// more by an outcome observer.
func Chain(cfg ChainConfig) http.RoundTripper {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = base
	rt = &ClockTransport{Next: rt, Estimator: cfg.Clock}
	rt = &RateLimitTransport{Next: rt, Limiter: cfg.RateLimiter}
	rt = &CircuitTransport{Next: rt, Manager: cfg.CircuitManager, Scope: cfg.CircuitScope}
	rt = &RetryTransport{Next: rt, Config: cfg.RetryConfig}
	rt = &AuthTransport{Next: rt, Store: cfg.TokenStore, Refresh: cfg.Refresh}
	rt = &ObserveTransport{Next: rt, Observe: cfg.Observe}
	return rt
}
