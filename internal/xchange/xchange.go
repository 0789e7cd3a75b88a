// Package xchange is the composition root: it wires config, auth,
// transport middleware, the REST/WebSocket clients, the market data
// aggregator, and order tracking into the single facade a caller embeds.
package xchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xchclient/internal/auth"
	"xchclient/internal/cache"
	"xchclient/internal/clock"
	"xchclient/internal/config"
	"xchclient/internal/dto"
	"xchclient/internal/marketdata"
	"xchclient/internal/net/circuit"
	"xchclient/internal/net/client"
	"xchclient/internal/net/outcome"
	"xchclient/internal/net/ratelimit"
	"xchclient/internal/orderbook"
	"xchclient/internal/ordertracker"
	"xchclient/internal/paginate"
	"xchclient/internal/rest"
	"xchclient/internal/telemetry"
	"xchclient/internal/ws"
)

// Client is one exchange client instance: every request the caller
// issues through it flows through the same rate limiter, circuit
// breaker, retry policy, and token store.
type Client struct {
	cfg config.Config

	tokens  *auth.TokenStore
	limiter *ratelimit.Limiter
	circuit *circuit.Manager
	metrics *telemetry.Registry
	clock   *clock.Estimator

	restClient *rest.Client
	wsClient   *ws.Client
	market     *marketdata.Aggregator
	orders     *ordertracker.Tracker

	promReg *prometheus.Registry // non-nil only when WithPrometheusRegistry was supplied
}

// Option customizes a Client at construction time.
type Option func(*options)

type options struct {
	encoder  ws.Encoder
	registry *prometheus.Registry
	cache    cache.Cache
}

// WithEncoder overrides the default JSON wire encoder used for the
// WebSocket subscription frames, since wire framing is venue-specific
// and supplied by the caller.
func WithEncoder(enc ws.Encoder) Option {
	return func(o *options) { o.encoder = enc }
}

// WithPrometheusRegistry registers metrics against reg instead of the
// default global prometheus registerer. Mainly useful in tests, where
// a fresh prometheus.NewRegistry() avoids colliding with other clients
// constructed in the same process.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithCache overrides the backing store the aggregator's TTL cache uses
// (e.g. an explicit cache.NewTTLCache or a Redis-backed cache.NewRedisCache
// rather than cache.NewAuto's environment-driven choice).
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// New constructs a Client from cfg. It does not dial the WebSocket (call
// Connect for that) and does not mint a bearer token: the first request
// through the authenticated chain does.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xchange: %w", err)
	}

	o := &options{encoder: ws.JSONEncoder{}}
	for _, opt := range opts {
		opt(o)
	}
	registerer := prometheus.Registerer(prometheus.DefaultRegisterer)
	if o.registry != nil {
		registerer = o.registry
	}
	backing := o.cache
	if backing == nil {
		backing = cache.NewAuto(cfg.Cache.MaxEntries)
	}

	metrics := telemetry.NewRegistry(registerer)
	tokens := auth.NewTokenStore()
	limiter := ratelimit.New(cfg.RateLimitScopeConfigs(), func(h ratelimit.Hit) {
		if h.Warning {
			return
		}
		metrics.RecordRateLimitHit(string(h.Scope))
	})
	circuitMgr := circuit.NewManager(cfg.Circuit.ToCircuitConfig())
	clockEstimator := clock.New()

	// The bootstrap chain mints the very first bearer token: it cannot
	// itself run through AuthTransport, since minting a token can't
	// depend on already holding one.
	bootstrapChain := client.Chain(client.ChainConfig{
		RetryConfig:    cfg.Retry.ToRetryConfig(),
		CircuitManager: circuitMgr,
		CircuitScope:   "authorize",
		RateLimiter:    limiter,
		Clock:          clockEstimator,
		Observe:        observeFunc(metrics, "authorize"),
	})
	bootstrapREST := rest.New(cfg.Exchange.RESTURL, bootstrapChain)

	credProvider := auth.NewStaticProvider(auth.NewCredential(cfg.Auth.Login, cfg.Auth.Password))
	refresh := func(ctx context.Context) (auth.Token, error) {
		cred, err := credProvider.Credential(ctx)
		if err != nil {
			return auth.Token{}, err
		}
		tok, err := bootstrapREST.Authorize(ctx, cred.Login, cred.Password())
		if err != nil {
			return auth.Token{}, err
		}
		return auth.Token{
			Value:     tok.AccessToken,
			ExpiresAt: time.Now().Add(time.Duration(tok.Expiration) * time.Second),
		}, nil
	}

	mainChain := client.Chain(client.ChainConfig{
		TokenStore:     tokens,
		Refresh:        refresh,
		RetryConfig:    cfg.Retry.ToRetryConfig(),
		CircuitManager: circuitMgr,
		CircuitScope:   "rest",
		RateLimiter:    limiter,
		Clock:          clockEstimator,
		Observe:        observeFunc(metrics, "rest"),
	})
	restClient := rest.New(cfg.Exchange.RESTURL, mainChain)

	market := marketdata.New(restClient, backing, marketdata.Config{
		TickerTTL: cfg.Cache.TickerTTL(),
		MaxLevels: 100,
	})

	wsClient := ws.New(ws.DefaultConfig(cfg.Exchange.WSURL), o.encoder)

	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		limiter:    limiter,
		circuit:    circuitMgr,
		metrics:    metrics,
		restClient: restClient,
		wsClient:   wsClient,
		market:     market,
		orders:     ordertracker.New(),
		clock:      clockEstimator,
		promReg:    o.registry,
	}, nil
}

// ServerTime returns the facade's best estimate of the exchange's current
// server time, corrected for measured clock skew.
func (c *Client) ServerTime() time.Time {
	return c.clock.Now()
}

// observeFunc builds a client.ObserveFunc bound to a fixed label, since
// ObserveFunc itself carries no endpoint/scope parameter.
func observeFunc(metrics *telemetry.Registry, label string) client.ObserveFunc {
	return func(tag outcome.Tag, elapsed time.Duration) {
		metrics.ObserveRequest(label, tag, elapsed)
	}
}

// MetricsHandler exposes the Prometheus scrape endpoint for this
// Client's registry. If a custom registry was supplied via
// WithPrometheusRegistry, it serves from that registry; otherwise it
// serves the process-wide default registerer.
func (c *Client) MetricsHandler() http.Handler {
	if c.promReg != nil {
		return promhttp.HandlerFor(c.promReg, promhttp.HandlerOpts{})
	}
	return telemetry.Handler()
}

// CircuitStats reports the current state of every circuit breaker scope,
// for health dashboards.
func (c *Client) CircuitStats() map[string]string {
	return c.circuit.Stats()
}

// Connect opens the WebSocket connection and starts pumping decoded
// events into the market data aggregator and order tracker. It returns
// once the initial handshake succeeds; event processing continues on a
// background goroutine until ctx is cancelled or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("xchange: connect: %w", err)
	}
	go c.pumpEvents(ctx)
	return nil
}

func (c *Client) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.wsClient.Events():
			if !ok {
				return
			}
			switch msg.Channel {
			case "book":
				c.market.ApplyWSDelta(ctx, msg)
			case "order":
				c.applyOrderEvent(msg)
			}
		}
	}
}

func (c *Client) applyOrderEvent(msg ws.Message) {
	var order dto.Order
	if err := json.Unmarshal(msg.Raw, &order); err != nil {
		return
	}
	c.orders.Update(order)
}

// Close tears down the WebSocket connection.
func (c *Client) Close() error {
	return c.wsClient.Close()
}

// Ticker returns a (possibly cached) public ticker snapshot.
func (c *Client) Ticker(ctx context.Context, symbol string) (*dto.Ticker, error) {
	return c.market.Ticker(ctx, symbol)
}

// OrderBook returns the live, WebSocket-maintained order book for symbol,
// seeding it from a REST snapshot on first access.
func (c *Client) OrderBook(ctx context.Context, symbol string) (*orderbook.Book, error) {
	return c.market.Book(ctx, symbol)
}

// RecentTrades fetches the public trade tape for a symbol.
func (c *Client) RecentTrades(ctx context.Context, symbol string, limit int) ([]dto.Trade, error) {
	return c.restClient.GetRecentTrades(ctx, symbol, limit)
}

// SubscribeBook opens a live order book delta stream for symbol.
func (c *Client) SubscribeBook(symbol string) error {
	return c.wsClient.Subscribe(ws.Subscription{Channel: "book", Symbol: symbol})
}

// UnsubscribeBook stops a live order book delta stream for symbol.
func (c *Client) UnsubscribeBook(symbol string) error {
	return c.wsClient.Unsubscribe(ws.Subscription{Channel: "book", Symbol: symbol})
}

// SubscribeOrders opens a live order status stream for the authenticated
// account.
func (c *Client) SubscribeOrders() error {
	return c.wsClient.Subscribe(ws.Subscription{Channel: "order", Symbol: "*"})
}

// OnOrderUpdate registers a listener invoked whenever a tracked order's
// status or filled quantity actually changes.
func (c *Client) OnOrderUpdate(fn ordertracker.Listener) {
	c.orders.Subscribe(fn)
}

// Balances fetches the authenticated account's asset balances.
func (c *Client) Balances(ctx context.Context) ([]dto.Balance, error) {
	return c.restClient.GetBalances(ctx)
}

// FeeTier fetches the authenticated account's current maker/taker fees.
func (c *Client) FeeTier(ctx context.Context) (*dto.FeeTier, error) {
	return c.restClient.GetFeeTier(ctx)
}

// PlaceOrder submits a new order and begins tracking its lifecycle.
func (c *Client) PlaceOrder(ctx context.Context, req dto.OrderRequest) (*dto.Order, error) {
	order, err := c.restClient.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	c.orders.Track(*order)
	return order, nil
}

// GetOrder fetches the current state of a single order and reconciles it
// into the tracker.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*dto.Order, error) {
	order, err := c.restClient.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if known, ok := c.orders.Get(orderID); ok && known.Status == order.Status {
		return order, nil
	}
	c.orders.Update(*order)
	return order, nil
}

// CancelOrder cancels a single order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.restClient.CancelOrder(ctx, orderID)
}

// CancelAllOrders cancels every open order, optionally scoped to symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	return c.restClient.CancelAllOrders(ctx, symbol)
}

// OpenOrders returns every order the tracker currently considers
// non-terminal, from its in-memory state rather than a fresh REST call.
func (c *Client) OpenOrders() []dto.Order {
	return c.orders.Open()
}

// ListOrders returns a lazy cursor-paginated iterator over historical
// orders; each page's last item ID becomes the next page's cursor.
func (c *Client) ListOrders(ctx context.Context, symbol string, pageSize int) paginate.Next[dto.Order] {
	fetch := func(ctx context.Context, pageSize int, cursor string) ([]dto.Order, error) {
		page, err := c.restClient.ListOrders(ctx, symbol, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	}
	cursorOf := func(o dto.Order) string { return o.OrderID }
	return paginate.Cursor(ctx, pageSize, fetch, cursorOf)
}

// GetDepositAddress fetches (or provisions) a deposit address.
func (c *Client) GetDepositAddress(ctx context.Context, asset, network string) (*dto.DepositAddress, error) {
	return c.restClient.GetDepositAddress(ctx, asset, network)
}

// ListWithdrawalAddresses fetches the account's registered withdrawal
// addresses.
func (c *Client) ListWithdrawalAddresses(ctx context.Context, asset string) ([]dto.WithdrawalAddress, error) {
	return c.restClient.ListWithdrawalAddresses(ctx, asset)
}

// Withdraw submits a withdrawal to a previously registered address.
func (c *Client) Withdraw(ctx context.Context, req dto.WithdrawalRequest) error {
	return c.restClient.Withdraw(ctx, req)
}

// ListBankAccounts fetches the account's registered fiat bank accounts.
func (c *Client) ListBankAccounts(ctx context.Context) ([]dto.BankAccount, error) {
	return c.restClient.ListBankAccounts(ctx)
}
