// Package marketdata serves tickers from the TTL cache/coalescer when
// warm, seeds an orderbook.Book from a REST snapshot on first access, and
// keeps it current by applying WebSocket deltas as they arrive.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"xchclient/internal/cache"
	"xchclient/internal/dto"
	"xchclient/internal/orderbook"
	"xchclient/internal/ws"
)

// RESTSource is the subset of rest.Client the aggregator needs.
type RESTSource interface {
	GetTicker(ctx context.Context, symbol string) (*dto.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*dto.OrderBookSnapshot, error)
}

// Config parameterizes cache TTLs and order book depth.
type Config struct {
	TickerTTL time.Duration
	MaxLevels int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TickerTTL: 5 * time.Second, MaxLevels: 100}
}

// Aggregator combines a REST source, a coalescing cache, and live
// order books keyed by symbol.
type Aggregator struct {
	rest   RESTSource
	cache  *cache.Coalescer
	cfg    Config

	mu     sync.RWMutex
	books  map[string]*orderbook.Book
}

// New constructs an Aggregator.
func New(rest RESTSource, backing cache.Cache, cfg Config) *Aggregator {
	return &Aggregator{
		rest:  rest,
		cache: cache.NewCoalescer(backing),
		cfg:   cfg,
		books: make(map[string]*orderbook.Book),
	}
}

// Ticker returns a cached ticker if warm, otherwise fetches and caches
// one fresh copy, coalescing concurrent callers for the same symbol.
func (a *Aggregator) Ticker(ctx context.Context, symbol string) (*dto.Ticker, error) {
	raw, err := a.cache.Fetch(ctx, "ticker:"+symbol, a.cfg.TickerTTL, func(ctx context.Context) ([]byte, error) {
		t, err := a.rest.GetTicker(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return json.Marshal(t)
	})
	if err != nil {
		return nil, err
	}
	var t dto.Ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("marketdata: decode cached ticker: %w", err)
	}
	return &t, nil
}

// Book returns the live order book for symbol, seeding it from a REST
// snapshot on first access.
func (a *Aggregator) Book(ctx context.Context, symbol string) (*orderbook.Book, error) {
	a.mu.RLock()
	book, ok := a.books[symbol]
	a.mu.RUnlock()
	if ok {
		return book, nil
	}

	snap, err := a.rest.GetOrderBook(ctx, symbol, a.cfg.MaxLevels)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if book, ok := a.books[symbol]; ok {
		return book, nil
	}
	book = orderbook.NewBook(symbol, "", a.cfg.MaxLevels)
	book.ApplySnapshot(snap.UpdateID, toLevels(snap.Bids), toAskLevels(snap.Asks))
	a.books[symbol] = book
	return book, nil
}

func toLevels(in []dto.OrderBookLevel) []orderbook.Level {
	out := make([]orderbook.Level, len(in))
	for i, l := range in {
		out[i] = orderbook.Level{Price: l.Price, Qty: l.Qty}
	}
	return out
}

func toAskLevels(in []dto.OrderBookLevel) []orderbook.Level { return toLevels(in) }

// DeltaPayload is the wire shape of a WebSocket order book delta update.
type DeltaPayload struct {
	UpdateID int64                `json:"update_id"`
	Bids     []dto.OrderBookLevel `json:"bids"`
	Asks     []dto.OrderBookLevel `json:"asks"`
}

// ApplyWSDelta feeds one WebSocket book-channel message into the live
// order book for its symbol, seeding from REST first if the book hasn't
// been warmed yet. A stale delta (orderbook.ErrStaleUpdate) is dropped
// without error and leaves the book unchanged; no fresh snapshot is
// fetched.
func (a *Aggregator) ApplyWSDelta(ctx context.Context, msg ws.Message) error {
	var payload DeltaPayload
	if err := json.Unmarshal(msg.Raw, &payload); err != nil {
		return fmt.Errorf("marketdata: decode delta: %w", err)
	}

	book, err := a.Book(ctx, msg.Symbol)
	if err != nil {
		return err
	}
	err = book.ApplyDelta(payload.UpdateID, toLevels(payload.Bids), toAskLevels(payload.Asks))
	if err == orderbook.ErrStaleUpdate {
		return nil
	}
	return err
}
