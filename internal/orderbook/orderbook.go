// Package orderbook implements an incremental order book: a snapshot
// establishes a baseline at a given update ID, then deltas are applied
// in order; deltas that arrive out of order relative to the last
// applied update ID are rejected rather than silently corrupting book
// state.
package orderbook

import (
	"errors"
	"sort"
	"sync"
	"time"

	"xchclient/internal/decimal"
)

// ErrStaleUpdate is returned when a delta's UpdateID does not extend the
// book's current UpdateID; such deltas are rejected without mutating
// state.
var ErrStaleUpdate = errors.New("orderbook: stale update rejected")

// Level is one price level on one side of the book.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// valueUSD approximates the notional value of this level (price*qty),
// used for depth-band summation; this is a display/ranking aid, not an
// accounting figure.
func (l Level) valueUSD() decimal.Decimal {
	return decimal.NewFromFloat(l.Price.F64() * l.Qty.F64())
}

// EventKind enumerates the book-change notifications emitted by Apply*.
type EventKind int

const (
	EventSnapshot EventKind = iota
	EventDelta
	EventSpreadChanged
)

// Event is published to subscribers after a successful Apply call.
type Event struct {
	Kind      EventKind
	Symbol    string
	UpdateID  int64
	At        time.Time
	SpreadBPS float64
}

// Listener receives book Events. Implementations must not block.
type Listener func(Event)

// Book is a single symbol's incrementally-maintained order book.
type Book struct {
	mu sync.RWMutex

	Symbol    string
	Venue     string
	MaxLevels int

	updateID int64
	bids     []Level // descending by price
	asks     []Level // ascending by price

	listeners []Listener
}

// NewBook constructs an empty Book. maxLevels caps retained depth per
// side after every Apply call, for memory stability on deep books.
func NewBook(symbol, venue string, maxLevels int) *Book {
	return &Book{Symbol: symbol, Venue: venue, MaxLevels: maxLevels}
}

// Subscribe registers a Listener for book events.
func (b *Book) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Book) emit(ev Event) {
	for _, l := range b.listeners {
		l(ev)
	}
}

// ApplySnapshot replaces the book's state wholesale, establishing the
// baseline updateID that subsequent deltas are validated against.
func (b *Book) ApplySnapshot(updateID int64, bids, asks []Level) {
	b.mu.Lock()
	b.updateID = updateID
	b.bids = sortedBids(bids)
	b.asks = sortedAsks(asks)
	b.capLocked()
	spread := b.spreadBPSLocked()
	b.mu.Unlock()

	b.emit(Event{Kind: EventSnapshot, Symbol: b.Symbol, UpdateID: updateID, At: time.Now(), SpreadBPS: spread})
}

// ApplyDelta merges an incremental update into the book. A level with
// zero quantity removes that price; otherwise it inserts or replaces the
// level at that price. Returns ErrStaleUpdate without mutating state if
// updateID does not strictly extend the book's current updateID.
func (b *Book) ApplyDelta(updateID int64, bids, asks []Level) error {
	b.mu.Lock()
	if updateID <= b.updateID {
		b.mu.Unlock()
		return ErrStaleUpdate
	}

	prevBestBid, prevBestAsk := bestOf(b.bids), bestOf(b.asks)

	b.bids = mergeLevels(b.bids, bids, true)
	b.asks = mergeLevels(b.asks, asks, false)
	b.updateID = updateID
	b.capLocked()
	spread := b.spreadBPSLocked()
	newBestBid, newBestAsk := bestOf(b.bids), bestOf(b.asks)
	b.mu.Unlock()

	b.emit(Event{Kind: EventDelta, Symbol: b.Symbol, UpdateID: updateID, At: time.Now(), SpreadBPS: spread})
	if newBestBid.F64() != prevBestBid.F64() || newBestAsk.F64() != prevBestAsk.F64() {
		b.emit(Event{Kind: EventSpreadChanged, Symbol: b.Symbol, UpdateID: updateID, At: time.Now(), SpreadBPS: spread})
	}
	return nil
}

func bestOf(levels []Level) decimal.Decimal {
	if len(levels) == 0 {
		return decimal.Zero
	}
	return levels[0].Price
}

// mergeLevels applies updates onto existing, keyed by price; a zero
// quantity removes the level. descending controls sort order for bids
// (true) vs asks (false).
func mergeLevels(existing []Level, updates []Level, descending bool) []Level {
	byPrice := make(map[float64]Level, len(existing))
	for _, l := range existing {
		byPrice[l.Price.F64()] = l
	}
	for _, u := range updates {
		if u.Qty.F64() == 0 {
			delete(byPrice, u.Price.F64())
			continue
		}
		byPrice[u.Price.F64()] = u
	}
	out := make([]Level, 0, len(byPrice))
	for _, l := range byPrice {
		out = append(out, l)
	}
	if descending {
		return sortedBids(out)
	}
	return sortedAsks(out)
}

func sortedBids(levels []Level) []Level {
	out := append([]Level(nil), levels...)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.F64() > out[j].Price.F64() })
	return out
}

func sortedAsks(levels []Level) []Level {
	out := append([]Level(nil), levels...)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.F64() < out[j].Price.F64() })
	return out
}

func (b *Book) capLocked() {
	if b.MaxLevels <= 0 {
		return
	}
	if len(b.bids) > b.MaxLevels {
		b.bids = b.bids[:b.MaxLevels]
	}
	if len(b.asks) > b.MaxLevels {
		b.asks = b.asks[:b.MaxLevels]
	}
}

// UpdateID returns the book's current sequence number.
func (b *Book) UpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updateID
}

// BestBid returns the top-of-book bid, or the zero Level if the book is
// empty on that side.
func (b *Book) BestBid() Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return Level{}
	}
	return b.bids[0]
}

// BestAsk returns the top-of-book ask, or the zero Level if the book is
// empty on that side.
func (b *Book) BestAsk() Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return Level{}
	}
	return b.asks[0]
}

// Mid returns (bestBid+bestAsk)/2, or zero if either side is empty.
func (b *Book) Mid() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.midLocked()
}

func (b *Book) midLocked() float64 {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0
	}
	return (b.bids[0].Price.F64() + b.asks[0].Price.F64()) / 2
}

// SpreadBPS returns the best bid/ask spread in basis points of mid.
func (b *Book) SpreadBPS() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.spreadBPSLocked()
}

func (b *Book) spreadBPSLocked() float64 {
	mid := b.midLocked()
	if mid == 0 {
		return 0
	}
	spread := b.asks[0].Price.F64() - b.bids[0].Price.F64()
	return (spread / mid) * 10000
}

// DepthWithinPct sums the USD notional of both sides within pct of mid
// (e.g. pct=0.02 for depth within +/-2%).
func (b *Book) DepthWithinPct(pct float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	mid := b.midLocked()
	if mid == 0 {
		return 0
	}
	lower, upper := mid*(1-pct), mid*(1+pct)

	total := 0.0
	for _, lvl := range b.bids {
		if lvl.Price.F64() < lower {
			break
		}
		total += lvl.valueUSD().F64()
	}
	for _, lvl := range b.asks {
		if lvl.Price.F64() > upper {
			break
		}
		total += lvl.valueUSD().F64()
	}
	return total
}

// Imbalance returns (bidDepth-askDepth)/(bidDepth+askDepth) over the top
// depth levels, in [-1, 1]; positive values indicate buy-side pressure.
func (b *Book) Imbalance(depth int) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bidVol := sumQty(b.bids, depth)
	askVol := sumQty(b.asks, depth)
	total := bidVol + askVol
	if total == 0 {
		return 0
	}
	return (bidVol - askVol) / total
}

func sumQty(levels []Level, depth int) float64 {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	total := 0.0
	for _, l := range levels[:depth] {
		total += l.Qty.F64()
	}
	return total
}

// VWAP returns the volume-weighted average price to fill qty against
// this side of the book (side "bid" sells into bids, "ask" buys from
// asks), or zero if the book cannot satisfy qty at all.
func (b *Book) VWAP(side string, qty float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var levels []Level
	if side == "bid" {
		levels = b.bids
	} else {
		levels = b.asks
	}

	remaining := qty
	notional := 0.0
	filled := 0.0
	for _, l := range levels {
		if remaining <= 0 {
			break
		}
		take := l.Qty.F64()
		if take > remaining {
			take = remaining
		}
		notional += take * l.Price.F64()
		filled += take
		remaining -= take
	}
	if filled == 0 {
		return 0
	}
	return notional / filled
}
