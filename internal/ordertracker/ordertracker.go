// Package ordertracker holds the latest known state of every order
// placed through a facade instance, validates that incoming status
// transitions are legal, and notifies subscribers exactly once per
// transition. It is pure in-memory state-machine bookkeeping built on
// sync.RWMutex/map, the same primitive backing the facade's other
// in-process caches (auth.TokenStore, circuit.Manager).
package ordertracker

import (
	"fmt"
	"sync"
	"time"

	"xchclient/internal/dto"
)

// legalTransitions enumerates which OrderStatus values an order may move
// to from each current status. Terminal states have no outgoing edges.
var legalTransitions = map[dto.OrderStatus][]dto.OrderStatus{
	dto.OrderStatusNew: {
		dto.OrderStatusPartiallyFilled,
		dto.OrderStatusFilled,
		dto.OrderStatusCancelled,
		dto.OrderStatusRejected,
		dto.OrderStatusExpired,
	},
	dto.OrderStatusPartiallyFilled: {
		dto.OrderStatusPartiallyFilled,
		dto.OrderStatusFilled,
		dto.OrderStatusCancelled,
		dto.OrderStatusExpired,
	},
}

func isLegalTransition(from, to dto.OrderStatus) bool {
	if from == to {
		return true // idempotent re-delivery of the same state
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ErrIllegalTransition is returned when an update would move an order
// backwards out of a terminal state, or skip in a way the exchange never
// legitimately produces.
type ErrIllegalTransition struct {
	OrderID  string
	From, To dto.OrderStatus
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("ordertracker: illegal transition for %s: %s -> %s", e.OrderID, e.From, e.To)
}

// Event is published on every accepted state transition.
type Event struct {
	Order    dto.Order
	Previous dto.OrderStatus
	At       time.Time
}

// Listener receives Events. Implementations must not block.
type Listener func(Event)

// Tracker holds the latest known state of every order seen by this
// facade instance.
type Tracker struct {
	mu        sync.RWMutex
	orders    map[string]dto.Order
	listeners []Listener
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{orders: make(map[string]dto.Order)}
}

// Subscribe registers a Listener for lifecycle events.
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Track records an order the facade just placed or fetched, establishing
// its baseline state. It does not validate a transition since there is
// no prior state for this order in this tracker.
func (t *Tracker) Track(order dto.Order) {
	t.mu.Lock()
	t.orders[order.OrderID] = order
	t.mu.Unlock()
}

// Update applies a newly observed order state (from a REST poll or a
// WebSocket order-update message). It rejects the update with
// ErrIllegalTransition if the status change is not one the exchange's
// order lifecycle permits, leaving the tracker's prior state untouched.
func (t *Tracker) Update(order dto.Order) error {
	t.mu.Lock()
	prev, known := t.orders[order.OrderID]
	if known && !isLegalTransition(prev.Status, order.Status) {
		t.mu.Unlock()
		return &ErrIllegalTransition{OrderID: order.OrderID, From: prev.Status, To: order.Status}
	}
	t.orders[order.OrderID] = order
	listeners := t.listeners
	t.mu.Unlock()

	if !known || prev.Status != order.Status || !prev.FilledQty.Equal(order.FilledQty.Decimal) {
		ev := Event{Order: order, Previous: prev.Status, At: time.Now()}
		for _, l := range listeners {
			l(ev)
		}
	}
	return nil
}

// Get returns the last known state of orderID.
func (t *Tracker) Get(orderID string) (dto.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.orders[orderID]
	return o, ok
}

// Open returns every tracked order whose status is not terminal.
func (t *Tracker) Open() []dto.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var open []dto.Order
	for _, o := range t.orders {
		if !isTerminal(o.Status) {
			open = append(open, o)
		}
	}
	return open
}

func isTerminal(s dto.OrderStatus) bool {
	switch s {
	case dto.OrderStatusFilled, dto.OrderStatusCancelled, dto.OrderStatusRejected, dto.OrderStatusExpired:
		return true
	default:
		return false
	}
}
