package ordertracker

import (
	"testing"

	"xchclient/internal/decimal"
	"xchclient/internal/dto"
)

func TestTracker_TrackThenUpdateLegalTransition(t *testing.T) {
	tr := New()
	tr.Track(dto.Order{OrderID: "1", Status: dto.OrderStatusNew})

	if err := tr.Update(dto.Order{OrderID: "1", Status: dto.OrderStatusPartiallyFilled}); err != nil {
		t.Fatal(err)
	}
	got, ok := tr.Get("1")
	if !ok || got.Status != dto.OrderStatusPartiallyFilled {
		t.Fatalf("unexpected state: %+v", got)
	}
}

func TestTracker_RejectsIllegalTransitionFromTerminal(t *testing.T) {
	tr := New()
	tr.Track(dto.Order{OrderID: "1", Status: dto.OrderStatusFilled})

	err := tr.Update(dto.Order{OrderID: "1", Status: dto.OrderStatusNew})
	if err == nil {
		t.Fatal("expected illegal transition error")
	}
	var ite *ErrIllegalTransition
	if _, ok := err.(*ErrIllegalTransition); !ok {
		t.Fatalf("want *ErrIllegalTransition, got %T (%v, %v)", err, ite, err)
	}

	got, _ := tr.Get("1")
	if got.Status != dto.OrderStatusFilled {
		t.Fatalf("state should not have changed, got %v", got.Status)
	}
}

func TestTracker_IdempotentRedeliveryOfSameStatusIsLegal(t *testing.T) {
	tr := New()
	tr.Track(dto.Order{OrderID: "1", Status: dto.OrderStatusPartiallyFilled, FilledQty: decimal.NewFromFloat(1)})

	if err := tr.Update(dto.Order{OrderID: "1", Status: dto.OrderStatusPartiallyFilled, FilledQty: decimal.NewFromFloat(1)}); err != nil {
		t.Fatal(err)
	}
}

func TestTracker_NotifiesListenerOnlyOnRealChange(t *testing.T) {
	tr := New()
	var events []Event
	tr.Subscribe(func(e Event) { events = append(events, e) })

	tr.Track(dto.Order{OrderID: "1", Status: dto.OrderStatusNew, FilledQty: decimal.Zero})
	if err := tr.Update(dto.Order{OrderID: "1", Status: dto.OrderStatusNew, FilledQty: decimal.Zero}); err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("want no event for a no-op update, got %d", len(events))
	}

	if err := tr.Update(dto.Order{OrderID: "1", Status: dto.OrderStatusPartiallyFilled, FilledQty: decimal.NewFromFloat(0.5)}); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("want 1 event after real change, got %d", len(events))
	}
	if events[0].Previous != dto.OrderStatusNew {
		t.Fatalf("want previous=new, got %v", events[0].Previous)
	}
}

func TestTracker_OpenExcludesTerminalOrders(t *testing.T) {
	tr := New()
	tr.Track(dto.Order{OrderID: "1", Status: dto.OrderStatusNew})
	tr.Track(dto.Order{OrderID: "2", Status: dto.OrderStatusFilled})
	tr.Track(dto.Order{OrderID: "3", Status: dto.OrderStatusPartiallyFilled})

	open := tr.Open()
	if len(open) != 2 {
		t.Fatalf("want 2 open orders, got %d: %+v", len(open), open)
	}
}
