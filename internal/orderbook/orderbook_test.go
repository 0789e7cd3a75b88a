package orderbook

import (
	"testing"

	"xchclient/internal/decimal"
)

func lvl(price, qty float64) Level {
	return Level{Price: decimal.NewFromFloat(price), Qty: decimal.NewFromFloat(qty)}
}

func TestBook_ApplySnapshotEstablishesBaseline(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(10, []Level{lvl(100, 1)}, []Level{lvl(101, 1)})

	if b.UpdateID() != 10 {
		t.Fatalf("want updateID 10, got %d", b.UpdateID())
	}
	if b.BestBid().Price.F64() != 100 || b.BestAsk().Price.F64() != 101 {
		t.Fatalf("unexpected best bid/ask: %+v %+v", b.BestBid(), b.BestAsk())
	}
}

func TestBook_ApplyDeltaRejectsStaleUpdate(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(10, []Level{lvl(100, 1)}, []Level{lvl(101, 1)})

	err := b.ApplyDelta(10, []Level{lvl(99, 1)}, nil)
	if err != ErrStaleUpdate {
		t.Fatalf("want ErrStaleUpdate for updateID==current, got %v", err)
	}
	err = b.ApplyDelta(5, []Level{lvl(99, 1)}, nil)
	if err != ErrStaleUpdate {
		t.Fatalf("want ErrStaleUpdate for updateID<current, got %v", err)
	}
	if b.BestBid().Price.F64() != 100 {
		t.Fatal("stale delta must not have mutated the book")
	}
}

func TestBook_ApplyDeltaZeroQtyRemovesLevel(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(1, []Level{lvl(100, 1), lvl(99, 2)}, []Level{lvl(101, 1)})

	if err := b.ApplyDelta(2, []Level{lvl(100, 0)}, nil); err != nil {
		t.Fatal(err)
	}
	if b.BestBid().Price.F64() != 99 {
		t.Fatalf("want best bid 99 after removing 100, got %v", b.BestBid())
	}
}

func TestBook_ApplyDeltaInsertsAndReorders(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(1, []Level{lvl(100, 1)}, []Level{lvl(101, 1)})

	if err := b.ApplyDelta(2, []Level{lvl(100.5, 1)}, nil); err != nil {
		t.Fatal(err)
	}
	if b.BestBid().Price.F64() != 100.5 {
		t.Fatalf("want new best bid 100.5, got %v", b.BestBid())
	}
}

func TestBook_DepthCapping(t *testing.T) {
	b := NewBook("BTCUSD", "test", 2)
	b.ApplySnapshot(1, []Level{lvl(100, 1), lvl(99, 1), lvl(98, 1)}, []Level{lvl(101, 1), lvl(102, 1), lvl(103, 1)})

	if len(b.bids) != 2 || len(b.asks) != 2 {
		t.Fatalf("want depth capped to 2 per side, got bids=%d asks=%d", len(b.bids), len(b.asks))
	}
}

func TestBook_SpreadBPS(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(1, []Level{lvl(100, 1)}, []Level{lvl(101, 1)})

	got := b.SpreadBPS()
	want := (1.0 / 100.5) * 10000
	if diff := got - want; diff > 0.01 || diff < -0.01 {
		t.Fatalf("want spread ~%v bps, got %v", want, got)
	}
}

func TestBook_VWAPWalksMultipleLevels(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(1, nil, []Level{lvl(100, 1), lvl(101, 1), lvl(102, 2)})

	got := b.VWAP("ask", 2.5)
	want := (100*1 + 101*1 + 102*0.5) / 2.5
	if diff := got - want; diff > 0.001 || diff < -0.001 {
		t.Fatalf("want VWAP ~%v, got %v", want, got)
	}
}

func TestBook_Imbalance(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(1, []Level{lvl(100, 3)}, []Level{lvl(101, 1)})

	got := b.Imbalance(1)
	want := (3.0 - 1.0) / (3.0 + 1.0)
	if got != want {
		t.Fatalf("want imbalance %v, got %v", want, got)
	}
}

func TestBook_SpreadChangedEventOnlyWhenBestLevelMoves(t *testing.T) {
	b := NewBook("BTCUSD", "test", 0)
	b.ApplySnapshot(1, []Level{lvl(100, 1)}, []Level{lvl(101, 1)})

	var spreadChanges int
	b.Subscribe(func(e Event) {
		if e.Kind == EventSpreadChanged {
			spreadChanges++
		}
	})

	// Deeper level change should not move best bid/ask.
	if err := b.ApplyDelta(2, []Level{lvl(90, 5)}, nil); err != nil {
		t.Fatal(err)
	}
	if spreadChanges != 0 {
		t.Fatalf("want no spread-changed event for a deeper level, got %d", spreadChanges)
	}

	if err := b.ApplyDelta(3, []Level{lvl(100.5, 1)}, nil); err != nil {
		t.Fatal(err)
	}
	if spreadChanges != 1 {
		t.Fatalf("want exactly one spread-changed event after best bid moves, got %d", spreadChanges)
	}
}
