package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestAddAndBestBidAsk(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: d("4.0"), RemainingQty: 10, Seq: 1})
	b.Add(&OrderEntry{OrderID: "b2", UserID: "u1", Side: model.SideBuy, Price: d("4.5"), RemainingQty: 5, Seq: 2})
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: d("5.5"), RemainingQty: 10, Seq: 3})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: d("6.0"), RemainingQty: 5, Seq: 4})

	if b.Size() != 4 {
		t.Fatalf("expected size 4, got %d", b.Size())
	}
	if bb := b.BestBid(); bb == nil || !bb.Equal(d("4.5")) {
		t.Fatalf("expected best bid 4.5, got %v", bb)
	}
	if ba := b.BestAsk(); ba == nil || !ba.Equal(d("5.5")) {
		t.Fatalf("expected best ask 5.5, got %v", ba)
	}
}

func TestPriceTimePriority(t *testing.T) {
	b := NewOrderBook()

	// Two sells at same price, first should match first (FIFO)
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: d("5.0"), RemainingQty: 3, Seq: 1})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: d("5.0"), RemainingQty: 3, Seq: 2})

	price := d("5.0")
	matches := b.FindMatches(model.SideBuy, &price, 4, "u1")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Entry.OrderID != "a1" {
		t.Fatalf("expected first match a1, got %s", matches[0].Entry.OrderID)
	}
	if matches[0].FillQty != 3 {
		t.Fatalf("expected first fill 3, got %d", matches[0].FillQty)
	}
	if matches[1].Entry.OrderID != "a2" {
		t.Fatalf("expected second match a2, got %s", matches[1].Entry.OrderID)
	}
	if matches[1].FillQty != 1 {
		t.Fatalf("expected second fill 1, got %d", matches[1].FillQty)
	}
}

func TestPartialFillAcrossLevels(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: d("5.0"), RemainingQty: 2, Seq: 1})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: d("5.5"), RemainingQty: 3, Seq: 2})
	b.Add(&OrderEntry{OrderID: "a3", UserID: "u2", Side: model.SideSell, Price: d("6.0"), RemainingQty: 5, Seq: 3})

	// Buy 6 at price up to 6.0 -> should fill 2@5.0 + 3@5.5 + 1@6.0
	price := d("6.0")
	matches := b.FindMatches(model.SideBuy, &price, 6, "u1")
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	total := 0
	for _, m := range matches {
		total += m.FillQty
	}
	if total != 6 {
		t.Fatalf("expected total fill 6, got %d", total)
	}
	if matches[2].FillQty != 1 {
		t.Fatalf("expected partial fill 1 at 6.0, got %d", matches[2].FillQty)
	}
}

func TestMarketOrderNoPrice(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "a1", UserID: "u2", Side: model.SideSell, Price: d("5.0"), RemainingQty: 10, Seq: 1})

	// nil price = market order, matches at any price
	matches := b.FindMatches(model.SideBuy, nil, 5, "u1")
	if len(matches) != 1 || matches[0].FillQty != 5 {
		t.Fatalf("expected 1 match for 5 qty, got %d matches", len(matches))
	}
}

func TestSelfTradePreventionSkips(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: d("5.0"), RemainingQty: 5, Seq: 1})
	b.Add(&OrderEntry{OrderID: "a2", UserID: "u2", Side: model.SideSell, Price: d("5.5"), RemainingQty: 5, Seq: 2})

	price := d("9.9")
	matches := b.FindMatches(model.SideBuy, &price, 3, "u1") // excludeUserID=u1
	if len(matches) != 1 {
		t.Fatalf("expected 1 match (skipping self), got %d", len(matches))
	}
	if matches[0].Entry.UserID != "u2" {
		t.Fatalf("expected match with u2, got %s", matches[0].Entry.UserID)
	}
}

func TestRemoveOrder(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: d("5.0"), RemainingQty: 5, Seq: 1})
	b.Add(&OrderEntry{OrderID: "b2", UserID: "u1", Side: model.SideBuy, Price: d("5.0"), RemainingQty: 3, Seq: 2})

	removed := b.Remove("b1")
	if removed == nil || removed.OrderID != "b1" {
		t.Fatal("expected to remove b1")
	}
	if b.Size() != 1 {
		t.Fatalf("expected size 1 after remove, got %d", b.Size())
	}

	// Price level should still exist with b2
	if bb := b.BestBid(); bb == nil || !bb.Equal(d("5.0")) {
		t.Fatal("best bid should still be 5.0")
	}
}

func TestRemoveLastAtLevel(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: d("5.0"), RemainingQty: 5, Seq: 1})
	b.Remove("a1")

	if b.BestAsk() != nil {
		t.Fatal("expected no best ask after removing only order")
	}
	if b.Size() != 0 {
		t.Fatal("expected empty book")
	}
}

func TestApplyFillPartial(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: d("5.0"), RemainingQty: 10, Seq: 1})

	rem := b.ApplyFill("a1", 3)
	if rem != 7 {
		t.Fatalf("expected remaining 7, got %d", rem)
	}
	if b.Size() != 1 {
		t.Fatal("order should still be in book")
	}
}

func TestApplyFillFull(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "a1", UserID: "u1", Side: model.SideSell, Price: d("5.0"), RemainingQty: 5, Seq: 1})

	rem := b.ApplyFill("a1", 5)
	if rem != 0 {
		t.Fatalf("expected remaining 0, got %d", rem)
	}
	if b.Size() != 0 {
		t.Fatal("order should be removed from book")
	}
}

func TestSnapshotDepth(t *testing.T) {
	b := NewOrderBook()
	for i := 1; i <= 5; i++ {
		b.Add(&OrderEntry{OrderID: "b" + string(rune('0'+i)), UserID: "u1", Side: model.SideBuy, Price: decimal.NewFromInt(int64(40 + i)), RemainingQty: 1, Seq: int64(i)})
	}
	for i := 1; i <= 5; i++ {
		b.Add(&OrderEntry{OrderID: "a" + string(rune('0'+i)), UserID: "u2", Side: model.SideSell, Price: decimal.NewFromInt(int64(50 + i)), RemainingQty: 1, Seq: int64(5 + i)})
	}

	snap := b.Snapshot(3)
	if len(snap.Bids) != 3 {
		t.Fatalf("expected 3 bid levels, got %d", len(snap.Bids))
	}
	if len(snap.Asks) != 3 {
		t.Fatalf("expected 3 ask levels, got %d", len(snap.Asks))
	}
	// Bids descending: 45, 44, 43
	if !snap.Bids[0].Price.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("expected top bid 45, got %v", snap.Bids[0].Price)
	}
	// Asks ascending: 51, 52, 53
	if !snap.Asks[0].Price.Equal(decimal.NewFromInt(51)) {
		t.Fatalf("expected top ask 51, got %v", snap.Asks[0].Price)
	}
}

func TestDuplicateAddIgnored(t *testing.T) {
	b := NewOrderBook()
	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: d("5.0"), RemainingQty: 5, Seq: 1})
	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: d("5.0"), RemainingQty: 5, Seq: 2})

	if b.Size() != 1 {
		t.Fatalf("expected size 1 (dup ignored), got %d", b.Size())
	}
}

func TestFindMatchesSellSide(t *testing.T) {
	b := NewOrderBook()

	b.Add(&OrderEntry{OrderID: "b1", UserID: "u1", Side: model.SideBuy, Price: d("6.0"), RemainingQty: 5, Seq: 1})
	b.Add(&OrderEntry{OrderID: "b2", UserID: "u1", Side: model.SideBuy, Price: d("5.5"), RemainingQty: 5, Seq: 2})

	// Sell at 5.5 -> should match bid at 6.0 first (best bid), then 5.5
	price := d("5.5")
	matches := b.FindMatches(model.SideSell, &price, 8, "u2")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if !matches[0].FillPrice.Equal(d("6.0")) {
		t.Fatalf("expected first fill at 6.0, got %v", matches[0].FillPrice)
	}
	total := 0
	for _, m := range matches {
		total += m.FillQty
	}
	if total != 8 {
		t.Fatalf("expected total 8, got %d", total)
	}
}
