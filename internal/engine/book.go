package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/model"
)

// priceScale scales decimal prices (stored as NUMERIC(18,4)) into an
// int64 key so the book can keep sorted-int-slice price levels
// instead of needing decimal.Decimal to be map-key-comparable.
const priceScale = 4

func ticksOf(p decimal.Decimal) int64 {
	return p.Shift(priceScale).Round(0).IntPart()
}

func priceOfTicks(t int64) decimal.Decimal {
	return decimal.New(t, -priceScale)
}

// OrderEntry is a resting order in the book.
type OrderEntry struct {
	OrderID      string
	UserID       string
	Side         model.OrderSide
	Price        decimal.Decimal
	RemainingQty int
	Seq          int64
}

// Level is a price level with a FIFO queue of orders.
type Level struct {
	Ticks  int64
	Orders []*OrderEntry
}

func (l *Level) TotalQty() int {
	t := 0
	for _, o := range l.Orders {
		t += o.RemainingQty
	}
	return t
}

// Match represents a potential fill against a resting order.
type Match struct {
	Entry     *OrderEntry
	FillQty   int
	FillPrice decimal.Decimal
}

// OrderBook is an in-memory limit order book for a single player.
type OrderBook struct {
	bids     map[int64]*Level // ticks -> Level, descending priority
	asks     map[int64]*Level
	bidTicks []int64 // sorted descending
	askTicks []int64 // sorted ascending
	index    map[string]*OrderEntry
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:  make(map[int64]*Level),
		asks:  make(map[int64]*Level),
		index: make(map[string]*OrderEntry),
	}
}

// ── Queries ──────────────────────────────────────────

func (b *OrderBook) BestBid() *decimal.Decimal {
	if len(b.bidTicks) == 0 {
		return nil
	}
	p := priceOfTicks(b.bidTicks[0])
	return &p
}

func (b *OrderBook) BestAsk() *decimal.Decimal {
	if len(b.askTicks) == 0 {
		return nil
	}
	p := priceOfTicks(b.askTicks[0])
	return &p
}

func (b *OrderBook) Size() int { return len(b.index) }

func (b *OrderBook) Snapshot(depth int) model.BookSnapshot {
	var bids, asks []model.BookLevel
	for i := 0; i < len(b.bidTicks) && i < depth; i++ {
		t := b.bidTicks[i]
		bids = append(bids, model.BookLevel{Price: priceOfTicks(t), Qty: b.bids[t].TotalQty()})
	}
	for i := 0; i < len(b.askTicks) && i < depth; i++ {
		t := b.askTicks[i]
		asks = append(asks, model.BookLevel{Price: priceOfTicks(t), Qty: b.asks[t].TotalQty()})
	}
	if bids == nil {
		bids = []model.BookLevel{}
	}
	if asks == nil {
		asks = []model.BookLevel{}
	}
	return model.BookSnapshot{Bids: bids, Asks: asks}
}

// ── Add / Remove ─────────────────────────────────────

func (b *OrderBook) Add(e *OrderEntry) {
	if _, exists := b.index[e.OrderID]; exists {
		return
	}
	b.index[e.OrderID] = e
	if e.Side == model.SideBuy {
		b.addToSide(b.bids, &b.bidTicks, e, false) // desc
	} else {
		b.addToSide(b.asks, &b.askTicks, e, true) // asc
	}
}

func (b *OrderBook) Remove(orderID string) *OrderEntry {
	e, ok := b.index[orderID]
	if !ok {
		return nil
	}
	delete(b.index, orderID)
	if e.Side == model.SideBuy {
		b.removeFromSide(b.bids, &b.bidTicks, e)
	} else {
		b.removeFromSide(b.asks, &b.askTicks, e)
	}
	return e
}

// ── Matching ─────────────────────────────────────────

// FindMatches returns potential matches without mutating the book.
// limitPrice nil means a market order: walk the whole opposite side.
func (b *OrderBook) FindMatches(side model.OrderSide, limitPrice *decimal.Decimal, maxQty int, excludeUserID string) []Match {
	var limitTicks *int64
	if limitPrice != nil {
		t := ticksOf(*limitPrice)
		limitTicks = &t
	}

	var matches []Match
	rem := maxQty

	if side == model.SideBuy {
		for _, askTick := range b.askTicks {
			if rem <= 0 {
				break
			}
			if limitTicks != nil && askTick > *limitTicks {
				break
			}
			level := b.asks[askTick]
			for _, entry := range level.Orders {
				if rem <= 0 {
					break
				}
				if entry.UserID == excludeUserID {
					continue
				}
				fq := min(rem, entry.RemainingQty)
				matches = append(matches, Match{Entry: entry, FillQty: fq, FillPrice: priceOfTicks(askTick)})
				rem -= fq
			}
		}
	} else {
		for _, bidTick := range b.bidTicks {
			if rem <= 0 {
				break
			}
			if limitTicks != nil && bidTick < *limitTicks {
				break
			}
			level := b.bids[bidTick]
			for _, entry := range level.Orders {
				if rem <= 0 {
					break
				}
				if entry.UserID == excludeUserID {
					continue
				}
				fq := min(rem, entry.RemainingQty)
				matches = append(matches, Match{Entry: entry, FillQty: fq, FillPrice: priceOfTicks(bidTick)})
				rem -= fq
			}
		}
	}
	return matches
}

// ApplyFill reduces the remaining qty of a resting order, removing it
// from the book once fully filled. Returns the remaining qty.
func (b *OrderBook) ApplyFill(orderID string, fillQty int) int {
	e := b.index[orderID]
	if e == nil {
		return 0
	}
	e.RemainingQty -= fillQty
	if e.RemainingQty <= 0 {
		b.Remove(orderID)
		return 0
	}
	return e.RemainingQty
}

// ── Internals ────────────────────────────────────────

func (b *OrderBook) addToSide(m map[int64]*Level, ticks *[]int64, e *OrderEntry, asc bool) {
	t := ticksOf(e.Price)
	level, ok := m[t]
	if !ok {
		level = &Level{Ticks: t}
		m[t] = level
		*ticks = append(*ticks, t)
		if asc {
			sort.Slice(*ticks, func(i, j int) bool { return (*ticks)[i] < (*ticks)[j] })
		} else {
			sort.Slice(*ticks, func(i, j int) bool { return (*ticks)[i] > (*ticks)[j] })
		}
	}
	level.Orders = append(level.Orders, e)
}

func (b *OrderBook) removeFromSide(m map[int64]*Level, ticks *[]int64, e *OrderEntry) {
	t := ticksOf(e.Price)
	level, ok := m[t]
	if !ok {
		return
	}
	for i, o := range level.Orders {
		if o.OrderID == e.OrderID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		delete(m, t)
		for i, p := range *ticks {
			if p == t {
				*ticks = append((*ticks)[:i], (*ticks)[i+1:]...)
				break
			}
		}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
