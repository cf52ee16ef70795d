package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/lockmgr"
	"fantasy-exchange/internal/metrics"
	"fantasy-exchange/internal/model"
)

// PublishFunc broadcasts a WS message scoped to a player's room.
type PublishFunc func(playerID, msgType string, data any)

// ── Manager ──────────────────────────────────────────

// Manager owns one PlayerEngine per actively-traded player, starting
// them lazily and routing order placement/cancellation to the right
// engine goroutine.
type Manager struct {
	mu      sync.RWMutex
	engines map[string]*PlayerEngine
	store   *db.Store
	publish PublishFunc
}

func NewManager(store *db.Store, pub PublishFunc) *Manager {
	return &Manager{
		engines: make(map[string]*PlayerEngine),
		store:   store,
		publish: pub,
	}
}

// Boot restores an in-memory book for every active player with at least
// one resting order, in a single batched query rather than one per player.
func (m *Manager) Boot(ctx context.Context) error {
	// ListPlayers caps a page at 200 rows, so walk the roster page by page.
	var players []model.Player
	for offset := 0; ; offset += 200 {
		page, err := m.store.ListPlayers(ctx, db.PlayerFilter{Limit: 200, Offset: offset})
		if err != nil {
			return err
		}
		players = append(players, page...)
		if len(page) < 200 {
			break
		}
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	byPlayer, err := m.store.GetBatchOpenOrders(ctx, ids)
	if err != nil {
		return err
	}
	for playerID, orders := range byPlayer {
		if _, err := m.startEngine(ctx, playerID, orders); err != nil {
			return fmt.Errorf("boot player %s: %w", playerID, err)
		}
	}
	log.Info().Int("engines", len(byPlayer)).Msg("engine manager booted")
	return nil
}

// EngineFor returns the engine for playerID, starting it from the
// ledger's resting orders if this is the first touch.
func (m *Manager) EngineFor(ctx context.Context, playerID string) (*PlayerEngine, error) {
	m.mu.RLock()
	eng, ok := m.engines[playerID]
	m.mu.RUnlock()
	if ok {
		return eng, nil
	}

	orders, err := m.store.GetOpenOrders(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return m.startEngine(ctx, playerID, orders)
}

func (m *Manager) startEngine(ctx context.Context, playerID string, orders []model.Order) (*PlayerEngine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eng, ok := m.engines[playerID]; ok {
		return eng, nil
	}

	book := NewOrderBook()
	for i := range orders {
		o := &orders[i]
		if o.LimitPrice == nil {
			continue
		}
		book.Add(&OrderEntry{
			OrderID:      o.ID,
			UserID:       o.UserID,
			Side:         o.Side,
			Price:        *o.LimitPrice,
			RemainingQty: o.Quantity - o.FilledQuantity,
			Seq:          o.Seq,
		})
	}
	seq, err := m.store.MaxSeq(ctx, playerID)
	if err != nil {
		return nil, err
	}
	eng := &PlayerEngine{
		playerID: playerID,
		book:     book,
		seq:      seq,
		cmdCh:    make(chan command, 64),
		store:    m.store,
		publish:  m.publish,
	}
	m.engines[playerID] = eng
	go eng.run(context.Background())
	return eng, nil
}

func (m *Manager) Snapshot(playerID string, depth int) model.BookSnapshot {
	m.mu.RLock()
	eng, ok := m.engines[playerID]
	m.mu.RUnlock()
	if !ok {
		return model.BookSnapshot{Bids: []model.BookLevel{}, Asks: []model.BookLevel{}}
	}
	return eng.book.Snapshot(depth)
}

// BatchSnapshot returns every playerID's book snapshot under a single
// manager lock acquisition, the in-memory analogue of the store's
// batch reads: a list view touching K players does one map scan
// instead of K separate lock/unlock round trips.
func (m *Manager) BatchSnapshot(playerIDs []string, depth int) map[string]model.BookSnapshot {
	out := make(map[string]model.BookSnapshot, len(playerIDs))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range playerIDs {
		eng, ok := m.engines[id]
		if !ok {
			out[id] = model.BookSnapshot{Bids: []model.BookLevel{}, Asks: []model.BookLevel{}}
			continue
		}
		out[id] = eng.book.Snapshot(depth)
	}
	return out
}

// ── PlayerEngine ─────────────────────────────────────

// PlayerEngine serializes every order-book mutation for one player
// through a single goroutine, so concurrent placements never race on
// the same in-memory book.
type PlayerEngine struct {
	playerID string
	book     *OrderBook
	seq      int64
	cmdCh    chan command
	store    *db.Store
	publish  PublishFunc
}

func (e *PlayerEngine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-e.cmdCh:
			cmd.exec(e)
		}
	}
}

func (e *PlayerEngine) nextSeq() int64 {
	e.seq++
	return e.seq
}

type command interface{ exec(e *PlayerEngine) }

type placeCmd struct {
	userID string
	req    model.PlaceOrderReq
	ch     chan<- model.PlaceOrderResult
}

type cancelCmd struct {
	orderID string
	userID  string
	ch      chan<- error
}

func (c placeCmd) exec(e *PlayerEngine)  { c.ch <- e.processOrder(c.userID, c.req) }
func (c cancelCmd) exec(e *PlayerEngine) { c.ch <- e.cancelOrder(c.orderID, c.userID) }

func (e *PlayerEngine) PlaceOrder(userID string, req model.PlaceOrderReq) model.PlaceOrderResult {
	ch := make(chan model.PlaceOrderResult, 1)
	e.cmdCh <- placeCmd{userID: userID, req: req, ch: ch}
	return <-ch
}

func (e *PlayerEngine) CancelOrder(orderID, userID string) error {
	ch := make(chan error, 1)
	e.cmdCh <- cancelCmd{orderID: orderID, userID: userID, ch: ch}
	return <-ch
}

// ── Place order ──────────────────────────────────────

func rejectResult(req model.PlaceOrderReq, reason string) model.PlaceOrderResult {
	return model.PlaceOrderResult{
		RequestedQuantity: req.Quantity,
		Order:             model.Order{Status: model.StatusRejected, Side: req.Side, OrderType: req.OrderType, Quantity: req.Quantity, LimitPrice: req.LimitPrice},
		Reason:            reason,
	}
}

// processOrder settles the incoming order and every match it produces
// inside one transaction. This is stricter than the minimum required
// guarantee of "a failed fill rolls back only that fill" — an all-or-
// nothing commit still preserves cash/share conservation, and the
// in-memory book is only mutated after the transaction commits, so a
// rollback never desyncs book state from the ledger. A limit order's
// unmatched quantity rests in the book for the next crossing order; a
// market order's unmatched quantity is cancelled.
func (e *PlayerEngine) processOrder(userID string, req model.PlaceOrderReq) model.PlaceOrderResult {
	if req.Quantity < 1 {
		return rejectResult(req, "quantity must be >= 1")
	}
	if req.OrderType == model.TypeLimit && (req.LimitPrice == nil || req.LimitPrice.Sign() <= 0) {
		return rejectResult(req, "limit price must be positive")
	}

	matches := e.book.FindMatches(req.Side, req.LimitPrice, req.Quantity, userID)
	matchedQty := 0
	for _, m := range matches {
		matchedQty += m.FillQty
	}

	if req.OrderType == model.TypeMarket && matchedQty == 0 {
		return rejectResult(req, "no liquidity")
	}

	remainingQty := req.Quantity - matchedQty
	restingQty := 0
	cancelledQty := 0
	if req.OrderType == model.TypeLimit {
		restingQty = remainingQty
	} else {
		cancelledQty = remainingQty
	}

	var status model.OrderStatus
	switch {
	case matchedQty == req.Quantity:
		status = model.StatusFilled
	case matchedQty > 0 && req.OrderType == model.TypeLimit:
		status = model.StatusPartial
	case matchedQty > 0 && req.OrderType == model.TypeMarket:
		status = model.StatusCancelled
	default:
		status = model.StatusOpen
	}

	orderID := uuid.New().String()
	seq := e.nextSeq()

	ctx := context.Background()
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return rejectResult(req, "internal error")
	}
	defer tx.Rollback()

	taker, err := e.store.GetUserForUpdate(tx, userID)
	if err != nil {
		return rejectResult(req, "user not found")
	}

	lockedAmount := decimal.Zero
	lockedShares := 0

	if req.Side == model.SideBuy {
		matchedNotional := decimal.Zero
		for _, m := range matches {
			matchedNotional = matchedNotional.Add(m.FillPrice.Mul(decimal.NewFromInt(int64(m.FillQty))))
		}
		reserve := matchedNotional
		if restingQty > 0 {
			reserve = reserve.Add(req.LimitPrice.Mul(decimal.NewFromInt(int64(restingQty))))
		}
		if err := lockmgr.ReserveCash(tx, taker, reserve, model.RefOrder, orderID); err != nil {
			return rejectResult(req, err.Error())
		}
		lockedAmount = reserve
	} else {
		holding, err := db.GetOrCreateHoldingForUpdate(tx, userID, e.playerID)
		if err != nil {
			return rejectResult(req, "holding lookup failed")
		}
		reserve := matchedQty + restingQty
		if err := lockmgr.ReserveShares(tx, holding, reserve, model.RefOrder, orderID); err != nil {
			return rejectResult(req, err.Error())
		}
		lockedShares = reserve
	}

	order := &model.Order{
		ID: orderID, UserID: userID, PlayerID: e.playerID,
		Side: req.Side, OrderType: req.OrderType, Quantity: req.Quantity,
		FilledQuantity: 0, LimitPrice: req.LimitPrice,
		LockedAmount: lockedAmount, LockedShares: lockedShares,
		Status: model.StatusOpen, Seq: seq,
	}
	if err := db.InsertOrder(tx, order); err != nil {
		return rejectResult(req, "order insert failed")
	}

	var trades []model.Trade
	avgFillNotional := decimal.Zero

	for _, m := range matches {
		tradeSeq := e.nextSeq()
		fillQty := m.FillQty
		fillPrice := m.FillPrice
		amount := fillPrice.Mul(decimal.NewFromInt(int64(fillQty)))
		avgFillNotional = avgFillNotional.Add(amount)

		maker := m.Entry

		makerOrder, err := db.GetOrderForUpdate(tx, maker.OrderID)
		if err != nil {
			return rejectResult(req, "maker order lookup failed")
		}
		makerOrder.FilledQuantity += fillQty
		makerRemaining := makerOrder.Quantity - makerOrder.FilledQuantity
		makerStatus := model.StatusPartial
		if makerRemaining == 0 {
			makerStatus = model.StatusFilled
		}
		makerLockedAmount := decimal.Zero
		makerLockedShares := 0
		if maker.Side == model.SideBuy {
			makerLockedAmount = maker.Price.Mul(decimal.NewFromInt(int64(makerRemaining)))
			if err := lockmgr.AdjustLockAmount(tx, model.RefOrder, maker.OrderID, makerLockedAmount); err != nil {
				return rejectResult(req, "maker lock adjust failed")
			}
		} else {
			makerLockedShares = makerRemaining
			if err := lockmgr.AdjustLockQuantity(tx, model.RefOrder, maker.OrderID, makerLockedShares); err != nil {
				return rejectResult(req, "maker lock adjust failed")
			}
		}
		if err := db.UpdateOrderFill(tx, maker.OrderID, makerOrder.FilledQuantity, makerLockedAmount, makerLockedShares, makerStatus); err != nil {
			return rejectResult(req, "maker update failed")
		}

		var buyerID, sellerID, buyOrderID, sellOrderID string
		if req.Side == model.SideBuy {
			buyerID, sellerID = userID, maker.UserID
			buyOrderID, sellOrderID = orderID, maker.OrderID
		} else {
			buyerID, sellerID = maker.UserID, userID
			buyOrderID, sellOrderID = maker.OrderID, orderID
		}

		if err := db.AddUserBalance(tx, buyerID, amount.Neg()); err != nil {
			return rejectResult(req, "buyer debit failed")
		}
		if err := db.AddUserBalance(tx, sellerID, amount); err != nil {
			return rejectResult(req, "seller credit failed")
		}

		buyerHolding, err := db.GetOrCreateHoldingForUpdate(tx, buyerID, e.playerID)
		if err != nil {
			return rejectResult(req, "buyer holding failed")
		}
		buyerHolding.Quantity += fillQty
		buyerHolding.TotalCostBasis = buyerHolding.TotalCostBasis.Add(amount)
		if buyerHolding.Quantity > 0 {
			buyerHolding.AvgCostBasis = buyerHolding.TotalCostBasis.Div(decimal.NewFromInt(int64(buyerHolding.Quantity)))
		}
		if err := db.UpdateHolding(tx, buyerHolding); err != nil {
			return rejectResult(req, "buyer holding update failed")
		}

		sellerHolding, err := db.GetOrCreateHoldingForUpdate(tx, sellerID, e.playerID)
		if err != nil {
			return rejectResult(req, "seller holding failed")
		}
		sellerHolding.Quantity -= fillQty
		if sellerHolding.Quantity <= 0 {
			sellerHolding.Quantity = 0
			sellerHolding.TotalCostBasis = decimal.Zero
			sellerHolding.AvgCostBasis = decimal.Zero
		} else {
			sellerHolding.TotalCostBasis = sellerHolding.AvgCostBasis.Mul(decimal.NewFromInt(int64(sellerHolding.Quantity)))
		}
		if err := db.UpdateHolding(tx, sellerHolding); err != nil {
			return rejectResult(req, "seller holding update failed")
		}

		if err := db.UpdatePlayerLastTrade(tx, e.playerID, fillPrice, int64(fillQty)); err != nil {
			return rejectResult(req, "player ticker update failed")
		}

		trade := &model.Trade{
			PlayerID: e.playerID, BuyerID: buyerID, SellerID: sellerID,
			BuyOrderID: buyOrderID, SellOrderID: sellOrderID,
			Quantity: fillQty, Price: fillPrice, Seq: tradeSeq,
		}
		if err := db.InsertTrade(tx, trade); err != nil {
			return rejectResult(req, "trade insert failed")
		}
		trades = append(trades, *trade)
	}

	if err := db.UpdateOrderFill(tx, orderID, matchedQty, lockedAmount, lockedShares, status); err != nil {
		return rejectResult(req, "order finalize failed")
	}
	order.FilledQuantity = matchedQty
	order.Status = status
	order.LockedAmount = lockedAmount
	order.LockedShares = lockedShares

	if err := tx.Commit(); err != nil {
		return rejectResult(req, "commit failed")
	}

	metrics.OrdersPlaced.WithLabelValues(string(req.Side), string(req.OrderType)).Inc()
	for _, t := range trades {
		metrics.TradesExecuted.Inc()
		metrics.TradeVolume.Add(float64(t.Quantity))
	}

	for _, m := range matches {
		e.book.ApplyFill(m.Entry.OrderID, m.FillQty)
	}

	if restingQty > 0 && (status == model.StatusOpen || status == model.StatusPartial) {
		e.book.Add(&OrderEntry{
			OrderID: orderID, UserID: userID, Side: req.Side,
			Price:        priceOrZero(req.LimitPrice),
			RemainingQty: restingQty, Seq: seq,
		})
	}

	if e.publish != nil {
		snap := e.book.Snapshot(20)
		e.publish(e.playerID, "orderBook", snap)
		for _, t := range trades {
			e.publish(e.playerID, "trade", t)
		}
	}

	avgFillPrice := decimal.Zero
	if matchedQty > 0 {
		avgFillPrice = avgFillNotional.Div(decimal.NewFromInt(int64(matchedQty)))
	}

	return model.PlaceOrderResult{
		Order: *order, Trades: trades,
		RequestedQuantity: req.Quantity, FilledQuantity: matchedQty,
		CancelledQuantity: cancelledQty, AvgFillPrice: avgFillPrice, TotalCost: avgFillNotional,
	}
}

func priceOrZero(p *decimal.Decimal) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return *p
}

// ── Cancel ───────────────────────────────────────────

func (e *PlayerEngine) cancelOrder(orderID, userID string) error {
	ctx := context.Background()
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order, err := db.GetOrderForUpdate(tx, orderID)
	if err != nil {
		return fmt.Errorf("order not found")
	}
	if order.UserID != userID {
		return fmt.Errorf("not your order")
	}
	if order.Status.Terminal() {
		return fmt.Errorf("order not cancelable")
	}

	if err := db.UpdateOrderFill(tx, orderID, order.FilledQuantity, decimal.Zero, 0, model.StatusCancelled); err != nil {
		return err
	}
	if order.Side == model.SideBuy {
		if _, err := lockmgr.ReleaseCashByReference(tx, model.RefOrder, orderID); err != nil {
			return err
		}
	} else {
		if _, err := lockmgr.ReleaseSharesByReference(tx, model.RefOrder, orderID); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.book.Remove(orderID)

	if e.publish != nil {
		e.publish(e.playerID, "orderBook", e.book.Snapshot(20))
	}
	return nil
}
