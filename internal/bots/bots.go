// Package bots runs the automated market-maker fleet:
// every bot is a plain User plus a BotProfile, and each eligible tick
// it runs four ordered strategies — accrue, make, take, enter-contest —
// through the same engine/accrual/contest packages a human player's
// actions flow through.
package bots

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/accrual"
	"fantasy-exchange/internal/config"
	"fantasy-exchange/internal/contest"
	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/engine"
	"fantasy-exchange/internal/metrics"
	"fantasy-exchange/internal/model"
)

// Fleet drives every bot's per-tick strategy pass. It holds no
// bot-specific state itself — all of it lives in BotProfile rows —
// so a restart picks up exactly where the fleet left off.
type Fleet struct {
	store   *db.Store
	engine  *engine.Manager
	accrual *accrual.Engine
	contest *contest.Engine
	cfg     config.BotsConfig
	rng     *rand.Rand
}

func New(store *db.Store, mgr *engine.Manager, acc *accrual.Engine, con *contest.Engine, cfg config.BotsConfig) *Fleet {
	return &Fleet{
		store:   store,
		engine:  mgr,
		accrual: acc,
		contest: con,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Tick runs one fleet-wide pass: compute fair value and tier for the
// active roster once, then let every bot past its cooldown act.
func (f *Fleet) Tick(ctx context.Context) {
	players, err := f.store.ListPlayers(ctx, db.PlayerFilter{})
	if err != nil {
		log.Error().Err(err).Msg("bots: list players")
		return
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	openOrders, err := f.store.GetBatchOpenOrders(ctx, ids)
	if err != nil {
		log.Error().Err(err).Msg("bots: batch open orders")
		return
	}
	cold := make(map[string]bool, len(players))
	for _, p := range players {
		cold[p.ID] = len(openOrders[p.ID]) == 0
	}

	fairValues := make(map[string]decimal.Decimal, len(players))
	for _, p := range players {
		stats, err := f.store.RecentPlayerStats(ctx, p.ID, 10)
		if err != nil {
			log.Error().Err(err).Str("player", p.ID).Msg("bots: recent stats")
			continue
		}
		fairValues[p.ID] = fairValue(stats)
	}
	tiers := tiersFromPopulation(fairValues)

	profiles, err := f.store.ListBotProfiles(ctx)
	if err != nil {
		log.Error().Err(err).Msg("bots: list profiles")
		return
	}

	today := time.Now().UTC().Format("2006-01-02")
	for i := range profiles {
		f.runBot(ctx, &profiles[i], today, players, cold, fairValues, tiers)
	}
}

// TriggerOne runs a single bot's strategies immediately, ignoring its
// action cooldown, for admin-triggered manual ticks.
func (f *Fleet) TriggerOne(ctx context.Context, userID string) error {
	profiles, err := f.store.ListBotProfiles(ctx)
	if err != nil {
		return fmt.Errorf("bots: list profiles: %w", err)
	}
	var target *model.BotProfile
	for i := range profiles {
		if profiles[i].UserID == userID {
			target = &profiles[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("bots: no bot profile for user %s", userID)
	}
	target.LastActionAt = time.Time{}

	players, err := f.store.ListPlayers(ctx, db.PlayerFilter{})
	if err != nil {
		return fmt.Errorf("bots: list players: %w", err)
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	openOrders, err := f.store.GetBatchOpenOrders(ctx, ids)
	if err != nil {
		return fmt.Errorf("bots: batch open orders: %w", err)
	}
	cold := make(map[string]bool, len(players))
	for _, p := range players {
		cold[p.ID] = len(openOrders[p.ID]) == 0
	}
	fairValues := make(map[string]decimal.Decimal, len(players))
	for _, p := range players {
		stats, err := f.store.RecentPlayerStats(ctx, p.ID, 10)
		if err != nil {
			continue
		}
		fairValues[p.ID] = fairValue(stats)
	}
	tiers := tiersFromPopulation(fairValues)

	today := time.Now().UTC().Format("2006-01-02")
	f.runBot(ctx, target, today, players, cold, fairValues, tiers)
	return nil
}

func (f *Fleet) runBot(
	ctx context.Context,
	p *model.BotProfile,
	today string,
	players []model.Player,
	cold map[string]bool,
	fairValues map[string]decimal.Decimal,
	tiers map[string]int,
) {
	if p.LastResetDate != today {
		p.OrdersToday = 0
		p.VolumeToday = 0
		p.ContestEntriesToday = 0
		p.LastResetDate = today
	}

	span := p.MaxActionCooldownMs - p.MinActionCooldownMs
	cooldownMs := p.MinActionCooldownMs
	if span > 0 {
		cooldownMs += f.rng.Int63n(span + 1)
	}
	if time.Since(p.LastActionAt) < time.Duration(cooldownMs)*time.Millisecond {
		return
	}

	// Each strategy runs under its own StrategyTimeout budget.
	withTimeout := func(run func(context.Context) error) error {
		stratCtx, cancel := context.WithTimeout(ctx, f.cfg.StrategyTimeout)
		defer cancel()
		return run(stratCtx)
	}

	if err := withTimeout(func(c context.Context) error { return f.accrueStrategy(c, p, players, tiers) }); err != nil {
		log.Warn().Err(err).Str("bot", p.UserID).Msg("bots: accrue strategy failed")
		metrics.RecordBotAction("accrue", "error")
	} else {
		metrics.RecordBotAction("accrue", "ok")
	}

	candidates := f.pickCandidates(players, cold, p)

	if err := withTimeout(func(c context.Context) error { return f.makeStrategy(c, p, candidates, fairValues, tiers) }); err != nil {
		log.Warn().Err(err).Str("bot", p.UserID).Msg("bots: make strategy failed")
		metrics.RecordBotAction("make", "error")
	} else {
		metrics.RecordBotAction("make", "ok")
	}

	if err := withTimeout(func(c context.Context) error { return f.takeStrategy(c, p, candidates, fairValues) }); err != nil {
		log.Warn().Err(err).Str("bot", p.UserID).Msg("bots: take strategy failed")
		metrics.RecordBotAction("take", "error")
	} else {
		metrics.RecordBotAction("take", "ok")
	}

	if err := withTimeout(func(c context.Context) error { return f.enterContestStrategy(c, p, tiers) }); err != nil {
		log.Warn().Err(err).Str("bot", p.UserID).Msg("bots: enter-contest strategy failed")
		metrics.RecordBotAction("enter_contest", "error")
	} else {
		metrics.RecordBotAction("enter_contest", "ok")
	}

	p.LastActionAt = time.Now().UTC()

	tx, err := f.store.BeginTx(ctx)
	if err != nil {
		log.Error().Err(err).Msg("bots: begin tx for counters")
		return
	}
	defer tx.Rollback()
	if err := db.UpdateBotProfileCounters(tx, p); err != nil {
		log.Error().Err(err).Str("bot", p.UserID).Msg("bots: persist counters")
		return
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Msg("bots: commit counters")
	}
}

// pickCandidates selects market-making targets sized proportionally to
// aggressiveness, weighting 70% toward cold players (no open orders)
// to bootstrap liquidity where it's thinnest.
func (f *Fleet) pickCandidates(players []model.Player, cold map[string]bool, p *model.BotProfile) []model.Player {
	aggr, _ := p.Aggressiveness.Float64()
	count := 1 + int(math.Round(aggr*9))
	if count > len(players) {
		count = len(players)
	}
	if count == 0 {
		return nil
	}

	var coldPlayers, warmPlayers []model.Player
	for _, pl := range players {
		if cold[pl.ID] {
			coldPlayers = append(coldPlayers, pl)
		} else {
			warmPlayers = append(warmPlayers, pl)
		}
	}
	f.rng.Shuffle(len(coldPlayers), func(i, j int) { coldPlayers[i], coldPlayers[j] = coldPlayers[j], coldPlayers[i] })
	f.rng.Shuffle(len(warmPlayers), func(i, j int) { warmPlayers[i], warmPlayers[j] = warmPlayers[j], warmPlayers[i] })

	nCold := int(math.Round(0.7 * float64(count)))
	out := make([]model.Player, 0, count)
	out = append(out, takeUpTo(coldPlayers, nCold)...)
	out = append(out, takeUpTo(warmPlayers, count-len(out))...)
	if len(out) < count {
		out = append(out, takeUpTo(coldPlayers[len(out):], count-len(out))...)
	}
	return out
}

func takeUpTo(s []model.Player, n int) []model.Player {
	if n <= 0 || len(s) == 0 {
		return nil
	}
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// accrueStrategy advances the accumulator and occasionally reshuffles
// which players the bot is diversified across. It never calls Claim;
// the reshuffle's SetSplits auto-claims the pending balance first, and
// no scheduler job claims on a bot's behalf.
func (f *Fleet) accrueStrategy(ctx context.Context, p *model.BotProfile, players []model.Player, tiers map[string]int) error {
	if err := f.accrual.Accrue(ctx, p.UserID); err != nil {
		return err
	}
	if f.rng.Float64() >= 0.10 || len(players) == 0 {
		return nil
	}

	byTier := make(map[int][]model.Player)
	for _, pl := range players {
		t := tiers[pl.ID]
		byTier[t] = append(byTier[t], pl)
	}
	var picks []string
	for tier := 1; tier <= 5 && len(picks) < 5; tier++ {
		bucket := byTier[tier]
		if len(bucket) == 0 {
			continue
		}
		picks = append(picks, bucket[f.rng.Intn(len(bucket))].ID)
	}
	if len(picks) == 0 {
		return nil
	}
	return f.accrual.SetSplits(ctx, p.UserID, picks)
}

// makeStrategy cancels the bot's own stale resting orders, then quotes
// two-sided limit orders for this tick's candidates around each player's
// last trade price, or around fair value when the player has never traded.
func (f *Fleet) makeStrategy(ctx context.Context, p *model.BotProfile, candidates []model.Player, fairValues map[string]decimal.Decimal, tiers map[string]int) error {
	staleBefore := time.Now().Add(-15 * time.Minute)
	own, err := f.store.GetUserOrders(ctx, p.UserID, 200)
	if err != nil {
		return err
	}
	for _, o := range own {
		if o.Status.Terminal() || !o.CreatedAt.Before(staleBefore) {
			continue
		}
		eng, err := f.engine.EngineFor(ctx, o.PlayerID)
		if err != nil {
			continue
		}
		_ = eng.CancelOrder(o.ID, p.UserID)
	}

	aggr, _ := p.Aggressiveness.Float64()
	crossProb := 0.20 + 0.20*aggr
	size := p.MinOrderSize + int(aggr*float64(p.MaxOrderSize-p.MinOrderSize))
	if size < 1 {
		size = 1
	}

	for _, pl := range candidates {
		if p.OrdersToday+2 > p.MaxDailyOrders || p.VolumeToday+2*size > p.MaxDailyVolume {
			break
		}
		base := fairValues[pl.ID]
		if pl.LastTradePrice != nil {
			base = *pl.LastTradePrice
		}
		if base.IsZero() {
			continue
		}
		tier := tiers[pl.ID]
		if tier == 0 {
			tier = 3
		}

		tierMultiplier := decimal.NewFromFloat(0.6 + 0.2*float64(tier))
		volumeDampening := decimal.NewFromFloat(1.0 / (1.0 + float64(pl.Volume24h)/1000.0))
		dynamicSpread := p.SpreadPercent.Mul(tierMultiplier).Mul(volumeDampening)
		halfSpread := base.Mul(dynamicSpread).Div(decimal.NewFromInt(200))

		snap := f.engine.Snapshot(pl.ID, 1)

		bidPrice := base.Sub(halfSpread)
		if f.rng.Float64() < crossProb && len(snap.Asks) > 0 {
			bidPrice = snap.Asks[0].Price
		}
		askPrice := base.Add(halfSpread)
		if f.rng.Float64() < crossProb && len(snap.Bids) > 0 {
			askPrice = snap.Bids[0].Price
		}
		if bidPrice.IsNegative() {
			bidPrice = decimal.NewFromFloat(0.01)
		}

		eng, err := f.engine.EngineFor(ctx, pl.ID)
		if err != nil {
			continue
		}
		res := eng.PlaceOrder(p.UserID, model.PlaceOrderReq{Side: model.SideBuy, OrderType: model.TypeLimit, Quantity: size, LimitPrice: &bidPrice})
		f.recordOrder(p, res)
		res = eng.PlaceOrder(p.UserID, model.PlaceOrderReq{Side: model.SideSell, OrderType: model.TypeLimit, Quantity: size, LimitPrice: &askPrice})
		f.recordOrder(p, res)
	}
	return nil
}

// takeStrategy scans resting quotes for mispricing against fair value
// and crosses the spread with a market order when it finds one — the
// "direct fill" the spec describes is just the matching engine's own
// market-order path, reused rather than reimplemented.
func (f *Fleet) takeStrategy(ctx context.Context, p *model.BotProfile, candidates []model.Player, fairValues map[string]decimal.Decimal) error {
	threshold := p.SpreadPercent.Div(decimal.NewFromInt(100))
	size := p.MinOrderSize
	if size < 1 {
		size = 1
	}

	for _, pl := range candidates {
		if p.OrdersToday+1 > p.MaxDailyOrders || p.VolumeToday+size > p.MaxDailyVolume {
			break
		}
		fv, ok := fairValues[pl.ID]
		if !ok || fv.IsZero() {
			continue
		}
		snap := f.engine.Snapshot(pl.ID, 1)
		eng, err := f.engine.EngineFor(ctx, pl.ID)
		if err != nil {
			continue
		}

		if len(snap.Asks) > 0 {
			ceiling := fv.Mul(decimal.NewFromInt(1).Add(threshold))
			if snap.Asks[0].Price.LessThanOrEqual(ceiling) {
				res := eng.PlaceOrder(p.UserID, model.PlaceOrderReq{Side: model.SideBuy, OrderType: model.TypeMarket, Quantity: size})
				f.recordOrder(p, res)
				continue
			}
		}
		if len(snap.Bids) > 0 {
			floor := fv.Mul(decimal.NewFromInt(1).Sub(threshold))
			if snap.Bids[0].Price.GreaterThanOrEqual(floor) {
				res := eng.PlaceOrder(p.UserID, model.PlaceOrderReq{Side: model.SideSell, OrderType: model.TypeMarket, Quantity: size})
				f.recordOrder(p, res)
			}
		}
	}
	return nil
}

func (f *Fleet) recordOrder(p *model.BotProfile, res model.PlaceOrderResult) {
	if res.Order.ID == "" {
		return
	}
	p.OrdersToday++
	p.VolumeToday += res.FilledQuantity
}

// enterContestStrategy builds a greedy-by-tier lineup from the bot's
// current holdings and enters the first open contest with room, per
// the bot's configured daily caps.
func (f *Fleet) enterContestStrategy(ctx context.Context, p *model.BotProfile, tiers map[string]int) error {
	aggr, _ := p.Aggressiveness.Float64()
	if f.rng.Float64() >= aggr {
		return nil
	}
	if p.ContestEntriesToday >= p.MaxContestEntriesPerDay {
		return nil
	}

	contests, err := f.store.ListContestsByStatus(ctx, model.ContestOpen)
	if err != nil {
		return err
	}
	if len(contests) == 0 {
		return nil
	}

	holdings, err := f.store.GetUserHoldingsWithPlayers(ctx, p.UserID)
	if err != nil {
		return err
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		ti, tj := tiers[holdings[i].PlayerID], tiers[holdings[j].PlayerID]
		if ti == 0 {
			ti = 3
		}
		if tj == 0 {
			tj = 3
		}
		return ti > tj
	})

	lineup := make([]model.LineupEntryReq, 0, 7)
	teamCount := make(map[string]int)
	total := 0
	for _, h := range holdings {
		if len(lineup) >= 7 {
			break
		}
		if teamCount[h.Player.Team] >= 4 {
			continue
		}
		shares := int(float64(h.Quantity) * 0.6)
		if shares > 200 {
			shares = 200
		}
		if shares <= 0 {
			continue
		}
		lineup = append(lineup, model.LineupEntryReq{PlayerID: h.PlayerID, SharesEntered: shares})
		teamCount[h.Player.Team]++
		total += shares
	}
	if total < 10 {
		return nil
	}

	for _, c := range contests {
		if c.EntryCount >= 10 {
			continue
		}
		if _, err := f.contest.Enter(ctx, c.ID, p.UserID, model.EnterContestReq{Lineup: lineup}); err != nil {
			continue
		}
		p.ContestEntriesToday++
		return nil
	}
	return nil
}
