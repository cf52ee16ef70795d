// Package contest implements the lineup-based contest lifecycle:
// enter/edit burn and credit shares against a user's holdings,
// scoring distributes fantasy points proportionally across every
// entry holding a player, and settlement pays the top half of the
// field from the pooled entry fees.
package contest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/lockmgr"
	"fantasy-exchange/internal/metrics"
	"fantasy-exchange/internal/model"
)

var ErrLineupEmpty = errors.New("contest: lineup must not be empty")
var ErrNotOpen = errors.New("contest: not open for entry")
var ErrForbidden = errors.New("contest: entry does not belong to user")

// ledgerScale matches users.balance's NUMERIC(18,4) column: every payout
// is computed in these 0.0001 units so settlement can floor-divide
// without ever crediting more than the pool holds.
const ledgerScale = 4

type Engine struct {
	store *db.Store
}

func New(store *db.Store) *Engine {
	return &Engine{store: store}
}

// Enter burns shares from the user's holdings into a new contest
// entry. Every player must clear availableShares; the whole lineup is
// rejected if any player falls short.
func (e *Engine) Enter(ctx context.Context, contestID, userID string, req model.EnterContestReq) (*model.ContestEntry, error) {
	if len(req.Lineup) == 0 {
		return nil, ErrLineupEmpty
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	contest, err := db.GetContestForUpdate(tx, contestID)
	if err != nil {
		return nil, fmt.Errorf("contest: load contest: %w", err)
	}
	if contest.Status != model.ContestOpen {
		return nil, ErrNotOpen
	}
	if _, err := e.store.GetUserForUpdate(tx, userID); err != nil {
		return nil, fmt.Errorf("contest: load user: %w", err)
	}

	entry := &model.ContestEntry{ContestID: contestID, UserID: userID}
	if err := db.InsertContestEntry(tx, entry); err != nil {
		return nil, fmt.Errorf("contest: insert entry: %w", err)
	}

	total := 0
	for _, item := range req.Lineup {
		if item.SharesEntered <= 0 {
			return nil, fmt.Errorf("contest: %s: shares entered must be positive", item.PlayerID)
		}
		holding, err := db.GetOrCreateHoldingForUpdate(tx, userID, item.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("contest: load holding: %w", err)
		}
		avail, err := lockmgr.AvailableShares(tx, holding)
		if err != nil {
			return nil, err
		}
		if avail < item.SharesEntered {
			return nil, fmt.Errorf("%w: %s", lockmgr.ErrInsufficientShares, item.PlayerID)
		}
		if err := burnShares(holding, item.SharesEntered); err != nil {
			return nil, err
		}
		if err := db.UpdateHolding(tx, holding); err != nil {
			return nil, err
		}
		if err := db.UpsertLineupShares(tx, entry.ID, item.PlayerID, item.SharesEntered); err != nil {
			return nil, err
		}
		total += item.SharesEntered
	}

	if err := db.UpdateContestAggregate(tx, contestID, 1, total, contest.EntryFee); err != nil {
		return nil, fmt.Errorf("contest: update aggregate: %w", err)
	}
	entry.TotalSharesEntered = total

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Edit replaces an open entry's lineup, crediting back reduced
// positions and burning additional shares for increased ones.
func (e *Engine) Edit(ctx context.Context, entryID, userID string, req model.EnterContestReq) error {
	if len(req.Lineup) == 0 {
		return ErrLineupEmpty
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entry, err := db.GetContestEntryForUpdate(tx, entryID)
	if err != nil {
		return fmt.Errorf("contest: load entry: %w", err)
	}
	if entry.UserID != userID {
		return ErrForbidden
	}
	contest, err := db.GetContestForUpdate(tx, entry.ContestID)
	if err != nil {
		return fmt.Errorf("contest: load contest: %w", err)
	}
	if contest.Status != model.ContestOpen {
		return ErrNotOpen
	}
	if _, err := e.store.GetUserForUpdate(tx, userID); err != nil {
		return fmt.Errorf("contest: load user: %w", err)
	}

	current, err := db.GetContestLineup(tx, entryID)
	if err != nil {
		return fmt.Errorf("contest: load current lineup: %w", err)
	}
	oldByPlayer := make(map[string]int, len(current))
	for _, l := range current {
		oldByPlayer[l.PlayerID] = l.SharesEntered
	}
	newByPlayer := make(map[string]int, len(req.Lineup))
	for _, item := range req.Lineup {
		if item.SharesEntered < 0 {
			return fmt.Errorf("contest: %s: shares entered cannot be negative", item.PlayerID)
		}
		newByPlayer[item.PlayerID] += item.SharesEntered
	}

	netDelta := 0
	for player, newQty := range newByPlayer {
		oldQty := oldByPlayer[player]
		if err := applyLineupDelta(tx, userID, player, oldQty, newQty); err != nil {
			return err
		}
		if err := db.UpsertLineupShares(tx, entryID, player, newQty); err != nil {
			return err
		}
		netDelta += newQty - oldQty
	}
	for player, oldQty := range oldByPlayer {
		if _, stillPresent := newByPlayer[player]; stillPresent {
			continue
		}
		if err := applyLineupDelta(tx, userID, player, oldQty, 0); err != nil {
			return err
		}
		if err := db.UpsertLineupShares(tx, entryID, player, 0); err != nil {
			return err
		}
		netDelta -= oldQty
	}

	if err := db.UpdateContestEntryShares(tx, entryID, netDelta); err != nil {
		return err
	}
	if err := db.UpdateContestAggregate(tx, contest.ID, 0, netDelta, decimal.Zero); err != nil {
		return err
	}
	return tx.Commit()
}

// applyLineupDelta burns additional shares (newQty > oldQty) or
// credits them back (newQty < oldQty) for a single player.
func applyLineupDelta(tx *sql.Tx, userID, playerID string, oldQty, newQty int) error {
	delta := newQty - oldQty
	if delta == 0 {
		return nil
	}
	holding, err := db.GetOrCreateHoldingForUpdate(tx, userID, playerID)
	if err != nil {
		return fmt.Errorf("contest: load holding: %w", err)
	}
	if delta > 0 {
		avail, err := lockmgr.AvailableShares(tx, holding)
		if err != nil {
			return err
		}
		if avail < delta {
			return fmt.Errorf("%w: %s", lockmgr.ErrInsufficientShares, playerID)
		}
	}
	if err := burnShares(holding, delta); err != nil {
		return err
	}
	return db.UpdateHolding(tx, holding)
}

// burnShares decrements (delta > 0) or credits back (delta < 0) a
// holding's quantity while keeping average cost basis unchanged —
// burning or crediting contest shares is not a trade.
func burnShares(h *model.Holding, delta int) error {
	newQty := h.Quantity - delta
	if newQty < 0 {
		return fmt.Errorf("contest: holding would go negative")
	}
	if newQty == 0 {
		h.Quantity = 0
		h.AvgCostBasis = decimal.Zero
		h.TotalCostBasis = decimal.Zero
		return nil
	}
	h.Quantity = newQty
	h.TotalCostBasis = h.AvgCostBasis.Mul(decimal.NewFromInt(int64(newQty)))
	return nil
}

// Score recomputes fantasy points and each entry's proportional share
// of them. Safe to re-run any number of times; it only ever overwrites
// lineup/entry score columns, never balances.
func (e *Engine) Score(ctx context.Context, contestID string) error {
	contest, err := e.store.GetContest(ctx, contestID)
	if err != nil {
		return fmt.Errorf("contest: load contest: %w", err)
	}
	if contest == nil {
		return fmt.Errorf("contest: %s not found", contestID)
	}

	lineups, err := e.store.ListLineupsByContest(ctx, contestID)
	if err != nil {
		return fmt.Errorf("contest: list lineups: %w", err)
	}
	if len(lineups) == 0 {
		return nil
	}

	sharesByPlayer := make(map[string]int)
	for _, l := range lineups {
		sharesByPlayer[l.PlayerID] += l.SharesEntered
	}

	fpByPlayer := make(map[string]decimal.Decimal, len(sharesByPlayer))
	for playerID := range sharesByPlayer {
		stats, err := e.store.PlayerStatsForDay(ctx, playerID, contest.GameDay)
		if err != nil {
			return fmt.Errorf("contest: load stats for %s: %w", playerID, err)
		}
		fp := decimal.Zero
		for _, st := range stats {
			fp = fp.Add(st.FantasyPoints())
		}
		fpByPlayer[playerID] = fp
	}

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entryTotals := make(map[string]decimal.Decimal)
	for _, l := range lineups {
		totalShares := sharesByPlayer[l.PlayerID]
		fp := fpByPlayer[l.PlayerID]
		earned := decimal.Zero
		if totalShares > 0 {
			earned = decimal.NewFromInt(int64(l.SharesEntered)).
				Div(decimal.NewFromInt(int64(totalShares))).
				Mul(fp)
		}
		if err := db.UpdateLineupScore(tx, l.ID, fp, earned); err != nil {
			return fmt.Errorf("contest: update lineup score: %w", err)
		}
		entryTotals[l.EntryID] = entryTotals[l.EntryID].Add(earned)
	}
	for entryID, total := range entryTotals {
		if err := db.UpdateContestEntryScore(tx, entryID, total); err != nil {
			return fmt.Errorf("contest: update entry score: %w", err)
		}
	}
	return tx.Commit()
}

// splitPool floor-divides pool into winnerCount equal shares at the
// ledger's 0.0001 scale. remainderUnits is always in [0, winnerCount) and
// counts how many winners, by rank starting at the top, get one extra
// ledger unit on top of basePayout so the shares sum to exactly pool.
func splitPool(pool decimal.Decimal, winnerCount int) (basePayout, extraUnit decimal.Decimal, remainderUnits int64) {
	poolUnits := pool.Shift(ledgerScale).Round(0).IntPart()
	baseUnits := poolUnits / int64(winnerCount)
	remainderUnits = poolUnits - baseUnits*int64(winnerCount)
	basePayout = decimal.New(baseUnits, -ledgerScale)
	extraUnit = decimal.New(1, -ledgerScale)
	return basePayout, extraUnit, remainderUnits
}

// Settle pays the top half of the field from the pooled entry fees.
// Idempotent: only a contest still in `live` status is settled.
func (e *Engine) Settle(ctx context.Context, contestID string) error {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	contest, err := db.GetContestForUpdate(tx, contestID)
	if err != nil {
		return fmt.Errorf("contest: load contest: %w", err)
	}
	if contest.Status != model.ContestLive {
		return nil
	}

	entries, err := db.ListContestEntriesForSettlement(tx, contestID)
	if err != nil {
		return fmt.Errorf("contest: list entries: %w", err)
	}
	if len(entries) == 0 {
		if err := db.UpdateContestStatus(tx, contestID, model.ContestCompleted); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		metrics.ContestsSettled.Inc()
		return nil
	}

	winnerCount := (len(entries) + 1) / 2
	basePayout, extraUnit, remainderUnits := splitPool(contest.TotalPrizePool, winnerCount)

	for i, entry := range entries {
		rank := i + 1
		payout := decimal.Zero
		if i < winnerCount {
			payout = basePayout
			if int64(i) < remainderUnits {
				payout = payout.Add(extraUnit)
			}
			if _, err := e.store.GetUserForUpdate(tx, entry.UserID); err != nil {
				return fmt.Errorf("contest: lock winner: %w", err)
			}
			if err := db.AddUserBalance(tx, entry.UserID, payout); err != nil {
				return fmt.Errorf("contest: credit payout: %w", err)
			}
		}
		if err := db.UpdateContestEntryRankPayout(tx, entry.ID, rank, payout); err != nil {
			return fmt.Errorf("contest: record rank/payout: %w", err)
		}
	}

	if err := db.UpdateContestStatus(tx, contestID, model.ContestCompleted); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	metrics.ContestsSettled.Inc()
	return nil
}
