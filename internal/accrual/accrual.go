// Package accrual implements the time-based share grant: every user
// accrues fractional shares of their chosen players continuously,
// caps out daily, and claims into holdings on demand or on split
// reassignment.
package accrual

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/config"
	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/metrics"
	"fantasy-exchange/internal/model"
)

const msPerHour = 3_600_000

// Engine runs accrual math against the free/premium rates and caps in
// config.AccrualConfig rather than hardcoding them on the user model, so
// an operator can retune the program without a deploy.
type Engine struct {
	store *db.Store
	cfg   config.AccrualConfig
}

func New(store *db.Store, cfg config.AccrualConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

func (e *Engine) rateTotal(u *model.User) int {
	if u.IsPremium {
		return e.cfg.PremiumSharesPerHour
	}
	return e.cfg.FreeSharesPerHour
}

func (e *Engine) dailyCap(u *model.User) int {
	if u.IsPremium {
		return e.cfg.PremiumDailyCap
	}
	return e.cfg.FreeDailyCap
}

// Accrue advances one user's accumulator up to now. Idempotent: calling
// it twice with no elapsed time between calls grants nothing extra.
func (e *Engine) Accrue(ctx context.Context, userID string) error {
	now := time.Now().UTC()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	user, err := e.store.GetUserForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load user: %w", err)
	}
	acc, err := db.GetAccrualForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load accrual row: %w", err)
	}

	if err := e.accrue(user, acc, now); err != nil {
		return err
	}

	if err := db.UpsertAccrual(tx, acc); err != nil {
		return err
	}
	return tx.Commit()
}

// accrue is the pure transition function, kept separate from the
// transaction plumbing so SetSplits can run it inline on an
// already-open tx.
func (e *Engine) accrue(user *model.User, acc *model.Accrual, now time.Time) error {
	cap := e.dailyCap(user)
	if acc.SharesAccumulated >= cap {
		acc.ResidualMs = 0
		acc.CapReachedAt = &now
		return nil
	}

	rate := e.rateTotal(user)
	if rate <= 0 {
		return nil
	}

	elapsedMs := now.Sub(acc.LastAccruedAt).Milliseconds() + acc.ResidualMs
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	msPerShare := int64(msPerHour) / int64(rate)
	shares := int(elapsedMs / msPerShare)
	acc.ResidualMs = elapsedMs % msPerShare
	acc.SharesAccumulated = min(acc.SharesAccumulated+shares, cap)
	if acc.SharesAccumulated >= cap {
		acc.CapReachedAt = &now
	}
	acc.LastAccruedAt = now
	return nil
}

// Claim distributes a user's accumulated shares across their
// AccrualSplits into holdings, floor-dividing by sharesPerHour and
// handing the remainder to the highest-rate splits first.
func (e *Engine) Claim(ctx context.Context, userID string) error {
	now := time.Now().UTC()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	user, err := e.store.GetUserForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load user: %w", err)
	}
	acc, err := db.GetAccrualForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load accrual row: %w", err)
	}
	if err := e.accrue(user, acc, now); err != nil {
		return err
	}

	if err := e.claim(tx, userID, acc, now); err != nil {
		return err
	}

	if err := db.UpsertAccrual(tx, acc); err != nil {
		return err
	}
	return tx.Commit()
}

// claim mutates acc in place and writes holdings, but does not commit —
// callers own the transaction so SetSplits can claim and then replace
// splits atomically.
func (e *Engine) claim(tx *sql.Tx, userID string, acc *model.Accrual, now time.Time) error {
	if acc.SharesAccumulated <= 0 {
		return nil
	}

	splits, err := db.GetSplits(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load splits: %w", err)
	}
	if len(splits) == 0 {
		// Nothing to distribute into; leave the accumulator untouched
		// until the user picks at least one split.
		return nil
	}

	rateSum := 0
	for _, sp := range splits {
		rateSum += sp.SharesPerHour
	}
	if rateSum <= 0 {
		return nil
	}

	total := acc.SharesAccumulated
	allocated := make([]int, len(splits))
	distributed := 0
	for i, sp := range splits {
		allocated[i] = total * sp.SharesPerHour / rateSum
		distributed += allocated[i]
	}
	remainder := total - distributed

	order := make([]int, len(splits))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return splits[order[a]].SharesPerHour > splits[order[b]].SharesPerHour
	})
	for i := 0; i < remainder; i++ {
		allocated[order[i%len(order)]]++
	}

	for i, sp := range splits {
		if allocated[i] == 0 {
			continue
		}
		holding, err := db.GetOrCreateHoldingForUpdate(tx, userID, sp.PlayerID)
		if err != nil {
			return fmt.Errorf("accrual: load holding: %w", err)
		}
		holding.Quantity += allocated[i]
		// Accrued shares carry no cost basis; total cost is unchanged
		// while quantity grows, so average cost basis dilutes down.
		if holding.Quantity > 0 {
			holding.AvgCostBasis = holding.TotalCostBasis.Div(decimal.NewFromInt(int64(holding.Quantity)))
		}
		if err := db.UpdateHolding(tx, holding); err != nil {
			return fmt.Errorf("accrual: update holding: %w", err)
		}
	}

	if err := db.AddLifetimeSharesMined(tx, userID, total); err != nil {
		return fmt.Errorf("accrual: update lifetime shares mined: %w", err)
	}
	metrics.AccrualSharesGranted.Add(float64(total))

	acc.SharesAccumulated = 0
	acc.ResidualMs = 0
	acc.LastClaimedAt = &now
	acc.CapReachedAt = nil
	return nil
}

// SetSplits replaces a user's accrual allocation across 1-10 players,
// auto-claiming their current balance first so whole shares accrued under
// the old split set are paid out to it. The claim resets residualMs, so
// progress toward the next whole share is dropped.
func (e *Engine) SetSplits(ctx context.Context, userID string, playerIDs []string) error {
	if len(playerIDs) < 1 || len(playerIDs) > 10 {
		return fmt.Errorf("accrual: splits must cover 1-10 players, got %d", len(playerIDs))
	}

	now := time.Now().UTC()

	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	user, err := e.store.GetUserForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load user: %w", err)
	}
	acc, err := db.GetAccrualForUpdate(tx, userID)
	if err != nil {
		return fmt.Errorf("accrual: load accrual row: %w", err)
	}
	if err := e.accrue(user, acc, now); err != nil {
		return err
	}
	if err := e.claim(tx, userID, acc, now); err != nil {
		return err
	}
	if err := db.UpsertAccrual(tx, acc); err != nil {
		return err
	}

	rate := e.rateTotal(user)
	n := len(playerIDs)
	base := rate / n
	remainder := rate % n

	splits := make([]model.AccrualSplit, n)
	for i, pid := range playerIDs {
		sph := base
		if i < remainder {
			sph++
		}
		splits[i] = model.AccrualSplit{UserID: userID, PlayerID: pid, SharesPerHour: sph}
	}
	if err := db.ReplaceSplits(tx, userID, splits); err != nil {
		return fmt.Errorf("accrual: replace splits: %w", err)
	}

	return tx.Commit()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
