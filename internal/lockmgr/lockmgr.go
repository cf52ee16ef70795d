// Package lockmgr reserves cash and shares against pending orders and
// contest entries so concurrent operations on the same user can never
// double-spend. Every mutation here assumes the caller already holds
// the user's row lock for the lifetime of the surrounding transaction
// (db.GetUserForUpdate) — the manager itself does not open
// transactions, it only reads/writes within one it is handed.
package lockmgr

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/model"
)

var ErrInsufficientBalance = errors.New("lockmgr: insufficient available balance")
var ErrInsufficientShares = errors.New("lockmgr: insufficient available shares")

// ReserveCash creates a new lock row for amount against (refType, refId),
// failing closed if the user's available balance can't cover it. u must
// already be the row returned by a FOR UPDATE read in tx.
func ReserveCash(tx *sql.Tx, u *model.User, amount decimal.Decimal, refType model.LockRefType, refID string) error {
	locked, err := db.SumBalanceLocks(tx, u.ID)
	if err != nil {
		return err
	}
	available := u.Balance.Sub(locked)
	if available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	_, err = db.InsertBalanceLock(tx, u.ID, amount, refType, refID)
	return err
}

// ReserveShares locks qty shares of playerID against the user's holding.
// holding must be the row returned by db.GetOrCreateHoldingForUpdate in
// the same transaction.
func ReserveShares(tx *sql.Tx, holding *model.Holding, qty int, refType model.LockRefType, refID string) error {
	locked, err := db.SumHoldingsLocks(tx, holding.UserID, holding.PlayerID)
	if err != nil {
		return err
	}
	if holding.Quantity-locked < qty {
		return ErrInsufficientShares
	}
	_, err = db.InsertHoldingsLock(tx, holding.UserID, holding.PlayerID, qty, refType, refID)
	return err
}

// AdjustLockAmount resizes the cash reservation created for refID, used
// after a partial fill reduces the remaining unmatched notional. A
// newAmount of zero or less releases the lock entirely.
func AdjustLockAmount(tx *sql.Tx, refType model.LockRefType, refID string, newAmount decimal.Decimal) error {
	return db.UpdateBalanceLockAmount(tx, refType, refID, newAmount)
}

func AdjustLockQuantity(tx *sql.Tx, refType model.LockRefType, refID string, newQty int) error {
	return db.UpdateHoldingsLockQuantity(tx, refType, refID, newQty)
}

// ReleaseCashByReference drops the cash lock tied to refID and reports
// the amount it freed. Idempotent: releasing a reference with no lock
// is a no-op that returns zero.
func ReleaseCashByReference(tx *sql.Tx, refType model.LockRefType, refID string) (decimal.Decimal, error) {
	return db.DeleteBalanceLocksByRef(tx, refType, refID)
}

func ReleaseSharesByReference(tx *sql.Tx, refType model.LockRefType, refID string) (int, error) {
	return db.DeleteHoldingsLocksByRef(tx, refType, refID)
}

func AvailableBalance(tx *sql.Tx, u *model.User) (decimal.Decimal, error) {
	locked, err := db.SumBalanceLocks(tx, u.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.Balance.Sub(locked), nil
}

func AvailableShares(tx *sql.Tx, holding *model.Holding) (int, error) {
	locked, err := db.SumHoldingsLocks(tx, holding.UserID, holding.PlayerID)
	if err != nil {
		return 0, err
	}
	return holding.Quantity - locked, nil
}
