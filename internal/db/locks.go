package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"fantasy-exchange/internal/model"
)

// Locks are reference-keyed: each reservation carries the (refType,
// refId) of the thing holding it — usually an order id — so a cancel
// or fill can release exactly the reservation it created without
// touching any other lock the user holds. This generalizes the
// teacher's single aggregate locked-balance column to support multiple
// concurrent reservations per user (one per resting order or contest
// entry).

func InsertBalanceLock(tx *sql.Tx, userID string, amount decimal.Decimal, refType model.LockRefType, refID string) (*model.BalanceLock, error) {
	l := &model.BalanceLock{}
	err := tx.QueryRow(
		`INSERT INTO balance_locks (user_id, amount, ref_type, ref_id) VALUES ($1,$2,$3,$4)
		 RETURNING id, user_id, amount, ref_type, ref_id, created_at`,
		userID, amount, refType, refID,
	).Scan(&l.ID, &l.UserID, &l.Amount, &l.RefType, &l.RefID, &l.CreatedAt)
	return l, err
}

func InsertHoldingsLock(tx *sql.Tx, userID, playerID string, qty int, refType model.LockRefType, refID string) (*model.HoldingsLock, error) {
	l := &model.HoldingsLock{}
	err := tx.QueryRow(
		`INSERT INTO holdings_locks (user_id, player_id, quantity, ref_type, ref_id) VALUES ($1,$2,$3,$4,$5)
		 RETURNING id, user_id, player_id, quantity, ref_type, ref_id, created_at`,
		userID, playerID, qty, refType, refID,
	).Scan(&l.ID, &l.UserID, &l.PlayerID, &l.Quantity, &l.RefType, &l.RefID, &l.CreatedAt)
	return l, err
}

// SumBalanceLocks returns the total cash a user has reserved across all
// references. Call against a row already locked by GetUserForUpdate so
// the sum can't change underneath the caller.
func SumBalanceLocks(tx *sql.Tx, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.QueryRow(`SELECT COALESCE(SUM(amount),0) FROM balance_locks WHERE user_id=$1`, userID).Scan(&sum)
	return sum, err
}

func SumHoldingsLocks(tx *sql.Tx, userID, playerID string) (int, error) {
	var sum int
	err := tx.QueryRow(
		`SELECT COALESCE(SUM(quantity),0) FROM holdings_locks WHERE user_id=$1 AND player_id=$2`,
		userID, playerID,
	).Scan(&sum)
	return sum, err
}

// AvailableBalance is the non-transactional counterpart to
// SumBalanceLocks, for display-only reads (dashboard, player page)
// that don't need a locked row.
func (s *Store) AvailableBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance, locked decimal.Decimal
	err := s.DB.QueryRowContext(ctx,
		`SELECT balance, (SELECT COALESCE(SUM(amount),0) FROM balance_locks WHERE user_id=$1)
		 FROM users WHERE id=$1`, userID,
	).Scan(&balance, &locked)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Sub(locked), nil
}

func GetBalanceLockByRef(tx *sql.Tx, refType model.LockRefType, refID string) (*model.BalanceLock, error) {
	l := &model.BalanceLock{}
	err := tx.QueryRow(
		`SELECT id, user_id, amount, ref_type, ref_id, created_at FROM balance_locks WHERE ref_type=$1 AND ref_id=$2`,
		refType, refID,
	).Scan(&l.ID, &l.UserID, &l.Amount, &l.RefType, &l.RefID, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func GetHoldingsLockByRef(tx *sql.Tx, refType model.LockRefType, refID string) (*model.HoldingsLock, error) {
	l := &model.HoldingsLock{}
	err := tx.QueryRow(
		`SELECT id, user_id, player_id, quantity, ref_type, ref_id, created_at FROM holdings_locks WHERE ref_type=$1 AND ref_id=$2`,
		refType, refID,
	).Scan(&l.ID, &l.UserID, &l.PlayerID, &l.Quantity, &l.RefType, &l.RefID, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// UpdateBalanceLockAmount resizes an existing reservation (e.g. a
// partially-filled limit order reducing its remaining cash hold).
// Setting newAmount to zero or less deletes the row entirely.
func UpdateBalanceLockAmount(tx *sql.Tx, refType model.LockRefType, refID string, newAmount decimal.Decimal) error {
	if newAmount.Sign() <= 0 {
		_, err := tx.Exec(`DELETE FROM balance_locks WHERE ref_type=$1 AND ref_id=$2`, refType, refID)
		return err
	}
	_, err := tx.Exec(`UPDATE balance_locks SET amount=$1 WHERE ref_type=$2 AND ref_id=$3`, newAmount, refType, refID)
	return err
}

func UpdateHoldingsLockQuantity(tx *sql.Tx, refType model.LockRefType, refID string, newQty int) error {
	if newQty <= 0 {
		_, err := tx.Exec(`DELETE FROM holdings_locks WHERE ref_type=$1 AND ref_id=$2`, refType, refID)
		return err
	}
	_, err := tx.Exec(`UPDATE holdings_locks SET quantity=$1 WHERE ref_type=$2 AND ref_id=$3`, newQty, refType, refID)
	return err
}

// DeleteBalanceLocksByRef releases every cash lock tied to a reference
// (normally exactly one) and reports the total amount freed.
func DeleteBalanceLocksByRef(tx *sql.Tx, refType model.LockRefType, refID string) (decimal.Decimal, error) {
	rows, err := tx.Query(`DELETE FROM balance_locks WHERE ref_type=$1 AND ref_id=$2 RETURNING amount`, refType, refID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()
	total := decimal.Zero
	for rows.Next() {
		var amt decimal.Decimal
		if err := rows.Scan(&amt); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amt)
	}
	return total, rows.Err()
}

func DeleteHoldingsLocksByRef(tx *sql.Tx, refType model.LockRefType, refID string) (int, error) {
	rows, err := tx.Query(`DELETE FROM holdings_locks WHERE ref_type=$1 AND ref_id=$2 RETURNING quantity`, refType, refID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	total := 0
	for rows.Next() {
		var q int
		if err := rows.Scan(&q); err != nil {
			return 0, err
		}
		total += q
	}
	return total, rows.Err()
}
