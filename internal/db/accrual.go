package db

import (
	"context"
	"database/sql"
	"time"

	"fantasy-exchange/internal/model"
)

// GetAccrualForUpdate row-locks a user's accrual counter, creating it on
// first sight so the accrual job never has to special-case a missing row.
func GetAccrualForUpdate(tx *sql.Tx, userID string) (*model.Accrual, error) {
	_, err := tx.Exec(
		`INSERT INTO accruals (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, err
	}
	a := &model.Accrual{}
	err = tx.QueryRow(
		`SELECT user_id, shares_accumulated, residual_ms, last_accrued_at, last_claimed_at, cap_reached_at
		 FROM accruals WHERE user_id=$1 FOR UPDATE`, userID,
	).Scan(&a.UserID, &a.SharesAccumulated, &a.ResidualMs, &a.LastAccruedAt, &a.LastClaimedAt, &a.CapReachedAt)
	return a, err
}

func UpsertAccrual(tx *sql.Tx, a *model.Accrual) error {
	_, err := tx.Exec(
		`UPDATE accruals SET shares_accumulated=$1, residual_ms=$2, last_accrued_at=$3, last_claimed_at=$4, cap_reached_at=$5
		 WHERE user_id=$6`,
		a.SharesAccumulated, a.ResidualMs, a.LastAccruedAt, a.LastClaimedAt, a.CapReachedAt, a.UserID,
	)
	return err
}

// ListAccrualCandidates returns the id of every user row. Bots are not
// filtered out, and users without an accrual row yet are included
// (GetAccrualForUpdate creates the row on first use).
func (s *Store) ListAccrualCandidates(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func GetSplits(tx *sql.Tx, userID string) ([]model.AccrualSplit, error) {
	rows, err := tx.Query(`SELECT user_id, player_id, shares_per_hour FROM accrual_splits WHERE user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AccrualSplit
	for rows.Next() {
		var sp model.AccrualSplit
		if err := rows.Scan(&sp.UserID, &sp.PlayerID, &sp.SharesPerHour); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// ReplaceSplits overwrites a user's accrual allocation atomically: the
// caller computes the new per-player rates and we swap the whole set.
func ReplaceSplits(tx *sql.Tx, userID string, splits []model.AccrualSplit) error {
	if _, err := tx.Exec(`DELETE FROM accrual_splits WHERE user_id=$1`, userID); err != nil {
		return err
	}
	for _, sp := range splits {
		if _, err := tx.Exec(
			`INSERT INTO accrual_splits (user_id, player_id, shares_per_hour) VALUES ($1,$2,$3)`,
			userID, sp.PlayerID, sp.SharesPerHour,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetAccrual(ctx context.Context, userID string) (*model.Accrual, error) {
	a := &model.Accrual{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT user_id, shares_accumulated, residual_ms, last_accrued_at, last_claimed_at, cap_reached_at
		 FROM accruals WHERE user_id=$1`, userID,
	).Scan(&a.UserID, &a.SharesAccumulated, &a.ResidualMs, &a.LastAccruedAt, &a.LastClaimedAt, &a.CapReachedAt)
	if err == sql.ErrNoRows {
		now := time.Now()
		return &model.Accrual{UserID: userID, LastAccruedAt: now}, nil
	}
	return a, err
}
