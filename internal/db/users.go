package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"fantasy-exchange/internal/model"
)

// EnsureUser returns the user row for username, creating it with a zero
// balance if this is their first sight. Session/OAuth verification of
// the caller happens upstream of the store; by the time we get here the
// username is trusted.
func (s *Store) EnsureUser(ctx context.Context, username string) (*model.User, error) {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil || u != nil {
		return u, err
	}
	u = &model.User{}
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO users (username) VALUES ($1)
		 ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		 RETURNING id, username, balance, is_premium, premium_expires_at, is_admin, is_bot, lifetime_shares_mined, created_at`,
		username,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.IsPremium, &u.PremiumExpiresAt, &u.IsAdmin, &u.IsBot, &u.LifetimeSharesMined, &u.CreatedAt)
	return u, err
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, username, balance, is_premium, premium_expires_at, is_admin, is_bot, lifetime_shares_mined, created_at
		 FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.IsPremium, &u.PremiumExpiresAt, &u.IsAdmin, &u.IsBot, &u.LifetimeSharesMined, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u := &model.User{}
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, username, balance, is_premium, premium_expires_at, is_admin, is_bot, lifetime_shares_mined, created_at
		 FROM users WHERE username=$1`, username,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.IsPremium, &u.PremiumExpiresAt, &u.IsAdmin, &u.IsBot, &u.LifetimeSharesMined, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// GetUserForUpdate row-locks the user for the duration of tx. Every
// balance or lock mutation for a user must happen inside a transaction
// that first takes this lock, so concurrent orders for the same user
// serialize instead of racing on the balance column.
func (s *Store) GetUserForUpdate(tx *sql.Tx, id string) (*model.User, error) {
	u := &model.User{}
	err := tx.QueryRow(
		`SELECT id, username, balance, is_premium, premium_expires_at, is_admin, is_bot, lifetime_shares_mined, created_at
		 FROM users WHERE id=$1 FOR UPDATE`, id,
	).Scan(&u.ID, &u.Username, &u.Balance, &u.IsPremium, &u.PremiumExpiresAt, &u.IsAdmin, &u.IsBot, &u.LifetimeSharesMined, &u.CreatedAt)
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, username, balance, is_premium, premium_expires_at, is_admin, is_bot, lifetime_shares_mined, created_at
		 FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Balance, &u.IsPremium, &u.PremiumExpiresAt, &u.IsAdmin, &u.IsBot, &u.LifetimeSharesMined, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) ListBotUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id FROM users WHERE is_bot`)
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

// AddUserBalance applies delta (positive or negative) to a row already
// locked by GetUserForUpdate in the same transaction.
func AddUserBalance(tx *sql.Tx, userID string, delta decimal.Decimal) error {
	_, err := tx.Exec(`UPDATE users SET balance = balance + $1 WHERE id=$2`, delta, userID)
	return err
}

func SetPremium(tx *sql.Tx, userID string, expiresAt interface{}) error {
	_, err := tx.Exec(`UPDATE users SET is_premium=true, premium_expires_at=$1 WHERE id=$2`, expiresAt, userID)
	return err
}

func ClearExpiredPremium(tx *sql.Tx, now interface{}) (int64, error) {
	res, err := tx.Exec(`UPDATE users SET is_premium=false WHERE is_premium AND premium_expires_at IS NOT NULL AND premium_expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddLifetimeSharesMined increments a user's all-time accrual-claimed
// share counter, for the sharesMined leaderboard category.
func AddLifetimeSharesMined(tx *sql.Tx, userID string, delta int) error {
	_, err := tx.Exec(`UPDATE users SET lifetime_shares_mined = lifetime_shares_mined + $1 WHERE id=$2`, delta, userID)
	return err
}
