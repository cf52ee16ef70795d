package db

import (
	"context"
)

// SnapshotPortfolios computes every non-bot user's cash balance,
// portfolio value, net worth, cash rank and portfolio rank for
// snapshotDate and upserts one row per user in a single statement, so a
// rerun for the same date is idempotent. Net worth is stored but not ranked.
func (s *Store) SnapshotPortfolios(ctx context.Context, snapshotDate string) (int, error) {
	res, err := s.DB.ExecContext(ctx,
		`WITH totals AS (
			SELECT u.id AS user_id,
				u.balance AS cash_balance,
				COALESCE(SUM(h.quantity * COALESCE(p.last_trade_price, 0)), 0) AS portfolio_value
			FROM users u
			LEFT JOIN holdings h ON h.user_id = u.id
			LEFT JOIN players p ON p.id = h.player_id
			WHERE u.is_bot = false
			GROUP BY u.id, u.balance
		), ranked AS (
			SELECT user_id, cash_balance, portfolio_value,
				cash_balance + portfolio_value AS net_worth,
				RANK() OVER (ORDER BY cash_balance DESC) AS cash_rank,
				RANK() OVER (ORDER BY portfolio_value DESC) AS portfolio_rank
			FROM totals
		)
		INSERT INTO portfolio_snapshots
			(user_id, snapshot_date, cash_balance, portfolio_value, net_worth, cash_rank, portfolio_rank)
		SELECT user_id, $1, cash_balance, portfolio_value, net_worth, cash_rank, portfolio_rank
		FROM ranked
		ON CONFLICT (user_id, snapshot_date) DO UPDATE SET
			cash_balance = EXCLUDED.cash_balance, portfolio_value = EXCLUDED.portfolio_value,
			net_worth = EXCLUDED.net_worth, cash_rank = EXCLUDED.cash_rank, portfolio_rank = EXCLUDED.portfolio_rank`,
		snapshotDate,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
