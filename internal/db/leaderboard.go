package db

import "context"

// LeaderboardRow is one user's ranked standing in a single category.
type LeaderboardRow struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Value    string `json:"value"`
	Rank     int    `json:"rank"`
}

// LeaderboardCategory names the leaderboard categories the HTTP API exposes.
type LeaderboardCategory string

const (
	LeaderboardNetWorth       LeaderboardCategory = "netWorth"
	LeaderboardCashBalance    LeaderboardCategory = "cashBalance"
	LeaderboardPortfolioValue LeaderboardCategory = "portfolioValue"
	LeaderboardSharesMined    LeaderboardCategory = "sharesMined"
	LeaderboardMarketOrders   LeaderboardCategory = "marketOrders"
)

// Leaderboard returns the top limit non-bot users for category. netWorth,
// cashBalance, and portfolioValue read the most recent portfolio_snapshots
// row per user; sharesMined and marketOrders are simple lifetime
// aggregates that don't need the daily snapshot job to have run.
func (s *Store) Leaderboard(ctx context.Context, category LeaderboardCategory, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var query string
	switch category {
	case LeaderboardNetWorth:
		query = `SELECT u.id, u.username, ps.net_worth::text
			FROM users u JOIN LATERAL (
				SELECT net_worth FROM portfolio_snapshots WHERE user_id=u.id ORDER BY snapshot_date DESC LIMIT 1
			) ps ON true
			WHERE u.is_bot = false ORDER BY ps.net_worth DESC LIMIT $1`
	case LeaderboardCashBalance:
		query = `SELECT u.id, u.username, ps.cash_balance::text
			FROM users u JOIN LATERAL (
				SELECT cash_balance FROM portfolio_snapshots WHERE user_id=u.id ORDER BY snapshot_date DESC LIMIT 1
			) ps ON true
			WHERE u.is_bot = false ORDER BY ps.cash_balance DESC LIMIT $1`
	case LeaderboardPortfolioValue:
		query = `SELECT u.id, u.username, ps.portfolio_value::text
			FROM users u JOIN LATERAL (
				SELECT portfolio_value FROM portfolio_snapshots WHERE user_id=u.id ORDER BY snapshot_date DESC LIMIT 1
			) ps ON true
			WHERE u.is_bot = false ORDER BY ps.portfolio_value DESC LIMIT $1`
	case LeaderboardSharesMined:
		query = `SELECT id, username, lifetime_shares_mined::text FROM users
			WHERE is_bot = false ORDER BY lifetime_shares_mined DESC LIMIT $1`
	case LeaderboardMarketOrders:
		query = `SELECT u.id, u.username, COUNT(o.id)::text
			FROM users u LEFT JOIN orders o ON o.user_id = u.id
			WHERE u.is_bot = false
			GROUP BY u.id, u.username ORDER BY COUNT(o.id) DESC LIMIT $1`
	default:
		return nil, nil
	}

	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardRow
	rank := 1
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.Username, &r.Value); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}
