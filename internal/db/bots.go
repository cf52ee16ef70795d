package db

import (
	"context"
	"database/sql"

	"fantasy-exchange/internal/model"
)

func (s *Store) CreateBotProfile(ctx context.Context, p *model.BotProfile) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO bot_profiles (user_id, aggressiveness, spread_percent, min_order_size, max_order_size,
			max_daily_orders, max_daily_volume, contest_entry_budget, max_contest_entries_per_day,
			min_action_cooldown_ms, max_action_cooldown_ms)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (user_id) DO NOTHING`,
		p.UserID, p.Aggressiveness, p.SpreadPercent, p.MinOrderSize, p.MaxOrderSize,
		p.MaxDailyOrders, p.MaxDailyVolume, p.ContestEntryBudget, p.MaxContestEntriesPerDay,
		p.MinActionCooldownMs, p.MaxActionCooldownMs,
	)
	return err
}

func GetBotProfileForUpdate(tx *sql.Tx, userID string) (*model.BotProfile, error) {
	p := &model.BotProfile{}
	err := tx.QueryRow(botProfileSelect+` WHERE user_id=$1 FOR UPDATE`, userID).Scan(botProfileDest(p)...)
	return p, err
}

func (s *Store) ListBotProfiles(ctx context.Context) ([]model.BotProfile, error) {
	rows, err := s.DB.QueryContext(ctx, botProfileSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BotProfile
	for rows.Next() {
		var p model.BotProfile
		if err := rows.Scan(botProfileDest(&p)...); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateBotProfileCounters persists the fleet's per-tick bookkeeping:
// the cooldown clock and the daily order/volume/contest-entry counters,
// written as given. The UTC-day reset of those counters happens in the
// fleet before this is called.
func UpdateBotProfileCounters(tx *sql.Tx, p *model.BotProfile) error {
	_, err := tx.Exec(
		`UPDATE bot_profiles SET last_action_at=$1, orders_today=$2, volume_today=$3,
			contest_entries_today=$4, last_reset_date=$5 WHERE user_id=$6`,
		p.LastActionAt, p.OrdersToday, p.VolumeToday, p.ContestEntriesToday, p.LastResetDate, p.UserID,
	)
	return err
}

const botProfileSelect = `SELECT user_id, aggressiveness, spread_percent, min_order_size, max_order_size,
	max_daily_orders, max_daily_volume, contest_entry_budget, max_contest_entries_per_day,
	min_action_cooldown_ms, max_action_cooldown_ms, last_action_at, orders_today, volume_today,
	contest_entries_today, last_reset_date FROM bot_profiles`

func botProfileDest(p *model.BotProfile) []any {
	return []any{&p.UserID, &p.Aggressiveness, &p.SpreadPercent, &p.MinOrderSize, &p.MaxOrderSize,
		&p.MaxDailyOrders, &p.MaxDailyVolume, &p.ContestEntryBudget, &p.MaxContestEntriesPerDay,
		&p.MinActionCooldownMs, &p.MaxActionCooldownMs, &p.LastActionAt, &p.OrdersToday, &p.VolumeToday,
		&p.ContestEntriesToday, &p.LastResetDate}
}
