package db

import (
	"context"
	"database/sql"

	"fantasy-exchange/internal/model"
)

func (s *Store) UpsertGame(ctx context.Context, g *model.Game) error {
	return s.DB.QueryRowContext(ctx,
		`INSERT INTO games (external_id, home_team, away_team, starts_at, status, game_day)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (external_id) DO UPDATE SET
			status=EXCLUDED.status, starts_at=EXCLUDED.starts_at
		 RETURNING id`,
		g.ExternalID, g.HomeTeam, g.AwayTeam, g.StartsAt, g.Status, g.GameDay,
	).Scan(&g.ID)
}

func (s *Store) ListGamesByDay(ctx context.Context, gameDay string) ([]model.Game, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, external_id, home_team, away_team, starts_at, status, game_day
		 FROM games WHERE game_day=$1`, gameDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.ExternalID, &g.HomeTeam, &g.AwayTeam, &g.StartsAt, &g.Status, &g.GameDay); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GamesCompletedForDay reports whether every game on gameDay has
// reached a terminal status, the signal the scheduler uses to decide
// a contest is ready to settle.
func (s *Store) GamesCompletedForDay(ctx context.Context, gameDay string) (bool, error) {
	var total, completed int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE status='completed') FROM games WHERE game_day=$1`,
		gameDay,
	).Scan(&total, &completed)
	if err != nil {
		return false, err
	}
	return total > 0 && total == completed, nil
}

func UpsertPlayerGameStat(tx *sql.Tx, st *model.PlayerGameStat) error {
	_, err := tx.Exec(
		`INSERT INTO player_game_stats (player_id, game_id, pts, three_pm, reb, ast, stl, blk, tov)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (player_id, game_id) DO UPDATE SET
			pts=EXCLUDED.pts, three_pm=EXCLUDED.three_pm, reb=EXCLUDED.reb, ast=EXCLUDED.ast,
			stl=EXCLUDED.stl, blk=EXCLUDED.blk, tov=EXCLUDED.tov`,
		st.PlayerID, st.GameID, st.Pts, st.ThreePM, st.Reb, st.Ast, st.Stl, st.Blk, st.Tov,
	)
	return err
}

// RecentPlayerStats returns a player's last `limit` game stat lines,
// most recent first, for the bot fleet's fair-value model.
func (s *Store) RecentPlayerStats(ctx context.Context, playerID string, limit int) ([]model.PlayerGameStat, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.player_id, s.game_id, s.pts, s.three_pm, s.reb, s.ast, s.stl, s.blk, s.tov
		 FROM player_game_stats s JOIN games g ON g.id = s.game_id
		 WHERE s.player_id=$1 ORDER BY g.starts_at DESC LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PlayerGameStat
	for rows.Next() {
		var st model.PlayerGameStat
		if err := rows.Scan(&st.PlayerID, &st.GameID, &st.Pts, &st.ThreePM, &st.Reb, &st.Ast, &st.Stl, &st.Blk, &st.Tov); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// PlayerStatsForDay returns every stat line for playerID across the
// games played on gameDay, to be summed by the caller via
// model.PlayerGameStat.FantasyPoints().
func (s *Store) PlayerStatsForDay(ctx context.Context, playerID, gameDay string) ([]model.PlayerGameStat, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.player_id, s.game_id, s.pts, s.three_pm, s.reb, s.ast, s.stl, s.blk, s.tov
		 FROM player_game_stats s JOIN games g ON g.id = s.game_id
		 WHERE s.player_id=$1 AND g.game_day=$2`, playerID, gameDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PlayerGameStat
	for rows.Next() {
		var st model.PlayerGameStat
		if err := rows.Scan(&st.PlayerID, &st.GameID, &st.Pts, &st.ThreePM, &st.Reb, &st.Ast, &st.Stl, &st.Blk, &st.Tov); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
