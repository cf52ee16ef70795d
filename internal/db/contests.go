package db

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
	"fantasy-exchange/internal/model"
)

func (s *Store) CreateContest(ctx context.Context, c *model.Contest) error {
	return s.DB.QueryRowContext(ctx,
		`INSERT INTO contests (game_day, status, starts_at, ends_at, entry_fee)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (game_day) DO UPDATE SET game_day = EXCLUDED.game_day
		 RETURNING id, entry_count, total_prize_pool, total_shares_entered, created_at`,
		c.GameDay, c.Status, c.StartsAt, c.EndsAt, c.EntryFee,
	).Scan(&c.ID, &c.EntryCount, &c.TotalPrizePool, &c.TotalSharesEntered, &c.CreatedAt)
}

func (s *Store) GetContestByDay(ctx context.Context, gameDay string) (*model.Contest, error) {
	c := &model.Contest{}
	err := s.DB.QueryRowContext(ctx, contestSelect+` WHERE game_day=$1`, gameDay).Scan(contestDest(c)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *Store) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	c := &model.Contest{}
	err := s.DB.QueryRowContext(ctx, contestSelect+` WHERE id=$1`, id).Scan(contestDest(c)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func GetContestForUpdate(tx *sql.Tx, id string) (*model.Contest, error) {
	c := &model.Contest{}
	err := tx.QueryRow(contestSelect+` WHERE id=$1 FOR UPDATE`, id).Scan(contestDest(c)...)
	return c, err
}

func (s *Store) ListContestsByStatus(ctx context.Context, status model.ContestStatus) ([]model.Contest, error) {
	rows, err := s.DB.QueryContext(ctx, contestSelect+` WHERE status=$1 ORDER BY starts_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Contest
	for rows.Next() {
		var c model.Contest
		if err := rows.Scan(contestDest(&c)...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func UpdateContestAggregate(tx *sql.Tx, id string, entryCountDelta, sharesDelta int, poolDelta decimal.Decimal) error {
	_, err := tx.Exec(
		`UPDATE contests SET entry_count = entry_count + $1, total_shares_entered = total_shares_entered + $2,
			total_prize_pool = total_prize_pool + $3 WHERE id=$4`,
		entryCountDelta, sharesDelta, poolDelta, id,
	)
	return err
}

func UpdateContestStatus(tx *sql.Tx, id string, status model.ContestStatus) error {
	_, err := tx.Exec(`UPDATE contests SET status=$1 WHERE id=$2`, status, id)
	return err
}

const contestSelect = `SELECT id, game_day, status, starts_at, ends_at, entry_fee, entry_count,
	total_prize_pool, total_shares_entered, created_at FROM contests`

func contestDest(c *model.Contest) []any {
	return []any{&c.ID, &c.GameDay, &c.Status, &c.StartsAt, &c.EndsAt, &c.EntryFee, &c.EntryCount,
		&c.TotalPrizePool, &c.TotalSharesEntered, &c.CreatedAt}
}

// ── Contest entries ──────────────────────────────────

func InsertContestEntry(tx *sql.Tx, e *model.ContestEntry) error {
	return tx.QueryRow(
		`INSERT INTO contest_entries (contest_id, user_id) VALUES ($1,$2)
		 RETURNING id, total_shares_entered, total_score, rank, payout, created_at`,
		e.ContestID, e.UserID,
	).Scan(&e.ID, &e.TotalSharesEntered, &e.TotalScore, &e.Rank, &e.Payout, &e.CreatedAt)
}

func (s *Store) GetContestEntry(ctx context.Context, contestID, userID string) (*model.ContestEntry, error) {
	e := &model.ContestEntry{}
	err := s.DB.QueryRowContext(ctx, contestEntrySelect+` WHERE contest_id=$1 AND user_id=$2`, contestID, userID).Scan(contestEntryDest(e)...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func GetContestEntryForUpdate(tx *sql.Tx, id string) (*model.ContestEntry, error) {
	e := &model.ContestEntry{}
	err := tx.QueryRow(contestEntrySelect+` WHERE id=$1 FOR UPDATE`, id).Scan(contestEntryDest(e)...)
	return e, err
}

func (s *Store) ListContestEntries(ctx context.Context, contestID string) ([]model.ContestEntry, error) {
	rows, err := s.DB.QueryContext(ctx, contestEntrySelect+` WHERE contest_id=$1 ORDER BY total_score DESC`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ContestEntry
	for rows.Next() {
		var e model.ContestEntry
		if err := rows.Scan(contestEntryDest(&e)...); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListContestEntriesForSettlement runs inside the settlement transaction
// so ranking happens against the exact snapshot the contest-row lock
// protects. Ties break by earliest entry creation.
func ListContestEntriesForSettlement(tx *sql.Tx, contestID string) ([]model.ContestEntry, error) {
	rows, err := tx.Query(contestEntrySelect+` WHERE contest_id=$1 ORDER BY total_score DESC, created_at ASC`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ContestEntry
	for rows.Next() {
		var e model.ContestEntry
		if err := rows.Scan(contestEntryDest(&e)...); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func UpdateContestEntryShares(tx *sql.Tx, id string, delta int) error {
	_, err := tx.Exec(`UPDATE contest_entries SET total_shares_entered = total_shares_entered + $1 WHERE id=$2`, delta, id)
	return err
}

func UpdateContestEntryScore(tx *sql.Tx, id string, score decimal.Decimal) error {
	_, err := tx.Exec(`UPDATE contest_entries SET total_score=$1 WHERE id=$2`, score, id)
	return err
}

func UpdateContestEntryRankPayout(tx *sql.Tx, id string, rank int, payout decimal.Decimal) error {
	_, err := tx.Exec(`UPDATE contest_entries SET rank=$1, payout=$2 WHERE id=$3`, rank, payout, id)
	return err
}

const contestEntrySelect = `SELECT id, contest_id, user_id, total_shares_entered, total_score, rank, payout, created_at FROM contest_entries`

func contestEntryDest(e *model.ContestEntry) []any {
	return []any{&e.ID, &e.ContestID, &e.UserID, &e.TotalSharesEntered, &e.TotalScore, &e.Rank, &e.Payout, &e.CreatedAt}
}

// ── Contest lineups ──────────────────────────────────

func GetContestLineup(tx *sql.Tx, entryID string) ([]model.ContestLineup, error) {
	rows, err := tx.Query(
		`SELECT id, entry_id, player_id, shares_entered, fantasy_points, earned_score
		 FROM contest_lineups WHERE entry_id=$1`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ContestLineup
	for rows.Next() {
		var l model.ContestLineup
		if err := rows.Scan(&l.ID, &l.EntryID, &l.PlayerID, &l.SharesEntered, &l.FantasyPoints, &l.EarnedScore); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func UpsertLineupShares(tx *sql.Tx, entryID, playerID string, shares int) error {
	if shares <= 0 {
		_, err := tx.Exec(`DELETE FROM contest_lineups WHERE entry_id=$1 AND player_id=$2`, entryID, playerID)
		return err
	}
	_, err := tx.Exec(
		`INSERT INTO contest_lineups (entry_id, player_id, shares_entered) VALUES ($1,$2,$3)
		 ON CONFLICT (entry_id, player_id) DO UPDATE SET shares_entered = EXCLUDED.shares_entered`,
		entryID, playerID, shares,
	)
	return err
}

// ListLineupsByContest returns every lineup row across every entry in a
// contest, for the scoring job which needs the total shares entered in
// each player across the whole field.
func (s *Store) ListLineupsByContest(ctx context.Context, contestID string) ([]model.ContestLineup, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT l.id, l.entry_id, l.player_id, l.shares_entered, l.fantasy_points, l.earned_score
		 FROM contest_lineups l JOIN contest_entries e ON e.id = l.entry_id
		 WHERE e.contest_id=$1`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ContestLineup
	for rows.Next() {
		var l model.ContestLineup
		if err := rows.Scan(&l.ID, &l.EntryID, &l.PlayerID, &l.SharesEntered, &l.FantasyPoints, &l.EarnedScore); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func UpdateLineupScore(tx *sql.Tx, id string, fantasyPoints, earnedScore decimal.Decimal) error {
	_, err := tx.Exec(`UPDATE contest_lineups SET fantasy_points=$1, earned_score=$2 WHERE id=$3`, fantasyPoints, earnedScore, id)
	return err
}
