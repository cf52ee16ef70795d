package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/model"
	"fantasy-exchange/internal/sportsdata"
)

// scheduleWindowDays is the -7..+14 day window ingest_schedule keeps
// fresh. One day is refreshed per tick, round-robin,
// so the job's wall-clock per run stays well under its one-minute
// cadence despite the provider's 5-second inter-call gap.
const scheduleWindowDays = 22
const scheduleWindowStart = -7

func (s *Scheduler) ingestRoster(ctx context.Context) (int, int, error) {
	players, err := s.sports.ListPlayers(ctx, s.cfg.Season)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest roster: %w", err)
	}
	processed, errored := 0, 0
	for i := range players {
		if err := s.store.UpsertPlayer(ctx, &players[i]); err != nil {
			errored++
			continue
		}
		processed++
	}
	return processed, errored, nil
}

func (s *Scheduler) ingestSchedule(ctx context.Context) (int, int, error) {
	offset := scheduleWindowStart + (s.scheduleCursor % scheduleWindowDays)
	s.scheduleCursor++
	day := sportsdata.GameDayET(time.Now().AddDate(0, 0, offset))

	games, _, err := s.sports.DailyGameLogs(ctx, day)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest schedule: %w", err)
	}
	processed, errored := 0, 0
	for i := range games {
		if err := s.store.UpsertGame(ctx, &games[i]); err != nil {
			errored++
			continue
		}
		processed++
		s.broadcast("liveStats", map[string]string{"gameId": games[i].ID})
	}
	return processed, errored, nil
}

func (s *Scheduler) ingestStatsLive(ctx context.Context) (int, int, error) {
	day := sportsdata.GameDayET(time.Now())
	games, err := s.store.ListGamesByDay(ctx, day)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest stats live: %w", err)
	}
	live := false
	for _, g := range games {
		if g.Status == model.GameInProgress {
			live = true
			break
		}
	}
	if !live {
		return 0, 0, nil
	}

	providerGames, stats, err := s.sports.DailyGameLogs(ctx, day)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest stats live: %w", err)
	}
	processed, errored := s.persistGamesAndStats(ctx, providerGames, stats)
	for _, g := range providerGames {
		s.broadcast("liveStats", map[string]string{"gameId": g.ID})
	}
	return processed, errored, nil
}

func (s *Scheduler) ingestStatsHistorical(ctx context.Context) (int, int, error) {
	processed, errored := 0, 0
	for _, offset := range []int{-1, 0} {
		day := sportsdata.GameDayET(time.Now().AddDate(0, 0, offset))
		games, stats, err := s.sports.DailyGameLogs(ctx, day)
		if err != nil {
			errored++
			continue
		}
		p, e := s.persistGamesAndStats(ctx, games, stats)
		processed += p
		errored += e
	}
	return processed, errored, nil
}

func (s *Scheduler) ingestGameLogs(ctx context.Context) (int, int, error) {
	yesterday := sportsdata.GameDayET(time.Now().AddDate(0, 0, -1))
	games, stats, err := s.sports.DailyGameLogs(ctx, yesterday)
	if err != nil {
		return 0, 0, fmt.Errorf("ingest game logs: %w", err)
	}
	processed, errored := s.persistGamesAndStats(ctx, games, stats)
	return processed, errored, nil
}

// persistGamesAndStats upserts games first so provider-external IDs on
// the stat lines can be remapped to internal game/player UUIDs before
// the stat upsert, which is keyed on those internal IDs.
func (s *Scheduler) persistGamesAndStats(ctx context.Context, games []model.Game, stats []model.PlayerGameStat) (int, int) {
	processed, errored := 0, 0

	gameIDByExternal := make(map[string]string, len(games))
	for i := range games {
		g := &games[i]
		if err := s.store.UpsertGame(ctx, g); err != nil {
			errored++
			continue
		}
		gameIDByExternal[g.ExternalID] = g.ID
		processed++
	}
	if len(stats) == 0 {
		return processed, errored
	}

	externalPlayerIDs := make([]string, 0, len(stats))
	for _, st := range stats {
		externalPlayerIDs = append(externalPlayerIDs, st.PlayerID)
	}
	playerIDByExternal, err := s.store.PlayerIDsByExternalIDs(ctx, externalPlayerIDs)
	if err != nil {
		return processed, errored + len(stats)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, st := range stats {
			internalGameID, ok := gameIDByExternal[st.GameID]
			if !ok {
				errored++
				continue
			}
			internalPlayerID, ok := playerIDByExternal[st.PlayerID]
			if !ok {
				errored++
				continue
			}
			st.GameID = internalGameID
			st.PlayerID = internalPlayerID
			if err := db.UpsertPlayerGameStat(tx, &st); err != nil {
				errored++
				continue
			}
			processed++
		}
		return nil
	})
	if err != nil {
		errored++
	}
	return processed, errored
}

func (s *Scheduler) updateContestStatuses(ctx context.Context) (int, int, error) {
	open, err := s.store.ListContestsByStatus(ctx, model.ContestOpen)
	if err != nil {
		return 0, 0, fmt.Errorf("update contest statuses: %w", err)
	}
	now := time.Now()
	processed, errored := 0, 0
	for _, c := range open {
		if c.StartsAt.After(now) {
			continue
		}
		err := s.store.WithTx(ctx, func(tx *sql.Tx) error {
			return db.UpdateContestStatus(tx, c.ID, model.ContestLive)
		})
		if err != nil {
			errored++
			continue
		}
		processed++
		s.broadcast("contestUpdate", map[string]string{"contestId": c.ID})
	}
	return processed, errored, nil
}

func (s *Scheduler) settleContests(ctx context.Context) (int, int, error) {
	live, err := s.store.ListContestsByStatus(ctx, model.ContestLive)
	if err != nil {
		return 0, 0, fmt.Errorf("settle contests: %w", err)
	}
	now := time.Now()
	processed, errored := 0, 0
	for _, c := range live {
		if c.EndsAt.After(now) {
			continue
		}
		done, err := s.store.GamesCompletedForDay(ctx, c.GameDay)
		if err != nil || !done {
			if err != nil {
				errored++
			}
			continue
		}
		if err := s.contest.Score(ctx, c.ID); err != nil {
			errored++
			continue
		}
		if err := s.contest.Settle(ctx, c.ID); err != nil {
			errored++
			continue
		}
		processed++
		s.broadcast("contestUpdate", map[string]string{"contestId": c.ID})
	}
	return processed, errored, nil
}

// createContests creates one 50/50 contest per upcoming game day
// lookaheadDays ahead, keyed by the unique (game_day) constraint so a
// rerun on an already-created day is a no-op.
func (s *Scheduler) createContests(ctx context.Context) (int, int, error) {
	target := sportsdata.GameDayET(time.Now().AddDate(0, 0, s.cfg.Contest.LookaheadDays))

	games, err := s.store.ListGamesByDay(ctx, target)
	if err != nil {
		return 0, 0, fmt.Errorf("create contests: %w", err)
	}
	if len(games) == 0 {
		return 0, 0, nil
	}
	existing, err := s.store.GetContestByDay(ctx, target)
	if err != nil {
		return 0, 0, fmt.Errorf("create contests: %w", err)
	}
	if existing != nil {
		return 0, 0, nil
	}

	earliest := games[0].StartsAt
	for _, g := range games[1:] {
		if g.StartsAt.Before(earliest) {
			earliest = g.StartsAt
		}
	}
	entryFee, err := decimal.NewFromString(s.cfg.Contest.EntryFee)
	if err != nil {
		entryFee = decimal.NewFromInt(5)
	}

	c := &model.Contest{
		GameDay:  target,
		Status:   model.ContestOpen,
		StartsAt: earliest,
		EndsAt:   earliest.Add(12 * time.Hour),
		EntryFee: entryFee,
	}
	if err := s.store.CreateContest(ctx, c); err != nil {
		return 0, 0, fmt.Errorf("create contests: %w", err)
	}
	return 1, 0, nil
}

func (s *Scheduler) runBotEngine(ctx context.Context) (int, int, error) {
	s.bots.Tick(ctx)
	return 1, 0, nil
}

func (s *Scheduler) portfolioSnapshot(ctx context.Context) (int, int, error) {
	date := sportsdata.GameDayET(time.Now())
	n, err := s.store.SnapshotPortfolios(ctx, date)
	if err != nil {
		return 0, 0, fmt.Errorf("portfolio snapshot: %w", err)
	}
	return n, 0, nil
}
