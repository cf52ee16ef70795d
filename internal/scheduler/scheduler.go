// Package scheduler runs the ten cadence-driven background jobs:
// sports-data ingestion, contest lifecycle transitions, the bot fleet
// tick, and the daily portfolio snapshot. Each job runs on its own
// ticker goroutine supervised by a tomb.Tomb, records a job_log row,
// and a failure in one job never aborts its siblings.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fantasy-exchange/internal/bots"
	"fantasy-exchange/internal/config"
	"fantasy-exchange/internal/contest"
	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/metrics"
	"fantasy-exchange/internal/model"
	"fantasy-exchange/internal/sportsdata"
)

// BroadcastFunc fans a scheduler-originated event out to the WebSocket
// hub; nil is a valid no-op broadcaster for tests.
type BroadcastFunc func(msgType string, data any)

// Scheduler owns the process-wide set of background job loops.
type Scheduler struct {
	store     *db.Store
	sports    *sportsdata.Client
	contest   *contest.Engine
	bots      *bots.Fleet
	cfg       config.Config
	broadcast BroadcastFunc
	t         tomb.Tomb

	scheduleCursor int
}

func New(store *db.Store, sports *sportsdata.Client, con *contest.Engine, fleet *bots.Fleet, cfg config.Config, broadcast BroadcastFunc) *Scheduler {
	if broadcast == nil {
		broadcast = func(string, any) {}
	}
	return &Scheduler{store: store, sports: sports, contest: con, bots: fleet, cfg: cfg, broadcast: broadcast}
}

// job pairs a name (used as the job_log key) and a ticker interval
// with the function that does one run's work.
type job struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	run      func(ctx context.Context) (processed, errored int, err error)
}

// Start launches one goroutine per job, each on its own ticker. It
// returns immediately; call Stop (or cancel ctx) to shut the fleet
// down.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs() {
		j := j
		s.t.Go(func() error {
			s.runLoop(ctx, j)
			return nil
		})
	}
}

// Stop signals every job loop to exit and waits for them to finish.
func (s *Scheduler) Stop() error {
	s.t.Kill(nil)
	return s.t.Wait()
}

// TriggerNow runs one named job immediately, outside its regular
// ticker cadence, recording a job_log row like any scheduled run.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	for _, j := range s.jobs() {
		if j.name == name {
			s.tick(ctx, j)
			return nil
		}
	}
	return fmt.Errorf("scheduler: unknown job %q", name)
}

// TriggerBot runs a single bot's strategy pass immediately, bypassing
// its action cooldown.
func (s *Scheduler) TriggerBot(ctx context.Context, userID string) error {
	return s.bots.TriggerOne(ctx, userID)
}

// Backfill re-ingests games and stats for every day in [start, end],
// inclusive, for admin recovery after a provider outage.
func (s *Scheduler) Backfill(ctx context.Context, start, end time.Time) (processed, errored int) {
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := sportsdata.GameDayET(d)
		games, stats, err := s.sports.DailyGameLogs(ctx, day)
		if err != nil {
			errored++
			continue
		}
		p, e := s.persistGamesAndStats(ctx, games, stats)
		processed += p
		errored += e
	}
	return processed, errored
}

func (s *Scheduler) jobs() []job {
	return []job{
		{"ingest_roster", 24 * time.Hour, 30 * time.Second, s.ingestRoster},
		{"ingest_schedule", time.Minute, 20 * time.Second, s.ingestSchedule},
		{"ingest_stats_live", time.Minute, 20 * time.Second, s.ingestStatsLive},
		{"ingest_stats_historical", time.Hour, 30 * time.Second, s.ingestStatsHistorical},
		{"ingest_game_logs", 24 * time.Hour, 30 * time.Second, s.ingestGameLogs},
		{"update_contest_statuses", time.Minute, 10 * time.Second, s.updateContestStatuses},
		{"settle_contests", 5 * time.Minute, 30 * time.Second, s.settleContests},
		{"create_contests", 24 * time.Hour, 15 * time.Second, s.createContests},
		{"bot_engine", s.cfg.Bots.TickInterval, s.cfg.Bots.StrategyTimeout * 5, s.runBotEngine},
		{"portfolio_snapshot", 24 * time.Hour, 30 * time.Second, s.portfolioSnapshot},
	}
}

// runLoop ticks job.run on job.interval until ctx is cancelled or the
// tomb is killed. The first run fires immediately rather than waiting
// a full interval.
func (s *Scheduler) runLoop(ctx context.Context, j job) {
	s.tick(ctx, j)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.t.Dying():
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

// tick runs one job invocation under its timeout, recording a job_log
// row for every attempt regardless of outcome.
func (s *Scheduler) tick(ctx context.Context, j job) {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	jl, err := s.store.StartJob(ctx, j.name)
	if err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("scheduler: start job log")
		return
	}

	start := time.Now()
	processed, errored, runErr := j.run(runCtx)
	elapsed := time.Since(start)

	status := jobStatus(processed, errored, runErr)
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
		log.Error().Err(runErr).Str("job", j.name).Msg("scheduler: job failed")
	}
	if err := s.store.FinishJob(ctx, jl.ID, status, processed, errored, msg); err != nil {
		log.Error().Err(err).Str("job", j.name).Msg("scheduler: finish job log")
	}
	metrics.RecordJob(j.name, string(status), elapsed.Seconds())
}

// jobStatus classifies a run: a fatal error (the job
// never got to process records) fails the run; any per-record error
// degrades it, even when no record succeeded; otherwise it succeeded.
func jobStatus(processed, errored int, err error) model.JobStatus {
	switch {
	case err != nil:
		return model.JobFailed
	case errored > 0:
		return model.JobDegraded
	default:
		return model.JobSuccess
	}
}
