package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fantasy-exchange/internal/accrual"
	"fantasy-exchange/internal/api"
	"fantasy-exchange/internal/bots"
	"fantasy-exchange/internal/config"
	"fantasy-exchange/internal/contest"
	"fantasy-exchange/internal/db"
	"fantasy-exchange/internal/engine"
	"fantasy-exchange/internal/scheduler"
	"fantasy-exchange/internal/sportsdata"
	"fantasy-exchange/internal/ws"
)

const (
	bootTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("NODE_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("main: load config")
	}

	store, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("main: open database")
	}
	log.Info().Msg("main: connected to database")

	if err := store.Migrate("migrations"); err != nil {
		log.Fatal().Err(err).Msg("main: run migrations")
	}
	log.Info().Msg("main: migrations applied")

	hub := ws.NewHub()

	mgr := engine.NewManager(store, hub.Publish)
	bootCtx, bootCancel := context.WithTimeout(context.Background(), bootTimeout)
	if err := mgr.Boot(bootCtx); err != nil {
		log.Fatal().Err(err).Msg("main: boot engine manager")
	}
	bootCancel()

	accrualEngine := accrual.New(store, cfg.Accrual)
	contestEngine := contest.New(store)
	sportsClient := sportsdata.New(cfg.MySportsFeedsAPIKey)
	fleet := bots.New(store, mgr, accrualEngine, contestEngine, cfg.Bots)

	sched := scheduler.New(store, sportsClient, contestEngine, fleet, *cfg, hub.BroadcastAll)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	srv := api.NewServer(store, mgr, accrualEngine, contestEngine, sched, hub, cfg.SessionSecret, cfg.AdminAPIToken)
	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Router()}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("main: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("main: http server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("main: shutting down")
	cancel()
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("main: stop scheduler")
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("main: http shutdown")
	}
}
