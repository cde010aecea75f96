// duelwatch is a developer CLI: it joins the quick-match queue, tails the
// live pick feed, and prints the reconciled view and momentum as they change.
// A local debug HTTP server exposes the same state for the web inspector.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/duelpicks/duelcore/internal/api"
	"github.com/duelpicks/duelcore/internal/events"
	"github.com/duelpicks/duelcore/internal/feed"
	"github.com/duelpicks/duelcore/internal/live"
	"github.com/duelpicks/duelcore/internal/queue"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if level, err := zerolog.ParseLevel(getEnv("DUEL_LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	cfg, err := loadConfig(getEnv("DUELWATCH_CONFIG", "duelwatch.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.API.BaseURL == "" {
		log.Fatal().Msg("DUEL_API_URL is required")
	}
	if cfg.Match.UserID == "" {
		log.Fatal().Msg("DUEL_USER_ID is required")
	}

	slipID := getEnv("DUEL_SLIP_ID", "")
	if slipID == "" {
		log.Fatal().Msg("DUEL_SLIP_ID is required")
	}
	stake := int64(getEnvAsInt("DUEL_STAKE_AMOUNT", 100))
	region := getEnv("DUEL_REGION", "")

	clientOpts := []api.ClientOption{
		api.WithTimeout(time.Duration(cfg.API.TimeoutSec) * time.Second),
	}
	if token := getEnv("DUEL_AUTH_TOKEN", ""); token != "" {
		clientOpts = append(clientOpts, api.WithAuthToken(token))
	}
	if cfg.API.H2C {
		clientOpts = append(clientOpts, api.WithH2C())
	}
	apiClient := api.NewClient(cfg.API.BaseURL, clientOpts...)

	ctrl := queue.NewController(apiClient, queue.WithGameMode(cfg.Match.GameMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var consumer *events.Consumer
	if cfg.Events.URL != "" {
		consumerCfg := events.DefaultConsumerConfig()
		consumerCfg.URL = cfg.Events.URL
		consumerCfg.SubjectPrefix = cfg.Events.SubjectPrefix
		consumer, err = events.NewConsumer(ctrl, consumerCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect push event consumer")
		}
		defer consumer.Close()
		if err := consumer.Start(cfg.Match.UserID); err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe to push events")
		}
	}

	state := &liveState{}
	debugServer := newDebugServer(cfg.Debug.Addr, ctrl, state)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return debugServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Debug.Addr).Msg("debug server listening")
		if err := debugServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return watchSession(gctx, ctrl, cfg, state)
	})

	if !ctrl.JoinQuickMatch(ctx, slipID, stake, region) {
		snap := ctrl.Snapshot()
		log.Fatal().Str("last_error", snap.LastError).Msg("failed to join quick match queue")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("duelwatch exited with error")
	}

	// Best-effort cleanup: leave the queue if still in it, then reset.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ctrl.LeaveQueue(cleanupCtx)
	ctrl.ResetQueue()
}

// watchSession reacts to session transitions, attaching the live feed client
// once a match is found.
func watchSession(ctx context.Context, ctrl *queue.Controller, cfg *Config, state *liveState) error {
	var liveCancel context.CancelFunc
	defer func() {
		if liveCancel != nil {
			liveCancel()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-ctrl.Updates():
			switch snap.Phase {
			case queue.PhaseQueued:
				if snap.QueuePosition != nil {
					log.Info().Int("position", *snap.QueuePosition).Msg("waiting in queue")
				}
			case queue.PhaseExpired:
				log.Info().
					Str("reason", snap.ExpiredReason).
					Msg("queue expired")
				return nil
			case queue.PhaseMatched:
				if liveCancel != nil {
					continue
				}
				if cfg.Live.URL == "" {
					log.Info().Str("match_id", snap.MatchID).Msg("matched; no live feed URL configured")
					continue
				}
				opponentName := cfg.Match.OpponentName
				if snap.Match != nil && snap.Match.OpponentName != "" {
					opponentName = snap.Match.OpponentName
				}
				who := feed.Participants{
					CurrentUserID: cfg.Match.UserID,
					UserName:      cfg.Match.UserName,
					OpponentName:  opponentName,
				}
				lc := live.NewClient(cfg.Live.URL+"/"+snap.MatchID, who)
				liveCtx, cancelLive := context.WithCancel(ctx)
				liveCancel = cancelLive
				go func() {
					if err := lc.Run(liveCtx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error().Err(err).Msg("live feed stopped")
					}
				}()
				go printUpdates(liveCtx, lc, state)
				log.Info().Str("match_id", snap.MatchID).Msg("matched; tailing live feed")
			}
		}
	}
}

func printUpdates(ctx context.Context, lc *live.Client, state *liveState) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-lc.Updates():
			state.set(update)
			log.Info().
				Int("resolved", update.Summary.TotalResolved).
				Int("pending", update.Summary.TotalPending).
				Int("user_hits", update.Summary.UserHits).
				Int("opponent_hits", update.Summary.OpponentHits).
				Float64("momentum", update.Momentum.Score).
				Str("edge", string(update.Momentum.Label)).
				Int("just_resolved", len(update.Changed)).
				Msg("feed update")
		}
	}
}
