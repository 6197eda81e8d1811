package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MRamiBalles/NBackTrainer/server/internal/events"
	"github.com/MRamiBalles/NBackTrainer/server/internal/infra/storage"
	"github.com/MRamiBalles/NBackTrainer/server/internal/nback"
	"github.com/MRamiBalles/NBackTrainer/server/internal/network"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/config"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/logger"
	"github.com/MRamiBalles/NBackTrainer/server/internal/platform/metrics"
	"github.com/MRamiBalles/NBackTrainer/server/internal/speech"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and websocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}

// sessionConfig maps the game section onto the controller parameters.
func sessionConfig(g config.GameConfig) nback.Config {
	return nback.Config{
		NBack:         g.NBack,
		EventCount:    g.EventCount,
		Interval:      g.Interval,
		AlphabetSize:  g.AlphabetSize,
		MinMatches:    g.MinMatches,
		FeedbackDelay: g.FeedbackDelay,
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Opening storage",
		logger.String("driver", cfg.Storage.Driver),
		logger.String("path", cfg.Storage.Path))
	repos, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer repos.Close()

	appLogger.Info("Bootstrapping EventLog...")
	eventLog := events.NewEventLog(storage.NewPersister(repos.Events))
	eventLog.OnPersistError(func(e events.GameEvent, err error) {
		appLogger.Warn("Failed to persist event",
			logger.String("type", string(e.Type)),
			logger.String("session_id", e.SessionID),
			logger.Err(err))
	})
	defer eventLog.Flush()

	gameType, err := nback.ParseGameType(cfg.Game.GameType)
	if err != nil {
		return err
	}

	speakers := speech.Multi{speech.NewEventSpeaker(eventLog)}
	if cfg.Speech.Command != "" {
		cmdSpeaker := speech.NewCommandSpeaker(cfg.Speech.Command, cfg.Speech.Args, appLogger)
		defer cmdSpeaker.Close()
		speakers = append(speakers, cmdSpeaker)
	}

	collector := metrics.Get()
	session, err := nback.MakeBuilder().
		WithConfig(sessionConfig(cfg.Game)).
		WithGameType(gameType).
		WithStore(repos.HighScores).
		WithSpeaker(speakers).
		WithEventLog(eventLog).
		WithLogger(appLogger).
		WithMetrics(collector).
		Build()
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.LoadHighScore(ctx); err != nil {
		appLogger.Warn("Starting without a stored high score", logger.Err(err))
	}

	recorder := storage.NewSessionRecorder(repos.Sessions, appLogger)
	defer recorder.Attach(eventLog)()

	hub := network.NewHub(session, network.Options{
		BroadcastBuffer:  cfg.Server.BroadcastBuffer,
		ClientSendBuffer: cfg.Server.ClientSendBuffer,
		MatchRateLimit:   cfg.Server.MatchRateLimit,
	}, appLogger.With(logger.String("component", "hub")), collector)

	api := network.NewAPI(session, hub, repos.Sessions, repos.Events, collector, appLogger)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The recorder outlives the session so the final SESSION_ENDED is kept.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return recorder.Run(recCtx)
	})
	g.Go(func() error {
		appLogger.Info("HTTP API & WS Server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down...")
		session.Close()
		stopRecorder()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
