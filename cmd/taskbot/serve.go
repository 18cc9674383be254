package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskbot/internal/answer"
	"taskbot/internal/api"
	"taskbot/internal/bot"
	"taskbot/internal/config"
	"taskbot/internal/scheduler"
	"taskbot/internal/session"
	"taskbot/internal/store"
	"taskbot/internal/telegram"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the task scheduler and the admin server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	repo := store.NewSQLiteRepo(db)

	asker := answer.NewClient(answer.Config{
		BaseURL: cfg.XAIBaseURL,
		APIKey:  cfg.XAIToken,
		Model:   cfg.XAIModel,
	})
	tg := telegram.New(telegram.Config{
		Token:    cfg.TelegramToken,
		Endpoint: cfg.TelegramEndpoint,
		Workers:  cfg.Workers,
	}, nil)
	tg.SetHandler(bot.NewHandler(repo, asker, tg, cfg.OwnerID))

	sched := scheduler.NewService(repo, asker, tg, cfg.PollInterval)
	sup := &session.Supervisor{
		Connector: session.Connector{MaxAttempts: cfg.MaxRetries, Delay: cfg.RetryDelay},
		Session:   tg,
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(ctx)
		return nil
	})
	g.Go(func() error {
		return sup.Run(ctx)
	})
	if cfg.AdminAddr != "" {
		srv := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           api.NewServer(repo, sched),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			runAdmin(ctx, srv)
			return nil
		})
	}

	log.Info().Dur("poll_interval", cfg.PollInterval).Msg("taskbot running")
	err = g.Wait()
	log.Info().Msg("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runAdmin serves the admin API until ctx ends. The admin server is
// optional: failing to bind is logged and the bot keeps running.
func runAdmin(ctx context.Context, srv *http.Server) {
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", srv.Addr).Msg("admin server stopped; bot keeps running")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("admin server shutdown")
		}
		<-errc
	}
}
