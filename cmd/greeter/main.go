package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/DevRickLin/feishu-greeter/internal/api"
	"github.com/DevRickLin/feishu-greeter/internal/biz"
	"github.com/DevRickLin/feishu-greeter/internal/biz/usecase"
	"github.com/DevRickLin/feishu-greeter/internal/conf"
	"github.com/DevRickLin/feishu-greeter/internal/data"
	"github.com/DevRickLin/feishu-greeter/internal/infra/feishu"
	"github.com/DevRickLin/feishu-greeter/internal/server"
	"github.com/DevRickLin/feishu-greeter/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg := conf.LoadFromEnv()
	logger := cfg.NewLogger(os.Stderr)
	if envErr != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)

	// Initialize repository layer
	repos, err := data.NewRepositories(feishuClient, cfg.ToDataOptions(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create repositories")
	}
	defer repos.Close()
	logger.Info().Str("db", cfg.Store.DBPath).Msg("database opened")

	// Initialize usecase layer
	observer := service.NewOutcomeObserver(prometheus.DefaultRegisterer, logger)
	tracker := usecase.NewDeliveryTracker(repos.Tracker, logger)
	scheduler := usecase.NewDeletionScheduler(repos.Transport, tracker, observer, usecase.RealAfterFunc, cfg.Engine.DeleteTimeout, logger)
	ucs := &biz.Usecases{
		Lifecycle: usecase.NewLifecycleUsecase(repos.Config, repos.Groups, repos.Transport, tracker, scheduler, observer, cfg.ToEngineConfig(), logger),
		Tracker:   tracker,
		Scheduler: scheduler,
	}

	// Restore tracked messages and their auto-delete timers
	if n, err := ucs.Tracker.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to load tracked messages")
	} else if n > 0 {
		logger.Info().Int("messages", n).Msg("tracked messages restored")
	}
	ucs.Lifecycle.Recover(ctx)

	// Initialize service layer
	lifecycleSvc := service.NewLifecycleService(ucs.Lifecycle, repos.Contacts, logger)
	sweeper := service.NewConfigSweeper(ucs.Scheduler, repos.Config, cfg.Engine.SweepInterval, logger)

	apiServer := api.NewServer(api.Deps{
		Configs: repos.Config,
		Rules:   repos.Rules,
		Tracked: ucs.Tracker,
		Timers:  ucs.Scheduler,
	}, cfg.API.Port, logger)

	srv := server.NewFeishuServer(feishuClient, lifecycleSvc, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start()
	})
	g.Go(func() error {
		// The websocket client may keep blocking after its context ends
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(gctx) }()
		select {
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		sweeper.Start()
		<-gctx.Done()

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		srv.Stop()
		sweeper.Stop()
		if err := lifecycleSvc.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("in-flight events aborted")
		}
		// Pending deletions are persisted and re-armed on the next start
		ucs.Scheduler.Stop()
		return apiServer.Stop(shutdownCtx)
	})

	logger.Info().Int("api_port", cfg.API.Port).Msg("starting feishu greeter")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
