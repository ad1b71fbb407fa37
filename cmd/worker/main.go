package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lalalland/topcoder-x-processor/common/id"
	"github.com/lalalland/topcoder-x-processor/common/logger"
	"github.com/lalalland/topcoder-x-processor/common/otel"
	"github.com/lalalland/topcoder-x-processor/core/config"
	"github.com/lalalland/topcoder-x-processor/core/db"
	"github.com/lalalland/topcoder-x-processor/internal/challenge"
	"github.com/lalalland/topcoder-x-processor/internal/engine"
	"github.com/lalalland/topcoder-x-processor/internal/notify"
	"github.com/lalalland/topcoder-x-processor/internal/queue"
	"github.com/lalalland/topcoder-x-processor/internal/store"
	"github.com/lalalland/topcoder-x-processor/internal/tracker"
	"github.com/lalalland/topcoder-x-processor/internal/usermap"
	"github.com/lalalland/topcoder-x-processor/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Different node ID than the server so ids never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // one event at a time, handled to completion
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Pool())
	users := usermap.NewService(stores.UserMappings(), stores.Projects())
	platform := challenge.NewClient(cfg.Topcoder)
	notifier := notify.NewSMTPNotifier(cfg.Mail)
	scheduler := engine.NewCancelScheduler(platform, cfg.Topcoder.CancelDelay)

	trackers, err := buildTrackers(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build tracker clients", "error", err)
		os.Exit(1)
	}

	eng := engine.New(stores.IssueRecords(), stores.Projects(), users, platform,
		trackers, notifier, scheduler, cfg.Labels, cfg.Topcoder)

	w := worker.New(consumer, eng, users, worker.Config{
		MaxAttempts: 3,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w.Stop()
	scheduler.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

func buildTrackers(cfg config.Config) (tracker.Factory, error) {
	linkFmt := cfg.Topcoder.DirectURLBase + "/%s"

	var github, gitlab tracker.Client
	if cfg.Tracker.GitHubToken != "" {
		github = tracker.NewGitHubClient(cfg.Tracker.GitHubToken, cfg.Labels.Paid, linkFmt)
	}
	if cfg.Tracker.GitLabToken != "" {
		var err error
		gitlab, err = tracker.NewGitLabClient(cfg.Tracker.GitLabToken, cfg.Tracker.GitLabURL, cfg.Labels.Paid, linkFmt)
		if err != nil {
			return nil, err
		}
	}
	return tracker.NewFactory(github, gitlab), nil
}
