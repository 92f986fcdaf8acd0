// Command syncd runs the offline-first sync core as a daemon: it opens the
// local sqlite store, connects the S3-backed remote store and lets the
// scheduler drive periodic sync passes until interrupted.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jbcrane13/jubileesync/internal/auth"
	"github.com/jbcrane13/jubileesync/internal/config"
	"github.com/jbcrane13/jubileesync/internal/logging"
	"github.com/jbcrane13/jubileesync/internal/models"
	"github.com/jbcrane13/jubileesync/internal/sensors"
	"github.com/jbcrane13/jubileesync/internal/settings"
	s3store "github.com/jbcrane13/jubileesync/internal/store/s3"
	"github.com/jbcrane13/jubileesync/internal/store/sqlite"
	syncengine "github.com/jbcrane13/jubileesync/internal/sync"
	"github.com/jbcrane13/jubileesync/internal/sync/conflict"
	"github.com/jbcrane13/jubileesync/internal/sync/queue"
	"github.com/jbcrane13/jubileesync/internal/sync/scheduler"
)

func main() {
	cfg := config.LoadConfig()

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	local, err := sqlite.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer local.Close()

	client, err := s3store.NewClient(ctx, s3store.ClientConfig{
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
	})
	if err != nil {
		return err
	}
	remote := s3store.New(client, cfg.S3Bucket, auth.StaticToken(cfg.SessionToken), nil)

	prefs := settings.New(local)
	q := queue.New(nil)
	resolver := conflict.NewResolver(strategyFromConfig(cfg.Strategy), nil)

	engine := syncengine.New(local, remote, q, resolver, prefs, syncengine.Options{
		BatchSize: cfg.SyncBatchSize,
		Logger:    logger.With("component", "engine"),
	})

	// Anything already pending from a previous run goes back on the queue.
	pending, err := local.FetchPending(ctx)
	if err != nil {
		return err
	}
	for _, ent := range pending {
		q.Enqueue(ent.ID, models.PriorityNormal)
	}

	sched := scheduler.New(engine, local, q, prefs, nil,
		sensors.StaticBattery{ChargeLevel: 1, OnCharger: true},
		sensors.StaticNetwork{NetworkClass: sensors.NetworkWiFi},
		scheduler.Config{
			TaskID:           cfg.BackgroundTaskID,
			Interval:         cfg.AutoSyncInterval,
			PendingThreshold: cfg.PendingThreshold,
			Logger:           logger.With("component", "scheduler"),
		})

	sched.Start(ctx)
	defer sched.Stop()

	logger.Info(ctx, "syncd started", "db", cfg.DatabaseDSN, "bucket", cfg.S3Bucket)

	<-ctx.Done()
	logger.Info(context.Background(), "syncd stopping")
	return nil
}

func strategyFromConfig(name string) models.Strategy {
	switch models.Strategy(name) {
	case models.StrategyServerWins, models.StrategyClientWins, models.StrategyMostRecentWins,
		models.StrategyFieldMerge, models.StrategyThreeWayMerge, models.StrategyManual:
		return models.Strategy(name)
	}
	return models.StrategyMostRecentWins
}
