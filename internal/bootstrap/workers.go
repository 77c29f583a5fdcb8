package bootstrap

import (
	"irrigation/internal/adapters/config"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/services/prediction"
	"irrigation/internal/workers"
	"irrigation/pkg/logger"
)

// provideWorkers initializes all background workers
func provideWorkers(
	cfg *config.Config,
	predictor *prediction.Service,
	store bundle.Store,
	log *logger.Logger,
) *workers.Scheduler {
	log.Info("Initializing workers...")

	scheduler := workers.NewScheduler()

	// Bundle sync only matters for a store shared between replicas
	scheduler.RegisterWorker(workers.NewBundleSyncWorker(
		predictor,
		store,
		prediction.SourceSync,
		cfg.Workers.BundleSyncInterval,
	))

	log.Infow("✓ Workers initialized", "bundle_sync_interval", cfg.Workers.BundleSyncInterval)
	return scheduler
}
