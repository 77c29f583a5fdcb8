package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "irrigation/internal/adapters/clickhouse"
	"irrigation/internal/adapters/kafka"
	pgclient "irrigation/internal/adapters/postgres"
	redisclient "irrigation/internal/adapters/redis"
	"irrigation/internal/api"
	chrepo "irrigation/internal/repository/clickhouse"
	"irrigation/internal/workers"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
	httpTimeout     time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
		httpTimeout:     15 * time.Second,
	}
}

// SetHTTPTimeout overrides how long in-flight requests (including a running retrain) may finish
func (l *Lifecycle) SetHTTPTimeout(d time.Duration) {
	if d > 0 {
		l.httpTimeout = d
	}
}

// ShutdownTargets lists what has to be stopped. Nil entries are skipped.
type ShutdownTargets struct {
	WG                  *sync.WaitGroup
	HTTPServer          *api.Server
	WorkerScheduler     *workers.Scheduler
	ModelEventsConsumer *kafka.Consumer
	PredictionLog       *chrepo.PredictionLogRepository
	KafkaProducer       *kafka.Producer
	PG                  *pgclient.Client
	CH                  *chclient.Client
	Redis               *redisclient.Client
	ErrorTracker        errors.Tracker
}

// Shutdown performs coordinated cleanup of all components in the correct order:
// 1. No new requests accepted, in-flight ones finish
// 2. Workers finish cleanly
// 3. Kafka consumer unblocks before waiting for goroutines
// 4. Buffered audit rows are flushed while ClickHouse is still open
// 5. Producer, error tracker and logs
// 6. Database connections last
func (l *Lifecycle) Shutdown(t ShutdownTargets, log *logger.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/8] Stopping HTTP server...")
	if t.HTTPServer != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, l.httpTimeout)
		if err := t.HTTPServer.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		}
		httpCancel()
	}

	log.Info("[2/8] Stopping background workers...")
	if t.WorkerScheduler != nil && t.WorkerScheduler.IsRunning() {
		if err := t.WorkerScheduler.Stop(); err != nil {
			log.Errorw("Workers shutdown failed", "error", err)
		} else {
			log.Info("✓ Workers stopped")
		}
	}

	// Closing the reader unblocks ReadMessage() before we wait on goroutines
	log.Info("[3/8] Closing Kafka consumers...")
	if t.ModelEventsConsumer != nil {
		if err := t.ModelEventsConsumer.Close(); err != nil {
			log.Errorw("Kafka consumer close failed", "consumer", "model_events", "error", err)
		}
	}

	log.Info("[4/8] Waiting for goroutines...")
	if t.WG != nil {
		l.waitForGoroutines(t.WG, 5*time.Second, log)
	}

	log.Info("[5/8] Flushing prediction audit log...")
	if t.PredictionLog != nil {
		flushCtx, flushCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := t.PredictionLog.Stop(flushCtx); err != nil {
			log.Errorw("Prediction audit flush failed", "error", err, "pending", t.PredictionLog.Pending())
		} else {
			log.Info("✓ Prediction audit log flushed")
		}
		flushCancel()
	}

	log.Info("[6/8] Closing Kafka producer...")
	if t.KafkaProducer != nil {
		if err := t.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[7/8] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, t.ErrorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(t.PG, t.CH, t.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "error", errors.Join(dbErrors...))
	} else {
		log.Info("✓ Database connections closed")
	}
}
