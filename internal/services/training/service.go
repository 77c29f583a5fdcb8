package training

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/metrics"
	"irrigation/internal/ml/bundle"
	mltraining "irrigation/internal/ml/training"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// BundleSwapper activates a freshly trained bundle
type BundleSwapper interface {
	Swap(b *bundle.Bundle, source string) *bundle.Bundle
}

// EventPublisher announces lifecycle events of model bundles
type EventPublisher interface {
	PublishModelRetrained(ctx context.Context, b *bundle.Bundle, run *irrigation.TrainingRun) error
}

// Outcome is returned by a successful retrain
type Outcome struct {
	BundleID uuid.UUID
	Run      irrigation.TrainingRun
	Report   *bundle.Report
	Features []string
}

// Service runs retrains one at a time. Predictions keep being served from
// the previous bundle until the new one is persisted and swapped in.
type Service struct {
	pipeline  *mltraining.Pipeline
	store     bundle.Store
	predictor BundleSwapper
	runs      irrigation.TrainingRunRepository
	events    EventPublisher
	timeout   time.Duration
	log       *logger.Logger

	mu sync.Mutex
}

// Config groups the collaborators of the training service.
// Runs and Events are optional.
type Config struct {
	Pipeline  *mltraining.Pipeline
	Store     bundle.Store
	Predictor BundleSwapper
	Runs      irrigation.TrainingRunRepository
	Events    EventPublisher
	Timeout   time.Duration
}

// NewService creates a training service
func NewService(cfg Config, log *logger.Logger) *Service {
	return &Service{
		pipeline:  cfg.Pipeline,
		store:     cfg.Store,
		predictor: cfg.Predictor,
		runs:      cfg.Runs,
		events:    cfg.Events,
		timeout:   cfg.Timeout,
		log:       log,
	}
}

// RetrainCSV parses an uploaded dataset and retrains on it
func (s *Service) RetrainCSV(ctx context.Context, r io.Reader) (*Outcome, error) {
	ds, err := mltraining.ParseCSV(r)
	if err != nil {
		metrics.RecordRetrain("rejected", 0)
		return nil, err
	}
	return s.Retrain(ctx, ds)
}

// Retrain fits a new bundle, persists it and swaps it in. On any failure the
// serving bundle is left untouched.
func (s *Service) Retrain(ctx context.Context, ds *mltraining.Dataset) (*Outcome, error) {
	if !s.mu.TryLock() {
		metrics.RecordRetrain("rejected", 0)
		return nil, errors.ErrRetrainInProgress
	}
	defer s.mu.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	run := &irrigation.TrainingRun{
		ID:        uuid.New(),
		CreatedAt: start.UTC(),
	}
	if ds != nil {
		run.Examples = len(ds.Examples)
	}

	s.log.Infow("Retrain started", "run_id", run.ID, "examples", run.Examples)

	b, err := s.pipeline.Fit(ctx, ds)
	if err != nil {
		return nil, s.fail(ctx, run, start, s.classify(err))
	}

	if err := s.store.Save(ctx, b); err != nil {
		return nil, s.fail(ctx, run, start, errors.Wrapf(errors.ErrTrainingFailed, "failed to persist bundle: %v", err))
	}

	s.predictor.Swap(b, "retrain")

	bundleID := b.ID()
	run.BundleID = &bundleID
	run.Status = irrigation.RunSucceeded
	run.Features = b.Schema().String()
	fillRunFromReport(run, b.Report())
	run.Duration = time.Since(start)
	run.DurationMS = run.Duration.Milliseconds()

	metrics.RecordRetrain(string(irrigation.RunSucceeded), run.Duration)

	// The bundle is live now, bookkeeping must not be cut short by the retrain deadline
	bookkeeping := context.WithoutCancel(ctx)
	s.saveRun(bookkeeping, run)
	s.publish(bookkeeping, b, run)

	s.log.Infow("Retrain finished",
		"run_id", run.ID,
		"bundle_id", bundleID,
		"train_accuracy", run.TrainAccuracy,
		"validation_accuracy", run.ValidationAccuracy,
		"duration", run.Duration,
	)

	return &Outcome{
		BundleID: bundleID,
		Run:      *run,
		Report:   b.Report(),
		Features: b.Order(),
	}, nil
}

// History returns recent training runs, newest first
func (s *Service) History(ctx context.Context, limit int) ([]irrigation.TrainingRun, error) {
	if s.runs == nil {
		return nil, errors.Wrap(errors.ErrUnavailable, "training history is not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.ListRecent(ctx, limit)
}

func (s *Service) classify(err error) error {
	switch {
	case errors.Is(err, errors.ErrInvalidDataset), errors.Is(err, errors.ErrTrainingFailed):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Wrapf(errors.ErrTimeout, "retrain exceeded %s", s.timeout)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return errors.Wrapf(errors.ErrTrainingFailed, "%v", err)
	}
}

func (s *Service) fail(ctx context.Context, run *irrigation.TrainingRun, start time.Time, err error) error {
	run.Status = irrigation.RunFailed
	run.Error = err.Error()
	run.Duration = time.Since(start)
	run.DurationMS = run.Duration.Milliseconds()

	status := string(irrigation.RunFailed)
	if errors.Is(err, errors.ErrInvalidDataset) {
		status = "rejected"
	}
	metrics.RecordRetrain(status, run.Duration)

	s.log.Warnw("Retrain failed", "run_id", run.ID, "error", err)
	s.saveRun(context.WithoutCancel(ctx), run)
	return err
}

func (s *Service) saveRun(ctx context.Context, run *irrigation.TrainingRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.log.Warnw("Failed to record training run", "run_id", run.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, b *bundle.Bundle, run *irrigation.TrainingRun) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishModelRetrained(ctx, b, run); err != nil {
		s.log.Warnw("Failed to publish model event", "bundle_id", b.ID(), "error", err)
	}
}

func fillRunFromReport(run *irrigation.TrainingRun, r *bundle.Report) {
	if r == nil {
		return
	}
	run.Examples = r.Examples
	run.TrainSize = r.TrainSize
	run.ValidationSize = r.ValidationSize
	run.TrainAccuracy = r.TrainAccuracy
	run.ValidationAccuracy = r.ValidationAccuracy
	run.ROCAUC = r.ROCAUC
	run.Precision = r.Precision
	run.Recall = r.Recall
	run.F1 = r.F1
}
