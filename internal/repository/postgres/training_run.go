package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/metrics"
	"irrigation/pkg/errors"
)

// Compile-time check
var _ irrigation.TrainingRunRepository = (*TrainingRunRepository)(nil)

const schemaTrainingRuns = `
CREATE TABLE IF NOT EXISTS training_runs (
    id                  UUID PRIMARY KEY,
    bundle_id           UUID,
    status              TEXT NOT NULL,
    examples            INTEGER NOT NULL DEFAULT 0,
    train_size          INTEGER NOT NULL DEFAULT 0,
    validation_size     INTEGER NOT NULL DEFAULT 0,
    train_accuracy      DOUBLE PRECISION NOT NULL DEFAULT 0,
    validation_accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    roc_auc             DOUBLE PRECISION NOT NULL DEFAULT 0,
    precision           DOUBLE PRECISION NOT NULL DEFAULT 0,
    recall              DOUBLE PRECISION NOT NULL DEFAULT 0,
    f1                  DOUBLE PRECISION NOT NULL DEFAULT 0,
    features            TEXT NOT NULL DEFAULT '',
    error               TEXT NOT NULL DEFAULT '',
    duration_ms         BIGINT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_training_runs_created_at ON training_runs (created_at DESC);
`

// TrainingRunRepository implements irrigation.TrainingRunRepository
type TrainingRunRepository struct {
	db DBTX
}

// NewTrainingRunRepository creates a new training run repository
func NewTrainingRunRepository(db DBTX) *TrainingRunRepository {
	return &TrainingRunRepository{db: db}
}

// EnsureSchema creates the training_runs table when missing
func (r *TrainingRunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaTrainingRuns); err != nil {
		return errors.Wrap(err, "create training_runs table")
	}
	return nil
}

// Create inserts a training run
func (r *TrainingRunRepository) Create(ctx context.Context, run *irrigation.TrainingRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.DurationMS == 0 && run.Duration > 0 {
		run.DurationMS = run.Duration.Milliseconds()
	}

	query := `
		INSERT INTO training_runs (
			id, bundle_id, status, examples, train_size, validation_size,
			train_accuracy, validation_accuracy, roc_auc, precision, recall, f1,
			features, error, duration_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.BundleID, run.Status, run.Examples, run.TrainSize, run.ValidationSize,
		run.TrainAccuracy, run.ValidationAccuracy, run.ROCAUC, run.Precision, run.Recall, run.F1,
		run.Features, run.Error, run.DurationMS, run.CreatedAt,
	)
	metrics.RecordDBQuery("postgres", "training_runs_insert", time.Since(start), err)
	if err != nil {
		return errors.Wrapf(err, "insert training run %s", run.ID)
	}

	return nil
}

// ListRecent returns the newest runs first
func (r *TrainingRunRepository) ListRecent(ctx context.Context, limit int) ([]irrigation.TrainingRun, error) {
	if limit <= 0 {
		return nil, errors.NewValidationError("limit", "must be positive", limit)
	}

	query := `
		SELECT id, bundle_id, status, examples, train_size, validation_size,
		       train_accuracy, validation_accuracy, roc_auc, precision, recall, f1,
		       features, error, duration_ms, created_at
		FROM training_runs
		ORDER BY created_at DESC
		LIMIT $1`

	var runs []irrigation.TrainingRun
	start := time.Now()
	err := r.db.SelectContext(ctx, &runs, query, limit)
	metrics.RecordDBQuery("postgres", "training_runs_list", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "list training runs")
	}

	for i := range runs {
		runs[i].Duration = time.Duration(runs[i].DurationMS) * time.Millisecond
	}
	return runs, nil
}
