package irrigation

import (
	"context"
)

// TrainingRunRepository stores the retrain history
type TrainingRunRepository interface {
	Create(ctx context.Context, run *TrainingRun) error
	ListRecent(ctx context.Context, limit int) ([]TrainingRun, error)
}

// PredictionLog receives an audit record for every served prediction
type PredictionLog interface {
	Record(ctx context.Context, rec PredictionRecord) error
}
