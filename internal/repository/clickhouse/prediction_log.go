package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/metrics"
	chbatch "irrigation/pkg/clickhouse"
	"irrigation/pkg/errors"
)

// Compile-time check
var _ irrigation.PredictionLog = (*PredictionLogRepository)(nil)

const tablePredictionLog = "prediction_log"

const schemaPredictionLog = `
CREATE TABLE IF NOT EXISTS prediction_log (
    model_id         UUID,
    timestamp        DateTime64(3, 'UTC'),
    soil_type        LowCardinality(String),
    seedling_stage   LowCardinality(String),
    moisture         Float64,
    temperature      Float64,
    humidity         Float64,
    probability      Float64,
    needs_irrigation Bool,
    recommendation   LowCardinality(String)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(timestamp)
ORDER BY (model_id, timestamp)
TTL toDateTime(timestamp) + INTERVAL 180 DAY
`

// PredictionLogRepository buffers audit rows and inserts them in batches
type PredictionLogRepository struct {
	conn   driver.Conn
	writer *chbatch.BatchWriter[irrigation.PredictionRecord]
}

// PredictionLogConfig tunes batching
type PredictionLogConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// NewPredictionLogRepository creates the repository. Call Start to enable periodic flushing.
func NewPredictionLogRepository(conn driver.Conn, cfg PredictionLogConfig) *PredictionLogRepository {
	r := &PredictionLogRepository{conn: conn}
	r.writer = chbatch.NewBatchWriter(chbatch.BatchWriterConfig[irrigation.PredictionRecord]{
		FlushFunc:    r.insert,
		TableName:    tablePredictionLog,
		MaxBatchSize: cfg.BatchSize,
		MaxAge:       cfg.FlushInterval,
	})
	return r
}

// EnsureSchema creates the audit table when missing
func (r *PredictionLogRepository) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, schemaPredictionLog); err != nil {
		return errors.Wrap(err, "create prediction_log table")
	}
	return nil
}

// Start begins periodic flushing until ctx is cancelled
func (r *PredictionLogRepository) Start(ctx context.Context) {
	r.writer.Start(ctx)
}

// Stop flushes buffered rows
func (r *PredictionLogRepository) Stop(ctx context.Context) error {
	return r.writer.Stop(ctx)
}

// Record buffers one audit row
func (r *PredictionLogRepository) Record(ctx context.Context, rec irrigation.PredictionRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	return r.writer.Add(ctx, rec)
}

// Pending returns the number of rows waiting for the next flush
func (r *PredictionLogRepository) Pending() int {
	return r.writer.BufferSize()
}

func (r *PredictionLogRepository) insert(ctx context.Context, rows []irrigation.PredictionRecord) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("clickhouse", "prediction_log_insert", time.Since(start), err)
	}()

	batch, err := r.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", tablePredictionLog))
	if err != nil {
		return errors.Wrap(err, "prepare prediction_log batch")
	}

	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			_ = batch.Abort()
			return errors.Wrap(err, "append prediction_log row")
		}
	}

	if err := batch.Send(); err != nil {
		return errors.Wrapf(err, "send %d prediction_log rows", len(rows))
	}
	return nil
}

// RecommendationCount is one row of the per-recommendation summary
type RecommendationCount struct {
	Recommendation string  `ch:"recommendation" json:"recommendation"`
	Predictions    uint64  `ch:"predictions" json:"predictions"`
	AvgProbability float64 `ch:"avg_probability" json:"avg_probability"`
}

// Summary aggregates predictions served since the given time
func (r *PredictionLogRepository) Summary(ctx context.Context, since time.Time) ([]RecommendationCount, error) {
	query := `
		SELECT recommendation, count() AS predictions, avg(probability) AS avg_probability
		FROM prediction_log
		WHERE timestamp >= ?
		GROUP BY recommendation
		ORDER BY predictions DESC
	`

	var out []RecommendationCount
	start := time.Now()
	err := r.conn.Select(ctx, &out, query, since)
	metrics.RecordDBQuery("clickhouse", "prediction_log_summary", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "summarise prediction_log")
	}
	return out, nil
}
