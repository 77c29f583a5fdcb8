package metrics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"irrigation/pkg/logger"
)

// TrainingHistoryCollector exposes retrain history stored in Postgres
type TrainingHistoryCollector struct {
	log      *logger.Logger
	postgres *sqlx.DB

	// Descriptors
	runsByStatus   *prometheus.Desc
	lastSuccessAge *prometheus.Desc
}

// NewTrainingHistoryCollector creates a new training history collector
func NewTrainingHistoryCollector(log *logger.Logger, postgres *sqlx.DB) *TrainingHistoryCollector {
	return &TrainingHistoryCollector{
		log:      log,
		postgres: postgres,

		runsByStatus: prometheus.NewDesc(
			"irrigation_training_runs",
			"Recorded training runs by status",
			[]string{"status"}, nil,
		),
		lastSuccessAge: prometheus.NewDesc(
			"irrigation_last_successful_training_age_seconds",
			"Seconds since the last successful retrain",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *TrainingHistoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runsByStatus
	ch <- c.lastSuccessAge
}

// Collect implements prometheus.Collector
func (c *TrainingHistoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectRunCounts(ctx, ch)
	c.collectLastSuccess(ctx, ch)
}

func (c *TrainingHistoryCollector) collectRunCounts(ctx context.Context, ch chan<- prometheus.Metric) {
	type RunStat struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var stats []RunStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) as count
		FROM training_runs
		GROUP BY status
	`)
	if err != nil {
		c.log.Warnw("Failed to collect training run stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.runsByStatus,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Status,
		)
	}
}

func (c *TrainingHistoryCollector) collectLastSuccess(ctx context.Context, ch chan<- prometheus.Metric) {
	var last *time.Time
	err := c.postgres.GetContext(ctx, &last, `
		SELECT MAX(created_at)
		FROM training_runs
		WHERE status = 'succeeded'
	`)
	if err != nil {
		c.log.Warnw("Failed to collect last training time", "error", err)
		return
	}
	if last == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.lastSuccessAge,
		prometheus.GaugeValue,
		time.Since(*last).Seconds(),
	)
}

// RegisterTrainingHistoryCollector registers the collector
func RegisterTrainingHistoryCollector(collector *TrainingHistoryCollector) {
	prometheus.MustRegister(collector)
}
