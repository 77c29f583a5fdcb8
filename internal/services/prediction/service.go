package prediction

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/metrics"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/features"
	"irrigation/internal/ml/policy"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// Bundle swap sources
const (
	SourceStartup = "startup"
	SourceRetrain = "retrain"
	SourceSync    = "sync"
)

// Service serves predictions from the active bundle.
// The bundle pointer is read once per request, so an in-flight request
// finishes on the bundle it started with even if a swap happens meanwhile.
type Service struct {
	active atomic.Pointer[bundle.Bundle]
	audit  irrigation.PredictionLog
	log    *logger.Logger
}

// ModelInfo describes the active bundle for client form population
type ModelInfo struct {
	ModelID        string            `json:"model_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Classifier     string            `json:"classifier"`
	Encoding       features.Encoding `json:"encoding"`
	Features       []string          `json:"features"`
	SoilTypes      []bundle.Category `json:"soil_types"`
	SeedlingStages []bundle.Category `json:"seedling_stages"`
	Threshold      float64           `json:"threshold"`
	Report         *bundle.Report    `json:"report,omitempty"`
}

// NewService creates a prediction service. audit may be nil.
func NewService(audit irrigation.PredictionLog, log *logger.Logger) *Service {
	return &Service{
		audit: audit,
		log:   log,
	}
}

// Active returns the bundle currently serving predictions, or nil
func (s *Service) Active() *bundle.Bundle {
	return s.active.Load()
}

// Swap atomically replaces the active bundle and returns the previous one
func (s *Service) Swap(b *bundle.Bundle, source string) *bundle.Bundle {
	if b == nil {
		return s.active.Load()
	}
	prev := s.active.Swap(b)

	var valAcc float64
	if r := b.Report(); r != nil {
		valAcc = r.ValidationAccuracy
	}
	metrics.RecordBundleSwap(source, b.ID().String(), b.Classifier().Kind(), string(b.Schema().Encoding), valAcc)

	fields := []interface{}{
		"bundle_id", b.ID(),
		"source", source,
		"features", b.Schema().String(),
		"encoding", b.Schema().Encoding,
	}
	if prev != nil {
		fields = append(fields, "previous_bundle_id", prev.ID())
	}
	s.log.Infow("Activated model bundle", fields...)

	return prev
}

// Reload loads the stored bundle and activates it when its id differs from
// the active one. It reports whether a swap happened.
func (s *Service) Reload(ctx context.Context, store bundle.Store, source string) (bool, error) {
	if cur := s.active.Load(); cur != nil {
		id, err := store.CurrentID(ctx)
		if err != nil {
			return false, err
		}
		if id == cur.ID() {
			return false, nil
		}
	}

	b, err := store.Load(ctx)
	if err != nil {
		return false, err
	}
	if cur := s.active.Load(); cur != nil && cur.ID() == b.ID() {
		return false, nil
	}

	s.Swap(b, source)
	return true, nil
}

// Predict runs encode, scale, classify and interpret for one request
func (s *Service) Predict(ctx context.Context, in irrigation.RawInput) (result *irrigation.PredictionResult, err error) {
	start := time.Now()
	var prob float64

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Prediction panicked", "panic", fmt.Sprint(r))
			result, err = nil, errors.Wrap(errors.ErrInternal, "prediction failed")
		}

		var rec string
		if result != nil {
			rec = result.Recommendation
		}
		metrics.RecordPrediction(Outcome(err), time.Since(start), prob, rec)
	}()

	b := s.active.Load()
	if b == nil {
		return nil, errors.ErrModelNotLoaded
	}

	vec, err := b.Vectorize(in)
	if err != nil {
		return nil, s.classify(err, b, "preprocessing")
	}

	prob, err = b.Score(vec)
	if err != nil {
		return nil, s.classify(err, b, "classifier")
	}

	recommendation := policy.Recommend(prob)
	result = &irrigation.PredictionResult{
		NeedsIrrigation: b.Decide(prob),
		Confidence:      prob,
		Recommendation:  recommendation.String(),
		InputParameters: in,
		ModelID:         b.ID().String(),
	}

	s.recordAudit(ctx, b, in, result)
	return result, nil
}

// ModelInfo returns the feature contract and vocabularies of the active bundle
func (s *Service) ModelInfo() (*ModelInfo, error) {
	b := s.active.Load()
	if b == nil {
		return nil, errors.ErrModelNotLoaded
	}

	info := &ModelInfo{
		ModelID:        b.ID().String(),
		CreatedAt:      b.CreatedAt(),
		Classifier:     b.Classifier().Kind(),
		Encoding:       b.Schema().Encoding,
		Features:       b.Order(),
		SoilTypes:      b.Categories(features.SoilType),
		SeedlingStages: b.Categories(features.SeedlingStage),
		Threshold:      b.Threshold(),
		Report:         b.Report(),
	}
	if info.SoilTypes == nil {
		info.SoilTypes = []bundle.Category{}
	}
	if info.SeedlingStages == nil {
		info.SeedlingStages = []bundle.Category{}
	}
	return info, nil
}

// Outcome maps a prediction error to its metrics label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, errors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, errors.ErrModelNotLoaded), errors.Is(err, errors.ErrScalerNotFitted):
		return "unavailable"
	default:
		return "error"
	}
}

// classify keeps client and availability errors as they are and turns
// anything else into a redacted internal error, logging the detail
func (s *Service) classify(err error, b *bundle.Bundle, stage string) error {
	if errors.Is(err, errors.ErrInvalidInput) ||
		errors.Is(err, errors.ErrModelNotLoaded) ||
		errors.Is(err, errors.ErrScalerNotFitted) {
		return err
	}

	s.log.Errorw("Prediction failed",
		"error", err,
		"stage", stage,
		"bundle_id", b.ID(),
	)
	return errors.Wrapf(errors.ErrInternal, "%s failed", stage)
}

func (s *Service) recordAudit(ctx context.Context, b *bundle.Bundle, in irrigation.RawInput, res *irrigation.PredictionResult) {
	if s.audit == nil {
		return
	}

	rec := irrigation.PredictionRecord{
		ModelID:         b.ID(),
		Timestamp:       time.Now().UTC(),
		SoilType:        in.SoilType.String(),
		SeedlingStage:   in.SeedlingStage.String(),
		Moisture:        in.Moisture,
		Temperature:     in.Temperature,
		Humidity:        in.Humidity,
		Probability:     res.Confidence,
		NeedsIrrigation: res.NeedsIrrigation,
		Recommendation:  res.Recommendation,
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.log.Warnw("Failed to record prediction audit", "error", err, "bundle_id", b.ID())
	}
}
