// Package training fits a model bundle from a labelled dataset.
package training

import (
	"context"
	"fmt"
	"time"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// Options configure a training run
type Options struct {
	Classifier      string
	Encoding        features.Encoding
	IncludeCropID   bool
	ValidationSplit float64
	Seed            int64
	MinExamples     int
	Threshold       float64
	Hyper           classifier.Options
}

// DefaultOptions mirror the service defaults
func DefaultOptions() Options {
	return Options{
		Classifier:      classifier.KindLogistic,
		Encoding:        features.EncodingRaw,
		ValidationSplit: 0.2,
		Seed:            42,
		MinExamples:     10,
		Threshold:       classifier.DefaultThreshold,
		Hyper:           classifier.Options{Epochs: 500, LearningRate: 0.1, L2: 0.001},
	}
}

// Pipeline fits vocabularies, scaler and classifier in one pass
type Pipeline struct {
	opts Options
	log  *logger.Logger
}

// NewPipeline validates options and creates a pipeline
func NewPipeline(opts Options) (*Pipeline, error) {
	if !opts.Encoding.Valid() {
		return nil, errors.NewValidationError("encoding", "must be 'raw' or 'coded'", opts.Encoding)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return nil, errors.NewValidationError("validation_split", "must be in [0, 1)", opts.ValidationSplit)
	}
	if opts.MinExamples < 2 {
		opts.MinExamples = 2
	}
	if opts.Threshold == 0 {
		opts.Threshold = classifier.DefaultThreshold
	}
	if _, err := classifier.New(opts.Classifier, opts.Hyper); err != nil {
		return nil, err
	}

	return &Pipeline{
		opts: opts,
		log:  logger.Get().Component("training_pipeline"),
	}, nil
}

// Options returns the effective options
func (p *Pipeline) Options() Options {
	return p.opts
}

// Fit produces a new independent bundle. Nothing outside the returned value
// is modified, so a failure leaves any serving bundle untouched.
func (p *Pipeline) Fit(ctx context.Context, ds *Dataset) (*bundle.Bundle, error) {
	start := time.Now()

	if err := p.checkDataset(ds); err != nil {
		return nil, err
	}

	schema := features.BuildSchema(p.opts.Encoding, ds.HasSoil, ds.HasSeedling, p.opts.IncludeCropID)

	// Vocabularies cover the full dataset so validation rows are always encodable
	var soil, seedling *features.Vocabulary
	if ds.HasSoil {
		soil = features.FitVocabulary(column(ds.Examples, func(ex irrigation.LabeledExample) string { return ex.SoilType }))
	}
	if ds.HasSeedling {
		seedling = features.FitVocabulary(column(ds.Examples, func(ex irrigation.LabeledExample) string { return ex.SeedlingStage }))
	}

	encoder, err := features.NewEncoder(schema, soil, seedling)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build encoder")
	}

	raw := make([]features.Vector, len(ds.Examples))
	labels := make([]bool, len(ds.Examples))
	for i, ex := range ds.Examples {
		if raw[i], err = encoder.EncodeExample(ex); err != nil {
			return nil, errors.NewDatasetError(i+2, "", err.Error())
		}
		labels[i] = ex.Result
	}

	trainIdx, valIdx := Split(labels, p.opts.ValidationSplit, p.opts.Seed)

	trainRaw := pick(raw, trainIdx)
	scaler, err := features.FitScaler(trainRaw, schema.NumericIndices())
	if err != nil {
		return nil, err
	}

	scaled := make([][]float64, len(raw))
	for i, v := range raw {
		if scaled[i], err = scaler.Transform(v); err != nil {
			return nil, err
		}
	}

	trainX := pickRows(scaled, trainIdx)
	trainY := pickLabels(labels, trainIdx)

	clf, err := classifier.New(p.opts.Classifier, p.opts.Hyper)
	if err != nil {
		return nil, err
	}
	if err := clf.Fit(ctx, trainX, trainY, BalancedWeights(trainY)); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "training cancelled")
		}
		return nil, errors.Wrapf(errors.ErrTrainingFailed, "%s fit failed: %v", clf.Kind(), err)
	}

	report, err := p.report(clf, schema, scaled, labels, trainIdx, valIdx)
	if err != nil {
		return nil, err
	}

	b, err := bundle.New(bundle.Params{
		Schema:     schema,
		Soil:       soil,
		Seedling:   seedling,
		Scaler:     scaler,
		Classifier: clf,
		Threshold:  p.opts.Threshold,
		Report:     report,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrTrainingFailed, "fitted parts are inconsistent: %v", err)
	}

	p.log.Infow("Fitted model bundle",
		"bundle_id", b.ID(),
		"classifier", clf.Kind(),
		"features", schema.String(),
		"examples", report.Examples,
		"train_accuracy", report.TrainAccuracy,
		"validation_accuracy", report.ValidationAccuracy,
		"roc_auc", report.ROCAUC,
		"duration", time.Since(start),
	)

	return b, nil
}

func (p *Pipeline) checkDataset(ds *Dataset) error {
	if ds == nil || len(ds.Examples) == 0 {
		return errors.NewDatasetError(0, "", "no data rows")
	}
	if len(ds.Examples) < p.opts.MinExamples {
		return errors.NewDatasetError(0, "", fmt.Sprintf("need at least %d rows, got %d", p.opts.MinExamples, len(ds.Examples)))
	}

	pos := ds.Positives()
	if pos == 0 || pos == len(ds.Examples) {
		return errors.NewDatasetError(0, labelColumn, "both classes must be present")
	}
	if p.opts.IncludeCropID && !ds.HasCropID {
		return errors.NewDatasetError(0, features.CropID, "required column is missing")
	}
	if p.opts.Encoding == features.EncodingCoded && !ds.HasSoil && !ds.HasSeedling {
		p.log.Warnw("Coded encoding requested but dataset has no categorical columns")
	}
	return nil
}

func (p *Pipeline) report(clf classifier.Classifier, schema features.Schema, X [][]float64, y []bool, trainIdx, valIdx []int) (*bundle.Report, error) {
	score := func(idx []int) ([]float64, []bool, error) {
		probs := make([]float64, len(idx))
		labels := make([]bool, len(idx))
		for i, j := range idx {
			pr, err := clf.PredictProba(X[j])
			if err != nil {
				return nil, nil, errors.Wrapf(errors.ErrTrainingFailed, "scoring row %d: %v", j, err)
			}
			probs[i] = pr
			labels[i] = y[j]
		}
		return probs, labels, nil
	}

	trainP, trainY, err := score(trainIdx)
	if err != nil {
		return nil, err
	}
	train := Evaluate(trainP, trainY, p.opts.Threshold)

	r := &bundle.Report{
		Classifier:     clf.Kind(),
		Examples:       len(y),
		TrainSize:      len(trainIdx),
		ValidationSize: len(valIdx),
		TrainAccuracy:  train.Accuracy,
		PositiveRate:   ratio(countTrue(y), len(y)),
	}

	// Headline figures come from the held-out split when there is one
	headline := train
	if len(valIdx) > 0 {
		valP, valY, err := score(valIdx)
		if err != nil {
			return nil, err
		}
		headline = Evaluate(valP, valY, p.opts.Threshold)
		r.ValidationAccuracy = headline.Accuracy
	}
	r.ROCAUC = headline.ROCAUC
	r.Precision = headline.Precision
	r.Recall = headline.Recall
	r.F1 = headline.F1
	r.Confusion = headline.Confusion

	if ex, ok := clf.(classifier.Explainer); ok {
		names := schema.Names()
		for i, w := range ex.Importances() {
			if i < len(names) {
				r.FeatureWeights = append(r.FeatureWeights, bundle.FeatureWeight{Feature: names[i], Weight: w})
			}
		}
	}

	return r, nil
}

func column(examples []irrigation.LabeledExample, get func(irrigation.LabeledExample) string) []string {
	out := make([]string, len(examples))
	for i, ex := range examples {
		out[i] = get(ex)
	}
	return out
}

func pick(rows []features.Vector, idx []int) []features.Vector {
	out := make([]features.Vector, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func pickRows(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func pickLabels(labels []bool, idx []int) []bool {
	out := make([]bool, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}

func countTrue(values []bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}
