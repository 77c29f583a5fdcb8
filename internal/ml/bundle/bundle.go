// Package bundle holds the unit of persistence for the prediction pipeline:
// feature schema, vocabularies, scaler parameters and the fitted classifier.
// A Bundle is immutable once built and safe for concurrent use.
package bundle

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
)

// Bundle is a fully fitted preprocessing + classifier pipeline
type Bundle struct {
	id         uuid.UUID
	createdAt  time.Time
	schema     features.Schema
	soil       *features.Vocabulary
	seedling   *features.Vocabulary
	scaler     *features.Scaler
	classifier classifier.Classifier
	threshold  float64
	report     *Report
	encoder    *features.Encoder
}

// Params are the parts a bundle is assembled from
type Params struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	Schema     features.Schema
	Soil       *features.Vocabulary
	Seedling   *features.Vocabulary
	Scaler     *features.Scaler
	Classifier classifier.Classifier
	Threshold  float64
	Report     *Report
}

// Category is one vocabulary entry as exposed to clients
type Category struct {
	Name string `json:"name"`
	Code int    `json:"code"`
}

// New validates the parts against each other and builds a bundle.
// A zero ID or CreatedAt is filled in, a zero Threshold becomes the default.
func New(p Params) (*Bundle, error) {
	if p.Classifier == nil {
		return nil, errors.Wrap(errors.ErrModelNotLoaded, "bundle has no classifier")
	}
	if !p.Scaler.Fitted() {
		return nil, errors.ErrScalerNotFitted
	}

	encoder, err := features.NewEncoder(p.Schema, p.Soil, p.Seedling)
	if err != nil {
		return nil, err
	}

	if !slices.Equal(p.Scaler.Indices, p.Schema.NumericIndices()) {
		return nil, errors.Wrapf(errors.ErrFeatureMismatch,
			"scaler covers indices %v, schema numeric indices are %v", p.Scaler.Indices, p.Schema.NumericIndices())
	}
	if p.Classifier.NumFeatures() != p.Schema.Len() {
		return nil, errors.Wrapf(errors.ErrFeatureMismatch,
			"classifier expects %d features, schema has %d", p.Classifier.NumFeatures(), p.Schema.Len())
	}

	if p.Threshold == 0 {
		p.Threshold = classifier.DefaultThreshold
	}
	if p.Threshold < 0 || p.Threshold > 1 || math.IsNaN(p.Threshold) {
		return nil, errors.NewValidationError("threshold", "must be in (0, 1]", p.Threshold)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	return &Bundle{
		id:         p.ID,
		createdAt:  p.CreatedAt,
		schema:     p.Schema,
		soil:       p.Soil,
		seedling:   p.Seedling,
		scaler:     p.Scaler,
		classifier: p.Classifier,
		threshold:  p.Threshold,
		report:     p.Report,
		encoder:    encoder,
	}, nil
}

// ID identifies the bundle
func (b *Bundle) ID() uuid.UUID { return b.id }

// CreatedAt is when the bundle was fitted
func (b *Bundle) CreatedAt() time.Time { return b.createdAt }

// Schema returns the feature contract
func (b *Bundle) Schema() features.Schema { return b.schema }

// Threshold is the needs_irrigation decision boundary
func (b *Bundle) Threshold() float64 { return b.threshold }

// Report returns the evaluation report recorded at training time, if any
func (b *Bundle) Report() *Report { return b.report }

// Classifier returns the fitted classifier
func (b *Bundle) Classifier() classifier.Classifier { return b.classifier }

// Scaler returns the fitted scaler
func (b *Bundle) Scaler() *features.Scaler { return b.scaler }

// Order returns the feature names in vector order
func (b *Bundle) Order() []string { return b.encoder.Order() }

// Vectorize encodes and scales a prediction request
func (b *Bundle) Vectorize(in irrigation.RawInput) (features.Vector, error) {
	vec, err := b.encoder.Encode(in)
	if err != nil {
		return nil, err
	}
	return b.scaler.Transform(vec)
}

// VectorizeExample encodes and scales a training row
func (b *Bundle) VectorizeExample(ex irrigation.LabeledExample) (features.Vector, error) {
	vec, err := b.encoder.EncodeExample(ex)
	if err != nil {
		return nil, err
	}
	return b.scaler.Transform(vec)
}

// Score runs the classifier on a prepared vector and validates its output
func (b *Bundle) Score(vec features.Vector) (float64, error) {
	p, err := b.classifier.PredictProba(vec)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, errors.Wrapf(errors.ErrInternal, "classifier returned probability %v", p)
	}
	return p, nil
}

// Decide applies the bundle threshold
func (b *Bundle) Decide(p float64) bool {
	return classifier.Decide(p, b.threshold)
}

// Categories lists a categorical vocabulary in code order.
// Returns nil when the schema does not use the field.
func (b *Bundle) Categories(field string) []Category {
	if !b.schema.Has(field) {
		return nil
	}

	var vocab *features.Vocabulary
	switch field {
	case features.SoilType:
		vocab = b.soil
	case features.SeedlingStage:
		vocab = b.seedling
	default:
		return nil
	}

	classes := vocab.Classes()
	out := make([]Category, len(classes))
	for i, c := range classes {
		out[i] = Category{Name: c, Code: i}
	}
	return out
}
