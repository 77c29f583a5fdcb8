package main

import (
	"encoding/json"

	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
)

// preprocessing is the sidecar exported next to an externally trained model.
// Mean and Scale cover moisture, temperature and humidity in that order.
type preprocessing struct {
	Encoding       features.Encoding `json:"encoding"`
	SoilTypes      []string          `json:"soil_types"`
	SeedlingStages []string          `json:"seedling_stages"`
	IncludeCropID  bool              `json:"include_crop_id"`
	Mean           []float64         `json:"mean"`
	Scale          []float64         `json:"scale"`
	Threshold      float64           `json:"threshold"`
	InputName      string            `json:"input_name"`
	OutputName     string            `json:"output_name"`
}

func parsePreprocessing(data []byte) (*preprocessing, error) {
	var p preprocessing
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed preprocessing JSON: "+err.Error())
	}
	if p.Encoding == "" {
		p.Encoding = features.EncodingRaw
	}
	if !p.Encoding.Valid() {
		return nil, errors.NewValidationError("encoding", "must be 'raw' or 'coded'", p.Encoding)
	}
	return &p, nil
}

// params assembles everything but the classifier
func (p *preprocessing) params() (bundle.Params, error) {
	schema := features.BuildSchema(p.Encoding, len(p.SoilTypes) > 0, len(p.SeedlingStages) > 0, p.IncludeCropID)

	numeric := schema.NumericIndices()
	if len(p.Mean) != len(numeric) || len(p.Scale) != len(numeric) {
		return bundle.Params{}, errors.Wrapf(errors.ErrFeatureMismatch,
			"expected %d mean/scale values, got %d/%d", len(numeric), len(p.Mean), len(p.Scale))
	}
	for i, s := range p.Scale {
		if s <= 0 {
			return bundle.Params{}, errors.NewValidationError("scale", "values must be positive", i)
		}
	}

	params := bundle.Params{
		Schema: schema,
		Scaler: &features.Scaler{
			Indices: numeric,
			Mean:    append([]float64(nil), p.Mean...),
			Scale:   append([]float64(nil), p.Scale...),
		},
		Threshold: p.Threshold,
	}

	var err error
	if len(p.SoilTypes) > 0 {
		if params.Soil, err = features.NewVocabulary(p.SoilTypes); err != nil {
			return bundle.Params{}, errors.Wrap(err, "soil_types")
		}
	}
	if len(p.SeedlingStages) > 0 {
		if params.Seedling, err = features.NewVocabulary(p.SeedlingStages); err != nil {
			return bundle.Params{}, errors.Wrap(err, "seedling_stages")
		}
	}

	return params, nil
}
