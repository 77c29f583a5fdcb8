package bundle

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
)

// FormatVersion is bumped whenever the persisted layout changes incompatibly
const FormatVersion = 1

type document struct {
	Version    int                  `json:"version"`
	ID         uuid.UUID            `json:"id"`
	CreatedAt  time.Time            `json:"created_at"`
	Schema     features.Schema      `json:"schema"`
	Soil       *features.Vocabulary `json:"soil_vocabulary,omitempty"`
	Seedling   *features.Vocabulary `json:"seedling_vocabulary,omitempty"`
	Scaler     *features.Scaler     `json:"scaler"`
	Classifier classifier.Envelope  `json:"classifier"`
	Threshold  float64              `json:"threshold"`
	Report     *Report              `json:"report,omitempty"`
}

// Marshal serialises a bundle into its JSON artifact
func Marshal(b *Bundle) ([]byte, error) {
	if b == nil {
		return nil, errors.ErrModelNotLoaded
	}

	env, err := classifier.Encode(b.classifier)
	if err != nil {
		return nil, err
	}

	doc := document{
		Version:    FormatVersion,
		ID:         b.id,
		CreatedAt:  b.createdAt,
		Schema:     b.schema,
		Scaler:     b.scaler,
		Classifier: env,
		Threshold:  b.threshold,
		Report:     b.report,
	}
	if b.schema.Has(features.SoilType) {
		doc.Soil = b.soil
	}
	if b.schema.Has(features.SeedlingStage) {
		doc.Seedling = b.seedling
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal bundle")
	}
	return data, nil
}

// Unmarshal restores and validates a bundle. Any inconsistency is reported
// as ErrModelNotLoaded so a broken artifact is never served.
func Unmarshal(data []byte) (*Bundle, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(errors.ErrModelNotLoaded, "corrupt bundle: %v", err)
	}
	if doc.Version != FormatVersion {
		return nil, errors.Wrapf(errors.ErrModelNotLoaded, "unsupported bundle version %d", doc.Version)
	}

	clf, err := classifier.Decode(doc.Classifier)
	if err != nil {
		return nil, err
	}

	b, err := New(Params{
		ID:         doc.ID,
		CreatedAt:  doc.CreatedAt,
		Schema:     doc.Schema,
		Soil:       doc.Soil,
		Seedling:   doc.Seedling,
		Scaler:     doc.Scaler,
		Classifier: clf,
		Threshold:  doc.Threshold,
		Report:     doc.Report,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModelNotLoaded, "invalid bundle: %v", err)
	}
	return b, nil
}

// PeekID reads only the bundle id from an artifact
func PeekID(data []byte) (uuid.UUID, error) {
	var head struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return uuid.Nil, errors.Wrapf(errors.ErrModelNotLoaded, "corrupt bundle: %v", err)
	}
	return head.ID, nil
}
