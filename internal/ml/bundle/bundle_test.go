package bundle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
)

func testParams(t *testing.T) Params {
	t.Helper()

	schema := features.BuildSchema(features.EncodingRaw, true, true, false)
	return Params{
		Schema:   schema,
		Soil:     features.FitVocabulary([]string{"Clay", "Loamy", "Sandy"}),
		Seedling: features.FitVocabulary([]string{"Flowering", "Germination", "Vegetative"}),
		Scaler: &features.Scaler{
			Indices: schema.NumericIndices(),
			Mean:    []float64{50, 25, 55},
			Scale:   []float64{20, 5, 15},
		},
		Classifier: &classifier.Logistic{Weights: []float64{-1.5, 0.8, -0.2, 0.1, 0.05}, Bias: 0.3},
		Report:     &Report{Classifier: classifier.KindLogistic, Examples: 100, TrainAccuracy: 0.9},
	}
}

func testInput() irrigation.RawInput {
	return irrigation.RawInput{
		SoilType:      irrigation.CategoryName("Loamy"),
		SeedlingStage: irrigation.CategoryName("Vegetative"),
		Moisture:      45,
		Temperature:   28,
		Humidity:      60,
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	b, err := New(testParams(t))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, b.ID())
	assert.False(t, b.CreatedAt().IsZero())
	assert.Equal(t, classifier.DefaultThreshold, b.Threshold())
	assert.Equal(t, []string{"moisture", "temperature", "humidity", "soil_type", "seedling_stage"}, b.Order())
}

func TestNew_RejectsInconsistentParts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		target error
	}{
		{"no classifier", func(p *Params) { p.Classifier = nil }, errors.ErrModelNotLoaded},
		{"unfitted scaler", func(p *Params) { p.Scaler = nil }, errors.ErrScalerNotFitted},
		{"classifier width", func(p *Params) {
			p.Classifier = &classifier.Logistic{Weights: []float64{1, 2, 3}}
		}, errors.ErrFeatureMismatch},
		{"scaler indices", func(p *Params) {
			p.Scaler = &features.Scaler{Indices: []int{0, 1}, Mean: []float64{0, 0}, Scale: []float64{1, 1}}
		}, errors.ErrFeatureMismatch},
		{"missing vocabulary", func(p *Params) { p.Soil = nil }, errors.ErrFeatureMismatch},
		{"threshold", func(p *Params) { p.Threshold = 1.5 }, errors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(t)
			tt.mutate(&p)
			_, err := New(p)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestBundle_VectorizeAndScore(t *testing.T) {
	b, err := New(testParams(t))
	require.NoError(t, err)

	vec, err := b.Vectorize(testInput())
	require.NoError(t, err)
	require.Len(t, vec, 5)
	assert.InDelta(t, -0.25, vec[0], 1e-9)
	assert.InDelta(t, 0.6, vec[1], 1e-9)
	assert.InDelta(t, 1.0/3, vec[2], 1e-9)
	assert.Equal(t, 1.0, vec[3])
	assert.Equal(t, 2.0, vec[4])

	p, err := b.Score(vec)
	require.NoError(t, err)
	label, err := classifier.Predict(b.Classifier(), vec, b.Threshold())
	require.NoError(t, err)
	assert.Equal(t, label, b.Decide(p))

	in := testInput()
	in.SoilType = irrigation.CategoryName("unseen_category_xyz")
	_, err = b.Vectorize(in)
	assert.ErrorIs(t, err, errors.ErrUnknownCategory)
}

func TestBundle_Categories(t *testing.T) {
	b, err := New(testParams(t))
	require.NoError(t, err)

	assert.Equal(t, []Category{{"Clay", 0}, {"Loamy", 1}, {"Sandy", 2}}, b.Categories(features.SoilType))
	assert.Nil(t, b.Categories(features.CropID))
}

func TestCodec_RoundTrip(t *testing.T) {
	original, err := New(testParams(t))
	require.NoError(t, err)

	data, err := Marshal(original)
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.ID(), restored.ID())
	assert.True(t, original.CreatedAt().Equal(restored.CreatedAt()))
	assert.Equal(t, original.Schema(), restored.Schema())
	assert.Equal(t, original.Report(), restored.Report())

	v1, err := original.Vectorize(testInput())
	require.NoError(t, err)
	v2, err := restored.Vectorize(testInput())
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	p1, err := original.Score(v1)
	require.NoError(t, err)
	p2, err := restored.Score(v2)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	id, err := PeekID(data)
	require.NoError(t, err)
	assert.Equal(t, original.ID(), id)
}

func TestCodec_RejectsBrokenArtifacts(t *testing.T) {
	_, err := Unmarshal([]byte(`{not json`))
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)

	_, err = Unmarshal([]byte(`{"version":99}`))
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)

	b, err := New(testParams(t))
	require.NoError(t, err)
	data, err := Marshal(b)
	require.NoError(t, err)

	// Drop the soil vocabulary while the schema still needs it
	broken := strings.Replace(string(data), `"soil_vocabulary":["Clay","Loamy","Sandy"],`, "", 1)
	require.NotEqual(t, string(data), broken)
	_, err = Unmarshal([]byte(broken))
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)
}

func TestFileStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "models", "bundle.json"))
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = store.CurrentID(ctx)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	b, err := New(testParams(t))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, b))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), loaded.ID())

	id, err := store.CurrentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), id)

	entries, err := os.ReadDir(filepath.Join(dir, "models"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}
