package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
)

var (
	soils  = []string{"Clay", "Loamy", "Sandy"}
	stages = []string{"Germination", "Vegetative", "Flowering"}
)

// Dry soil needs irrigation
func syntheticDataset(n int) *Dataset {
	ds := &Dataset{HasSoil: true, HasSeedling: true, HasCropID: true}
	for i := 0; i < n; i++ {
		moisture := float64(5 + (i*37)%90)
		cropID := i % 4
		ds.Examples = append(ds.Examples, irrigation.LabeledExample{
			Moisture:      moisture,
			Temperature:   20 + float64((i*13)%15),
			Humidity:      30 + float64((i*7)%50),
			SoilType:      soils[i%3],
			SeedlingStage: stages[(i/3)%3],
			CropID:        &cropID,
			Result:        moisture < 45,
		})
	}
	return ds
}

func TestPipeline_Fit(t *testing.T) {
	p, err := NewPipeline(DefaultOptions())
	require.NoError(t, err)

	b, err := p.Fit(context.Background(), syntheticDataset(60))
	require.NoError(t, err)

	assert.Equal(t, []string{"moisture", "temperature", "humidity", "soil_type", "seedling_stage"}, b.Order())
	assert.Equal(t, features.EncodingRaw, b.Schema().Encoding)

	r := b.Report()
	require.NotNil(t, r)
	assert.Equal(t, classifier.KindLogistic, r.Classifier)
	assert.Equal(t, 60, r.Examples)
	assert.Equal(t, 60, r.TrainSize+r.ValidationSize)
	assert.Equal(t, 12, r.ValidationSize)
	assert.GreaterOrEqual(t, r.TrainAccuracy, 0.85)
	assert.Greater(t, r.ROCAUC, 0.8)
	require.Len(t, r.FeatureWeights, 5)
	assert.Equal(t, "moisture", r.FeatureWeights[0].Feature)
	assert.Less(t, r.FeatureWeights[0].Weight, 0.0)

	assert.Equal(t, soils[0], b.Categories(features.SoilType)[0].Name)
}

func TestPipeline_RoundTripMatchesClassifier(t *testing.T) {
	p, err := NewPipeline(DefaultOptions())
	require.NoError(t, err)

	ds := syntheticDataset(40)
	b, err := p.Fit(context.Background(), ds)
	require.NoError(t, err)

	for i, ex := range ds.Examples {
		in := irrigation.RawInput{
			SoilType:      irrigation.CategoryName(ex.SoilType),
			SeedlingStage: irrigation.CategoryName(ex.SeedlingStage),
			Moisture:      ex.Moisture,
			Temperature:   ex.Temperature,
			Humidity:      ex.Humidity,
		}
		served, err := b.Vectorize(in)
		require.NoError(t, err)

		trained, err := b.VectorizeExample(ex)
		require.NoError(t, err)
		assert.Equal(t, trained, served, "row %d", i)

		prob, err := b.Score(served)
		require.NoError(t, err)
		label, err := classifier.Predict(b.Classifier(), trained, b.Threshold())
		require.NoError(t, err)
		assert.Equal(t, label, b.Decide(prob), "row %d", i)
	}
}

func TestPipeline_Deterministic(t *testing.T) {
	p, err := NewPipeline(DefaultOptions())
	require.NoError(t, err)

	ds := syntheticDataset(30)
	first, err := p.Fit(context.Background(), ds)
	require.NoError(t, err)
	second, err := p.Fit(context.Background(), ds)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, first.Scaler(), second.Scaler())
	assert.Equal(t, first.Report().TrainAccuracy, second.Report().TrainAccuracy)
}

func TestPipeline_CodedWithCropID(t *testing.T) {
	opts := DefaultOptions()
	opts.Encoding = features.EncodingCoded
	opts.IncludeCropID = true
	p, err := NewPipeline(opts)
	require.NoError(t, err)

	b, err := p.Fit(context.Background(), syntheticDataset(30))
	require.NoError(t, err)
	assert.Equal(t, []string{"moisture", "temperature", "humidity", "soil_type", "seedling_stage", "crop_id"}, b.Order())

	cropID := 2
	_, err = b.Vectorize(irrigation.RawInput{
		SoilType:      irrigation.CategoryCode(1),
		SeedlingStage: irrigation.CategoryCode(0),
		Moisture:      40,
		Temperature:   25,
		Humidity:      50,
		CropID:        &cropID,
	})
	assert.NoError(t, err)
}

func TestPipeline_RejectsBadDatasets(t *testing.T) {
	p, err := NewPipeline(DefaultOptions())
	require.NoError(t, err)

	oneClass := syntheticDataset(20)
	for i := range oneClass.Examples {
		oneClass.Examples[i].Result = true
	}

	noCrop := syntheticDataset(20)
	noCrop.HasCropID = false

	cropOpts := DefaultOptions()
	cropOpts.IncludeCropID = true
	cropPipeline, err := NewPipeline(cropOpts)
	require.NoError(t, err)

	tests := []struct {
		name     string
		pipeline *Pipeline
		ds       *Dataset
	}{
		{"nil", p, nil},
		{"too few rows", p, syntheticDataset(5)},
		{"single class", p, oneClass},
		{"crop id required", cropPipeline, noCrop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.pipeline.Fit(context.Background(), tt.ds)
			assert.ErrorIs(t, err, errors.ErrInvalidDataset)
		})
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	p, err := NewPipeline(DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Fit(ctx, syntheticDataset(30))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPipeline_Validation(t *testing.T) {
	opts := DefaultOptions()
	opts.Classifier = "random_forest"
	_, err := NewPipeline(opts)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	opts = DefaultOptions()
	opts.ValidationSplit = 1
	_, err = NewPipeline(opts)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
