package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/pkg/errors"
)

// Dry soil and heat need water, wet soil does not
func separableData() ([][]float64, []bool) {
	X := [][]float64{
		{-1.5, 1.0}, {-1.2, 0.8}, {-1.0, 1.2}, {-0.8, 0.5},
		{0.8, -0.5}, {1.0, -1.2}, {1.2, -0.8}, {1.5, -1.0},
	}
	y := []bool{true, true, true, true, false, false, false, false}
	return X, y
}

func TestDecide_ThresholdIsInclusive(t *testing.T) {
	assert.True(t, Decide(0.5, DefaultThreshold))
	assert.True(t, Decide(0.73, DefaultThreshold))
	assert.False(t, Decide(0.4999999, DefaultThreshold))
	assert.False(t, Decide(0.5, 0.6))
}

func TestLogistic_FitSeparable(t *testing.T) {
	X, y := separableData()

	m, err := NewLogistic(Options{Epochs: 300, LearningRate: 0.5, L2: 0.001})
	require.NoError(t, err)
	require.NoError(t, m.Fit(context.Background(), X, y, nil))

	assert.Equal(t, 2, m.NumFeatures())
	for i, row := range X {
		label, err := Predict(m, row, DefaultThreshold)
		require.NoError(t, err)
		assert.Equal(t, y[i], label, "row %d", i)
	}

	importances := m.Importances()
	assert.Less(t, importances[0], 0.0, "more moisture lowers the need")
	assert.Greater(t, importances[1], 0.0)

	p, err := m.PredictProba([]float64{-2, 2})
	require.NoError(t, err)
	assert.Greater(t, p, 0.5)
	assert.LessOrEqual(t, p, 1.0)
}

func TestLogistic_FitValidation(t *testing.T) {
	m, err := NewLogistic(Options{Epochs: 10, LearningRate: 0.1})
	require.NoError(t, err)

	err = m.Fit(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidDataset)

	err = m.Fit(context.Background(), [][]float64{{1, 2}, {1}}, []bool{true, false}, nil)
	assert.ErrorIs(t, err, errors.ErrFeatureMismatch)

	err = m.Fit(context.Background(), [][]float64{{1}}, []bool{true}, []float64{1, 2})
	assert.ErrorIs(t, err, errors.ErrFeatureMismatch)

	_, err = m.PredictProba([]float64{1})
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)

	_, err = NewLogistic(Options{Epochs: 0, LearningRate: 0.1})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestLogistic_FitHonoursCancellation(t *testing.T) {
	X, y := separableData()
	m, err := NewLogistic(Options{Epochs: 1000, LearningRate: 0.1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = m.Fit(ctx, X, y, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.NumFeatures(), "cancelled fit must not publish weights")
}

func TestLogistic_SampleWeightsShiftDecision(t *testing.T) {
	X := [][]float64{{0}, {0}, {0}, {0}}
	y := []bool{true, false, false, false}

	plain, err := NewLogistic(Options{Epochs: 500, LearningRate: 0.5})
	require.NoError(t, err)
	require.NoError(t, plain.Fit(context.Background(), X, y, nil))
	p, _ := plain.PredictProba([]float64{0})
	assert.InDelta(t, 0.25, p, 0.02)

	balanced, err := NewLogistic(Options{Epochs: 500, LearningRate: 0.5})
	require.NoError(t, err)
	require.NoError(t, balanced.Fit(context.Background(), X, y, []float64{3, 1, 1, 1}))
	p, _ = balanced.PredictProba([]float64{0})
	assert.InDelta(t, 0.5, p, 0.02)
}

func TestCodec_RoundTrip(t *testing.T) {
	X, y := separableData()
	trained, err := New(KindLogistic, Options{Epochs: 100, LearningRate: 0.5})
	require.NoError(t, err)
	require.NoError(t, trained.Fit(context.Background(), X, y, nil))

	env, err := Encode(trained)
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, env.Kind)

	restored, err := Decode(env)
	require.NoError(t, err)

	for _, row := range X {
		want, err := trained.PredictProba(row)
		require.NoError(t, err)
		got, err := restored.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = restored.PredictProba([]float64{1, 2, 3})
	assert.ErrorIs(t, err, errors.ErrFeatureMismatch)
}

func TestCodec_Errors(t *testing.T) {
	_, err := Decode(Envelope{Kind: "random_forest", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)

	_, err = Decode(Envelope{Kind: KindLogistic, Payload: []byte(`{"weights":[],"bias":0}`)})
	assert.ErrorIs(t, err, errors.ErrModelNotLoaded)

	_, err = New(KindONNX, Options{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	assert.Contains(t, Kinds(), KindLogistic)
	assert.Contains(t, Kinds(), KindONNX)
}
