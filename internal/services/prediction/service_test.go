package prediction

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/internal/ml/policy"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

// MockPredictionLog is a mock for irrigation.PredictionLog
type MockPredictionLog struct {
	mock.Mock
}

func (m *MockPredictionLog) Record(ctx context.Context, rec irrigation.PredictionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// MockStore is a mock for bundle.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load(ctx context.Context) (*bundle.Bundle, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bundle.Bundle), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, b *bundle.Bundle) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockStore) CurrentID(ctx context.Context) (uuid.UUID, error) {
	args := m.Called(ctx)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

// panickyClassifier simulates a broken model implementation
type panickyClassifier struct{}

func (panickyClassifier) Kind() string                             { return "panicky" }
func (panickyClassifier) NumFeatures() int                         { return 5 }
func (panickyClassifier) PredictProba(x []float64) (float64, error) { panic("index out of range") }

// testBundle builds a raw-encoded bundle whose classifier ignores the
// features and always returns sigmoid(bias)
func testBundle(t *testing.T, p float64, soils ...string) *bundle.Bundle {
	t.Helper()
	if len(soils) == 0 {
		soils = []string{"clay", "loamy", "sandy"}
	}

	schema := features.BuildSchema(features.EncodingRaw, true, true, false)
	b, err := bundle.New(bundle.Params{
		Schema:   schema,
		Soil:     features.FitVocabulary(soils),
		Seedling: features.FitVocabulary([]string{"flowering", "germination", "vegetative"}),
		Scaler: &features.Scaler{
			Indices: schema.NumericIndices(),
			Mean:    []float64{50, 25, 55},
			Scale:   []float64{20, 5, 15},
		},
		Classifier: &classifier.Logistic{Weights: make([]float64, 5), Bias: math.Log(p / (1 - p))},
	})
	require.NoError(t, err)
	return b
}

func scenarioInput() irrigation.RawInput {
	return irrigation.RawInput{
		SoilType:      irrigation.CategoryName("loamy"),
		SeedlingStage: irrigation.CategoryName("vegetative"),
		Moisture:      45,
		Temperature:   28,
		Humidity:      60,
	}
}

func newTestService(audit irrigation.PredictionLog) *Service {
	return NewService(audit, logger.Get())
}

func TestPredict_Scenario(t *testing.T) {
	audit := new(MockPredictionLog)
	audit.On("Record", mock.Anything, mock.MatchedBy(func(rec irrigation.PredictionRecord) bool {
		return rec.SoilType == "loamy" && rec.NeedsIrrigation
	})).Return(nil).Once()

	svc := newTestService(audit)
	b := testBundle(t, 0.73)
	svc.Swap(b, SourceStartup)

	res, err := svc.Predict(context.Background(), scenarioInput())
	require.NoError(t, err)

	assert.True(t, res.NeedsIrrigation)
	assert.InDelta(t, 0.73, res.Confidence, 1e-9)
	assert.Equal(t, "Consider irrigation in the next 24 hours", res.Recommendation)
	assert.Equal(t, scenarioInput(), res.InputParameters)
	assert.Equal(t, b.ID().String(), res.ModelID)
	audit.AssertExpectations(t)
}

func TestPredict_HalfProbabilityIsPositive(t *testing.T) {
	svc := newTestService(nil)
	svc.Swap(testBundle(t, 0.5), SourceStartup)

	res, err := svc.Predict(context.Background(), scenarioInput())
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Confidence)
	assert.True(t, res.NeedsIrrigation)
	assert.Equal(t, policy.Monitor.String(), res.Recommendation)
}

func TestPredict_Errors(t *testing.T) {
	t.Run("no bundle", func(t *testing.T) {
		svc := newTestService(nil)
		_, err := svc.Predict(context.Background(), scenarioInput())
		assert.ErrorIs(t, err, errors.ErrModelNotLoaded)
		assert.Equal(t, "unavailable", Outcome(err))

		_, err = svc.ModelInfo()
		assert.ErrorIs(t, err, errors.ErrModelNotLoaded)
	})

	t.Run("unknown category", func(t *testing.T) {
		svc := newTestService(nil)
		svc.Swap(testBundle(t, 0.7), SourceStartup)

		in := scenarioInput()
		in.SoilType = irrigation.CategoryName("unseen_category_xyz")
		_, err := svc.Predict(context.Background(), in)
		assert.ErrorIs(t, err, errors.ErrUnknownCategory)
		assert.Equal(t, "invalid_input", Outcome(err))
	})

	t.Run("classifier panic is internal", func(t *testing.T) {
		schema := features.BuildSchema(features.EncodingRaw, true, true, false)
		b, err := bundle.New(bundle.Params{
			Schema:     schema,
			Soil:       features.FitVocabulary([]string{"loamy"}),
			Seedling:   features.FitVocabulary([]string{"vegetative"}),
			Scaler:     &features.Scaler{Indices: schema.NumericIndices(), Mean: []float64{0, 0, 0}, Scale: []float64{1, 1, 1}},
			Classifier: panickyClassifier{},
		})
		require.NoError(t, err)

		svc := newTestService(nil)
		svc.Swap(b, SourceStartup)

		_, err = svc.Predict(context.Background(), scenarioInput())
		assert.ErrorIs(t, err, errors.ErrInternal)
		assert.NotContains(t, err.Error(), "index out of range")
		assert.Equal(t, "error", Outcome(err))
	})
}

func TestPredict_AuditFailureDoesNotFailRequest(t *testing.T) {
	audit := new(MockPredictionLog)
	audit.On("Record", mock.Anything, mock.Anything).Return(errors.New("clickhouse down"))

	svc := newTestService(audit)
	svc.Swap(testBundle(t, 0.9), SourceStartup)

	res, err := svc.Predict(context.Background(), scenarioInput())
	require.NoError(t, err)
	assert.Equal(t, policy.Immediate.String(), res.Recommendation)
}

func TestModelInfo(t *testing.T) {
	svc := newTestService(nil)
	b := testBundle(t, 0.6)
	svc.Swap(b, SourceStartup)

	info, err := svc.ModelInfo()
	require.NoError(t, err)
	assert.Equal(t, b.ID().String(), info.ModelID)
	assert.Equal(t, []string{"moisture", "temperature", "humidity", "soil_type", "seedling_stage"}, info.Features)
	assert.Equal(t, []bundle.Category{{Name: "clay", Code: 0}, {Name: "loamy", Code: 1}, {Name: "sandy", Code: 2}}, info.SoilTypes)
	assert.Equal(t, classifier.KindLogistic, info.Classifier)
	assert.Equal(t, features.EncodingRaw, info.Encoding)
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	first := testBundle(t, 0.6)
	second := testBundle(t, 0.2)

	store := new(MockStore)
	store.On("Load", ctx).Return(first, nil).Once()

	svc := newTestService(nil)
	swapped, err := svc.Reload(ctx, store, SourceStartup)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, first.ID(), svc.Active().ID())

	store.On("CurrentID", ctx).Return(first.ID(), nil).Once()
	swapped, err = svc.Reload(ctx, store, SourceSync)
	require.NoError(t, err)
	assert.False(t, swapped)

	store.On("CurrentID", ctx).Return(second.ID(), nil).Once()
	store.On("Load", ctx).Return(second, nil).Once()
	swapped, err = svc.Reload(ctx, store, SourceSync)
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, second.ID(), svc.Active().ID())

	store.AssertExpectations(t)
}

func TestPredict_SwapIsAtomic(t *testing.T) {
	// Each bundle has its own vocabulary and probability, so a response mixing
	// parts of both would either fail to encode or carry the wrong confidence
	a := testBundle(t, 0.3, "loamy", "clay")
	b := testBundle(t, 0.9, "loamy", "peat", "silt")
	expected := map[string]float64{
		a.ID().String(): 0.3,
		b.ID().String(): 0.9,
	}

	svc := newTestService(nil)
	svc.Swap(a, SourceStartup)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				svc.Swap(b, SourceRetrain)
			} else {
				svc.Swap(a, SourceRetrain)
			}
		}
		close(stop)
	}()

	errs := make(chan error, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}

				res, err := svc.Predict(context.Background(), scenarioInput())
				if err != nil {
					errs <- err
					return
				}
				want, ok := expected[res.ModelID]
				if !ok || math.Abs(want-res.Confidence) > 1e-9 {
					errs <- errors.Newf("bundle %s answered %v", res.ModelID, res.Confidence)
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
