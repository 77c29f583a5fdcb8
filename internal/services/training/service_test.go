package training

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/bundle"
	mltraining "irrigation/internal/ml/training"
	"irrigation/internal/testsupport"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

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

// MockRunRepository is a mock for irrigation.TrainingRunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Create(ctx context.Context, run *irrigation.TrainingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) ListRecent(ctx context.Context, limit int) ([]irrigation.TrainingRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]irrigation.TrainingRun), args.Error(1)
}

// MockPublisher is a mock for EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishModelRetrained(ctx context.Context, b *bundle.Bundle, run *irrigation.TrainingRun) error {
	args := m.Called(ctx, b, run)
	return args.Error(0)
}

// recordingSwapper remembers every swapped bundle
type recordingSwapper struct {
	mu      sync.Mutex
	swapped []*bundle.Bundle
}

func (r *recordingSwapper) Swap(b *bundle.Bundle, source string) *bundle.Bundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swapped = append(r.swapped, b)
	return nil
}

func (r *recordingSwapper) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.swapped)
}

func newTestService(t *testing.T, store *MockStore, runs irrigation.TrainingRunRepository, events EventPublisher, swapper BundleSwapper) *Service {
	t.Helper()

	pipeline, err := mltraining.NewPipeline(mltraining.DefaultOptions())
	require.NoError(t, err)

	return NewService(Config{
		Pipeline:  pipeline,
		Store:     store,
		Predictor: swapper,
		Runs:      runs,
		Events:    events,
		Timeout:   time.Minute,
	}, logger.Get())
}

func TestRetrainCSV_Success(t *testing.T) {
	store := new(MockStore)
	runs := new(MockRunRepository)
	events := new(MockPublisher)
	swapper := &recordingSwapper{}

	store.On("Save", mock.Anything, mock.AnythingOfType("*bundle.Bundle")).Return(nil).Once()
	runs.On("Create", mock.Anything, mock.MatchedBy(func(run *irrigation.TrainingRun) bool {
		return run.Status == irrigation.RunSucceeded && run.BundleID != nil
	})).Return(nil).Once()
	events.On("PublishModelRetrained", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	svc := newTestService(t, store, runs, events, swapper)

	out, err := svc.RetrainCSV(context.Background(), strings.NewReader(testsupport.SyntheticCSV(50)))
	require.NoError(t, err)

	assert.Equal(t, 50, out.Run.Examples)
	assert.Equal(t, irrigation.RunSucceeded, out.Run.Status)
	assert.Greater(t, out.Run.TrainAccuracy, 0.8)
	assert.Equal(t, "moisture,temperature,humidity,soil_type,seedling_stage", out.Run.Features)
	require.NotNil(t, out.Report)
	assert.Equal(t, 1, swapper.count())
	assert.Equal(t, out.BundleID, swapper.swapped[0].ID())

	store.AssertExpectations(t)
	runs.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestRetrain_InvalidDatasetKeepsServingBundle(t *testing.T) {
	store := new(MockStore)
	runs := new(MockRunRepository)
	swapper := &recordingSwapper{}

	runs.On("Create", mock.Anything, mock.MatchedBy(func(run *irrigation.TrainingRun) bool {
		return run.Status == irrigation.RunFailed && run.Error != ""
	})).Return(nil).Once()

	svc := newTestService(t, store, runs, nil, swapper)

	// single class
	csv := "moi,temp,humidity,result\n" + strings.Repeat("10,20,30,1\n", 20)
	_, err := svc.RetrainCSV(context.Background(), strings.NewReader(csv))
	assert.ErrorIs(t, err, errors.ErrInvalidDataset)

	_, err = svc.RetrainCSV(context.Background(), strings.NewReader("moi,temp\n1,2\n"))
	assert.ErrorIs(t, err, errors.ErrInvalidDataset)

	assert.Zero(t, swapper.count())
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	runs.AssertExpectations(t)
}

func TestRetrain_PersistFailureDoesNotSwap(t *testing.T) {
	store := new(MockStore)
	swapper := &recordingSwapper{}
	store.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	svc := newTestService(t, store, nil, nil, swapper)

	_, err := svc.RetrainCSV(context.Background(), strings.NewReader(testsupport.SyntheticCSV(30)))
	assert.ErrorIs(t, err, errors.ErrTrainingFailed)
	assert.Zero(t, swapper.count())
}

func TestRetrain_RejectsConcurrentRun(t *testing.T) {
	svc := newTestService(t, new(MockStore), nil, nil, &recordingSwapper{})

	svc.mu.Lock()
	_, err := svc.RetrainCSV(context.Background(), strings.NewReader(testsupport.SyntheticCSV(30)))
	svc.mu.Unlock()

	assert.ErrorIs(t, err, errors.ErrRetrainInProgress)
}

func TestRetrain_Cancelled(t *testing.T) {
	svc := newTestService(t, new(MockStore), nil, nil, &recordingSwapper{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RetrainCSV(ctx, strings.NewReader(testsupport.SyntheticCSV(30)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHistory(t *testing.T) {
	svc := newTestService(t, new(MockStore), nil, nil, &recordingSwapper{})
	_, err := svc.History(context.Background(), 10)
	assert.ErrorIs(t, err, errors.ErrUnavailable)

	runs := new(MockRunRepository)
	runs.On("ListRecent", mock.Anything, 20).Return([]irrigation.TrainingRun{{Status: irrigation.RunSucceeded}}, nil).Once()

	svc = newTestService(t, new(MockStore), runs, nil, &recordingSwapper{})
	history, err := svc.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	runs.AssertExpectations(t)
}
