package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"irrigation/internal/domain/irrigation"
	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishBinary(ctx context.Context, topic string, key []byte, data []byte) error {
	args := m.Called(ctx, topic, key, data)
	return args.Error(0)
}

func testBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	schema := features.BuildSchema(features.EncodingRaw, true, false, false)
	b, err := bundle.New(bundle.Params{
		Schema: schema,
		Soil:   features.FitVocabulary([]string{"clay", "sandy"}),
		Scaler: &features.Scaler{
			Indices: schema.NumericIndices(),
			Mean:    []float64{0, 0, 0},
			Scale:   []float64{1, 1, 1},
		},
		Classifier: &classifier.Logistic{Weights: make([]float64, 4)},
	})
	require.NoError(t, err)
	return b
}

func TestSanitizeUTF8(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"valid string unchanged", "Clay Soil", "Clay Soil"},
		{"empty string", "", ""},
		{"invalid byte removed", "Clay\xffSoil", "ClaySoil"},
		{"multiple invalid sequences", "Start\xffMiddle\xfeEnd\xfd", "StartMiddleEnd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeUTF8(tt.input))
		})
	}
}

func TestPublishModelRetrained(t *testing.T) {
	b := testBundle(t)
	run := &irrigation.TrainingRun{ID: uuid.New(), Examples: 120, ValidationAccuracy: 0.91}

	var payload []byte
	producer := new(MockProducer)
	producer.On("PublishBinary", mock.Anything, "model.events", []byte(b.ID().String()), mock.Anything).
		Run(func(args mock.Arguments) { payload = args.Get(3).([]byte) }).
		Return(nil).Once()

	pub := NewPublisher(producer, "model.events", logger.Get())
	require.NoError(t, pub.PublishModelRetrained(context.Background(), b, run))
	producer.AssertExpectations(t)

	event, err := ParseModelEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), event.BundleID)
	assert.Equal(t, run.ID, event.RunID)
	assert.Equal(t, classifier.KindLogistic, event.Classifier)
	assert.Equal(t, "raw", event.Encoding)
	assert.Equal(t, []string{"moisture", "temperature", "humidity", "soil_type"}, event.Features)
	assert.Equal(t, 120, event.Examples)
	assert.InDelta(t, 0.91, event.ValidationAccuracy, 1e-9)
	assert.Equal(t, pub.Hostname(), event.Hostname)
	assert.NotEmpty(t, event.EventID)
}

func TestPublishModelRetrained_ProducerError(t *testing.T) {
	producer := new(MockProducer)
	producer.On("PublishBinary", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker down"))

	pub := NewPublisher(producer, "model.events", logger.Get())
	err := pub.PublishModelRetrained(context.Background(), testBundle(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestParseModelEvent_RejectsGarbage(t *testing.T) {
	_, err := ParseModelEvent([]byte("not protobuf at all \xff\xff"))
	assert.Error(t, err)
}
