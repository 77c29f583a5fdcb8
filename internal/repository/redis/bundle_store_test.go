package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/internal/ml/bundle"
	"irrigation/internal/ml/classifier"
	"irrigation/internal/ml/features"
	"irrigation/internal/testsupport"
	"irrigation/pkg/errors"
)

func testBundle(t *testing.T) *bundle.Bundle {
	t.Helper()
	schema := features.BuildSchema(features.EncodingCoded, true, true, false)
	b, err := bundle.New(bundle.Params{
		Schema:   schema,
		Soil:     features.FitVocabulary([]string{"clay", "sandy"}),
		Seedling: features.FitVocabulary([]string{"flowering", "germination"}),
		Scaler: &features.Scaler{
			Indices: schema.NumericIndices(),
			Mean:    []float64{40, 25, 50},
			Scale:   []float64{10, 4, 12},
		},
		Classifier: &classifier.Logistic{Weights: []float64{-1.2, 0.3, -0.4, 0.1, 0.05}, Bias: 0.2},
	})
	require.NoError(t, err)
	return b
}

func TestBundleStore_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := testsupport.NewTestRedis(t)
	store := NewBundleStore(client, "test:bundle")
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = store.CurrentID(ctx)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	b := testBundle(t)
	require.NoError(t, store.Save(ctx, b))

	id, err := store.CurrentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), id)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), loaded.ID())
	assert.Equal(t, b.Order(), loaded.Order())

	vec := features.Vector{35, 30, 45, 1, 0}
	want, err := b.Score(vec)
	require.NoError(t, err)
	got, err := loaded.Score(vec)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestBundleStore_CorruptArtifact(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := testsupport.NewTestRedis(t)
	require.NoError(t, client.Set(context.Background(), "test:bundle", "{not json", 0).Err())

	_, err := NewBundleStore(client, "test:bundle").Load(context.Background())
	assert.True(t, errors.Is(err, errors.ErrModelNotLoaded))
}
