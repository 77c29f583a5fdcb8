package classifier

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/internal/ml"
)

func TestONNX_PredictProba(t *testing.T) {
	// Skip if model file doesn't exist
	modelPath := "testdata/irrigation.onnx"
	data, err := os.ReadFile(modelPath)
	if err != nil {
		t.Skip("Model file not found, skipping test. Export one with skl2onnx into testdata/")
	}
	libraryPath := os.Getenv("ONNX_LIBRARY_PATH")
	if libraryPath == "" {
		t.Skip("ONNX_LIBRARY_PATH not set")
	}
	if err := ml.InitRuntime(libraryPath); err != nil {
		t.Skipf("ONNX runtime unavailable: %v", err)
	}

	c, err := NewONNX(data, "", "", 5)
	if err != nil {
		t.Skipf("ONNX runtime unavailable: %v", err)
	}
	defer c.Close()

	p, err := c.PredictProba([]float64{-1.2, 0.9, 0.3, 1, 2})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)

	env, err := Encode(c)
	require.NoError(t, err)
	restored, err := Decode(env)
	require.NoError(t, err)
	again, err := restored.PredictProba([]float64{-1.2, 0.9, 0.3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, p, again)
}
