package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisClientIsCleanedBetweenTests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := NewTestRedis(t)
	require.NoError(t, client.Set(context.Background(), "integration-key", "value", 0).Err())

	val, err := client.Get(context.Background(), "integration-key").Result()
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}
