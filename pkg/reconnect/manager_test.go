package reconnect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager("kafka", Config{}, logger.Get())

	assert.Equal(t, time.Second, m.minBackoff)
	assert.Equal(t, time.Minute, m.maxBackoff)
	assert.Equal(t, 2.0, m.multiplier)
	assert.Equal(t, time.Second, m.GetStats().CurrentBackoff)
}

func TestManager_ExponentialBackoffWithCap(t *testing.T) {
	m := NewManager("kafka", Config{
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
		Multiplier: 2,
	}, logger.Get())

	cause := errors.New("broker unreachable")
	want := []time.Duration{10, 20, 40, 50, 50}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, m.RecordFailure(cause), "attempt %d", i)
	}

	stats := m.GetStats()
	assert.Equal(t, 5, stats.ConsecutiveFailures)
	assert.Equal(t, 5, stats.TotalFailures)
	assert.False(t, stats.LastFailure.IsZero())

	m.RecordSuccess()
	stats = m.GetStats()
	assert.Equal(t, 0, stats.ConsecutiveFailures)
	assert.Equal(t, 5, stats.TotalFailures)
	assert.Equal(t, 10*time.Millisecond, stats.CurrentBackoff)
}

func TestManager_BackoffHonoursContext(t *testing.T) {
	m := NewManager("kafka", Config{MinBackoff: time.Hour, MaxBackoff: time.Hour}, logger.Get())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := m.Backoff(ctx, errors.New("read failed"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestManager_BackoffWaits(t *testing.T) {
	m := NewManager("kafka", Config{MinBackoff: 5 * time.Millisecond}, logger.Get())

	start := time.Now()
	require.NoError(t, m.Backoff(context.Background(), errors.New("read failed")))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
