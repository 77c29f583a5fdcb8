package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommend_Bands(t *testing.T) {
	tests := []struct {
		p    float64
		want Recommendation
	}{
		{1.0, Immediate},
		{0.81, Immediate},
		{0.8, Within24h},
		{0.73, Within24h},
		{0.6, Monitor},
		{0.5, Monitor},
		{0.4, NoAction},
		{0.0, NoAction},
		{math.NaN(), NoAction},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Recommend(tt.p), "p=%v", tt.p)
	}
}

func TestRecommend_Monotonic(t *testing.T) {
	prev := Recommend(0)
	for i := 1; i <= 10000; i++ {
		cur := Recommend(float64(i) / 10000)
		assert.GreaterOrEqual(t, cur.Urgency(), prev.Urgency(), "p=%v", float64(i)/10000)
		assert.True(t, cur.Valid())
		prev = cur
	}
}

func TestRecommendation_Text(t *testing.T) {
	assert.Equal(t, "Consider irrigation in the next 24 hours", Recommend(0.73).String())
	assert.False(t, Recommendation("Water now").Valid())
	assert.Equal(t, 0, Recommendation("Water now").Urgency())
}
