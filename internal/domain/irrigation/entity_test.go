package irrigation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    CategoryValue
		wantErr bool
	}{
		{"name", `"Clay Soil"`, CategoryName("Clay Soil"), false},
		{"code", `3`, CategoryCode(3), false},
		{"integral float code", `2.0`, CategoryCode(2), false},
		{"null", `null`, CategoryValue{}, false},
		{"fractional code", `1.5`, CategoryValue{}, true},
		{"object", `{"a":1}`, CategoryValue{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got CategoryValue
			err := json.Unmarshal([]byte(tt.payload), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRawInput_EchoKeepsClientForm(t *testing.T) {
	cropID := 4
	in := RawInput{
		SoilType:      CategoryName("loamy"),
		SeedlingStage: CategoryCode(1),
		Moisture:      45,
		Temperature:   28,
		Humidity:      60,
		CropID:        &cropID,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"soil_type":"loamy","seedling_stage":1,"moi":45,"temp":28,"humidity":60,"crop_id":4}`, string(data))
}

func TestTrainingRun_FeatureList(t *testing.T) {
	run := TrainingRun{Features: "moisture,temperature,humidity"}
	assert.Equal(t, []string{"moisture", "temperature", "humidity"}, run.FeatureList())
	assert.Nil(t, (&TrainingRun{}).FeatureList())
	assert.True(t, RunSucceeded.Valid())
	assert.False(t, RunStatus("pending").Valid())
}
