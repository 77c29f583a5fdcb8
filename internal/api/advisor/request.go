package advisor

import (
	"irrigation/internal/domain/irrigation"
	"irrigation/pkg/errors"
)

// predictRequest mirrors RawInput with pointers so a missing field is
// distinguishable from zero. moi/temp are the historical field names.
type predictRequest struct {
	SoilType      irrigation.CategoryValue `json:"soil_type"`
	SeedlingStage irrigation.CategoryValue `json:"seedling_stage"`
	Moi           *float64                 `json:"moi"`
	Moisture      *float64                 `json:"moisture"`
	Temp          *float64                 `json:"temp"`
	Temperature   *float64                 `json:"temperature"`
	Humidity      *float64                 `json:"humidity"`
	CropID        *int                     `json:"crop_id"`
}

func (r *predictRequest) toRawInput() (irrigation.RawInput, error) {
	moisture := firstSet(r.Moi, r.Moisture)
	if moisture == nil {
		return irrigation.RawInput{}, errors.NewValidationError("moi", "field is required", nil)
	}
	temperature := firstSet(r.Temp, r.Temperature)
	if temperature == nil {
		return irrigation.RawInput{}, errors.NewValidationError("temp", "field is required", nil)
	}
	if r.Humidity == nil {
		return irrigation.RawInput{}, errors.NewValidationError("humidity", "field is required", nil)
	}

	return irrigation.RawInput{
		SoilType:      r.SoilType,
		SeedlingStage: r.SeedlingStage,
		Moisture:      *moisture,
		Temperature:   *temperature,
		Humidity:      *r.Humidity,
		CropID:        r.CropID,
	}, nil
}

func firstSet(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// retrainResponse keeps the history block the original web client reads
type retrainResponse struct {
	Message  string                 `json:"message"`
	ModelID  string                 `json:"model_id"`
	Features []string               `json:"features"`
	Run      irrigation.TrainingRun `json:"run"`
	Report   interface{}            `json:"report,omitempty"`
	History  retrainHistory         `json:"history"`
}

type retrainHistory struct {
	Accuracy    []float64 `json:"accuracy"`
	ValAccuracy []float64 `json:"val_accuracy"`
}

type errorResponse struct {
	Error     string      `json:"error"`
	Detail    string      `json:"detail"`
	Field     string      `json:"field,omitempty"`
	Known     []string    `json:"known,omitempty"`
	Row       int         `json:"row,omitempty"`
	RequestID interface{} `json:"request_id,omitempty"`
}
