package irrigation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CategoryValue holds a categorical input as sent by the client: either a
// category name ("Clay Soil") or an already encoded integer code (2).
// Which form is acceptable is decided by the active bundle's encoding.
type CategoryValue struct {
	Name   string
	Code   int
	IsCode bool
	Set    bool
}

// CategoryName builds a category value from its name
func CategoryName(name string) CategoryValue {
	return CategoryValue{Name: name, Set: true}
}

// CategoryCode builds a category value from an encoded integer
func CategoryCode(code int) CategoryValue {
	return CategoryValue{Code: code, IsCode: true, Set: true}
}

// UnmarshalJSON accepts a JSON string or a JSON integer
func (c *CategoryValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = CategoryValue{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = CategoryName(name)
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("category must be a string or an integer code")
	}
	if num != math.Trunc(num) || math.IsInf(num, 0) {
		return fmt.Errorf("category code must be an integer, got %v", num)
	}
	*c = CategoryCode(int(num))
	return nil
}

// MarshalJSON echoes the value in the form it was received
func (c CategoryValue) MarshalJSON() ([]byte, error) {
	if !c.Set {
		return []byte("null"), nil
	}
	if c.IsCode {
		return json.Marshal(c.Code)
	}
	return json.Marshal(c.Name)
}

// String returns a printable representation
func (c CategoryValue) String() string {
	if c.IsCode {
		return fmt.Sprintf("%d", c.Code)
	}
	return c.Name
}

// RawInput is the feature set supplied to a prediction request
type RawInput struct {
	SoilType      CategoryValue `json:"soil_type"`
	SeedlingStage CategoryValue `json:"seedling_stage"`
	Moisture      float64       `json:"moi"`
	Temperature   float64       `json:"temp"`
	Humidity      float64       `json:"humidity"`
	CropID        *int          `json:"crop_id,omitempty"`
}

// LabeledExample is one row of a training dataset
type LabeledExample struct {
	Moisture      float64
	Temperature   float64
	Humidity      float64
	SoilType      string
	SeedlingStage string
	CropID        *int
	Result        bool
}

// PredictionResult is returned for every successful prediction
type PredictionResult struct {
	NeedsIrrigation bool     `json:"needs_irrigation"`
	Confidence      float64  `json:"confidence"`
	Recommendation  string   `json:"recommendation"`
	InputParameters RawInput `json:"input_parameters"`
	ModelID         string   `json:"model_id"`
}

// PredictionRecord is the audit row written for each served prediction
type PredictionRecord struct {
	ModelID         uuid.UUID `ch:"model_id"`
	Timestamp       time.Time `ch:"timestamp"`
	SoilType        string    `ch:"soil_type"`
	SeedlingStage   string    `ch:"seedling_stage"`
	Moisture        float64   `ch:"moisture"`
	Temperature     float64   `ch:"temperature"`
	Humidity        float64   `ch:"humidity"`
	Probability     float64   `ch:"probability"`
	NeedsIrrigation bool      `ch:"needs_irrigation"`
	Recommendation  string    `ch:"recommendation"`
}

// RunStatus describes the outcome of a retrain
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Valid checks if the status is known
func (s RunStatus) Valid() bool {
	switch s {
	case RunSucceeded, RunFailed:
		return true
	}
	return false
}

// String returns string representation
func (s RunStatus) String() string {
	return string(s)
}

// TrainingRun summarises one retrain attempt
type TrainingRun struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	BundleID           *uuid.UUID    `db:"bundle_id" json:"bundle_id,omitempty"`
	Status             RunStatus     `db:"status" json:"status"`
	Examples           int           `db:"examples" json:"examples"`
	TrainSize          int           `db:"train_size" json:"train_size"`
	ValidationSize     int           `db:"validation_size" json:"validation_size"`
	TrainAccuracy      float64       `db:"train_accuracy" json:"accuracy"`
	ValidationAccuracy float64       `db:"validation_accuracy" json:"val_accuracy"`
	ROCAUC             float64       `db:"roc_auc" json:"roc_auc"`
	Precision          float64       `db:"precision" json:"precision"`
	Recall             float64       `db:"recall" json:"recall"`
	F1                 float64       `db:"f1" json:"f1"`
	Features           string        `db:"features" json:"features"`
	Error              string        `db:"error" json:"error,omitempty"`
	Duration           time.Duration `db:"-" json:"-"`
	DurationMS         int64         `db:"duration_ms" json:"duration_ms"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
}

// FeatureList splits the stored comma separated feature order
func (r *TrainingRun) FeatureList() []string {
	if r.Features == "" {
		return nil
	}
	return strings.Split(r.Features, ",")
}
