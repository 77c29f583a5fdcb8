package classifier

import (
	"encoding/json"

	"irrigation/internal/ml"
	"irrigation/pkg/errors"
)

// KindONNX identifies an externally trained model executed through ONNX Runtime
const KindONNX = "onnx"

const (
	defaultONNXInput  = "input"
	defaultONNXOutput = "probabilities"
)

func init() {
	Register(KindONNX, decodeONNX, nil)
}

// ONNX adapts an exported binary classifier. It is inference only; the model
// bytes travel inside the bundle so a single artifact holds the whole pipeline.
type ONNX struct {
	model   *ml.ONNXModel
	payload onnxPayload
}

type onnxPayload struct {
	Model      []byte `json:"model"`
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
	Features   int    `json:"features"`
}

// NewONNX loads an ONNX model. Empty names fall back to "input"/"probabilities".
func NewONNX(model []byte, inputName, outputName string, features int) (*ONNX, error) {
	if inputName == "" {
		inputName = defaultONNXInput
	}
	if outputName == "" {
		outputName = defaultONNXOutput
	}

	m, err := ml.LoadONNXModel(model, inputName, outputName, features)
	if err != nil {
		return nil, err
	}

	return &ONNX{
		model: m,
		payload: onnxPayload{
			Model:      model,
			InputName:  inputName,
			OutputName: outputName,
			Features:   features,
		},
	}, nil
}

func decodeONNX(payload []byte) (Classifier, error) {
	var p onnxPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return NewONNX(p.Model, p.InputName, p.OutputName, p.Features)
}

// Kind implements Classifier
func (c *ONNX) Kind() string { return KindONNX }

// NumFeatures implements Classifier
func (c *ONNX) NumFeatures() int { return c.payload.Features }

// PredictProba implements Classifier
func (c *ONNX) PredictProba(x []float64) (float64, error) {
	if c.model == nil {
		return 0, errors.ErrModelNotLoaded
	}
	return c.model.PositiveProbability(x)
}

// MarshalJSON stores the model bytes and tensor names
func (c *ONNX) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.payload)
}

// Close releases the runtime session
func (c *ONNX) Close() {
	if c.model != nil {
		c.model.Destroy()
	}
}
