package ml

import (
	"sync"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"irrigation/pkg/errors"
)

var (
	envOnce sync.Once
	envErr  error
)

// InitRuntime initialises the ONNX runtime environment once per process.
// An empty libraryPath keeps the runtime's default shared library lookup.
func InitRuntime(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			onnxruntime.SetSharedLibraryPath(libraryPath)
		}
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			envErr = errors.Wrap(err, "failed to initialize ONNX runtime")
		}
	})
	return envErr
}

// ONNXModel wraps an ONNX Runtime session for a binary classifier exported
// with a [1, n] float input and a [1, 2] probability output
type ONNXModel struct {
	session    *onnxruntime.DynamicAdvancedSession
	inputName  string
	outputName string
	features   int
}

// LoadONNXModel creates a session from serialized model bytes
func LoadONNXModel(data []byte, inputName, outputName string, features int) (*ONNXModel, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "empty ONNX model")
	}
	if features <= 0 {
		return nil, errors.NewValidationError("features", "must be positive", features)
	}
	if err := InitRuntime(""); err != nil {
		return nil, err
	}

	options, err := onnxruntime.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	session, err := onnxruntime.NewDynamicAdvancedSessionWithONNXData(data,
		[]string{inputName}, []string{outputName}, options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load ONNX model")
	}

	return &ONNXModel{
		session:    session,
		inputName:  inputName,
		outputName: outputName,
		features:   features,
	}, nil
}

// Features returns the expected input width
func (m *ONNXModel) Features() int {
	return m.features
}

// PositiveProbability runs inference and returns the class-1 probability
func (m *ONNXModel) PositiveProbability(features []float64) (float64, error) {
	if m.session == nil {
		return 0, errors.Wrap(errors.ErrModelNotLoaded, "ONNX session is closed")
	}
	if len(features) != m.features {
		return 0, errors.Wrapf(errors.ErrFeatureMismatch, "ONNX model expects %d features, got %d", m.features, len(features))
	}

	// Exported models take float32 input
	input := make([]float32, len(features))
	for i, v := range features {
		input[i] = float32(v)
	}

	inputTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create input tensor")
	}
	defer inputTensor.Destroy()

	probabilities := make([]float32, 2)
	probTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, 2), probabilities)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create probabilities output tensor")
	}
	defer probTensor.Destroy()

	if err := m.session.Run([]onnxruntime.Value{inputTensor}, []onnxruntime.Value{probTensor}); err != nil {
		return 0, errors.Wrap(err, "inference failed")
	}

	p := float64(probTensor.GetData()[1])
	if p < 0 || p > 1 {
		return 0, errors.Newf("ONNX model returned probability %v outside [0, 1]", p)
	}
	return p, nil
}

// Destroy cleans up the ONNX session
func (m *ONNXModel) Destroy() {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
}
