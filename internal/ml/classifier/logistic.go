package classifier

import (
	"context"
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats"

	"irrigation/pkg/errors"
)

// KindLogistic identifies the in-process logistic regression model
const KindLogistic = "logistic"

func init() {
	Register(KindLogistic, decodeLogistic, func(opts Options) (Trainable, error) {
		return NewLogistic(opts)
	})
}

// Logistic is an L2-regularised logistic regression fitted with batch
// gradient descent. Zero weights are a valid (p = 0.5) unfitted state, so
// NumFeatures is zero until Fit or decode sets the width.
type Logistic struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`

	epochs       int
	learningRate float64
	l2           float64
}

// NewLogistic creates an untrained model
func NewLogistic(opts Options) (*Logistic, error) {
	if opts.Epochs <= 0 {
		return nil, errors.NewValidationError("epochs", "must be positive", opts.Epochs)
	}
	if opts.LearningRate <= 0 {
		return nil, errors.NewValidationError("learning_rate", "must be positive", opts.LearningRate)
	}
	if opts.L2 < 0 {
		return nil, errors.NewValidationError("l2", "must not be negative", opts.L2)
	}
	return &Logistic{epochs: opts.Epochs, learningRate: opts.LearningRate, l2: opts.L2}, nil
}

func decodeLogistic(payload []byte) (Classifier, error) {
	var m Logistic
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	if len(m.Weights) == 0 {
		return nil, errors.New("logistic model has no weights")
	}
	for _, w := range append([]float64{m.Bias}, m.Weights...) {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, errors.New("logistic model has non-finite weights")
		}
	}
	return &m, nil
}

// Kind implements Classifier
func (m *Logistic) Kind() string { return KindLogistic }

// NumFeatures implements Classifier
func (m *Logistic) NumFeatures() int { return len(m.Weights) }

// Importances returns the learned coefficients in feature order
func (m *Logistic) Importances() []float64 {
	out := make([]float64, len(m.Weights))
	copy(out, m.Weights)
	return out
}

// PredictProba implements Classifier
func (m *Logistic) PredictProba(x []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, errors.Wrap(errors.ErrModelNotLoaded, "logistic model is not fitted")
	}
	if err := CheckInput(m, x); err != nil {
		return 0, err
	}
	return sigmoid(floats.Dot(m.Weights, x) + m.Bias), nil
}

// Fit implements Trainable. The context is checked once per epoch.
func (m *Logistic) Fit(ctx context.Context, X [][]float64, y []bool, weights []float64) error {
	if len(X) == 0 {
		return errors.Wrap(errors.ErrInvalidDataset, "no training rows")
	}
	if len(X) != len(y) {
		return errors.Wrapf(errors.ErrFeatureMismatch, "%d rows but %d labels", len(X), len(y))
	}
	if weights != nil && len(weights) != len(X) {
		return errors.Wrapf(errors.ErrFeatureMismatch, "%d rows but %d sample weights", len(X), len(weights))
	}

	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return errors.Wrapf(errors.ErrFeatureMismatch, "row %d has %d features, expected %d", i, len(row), width)
		}
	}

	if weights == nil {
		weights = make([]float64, len(X))
		for i := range weights {
			weights[i] = 1
		}
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return errors.Wrap(errors.ErrInvalidDataset, "sample weights sum to zero")
	}

	w := make([]float64, width)
	grad := make([]float64, width)
	var b float64

	for epoch := 0; epoch < m.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "training cancelled at epoch %d", epoch)
		}

		for j := range grad {
			grad[j] = 0
		}
		var gradB float64

		for i, row := range X {
			target := 0.0
			if y[i] {
				target = 1
			}
			diff := (sigmoid(floats.Dot(w, row)+b) - target) * weights[i]
			floats.AddScaled(grad, diff, row)
			gradB += diff
		}

		for j := range w {
			w[j] -= m.learningRate * (grad[j]/total + m.l2*w[j])
		}
		b -= m.learningRate * gradB / total
	}

	for _, v := range append([]float64{b}, w...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(errors.ErrTrainingFailed, "gradient descent diverged")
		}
	}

	m.Weights = w
	m.Bias = b
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
