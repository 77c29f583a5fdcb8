// Package classifier defines the binary classifier capability used by the
// prediction pipeline and the codec that persists fitted models inside a bundle.
package classifier

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"irrigation/pkg/errors"
)

// DefaultThreshold is the decision boundary for needs_irrigation.
// A probability equal to the threshold is a positive decision.
const DefaultThreshold = 0.5

// Classifier scores an already encoded and scaled feature vector
type Classifier interface {
	// Kind identifies the implementation in the persisted envelope
	Kind() string

	// NumFeatures is the vector length the model was fitted on
	NumFeatures() int

	// PredictProba returns the probability of the positive class in [0, 1]
	PredictProba(x []float64) (float64, error)
}

// Trainable is a classifier that can be fitted in process
type Trainable interface {
	Classifier

	// Fit trains on rows X with labels y. Weights are per-sample and may be nil.
	Fit(ctx context.Context, X [][]float64, y []bool, weights []float64) error
}

// Explainer exposes one importance value per input feature
type Explainer interface {
	Importances() []float64
}

// Decide applies the decision threshold to a probability
func Decide(p, threshold float64) bool {
	return p >= threshold
}

// Predict is the label convenience derived from PredictProba
func Predict(c Classifier, x []float64, threshold float64) (bool, error) {
	p, err := c.PredictProba(x)
	if err != nil {
		return false, err
	}
	return Decide(p, threshold), nil
}

// CheckInput validates vector length against the fitted width
func CheckInput(c Classifier, x []float64) error {
	if len(x) != c.NumFeatures() {
		return errors.Wrapf(errors.ErrFeatureMismatch,
			"%s classifier expects %d features, got %d", c.Kind(), c.NumFeatures(), len(x))
	}
	return nil
}

// Envelope is the persisted form of a fitted classifier
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Decoder restores a classifier from its envelope payload
type Decoder func(payload []byte) (Classifier, error)

// Maker creates an untrained classifier with the given options
type Maker func(opts Options) (Trainable, error)

// Options are the hyper-parameters shared by trainable classifiers
type Options struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

var (
	registryMu sync.RWMutex
	decoders   = map[string]Decoder{}
	makers     = map[string]Maker{}
)

// Register adds a decoder (and optionally a maker) for a classifier kind
func Register(kind string, decode Decoder, maker Maker) {
	registryMu.Lock()
	defer registryMu.Unlock()

	decoders[kind] = decode
	if maker != nil {
		makers[kind] = maker
	}
}

// Kinds lists the registered classifier kinds
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]string, 0, len(decoders))
	for k := range decoders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New creates an untrained classifier of the given kind
func New(kind string, opts Options) (Trainable, error) {
	registryMu.RLock()
	maker, ok := makers[kind]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.NewValidationError("classifier", "kind cannot be trained in process", kind)
	}
	return maker(opts)
}

// Encode serialises a fitted classifier into an envelope
func Encode(c Classifier) (Envelope, error) {
	if c == nil {
		return Envelope{}, errors.ErrModelNotLoaded
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "failed to encode %s classifier", c.Kind())
	}
	return Envelope{Kind: c.Kind(), Payload: payload}, nil
}

// Decode restores a classifier from an envelope using the registry
func Decode(env Envelope) (Classifier, error) {
	registryMu.RLock()
	decode, ok := decoders[env.Kind]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(errors.ErrModelNotLoaded, "unknown classifier kind %q", env.Kind)
	}

	c, err := decode(env.Payload)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModelNotLoaded, "failed to decode %s classifier: %v", env.Kind, err)
	}
	return c, nil
}
