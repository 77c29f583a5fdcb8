package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_ConfusionAndRates(t *testing.T) {
	probs := []float64{0.9, 0.7, 0.5, 0.3, 0.2, 0.6}
	labels := []bool{true, true, false, false, false, false}

	ev := Evaluate(probs, labels, 0.5)

	assert.Equal(t, 2, ev.Confusion.TruePositive)
	assert.Equal(t, 2, ev.Confusion.FalsePositive)
	assert.Equal(t, 2, ev.Confusion.TrueNegative)
	assert.Equal(t, 0, ev.Confusion.FalseNegative)
	assert.InDelta(t, 4.0/6, ev.Accuracy, 1e-9)
	assert.InDelta(t, 0.5, ev.Precision, 1e-9)
	assert.InDelta(t, 1.0, ev.Recall, 1e-9)
	assert.InDelta(t, 2.0/3, ev.F1, 1e-9)
	assert.InDelta(t, 1.0, ev.ROCAUC, 1e-9)
}

func TestEvaluate_ROCAUC(t *testing.T) {
	ev := Evaluate([]float64{0.1, 0.35, 0.4, 0.8}, []bool{true, false, true, false}, 0.5)
	assert.InDelta(t, 0.25, ev.ROCAUC, 1e-9)

	single := Evaluate([]float64{0.1, 0.9}, []bool{true, true}, 0.5)
	assert.Zero(t, single.ROCAUC)

	assert.Equal(t, Evaluation{}, Evaluate(nil, nil, 0.5))
}

func TestSplit_StratifiedAndDeterministic(t *testing.T) {
	labels := make([]bool, 50)
	for i := range labels {
		labels[i] = i%5 == 0
	}

	train, val := Split(labels, 0.2, 42)
	assert.Len(t, train, 40)
	assert.Len(t, val, 10)

	var valPos int
	for _, i := range val {
		if labels[i] {
			valPos++
		}
	}
	assert.Equal(t, 2, valPos)

	train2, val2 := Split(labels, 0.2, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, val, val2)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), val...) {
		assert.False(t, seen[i], "index %d assigned twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 50)
}

func TestSplit_KeepsOneOfEachClassForTraining(t *testing.T) {
	train, val := Split([]bool{true, false, false}, 0.9, 1)
	assert.Len(t, train, 2)
	assert.Len(t, val, 1)

	train, val = Split([]bool{true, false}, 0, 1)
	assert.Len(t, train, 2)
	assert.Empty(t, val)
}

func TestBalancedWeights(t *testing.T) {
	w := BalancedWeights([]bool{true, false, false, false})
	assert.Equal(t, []float64{2, 2.0 / 3, 2.0 / 3, 2.0 / 3}, w)
}
