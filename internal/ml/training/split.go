package training

import (
	"math"
	"math/rand"
	"sort"
)

// Split partitions example indices into train and validation sets,
// stratified by label so both classes keep their proportions. The same
// seed always yields the same split. Each class keeps at least one
// training example.
func Split(labels []bool, fraction float64, seed int64) (train, validation []int) {
	rng := rand.New(rand.NewSource(seed))

	var positives, negatives []int
	for i, y := range labels {
		if y {
			positives = append(positives, i)
		} else {
			negatives = append(negatives, i)
		}
	}

	for _, group := range [][]int{positives, negatives} {
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		n := int(math.Round(float64(len(group)) * fraction))
		if n >= len(group) {
			n = len(group) - 1
		}
		if n < 0 {
			n = 0
		}
		validation = append(validation, group[:n]...)
		train = append(train, group[n:]...)
	}

	sort.Ints(train)
	sort.Ints(validation)
	return train, validation
}

// BalancedWeights returns per-sample weights n / (2 * n_class) so both
// classes contribute equally to the loss
func BalancedWeights(labels []bool) []float64 {
	var pos int
	for _, y := range labels {
		if y {
			pos++
		}
	}
	neg := len(labels) - pos

	weights := make([]float64, len(labels))
	for i, y := range labels {
		switch {
		case y && pos > 0:
			weights[i] = float64(len(labels)) / (2 * float64(pos))
		case !y && neg > 0:
			weights[i] = float64(len(labels)) / (2 * float64(neg))
		}
	}
	return weights
}
