package training

import (
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"irrigation/internal/ml/bundle"
)

// Evaluation holds the quality figures of one labelled set
type Evaluation struct {
	Accuracy  float64
	ROCAUC    float64
	Precision float64
	Recall    float64
	F1        float64
	Confusion bundle.Confusion
}

// Evaluate scores probabilities against labels at the given threshold.
// ROC AUC is zero when the set does not contain both classes.
func Evaluate(probs []float64, labels []bool, threshold float64) Evaluation {
	var ev Evaluation
	if len(probs) == 0 {
		return ev
	}

	for i, p := range probs {
		predicted := p >= threshold
		switch {
		case predicted && labels[i]:
			ev.Confusion.TruePositive++
		case predicted && !labels[i]:
			ev.Confusion.FalsePositive++
		case !predicted && !labels[i]:
			ev.Confusion.TrueNegative++
		default:
			ev.Confusion.FalseNegative++
		}
	}

	c := ev.Confusion
	ev.Accuracy = ratio(c.TruePositive+c.TrueNegative, len(probs))
	ev.Precision = ratio(c.TruePositive, c.TruePositive+c.FalsePositive)
	ev.Recall = ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}
	ev.ROCAUC = rocAUC(probs, labels)

	return ev
}

func rocAUC(probs []float64, labels []bool) float64 {
	var pos int
	for _, y := range labels {
		if y {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0
	}

	y := append([]float64(nil), probs...)
	classes := append([]bool(nil), labels...)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
