package features

import (
	"gonum.org/v1/gonum/stat"

	"irrigation/pkg/errors"
)

// Scaler holds standardisation parameters for the numeric slots of a vector
type Scaler struct {
	Indices []int     `json:"indices"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population standard deviation over
// the given indices. Constant columns get scale 1 so they map to zero.
func FitScaler(rows []Vector, indices []int) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidDataset, "cannot fit scaler on zero rows")
	}

	s := &Scaler{
		Indices: append([]int(nil), indices...),
		Mean:    make([]float64, len(indices)),
		Scale:   make([]float64, len(indices)),
	}

	column := make([]float64, len(rows))
	for j, idx := range indices {
		for i, row := range rows {
			if idx < 0 || idx >= len(row) {
				return nil, errors.Wrapf(errors.ErrFeatureMismatch, "row %d has no feature index %d", i, idx)
			}
			column[i] = row[idx]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}

	return s, nil
}

// Fitted reports whether parameters are present and consistent
func (s *Scaler) Fitted() bool {
	return s != nil &&
		len(s.Mean) == len(s.Indices) &&
		len(s.Scale) == len(s.Indices) &&
		(len(s.Indices) > 0 || s.Mean != nil)
}

// Transform scales a vector with the fitted parameters
func (s *Scaler) Transform(v Vector) (Vector, error) {
	if !s.Fitted() {
		return nil, errors.ErrScalerNotFitted
	}
	return Scale(v, s.Indices, s.Mean, s.Scale)
}

// Scale applies (x - mean[i]) / scale[i] to the listed indices of v and leaves
// every other slot untouched. The input is not modified.
func Scale(v Vector, indices []int, mean, scale []float64) (Vector, error) {
	if mean == nil || scale == nil {
		return nil, errors.ErrScalerNotFitted
	}
	if len(mean) != len(indices) || len(scale) != len(indices) {
		return nil, errors.Wrapf(errors.ErrFeatureMismatch,
			"scaler has %d means and %d scales for %d indices", len(mean), len(scale), len(indices))
	}

	out := v.Clone()
	for j, idx := range indices {
		if idx < 0 || idx >= len(out) {
			return nil, errors.Wrapf(errors.ErrFeatureMismatch, "vector of length %d has no index %d", len(out), idx)
		}
		if scale[j] == 0 {
			return nil, errors.Wrapf(errors.ErrFeatureMismatch, "zero scale at index %d", idx)
		}
		out[idx] = (out[idx] - mean[j]) / scale[j]
	}
	return out, nil
}
