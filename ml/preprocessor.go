package ml

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// zeroInvalid marks the contract fields whose raw zero is physiologically
// impossible and therefore treated as a missing measurement.
var zeroInvalid = map[string]bool{
	"glucose":        true,
	"blood_pressure": true,
	"skin_thickness": true,
	"insulin":        true,
	"bmi":            true,
}

// ZeroInvalidFields returns the fields subject to zero-as-missing imputation,
// in contract order.
func ZeroInvalidFields() []string {
	fields := make([]string, 0, len(zeroInvalid))
	for _, name := range FeatureNames() {
		if zeroInvalid[name] {
			fields = append(fields, name)
		}
	}
	return fields
}

// Scaler carries the preprocessing statistics fitted on one training run:
// per-column imputation medians plus standardization mean and spread. Fitted
// once on the training split, then read-only; Transform never mutates it, so
// concurrent use during serving is safe.
type Scaler struct {
	SchemaVersion int       `json:"schema_version"`
	Medians       []float64 `json:"medians"`
	Means         []float64 `json:"means"`
	Stds          []float64 `json:"stds"`
}

// FitScaler learns imputation medians and standardization statistics from the
// given rows. Callers pass the training split only; the held-out split must
// not leak into these statistics.
func FitScaler(rows []TrainingRow) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to fit scaler", ErrInsufficientData)
	}
	names := FeatureNames()

	vectors := make([][]float64, len(rows))
	for i, row := range rows {
		if err := row.Features.Validate(); err != nil {
			return nil, err
		}
		vectors[i] = row.Features.Vector()
	}

	s := &Scaler{
		SchemaVersion: SchemaVersion,
		Medians:       make([]float64, NumFeatures),
		Means:         make([]float64, NumFeatures),
		Stds:          make([]float64, NumFeatures),
	}

	for j := 0; j < NumFeatures; j++ {
		column := make([]float64, 0, len(vectors))
		for _, v := range vectors {
			if zeroInvalid[names[j]] && v[j] == 0 {
				continue
			}
			column = append(column, v[j])
		}
		if len(column) == 0 {
			// Every value missing: nothing to learn, impute with zero.
			s.Medians[j] = 0
		} else {
			s.Medians[j] = median(column)
		}
	}

	for j := 0; j < NumFeatures; j++ {
		column := make([]float64, len(vectors))
		for i, v := range vectors {
			x := v[j]
			if zeroInvalid[names[j]] && x == 0 {
				x = s.Medians[j]
			}
			column[i] = x
		}
		s.Means[j] = stat.Mean(column, nil)
		s.Stds[j] = stat.PopStdDev(column, nil)
		if s.Stds[j] == 0 {
			// Constant column: standardize to zero rather than divide by zero.
			s.Stds[j] = 1
		}
	}

	return s, nil
}

// Transform imputes missing measurements and standardizes a raw vector using
// the fitted statistics.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := ValidateVector(v); err != nil {
		return nil, err
	}
	names := FeatureNames()
	out := make([]float64, NumFeatures)
	for j := 0; j < NumFeatures; j++ {
		x := v[j]
		if zeroInvalid[names[j]] && x == 0 {
			x = s.Medians[j]
		}
		out[j] = (x - s.Means[j]) / s.Stds[j]
	}
	return out, nil
}

// TransformRows transforms a slice of training rows into the matrix and label
// slice the candidates train on.
func (s *Scaler) TransformRows(rows []TrainingRow) ([][]float64, []int, error) {
	features := make([][]float64, len(rows))
	labels := make([]int, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row.Features.Vector())
		if err != nil {
			return nil, nil, err
		}
		features[i] = scaled
		labels[i] = row.Label
	}
	return features, labels, nil
}

func (s *Scaler) check() error {
	if s == nil {
		return fmt.Errorf("%w: scaler not fitted", ErrSchemaMismatch)
	}
	if s.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: scaler schema version %d, want %d", ErrSchemaMismatch, s.SchemaVersion, SchemaVersion)
	}
	if len(s.Medians) != NumFeatures || len(s.Means) != NumFeatures || len(s.Stds) != NumFeatures {
		return fmt.Errorf("%w: scaler has wrong column count", ErrSchemaMismatch)
	}
	return nil
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
