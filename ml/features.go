package ml

import (
	"fmt"
	"math"
)

// SchemaVersion identifies the feature contract below. Training stamps it
// into every artifact bundle; serving refuses bundles carrying a different
// version instead of silently misreading vectors.
const SchemaVersion = 1

// NumFeatures is the fixed width of a feature vector.
const NumFeatures = 8

// Features is one observation in contract order. Field order here is the
// vector order everywhere else: training rows, scaler columns and model
// inputs all index features the same way.
type Features struct {
	Pregnancies   float64 `json:"pregnancies"`
	Glucose       float64 `json:"glucose"`
	BloodPressure float64 `json:"blood_pressure"`
	SkinThickness float64 `json:"skin_thickness"`
	Insulin       float64 `json:"insulin"`
	BMI           float64 `json:"bmi"`
	Pedigree      float64 `json:"pedigree"`
	Age           float64 `json:"age"`
}

// TrainingRow pairs an observation with its binary outcome label.
type TrainingRow struct {
	Features Features
	Label    int
}

func FeatureNames() []string {
	return []string{
		"pregnancies",
		"glucose",
		"blood_pressure",
		"skin_thickness",
		"insulin",
		"bmi",
		"pedigree",
		"age",
	}
}

// CSVHeader returns the column header of a training dataset file, feature
// columns in contract order with the label column last.
func CSVHeader() []string {
	return []string{
		"Pregnancies",
		"Glucose",
		"BloodPressure",
		"SkinThickness",
		"Insulin",
		"BMI",
		"DiabetesPedigreeFunction",
		"Age",
		"Outcome",
	}
}

func (f Features) Vector() []float64 {
	return []float64{
		f.Pregnancies,
		f.Glucose,
		f.BloodPressure,
		f.SkinThickness,
		f.Insulin,
		f.BMI,
		f.Pedigree,
		f.Age,
	}
}

func FeaturesFromVector(v []float64) (Features, error) {
	if err := ValidateVector(v); err != nil {
		return Features{}, err
	}
	return Features{
		Pregnancies:   v[0],
		Glucose:       v[1],
		BloodPressure: v[2],
		SkinThickness: v[3],
		Insulin:       v[4],
		BMI:           v[5],
		Pedigree:      v[6],
		Age:           v[7],
	}, nil
}

// ValidateVector enforces the feature contract on a raw vector: exact width,
// every value finite.
func ValidateVector(v []float64) error {
	if len(v) != NumFeatures {
		return fmt.Errorf("%w: expected %d features, got %d", ErrSchemaMismatch, NumFeatures, len(v))
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrSchemaMismatch, FeatureNames()[i])
		}
	}
	return nil
}

func (f Features) Validate() error {
	return ValidateVector(f.Vector())
}
