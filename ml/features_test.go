package ml

import (
	"errors"
	"math"
	"testing"
)

func TestValidateVectorWidth(t *testing.T) {
	if err := ValidateVector(make([]float64, NumFeatures)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateVector([]float64{1, 2, 3})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
	err = ValidateVector(make([]float64, NumFeatures+1))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestValidateVectorNonFinite(t *testing.T) {
	v := make([]float64, NumFeatures)
	v[3] = math.NaN()
	if err := ValidateVector(v); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch for NaN, got %v", err)
	}
	v[3] = math.Inf(1)
	if err := ValidateVector(v); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch for Inf, got %v", err)
	}
}

func TestFeatureVectorRoundTrip(t *testing.T) {
	f := Features{
		Pregnancies:   6,
		Glucose:       148,
		BloodPressure: 72,
		SkinThickness: 35,
		Insulin:       200,
		BMI:           33.6,
		Pedigree:      0.627,
		Age:           50,
	}
	v := f.Vector()
	if len(v) != NumFeatures {
		t.Fatalf("expected %d features, got %d", NumFeatures, len(v))
	}
	back, err := FeaturesFromVector(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != f {
		t.Fatalf("round trip mismatch: %+v != %+v", back, f)
	}
}

func TestFeatureNamesOrder(t *testing.T) {
	names := FeatureNames()
	if len(names) != NumFeatures {
		t.Fatalf("expected %d names, got %d", NumFeatures, len(names))
	}
	if names[0] != "pregnancies" || names[1] != "glucose" || names[7] != "age" {
		t.Fatalf("unexpected name order: %v", names)
	}
	header := CSVHeader()
	if len(header) != NumFeatures+1 {
		t.Fatalf("expected %d columns, got %d", NumFeatures+1, len(header))
	}
	if header[len(header)-1] != "Outcome" {
		t.Fatalf("expected label column last, got %s", header[len(header)-1])
	}
}
