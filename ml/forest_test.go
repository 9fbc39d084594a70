package ml

import (
	"encoding/json"
	"testing"
)

func TestRandomForestSeparable(t *testing.T) {
	features, labels := separableSet()
	model := NewRandomForest(7)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Trees) != model.NumTrees {
		t.Fatalf("expected %d trees, got %d", model.NumTrees, len(model.Trees))
	}

	proba, err := model.PredictProba([]float64{-2, -2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proba >= 0.5 {
		t.Fatalf("expected probability below 0.5 for negative point, got %f", proba)
	}
	proba, err = model.PredictProba([]float64{2, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proba <= 0.5 {
		t.Fatalf("expected probability above 0.5 for positive point, got %f", proba)
	}
	if proba < 0 || proba > 1 {
		t.Fatalf("probability out of range: %f", proba)
	}
}

func TestRandomForestSeedDeterminism(t *testing.T) {
	features, labels := separableSet()
	probe := []float64{0.3, -0.4}

	first := NewRandomForest(42)
	if err := first.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := NewRandomForest(42)
	if err := second.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p1, err := first.PredictProba(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := second.PredictProba(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("same seed produced different probabilities: %v != %v", p1, p2)
	}
}

func TestRandomForestSerializationPreservesPredictions(t *testing.T) {
	features, labels := separableSet()
	model := NewRandomForest(11)
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probe := []float64{1.7, 1.2}
	want, err := model.PredictProba(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var restored RandomForest
	if err := json.Unmarshal(payload, &restored); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := restored.PredictProba(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("serialized forest predicts %v, want %v", got, want)
	}
}

func TestRandomForestUntrained(t *testing.T) {
	model := NewRandomForest(1)
	if _, err := model.PredictProba([]float64{0, 0}); err == nil {
		t.Fatal("expected error for untrained forest")
	}
}
