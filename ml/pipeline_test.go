package ml

import (
	"errors"
	"reflect"
	"testing"
)

// syntheticRows builds a deterministic, mostly separable cohort: low glucose
// negatives and high glucose positives.
func syntheticRows(n int) []TrainingRow {
	rows := make([]TrainingRow, 0, n)
	for i := 0; len(rows) < n; i++ {
		rows = append(rows, TrainingRow{
			Features: Features{
				Pregnancies:   float64(i % 5),
				Glucose:       85 + float64(i%15),
				BloodPressure: 65 + float64(i%10),
				SkinThickness: 20 + float64(i%8),
				Insulin:       70 + float64(i%30),
				BMI:           24 + float64(i%6),
				Pedigree:      0.2 + 0.01*float64(i%10),
				Age:           25 + float64(i%12),
			},
			Label: 0,
		})
		if len(rows) == n {
			break
		}
		rows = append(rows, TrainingRow{
			Features: Features{
				Pregnancies:   4 + float64(i%6),
				Glucose:       150 + float64(i%30),
				BloodPressure: 75 + float64(i%12),
				SkinThickness: 30 + float64(i%10),
				Insulin:       150 + float64(i%60),
				BMI:           33 + float64(i%8),
				Pedigree:      0.6 + 0.02*float64(i%10),
				Age:           40 + float64(i%15),
			},
			Label: 1,
		})
	}
	return rows
}

func TestStratifiedSplitPreservesRatio(t *testing.T) {
	rows := syntheticRows(40)
	train, test := StratifiedSplit(rows, 0.3, 42)

	if len(train)+len(test) != len(rows) {
		t.Fatalf("split dropped rows: %d + %d != %d", len(train), len(test), len(rows))
	}
	// 20 per class, 30% of each goes to test.
	if len(test) != 12 {
		t.Fatalf("expected 12 test rows, got %d", len(test))
	}
	var testPositives int
	for _, row := range test {
		if row.Label == 1 {
			testPositives++
		}
	}
	if testPositives != 6 {
		t.Fatalf("expected 6 positive test rows, got %d", testPositives)
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	rows := syntheticRows(30)
	train1, test1 := StratifiedSplit(rows, 0.3, 42)
	train2, test2 := StratifiedSplit(rows, 0.3, 42)
	if !reflect.DeepEqual(train1, train2) || !reflect.DeepEqual(test1, test2) {
		t.Fatal("same seed produced different partitions")
	}
}

func TestTrainDatasetSelectsAccurateModel(t *testing.T) {
	result, err := TrainDataset(syntheticRows(60), DefaultTrainingOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Selected != result.Model.Name() {
		t.Fatalf("selected name %s does not match model %s", result.Selected, result.Model.Name())
	}
	if len(result.Scores) != 2 {
		t.Fatalf("expected 2 candidate scores, got %d", len(result.Scores))
	}
	if result.Scores[0].Name != VariantLogistic || result.Scores[1].Name != VariantForest {
		t.Fatalf("scores out of priority order: %+v", result.Scores)
	}
	if got := result.Metrics().Accuracy; got < 0.8 {
		t.Fatalf("expected separable cohort accuracy >= 0.8, got %f", got)
	}
	if result.TrainRows+result.TestRows != result.TotalRows {
		t.Fatalf("row accounting off: %d + %d != %d", result.TrainRows, result.TestRows, result.TotalRows)
	}
}

func TestTrainDatasetDeterministic(t *testing.T) {
	rows := syntheticRows(60)
	opts := DefaultTrainingOptions()

	first, err := TrainDataset(rows, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := TrainDataset(rows, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Selected != second.Selected {
		t.Fatalf("selection differs: %s != %s", first.Selected, second.Selected)
	}
	if !reflect.DeepEqual(first.Scores, second.Scores) {
		t.Fatalf("scores differ: %+v != %+v", first.Scores, second.Scores)
	}
	if !reflect.DeepEqual(first.Scaler, second.Scaler) {
		t.Fatal("scalers differ across identical runs")
	}

	probe, err := first.Scaler.Transform(syntheticRows(2)[1].Features.Vector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p1, err := first.Model.PredictProba(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := second.Model.PredictProba(probe)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("identical runs predict differently: %v != %v", p1, p2)
	}
}

// bandRows builds a cohort whose positives sit in a middle band of glucose
// and insulin while every other measurement is constant. A single linear
// boundary cannot carve the band out; the tree ensemble can.
func bandRows(n int) []TrainingRow {
	rows := make([]TrainingRow, 0, n)
	for i := 0; i < n; i++ {
		label := 0
		if i >= n/4 && i < n*3/5 {
			label = 1
		}
		rows = append(rows, TrainingRow{
			Features: Features{
				Pregnancies:   2,
				Glucose:       80 + 0.5*float64(i),
				BloodPressure: 70,
				SkinThickness: 25,
				Insulin:       60 + float64(i),
				BMI:           30,
				Pedigree:      0.5,
				Age:           35,
			},
			Label: label,
		})
	}
	return rows
}

func TestTrainDatasetPrefersForestOnBandedCohort(t *testing.T) {
	result, err := TrainDataset(bandRows(200), DefaultTrainingOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var logistic, forest Metrics
	for _, score := range result.Scores {
		switch score.Name {
		case VariantLogistic:
			logistic = score.Metrics
		case VariantForest:
			forest = score.Metrics
		}
	}
	if forest.Accuracy <= logistic.Accuracy {
		t.Fatalf("expected the ensemble to outscore the linear model on a banded cohort: forest %f, logistic %f",
			forest.Accuracy, logistic.Accuracy)
	}
	if result.Selected != VariantForest {
		t.Fatalf("expected %s selected, got %s", VariantForest, result.Selected)
	}
	if result.Model.Name() != VariantForest {
		t.Fatalf("selected model is %s, scores chose %s", result.Model.Name(), result.Selected)
	}
}

func TestTrainDatasetRejectsSmallCohort(t *testing.T) {
	_, err := TrainDataset(syntheticRows(10), DefaultTrainingOptions())
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestTrainDatasetRejectsSingleClass(t *testing.T) {
	rows := syntheticRows(40)
	for i := range rows {
		rows[i].Label = 0
	}
	_, err := TrainDataset(rows, DefaultTrainingOptions())
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestTrainDatasetRejectsBadLabel(t *testing.T) {
	rows := syntheticRows(40)
	rows[3].Label = 2
	_, err := TrainDataset(rows, DefaultTrainingOptions())
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
