package ml

// Candidate variant names. CandidateOrder is also the selection priority:
// when held-out metrics tie all the way down, the earlier variant wins.
const (
	VariantLogistic = "logistic_regression"
	VariantForest   = "random_forest"
)

func CandidateOrder() []string {
	return []string{VariantLogistic, VariantForest}
}

// Classifier is a trainable binary probabilistic model. Train fits in place;
// after that the model is read-only and both Predict methods are safe for
// concurrent use.
type Classifier interface {
	Train(features [][]float64, labels []int) error
	// PredictProba returns the positive-class probability in [0, 1].
	PredictProba(features []float64) (float64, error)
	// PredictLabel thresholds PredictProba at 0.5.
	PredictLabel(features []float64) (int, error)
	Name() string
}

// Label converts a positive-class probability to the served binary label.
func Label(proba float64) int {
	if proba >= 0.5 {
		return 1
	}
	return 0
}
