package ml

import (
	"errors"
	"math/rand"
)

// RandomForest is the bagged-ensemble candidate: NumTrees gini trees, each
// fitted on a bootstrap sample of the training split with a random feature
// subset per split. Every draw comes from a generator seeded with Seed, so
// the whole ensemble is reproducible.
type RandomForest struct {
	Trees            []DecisionTree `json:"trees"`
	NumTrees         int            `json:"num_trees"`
	MaxDepth         int            `json:"max_depth"`
	FeaturesPerSplit int            `json:"features_per_split"`
	Seed             int64          `json:"seed"`
}

func NewRandomForest(seed int64) *RandomForest {
	return &RandomForest{
		NumTrees:         100,
		MaxDepth:         10,
		FeaturesPerSplit: 3,
		Seed:             seed,
	}
}

func (m *RandomForest) Name() string { return VariantForest }

func (m *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if m.NumTrees <= 0 {
		m.NumTrees = 100
	}

	rnd := rand.New(rand.NewSource(m.Seed))
	n := len(features)
	trees := make([]DecisionTree, m.NumTrees)
	for t := 0; t < m.NumTrees; t++ {
		sampleFeatures := make([][]float64, n)
		sampleLabels := make([]int, n)
		for i := 0; i < n; i++ {
			idx := rnd.Intn(n)
			sampleFeatures[i] = features[idx]
			sampleLabels[i] = labels[idx]
		}
		trees[t] = DecisionTree{MaxDepth: m.MaxDepth, FeaturesPerSplit: m.FeaturesPerSplit}
		if err := trees[t].fit(sampleFeatures, sampleLabels, rnd); err != nil {
			return err
		}
	}
	m.Trees = trees
	return nil
}

// PredictProba averages the per-tree leaf probabilities.
func (m *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(m.Trees) == 0 {
		return 0, errors.New("model not trained")
	}
	sum := 0.0
	for i := range m.Trees {
		proba, err := m.Trees[i].PositiveProba(features)
		if err != nil {
			return 0, err
		}
		sum += proba
	}
	return sum / float64(len(m.Trees)), nil
}

func (m *RandomForest) PredictLabel(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return Label(proba), nil
}
