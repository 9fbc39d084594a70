package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DecisionTree is one gini-impurity tree of the bagged ensemble, stored as a
// flat node array with child indexes so it serializes straight to JSON.
// Leaves keep the positive-class share of their training rows, which is what
// makes the ensemble average a usable probability.
type DecisionTree struct {
	Nodes            []TreeNode `json:"nodes"`
	MaxDepth         int        `json:"max_depth"`
	FeaturesPerSplit int        `json:"features_per_split"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Positive   float64 `json:"positive"`
	IsLeaf     bool    `json:"is_leaf"`
}

// fit grows the tree on a bootstrap sample. All randomness (the feature
// subset drawn at each split) comes from rnd, so a fixed seed reproduces the
// tree exactly.
func (dt *DecisionTree) fit(features [][]float64, labels []int, rnd *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = 3
	}
	featureCount := len(features[0])
	if dt.FeaturesPerSplit <= 0 || dt.FeaturesPerSplit > featureCount {
		dt.FeaturesPerSplit = featureCount
	}

	dt.Nodes = dt.buildNode(features, labels, 0, rnd)
	return nil
}

// PositiveProba walks the tree and returns the positive-class share stored at
// the reached leaf.
func (dt *DecisionTree) PositiveProba(features []float64) (float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, errors.New("tree not fitted")
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Positive, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, depth int, rnd *rand.Rand) []TreeNode {
	if depth >= dt.MaxDepth || isPure(labels) {
		return []TreeNode{leafNode(labels)}
	}

	bestFeature, threshold, ok := findBestSplit(features, labels, splitCandidates(len(features[0]), dt.FeaturesPerSplit, rnd))
	if !ok {
		return []TreeNode{leafNode(labels)}
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return []TreeNode{leafNode(labels)}
	}

	leftNodes := dt.buildNode(leftFeatures, leftLabels, depth+1, rnd)
	rightNodes := dt.buildNode(rightFeatures, rightLabels, depth+1, rnd)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Positive:   positiveShare(labels),
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, leftNodes...)
	nodes = append(nodes, rightNodes...)
	return nodes
}

func leafNode(labels []int) TreeNode {
	return TreeNode{
		FeatureIdx: -1,
		Threshold:  0,
		LeftChild:  -1,
		RightChild: -1,
		Positive:   positiveShare(labels),
		IsLeaf:     true,
	}
}

// splitCandidates draws k distinct feature indexes without replacement.
func splitCandidates(featureCount, k int, rnd *rand.Rand) []int {
	if k >= featureCount {
		idxs := make([]int, featureCount)
		for i := range idxs {
			idxs[i] = i
		}
		return idxs
	}
	return rnd.Perm(featureCount)[:k]
}

func findBestSplit(features [][]float64, labels []int, featureIdxs []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	for _, featureIdx := range featureIdxs {
		values := make([]float64, len(features))
		for i := range features {
			values[i] = features[i][featureIdx]
		}
		for _, threshold := range thresholdCandidates(values) {
			leftLabels, rightLabels := splitLabels(features, labels, featureIdx, threshold)
			if len(leftLabels) == 0 || len(rightLabels) == 0 {
				continue
			}
			impurity := weightedGini(leftLabels, rightLabels)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = threshold
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// thresholdCandidates returns the quartiles of the observed column values.
func thresholdCandidates(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return []float64{
		stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func splitLabels(features [][]float64, labels []int, featureIdx int, threshold float64) ([]int, []int) {
	leftLabels := make([]int, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftLabels, rightLabels
}

func weightedGini(leftLabels, rightLabels []int) float64 {
	leftWeight := float64(len(leftLabels))
	rightWeight := float64(len(rightLabels))
	total := leftWeight + rightWeight
	return (leftWeight/total)*gini(leftLabels) + (rightWeight/total)*gini(rightLabels)
}

func gini(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	counts := make(map[int]int)
	for _, label := range labels {
		counts[label]++
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(len(labels))
		impurity -= prob * prob
	}
	return impurity
}

func positiveShare(labels []int) float64 {
	if len(labels) == 0 {
		return 0
	}
	positives := 0
	for _, label := range labels {
		if label == 1 {
			positives++
		}
	}
	return float64(positives) / float64(len(labels))
}

func isPure(labels []int) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, label := range labels[1:] {
		if label != first {
			return false
		}
	}
	return true
}
