package ml

import (
	"fmt"
	"sort"
)

// Metrics is the evaluation vector computed on the held-out split.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	ROCAUC    float64 `json:"roc_auc"`
}

// CandidateScore pairs a candidate variant with its held-out metrics.
type CandidateScore struct {
	Name    string  `json:"name"`
	Metrics Metrics `json:"metrics"`
}

// Evaluate scores a trained candidate on held-out data. Degenerate ratios
// (no predicted positives, no actual positives) score zero rather than NaN;
// an AUC with a single-class truth set falls back to 0.5.
func Evaluate(model Classifier, features [][]float64, labels []int) (Metrics, error) {
	if len(features) == 0 || len(features) != len(labels) {
		return Metrics{}, fmt.Errorf("%w: evaluation set is empty or misaligned", ErrInsufficientData)
	}

	probas := make([]float64, len(features))
	var tp, tn, fp, fn int
	for i, vector := range features {
		proba, err := model.PredictProba(vector)
		if err != nil {
			return Metrics{}, err
		}
		probas[i] = proba
		predicted := Label(proba)
		switch {
		case predicted == 1 && labels[i] == 1:
			tp++
		case predicted == 0 && labels[i] == 0:
			tn++
		case predicted == 1 && labels[i] == 0:
			fp++
		default:
			fn++
		}
	}

	m := Metrics{
		Accuracy: float64(tp+tn) / float64(len(labels)),
		ROCAUC:   rankAUC(probas, labels),
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

// SelectBest applies the deterministic selection rule to scores listed in
// candidate priority order: highest accuracy wins, accuracy ties break on
// ROC-AUC, full ties keep the earlier candidate.
func SelectBest(scores []CandidateScore) (CandidateScore, error) {
	if len(scores) == 0 {
		return CandidateScore{}, fmt.Errorf("%w: no candidates scored", ErrInsufficientData)
	}
	best := scores[0]
	for _, score := range scores[1:] {
		if score.Metrics.Accuracy > best.Metrics.Accuracy {
			best = score
			continue
		}
		if score.Metrics.Accuracy == best.Metrics.Accuracy && score.Metrics.ROCAUC > best.Metrics.ROCAUC {
			best = score
		}
	}
	return best, nil
}

// rankAUC computes ROC-AUC as the Mann-Whitney U statistic over the score
// ranks, averaging ranks across tied scores.
func rankAUC(scores []float64, labels []int) float64 {
	n := len(scores)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		// Ranks are 1-based; tied scores share the mean rank of their block.
		mean := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = mean
		}
		i = j + 1
	}

	var positives, negatives int
	var positiveRankSum float64
	for i, label := range labels {
		if label == 1 {
			positives++
			positiveRankSum += ranks[i]
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0.5
	}
	u := positiveRankSum - float64(positives)*float64(positives+1)/2
	return u / (float64(positives) * float64(negatives))
}
