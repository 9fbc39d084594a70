package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TrainingOptions controls one offline training run. The defaults reproduce
// the reference pipeline; a fixed Seed makes the whole run, split included,
// repeatable.
type TrainingOptions struct {
	Seed      int64
	TestRatio float64
	MinRows   int
}

func DefaultTrainingOptions() TrainingOptions {
	return TrainingOptions{
		Seed:      42,
		TestRatio: 0.3,
		MinRows:   20,
	}
}

// TrainingResult is everything one run produces: the selected model, the
// scaler fitted alongside it, and the held-out scores of every candidate.
type TrainingResult struct {
	Model     Classifier
	Scaler    *Scaler
	Selected  string
	Scores    []CandidateScore
	TotalRows int
	TrainRows int
	TestRows  int
}

// Metrics returns the held-out metrics of the selected candidate.
func (r *TrainingResult) Metrics() Metrics {
	for _, score := range r.Scores {
		if score.Name == r.Selected {
			return score.Metrics
		}
	}
	return Metrics{}
}

// TrainDataset runs the full offline pipeline: viability checks, stratified
// split, preprocessing fitted on the training split only, both candidates
// trained and scored on the held-out split, deterministic selection.
func TrainDataset(rows []TrainingRow, opts TrainingOptions) (*TrainingResult, error) {
	if opts.TestRatio <= 0 || opts.TestRatio >= 1 {
		opts.TestRatio = 0.3
	}
	if opts.MinRows <= 0 {
		opts.MinRows = DefaultTrainingOptions().MinRows
	}

	if len(rows) < opts.MinRows {
		return nil, fmt.Errorf("%w: %d rows, need at least %d", ErrInsufficientData, len(rows), opts.MinRows)
	}
	var positives, negatives int
	for _, row := range rows {
		switch row.Label {
		case 0:
			negatives++
		case 1:
			positives++
		default:
			return nil, fmt.Errorf("%w: label %d is not binary", ErrSchemaMismatch, row.Label)
		}
	}
	if positives == 0 || negatives == 0 {
		return nil, fmt.Errorf("%w: all rows share one label", ErrInsufficientData)
	}

	train, test := StratifiedSplit(rows, opts.TestRatio, opts.Seed)
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("%w: split left an empty partition", ErrInsufficientData)
	}

	scaler, err := FitScaler(train)
	if err != nil {
		return nil, err
	}
	trainX, trainY, err := scaler.TransformRows(train)
	if err != nil {
		return nil, err
	}
	testX, testY, err := scaler.TransformRows(test)
	if err != nil {
		return nil, err
	}

	candidates := []Classifier{
		NewLogisticRegression(),
		NewRandomForest(opts.Seed),
	}
	scores := make([]CandidateScore, 0, len(candidates))
	byName := make(map[string]Classifier, len(candidates))
	for _, candidate := range candidates {
		if err := candidate.Train(trainX, trainY); err != nil {
			return nil, fmt.Errorf("train %s: %w", candidate.Name(), err)
		}
		metrics, err := Evaluate(candidate, testX, testY)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", candidate.Name(), err)
		}
		scores = append(scores, CandidateScore{Name: candidate.Name(), Metrics: metrics})
		byName[candidate.Name()] = candidate
	}

	best, err := SelectBest(scores)
	if err != nil {
		return nil, err
	}

	return &TrainingResult{
		Model:     byName[best.Name],
		Scaler:    scaler,
		Selected:  best.Name,
		Scores:    scores,
		TotalRows: len(rows),
		TrainRows: len(train),
		TestRows:  len(test),
	}, nil
}

// StratifiedSplit partitions rows into train and test sets preserving the
// label ratio. Rows are shuffled per class with the given seed; the same seed
// and input order always produce the same partition.
func StratifiedSplit(rows []TrainingRow, testRatio float64, seed int64) (train, test []TrainingRow) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.3
	}
	rnd := rand.New(rand.NewSource(seed))

	byClass := make(map[int][]int)
	for i, row := range rows {
		byClass[row.Label] = append(byClass[row.Label], i)
	}

	// Map iteration order is randomized; fix the class order so the shuffle
	// consumes the generator identically on every run.
	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	for _, label := range classes {
		idxs := byClass[label]
		rnd.Shuffle(len(idxs), func(a, b int) {
			idxs[a], idxs[b] = idxs[b], idxs[a]
		})
		nTest := int(math.Round(float64(len(idxs)) * testRatio))
		if nTest >= len(idxs) {
			nTest = len(idxs) - 1
		}
		for i, idx := range idxs {
			if i < nTest {
				test = append(test, rows[idx])
			} else {
				train = append(train, rows[idx])
			}
		}
	}
	return train, test
}
