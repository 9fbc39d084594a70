package artifact

import (
	"fmt"
	"time"

	"diapredict/ml"
)

// Bundle is the complete serving artifact of one training run: the fitted
// scaler, the selected model parameters and the run metadata, published as a
// single JSON document so a reader can never observe half a run. Exactly one
// of the model slots is set, the one named by Selected.
type Bundle struct {
	SchemaVersion int                  `json:"schema_version"`
	RunID         string               `json:"run_id"`
	CreatedAt     time.Time            `json:"created_at"`
	Selected      string               `json:"selected"`
	Scores        []ml.CandidateScore  `json:"scores"`
	TotalRows     int                  `json:"total_rows"`
	TrainRows     int                  `json:"train_rows"`
	TestRows      int                  `json:"test_rows"`
	DatasetPath   string               `json:"dataset_path,omitempty"`

	Scaler   *ml.Scaler             `json:"scaler"`
	Logistic *ml.LogisticRegression `json:"logistic_regression,omitempty"`
	Forest   *ml.RandomForest       `json:"random_forest,omitempty"`
}

// NewBundle packages a finished training run for publication.
func NewBundle(result *ml.TrainingResult, runID, datasetPath string) (*Bundle, error) {
	b := &Bundle{
		SchemaVersion: ml.SchemaVersion,
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Selected:      result.Selected,
		Scores:        result.Scores,
		TotalRows:     result.TotalRows,
		TrainRows:     result.TrainRows,
		TestRows:      result.TestRows,
		DatasetPath:   datasetPath,
		Scaler:        result.Scaler,
	}
	switch model := result.Model.(type) {
	case *ml.LogisticRegression:
		b.Logistic = model
	case *ml.RandomForest:
		b.Forest = model
	default:
		return nil, fmt.Errorf("unsupported model type %T", result.Model)
	}
	return b, nil
}

// Model returns the selected classifier.
func (b *Bundle) Model() (ml.Classifier, error) {
	switch b.Selected {
	case ml.VariantLogistic:
		if b.Logistic == nil {
			return nil, fmt.Errorf("%w: selected %s but parameters missing", ErrCorrupt, b.Selected)
		}
		return b.Logistic, nil
	case ml.VariantForest:
		if b.Forest == nil {
			return nil, fmt.Errorf("%w: selected %s but parameters missing", ErrCorrupt, b.Selected)
		}
		return b.Forest, nil
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrCorrupt, b.Selected)
	}
}

// Metrics returns the held-out metrics of the selected candidate.
func (b *Bundle) Metrics() ml.Metrics {
	for _, score := range b.Scores {
		if score.Name == b.Selected {
			return score.Metrics
		}
	}
	return ml.Metrics{}
}

// Validate checks that the bundle is structurally servable.
func (b *Bundle) Validate() error {
	if b.SchemaVersion != ml.SchemaVersion {
		return fmt.Errorf("%w: bundle schema %d, serving schema %d", ErrIncompatible, b.SchemaVersion, ml.SchemaVersion)
	}
	if b.Scaler == nil {
		return fmt.Errorf("%w: scaler missing", ErrCorrupt)
	}
	if _, err := b.Model(); err != nil {
		return err
	}
	return nil
}
