package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"diapredict/artifact"
	"diapredict/dataset"
	"diapredict/db"
	"diapredict/logging"
	"diapredict/ml"
	"diapredict/monitoring"
)

// ErrTrainingInProgress rejects a second training run while one is active.
var ErrTrainingInProgress = errors.New("training already in progress")

// TrainingConfig is the default setup a POST /api/train runs with. Request
// fields override individual values.
type TrainingConfig struct {
	DatasetPath string
	Seed        int64
	TestRatio   float64
	MinRows     int
}

var (
	trainingConfig TrainingConfig
	artifactStore  *artifact.Store
	trainMu        sync.Mutex
)

// SetTrainingConfig installs the server's training defaults.
func SetTrainingConfig(cfg TrainingConfig) {
	trainingConfig = cfg
}

// SetArtifactStore installs the store training runs publish to.
func SetArtifactStore(store *artifact.Store) {
	artifactStore = store
}

// RegisterTrainingHandlers mounts the training route.
func RegisterTrainingHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/train", handleTrain)
}

type trainRequest struct {
	Dataset   string   `json:"dataset,omitempty"`
	Seed      *int64   `json:"seed,omitempty"`
	TestRatio *float64 `json:"test_ratio,omitempty"`
}

func handleTrain(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrivileged(w, r); !ok {
		return
	}
	if artifactStore == nil {
		respondError(w, http.StatusServiceUnavailable, "artifact store not configured")
		return
	}

	// The body is optional; an empty POST trains on the configured dataset.
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := trainingConfig
	if req.Dataset != "" {
		cfg.DatasetPath = req.Dataset
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.TestRatio != nil {
		cfg.TestRatio = *req.TestRatio
	}
	if cfg.DatasetPath == "" {
		respondError(w, http.StatusBadRequest, "no training dataset configured")
		return
	}

	run, err := runTraining(r.Context(), cfg)
	if err != nil {
		switch {
		case errors.Is(err, ErrTrainingInProgress):
			respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ml.ErrInsufficientData):
			respondError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ml.ErrSchemaMismatch):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, run)
}

// runTraining executes one pipeline run end to end: load, train, publish
// the artifact, record the run and wake the engine. Only one run may be in
// flight; a concurrent call fails fast instead of queueing.
func runTraining(ctx context.Context, cfg TrainingConfig) (db.TrainingRun, error) {
	if !trainMu.TryLock() {
		return db.TrainingRun{}, ErrTrainingInProgress
	}
	defer trainMu.Unlock()

	log := logging.FromContext(ctx)
	started := time.Now()

	rows, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		return db.TrainingRun{}, err
	}

	if issues, stats := dataset.NewScanner().Scan(rows); stats.Flagged > 0 {
		log.Infow("dataset quality scan", "rows", stats.TotalRows, "flagged", stats.Flagged)
		for _, issue := range issues {
			if issue.Severity == "high" {
				log.Warnw("suspect training row", "rule", issue.Rule, "row", issue.Row, "detail", issue.Message)
			}
		}
	}

	opts := ml.DefaultTrainingOptions()
	if cfg.Seed != 0 {
		opts.Seed = cfg.Seed
	}
	if cfg.TestRatio > 0 {
		opts.TestRatio = cfg.TestRatio
	}
	if cfg.MinRows > 0 {
		opts.MinRows = cfg.MinRows
	}

	result, err := ml.TrainDataset(rows, opts)
	if err != nil {
		return db.TrainingRun{}, err
	}

	runID := uuid.NewString()
	bundle, err := artifact.NewBundle(result, runID, cfg.DatasetPath)
	if err != nil {
		return db.TrainingRun{}, err
	}
	if err := artifactStore.Save(bundle); err != nil {
		return db.TrainingRun{}, fmt.Errorf("publish artifact: %w", err)
	}

	run := db.TrainingRun{
		RunID:      runID,
		Selected:   result.Selected,
		Metrics:    result.Metrics(),
		TotalRows:  result.TotalRows,
		TrainRows:  result.TrainRows,
		TestRows:   result.TestRows,
		DurationMS: time.Since(started).Milliseconds(),
		TrainedAt:  started.UTC(),
		Dataset:    cfg.DatasetPath,
	}
	if err := db.SaveTrainingRun(run); err != nil {
		// The artifact is already live; a history miss is not worth failing
		// the run over.
		log.Errorw("training run record failed", "run_id", runID, "error", err)
	}

	if engine != nil {
		engine.Invalidate()
	}
	if feed != nil {
		if err := feed.PublishTrainingRun(monitoring.TrainingRunEvent{
			RunID:      run.RunID,
			Selected:   run.Selected,
			Accuracy:   run.Metrics.Accuracy,
			ROCAUC:     run.Metrics.ROCAUC,
			TotalRows:  run.TotalRows,
			DurationMS: run.DurationMS,
			CreatedAt:  run.TrainedAt,
		}); err != nil {
			log.Warnw("feed publish failed", "error", err)
		}
	}

	log.Infow("training run published",
		"run_id", run.RunID,
		"selected", run.Selected,
		"accuracy", run.Metrics.Accuracy,
		"roc_auc", run.Metrics.ROCAUC,
		"rows", run.TotalRows,
		"duration_ms", run.DurationMS,
	)
	return run, nil
}
