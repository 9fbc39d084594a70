package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"diapredict/artifact"
	"diapredict/dataset"
	"diapredict/db"
	"diapredict/ml"
)

func main() {
	dataPath := flag.String("data", "", "training dataset CSV path")
	outPath := flag.String("out", "./data/model/bundle.json", "artifact bundle output path")
	seed := flag.Int64("seed", 42, "split and bootstrap seed")
	testRatio := flag.Float64("test_ratio", 0.3, "held-out fraction")
	minRows := flag.Int("min_rows", 50, "minimum viable dataset size")
	dbPath := flag.String("db", "", "optional sqlite path to record the run")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}

	rows, err := dataset.Load(*dataPath)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}

	if issues, stats := dataset.NewScanner().Scan(rows); stats.Flagged > 0 {
		fmt.Printf("quality scan: %d/%d rows flagged\n", stats.Flagged, stats.TotalRows)
		for _, issue := range issues {
			if issue.Severity == "high" {
				log.Printf("row %d: %s", issue.Row, issue.Message)
			}
		}
	}

	started := time.Now()
	result, err := ml.TrainDataset(rows, ml.TrainingOptions{
		Seed:      *seed,
		TestRatio: *testRatio,
		MinRows:   *minRows,
	})
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}

	for _, score := range result.Scores {
		fmt.Printf("%-20s accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f roc_auc=%.4f\n",
			score.Name, score.Metrics.Accuracy, score.Metrics.Precision,
			score.Metrics.Recall, score.Metrics.F1, score.Metrics.ROCAUC)
	}
	fmt.Printf("selected: %s (train=%d test=%d)\n", result.Selected, result.TrainRows, result.TestRows)

	runID := uuid.NewString()
	bundle, err := artifact.NewBundle(result, runID, *dataPath)
	if err != nil {
		log.Fatalf("failed to package artifact: %v", err)
	}
	if err := artifact.NewStore(*outPath).Save(bundle); err != nil {
		log.Fatalf("failed to publish artifact: %v", err)
	}

	if *dbPath != "" {
		if err := db.InitDB(*dbPath); err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.CloseDB()

		run := db.TrainingRun{
			RunID:      runID,
			Selected:   result.Selected,
			Metrics:    result.Metrics(),
			TotalRows:  result.TotalRows,
			TrainRows:  result.TrainRows,
			TestRows:   result.TestRows,
			DurationMS: time.Since(started).Milliseconds(),
			TrainedAt:  started.UTC(),
			Dataset:    *dataPath,
		}
		if err := db.SaveTrainingRun(run); err != nil {
			log.Fatalf("failed to record training run: %v", err)
		}
	}

	fmt.Printf("bundle %s published to %s\n", runID, *outPath)
}
