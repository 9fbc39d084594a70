package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"diapredict/ml"
)

func initTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() {
		require.NoError(t, CloseDB())
	})
}

func sampleReport(owner string, outcome int, probability float64, at time.Time) Report {
	return Report{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		OwnerName: owner + " name",
		CreatedAt: at,
		Features: ml.Features{
			Pregnancies:   2,
			Glucose:       120,
			BloodPressure: 70,
			SkinThickness: 25,
			Insulin:       90,
			BMI:           30.5,
			Pedigree:      0.4,
			Age:           33,
		},
		Outcome:              outcome,
		Probability:          probability,
		ConfidencePercentage: int(probability * 100),
		Variant:              ml.VariantLogistic,
		RunID:                "run-1",
	}
}

func TestSaveAndListReportsByOwner(t *testing.T) {
	initTestDB(t)
	now := time.Now().UTC()

	oldest := sampleReport("alice", 1, 0.8, now.Add(-2*time.Hour))
	newest := sampleReport("alice", 0, 0.2, now)
	other := sampleReport("bob", 1, 0.9, now.Add(-time.Hour))
	for _, report := range []Report{oldest, newest, other} {
		require.NoError(t, SaveReport(report))
	}

	mine, err := ListReports("alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, newest.ID, mine[0].ID)
	require.Equal(t, oldest.ID, mine[1].ID)
	for _, report := range mine {
		require.Equal(t, "alice", report.OwnerID)
	}

	all, err := ListAllReports()
	require.NoError(t, err)
	require.Len(t, all, 3)

	none, err := ListReports("carol")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestReportRoundTripValues(t *testing.T) {
	initTestDB(t)
	want := sampleReport("alice", 1, 0.8123, time.Now().UTC())
	require.NoError(t, SaveReport(want))

	got, err := GetReport(want.ID, "alice", false)
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Features, got.Features)
	require.Equal(t, want.Outcome, got.Outcome)
	require.Equal(t, want.Probability, got.Probability)
	require.Equal(t, want.ConfidencePercentage, got.ConfidencePercentage)
	require.Equal(t, want.Variant, got.Variant)
	require.Equal(t, want.RunID, got.RunID)
	require.WithinDuration(t, want.CreatedAt, got.CreatedAt, time.Second)
}

func TestReportsAreInsertOnly(t *testing.T) {
	initTestDB(t)
	report := sampleReport("alice", 1, 0.8, time.Now().UTC())
	require.NoError(t, SaveReport(report))
	require.Error(t, SaveReport(report))

	require.Error(t, SaveReport(Report{OwnerID: "alice"}))
	require.Error(t, SaveReport(Report{ID: uuid.NewString()}))
}

func TestGetReportOwnership(t *testing.T) {
	initTestDB(t)
	report := sampleReport("alice", 1, 0.8, time.Now().UTC())
	require.NoError(t, SaveReport(report))

	_, err := GetReport(report.ID, "bob", false)
	require.ErrorIs(t, err, ErrForbidden)

	got, err := GetReport(report.ID, "bob", true)
	require.NoError(t, err)
	require.Equal(t, report.ID, got.ID)

	_, err = GetReport(uuid.NewString(), "alice", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteReportOwnership(t *testing.T) {
	initTestDB(t)
	mine := sampleReport("alice", 1, 0.8, time.Now().UTC())
	theirs := sampleReport("bob", 0, 0.3, time.Now().UTC())
	require.NoError(t, SaveReport(mine))
	require.NoError(t, SaveReport(theirs))

	require.ErrorIs(t, DeleteReport(theirs.ID, "alice", false), ErrForbidden)
	require.ErrorIs(t, DeleteReport(uuid.NewString(), "alice", false), ErrNotFound)

	require.NoError(t, DeleteReport(mine.ID, "alice", false))
	_, err := GetReport(mine.ID, "alice", false)
	require.ErrorIs(t, err, ErrNotFound)

	// Privileged callers may remove anyone's record.
	require.NoError(t, DeleteReport(theirs.ID, "admin", true))
}

func TestDeleteReportsByOwner(t *testing.T) {
	initTestDB(t)
	now := time.Now().UTC()
	require.NoError(t, SaveReport(sampleReport("alice", 1, 0.8, now)))
	require.NoError(t, SaveReport(sampleReport("alice", 0, 0.2, now)))
	require.NoError(t, SaveReport(sampleReport("bob", 1, 0.9, now)))

	deleted, err := DeleteReportsByOwner("alice")
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	remaining, err := ListAllReports()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "bob", remaining[0].OwnerID)

	deleted, err = DeleteReportsByOwner("nobody")
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestReportStats(t *testing.T) {
	initTestDB(t)

	stats, err := ReportStats()
	require.NoError(t, err)
	require.Zero(t, stats.TotalReports)
	require.Zero(t, stats.AverageProbability)

	now := time.Now().UTC()
	require.NoError(t, SaveReport(sampleReport("alice", 1, 0.8, now)))
	require.NoError(t, SaveReport(sampleReport("alice", 1, 0.6, now)))
	require.NoError(t, SaveReport(sampleReport("bob", 0, 0.2, now)))

	stats, err = ReportStats()
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalReports)
	require.Equal(t, 2, stats.Positive)
	require.Equal(t, 1, stats.Negative)
	require.Equal(t, 2, stats.DistinctOwners)
	require.InDelta(t, (0.8+0.6+0.2)/3, stats.AverageProbability, 1e-9)
}

func TestTrainingRunHistory(t *testing.T) {
	initTestDB(t)
	now := time.Now().UTC()

	first := TrainingRun{
		RunID:    uuid.NewString(),
		Selected: ml.VariantLogistic,
		Metrics: ml.Metrics{
			Accuracy: 0.9, Precision: 0.85, Recall: 0.8, F1: 0.82, ROCAUC: 0.93,
		},
		TotalRows:  768,
		TrainRows:  537,
		TestRows:   231,
		DurationMS: 1200,
		TrainedAt:  now.Add(-time.Hour),
		Dataset:    "data/diabetes.csv",
	}
	second := TrainingRun{
		RunID:     uuid.NewString(),
		Selected:  ml.VariantForest,
		Metrics:   ml.Metrics{Accuracy: 0.92, ROCAUC: 0.95},
		TrainedAt: now,
	}
	require.NoError(t, SaveTrainingRun(first))
	require.NoError(t, SaveTrainingRun(second))
	require.Error(t, SaveTrainingRun(TrainingRun{}))

	runs, err := ListTrainingRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.RunID, runs[0].RunID)
	require.Equal(t, first.RunID, runs[1].RunID)
	require.Equal(t, first.Metrics, runs[1].Metrics)

	limited, err := ListTrainingRuns(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, second.RunID, limited[0].RunID)
}
