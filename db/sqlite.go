package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"diapredict/ml"
)

var database *sql.DB

var (
	// ErrNotFound reports an id with no stored row.
	ErrNotFound = errors.New("report not found")
	// ErrForbidden reports an access attempt by a non-owner without
	// privileged scope.
	ErrForbidden = errors.New("report belongs to another owner")
)

// InitDB opens the SQLite database and creates the schema.
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}

	var err error
	database, err = sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_cache_size=10000&_synchronous=NORMAL")
	if err != nil {
		return err
	}
	database.SetMaxOpenConns(10)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(time.Hour)

	query := `
    CREATE TABLE IF NOT EXISTS reports (
        id TEXT PRIMARY KEY,
        owner_id TEXT NOT NULL,
        owner_name TEXT,
        created_at DATETIME NOT NULL,
        pregnancies REAL NOT NULL,
        glucose REAL NOT NULL,
        blood_pressure REAL NOT NULL,
        skin_thickness REAL NOT NULL,
        insulin REAL NOT NULL,
        bmi REAL NOT NULL,
        pedigree REAL NOT NULL,
        age REAL NOT NULL,
        outcome INTEGER NOT NULL,
        probability REAL NOT NULL,
        confidence INTEGER NOT NULL,
        variant TEXT,
        run_id TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_reports_owner ON reports(owner_id, created_at);
    CREATE TABLE IF NOT EXISTS training_runs (
        run_id TEXT PRIMARY KEY,
        selected TEXT NOT NULL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        roc_auc REAL,
        total_rows INTEGER,
        train_rows INTEGER,
        test_rows INTEGER,
        duration_ms INTEGER,
        trained_at DATETIME NOT NULL,
        dataset TEXT
    );
    `
	_, err = database.Exec(query)
	return err
}

// CloseDB closes the database handle.
func CloseDB() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// Report is one immutable prediction record. Rows are only ever inserted and
// deleted, never updated.
type Report struct {
	ID                   string      `json:"id"`
	OwnerID              string      `json:"owner_id"`
	OwnerName            string      `json:"owner_name,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	Features             ml.Features `json:"features"`
	Outcome              int         `json:"outcome"`
	Probability          float64     `json:"probability"`
	ConfidencePercentage int         `json:"confidence_percentage"`
	Variant              string      `json:"variant"`
	RunID                string      `json:"run_id"`
}

// SaveReport inserts a prediction record.
func SaveReport(report Report) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if report.ID == "" {
		return errors.New("report id required")
	}
	if report.OwnerID == "" {
		return errors.New("report owner required")
	}
	_, err := database.Exec(`
        INSERT INTO reports (
            id, owner_id, owner_name, created_at,
            pregnancies, glucose, blood_pressure, skin_thickness,
            insulin, bmi, pedigree, age,
            outcome, probability, confidence, variant, run_id
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.OwnerID, report.OwnerName, report.CreatedAt,
		report.Features.Pregnancies, report.Features.Glucose,
		report.Features.BloodPressure, report.Features.SkinThickness,
		report.Features.Insulin, report.Features.BMI,
		report.Features.Pedigree, report.Features.Age,
		report.Outcome, report.Probability, report.ConfidencePercentage,
		report.Variant, report.RunID)
	return err
}

const reportColumns = `
        id, owner_id, owner_name, created_at,
        pregnancies, glucose, blood_pressure, skin_thickness,
        insulin, bmi, pedigree, age,
        outcome, probability, confidence, variant, run_id`

func scanReport(row interface{ Scan(...any) error }) (Report, error) {
	var r Report
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.OwnerName, &r.CreatedAt,
		&r.Features.Pregnancies, &r.Features.Glucose,
		&r.Features.BloodPressure, &r.Features.SkinThickness,
		&r.Features.Insulin, &r.Features.BMI,
		&r.Features.Pedigree, &r.Features.Age,
		&r.Outcome, &r.Probability, &r.ConfidencePercentage,
		&r.Variant, &r.RunID)
	return r, err
}

// GetReport fetches one record. Non-owners without privileged scope get
// ErrForbidden; an unknown id gets ErrNotFound.
func GetReport(id, requesterID string, privileged bool) (Report, error) {
	if database == nil {
		return Report{}, errors.New("database not initialized")
	}
	row := database.QueryRow(`SELECT`+reportColumns+` FROM reports WHERE id = ?`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}
	if report.OwnerID != requesterID && !privileged {
		return Report{}, ErrForbidden
	}
	return report, nil
}

// ListReports returns the owner's records, newest first.
func ListReports(ownerID string) ([]Report, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT`+reportColumns+`
        FROM reports
        WHERE owner_id = ?
        ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

// ListAllReports returns every record, newest first. Callers gate this
// behind privileged scope.
func ListAllReports() ([]Report, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT` + reportColumns + `
        FROM reports
        ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

func collectReports(rows *sql.Rows) ([]Report, error) {
	reports := make([]Report, 0)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// DeleteReport removes one record with the same ownership rules as GetReport.
func DeleteReport(id, requesterID string, privileged bool) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	tx, err := database.Begin()
	if err != nil {
		return err
	}

	var ownerID string
	err = tx.QueryRow(`SELECT owner_id FROM reports WHERE id = ?`, id).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		return ErrNotFound
	}
	if err != nil {
		tx.Rollback()
		return err
	}
	if ownerID != requesterID && !privileged {
		tx.Rollback()
		return ErrForbidden
	}

	if _, err := tx.Exec(`DELETE FROM reports WHERE id = ?`, id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DeleteReportsByOwner removes every record of one owner and reports how many
// rows went away. Deleting an owner with no records is not an error.
func DeleteReportsByOwner(ownerID string) (int64, error) {
	if database == nil {
		return 0, errors.New("database not initialized")
	}
	result, err := database.Exec(`DELETE FROM reports WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Stats is the privileged aggregate view over all records.
type Stats struct {
	TotalReports       int     `json:"total_reports"`
	Positive           int     `json:"positive"`
	Negative           int     `json:"negative"`
	AverageProbability float64 `json:"average_probability"`
	DistinctOwners     int     `json:"distinct_owners"`
}

// ReportStats aggregates across every owner.
func ReportStats() (Stats, error) {
	if database == nil {
		return Stats{}, errors.New("database not initialized")
	}
	var stats Stats
	var avg sql.NullFloat64
	err := database.QueryRow(`
        SELECT COUNT(*),
               COALESCE(SUM(CASE WHEN outcome = 1 THEN 1 ELSE 0 END), 0),
               COALESCE(SUM(CASE WHEN outcome = 0 THEN 1 ELSE 0 END), 0),
               AVG(probability),
               COUNT(DISTINCT owner_id)
        FROM reports`).Scan(&stats.TotalReports, &stats.Positive, &stats.Negative, &avg, &stats.DistinctOwners)
	if err != nil {
		return Stats{}, err
	}
	if avg.Valid {
		stats.AverageProbability = avg.Float64
	}
	return stats, nil
}

// TrainingRun is one row of training history.
type TrainingRun struct {
	RunID      string     `json:"run_id"`
	Selected   string     `json:"selected"`
	Metrics    ml.Metrics `json:"metrics"`
	TotalRows  int        `json:"total_rows"`
	TrainRows  int        `json:"train_rows"`
	TestRows   int        `json:"test_rows"`
	DurationMS int64      `json:"duration_ms"`
	TrainedAt  time.Time  `json:"trained_at"`
	Dataset    string     `json:"dataset,omitempty"`
}

// SaveTrainingRun records a finished training run.
func SaveTrainingRun(run TrainingRun) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if run.RunID == "" {
		return errors.New("run id required")
	}
	_, err := database.Exec(`
        INSERT INTO training_runs (
            run_id, selected, accuracy, precision, recall, f1, roc_auc,
            total_rows, train_rows, test_rows, duration_ms, trained_at, dataset
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Selected,
		run.Metrics.Accuracy, run.Metrics.Precision, run.Metrics.Recall,
		run.Metrics.F1, run.Metrics.ROCAUC,
		run.TotalRows, run.TrainRows, run.TestRows,
		run.DurationMS, run.TrainedAt, run.Dataset)
	return err
}

// ListTrainingRuns returns training history, newest first. A non-positive
// limit returns everything.
func ListTrainingRuns(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	query := `
        SELECT run_id, selected, accuracy, precision, recall, f1, roc_auc,
               total_rows, train_rows, test_rows, duration_ms, trained_at, dataset
        FROM training_runs
        ORDER BY trained_at DESC, run_id`
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = database.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = database.Query(query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		if err := rows.Scan(
			&run.RunID, &run.Selected,
			&run.Metrics.Accuracy, &run.Metrics.Precision, &run.Metrics.Recall,
			&run.Metrics.F1, &run.Metrics.ROCAUC,
			&run.TotalRows, &run.TrainRows, &run.TestRows,
			&run.DurationMS, &run.TrainedAt, &run.Dataset); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
