package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"diapredict/ml"
)

// Load reads a training dataset from a CSV file. The header must match the
// feature contract column for column; exported spreadsheets often carry a
// byte order mark, so UTF-8 and UTF-16 BOMs are decoded transparently.
func Load(path string) ([]ml.TrainingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses training rows from an open CSV stream.
func Read(r io.Reader) ([]ml.TrainingRow, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: dataset is empty", ml.ErrSchemaMismatch)
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var rows []ml.TrainingRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ml.ErrSchemaMismatch, line, err)
		}
		row, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func checkHeader(header []string) error {
	want := ml.CSVHeader()
	if len(header) != len(want) {
		return fmt.Errorf("%w: header has %d columns, want %d", ml.ErrSchemaMismatch, len(header), len(want))
	}
	for i, name := range header {
		if !strings.EqualFold(strings.TrimSpace(name), want[i]) {
			return fmt.Errorf("%w: column %d is %q, want %q", ml.ErrSchemaMismatch, i, name, want[i])
		}
	}
	return nil
}

func parseRecord(record []string) (ml.TrainingRow, error) {
	if len(record) != ml.NumFeatures+1 {
		return ml.TrainingRow{}, fmt.Errorf("%w: row has %d columns, want %d", ml.ErrSchemaMismatch, len(record), ml.NumFeatures+1)
	}

	values := make([]float64, ml.NumFeatures)
	for i := 0; i < ml.NumFeatures; i++ {
		x, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return ml.TrainingRow{}, fmt.Errorf("%w: %s value %q is not numeric", ml.ErrSchemaMismatch, ml.FeatureNames()[i], record[i])
		}
		values[i] = x
	}
	features, err := ml.FeaturesFromVector(values)
	if err != nil {
		return ml.TrainingRow{}, err
	}

	label, err := strconv.Atoi(strings.TrimSpace(record[ml.NumFeatures]))
	if err != nil || (label != 0 && label != 1) {
		return ml.TrainingRow{}, fmt.Errorf("%w: outcome %q is not 0 or 1", ml.ErrSchemaMismatch, record[ml.NumFeatures])
	}
	return ml.TrainingRow{Features: features, Label: label}, nil
}
