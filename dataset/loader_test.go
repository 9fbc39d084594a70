package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"diapredict/ml"
)

const sampleCSV = `Pregnancies,Glucose,BloodPressure,SkinThickness,Insulin,BMI,DiabetesPedigreeFunction,Age,Outcome
6,148,72,35,0,33.6,0.627,50,1
1,85,66,29,0,26.6,0.351,31,0
8,183,64,0,0,23.3,0.672,32,1
`

func TestReadParsesRows(t *testing.T) {
	rows, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Equal(t, ml.Features{
		Pregnancies:   6,
		Glucose:       148,
		BloodPressure: 72,
		SkinThickness: 35,
		Insulin:       0,
		BMI:           33.6,
		Pedigree:      0.627,
		Age:           50,
	}, rows[0].Features)
	require.Equal(t, 1, rows[0].Label)
	require.Equal(t, 0, rows[1].Label)
}

func TestReadStripsByteOrderMark(t *testing.T) {
	rows, err := Read(strings.NewReader("\xEF\xBB\xBF" + sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, float64(148), rows[0].Features.Glucose)
}

func TestReadRejectsWrongHeader(t *testing.T) {
	csv := strings.Replace(sampleCSV, "Glucose", "Sugar", 1)
	_, err := Read(strings.NewReader(csv))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)

	_, err = Read(strings.NewReader("a,b,c\n1,2,3\n"))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)
}

func TestReadAcceptsHeaderCaseInsensitive(t *testing.T) {
	csv := strings.Replace(sampleCSV, "Glucose", "GLUCOSE", 1)
	rows, err := Read(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestReadRejectsBadValues(t *testing.T) {
	csv := strings.Replace(sampleCSV, "148", "abc", 1)
	_, err := Read(strings.NewReader(csv))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)

	csv = strings.Replace(sampleCSV, "148", "NaN", 1)
	_, err = Read(strings.NewReader(csv))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)
}

func TestReadRejectsBadLabel(t *testing.T) {
	csv := strings.Replace(sampleCSV, "0.627,50,1", "0.627,50,2", 1)
	_, err := Read(strings.NewReader(csv))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)

	csv = strings.Replace(sampleCSV, "0.627,50,1", "0.627,50,yes", 1)
	_, err = Read(strings.NewReader(csv))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)
}

func TestReadRejectsShortRow(t *testing.T) {
	_, err := Read(strings.NewReader(sampleCSV + "1,2,3\n"))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)
}

func TestReadEmpty(t *testing.T) {
	_, err := Read(strings.NewReader(""))
	require.ErrorIs(t, err, ml.ErrSchemaMismatch)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diabetes.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	rows, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
