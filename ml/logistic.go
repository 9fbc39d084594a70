package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression is the linear probabilistic candidate: full-batch
// gradient descent on the log-loss with fixed hyperparameters and zero
// initialization, so training is deterministic for a given input.
type LogisticRegression struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	LearningRate float64   `json:"learning_rate"`
	Iterations   int       `json:"iterations"`
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{
		LearningRate: 0.1,
		Iterations:   1000,
	}
}

func (m *LogisticRegression) Name() string { return VariantLogistic }

func (m *LogisticRegression) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	rows := len(features)
	cols := len(features[0])
	data := make([]float64, 0, rows*cols)
	for _, row := range features {
		if len(row) != cols {
			return errors.New("ragged feature matrix")
		}
		data = append(data, row...)
	}
	x := mat.NewDense(rows, cols, data)
	y := make([]float64, rows)
	for i, label := range labels {
		y[i] = float64(label)
	}

	weights := mat.NewVecDense(cols, nil)
	bias := 0.0
	var linear, grad mat.VecDense
	residual := mat.NewVecDense(rows, nil)
	for iter := 0; iter < m.Iterations; iter++ {
		linear.MulVec(x, weights)
		biasGrad := 0.0
		for i := 0; i < rows; i++ {
			r := sigmoid(linear.AtVec(i)+bias) - y[i]
			residual.SetVec(i, r)
			biasGrad += r
		}
		grad.MulVec(x.T(), residual)
		step := m.LearningRate / float64(rows)
		for j := 0; j < cols; j++ {
			weights.SetVec(j, weights.AtVec(j)-step*grad.AtVec(j))
		}
		bias -= step * biasGrad
	}

	m.Weights = make([]float64, cols)
	for j := 0; j < cols; j++ {
		m.Weights[j] = weights.AtVec(j)
	}
	m.Bias = bias
	return nil
}

func (m *LogisticRegression) PredictProba(features []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, errors.New("model not trained")
	}
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("expected %d features, got %d", len(m.Weights), len(features))
	}
	return sigmoid(floats.Dot(m.Weights, features) + m.Bias), nil
}

func (m *LogisticRegression) PredictLabel(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return Label(proba), nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
