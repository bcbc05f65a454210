package ml

import (
	"errors"
	"fmt"
	"math"

	"trading-simv1/internal/model"
)

// Kind names a classifier variant.
type Kind string

const (
	KindGBT    Kind = "gbt"
	KindForest Kind = "forest"
)

// ParseKind validates a classifier kind name.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case KindGBT, KindForest:
		return k, nil
	}
	return "", fmt.Errorf("%w: model kind %q not in {gbt,forest}", model.ErrInvalidConfiguration, name)
}

// Classifier is a binary classifier over scaled feature rows.
type Classifier interface {
	Kind() Kind
	Fit(X [][]float64, y []bool) error
	// PredictProba returns P(positive class).
	PredictProba(x []float64) (float64, error)
	Predict(x []float64) (bool, error)
}

// NewClassifier returns an unfitted classifier of the given kind.
func NewClassifier(kind Kind, seed int64) (Classifier, error) {
	switch kind {
	case KindGBT:
		return NewGradientBoosted(), nil
	case KindForest:
		f := NewRandomForest()
		f.Seed = seed
		return f, nil
	}
	return nil, fmt.Errorf("%w: unknown model kind %q", model.ErrInvalidConfiguration, kind)
}

var errNotFitted = errors.New("ml: classifier not fitted")

func checkTable(X [][]float64, y []bool) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("ml: empty training table")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("ml: %d rows but %d labels", len(X), len(y))
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return 0, fmt.Errorf("ml: row %d has %d features, want %d", i, len(row), d)
		}
	}
	return d, nil
}

func labels01(y []bool) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		if v {
			out[i] = 1
		}
	}
	return out
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
