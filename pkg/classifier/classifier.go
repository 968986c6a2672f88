// Package classifier implements the tuned model families and their stacking
// ensemble: cosine-weighted k-nearest-neighbors, L1-penalized multinomial
// logistic regression and gradient-boosted trees.
package classifier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Model families.
const (
	FamilyKNN      = "knn"
	FamilyLasso    = "lasso"
	FamilyGBT      = "gbt"
	FamilyStacking = "stacking"
)

// Model is the fit/predict surface shared by the classical families.
type Model interface {
	Name() string
	Fit(X *mat.Dense, y []int) error
	PredictProba(X *mat.Dense) (*mat.Dense, error)
	Predict(X *mat.Dense) ([]int, error)
}

// Params holds the tunable knobs of one family. Zero values fall back to
// family defaults.
type Params struct {
	MaxTokens     int     `json:"max_tokens,omitempty"`
	Neighbors     int     `json:"neighbors,omitempty"`
	Alpha         float64 `json:"alpha,omitempty"`
	LearningRate  float64 `json:"learning_rate,omitempty"`
	Trees         int     `json:"trees,omitempty"`
	FeatureSample int     `json:"feature_sample,omitempty"`
}

// New returns an unfitted model of the given family sized for classes.
func New(family string, p Params, classes int, seed int64) (Model, error) {
	switch family {
	case FamilyKNN:
		m := NewKNN(p.Neighbors)
		m.Classes = classes
		return m, nil
	case FamilyLasso:
		m := NewLasso(p.Alpha)
		m.Classes = classes
		return m, nil
	case FamilyGBT:
		m := NewGBT(p.LearningRate, p.Trees, p.FeatureSample, seed)
		m.Classes = classes
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model family %q", family)
	}
}

// softmaxRow exponentiates a logit row in place, numerically stable.
func softmaxRow(row []float64) {
	max := row[0]
	for _, v := range row[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range row {
		row[i] = math.Exp(v - max)
		sum += row[i]
	}
	for i := range row {
		row[i] /= sum
	}
}

func argmaxRow(row []float64) int {
	best := 0
	for i, v := range row {
		if v > row[best] {
			best = i
		}
	}
	return best
}

// probaToClasses maps each probability row to its argmax class.
func probaToClasses(P *mat.Dense) []int {
	n, _ := P.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = argmaxRow(P.RawRowView(i))
	}
	return out
}

// resolveClasses validates labels against a declared class count, inferring
// the count from the labels when none was declared.
func resolveClasses(declared int, y []int) (int, error) {
	if len(y) == 0 {
		return 0, fmt.Errorf("fit with no labels")
	}
	max := 0
	for _, v := range y {
		if v < 0 {
			return 0, fmt.Errorf("negative label %d", v)
		}
		if v > max {
			max = v
		}
	}
	if declared <= 0 {
		return max + 1, nil
	}
	if max >= declared {
		return 0, fmt.Errorf("label %d out of range for %d classes", max, declared)
	}
	return declared, nil
}
