package classifier

import (
	"fmt"
	"math"
	"sort"

	"github.com/james-bowman/nlp/measures/pairwise"
	"gonum.org/v1/gonum/mat"
)

// KNN is a brute-force k-nearest-neighbors classifier. Votes are weighted by
// cosine similarity, so closer descriptions count for more.
type KNN struct {
	Neighbors int         `json:"neighbors"`
	Classes   int         `json:"classes"`
	TrainX    [][]float64 `json:"train_x"`
	TrainY    []int       `json:"train_y"`
}

// NewKNN returns an unfitted classifier voting over neighbors rows.
func NewKNN(neighbors int) *KNN {
	if neighbors <= 0 {
		neighbors = 5
	}
	return &KNN{Neighbors: neighbors}
}

func (m *KNN) Name() string { return FamilyKNN }

// Fit memorizes the training rows.
func (m *KNN) Fit(X *mat.Dense, y []int) error {
	n, d := X.Dims()
	if n != len(y) {
		return fmt.Errorf("rows %d != labels %d", n, len(y))
	}
	classes, err := resolveClasses(m.Classes, y)
	if err != nil {
		return err
	}
	m.Classes = classes
	m.TrainX = make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, d)
		copy(row, X.RawRowView(i))
		m.TrainX[i] = row
	}
	m.TrainY = append([]int(nil), y...)
	return nil
}

// PredictProba scans all training rows per query and normalizes the
// similarity-weighted votes of the top Neighbors. Similarity ties break on
// the lower training index so predictions are reproducible.
func (m *KNN) PredictProba(X *mat.Dense) (*mat.Dense, error) {
	if len(m.TrainX) == 0 {
		return nil, fmt.Errorf("knn is not fitted")
	}
	n, d := X.Dims()
	if d != len(m.TrainX[0]) {
		return nil, fmt.Errorf("feature dim %d != fitted dim %d", d, len(m.TrainX[0]))
	}
	k := m.Neighbors
	if k > len(m.TrainX) {
		k = len(m.TrainX)
	}

	type neighbor struct {
		idx int
		sim float64
	}
	P := mat.NewDense(n, m.Classes, nil)
	for i := 0; i < n; i++ {
		q := mat.NewVecDense(d, X.RawRowView(i))
		sims := make([]neighbor, len(m.TrainX))
		for j, row := range m.TrainX {
			s := pairwise.CosineSimilarity(q, mat.NewVecDense(d, row))
			if math.IsNaN(s) || s < 0 {
				s = 0
			}
			sims[j] = neighbor{idx: j, sim: s}
		}
		sort.Slice(sims, func(a, b int) bool {
			if sims[a].sim != sims[b].sim {
				return sims[a].sim > sims[b].sim
			}
			return sims[a].idx < sims[b].idx
		})

		votes := make([]float64, m.Classes)
		var total float64
		for _, nb := range sims[:k] {
			votes[m.TrainY[nb.idx]] += nb.sim
			total += nb.sim
		}
		if total == 0 {
			for c := range votes {
				votes[c] = 1 / float64(m.Classes)
			}
		} else {
			for c := range votes {
				votes[c] /= total
			}
		}
		P.SetRow(i, votes)
	}
	return P, nil
}

func (m *KNN) Predict(X *mat.Dense) ([]int, error) {
	P, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToClasses(P), nil
}
