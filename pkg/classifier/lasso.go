package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Lasso is L1-penalized multinomial logistic regression. Training is
// full-batch proximal gradient descent with soft-thresholding, which is
// deterministic and drives irrelevant token weights to exact zeros.
type Lasso struct {
	Alpha   float64     `json:"alpha"`
	LR      float64     `json:"lr"`
	Iters   int         `json:"iters"`
	Classes int         `json:"classes"`
	W       [][]float64 `json:"w"`
	B       []float64   `json:"b"`
}

// NewLasso returns an unfitted model with penalty strength alpha.
func NewLasso(alpha float64) *Lasso {
	if alpha < 0 {
		alpha = 0
	}
	return &Lasso{Alpha: alpha, LR: 1.0, Iters: 300}
}

func (m *Lasso) Name() string { return FamilyLasso }

// Fit minimizes mean cross-entropy plus Alpha times the L1 norm of W.
func (m *Lasso) Fit(X *mat.Dense, y []int) error {
	n, d := X.Dims()
	if n != len(y) {
		return fmt.Errorf("rows %d != labels %d", n, len(y))
	}
	classes, err := resolveClasses(m.Classes, y)
	if err != nil {
		return err
	}
	m.Classes = classes

	W := make([][]float64, classes)
	for c := range W {
		W[c] = make([]float64, d)
	}
	B := make([]float64, classes)

	grad := make([][]float64, classes)
	for c := range grad {
		grad[c] = make([]float64, d)
	}
	gradB := make([]float64, classes)
	logits := make([]float64, classes)

	for it := 0; it < m.Iters; it++ {
		for c := range grad {
			for j := range grad[c] {
				grad[c][j] = 0
			}
			gradB[c] = 0
		}
		for i := 0; i < n; i++ {
			row := X.RawRowView(i)
			for c := 0; c < classes; c++ {
				logits[c] = floats.Dot(W[c], row) + B[c]
			}
			softmaxRow(logits)
			logits[y[i]]--
			for c := 0; c < classes; c++ {
				if logits[c] != 0 {
					floats.AddScaled(grad[c], logits[c], row)
					gradB[c] += logits[c]
				}
			}
		}

		step := m.LR / float64(n)
		shrink := m.LR * m.Alpha
		for c := 0; c < classes; c++ {
			for j := 0; j < d; j++ {
				W[c][j] = softThreshold(W[c][j]-step*grad[c][j], shrink)
			}
			B[c] -= step * gradB[c]
		}
	}

	m.W = W
	m.B = B
	return nil
}

func softThreshold(w, t float64) float64 {
	switch {
	case w > t:
		return w - t
	case w < -t:
		return w + t
	default:
		return 0
	}
}

func (m *Lasso) PredictProba(X *mat.Dense) (*mat.Dense, error) {
	if m.W == nil {
		return nil, fmt.Errorf("lasso is not fitted")
	}
	n, d := X.Dims()
	if d != len(m.W[0]) {
		return nil, fmt.Errorf("feature dim %d != fitted dim %d", d, len(m.W[0]))
	}
	P := mat.NewDense(n, m.Classes, nil)
	for i := 0; i < n; i++ {
		row := X.RawRowView(i)
		logits := make([]float64, m.Classes)
		for c := 0; c < m.Classes; c++ {
			logits[c] = floats.Dot(m.W[c], row) + m.B[c]
		}
		softmaxRow(logits)
		P.SetRow(i, logits)
	}
	return P, nil
}

func (m *Lasso) Predict(X *mat.Dense) ([]int, error) {
	P, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToClasses(P), nil
}

// Sparsity reports the fraction of exactly-zero weights, a quick check that
// the L1 penalty is biting.
func (m *Lasso) Sparsity() float64 {
	if m.W == nil {
		return 0
	}
	var zeros, total int
	for _, row := range m.W {
		for _, w := range row {
			if w == 0 {
				zeros++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(zeros) / float64(total)
}
