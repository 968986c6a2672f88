package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ilnaes/github-analysis/pkg/dataset"
)

// Stacking combines the tuned members' class probabilities with a ridge
// softmax meta-model. Meta-features come from out-of-fold member predictions
// so the meta-model never sees a member's training leakage.
type Stacking struct {
	Folds   int         `json:"folds"`
	Seed    int64       `json:"seed"`
	L2      float64     `json:"l2"`
	LR      float64     `json:"lr"`
	Iters   int         `json:"iters"`
	Classes int         `json:"classes"`
	Members []*Pipeline `json:"members"`
	MetaW   [][]float64 `json:"meta_w"`
	MetaB   []float64   `json:"meta_b"`
}

// NewStacking builds an unfitted ensemble over the given member pipelines.
func NewStacking(members []*Pipeline, folds int, seed int64) *Stacking {
	if folds < 2 {
		folds = 5
	}
	return &Stacking{
		Folds:   folds,
		Seed:    seed,
		L2:      1e-3,
		LR:      0.5,
		Iters:   300,
		Members: members,
	}
}

func (s *Stacking) Name() string { return FamilyStacking }

// Fit trains the meta-model on out-of-fold member probabilities, then refits
// every member on the full corpus.
func (s *Stacking) Fit(corpus []string, y []int) error {
	if len(s.Members) == 0 {
		return fmt.Errorf("stacking needs at least one member")
	}
	n := len(corpus)
	if n != len(y) {
		return fmt.Errorf("rows %d != labels %d", n, len(y))
	}
	classes, err := resolveClasses(s.Members[0].Classes, y)
	if err != nil {
		return err
	}
	s.Classes = classes

	width := len(s.Members) * classes
	Z := mat.NewDense(n, width, nil)
	folds := dataset.StratifiedKFold(y, s.Folds, s.Seed)
	for _, val := range folds {
		if len(val) == 0 {
			continue
		}
		trainIdx := dataset.Complement(n, val)
		trainTexts := dataset.SubsetStrings(corpus, trainIdx)
		trainY := dataset.SubsetLabels(y, trainIdx)
		valTexts := dataset.SubsetStrings(corpus, val)

		for mi, member := range s.Members {
			fold, err := member.fresh()
			if err != nil {
				return err
			}
			if err := fold.Fit(trainTexts, trainY); err != nil {
				return fmt.Errorf("stacking fold member %s: %w", member.Family, err)
			}
			P, err := fold.Proba(valTexts)
			if err != nil {
				return fmt.Errorf("stacking fold member %s: %w", member.Family, err)
			}
			for vi, row := range val {
				for c := 0; c < classes; c++ {
					Z.Set(row, mi*classes+c, P.At(vi, c))
				}
			}
		}
	}

	s.trainMeta(Z, y)

	for _, member := range s.Members {
		if err := member.Fit(corpus, y); err != nil {
			return fmt.Errorf("stacking refit member %s: %w", member.Family, err)
		}
	}
	return nil
}

// trainMeta runs full-batch gradient descent on softmax cross-entropy with an
// L2 penalty. Zero initialization keeps it deterministic.
func (s *Stacking) trainMeta(Z *mat.Dense, y []int) {
	n, d := Z.Dims()
	W := make([][]float64, s.Classes)
	for c := range W {
		W[c] = make([]float64, d)
	}
	B := make([]float64, s.Classes)

	grad := make([][]float64, s.Classes)
	for c := range grad {
		grad[c] = make([]float64, d)
	}
	gradB := make([]float64, s.Classes)
	logits := make([]float64, s.Classes)

	for it := 0; it < s.Iters; it++ {
		for c := range grad {
			for j := range grad[c] {
				grad[c][j] = 0
			}
			gradB[c] = 0
		}
		for i := 0; i < n; i++ {
			row := Z.RawRowView(i)
			for c := 0; c < s.Classes; c++ {
				logits[c] = floats.Dot(W[c], row) + B[c]
			}
			softmaxRow(logits)
			logits[y[i]]--
			for c := 0; c < s.Classes; c++ {
				if logits[c] != 0 {
					floats.AddScaled(grad[c], logits[c], row)
					gradB[c] += logits[c]
				}
			}
		}
		step := s.LR / float64(n)
		for c := 0; c < s.Classes; c++ {
			for j := 0; j < d; j++ {
				W[c][j] -= step*grad[c][j] + s.LR*s.L2*W[c][j]
			}
			B[c] -= step * gradB[c]
		}
	}

	s.MetaW = W
	s.MetaB = B
}

// Proba returns ensemble class probabilities for texts.
func (s *Stacking) Proba(texts []string) (*mat.Dense, error) {
	if s.MetaW == nil {
		return nil, fmt.Errorf("stacking is not fitted")
	}
	n := len(texts)
	Z := mat.NewDense(n, len(s.Members)*s.Classes, nil)
	for mi, member := range s.Members {
		P, err := member.Proba(texts)
		if err != nil {
			return nil, fmt.Errorf("stacking member %s: %w", member.Family, err)
		}
		for i := 0; i < n; i++ {
			for c := 0; c < s.Classes; c++ {
				Z.Set(i, mi*s.Classes+c, P.At(i, c))
			}
		}
	}

	out := mat.NewDense(n, s.Classes, nil)
	for i := 0; i < n; i++ {
		row := Z.RawRowView(i)
		logits := make([]float64, s.Classes)
		for c := 0; c < s.Classes; c++ {
			logits[c] = floats.Dot(s.MetaW[c], row) + s.MetaB[c]
		}
		softmaxRow(logits)
		out.SetRow(i, logits)
	}
	return out, nil
}

// Predict returns the predicted class per text.
func (s *Stacking) Predict(texts []string) ([]int, error) {
	P, err := s.Proba(texts)
	if err != nil {
		return nil, err
	}
	return probaToClasses(P), nil
}

// PredictText classifies a single description.
func (s *Stacking) PredictText(text string) (int, []float64, error) {
	P, err := s.Proba([]string{text})
	if err != nil {
		return 0, nil, err
	}
	row := append([]float64(nil), P.RawRowView(0)...)
	return argmaxRow(row), row, nil
}
