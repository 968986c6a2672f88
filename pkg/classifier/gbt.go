package classifier

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// GBT is a multiclass gradient-boosted trees classifier. Each boosting round
// fits one depth-limited regression tree per class on the softmax residuals,
// sampling FeatureSample candidate features at every split.
type GBT struct {
	LearningRate  float64   `json:"learning_rate"`
	Trees         int       `json:"trees"`
	FeatureSample int       `json:"feature_sample"`
	MaxDepth      int       `json:"max_depth"`
	MinSplit      int       `json:"min_split"`
	Seed          int64     `json:"seed"`
	Classes       int       `json:"classes"`
	Base          []float64 `json:"base"`
	Rounds        [][]Tree  `json:"rounds"`
}

// Tree is a regression tree stored as a flat node array rooted at index 0.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

// TreeNode is either an internal split or a leaf carrying a value.
type TreeNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Leaf      bool    `json:"leaf"`
}

// Eval walks the tree for one feature row.
func (t *Tree) Eval(row []float64) float64 {
	i := 0
	for {
		node := t.Nodes[i]
		if node.Leaf {
			return node.Value
		}
		if row[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// NewGBT returns an unfitted booster. trees is the number of boosting rounds
// and featureSample the number of candidate features considered per split
// (0 means all).
func NewGBT(learningRate float64, trees, featureSample int, seed int64) *GBT {
	if learningRate <= 0 {
		learningRate = 0.1
	}
	if trees <= 0 {
		trees = 100
	}
	return &GBT{
		LearningRate:  learningRate,
		Trees:         trees,
		FeatureSample: featureSample,
		MaxDepth:      3,
		MinSplit:      2,
		Seed:          seed,
	}
}

func (m *GBT) Name() string { return FamilyGBT }

// Fit boosts from smoothed log priors.
func (m *GBT) Fit(X *mat.Dense, y []int) error {
	n, _ := X.Dims()
	if n != len(y) {
		return fmt.Errorf("rows %d != labels %d", n, len(y))
	}
	classes, err := resolveClasses(m.Classes, y)
	if err != nil {
		return err
	}
	m.Classes = classes

	counts := make([]float64, classes)
	for _, c := range y {
		counts[c]++
	}
	base := make([]float64, classes)
	for c := range base {
		base[c] = math.Log((counts[c] + 1) / (float64(n) + float64(classes)))
	}

	F := make([][]float64, n)
	for i := range F {
		F[i] = append([]float64(nil), base...)
	}

	rng := rand.New(rand.NewSource(m.Seed))
	builder := &treeBuilder{
		X:             X,
		maxDepth:      m.MaxDepth,
		minSplit:      m.MinSplit,
		featureSample: m.FeatureSample,
		classes:       classes,
		rng:           rng,
	}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	probs := make([]float64, classes)
	residual := make([]float64, n)

	m.Rounds = make([][]Tree, 0, m.Trees)
	for round := 0; round < m.Trees; round++ {
		P := make([][]float64, n)
		for i := 0; i < n; i++ {
			copy(probs, F[i])
			softmaxRow(probs)
			P[i] = append([]float64(nil), probs...)
		}

		trees := make([]Tree, classes)
		for c := 0; c < classes; c++ {
			for i := 0; i < n; i++ {
				target := 0.0
				if y[i] == c {
					target = 1
				}
				residual[i] = target - P[i][c]
			}
			builder.target = residual
			builder.nodes = nil
			builder.build(append([]int(nil), all...), 0)
			trees[c] = Tree{Nodes: builder.nodes}

			for i := 0; i < n; i++ {
				F[i][c] += m.LearningRate * trees[c].Eval(X.RawRowView(i))
			}
		}
		m.Rounds = append(m.Rounds, trees)
	}

	m.Base = base
	return nil
}

func (m *GBT) PredictProba(X *mat.Dense) (*mat.Dense, error) {
	if m.Base == nil {
		return nil, fmt.Errorf("gbt is not fitted")
	}
	n, _ := X.Dims()
	P := mat.NewDense(n, m.Classes, nil)
	for i := 0; i < n; i++ {
		row := X.RawRowView(i)
		logits := append([]float64(nil), m.Base...)
		for _, trees := range m.Rounds {
			for c := range trees {
				logits[c] += m.LearningRate * trees[c].Eval(row)
			}
		}
		softmaxRow(logits)
		P.SetRow(i, logits)
	}
	return P, nil
}

func (m *GBT) Predict(X *mat.Dense) ([]int, error) {
	P, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return probaToClasses(P), nil
}

// treeBuilder grows one regression tree on the current residuals.
type treeBuilder struct {
	X             *mat.Dense
	target        []float64
	maxDepth      int
	minSplit      int
	featureSample int
	classes       int
	rng           *rand.Rand
	nodes         []TreeNode
}

// build returns the index of the subtree root for idx.
func (b *treeBuilder) build(idx []int, depth int) int {
	if depth >= b.maxDepth || len(idx) < b.minSplit || b.pure(idx) {
		return b.leaf(idx)
	}
	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(idx)
	}

	var left, right []int
	for _, i := range idx {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return b.leaf(idx)
	}

	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{})
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

// leaf computes the Newton-step value for multiclass deviance.
func (b *treeBuilder) leaf(idx []int) int {
	var num, den float64
	for _, i := range idx {
		r := b.target[i]
		num += r
		den += math.Abs(r) * (1 - math.Abs(r))
	}
	var value float64
	if den > 1e-12 {
		value = (float64(b.classes-1) / float64(b.classes)) * num / den
	}
	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Value: value, Leaf: true})
	return self
}

func (b *treeBuilder) pure(idx []int) bool {
	first := b.target[idx[0]]
	for _, i := range idx[1:] {
		if math.Abs(b.target[i]-first) > 1e-12 {
			return false
		}
	}
	return true
}

// bestSplit scans sampled candidate features for the split with the largest
// squared-error reduction.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	_, d := b.X.Dims()
	features := b.sampleFeatures(d)

	var sum, sumSq float64
	for _, i := range idx {
		sum += b.target[i]
		sumSq += b.target[i] * b.target[i]
	}
	parentSSE := sumSq - sum*sum/float64(len(idx))

	type pair struct {
		value  float64
		target float64
	}
	bestGain := 1e-12
	bestFeature := -1
	var bestThreshold float64

	pairs := make([]pair, 0, len(idx))
	for _, f := range features {
		pairs = pairs[:0]
		for _, i := range idx {
			pairs = append(pairs, pair{b.X.At(i, f), b.target[i]})
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].value < pairs[c].value })

		var leftSum, leftSq float64
		for p := 0; p < len(pairs)-1; p++ {
			leftSum += pairs[p].target
			leftSq += pairs[p].target * pairs[p].target
			if pairs[p].value == pairs[p+1].value {
				continue
			}
			nl := float64(p + 1)
			nr := float64(len(pairs) - p - 1)
			rightSum := sum - leftSum
			rightSq := sumSq - leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (pairs[p].value + pairs[p+1].value) / 2
			}
		}
	}
	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

// sampleFeatures picks the candidate features for one split in sorted order.
func (b *treeBuilder) sampleFeatures(d int) []int {
	if b.featureSample <= 0 || b.featureSample >= d {
		out := make([]int, d)
		for i := range out {
			out[i] = i
		}
		return out
	}
	perm := b.rng.Perm(d)[:b.featureSample]
	sort.Ints(perm)
	return perm
}
