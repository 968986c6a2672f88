// Package transformer implements a small self-attention text classifier
// trained from scratch: token and position embeddings feed one pre-norm
// attention block, the outputs are mean-pooled and classified with a linear
// softmax head.
package transformer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ilnaes/github-analysis/pkg/textprep"
)

// Reserved vocabulary ids.
const (
	padID = 0
	unkID = 1
)

// Config carries the model shape and training hyperparameters. It persists
// as config.json next to the weights.
type Config struct {
	MaxVocab int      `json:"max_vocab"`
	Dim      int      `json:"dim"`
	FFN      int      `json:"ffn"`
	MaxLen   int      `json:"max_len"`
	Classes  int      `json:"classes"`
	Labels   []string `json:"labels,omitempty"`
	Seed     int64    `json:"seed"`
	Epochs   int      `json:"epochs"`
	Batch    int      `json:"batch"`
	LR       float64  `json:"lr"`
}

func (c *Config) applyDefaults() {
	if c.MaxVocab <= 0 {
		c.MaxVocab = 2000
	}
	if c.Dim <= 0 {
		c.Dim = 64
	}
	if c.FFN <= 0 {
		c.FFN = 128
	}
	if c.MaxLen <= 0 {
		c.MaxLen = 32
	}
	if c.Epochs <= 0 {
		c.Epochs = 10
	}
	if c.Batch <= 0 {
		c.Batch = 32
	}
	if c.LR <= 0 {
		c.LR = 1e-3
	}
	if c.Classes <= 0 {
		c.Classes = len(c.Labels)
	}
}

// Model is the full parameter set plus the fitted vocabulary.
type Model struct {
	Cfg   Config
	Vocab map[string]int

	TokEmb *mat.Dense // vocab rows × dim
	PosEmb *mat.Dense // maxLen × dim
	LN1G   *mat.Dense // 1 × dim
	LN1B   *mat.Dense
	Wq     *mat.Dense // dim × dim
	Wk     *mat.Dense
	Wv     *mat.Dense
	Wo     *mat.Dense
	LN2G   *mat.Dense
	LN2B   *mat.Dense
	W1     *mat.Dense // dim × ffn
	B1     *mat.Dense // 1 × ffn
	W2     *mat.Dense // ffn × dim
	B2     *mat.Dense // 1 × dim
	Wc     *mat.Dense // dim × classes
	Bc     *mat.Dense // 1 × classes
}

// NewModel builds the vocabulary from the corpus and initializes weights
// from the config seed.
func NewModel(cfg Config, corpus []string) (*Model, error) {
	cfg.applyDefaults()
	if cfg.Classes <= 0 {
		return nil, fmt.Errorf("transformer needs a class count")
	}
	vocab := buildVocab(corpus, cfg.MaxVocab-2)
	if len(vocab) == 0 {
		return nil, fmt.Errorf("corpus produced no vocabulary")
	}
	m := &Model{Cfg: cfg, Vocab: vocab}
	m.initWeights()
	return m, nil
}

func (m *Model) vocabRows() int { return len(m.Vocab) + 2 }

func (m *Model) initWeights() {
	rng := rand.New(rand.NewSource(m.Cfg.Seed))
	d, f, c := m.Cfg.Dim, m.Cfg.FFN, m.Cfg.Classes

	m.TokEmb = randDense(rng, m.vocabRows(), d)
	m.PosEmb = randDense(rng, m.Cfg.MaxLen, d)
	m.LN1G = onesDense(1, d)
	m.LN1B = mat.NewDense(1, d, nil)
	m.Wq = randDense(rng, d, d)
	m.Wk = randDense(rng, d, d)
	m.Wv = randDense(rng, d, d)
	m.Wo = randDense(rng, d, d)
	m.LN2G = onesDense(1, d)
	m.LN2B = mat.NewDense(1, d, nil)
	m.W1 = randDense(rng, d, f)
	m.B1 = mat.NewDense(1, f, nil)
	m.W2 = randDense(rng, f, d)
	m.B2 = mat.NewDense(1, d, nil)
	m.Wc = randDense(rng, d, c)
	m.Bc = mat.NewDense(1, c, nil)
}

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64() * 0.02
	}
	return mat.NewDense(r, c, data)
}

func onesDense(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = 1
	}
	return mat.NewDense(r, c, data)
}

// buildVocab keeps the most frequent corpus tokens, ties broken
// lexicographically, leaving room for the reserved ids.
func buildVocab(corpus []string, limit int) map[string]int {
	freq := map[string]int{}
	for _, text := range corpus {
		for _, tok := range textprep.Tokenize(text) {
			freq[tok]++
		}
	}
	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	vocab := make(map[string]int, len(terms))
	for i, term := range terms {
		vocab[term] = i + 2
	}
	return vocab
}

// encode turns a description into clipped token ids, unknown tokens mapping
// to the reserved unk id. Empty descriptions become a single unk token.
func (m *Model) encode(text string) []int {
	toks := textprep.Tokenize(text)
	ids := make([]int, 0, len(toks))
	for _, tok := range toks {
		if len(ids) == m.Cfg.MaxLen {
			break
		}
		if id, ok := m.Vocab[tok]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, unkID)
		}
	}
	if len(ids) == 0 {
		ids = append(ids, unkID)
	}
	return ids
}

// seqCache stashes every forward activation one backward pass needs.
type seqCache struct {
	ids   []int
	X0    *mat.Dense
	xhat1 *mat.Dense
	inv1  []float64
	Xn1   *mat.Dense
	Q     *mat.Dense
	K     *mat.Dense
	V     *mat.Dense
	A     *mat.Dense
	Attn  *mat.Dense
	X1    *mat.Dense
	xhat2 *mat.Dense
	inv2  []float64
	Xn2   *mat.Dense
	Hpre  *mat.Dense
	H     *mat.Dense
	X2    *mat.Dense
	pool  []float64
	probs []float64
}

// forward runs one sequence through the block and returns class
// probabilities with the caches filled in.
func (m *Model) forward(ids []int) *seqCache {
	d := m.Cfg.Dim
	L := len(ids)
	c := &seqCache{ids: ids}

	c.X0 = mat.NewDense(L, d, nil)
	for t, id := range ids {
		row := c.X0.RawRowView(t)
		copy(row, m.TokEmb.RawRowView(id))
		pos := m.PosEmb.RawRowView(t)
		for j := range row {
			row[j] += pos[j]
		}
	}

	c.xhat1, c.inv1, c.Xn1 = layerNorm(c.X0, m.LN1G, m.LN1B)

	c.Q = &mat.Dense{}
	c.Q.Mul(c.Xn1, m.Wq)
	c.K = &mat.Dense{}
	c.K.Mul(c.Xn1, m.Wk)
	c.V = &mat.Dense{}
	c.V.Mul(c.Xn1, m.Wv)

	c.A = &mat.Dense{}
	c.A.Mul(c.Q, c.K.T())
	c.A.Scale(1/math.Sqrt(float64(d)), c.A)
	for t := 0; t < L; t++ {
		softmaxInPlace(c.A.RawRowView(t))
	}

	c.Attn = &mat.Dense{}
	c.Attn.Mul(c.A, c.V)
	var attnOut mat.Dense
	attnOut.Mul(c.Attn, m.Wo)

	c.X1 = &mat.Dense{}
	c.X1.Add(c.X0, &attnOut)

	c.xhat2, c.inv2, c.Xn2 = layerNorm(c.X1, m.LN2G, m.LN2B)

	c.Hpre = &mat.Dense{}
	c.Hpre.Mul(c.Xn2, m.W1)
	addRowVec(c.Hpre, m.B1)
	c.H = &mat.Dense{}
	c.H.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, c.Hpre)

	var ffnOut mat.Dense
	ffnOut.Mul(c.H, m.W2)
	addRowVec(&ffnOut, m.B2)

	c.X2 = &mat.Dense{}
	c.X2.Add(c.X1, &ffnOut)

	c.pool = make([]float64, d)
	for t := 0; t < L; t++ {
		row := c.X2.RawRowView(t)
		for j := range c.pool {
			c.pool[j] += row[j]
		}
	}
	for j := range c.pool {
		c.pool[j] /= float64(L)
	}

	c.probs = make([]float64, m.Cfg.Classes)
	for k := 0; k < m.Cfg.Classes; k++ {
		var sum float64
		for j := 0; j < d; j++ {
			sum += m.Wc.At(j, k) * c.pool[j]
		}
		c.probs[k] = sum + m.Bc.At(0, k)
	}
	softmaxInPlace(c.probs)
	return c
}

// layerNorm normalizes each row, returning the pre-scale normalized rows,
// the per-row inverse standard deviations and the scaled output.
func layerNorm(X, gamma, beta *mat.Dense) (*mat.Dense, []float64, *mat.Dense) {
	const eps = 1e-5
	L, d := X.Dims()
	xhat := mat.NewDense(L, d, nil)
	out := mat.NewDense(L, d, nil)
	inv := make([]float64, L)
	g := gamma.RawRowView(0)
	b := beta.RawRowView(0)
	for t := 0; t < L; t++ {
		row := X.RawRowView(t)
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(d)
		var variance float64
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float64(d)
		inv[t] = 1 / math.Sqrt(variance+eps)
		xr := xhat.RawRowView(t)
		or := out.RawRowView(t)
		for j, v := range row {
			xr[j] = (v - mean) * inv[t]
			or[j] = g[j]*xr[j] + b[j]
		}
	}
	return xhat, inv, out
}

func addRowVec(X *mat.Dense, vec *mat.Dense) {
	L, _ := X.Dims()
	v := vec.RawRowView(0)
	for t := 0; t < L; t++ {
		row := X.RawRowView(t)
		for j := range row {
			row[j] += v[j]
		}
	}
}

func softmaxInPlace(row []float64) {
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

// PredictProba returns class probabilities per text.
func (m *Model) PredictProba(texts []string) (*mat.Dense, error) {
	if m.TokEmb == nil {
		return nil, fmt.Errorf("transformer is not initialized")
	}
	P := mat.NewDense(len(texts), m.Cfg.Classes, nil)
	for i, text := range texts {
		c := m.forward(m.encode(text))
		P.SetRow(i, c.probs)
	}
	return P, nil
}

// Predict returns the argmax class per text.
func (m *Model) Predict(texts []string) ([]int, error) {
	P, err := m.PredictProba(texts)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(texts))
	for i := range texts {
		row := P.RawRowView(i)
		best := 0
		for k, v := range row {
			if v > row[best] {
				best = k
			}
		}
		out[i] = best
	}
	return out, nil
}

// PredictText classifies a single description, returning the class id and
// probability row.
func (m *Model) PredictText(text string) (int, []float64, error) {
	P, err := m.PredictProba([]string{text})
	if err != nil {
		return 0, nil, err
	}
	row := append([]float64(nil), P.RawRowView(0)...)
	best := 0
	for k, v := range row {
		if v > row[best] {
			best = k
		}
	}
	return best, row, nil
}
