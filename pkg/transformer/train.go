package transformer

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// list returns every parameter tensor in a fixed order shared with gradSet
// and the optimizer state.
func (m *Model) list() []*mat.Dense {
	return []*mat.Dense{
		m.TokEmb, m.PosEmb,
		m.LN1G, m.LN1B,
		m.Wq, m.Wk, m.Wv, m.Wo,
		m.LN2G, m.LN2B,
		m.W1, m.B1, m.W2, m.B2,
		m.Wc, m.Bc,
	}
}

// gradSet accumulates gradients with the same shapes as the model tensors.
type gradSet struct {
	tensors []*mat.Dense
}

func newGradSet(m *Model) *gradSet {
	params := m.list()
	g := &gradSet{tensors: make([]*mat.Dense, len(params))}
	for i, p := range params {
		r, c := p.Dims()
		g.tensors[i] = mat.NewDense(r, c, nil)
	}
	return g
}

func (g *gradSet) zero() {
	for _, t := range g.tensors {
		data := t.RawMatrix().Data
		for i := range data {
			data[i] = 0
		}
	}
}

func (g *gradSet) scale(f float64) {
	for _, t := range g.tensors {
		data := t.RawMatrix().Data
		for i := range data {
			data[i] *= f
		}
	}
}

// Fixed tensor positions inside list().
const (
	idxTokEmb = iota
	idxPosEmb
	idxLN1G
	idxLN1B
	idxWq
	idxWk
	idxWv
	idxWo
	idxLN2G
	idxLN2B
	idxW1
	idxB1
	idxW2
	idxB2
	idxWc
	idxBc
)

// backward accumulates one sequence's gradients into g.
func (m *Model) backward(c *seqCache, y int, g *gradSet) {
	L := len(c.ids)
	d := m.Cfg.Dim

	// Classifier head.
	dlogits := append([]float64(nil), c.probs...)
	dlogits[y]--
	gWc := g.tensors[idxWc]
	gBc := g.tensors[idxBc].RawRowView(0)
	dpool := make([]float64, d)
	for j := 0; j < d; j++ {
		wcRow := m.Wc.RawRowView(j)
		gRow := gWc.RawRowView(j)
		for k, dl := range dlogits {
			gRow[k] += c.pool[j] * dl
			dpool[j] += wcRow[k] * dl
		}
	}
	for k, dl := range dlogits {
		gBc[k] += dl
	}

	// Mean pool spreads the gradient evenly over positions.
	dX2 := mat.NewDense(L, d, nil)
	for t := 0; t < L; t++ {
		row := dX2.RawRowView(t)
		for j := 0; j < d; j++ {
			row[j] = dpool[j] / float64(L)
		}
	}

	// FFN block with residual.
	dX1 := &mat.Dense{}
	dX1.CloneFrom(dX2)

	var tmp mat.Dense
	tmp.Mul(c.H.T(), dX2)
	g.tensors[idxW2].Add(g.tensors[idxW2], &tmp)
	addColSums(g.tensors[idxB2], dX2)

	dH := &mat.Dense{}
	dH.Mul(dX2, m.W2.T())
	dHpre := dH
	for t := 0; t < L; t++ {
		hRow := c.Hpre.RawRowView(t)
		dRow := dHpre.RawRowView(t)
		for j := range dRow {
			if hRow[j] <= 0 {
				dRow[j] = 0
			}
		}
	}

	var tmpW1 mat.Dense
	tmpW1.Mul(c.Xn2.T(), dHpre)
	g.tensors[idxW1].Add(g.tensors[idxW1], &tmpW1)
	addColSums(g.tensors[idxB1], dHpre)

	dXn2 := &mat.Dense{}
	dXn2.Mul(dHpre, m.W1.T())
	dFromLN2 := layerNormBackward(dXn2, c.xhat2, c.inv2, m.LN2G, g.tensors[idxLN2G], g.tensors[idxLN2B])
	dX1.Add(dX1, dFromLN2)

	// Attention block with residual.
	dX0 := &mat.Dense{}
	dX0.CloneFrom(dX1)

	var tmpWo mat.Dense
	tmpWo.Mul(c.Attn.T(), dX1)
	g.tensors[idxWo].Add(g.tensors[idxWo], &tmpWo)

	dAttn := &mat.Dense{}
	dAttn.Mul(dX1, m.Wo.T())

	dA := &mat.Dense{}
	dA.Mul(dAttn, c.V.T())
	dV := &mat.Dense{}
	dV.Mul(c.A.T(), dAttn)

	// Softmax rows: ds = a ⊙ (da − <da, a>).
	for t := 0; t < L; t++ {
		aRow := c.A.RawRowView(t)
		daRow := dA.RawRowView(t)
		var dot float64
		for i := range aRow {
			dot += daRow[i] * aRow[i]
		}
		for i := range aRow {
			daRow[i] = aRow[i] * (daRow[i] - dot)
		}
	}
	scale := 1 / math.Sqrt(float64(d))

	dQ := &mat.Dense{}
	dQ.Mul(dA, c.K)
	dQ.Scale(scale, dQ)
	dK := &mat.Dense{}
	dK.Mul(dA.T(), c.Q)
	dK.Scale(scale, dK)

	var tmpP mat.Dense
	tmpP.Mul(c.Xn1.T(), dQ)
	g.tensors[idxWq].Add(g.tensors[idxWq], &tmpP)
	tmpP.Reset()
	tmpP.Mul(c.Xn1.T(), dK)
	g.tensors[idxWk].Add(g.tensors[idxWk], &tmpP)
	tmpP.Reset()
	tmpP.Mul(c.Xn1.T(), dV)
	g.tensors[idxWv].Add(g.tensors[idxWv], &tmpP)

	dXn1 := &mat.Dense{}
	dXn1.Mul(dQ, m.Wq.T())
	var part mat.Dense
	part.Mul(dK, m.Wk.T())
	dXn1.Add(dXn1, &part)
	part.Reset()
	part.Mul(dV, m.Wv.T())
	dXn1.Add(dXn1, &part)

	dFromLN1 := layerNormBackward(dXn1, c.xhat1, c.inv1, m.LN1G, g.tensors[idxLN1G], g.tensors[idxLN1B])
	dX0.Add(dX0, dFromLN1)

	// Embedding tables.
	gTok := g.tensors[idxTokEmb]
	gPos := g.tensors[idxPosEmb]
	for t, id := range c.ids {
		src := dX0.RawRowView(t)
		tokRow := gTok.RawRowView(id)
		posRow := gPos.RawRowView(t)
		for j := range src {
			tokRow[j] += src[j]
			posRow[j] += src[j]
		}
	}
}

// layerNormBackward accumulates the scale and shift gradients and returns
// the gradient with respect to the normalized input.
func layerNormBackward(dOut, xhat *mat.Dense, inv []float64, gamma, gGamma, gBeta *mat.Dense) *mat.Dense {
	L, d := dOut.Dims()
	dX := mat.NewDense(L, d, nil)
	g := gamma.RawRowView(0)
	gg := gGamma.RawRowView(0)
	gb := gBeta.RawRowView(0)
	dxhat := make([]float64, d)
	for t := 0; t < L; t++ {
		doRow := dOut.RawRowView(t)
		xRow := xhat.RawRowView(t)
		var m1, m2 float64
		for j := 0; j < d; j++ {
			gg[j] += doRow[j] * xRow[j]
			gb[j] += doRow[j]
			dxhat[j] = doRow[j] * g[j]
			m1 += dxhat[j]
			m2 += dxhat[j] * xRow[j]
		}
		m1 /= float64(d)
		m2 /= float64(d)
		dRow := dX.RawRowView(t)
		for j := 0; j < d; j++ {
			dRow[j] = inv[t] * (dxhat[j] - m1 - xRow[j]*m2)
		}
	}
	return dX
}

func addColSums(dst, src *mat.Dense) {
	L, _ := src.Dims()
	out := dst.RawRowView(0)
	for t := 0; t < L; t++ {
		row := src.RawRowView(t)
		for j := range row {
			out[j] += row[j]
		}
	}
}

// adam is a plain Adam optimizer over the ordered tensor list.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
	m     []*mat.Dense
	v     []*mat.Dense
}

func newAdam(lr float64, params []*mat.Dense) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, p := range params {
		r, c := p.Dims()
		a.m = append(a.m, mat.NewDense(r, c, nil))
		a.v = append(a.v, mat.NewDense(r, c, nil))
	}
	return a
}

func (a *adam) step(params []*mat.Dense, grads []*mat.Dense) {
	a.t++
	bc1 := 1 - math.Pow(a.beta1, float64(a.t))
	bc2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		md := a.m[i].RawMatrix().Data
		vd := a.v[i].RawMatrix().Data
		for j := range pd {
			md[j] = a.beta1*md[j] + (1-a.beta1)*gd[j]
			vd[j] = a.beta2*vd[j] + (1-a.beta2)*gd[j]*gd[j]
			pd[j] -= a.lr * (md[j] / bc1) / (math.Sqrt(vd[j]/bc2) + a.eps)
		}
	}
}

// Train runs the seeded minibatch loop. progress, when set, receives the
// per-epoch mean training loss and validation accuracy (NaN without a
// validation set).
func (m *Model) Train(texts []string, y []int, valTexts []string, valY []int, progress func(epoch int, trainLoss, valAcc float64)) error {
	n := len(texts)
	if n == 0 {
		return fmt.Errorf("train on empty corpus")
	}
	if n != len(y) {
		return fmt.Errorf("texts %d != labels %d", n, len(y))
	}
	for _, label := range y {
		if label < 0 || label >= m.Cfg.Classes {
			return fmt.Errorf("label %d out of range for %d classes", label, m.Cfg.Classes)
		}
	}

	seqs := make([][]int, n)
	for i, text := range texts {
		seqs[i] = m.encode(text)
	}

	rng := rand.New(rand.NewSource(m.Cfg.Seed))
	opt := newAdam(m.Cfg.LR, m.list())
	grads := newGradSet(m)

	for epoch := 1; epoch <= m.Cfg.Epochs; epoch++ {
		order := rng.Perm(n)
		var total float64
		for start := 0; start < n; start += m.Cfg.Batch {
			end := min(start+m.Cfg.Batch, n)
			grads.zero()
			for _, i := range order[start:end] {
				c := m.forward(seqs[i])
				total += -math.Log(math.Max(c.probs[y[i]], 1e-12))
				m.backward(c, y[i], grads)
			}
			grads.scale(1 / float64(end-start))
			opt.step(m.list(), grads.tensors)
		}

		valAcc := math.NaN()
		if len(valTexts) > 0 {
			pred, err := m.Predict(valTexts)
			if err != nil {
				return err
			}
			var hits int
			for i := range pred {
				if pred[i] == valY[i] {
					hits++
				}
			}
			valAcc = float64(hits) / float64(len(pred))
		}
		if progress != nil {
			progress(epoch, total/float64(n), valAcc)
		}
	}
	return nil
}
