package classifier

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func meanCrossEntropy(t *testing.T, m Model, X *mat.Dense, y []int) float64 {
	t.Helper()
	P, err := m.PredictProba(X)
	if err != nil {
		t.Fatalf("proba: %v", err)
	}
	var loss float64
	for i, c := range y {
		p := P.At(i, c)
		if p < 1e-12 {
			p = 1e-12
		}
		loss -= math.Log(p)
	}
	return loss / float64(len(y))
}

func TestLassoSeparates(t *testing.T) {
	X, y := angularBlobs()
	m := NewLasso(1e-4)
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	pred, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if acc := accuracyOf(pred, y); acc < 0.9 {
		t.Errorf("train accuracy = %v, want >= 0.9", acc)
	}
	P, err := m.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	checkProbaRows(t, P)

	if loss := meanCrossEntropy(t, m, X, y); loss >= math.Log(3) {
		t.Errorf("train loss %v did not improve on uniform %v", loss, math.Log(3))
	}
}

func TestLassoPenaltyZeroesWeights(t *testing.T) {
	X, y := angularBlobs()

	heavy := NewLasso(1.0)
	if err := heavy.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if got := heavy.Sparsity(); got != 1 {
		t.Errorf("huge penalty sparsity = %v, want all zeros", got)
	}

	light := NewLasso(1e-6)
	if err := light.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if heavy.Sparsity() < light.Sparsity() {
		t.Error("stronger penalty must not be less sparse")
	}
}

func TestLassoDeterministic(t *testing.T) {
	X, y := angularBlobs()
	a := NewLasso(1e-3)
	b := NewLasso(1e-3)
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.W, b.W) || !reflect.DeepEqual(a.B, b.B) {
		t.Error("identical fits must produce identical weights")
	}
}

func TestLassoSoftThreshold(t *testing.T) {
	cases := []struct{ w, t, want float64 }{
		{2, 0.5, 1.5},
		{-2, 0.5, -1.5},
		{0.3, 0.5, 0},
		{-0.3, 0.5, 0},
		{0, 0.5, 0},
	}
	for _, c := range cases {
		if got := softThreshold(c.w, c.t); got != c.want {
			t.Errorf("softThreshold(%v, %v) = %v, want %v", c.w, c.t, got, c.want)
		}
	}
}

func TestLassoRoundTrip(t *testing.T) {
	X, y := angularBlobs()
	m := NewLasso(1e-4)
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	blob, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var back Lasso
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatal(err)
	}
	p1, _ := m.Predict(X)
	p2, err := back.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Error("reloaded model predicts differently")
	}
}

func TestLassoUnfitted(t *testing.T) {
	X, _ := angularBlobs()
	if _, err := NewLasso(0.1).PredictProba(X); err == nil {
		t.Fatal("unfitted predict must error")
	}
}
