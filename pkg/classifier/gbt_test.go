package classifier

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestGBTFitsXOR(t *testing.T) {
	X, y := xorData()
	m := NewGBT(0.3, 30, 0, 1)
	if err := m.Fit(X, y); err != nil {
		t.Fatalf("fit: %v", err)
	}
	pred, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if acc := accuracyOf(pred, y); acc < 0.95 {
		t.Errorf("train accuracy = %v, want >= 0.95 (xor is tree territory)", acc)
	}
	P, err := m.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	checkProbaRows(t, P)
}

func TestGBTSameSeedSamePredictions(t *testing.T) {
	X, y := xorData()
	a := NewGBT(0.3, 20, 1, 99)
	b := NewGBT(0.3, 20, 1, 99)
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pa, _ := a.Predict(X)
	pb, err := b.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pa, pb) {
		t.Error("same seed must reproduce the same model")
	}
	if !reflect.DeepEqual(a.Rounds, b.Rounds) {
		t.Error("same seed must grow identical trees")
	}
}

func TestGBTFeatureSampling(t *testing.T) {
	X, y := xorData()
	m := NewGBT(0.3, 10, 1, 5)
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if len(m.Rounds) != 10 {
		t.Fatalf("rounds = %d, want 10", len(m.Rounds))
	}
	for _, trees := range m.Rounds {
		if len(trees) != 2 {
			t.Fatalf("trees per round = %d, want one per class", len(trees))
		}
	}
	P, err := m.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	checkProbaRows(t, P)
}

func TestGBTRoundTrip(t *testing.T) {
	X, y := xorData()
	m := NewGBT(0.3, 15, 0, 3)
	if err := m.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	blob, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var back GBT
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

func TestGBTUnfitted(t *testing.T) {
	X, _ := xorData()
	if _, err := NewGBT(0.1, 5, 0, 1).PredictProba(X); err == nil {
		t.Fatal("unfitted predict must error")
	}
}

func TestTreeEval(t *testing.T) {
	tree := Tree{Nodes: []TreeNode{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2},
		{Value: -1, Leaf: true},
		{Value: 1, Leaf: true},
	}}
	if got := tree.Eval([]float64{0.2}); got != -1 {
		t.Errorf("Eval(0.2) = %v, want -1", got)
	}
	if got := tree.Eval([]float64{0.8}); got != 1 {
		t.Errorf("Eval(0.8) = %v, want 1", got)
	}
}
