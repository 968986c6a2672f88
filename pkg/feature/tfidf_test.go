package feature

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

var corpus = []string{
	"a tiny web framework for the go programming language",
	"fast json parser written in go",
	"machine learning notebooks in python with gradient boosting",
	"python web scraping toolkit",
	"distributed key value store written in go",
	"deep learning for python programmers",
}

func TestFitRespectsTokenCap(t *testing.T) {
	for _, capSize := range []int{1, 3, 5, 50} {
		v := NewVectorizer(capSize)
		if err := v.Fit(corpus); err != nil {
			t.Fatalf("Fit(cap=%d): %v", capSize, err)
		}
		if v.Dim() > capSize {
			t.Errorf("cap %d: vocabulary size %d exceeds cap", capSize, v.Dim())
		}
		if len(v.Vocab) != v.Dim() {
			t.Errorf("vocab map and IDF length disagree: %d vs %d", len(v.Vocab), v.Dim())
		}
	}
}

func TestFitDeterministic(t *testing.T) {
	a := NewVectorizer(10)
	b := NewVectorizer(10)
	if err := a.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Vocab, b.Vocab) {
		t.Error("vocabularies differ between identical fits")
	}
	if !reflect.DeepEqual(a.IDF, b.IDF) {
		t.Error("IDF weights differ between identical fits")
	}
}

func TestTransformNormalized(t *testing.T) {
	v := NewVectorizer(20)
	if err := v.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	vec := v.Transform("go web framework")
	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-9 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(norm))
	}
}

func TestTransformIgnoresUnknownTokens(t *testing.T) {
	v := NewVectorizer(20)
	if err := v.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	vec := v.Transform("zzzuncommontoken qqqanother")
	for i, x := range vec {
		if x != 0 {
			t.Fatalf("component %d = %v, want all zeros", i, x)
		}
	}
}

func TestIDFOrdersByRarity(t *testing.T) {
	v := NewVectorizer(0)
	if err := v.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	goIdx, ok := v.Vocab["go"]
	if !ok {
		t.Fatal("expected go in vocabulary")
	}
	jsonIdx, ok := v.Vocab["json"]
	if !ok {
		t.Fatal("expected json in vocabulary")
	}
	if v.IDF[goIdx] >= v.IDF[jsonIdx] {
		t.Errorf("common term idf %v should be below rare term idf %v", v.IDF[goIdx], v.IDF[jsonIdx])
	}
}

func TestFitTransformShape(t *testing.T) {
	v := NewVectorizer(15)
	X, err := v.FitTransform(corpus)
	if err != nil {
		t.Fatal(err)
	}
	r, c := X.Dims()
	if r != len(corpus) || c != v.Dim() {
		t.Errorf("matrix dims = (%d,%d), want (%d,%d)", r, c, len(corpus), v.Dim())
	}
}

func TestVectorizerRoundTrip(t *testing.T) {
	v := NewVectorizer(12)
	if err := v.Fit(corpus); err != nil {
		t.Fatal(err)
	}
	blob, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var back Vectorizer
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.Transform("go web framework"), back.Transform("go web framework")) {
		t.Error("reloaded vectorizer transforms differently")
	}
}

func TestFitEmptyCorpus(t *testing.T) {
	if err := NewVectorizer(5).Fit(nil); err == nil {
		t.Fatal("expected error for empty corpus")
	}
	if err := NewVectorizer(5).Fit([]string{"the of and", "a an"}); err == nil {
		t.Fatal("expected error when no tokens survive cleaning")
	}
}
