package classifier

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func TestPipelineFamilies(t *testing.T) {
	texts, y := textCorpus(8)
	cases := []struct {
		family string
		params Params
	}{
		{FamilyKNN, Params{MaxTokens: 25, Neighbors: 5}},
		{FamilyLasso, Params{MaxTokens: 25, Alpha: 1e-4}},
		{FamilyGBT, Params{MaxTokens: 25, LearningRate: 0.2, Trees: 15}},
	}
	for _, tc := range cases {
		t.Run(tc.family, func(t *testing.T) {
			p, err := NewPipeline(tc.family, tc.params, 3, 7)
			if err != nil {
				t.Fatal(err)
			}
			if err := p.Fit(texts, y); err != nil {
				t.Fatalf("fit: %v", err)
			}

			id, probs, err := p.PredictText("a pandas library with numpy and notebook support")
			if err != nil {
				t.Fatal(err)
			}
			if id != 1 {
				t.Errorf("predicted class %d, want 1", id)
			}
			if len(probs) != 3 {
				t.Fatalf("probs length = %d, want 3", len(probs))
			}
			var sum float64
			for _, v := range probs {
				sum += v
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("probs sum to %v", sum)
			}

			if dim := p.Vec.Dim(); dim > tc.params.MaxTokens {
				t.Errorf("vocabulary size %d exceeds cap %d", dim, tc.params.MaxTokens)
			}
		})
	}
}

func TestPipelineRoundTrip(t *testing.T) {
	texts, y := textCorpus(8)
	for _, family := range []string{FamilyKNN, FamilyLasso, FamilyGBT} {
		t.Run(family, func(t *testing.T) {
			p, err := NewPipeline(family, Params{MaxTokens: 25, Neighbors: 3, Alpha: 1e-4, LearningRate: 0.2, Trees: 10}, 3, 7)
			if err != nil {
				t.Fatal(err)
			}
			if err := p.Fit(texts, y); err != nil {
				t.Fatal(err)
			}
			blob, err := json.Marshal(p)
			if err != nil {
				t.Fatal(err)
			}
			var back Pipeline
			if err := json.Unmarshal(blob, &back); err != nil {
				t.Fatal(err)
			}
			if back.Family != family {
				t.Errorf("family = %q, want %q", back.Family, family)
			}
			if back.Params != p.Params {
				t.Errorf("params changed across round trip: %+v", back.Params)
			}
			p1, _ := p.Predict(texts)
			p2, err := back.Predict(texts)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(p1, p2) {
				t.Error("reloaded pipeline predicts differently")
			}
		})
	}
}

func TestPipelineUnknownFamily(t *testing.T) {
	if _, err := NewPipeline("svm", Params{}, 3, 1); err == nil {
		t.Fatal("unknown family must error")
	}
	var p Pipeline
	if err := json.Unmarshal([]byte(`{"family":"svm","model":{}}`), &p); err == nil {
		t.Fatal("decoding an unknown family must error")
	}
}

func TestPipelineFresh(t *testing.T) {
	texts, y := textCorpus(8)
	p, err := NewPipeline(FamilyLasso, Params{MaxTokens: 25, Alpha: 1e-4}, 3, 7)
	if err != nil {
		t.Fatal(err)
	}
	clone, err := p.fresh()
	if err != nil {
		t.Fatal(err)
	}
	if clone.Family != p.Family || clone.Params != p.Params || clone.Seed != p.Seed {
		t.Error("fresh must preserve the configuration")
	}
	if err := clone.Fit(texts, y); err != nil {
		t.Fatal(err)
	}
	if p.Vec.Dim() != 0 {
		t.Error("fitting the copy must not touch the original vectorizer")
	}
}
