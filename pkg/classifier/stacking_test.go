package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"testing"
)

func stackingMembers(t *testing.T) []*Pipeline {
	t.Helper()
	specs := []struct {
		family string
		params Params
	}{
		{FamilyKNN, Params{MaxTokens: 30, Neighbors: 5}},
		{FamilyLasso, Params{MaxTokens: 30, Alpha: 1e-4}},
		{FamilyGBT, Params{MaxTokens: 30, LearningRate: 0.2, Trees: 15}},
	}
	members := make([]*Pipeline, 0, len(specs))
	for _, spec := range specs {
		p, err := NewPipeline(spec.family, spec.params, 3, 7)
		if err != nil {
			t.Fatalf("member %s: %v", spec.family, err)
		}
		members = append(members, p)
	}
	return members
}

// holdoutCorpus recombines the class vocabularies into phrasings the training
// corpus never uses.
func holdoutCorpus() ([]string, []int) {
	var texts []string
	var labels []int
	for c, pool := range classPools {
		for i := 0; i < 4; i++ {
			a := pool[(i+3)%len(pool)]
			b := pool[(i+5)%len(pool)]
			texts = append(texts, fmt.Sprintf("tooling for %s developers using %s", a, b))
			labels = append(labels, c)
		}
	}
	return texts, labels
}

func TestStackingTracksBestMember(t *testing.T) {
	texts, y := textCorpus(12)
	s := NewStacking(stackingMembers(t), 3, 11)
	if err := s.Fit(texts, y); err != nil {
		t.Fatalf("fit: %v", err)
	}

	holdTexts, holdY := holdoutCorpus()
	var best float64
	for _, member := range s.Members {
		pred, err := member.Predict(holdTexts)
		if err != nil {
			t.Fatalf("member %s: %v", member.Family, err)
		}
		if acc := accuracyOf(pred, holdY); acc > best {
			best = acc
		}
	}

	pred, err := s.Predict(holdTexts)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range pred {
		if p < 0 || p >= s.Classes {
			t.Fatalf("prediction %d outside class range", p)
		}
	}
	if acc := accuracyOf(pred, holdY); acc < best-0.15 {
		t.Errorf("stacking holdout accuracy = %v, best member = %v", acc, best)
	}

	P, err := s.Proba(holdTexts)
	if err != nil {
		t.Fatal(err)
	}
	checkProbaRows(t, P)
}

func TestStackingPredictText(t *testing.T) {
	texts, y := textCorpus(12)
	s := NewStacking(stackingMembers(t), 3, 11)
	if err := s.Fit(texts, y); err != nil {
		t.Fatal(err)
	}

	id, probs, err := s.PredictText("a golang microservice with grpc and goroutines support")
	if err != nil {
		t.Fatal(err)
	}
	if id != 0 {
		t.Errorf("predicted class %d, want 0", id)
	}
	if len(probs) != 3 {
		t.Fatalf("probs length = %d, want 3", len(probs))
	}
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probs sum to %v", sum)
	}
}

func TestStackingDeterministic(t *testing.T) {
	texts, y := textCorpus(12)
	holdTexts, _ := holdoutCorpus()

	a := NewStacking(stackingMembers(t), 3, 11)
	b := NewStacking(stackingMembers(t), 3, 11)
	if err := a.Fit(texts, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(texts, y); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.MetaW, b.MetaW) {
		t.Error("same seed must learn identical meta weights")
	}
	pa, _ := a.Predict(holdTexts)
	pb, err := b.Predict(holdTexts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pa, pb) {
		t.Error("same seed must reproduce predictions")
	}
}

func TestStackingRoundTrip(t *testing.T) {
	texts, y := textCorpus(12)
	s := NewStacking(stackingMembers(t), 3, 11)
	if err := s.Fit(texts, y); err != nil {
		t.Fatal(err)
	}
	blob, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var back Stacking
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatal(err)
	}

	holdTexts, _ := holdoutCorpus()
	p1, _ := s.Predict(holdTexts)
	p2, err := back.Predict(holdTexts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p1, p2) {
		t.Error("reloaded ensemble predicts differently")
	}
}

func TestStackingUnfitted(t *testing.T) {
	s := NewStacking(stackingMembers(t), 3, 1)
	if _, err := s.Proba([]string{"anything"}); err == nil {
		t.Fatal("unfitted proba must error")
	}
}

func TestStackingNoMembers(t *testing.T) {
	s := NewStacking(nil, 3, 1)
	if err := s.Fit([]string{"x"}, []int{0}); err == nil {
		t.Fatal("fit with no members must error")
	}
}
