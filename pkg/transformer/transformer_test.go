package transformer

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

var trainPools = [][]string{
	{"golang", "goroutines", "channels", "grpc", "concurrency"},
	{"python", "pandas", "numpy", "notebook", "dataframe"},
}

func smallCorpus(perClass int) ([]string, []int) {
	var texts []string
	var labels []int
	for c, pool := range trainPools {
		for i := 0; i < perClass; i++ {
			a := pool[i%len(pool)]
			b := pool[(i+1)%len(pool)]
			texts = append(texts, fmt.Sprintf("a %s library with %s support", a, b))
			labels = append(labels, c)
		}
	}
	return texts, labels
}

func smallConfig() Config {
	return Config{
		MaxVocab: 50,
		Dim:      16,
		FFN:      32,
		MaxLen:   8,
		Classes:  2,
		Seed:     1,
		Epochs:   15,
		Batch:    8,
		LR:       1e-2,
	}
}

func TestTrainReducesLoss(t *testing.T) {
	texts, y := smallCorpus(8)
	m, err := NewModel(smallConfig(), texts)
	if err != nil {
		t.Fatal(err)
	}
	var losses []float64
	err = m.Train(texts, y, nil, nil, func(epoch int, trainLoss, valAcc float64) {
		losses = append(losses, trainLoss)
		if !math.IsNaN(valAcc) {
			t.Errorf("epoch %d: val accuracy %v without a validation set", epoch, valAcc)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(losses) != 15 {
		t.Fatalf("epochs reported = %d, want 15", len(losses))
	}
	if losses[len(losses)-1] >= losses[0] {
		t.Errorf("loss did not decrease: first %v last %v", losses[0], losses[len(losses)-1])
	}

	pred, err := m.Predict(texts)
	if err != nil {
		t.Fatal(err)
	}
	var hits int
	for i := range pred {
		if pred[i] == y[i] {
			hits++
		}
	}
	if acc := float64(hits) / float64(len(pred)); acc < 0.9 {
		t.Errorf("train accuracy = %v, want >= 0.9", acc)
	}
}

func TestTrainReportsValidation(t *testing.T) {
	texts, y := smallCorpus(8)
	m, err := NewModel(smallConfig(), texts)
	if err != nil {
		t.Fatal(err)
	}
	valTexts := []string{"a golang library with grpc support", "a pandas library with numpy support"}
	valY := []int{0, 1}
	var last float64
	err = m.Train(texts, y, valTexts, valY, func(_ int, _ float64, valAcc float64) {
		last = valAcc
	})
	if err != nil {
		t.Fatal(err)
	}
	if math.IsNaN(last) || last < 0 || last > 1 {
		t.Errorf("final val accuracy = %v", last)
	}
}

func TestTrainDeterministic(t *testing.T) {
	texts, y := smallCorpus(6)
	a, err := NewModel(smallConfig(), texts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewModel(smallConfig(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Train(texts, y, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := b.Train(texts, y, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Wc.RawMatrix().Data, b.Wc.RawMatrix().Data) {
		t.Error("same seed must learn identical weights")
	}
	pa, _ := a.Predict(texts)
	pb, err := b.Predict(texts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pa, pb) {
		t.Error("same seed must reproduce predictions")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	texts, y := smallCorpus(6)
	cfg := smallConfig()
	cfg.Epochs = 3
	cfg.Labels = []string{"Go", "Python"}
	m, err := NewModel(cfg, texts)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Train(texts, y, nil, nil, nil); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	if err := m.SaveDir(dir); err != nil {
		t.Fatal(err)
	}
	back, err := LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.Cfg.Labels, cfg.Labels) {
		t.Errorf("labels = %v, want %v", back.Cfg.Labels, cfg.Labels)
	}

	P1, err := m.PredictProba(texts)
	if err != nil {
		t.Fatal(err)
	}
	P2, err := back.PredictProba(texts)
	if err != nil {
		t.Fatal(err)
	}
	r, c := P1.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if P1.At(i, j) != P2.At(i, j) {
				t.Fatalf("probability [%d][%d] changed across save/load: %v vs %v", i, j, P1.At(i, j), P2.At(i, j))
			}
		}
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Fatal("loading an empty directory must error")
	}
}

func TestVocabCapAndUnknowns(t *testing.T) {
	texts, _ := smallCorpus(8)
	cfg := smallConfig()
	cfg.MaxVocab = 10
	m, err := NewModel(cfg, texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Vocab) > 8 {
		t.Errorf("vocabulary size = %d, want <= 8 with two reserved ids", len(m.Vocab))
	}
	for term, id := range m.Vocab {
		if id < 2 {
			t.Errorf("term %s uses reserved id %d", term, id)
		}
	}

	ids := m.encode("completely unseen nonsense here")
	for _, id := range ids {
		if id != unkID {
			t.Errorf("unseen token encoded as %d, want %d", id, unkID)
		}
	}
	if ids := m.encode(""); len(ids) != 1 || ids[0] != unkID {
		t.Errorf("empty text encoded as %v", ids)
	}

	id, probs, err := m.PredictText("")
	if err != nil {
		t.Fatal(err)
	}
	if id < 0 || id >= 2 || len(probs) != 2 {
		t.Errorf("empty text prediction = %d with %d probs", id, len(probs))
	}
}

func TestBackwardMatchesFiniteDifferences(t *testing.T) {
	texts, _ := smallCorpus(3)
	cfg := Config{MaxVocab: 12, Dim: 4, FFN: 6, MaxLen: 4, Classes: 2, Seed: 3}
	m, err := NewModel(cfg, texts)
	if err != nil {
		t.Fatal(err)
	}
	ids := m.encode("a golang library with grpc support")
	y := 0

	grads := newGradSet(m)
	m.backward(m.forward(ids), y, grads)

	loss := func() float64 {
		return -math.Log(m.forward(ids).probs[y])
	}
	const h = 1e-6
	for pi, p := range m.list() {
		data := p.RawMatrix().Data
		analytic := grads.tensors[pi].RawMatrix().Data
		for j := range data {
			orig := data[j]
			data[j] = orig + h
			up := loss()
			data[j] = orig - h
			down := loss()
			data[j] = orig
			numeric := (up - down) / (2 * h)
			if diff := math.Abs(numeric - analytic[j]); diff > 1e-4*(1+math.Abs(numeric)) {
				t.Fatalf("tensor %d index %d: analytic %v vs numeric %v", pi, j, analytic[j], numeric)
			}
		}
	}
}

func TestTrainValidation(t *testing.T) {
	texts, y := smallCorpus(4)
	m, err := NewModel(smallConfig(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Train(nil, nil, nil, nil, nil); err == nil {
		t.Error("empty corpus must error")
	}
	if err := m.Train(texts, y[:2], nil, nil, nil); err == nil {
		t.Error("length mismatch must error")
	}
	bad := append([]int(nil), y...)
	bad[0] = 9
	if err := m.Train(texts, bad, nil, nil, nil); err == nil {
		t.Error("out-of-range label must error")
	}
}

func TestEncodeClipsToMaxLen(t *testing.T) {
	texts, _ := smallCorpus(4)
	cfg := smallConfig()
	cfg.MaxLen = 3
	m, err := NewModel(cfg, texts)
	if err != nil {
		t.Fatal(err)
	}
	long := "golang goroutines channels grpc concurrency python pandas"
	if ids := m.encode(long); len(ids) != 3 {
		t.Errorf("encoded length = %d, want clipped to 3", len(ids))
	}
}
