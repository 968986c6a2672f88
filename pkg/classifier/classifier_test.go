package classifier

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

var classPools = [][]string{
	{"golang", "goroutines", "channels", "concurrency", "microservice", "grpc"},
	{"python", "pandas", "numpy", "notebook", "dataframe", "matplotlib"},
	{"javascript", "react", "browser", "frontend", "dom", "webpack"},
}

// textCorpus builds a deterministic, clearly separable corpus with shared
// filler words.
func textCorpus(perClass int) ([]string, []int) {
	var texts []string
	var labels []int
	for c, pool := range classPools {
		for i := 0; i < perClass; i++ {
			a := pool[i%len(pool)]
			b := pool[(i+1)%len(pool)]
			d := pool[(i+2)%len(pool)]
			texts = append(texts, fmt.Sprintf("a %s library with %s and %s support", a, b, d))
			labels = append(labels, c)
		}
	}
	return texts, labels
}

// xorData is a small nonlinear dataset no linear model can fit.
func xorData() (*mat.Dense, []int) {
	n := 40
	X := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		a := (i / 2) % 2
		b := i % 2
		jitter := 0.04 * float64(i%5)
		X.Set(i, 0, float64(a)+jitter)
		X.Set(i, 1, float64(b)-jitter)
		y[i] = a ^ b
	}
	return X, y
}

func accuracyOf(pred, want []int) float64 {
	var hits int
	for i := range pred {
		if pred[i] == want[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(pred))
}

func checkProbaRows(t *testing.T, P *mat.Dense) {
	t.Helper()
	n, c := P.Dims()
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < c; j++ {
			v := P.At(i, j)
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Fatalf("proba[%d][%d] = %v out of range", i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("proba row %d sums to %v", i, sum)
		}
	}
}

func TestResolveClasses(t *testing.T) {
	if _, err := resolveClasses(0, nil); err == nil {
		t.Error("empty labels should error")
	}
	if _, err := resolveClasses(2, []int{0, 2}); err == nil {
		t.Error("label beyond declared classes should error")
	}
	if _, err := resolveClasses(0, []int{0, -1}); err == nil {
		t.Error("negative label should error")
	}
	n, err := resolveClasses(0, []int{0, 1, 2, 1})
	if err != nil || n != 3 {
		t.Errorf("inferred classes = %d (%v), want 3", n, err)
	}
	n, err = resolveClasses(5, []int{0, 1})
	if err != nil || n != 5 {
		t.Errorf("declared classes = %d (%v), want 5", n, err)
	}
}

func TestNewUnknownFamily(t *testing.T) {
	if _, err := New("forest", Params{}, 3, 1); err == nil {
		t.Fatal("unknown family must error")
	}
}
