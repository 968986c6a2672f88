package baseline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// baselineData builds two well separated clusters over four features.
func baselineData(n int) (*mat.Dense, []int, []string) {
	X := mat.NewDense(n, 4, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		v := 1.0 + 0.1*float64(i%3)
		if i%2 == 0 {
			X.Set(i, 0, v)
			X.Set(i, 1, v/2)
			y[i] = 0
		} else {
			X.Set(i, 2, v)
			X.Set(i, 3, v/2)
			y[i] = 1
		}
	}
	return X, y, []string{"alpha", "beta"}
}

func TestWriteFeatureCSV(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 0.5, 0.5})
	y := []int{0, 1, 0}
	path := filepath.Join(t.TempDir(), "features.csv")
	if err := WriteFeatureCSV(path, X, y, []string{"Go", "Python"}); err != nil {
		t.Fatalf("WriteFeatureCSV: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0] != "f0,f1,language" {
		t.Fatalf("header %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",Go") {
		t.Fatalf("row 1 %q should end with ,Go", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",Python") {
		t.Fatalf("row 2 %q should end with ,Python", lines[2])
	}
}

func TestWriteFeatureCSVValidates(t *testing.T) {
	X := mat.NewDense(2, 2, nil)
	path := filepath.Join(t.TempDir(), "features.csv")
	if err := WriteFeatureCSV(path, X, []int{0}, []string{"a"}); err == nil {
		t.Fatal("expected error on row/label mismatch")
	}
	if err := WriteFeatureCSV(path, X, []int{0, 5}, []string{"a"}); err == nil {
		t.Fatal("expected error on out of range label")
	}
}

func TestRunBaselines(t *testing.T) {
	X, y, labels := baselineData(40)
	dir := t.TempDir()
	results, err := Run(dir, X, y, labels, 3, 0.3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
		if r.Accuracy < 0 || r.Accuracy > 1 {
			t.Fatalf("%s accuracy %v out of range", r.Name, r.Accuracy)
		}
		if r.Summary == "" {
			t.Fatalf("%s has empty summary", r.Name)
		}
	}
	if !names["golearn-knn-cosine"] || !names["golearn-bernoulli-nb"] {
		t.Fatalf("unexpected result names %v", names)
	}
	if _, err := os.Stat(filepath.Join(dir, "features.csv")); err != nil {
		t.Fatalf("feature csv missing: %v", err)
	}
}
