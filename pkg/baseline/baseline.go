// Package baseline cross-checks the tuned models against golearn's reference
// classifiers trained on the same exported feature matrix.
package baseline

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/evaluation"
	"github.com/sjwhitworth/golearn/filters"
	"github.com/sjwhitworth/golearn/knn"
	"github.com/sjwhitworth/golearn/naive"
	"gonum.org/v1/gonum/mat"
)

// Result is one baseline's holdout outcome.
type Result struct {
	Name     string  `json:"name"`
	Accuracy float64 `json:"accuracy"`
	Summary  string  `json:"summary"`
}

// WriteFeatureCSV exports a feature matrix with named labels as the last
// column, the layout golearn's CSV parser expects.
func WriteFeatureCSV(path string, X *mat.Dense, y []int, labels []string) error {
	n, d := X.Dims()
	if n != len(y) {
		return fmt.Errorf("rows %d != labels %d", n, len(y))
	}
	var b strings.Builder
	for j := 0; j < d; j++ {
		fmt.Fprintf(&b, "f%d,", j)
	}
	b.WriteString("language\n")
	for i := 0; i < n; i++ {
		row := X.RawRowView(i)
		for _, v := range row {
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			b.WriteByte(',')
		}
		if y[i] < 0 || y[i] >= len(labels) {
			return fmt.Errorf("label id %d out of range at row %d", y[i], i)
		}
		b.WriteString(labels[y[i]])
		b.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// convertToBinary maps the non-class attributes onto binary ones for the
// Bernoulli classifier.
func convertToBinary(src base.FixedDataGrid) base.FixedDataGrid {
	f := filters.NewBinaryConvertFilter()
	for _, a := range base.NonClassAttributes(src) {
		f.AddAttribute(a)
	}
	f.Train()
	return base.NewLazilyFilteredInstances(src, f)
}

// Run exports the features to dir, reloads them through golearn and scores
// a cosine kNN and a Bernoulli naive Bayes on a holdout split.
func Run(dir string, X *mat.Dense, y []int, labels []string, neighbors int, split float64) ([]Result, error) {
	if neighbors <= 0 {
		neighbors = 5
	}
	if split <= 0 || split >= 1 {
		split = 0.2
	}
	path := filepath.Join(dir, "features.csv")
	if err := WriteFeatureCSV(path, X, y, labels); err != nil {
		return nil, err
	}

	raw, err := base.ParseCSVToInstances(path, true)
	if err != nil {
		return nil, fmt.Errorf("parse feature csv: %w", err)
	}
	trainData, testData := base.InstancesTrainTestSplit(raw, split)

	var results []Result

	cls := knn.NewKnnClassifier("cosine", "linear", neighbors)
	if err := cls.Fit(trainData); err != nil {
		return nil, fmt.Errorf("fit knn baseline: %w", err)
	}
	pred, err := cls.Predict(testData)
	if err != nil {
		return nil, fmt.Errorf("predict knn baseline: %w", err)
	}
	cm, err := evaluation.GetConfusionMatrix(testData, pred)
	if err != nil {
		return nil, fmt.Errorf("knn baseline confusion: %w", err)
	}
	results = append(results, Result{
		Name:     "golearn-knn-cosine",
		Accuracy: evaluation.GetAccuracy(cm),
		Summary:  evaluation.GetSummary(cm),
	})

	nb := naive.NewBernoulliNBClassifier()
	nb.Fit(convertToBinary(trainData))
	nbPred, err := nb.Predict(convertToBinary(testData))
	if err != nil {
		return nil, fmt.Errorf("predict nb baseline: %w", err)
	}
	nbCM, err := evaluation.GetConfusionMatrix(testData, nbPred)
	if err != nil {
		return nil, fmt.Errorf("nb baseline confusion: %w", err)
	}
	results = append(results, Result{
		Name:     "golearn-bernoulli-nb",
		Accuracy: evaluation.GetAccuracy(nbCM),
		Summary:  evaluation.GetSummary(nbCM),
	})

	return results, nil
}
