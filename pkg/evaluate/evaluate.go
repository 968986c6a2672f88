// Package evaluate computes classification quality metrics for model
// comparison and the run registry.
package evaluate

import (
	"fmt"
	"strings"
)

// ClassMetrics holds one label's row of the report.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report summarizes predictions against true labels.
type Report struct {
	Accuracy       float64        `json:"accuracy"`
	MacroPrecision float64        `json:"macro_precision"`
	MacroRecall    float64        `json:"macro_recall"`
	MacroF1        float64        `json:"macro_f1"`
	Classes        []ClassMetrics `json:"classes"`
	Confusion      [][]int        `json:"confusion"`
}

// Accuracy is the fraction of exact matches.
func Accuracy(pred, want []int) float64 {
	if len(pred) == 0 {
		return 0
	}
	var hits int
	for i := range pred {
		if pred[i] == want[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(pred))
}

// ConfusionMatrix counts predictions per true class. Rows are true labels,
// columns predicted labels.
func ConfusionMatrix(pred, want []int, classes int) ([][]int, error) {
	if len(pred) != len(want) {
		return nil, fmt.Errorf("predictions %d != labels %d", len(pred), len(want))
	}
	cm := make([][]int, classes)
	for i := range cm {
		cm[i] = make([]int, classes)
	}
	for i := range pred {
		if want[i] < 0 || want[i] >= classes || pred[i] < 0 || pred[i] >= classes {
			return nil, fmt.Errorf("label out of range at row %d", i)
		}
		cm[want[i]][pred[i]]++
	}
	return cm, nil
}

// NewReport builds the full metrics report. labels gives the class names in
// id order.
func NewReport(pred, want []int, labels []string) (*Report, error) {
	cm, err := ConfusionMatrix(pred, want, len(labels))
	if err != nil {
		return nil, err
	}
	r := &Report{
		Accuracy:  Accuracy(pred, want),
		Classes:   make([]ClassMetrics, len(labels)),
		Confusion: cm,
	}
	for c, label := range labels {
		var tp, fp, fn int
		tp = cm[c][c]
		for other := range labels {
			if other == c {
				continue
			}
			fp += cm[other][c]
			fn += cm[c][other]
		}
		m := ClassMetrics{Label: label, Support: tp + fn}
		if tp+fp > 0 {
			m.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			m.Recall = float64(tp) / float64(tp+fn)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[c] = m
		r.MacroPrecision += m.Precision
		r.MacroRecall += m.Recall
		r.MacroF1 += m.F1
	}
	n := float64(len(labels))
	r.MacroPrecision /= n
	r.MacroRecall /= n
	r.MacroF1 /= n
	return r, nil
}

// String renders the report as a fixed-width table.
func (r *Report) String() string {
	var b strings.Builder
	width := 10
	for _, m := range r.Classes {
		if len(m.Label) > width {
			width = len(m.Label)
		}
	}
	fmt.Fprintf(&b, "%-*s  %9s  %9s  %9s  %7s\n", width, "class", "precision", "recall", "f1", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%-*s  %9.3f  %9.3f  %9.3f  %7d\n", width, m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "%-*s  %9.3f  %9.3f  %9.3f\n", width, "macro", r.MacroPrecision, r.MacroRecall, r.MacroF1)
	fmt.Fprintf(&b, "accuracy %.4f\n", r.Accuracy)
	return b.String()
}
