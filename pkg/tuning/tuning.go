// Package tuning runs seeded cross-validated grid searches over the model
// families and ranks the results.
package tuning

import (
	"fmt"
	"sort"
	"time"

	"github.com/ilnaes/github-analysis/pkg/classifier"
	"github.com/ilnaes/github-analysis/pkg/dataset"
	"github.com/ilnaes/github-analysis/pkg/evaluate"
)

// TrialResult is one grid combination's cross-validated score.
type TrialResult struct {
	Params   classifier.Params `json:"params"`
	MeanAcc  float64           `json:"mean_accuracy"`
	FoldAccs []float64         `json:"fold_accuracies"`
}

// Result is a family's full sweep outcome, sorted best-first. It persists as
// one JSON blob so the trainer can reload it instead of re-tuning.
type Result struct {
	Family    string            `json:"family"`
	Folds     int               `json:"folds"`
	Seed      int64             `json:"seed"`
	Trials    []TrialResult     `json:"trials"`
	Best      classifier.Params `json:"best"`
	CreatedAt time.Time         `json:"created_at"`
}

// Options configures a sweep. Zero values fall back to defaults.
type Options struct {
	Folds   int
	Seed    int64
	Classes int
	// Progress, when set, is called after every completed trial.
	Progress func(done, total int)
}

// TuneFamily cross-validates every combination of the grid on the given
// corpus and returns the trials sorted by mean fold accuracy. Ties keep the
// grid's enumeration order.
func TuneFamily(family string, grid Grid, corpus []string, y []int, opts Options) (*Result, error) {
	if len(corpus) != len(y) {
		return nil, fmt.Errorf("corpus %d != labels %d", len(corpus), len(y))
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("tune %s: empty corpus", family)
	}
	folds := opts.Folds
	if folds < 2 {
		folds = 5
	}
	combos := grid.Combinations()
	splits := dataset.StratifiedKFold(y, folds, opts.Seed)

	res := &Result{
		Family:    family,
		Folds:     folds,
		Seed:      opts.Seed,
		Trials:    make([]TrialResult, 0, len(combos)),
		CreatedAt: time.Now().UTC(),
	}
	for ci, params := range combos {
		trial := TrialResult{Params: params, FoldAccs: make([]float64, 0, folds)}
		for _, val := range splits {
			if len(val) == 0 {
				continue
			}
			trainIdx := dataset.Complement(len(corpus), val)
			pipe, err := classifier.NewPipeline(family, params, opts.Classes, opts.Seed)
			if err != nil {
				return nil, fmt.Errorf("tune %s: %w", family, err)
			}
			if err := pipe.Fit(dataset.SubsetStrings(corpus, trainIdx), dataset.SubsetLabels(y, trainIdx)); err != nil {
				return nil, fmt.Errorf("tune %s combo %d: %w", family, ci, err)
			}
			pred, err := pipe.Predict(dataset.SubsetStrings(corpus, val))
			if err != nil {
				return nil, fmt.Errorf("tune %s combo %d: %w", family, ci, err)
			}
			trial.FoldAccs = append(trial.FoldAccs, evaluate.Accuracy(pred, dataset.SubsetLabels(y, val)))
		}
		for _, acc := range trial.FoldAccs {
			trial.MeanAcc += acc
		}
		if len(trial.FoldAccs) > 0 {
			trial.MeanAcc /= float64(len(trial.FoldAccs))
		}
		res.Trials = append(res.Trials, trial)
		if opts.Progress != nil {
			opts.Progress(ci+1, len(combos))
		}
	}

	sort.SliceStable(res.Trials, func(i, j int) bool {
		return res.Trials[i].MeanAcc > res.Trials[j].MeanAcc
	})
	res.Best = res.Trials[0].Params
	return res, nil
}
