package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/ilnaes/github-analysis/pkg/classifier"
	"github.com/ilnaes/github-analysis/pkg/dataset"
	"github.com/ilnaes/github-analysis/pkg/modelstore"
	"github.com/ilnaes/github-analysis/pkg/runstore"
	"github.com/ilnaes/github-analysis/pkg/tuning"
)

// TrainingActivities holds the tuning activity implementations. The first
// store is authoritative, the rest are mirrors.
type TrainingActivities struct {
	stores []modelstore.Store
	runs   *runstore.Store
}

// NewTrainingActivities creates a new TrainingActivities instance. runs may
// be nil when no run registry is configured.
func NewTrainingActivities(stores []modelstore.Store, runs *runstore.Store) *TrainingActivities {
	return &TrainingActivities{stores: stores, runs: runs}
}

// =============================================================================
// TUNE FAMILY
// =============================================================================

// TuneFamilyInput is the input for TuneFamily.
type TuneFamilyInput struct {
	Family       string `json:"family"`
	DatasetCSV   string `json:"datasetCsv"`
	Folds        int    `json:"folds,omitempty"`
	Seed         int64  `json:"seed,omitempty"`
	GridDir      string `json:"gridDir,omitempty"`
	TopLanguages int    `json:"topLanguages,omitempty"`
}

// TuneFamilyOutput is the output for TuneFamily. Trials ride inline when
// small and as a staged file path otherwise.
type TuneFamilyOutput struct {
	Family       string               `json:"family"`
	Best         classifier.Params    `json:"best"`
	BestAccuracy float64              `json:"bestAccuracy"`
	TrialCount   int                  `json:"trialCount"`
	DatasetRows  int                  `json:"datasetRows"`
	Labels       []string             `json:"labels,omitempty"`
	ResultKey    string               `json:"resultKey,omitempty"`
	Trials       []tuning.TrialResult `json:"trials,omitempty"`
	TrialsPath   string               `json:"trialsPath,omitempty"`
}

// TuneFamily cross-validates one family's grid over the dataset, persists
// the full sweep result and returns a summary. Heartbeats carry trial
// progress so long grids survive the heartbeat timeout.
func (a *TrainingActivities) TuneFamily(ctx context.Context, input TuneFamilyInput) (*TuneFamilyOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("tuning family", "family", input.Family, "dataset", input.DatasetCSV)

	repos, stats, err := dataset.LoadCSV(input.DatasetCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("dataset %s has no usable rows", input.DatasetCSV)
	}
	logger.Info("dataset loaded", "rows", stats.Rows, "kept", stats.Kept)

	top := input.TopLanguages
	if top <= 0 {
		top = 10
	}
	enc := dataset.FitLabels(repos, top)
	y := enc.Encode(repos)
	corpus := dataset.Descriptions(repos)

	grids, err := tuning.LoadRegistry(input.GridDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning grids: %w", err)
	}
	grid, ok := grids[input.Family]
	if !ok {
		return nil, fmt.Errorf("no tuning grid for family %q", input.Family)
	}

	res, err := tuning.TuneFamily(input.Family, grid, corpus, y, tuning.Options{
		Folds:   input.Folds,
		Seed:    input.Seed,
		Classes: enc.NumClasses(),
		Progress: func(done, total int) {
			activity.RecordHeartbeat(ctx, done, total)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tune %s: %w", input.Family, err)
	}

	key := modelstore.TuningKey(input.Family)
	for i, store := range a.stores {
		if err := modelstore.PutJSON(ctx, store, key, res); err != nil {
			if i == 0 {
				return nil, fmt.Errorf("failed to persist tuning result: %w", err)
			}
			logger.Warn("mirror put failed", "key", key, "error", err)
		}
	}

	out := &TuneFamilyOutput{
		Family:       input.Family,
		Best:         res.Best,
		BestAccuracy: res.Trials[0].MeanAcc,
		TrialCount:   len(res.Trials),
		DatasetRows:  len(repos),
		Labels:       enc.Classes,
		ResultKey:    key,
	}
	blob, err := json.Marshal(res.Trials)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trials: %w", err)
	}
	if len(blob) <= modelstore.MaxPayloadBytes {
		out.Trials = res.Trials
	} else {
		path, err := modelstore.StageJSON(res.Trials, fmt.Sprintf("tuning-%s", input.Family))
		if err != nil {
			return nil, fmt.Errorf("failed to stage trials: %w", err)
		}
		out.TrialsPath = path
	}
	return out, nil
}

// =============================================================================
// RECORD SWEEP
// =============================================================================

// RecordSweepInput is the input for RecordSweep.
type RecordSweepInput struct {
	RunID       string                      `json:"runId"`
	StartedAt   time.Time                   `json:"startedAt"`
	DatasetRows int                         `json:"datasetRows"`
	Families    []string                    `json:"families"`
	Labels      []string                    `json:"labels,omitempty"`
	Results     map[string]TuneFamilyOutput `json:"results"`
}

// RecordSweep writes the sweep's summary row into the run registry.
func (a *TrainingActivities) RecordSweep(ctx context.Context, input RecordSweepInput) error {
	logger := activity.GetLogger(ctx)
	if a.runs == nil {
		logger.Info("run registry disabled, skipping sweep record", "runId", input.RunID)
		return nil
	}

	metrics := make(map[string]float64, len(input.Results))
	params := make(map[string]classifier.Params, len(input.Results))
	for family, out := range input.Results {
		metrics[family] = out.BestAccuracy
		params[family] = out.Best
	}

	err := a.runs.RecordRun(ctx, runstore.Run{
		ID:          input.RunID,
		StartedAt:   input.StartedAt,
		FinishedAt:  time.Now(),
		DatasetRows: input.DatasetRows,
		Families:    input.Families,
		Labels:      input.Labels,
		Metrics:     metrics,
		Params:      params,
	})
	if err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}
	logger.Info("sweep recorded", "runId", input.RunID, "families", len(input.Families))
	return nil
}
