// Package temporal provides Temporal workflow definitions for the tuning
// sweep so long grid searches can run on a worker fleet.
package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ilnaes/github-analysis/pkg/classifier"
)

// =============================================================================
// WORKFLOW NAMES
// =============================================================================

const (
	TuneSweepWorkflow = "tuneSweepWorkflow"
)

// =============================================================================
// ACTIVITY OPTIONS
// =============================================================================

var sweepActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 4 * time.Hour,
	HeartbeatTimeout:    5 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second * 5,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute * 5,
		MaximumAttempts:    3,
	},
}

var recordActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	},
}

// =============================================================================
// WORKFLOW INPUTS/OUTPUTS
// =============================================================================

// TuneSweepInput is the input for TuneSweepWorkflow.
type TuneSweepInput struct {
	DatasetCSV   string   `json:"datasetCsv"`
	Families     []string `json:"families,omitempty"`
	Folds        int      `json:"folds,omitempty"`
	Seed         int64    `json:"seed,omitempty"`
	GridDir      string   `json:"gridDir,omitempty"`
	TopLanguages int      `json:"topLanguages,omitempty"`
}

// TuneSweepResult is the output of TuneSweepWorkflow.
type TuneSweepResult struct {
	RunID    string                      `json:"runId"`
	Families map[string]TuneFamilyOutput `json:"families"`
}

// =============================================================================
// TUNE SWEEP WORKFLOW
// =============================================================================

// TuneSweepWorkflowFunc cross-validates each requested family's grid and
// records the sweep in the run registry.
func TuneSweepWorkflowFunc(ctx workflow.Context, input TuneSweepInput) (*TuneSweepResult, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)

	if input.DatasetCSV == "" {
		return nil, temporal.NewApplicationError("datasetCsv is required", "INVALID_INPUT")
	}
	families := input.Families
	if len(families) == 0 {
		families = []string{classifier.FamilyKNN, classifier.FamilyLasso, classifier.FamilyGBT}
	}

	actCtx := workflow.WithActivityOptions(ctx, sweepActivityOptions)
	result := &TuneSweepResult{
		RunID:    info.WorkflowExecution.ID,
		Families: make(map[string]TuneFamilyOutput, len(families)),
	}

	for _, family := range families {
		var out TuneFamilyOutput
		err := workflow.ExecuteActivity(actCtx, "TuneFamily", TuneFamilyInput{
			Family:       family,
			DatasetCSV:   input.DatasetCSV,
			Folds:        input.Folds,
			Seed:         input.Seed,
			GridDir:      input.GridDir,
			TopLanguages: input.TopLanguages,
		}).Get(ctx, &out)
		if err != nil {
			return nil, err
		}
		logger.Info("family tuned", "family", family,
			"bestAccuracy", out.BestAccuracy, "trials", out.TrialCount)
		result.Families[family] = out
	}

	recCtx := workflow.WithActivityOptions(ctx, recordActivityOptions)
	record := RecordSweepInput{
		RunID:     result.RunID,
		StartedAt: info.WorkflowStartTime,
		Families:  families,
		Results:   result.Families,
	}
	for _, out := range result.Families {
		if out.DatasetRows > 0 {
			record.DatasetRows = out.DatasetRows
			record.Labels = out.Labels
			break
		}
	}
	if err := workflow.ExecuteActivity(recCtx, "RecordSweep", record).Get(ctx, nil); err != nil {
		logger.Warn("sweep not recorded", "error", err)
	}

	return result, nil
}
