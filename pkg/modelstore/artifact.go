package modelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ilnaes/github-analysis/pkg/classifier"
)

// Artifact keys.
const (
	ManifestKey    = "models/manifest.json"
	TransformerDir = "transformer"
)

// TuningKey is the persisted sweep result for one family.
func TuningKey(family string) string { return fmt.Sprintf("tuning/%s.json", family) }

// ModelKey is the fitted model blob for one family.
func ModelKey(family string) string { return fmt.Sprintf("models/%s.json", family) }

// MetricsKey is one training run's evaluation report.
func MetricsKey(runID string) string { return fmt.Sprintf("metrics/%s.json", runID) }

// SavedModel is the envelope every fitted model persists in: the label names
// travel with the weights so the server can decode predictions.
type SavedModel struct {
	Family   string               `json:"family"`
	Labels   []string             `json:"labels"`
	SavedAt  time.Time            `json:"saved_at"`
	Pipeline *classifier.Pipeline `json:"pipeline,omitempty"`
	Stacking *classifier.Stacking `json:"stacking,omitempty"`
}

// Manifest indexes the artifacts one training run produced.
type Manifest struct {
	RunID        string                       `json:"run_id"`
	CreatedAt    time.Time                    `json:"created_at"`
	Labels       []string                     `json:"labels"`
	Families     []string                     `json:"families"`
	BestParams   map[string]classifier.Params `json:"best_params,omitempty"`
	TestAccuracy map[string]float64           `json:"test_accuracy,omitempty"`
	SnapshotKey  string                       `json:"snapshot_key,omitempty"`
}

// PutJSON marshals value under key.
func PutJSON(ctx context.Context, s Store, key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, blob)
}

// GetJSON loads key into out, reporting whether the key existed.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	blob, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if blob == nil {
		return false, nil
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SavePipeline persists a classical-family model under its family key.
func SavePipeline(ctx context.Context, s Store, p *classifier.Pipeline, labels []string) error {
	return PutJSON(ctx, s, ModelKey(p.Family), SavedModel{
		Family:   p.Family,
		Labels:   labels,
		SavedAt:  time.Now().UTC(),
		Pipeline: p,
	})
}

// SaveStacking persists the ensemble under the stacking key.
func SaveStacking(ctx context.Context, s Store, st *classifier.Stacking, labels []string) error {
	return PutJSON(ctx, s, ModelKey(classifier.FamilyStacking), SavedModel{
		Family:   classifier.FamilyStacking,
		Labels:   labels,
		SavedAt:  time.Now().UTC(),
		Stacking: st,
	})
}

// LoadModel fetches a family's SavedModel envelope. The boolean reports
// whether the artifact existed.
func LoadModel(ctx context.Context, s Store, family string) (*SavedModel, bool, error) {
	var saved SavedModel
	ok, err := GetJSON(ctx, s, ModelKey(family), &saved)
	if err != nil || !ok {
		return nil, ok, err
	}
	if saved.Pipeline == nil && saved.Stacking == nil {
		return nil, true, fmt.Errorf("model artifact %s holds no model", family)
	}
	return &saved, true, nil
}
