package tuning

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ilnaes/github-analysis/pkg/classifier"
)

// Grid defines one family's hyperparameter search space. Knobs a family does
// not tune stay empty and fall back to the model default.
type Grid struct {
	Family        string    `yaml:"family" json:"family"`
	MaxTokens     []int     `yaml:"maxTokens" json:"max_tokens,omitempty"`
	Neighbors     []int     `yaml:"neighbors" json:"neighbors,omitempty"`
	Alpha         []float64 `yaml:"alpha" json:"alpha,omitempty"`
	LearningRate  []float64 `yaml:"learningRate" json:"learning_rate,omitempty"`
	Trees         []int     `yaml:"trees" json:"trees,omitempty"`
	FeatureSample []int     `yaml:"featureSample" json:"feature_sample,omitempty"`
}

// DefaultGrids returns the built-in search spaces keyed by family.
func DefaultGrids() map[string]Grid {
	return map[string]Grid{
		classifier.FamilyKNN: {
			Family:    classifier.FamilyKNN,
			Neighbors: []int{50, 100, 150, 200, 250},
			MaxTokens: []int{50, 100, 150, 200, 250, 300, 350},
		},
		classifier.FamilyLasso: {
			Family:    classifier.FamilyLasso,
			Alpha:     []float64{1e-7, 1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1},
			MaxTokens: []int{200, 400, 600, 800, 1000},
		},
		classifier.FamilyGBT: {
			Family:        classifier.FamilyGBT,
			LearningRate:  []float64{1e-3, 1e-2, 1e-1},
			Trees:         []int{200, 400, 600, 800, 1000},
			FeatureSample: []int{10, 30, 100},
			MaxTokens:     []int{300},
		},
	}
}

// LoadRegistry overlays YAML grid files from dir onto the built-in defaults.
// An empty dir means defaults only. Each file defines one family.
func LoadRegistry(dir string) (map[string]Grid, error) {
	grids := DefaultGrids()
	if strings.TrimSpace(dir) == "" {
		return grids, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return grids, nil
		}
		return nil, fmt.Errorf("read grid dir %s: %w", dir, err)
	}
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read grid %s: %w", path, err)
		}
		var g Grid
		if err := yaml.Unmarshal(b, &g); err != nil {
			return nil, fmt.Errorf("parse grid %s: %w", path, err)
		}
		if g.Family == "" {
			return nil, fmt.Errorf("grid %s has no family", path)
		}
		grids[g.Family] = g
	}
	return grids, nil
}

// Combinations enumerates the cartesian product of all set knobs in a fixed
// order, so the same grid always produces the same trial sequence.
func (g Grid) Combinations() []classifier.Params {
	maxTokens := orInts(g.MaxTokens)
	neighbors := orInts(g.Neighbors)
	alphas := orFloats(g.Alpha)
	rates := orFloats(g.LearningRate)
	trees := orInts(g.Trees)
	samples := orInts(g.FeatureSample)

	var out []classifier.Params
	for _, mt := range maxTokens {
		for _, k := range neighbors {
			for _, a := range alphas {
				for _, lr := range rates {
					for _, tr := range trees {
						for _, fs := range samples {
							out = append(out, classifier.Params{
								MaxTokens:     mt,
								Neighbors:     k,
								Alpha:         a,
								LearningRate:  lr,
								Trees:         tr,
								FeatureSample: fs,
							})
						}
					}
				}
			}
		}
	}
	return out
}

func orInts(vals []int) []int {
	if len(vals) == 0 {
		return []int{0}
	}
	return vals
}

func orFloats(vals []float64) []float64 {
	if len(vals) == 0 {
		return []float64{0}
	}
	return vals
}
