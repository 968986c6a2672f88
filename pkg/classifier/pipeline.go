package classifier

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ilnaes/github-analysis/pkg/feature"
)

// Pipeline binds a vectorizer to a model so raw description text goes in and
// class probabilities come out. Each family carries its own vectorizer
// because the token cap is a tuned hyperparameter.
type Pipeline struct {
	Family  string
	Params  Params
	Classes int
	Seed    int64
	Vec     *feature.Vectorizer
	Model   Model
}

// NewPipeline builds an unfitted pipeline for a family.
func NewPipeline(family string, p Params, classes int, seed int64) (*Pipeline, error) {
	model, err := New(family, p, classes, seed)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Family:  family,
		Params:  p,
		Classes: classes,
		Seed:    seed,
		Vec:     feature.NewVectorizer(p.MaxTokens),
		Model:   model,
	}, nil
}

// fresh returns an unfitted pipeline with the same configuration.
func (p *Pipeline) fresh() (*Pipeline, error) {
	return NewPipeline(p.Family, p.Params, p.Classes, p.Seed)
}

// Fit fits the vectorizer on the corpus and the model on its vectors.
func (p *Pipeline) Fit(corpus []string, y []int) error {
	X, err := p.Vec.FitTransform(corpus)
	if err != nil {
		return fmt.Errorf("%s vectorize: %w", p.Family, err)
	}
	if err := p.Model.Fit(X, y); err != nil {
		return fmt.Errorf("%s fit: %w", p.Family, err)
	}
	return nil
}

// Proba returns the class-probability matrix for texts.
func (p *Pipeline) Proba(texts []string) (*mat.Dense, error) {
	X, err := p.Vec.TransformAll(texts)
	if err != nil {
		return nil, fmt.Errorf("%s vectorize: %w", p.Family, err)
	}
	return p.Model.PredictProba(X)
}

// Predict returns the predicted class per text.
func (p *Pipeline) Predict(texts []string) ([]int, error) {
	P, err := p.Proba(texts)
	if err != nil {
		return nil, err
	}
	return probaToClasses(P), nil
}

// PredictText classifies a single description, returning the class id and
// the full probability row.
func (p *Pipeline) PredictText(text string) (int, []float64, error) {
	P, err := p.Proba([]string{text})
	if err != nil {
		return 0, nil, err
	}
	row := append([]float64(nil), P.RawRowView(0)...)
	return argmaxRow(row), row, nil
}

type pipelineJSON struct {
	Family     string              `json:"family"`
	Params     Params              `json:"params"`
	Classes    int                 `json:"classes"`
	Seed       int64               `json:"seed"`
	Vectorizer *feature.Vectorizer `json:"vectorizer"`
	Model      json.RawMessage     `json:"model"`
}

// MarshalJSON flattens the pipeline and its concrete model into one blob.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.Model)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pipelineJSON{
		Family:     p.Family,
		Params:     p.Params,
		Classes:    p.Classes,
		Seed:       p.Seed,
		Vectorizer: p.Vec,
		Model:      raw,
	})
}

// UnmarshalJSON restores the concrete model type from the family tag.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var pj pipelineJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	var model Model
	switch pj.Family {
	case FamilyKNN:
		model = &KNN{}
	case FamilyLasso:
		model = &Lasso{}
	case FamilyGBT:
		model = &GBT{}
	default:
		return fmt.Errorf("unknown model family %q", pj.Family)
	}
	if err := json.Unmarshal(pj.Model, model); err != nil {
		return fmt.Errorf("decode %s model: %w", pj.Family, err)
	}
	p.Family = pj.Family
	p.Params = pj.Params
	p.Classes = pj.Classes
	p.Seed = pj.Seed
	p.Vec = pj.Vectorizer
	p.Model = model
	return nil
}
