package transformer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

const (
	configFile  = "config.json"
	vocabFile   = "vocab.json"
	weightsFile = "weights.json"
)

// tensorNames parallels Model.list.
var tensorNames = []string{
	"tok_emb", "pos_emb",
	"ln1_g", "ln1_b",
	"wq", "wk", "wv", "wo",
	"ln2_g", "ln2_b",
	"w1", "b1", "w2", "b2",
	"wc", "bc",
}

type tensorJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func (m *Model) tensorRefs() []**mat.Dense {
	return []**mat.Dense{
		&m.TokEmb, &m.PosEmb,
		&m.LN1G, &m.LN1B,
		&m.Wq, &m.Wk, &m.Wv, &m.Wo,
		&m.LN2G, &m.LN2B,
		&m.W1, &m.B1, &m.W2, &m.B2,
		&m.Wc, &m.Bc,
	}
}

// SaveDir writes config.json, vocab.json and weights.json into dir.
func (m *Model) SaveDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	cfg, err := json.MarshalIndent(m.Cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), cfg, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	vocab, err := json.Marshal(m.Vocab)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, vocabFile), vocab, 0o644); err != nil {
		return fmt.Errorf("write vocab: %w", err)
	}

	weights := make(map[string]tensorJSON, len(tensorNames))
	for i, p := range m.list() {
		r, c := p.Dims()
		weights[tensorNames[i]] = tensorJSON{
			Rows: r,
			Cols: c,
			Data: append([]float64(nil), p.RawMatrix().Data...),
		}
	}
	blob, err := json.Marshal(weights)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, weightsFile), blob, 0o644); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}

// LoadDir restores a model saved with SaveDir.
func LoadDir(dir string) (*Model, error) {
	cfgBlob, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(cfgBlob, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	vocabBlob, err := os.ReadFile(filepath.Join(dir, vocabFile))
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	vocab := map[string]int{}
	if err := json.Unmarshal(vocabBlob, &vocab); err != nil {
		return nil, fmt.Errorf("decode vocab: %w", err)
	}

	weightsBlob, err := os.ReadFile(filepath.Join(dir, weightsFile))
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	weights := map[string]tensorJSON{}
	if err := json.Unmarshal(weightsBlob, &weights); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}

	m := &Model{Cfg: cfg, Vocab: vocab}
	refs := m.tensorRefs()
	for i, name := range tensorNames {
		tj, ok := weights[name]
		if !ok {
			return nil, fmt.Errorf("weights missing tensor %s", name)
		}
		if len(tj.Data) != tj.Rows*tj.Cols {
			return nil, fmt.Errorf("tensor %s has %d values for %dx%d", name, len(tj.Data), tj.Rows, tj.Cols)
		}
		*refs[i] = mat.NewDense(tj.Rows, tj.Cols, tj.Data)
	}
	if r, _ := m.TokEmb.Dims(); r != m.vocabRows() {
		return nil, fmt.Errorf("embedding rows %d do not match vocabulary size %d", r, m.vocabRows())
	}
	return m, nil
}
