// Package feature turns repository descriptions into TF-IDF vectors.
package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"

	"github.com/ilnaes/github-analysis/pkg/textprep"
)

// Vectorizer fits a capped TF-IDF vocabulary over tokenized descriptions.
// Every fitted field is exported so vectorizers persist inside model blobs.
type Vectorizer struct {
	MaxTokens int            `json:"max_tokens"`
	Vocab     map[string]int `json:"vocab"`
	IDF       []float64      `json:"idf"`
	Docs      int            `json:"docs"`
}

// NewVectorizer returns an unfitted vectorizer with the given vocabulary cap.
func NewVectorizer(maxTokens int) *Vectorizer {
	return &Vectorizer{MaxTokens: maxTokens}
}

// Fit selects the MaxTokens highest-document-frequency terms of the corpus,
// assigns vocabulary indices, and computes smooth IDF weights. Term selection
// breaks frequency ties lexicographically so a fit is deterministic.
func (v *Vectorizer) Fit(corpus []string) error {
	if len(corpus) == 0 {
		return errors.New("fit on empty corpus")
	}

	docTokens := make([][]string, len(corpus))
	df := make(map[string]int)
	for i, doc := range corpus {
		toks := textprep.Tokenize(doc)
		docTokens[i] = toks
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	if len(df) == 0 {
		return errors.New("empty vocabulary: corpus has no usable tokens")
	}

	terms := make([]string, 0, len(df))
	for t := range df {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	limit := v.MaxTokens
	if limit <= 0 || limit > len(terms) {
		limit = len(terms)
	}
	allow := make(map[string]bool, limit)
	for _, t := range terms[:limit] {
		allow[t] = true
	}

	filtered := make([]string, len(docTokens))
	for i, toks := range docTokens {
		kept := make([]string, 0, len(toks))
		for _, t := range toks {
			if allow[t] {
				kept = append(kept, t)
			}
		}
		filtered[i] = strings.Join(kept, " ")
	}

	vectoriser := nlp.NewCountVectoriser(textprep.StopWords()...)
	vectoriser.Fit(filtered...)

	// The vectoriser's own tokenizer may split alphanumeric terms differently;
	// keeping only allow-listed terms holds the vocabulary at or under the cap.
	type termIndex struct {
		term string
		idx  int
	}
	kept := make([]termIndex, 0, len(vectoriser.Vocabulary))
	for term, idx := range vectoriser.Vocabulary {
		if allow[term] {
			kept = append(kept, termIndex{term, idx})
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].idx < kept[j].idx })

	v.Vocab = make(map[string]int, len(kept))
	for i, e := range kept {
		v.Vocab[e.term] = i
	}
	if len(v.Vocab) == 0 {
		return errors.New("empty vocabulary: corpus has no usable tokens")
	}

	v.Docs = len(corpus)
	v.IDF = make([]float64, len(v.Vocab))
	for term, idx := range v.Vocab {
		v.IDF[idx] = math.Log(float64(1+v.Docs)/float64(1+df[term])) + 1
	}
	return nil
}

// Dim returns the fitted vocabulary size.
func (v *Vectorizer) Dim() int { return len(v.IDF) }

// Transform maps one description to an L2-normalized TF-IDF vector.
// Out-of-vocabulary tokens are ignored.
func (v *Vectorizer) Transform(text string) []float64 {
	vec := make([]float64, v.Dim())
	if v.Dim() == 0 {
		return vec
	}
	for _, t := range textprep.Tokenize(text) {
		if idx, ok := v.Vocab[t]; ok {
			vec[idx]++
		}
	}
	var norm float64
	for i, tf := range vec {
		vec[i] = tf * v.IDF[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// TransformAll maps a corpus to a dense row-per-document matrix.
func (v *Vectorizer) TransformAll(corpus []string) (*mat.Dense, error) {
	if v.Dim() == 0 {
		return nil, errors.New("vectorizer is not fitted")
	}
	if len(corpus) == 0 {
		return nil, errors.New("transform on empty corpus")
	}
	X := mat.NewDense(len(corpus), v.Dim(), nil)
	for i, doc := range corpus {
		X.SetRow(i, v.Transform(doc))
	}
	return X, nil
}

// FitTransform fits the vectorizer and returns the training matrix.
func (v *Vectorizer) FitTransform(corpus []string) (*mat.Dense, error) {
	if err := v.Fit(corpus); err != nil {
		return nil, fmt.Errorf("fit vectorizer: %w", err)
	}
	return v.TransformAll(corpus)
}
