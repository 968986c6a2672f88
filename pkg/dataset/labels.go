package dataset

import "sort"

// OtherLabel absorbs every language outside the configured top set.
const OtherLabel = "Other"

// LabelEncoder maps language names to contiguous class ids. Classes is the
// full fitted label set; its order is part of every saved model artifact.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// FitLabels ranks languages by frequency and keeps the top topN as classes.
// Remaining languages collapse into OtherLabel. Ties rank lexicographically
// so a fit is deterministic.
func FitLabels(repos []Repo, topN int) *LabelEncoder {
	dist := LabelDistribution(repos)
	names := make([]string, 0, len(dist))
	for name := range dist {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if dist[names[i]] != dist[names[j]] {
			return dist[names[i]] > dist[names[j]]
		}
		return names[i] < names[j]
	})

	if topN <= 0 || topN > len(names) {
		topN = len(names)
	}
	classes := make([]string, topN, topN+1)
	copy(classes, names[:topN])
	if len(names) > topN {
		classes = append(classes, OtherLabel)
	}
	return &LabelEncoder{Classes: classes}
}

// NumClasses returns the size of the label set.
func (e *LabelEncoder) NumClasses() int { return len(e.Classes) }

// ID returns the class id for a language, falling back to the Other class
// when the language is not in the fitted set. It returns -1 only when the
// encoder has no Other class and the language is unknown.
func (e *LabelEncoder) ID(language string) int {
	other := -1
	for i, c := range e.Classes {
		if c == language {
			return i
		}
		if c == OtherLabel {
			other = i
		}
	}
	return other
}

// Name returns the language for a class id.
func (e *LabelEncoder) Name(id int) string {
	if id < 0 || id >= len(e.Classes) {
		return ""
	}
	return e.Classes[id]
}

// Encode maps every repo to its class id.
func (e *LabelEncoder) Encode(repos []Repo) []int {
	ids := make([]int, len(repos))
	for i, r := range repos {
		ids[i] = e.ID(r.Language)
	}
	return ids
}
