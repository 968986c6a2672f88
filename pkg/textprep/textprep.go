// Package textprep normalizes repository descriptions for vectorization.
package textprep

import (
	"regexp"
	"sort"
	"strings"
)

// symbolReplacer rewrites tech names whose punctuation would otherwise be
// stripped into distinct tokens.
var symbolReplacer = strings.NewReplacer(
	"c++", "cpp",
	"c#", "csharp",
	"f#", "fsharp",
	".net", "dotnet",
	"node.js", "nodejs",
	"vue.js", "vuejs",
	"react.js", "reactjs",
	"next.js", "nextjs",
	"objective-c", "objectivec",
	"asp.net", "aspnet",
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	nonWordPattern = regexp.MustCompile(`[^a-z0-9\s]`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// Clean lowercases a description, rewrites symbol-heavy tech names, strips
// URLs and punctuation, and collapses whitespace.
func Clean(s string) string {
	s = strings.ToLower(s)
	s = symbolReplacer.Replace(s)
	s = urlPattern.ReplaceAllString(s, " ")
	s = nonWordPattern.ReplaceAllString(s, " ")
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize cleans s and splits it into informative tokens. Stop words and
// single-rune tokens are dropped.
func Tokenize(s string) []string {
	cleaned := Clean(s)
	if cleaned == "" {
		return nil
	}
	fields := strings.Fields(cleaned)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopWords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// StopWords returns the stop-word list sorted, for vectorizers that take one.
func StopWords() []string {
	out := make([]string, 0, len(stopWords))
	for w := range stopWords {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// IsStopWord reports whether w is on the stop-word list.
func IsStopWord(w string) bool {
	return stopWords[w]
}
