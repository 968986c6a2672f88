package textprep

import (
	"reflect"
	"testing"
)

func TestClean(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A Fast C++ JSON Parser!", "a fast cpp json parser"},
		{"Node.js bindings for SQLite", "nodejs bindings for sqlite"},
		{"see https://example.com/docs for details", "see for details"},
		{"  spaced\t\nout  ", "spaced out"},
		{"C# / F# interop", "csharp fsharp interop"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Clean(c.in); got != c.want {
			t.Errorf("Clean(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("A tiny web framework for the Go programming language")
	want := []string{"tiny", "web", "framework", "go", "programming", "language"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenizeDropsShortAndStopWords(t *testing.T) {
	for _, tok := range Tokenize("it is a x y z of the I") {
		t.Errorf("unexpected surviving token %q", tok)
	}
	if toks := Tokenize(""); toks != nil {
		t.Errorf("empty input should yield nil, got %v", toks)
	}
}

func TestGoSurvivesStopList(t *testing.T) {
	if IsStopWord("go") {
		t.Fatal("go must not be a stop word")
	}
	toks := Tokenize("written in go")
	if !reflect.DeepEqual(toks, []string{"written", "go"}) {
		t.Errorf("Tokenize = %v", toks)
	}
}

func TestStopWordsSorted(t *testing.T) {
	words := StopWords()
	if len(words) == 0 {
		t.Fatal("stop-word list is empty")
	}
	for i := 1; i < len(words); i++ {
		if words[i-1] >= words[i] {
			t.Fatalf("stop words not sorted at %d: %q >= %q", i, words[i-1], words[i])
		}
	}
}
