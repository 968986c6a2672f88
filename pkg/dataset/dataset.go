// Package dataset loads and prepares the repository-metadata CSV.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Repo is one repository row from the input CSV.
type Repo struct {
	FullName    string
	Description string
	Language    string
	Stars       int
	Size        int
	License     string
	Owner       string
	OpenIssues  int
	CreatedAt   time.Time
}

// LoadStats counts what happened to the rows of a CSV load.
type LoadStats struct {
	Rows           int
	Kept           int
	SkippedBadRow  int
	SkippedMissing int
}

// LoadCSV reads repository rows from path. Columns are addressed by header
// name, extra columns are ignored, and rows without a usable description or
// language are skipped rather than failing the load.
func LoadCSV(path string) ([]Repo, LoadStats, error) {
	var stats LoadStats

	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"description", "language"} {
		if _, ok := idx[required]; !ok {
			return nil, stats, fmt.Errorf("dataset missing required column %q", required)
		}
	}

	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var repos []Repo
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.SkippedBadRow++
			continue
		}
		stats.Rows++

		desc := col(rec, "description")
		lang := col(rec, "language")
		if desc == "" || lang == "" || strings.EqualFold(desc, "nan") {
			stats.SkippedMissing++
			continue
		}

		repos = append(repos, Repo{
			FullName:    col(rec, "full_name"),
			Description: desc,
			Language:    lang,
			Stars:       parseInt(col(rec, "stars")),
			Size:        parseInt(col(rec, "size")),
			License:     col(rec, "license"),
			Owner:       col(rec, "owner"),
			OpenIssues:  parseInt(col(rec, "open_issues_count")),
			CreatedAt:   parseTime(col(rec, "created_at")),
		})
		stats.Kept++
	}
	return repos, stats, nil
}

// LabelDistribution counts rows per language.
func LabelDistribution(repos []Repo) map[string]int {
	dist := make(map[string]int)
	for _, r := range repos {
		dist[r.Language]++
	}
	return dist
}

// Descriptions returns the raw description column.
func Descriptions(repos []Repo) []string {
	out := make([]string, len(repos))
	for i, r := range repos {
		out[i] = r.Description
	}
	return out
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
