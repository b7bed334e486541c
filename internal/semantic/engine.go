package semantic

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// FileWalker abstracts file traversal and reading.
type FileWalker interface {
	WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error
	ReadFile(path string) (string, error)
}

// Engine ranks staged files against a free-text query or a file name.
type Engine struct {
	fs           FileWalker
	maxFiles     int
	maxFileBytes int
}

// Result captures a ranked file.
type Result struct {
	Path    string
	Score   float64
	Snippet string
}

// NewEngine constructs an engine over the provided walker.
func NewEngine(fw FileWalker, maxFiles int, maxFileBytes int) *Engine {
	if maxFiles <= 0 {
		maxFiles = 200
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 64 * 1024
	}
	return &Engine{fs: fw, maxFiles: maxFiles, maxFileBytes: maxFileBytes}
}

// Search returns top files ranked by token overlap with the query.
// Matches in the file name weigh twice as much as matches in the content.
func (e *Engine) Search(query string, limit int) ([]Result, error) {
	if e == nil || e.fs == nil {
		return nil, fmt.Errorf("semantic engine unavailable")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 5
	}

	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil, fmt.Errorf("query too short")
	}

	var results []Result
	err := e.fs.WalkFiles(".", e.maxFiles, func(rel string, info fs.DirEntry) error {
		if info.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		content, err := e.fs.ReadFile(rel)
		if err != nil {
			return nil
		}
		if len(content) > e.maxFileBytes {
			content = content[:e.maxFileBytes]
		}
		score := 2*overlapScore(qTokens, tokenize(rel)) + overlapScore(qTokens, tokenize(content))
		if score <= 0 {
			return nil
		}
		results = append(results, Result{Path: rel, Score: score, Snippet: summarize(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	rank(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Suggest returns staged paths whose names resemble name, best first.
// It is used when a requested file does not exist.
func (e *Engine) Suggest(name string, limit int) ([]string, error) {
	if e == nil || e.fs == nil {
		return nil, fmt.Errorf("semantic engine unavailable")
	}
	if limit <= 0 {
		limit = 3
	}
	want := strings.ToLower(filepath.Base(name))
	wantTokens := tokenize(want)

	var results []Result
	err := e.fs.WalkFiles(".", e.maxFiles, func(rel string, info fs.DirEntry) error {
		base := strings.ToLower(filepath.Base(rel))
		score := overlapScore(wantTokens, tokenize(base))
		if strings.Contains(base, want) || strings.Contains(want, base) {
			score += 1
		}
		if strings.EqualFold(filepath.Ext(base), filepath.Ext(want)) && filepath.Ext(want) != "" {
			score += 0.25
		}
		if score > 0.25 {
			results = append(results, Result{Path: rel, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rank(results)
	out := make([]string, 0, limit)
	for _, r := range results {
		if len(out) == limit {
			break
		}
		out = append(out, r.Path)
	}
	return out, nil
}

func rank(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Path < results[j].Path
		}
		return results[i].Score > results[j].Score
	})
}

func overlapScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var overlap int
	for _, q := range query {
		if _, ok := seen[q]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(query))
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

func tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

func summarize(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if len(trim) > 200 {
			return trim[:200] + "..."
		}
		return trim
	}
	return ""
}
