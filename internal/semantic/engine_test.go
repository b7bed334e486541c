package semantic

import (
	"io/fs"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchPrefersNameMatches(t *testing.T) {
	fw := &fakeWalker{files: map[string]string{
		"parser.py":  "def parse(tokens): pass",
		"helpers.py": "# used by the parser\ndef helper(): pass",
		"readme.md":  "nothing relevant",
	}}

	res, err := NewEngine(fw, 10, 1024).Search("parser", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "parser.py", res[0].Path)
	require.Equal(t, "helpers.py", res[1].Path)
	require.Greater(t, res[0].Score, res[1].Score)
	require.Equal(t, "# used by the parser", res[1].Snippet)
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := NewEngine(&fakeWalker{}, 0, 0).Search("  ", 3)
	require.ErrorContains(t, err, "query is required")
}

func TestSuggestSimilarNames(t *testing.T) {
	fw := &fakeWalker{files: map[string]string{
		"test.py":        "",
		"test_utils.py":  "",
		"notes.txt":      "",
		"deep/report.md": "",
	}}

	got, err := NewEngine(fw, 10, 1024).Suggest("tests.py", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"test.py", "test_utils.py"}, got)

	got, err = NewEngine(fw, 10, 1024).Suggest("report", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"deep/report.md"}, got)
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	_, err := e.Suggest("x", 1)
	require.Error(t, err)
}

type fakeWalker struct {
	files map[string]string
}

func (f *fakeWalker) WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error {
	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for i, p := range paths {
		if maxFiles > 0 && i >= maxFiles {
			break
		}
		if err := fn(p, fakeEntry{name: p}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeWalker) ReadFile(path string) (string, error) {
	return f.files[path], nil
}

type fakeEntry struct {
	name string
}

func (f fakeEntry) Name() string               { return f.name }
func (f fakeEntry) IsDir() bool                { return false }
func (f fakeEntry) Type() fs.FileMode          { return 0 }
func (f fakeEntry) Info() (fs.FileInfo, error) { return nil, nil }
