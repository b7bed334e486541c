package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/animus-coder/codesmith/internal/semantic"
)

const (
	CodeReaderName        = "code_reader"
	CodeReaderDescription = "this tool can read the contents of code files and return their results. " +
		"Use this when you need to read the contents of a file"
)

// maxSuggestions bounds the alternatives offered for a missing file.
const maxSuggestions = 3

// CodeReader reads staged source files for the agent.
type CodeReader struct {
	fs       *Filesystem
	semantic *semantic.Engine
}

// NewCodeReader builds the built-in reader over the staging filesystem.
func NewCodeReader(fsys *Filesystem) *CodeReader {
	return &CodeReader{fs: fsys, semantic: semantic.NewEngine(fsys, 0, 0)}
}

func (c *CodeReader) Name() string        { return CodeReaderName }
func (c *CodeReader) Description() string { return CodeReaderDescription }

// Call returns {"file_content": ...} or {"error": ...} as JSON. Read failures
// are reported in the payload so the agent can react to them.
func (c *CodeReader) Call(ctx context.Context, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := parseFileName(input)
	if name == "" {
		return encodeResult(map[string]interface{}{"error": "file_name is required"}), nil
	}

	content, err := c.fs.ReadFile(name)
	if err == nil {
		return encodeResult(map[string]interface{}{"file_content": content}), nil
	}

	out := map[string]interface{}{"error": err.Error()}
	if errors.Is(err, fs.ErrNotExist) {
		if similar := c.similar(name); len(similar) > 0 {
			out["suggestions"] = similar
		}
	}
	return encodeResult(out), nil
}

// similar offers staged files with resembling names, falling back to files
// whose content mentions the requested name.
func (c *CodeReader) similar(name string) []string {
	if byName, err := c.semantic.Suggest(name, maxSuggestions); err == nil && len(byName) > 0 {
		return byName
	}
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	hits, err := c.semantic.Search(stem, maxSuggestions)
	if err != nil {
		return nil
	}
	paths := make([]string, 0, len(hits))
	for _, h := range hits {
		paths = append(paths, h.Path)
	}
	return paths
}

// parseFileName accepts a bare name, a quoted name, "file_name=<name>",
// "file_name: <name>" or a JSON object with a file_name field.
func parseFileName(input string) string {
	s := strings.TrimSpace(input)
	if strings.HasPrefix(s, "{") {
		var args struct {
			FileName string `json:"file_name"`
			Path     string `json:"path"`
		}
		if err := json.Unmarshal([]byte(s), &args); err == nil {
			if args.FileName != "" {
				return strings.TrimSpace(args.FileName)
			}
			return strings.TrimSpace(args.Path)
		}
	}
	for _, prefix := range []string{"file_name=", "file_name:"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	return strings.TrimSpace(strings.Trim(s, "\"'`"))
}

func encodeResult(v map[string]interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"encode result"}`
	}
	return string(b)
}
