package tools

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("file too large")

// Filesystem provides file operations rooted at a staging directory.
type Filesystem struct {
	guard      *PathGuard
	allowWrite bool
}

// NewFilesystem builds a filesystem rooted at baseDir, creating it if needed.
func NewFilesystem(baseDir string, allowWrite bool) (*Filesystem, error) {
	guard, err := NewPathGuard(baseDir)
	if err != nil {
		return nil, err
	}
	if allowWrite {
		if err := os.MkdirAll(guard.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", guard.BaseDir, err)
		}
	}
	return &Filesystem{guard: guard, allowWrite: allowWrite}, nil
}

// BaseDir returns the absolute root.
func (f *Filesystem) BaseDir() string {
	return f.guard.BaseDir
}

// Resolve returns the absolute path of a relative path inside the root.
func (f *Filesystem) Resolve(path string) (string, error) {
	return f.guard.Resolve(path)
}

// ReadFile returns file contents as string.
func (f *Filesystem) ReadFile(path string) (string, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile stores r under path, refusing payloads larger than maxBytes (0 = unlimited).
func (f *Filesystem) WriteFile(path string, r io.Reader, maxBytes int64) (string, error) {
	if !f.allowWrite {
		return "", errors.New("write is disabled by configuration")
	}
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", err
	}

	out, err := os.Create(resolved)
	if err != nil {
		return "", err
	}
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = fmt.Errorf("%s exceeds %d bytes: %w", filepath.Base(path), maxBytes, ErrTooLarge)
	}
	if err != nil {
		_ = os.Remove(resolved)
		return "", err
	}
	return resolved, nil
}

// Stat returns file info for a path inside the guard.
func (f *Filesystem) Stat(path string) (fs.FileInfo, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(resolved)
}

// WalkFiles walks files under root and invokes fn with relative path and entry.
// A missing root is treated as empty.
func (f *Filesystem) WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error {
	if fn == nil {
		return fmt.Errorf("fn is required")
	}
	resolved, err := f.guard.Resolve(root)
	if err != nil {
		return err
	}
	if _, err := os.Stat(resolved); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	count := 0
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if maxFiles > 0 && count >= maxFiles {
			return fs.SkipAll
		}
		rel, _ := filepath.Rel(f.guard.BaseDir, path)
		count++
		return fn(filepath.ToSlash(rel), d)
	})
	if errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}
