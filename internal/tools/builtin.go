package tools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrOutsideWorkspace is returned for absolute paths or paths that climb out
// of the workspace root.
var ErrOutsideWorkspace = errors.New("path escapes workspace")

// cleanPath validates a workspace-relative path.
func cleanPath(p string) (string, error) {
	if p == "" {
		return "", errors.New("'path' parameter is required")
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return clean, nil
}

// ReadFile returns the contents of a workspace file.
type ReadFile struct {
	name string
	fs   afero.Fs
}

func (t *ReadFile) Name() string        { return t.name }
func (t *ReadFile) Description() string { return "Read the text contents of a file within the workspace." }

func (t *ReadFile) Run(ctx context.Context, req Request) (string, error) {
	path, err := cleanPath(req.Params["path"])
	if err != nil {
		return "", err
	}

	info, err := t.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("expected a file but got directory: %s", path)
	}

	data, err := afero.ReadFile(t.fs, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes text content to a workspace file, creating parent
// directories as needed.
type WriteFile struct {
	name  string
	fs    afero.Fs
	locks *PathLocker
}

func (t *WriteFile) Name() string        { return t.name }
func (t *WriteFile) Description() string { return "Write text content to a file inside the workspace." }

func (t *WriteFile) Run(ctx context.Context, req Request) (string, error) {
	path, err := cleanPath(req.Params["path"])
	if err != nil {
		return "", err
	}
	content, ok := req.Params["content"]
	if !ok {
		return "", errors.New("'content' parameter is required")
	}

	t.locks.Lock(path)
	defer t.locks.Unlock(path)

	if dir := filepath.Dir(path); dir != "." {
		if err := t.fs.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(t.fs, path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("Wrote %d characters to %s", len([]rune(content)), path), nil
}

// ListDir lists the entries of a workspace directory, sorted by name.
type ListDir struct {
	name string
	fs   afero.Fs
}

func (t *ListDir) Name() string        { return t.name }
func (t *ListDir) Description() string { return "List directory entries for a given path." }

func (t *ListDir) Run(ctx context.Context, req Request) (string, error) {
	p := req.Params["path"]
	if p == "" {
		p = "."
	}
	path, err := cleanPath(p)
	if err != nil {
		return "", err
	}

	info, err := t.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", path)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("expected a directory but received: %s", path)
	}

	entries, err := afero.ReadDir(t.fs, path)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return strings.Join(names, "\n"), nil
}

// searchSnippetLimit bounds the synthesised search result.
const searchSnippetLimit = 180

// WebSearch is a deterministic offline stand-in for a search backend.
type WebSearch struct {
	name string
}

func (t *WebSearch) Name() string        { return t.name }
func (t *WebSearch) Description() string { return "Look up facts from a curated offline index." }

func (t *WebSearch) Run(ctx context.Context, req Request) (string, error) {
	query := req.Params["query"]
	if query == "" {
		query = req.Task
	}
	if strings.TrimSpace(query) == "" {
		return "", errors.New("'query' parameter is required")
	}

	snippet := fmt.Sprintf("Synthesised search results for '%s' in relation to goal '%s'.", query, req.Goal)
	return shorten(snippet, searchSnippetLimit), nil
}

// shorten truncates s to at most width runes, ending in "..." when cut.
func shorten(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
