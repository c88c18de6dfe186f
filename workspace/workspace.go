package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Path and file errors for the workspace boundary.
var (
	ErrPathEscape  = errors.New("path escapes workspace root")
	ErrInvalidPath = errors.New("invalid path")
	ErrNotFound    = errors.New("file not found")
	// ErrStaleTarget means an operation's target no longer matches the
	// workspace (e.g. a modify whose file vanished). The plan must be
	// re-presented or aborted, never silently coerced.
	ErrStaleTarget = errors.New("target is stale relative to the plan")
)

// Workspace scopes all file operations beneath a root directory.
type Workspace struct {
	root string
}

// New resolves and validates the root directory.
func New(root string) (*Workspace, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Resolve joins a relative path against the root and rejects anything that
// escapes it. "..." or "..foo" are valid names, not traversals.
func (w *Workspace) Resolve(relative string) (string, error) {
	if relative == "" || strings.ContainsRune(relative, '\x00') {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(relative) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, relative)
	}
	joined := filepath.Join(w.root, relative)
	rel, err := filepath.Rel(w.root, joined)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, relative)
	}
	if err := w.checkContainment(joined, relative); err != nil {
		return "", err
	}
	return joined, nil
}

// checkContainment resolves symlinks on the deepest existing ancestor of the
// path and rejects it when that lands outside the root. Lexical checks alone
// miss a symlink inside the root pointing out of it.
func (w *Workspace) checkContainment(path, relative string) error {
	rootReal, err := filepath.EvalSymlinks(w.root)
	if err != nil {
		return err
	}
	probe := path
	for {
		real, err := filepath.EvalSymlinks(probe)
		if err == nil {
			rel, rerr := filepath.Rel(rootReal, real)
			if rerr != nil {
				return rerr
			}
			if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return fmt.Errorf("%w: %s", ErrPathEscape, relative)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			return nil
		}
		probe = parent
	}
}

// Read returns the file's contents, mapping absence to ErrNotFound.
func (w *Workspace) Read(relative string) ([]byte, error) {
	path, err := w.Resolve(relative)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return nil, err
	}
	return data, nil
}

// Write stores content, creating parent directories as needed.
func (w *Workspace) Write(relative string, content []byte) error {
	path, err := w.Resolve(relative)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// Delete removes a file, mapping absence to ErrNotFound.
func (w *Workspace) Delete(relative string) error {
	path, err := w.Resolve(relative)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, relative)
		}
		return err
	}
	return nil
}

// Exists reports whether the path resolves to an existing regular file.
func (w *Workspace) Exists(relative string) bool {
	path, err := w.Resolve(relative)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
