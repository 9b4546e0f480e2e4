package sanitize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validation errors for path checks.
var (
	// ErrPathTraversal indicates a path resolves outside its allowed root.
	ErrPathTraversal = errors.New("path escapes allowed root")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// ConfinePath resolves path and checks that it stays within root.
//
// Relative paths are taken relative to root. Symlinks in both root and path
// are resolved before the check, so a link inside root cannot point out of
// it. Names that merely contain "..", such as "v1..2", are allowed. A path
// that does not exist yet is checked lexically. The resolved absolute path
// is returned.
func ConfinePath(path, root string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if root == "" {
		return "", fmt.Errorf("%w: no root configured", ErrPathTraversal)
	}

	absRoot, err := resolve(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed root: %w", err)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	absPath, err := resolve(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, path)
	}
	return absPath, nil
}

// resolve returns the absolute, symlink-free form of path. Missing paths
// fall back to the cleaned absolute path.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, os.ErrNotExist) {
		return abs, nil
	}
	if err != nil {
		return "", err
	}
	return resolved, nil
}
