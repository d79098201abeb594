// Package pathutil implements the path-sanitization contract every
// untrusted path (package archive, repository, user input) must pass
// through before the engine uses it. The checks run unconditionally, even
// when the path comes from a signed source.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned for the empty path.
var ErrEmptyPath = errors.New("pathutil: empty path")

// ErrPathTraversal is returned when a path contains a parent-directory
// component after cleaning.
var ErrPathTraversal = errors.New("pathutil: path traversal")

// ErrInvalidFilename is returned when a filename contains a path separator.
var ErrInvalidFilename = errors.New("pathutil: filename must be a single component")

// ErrOutsideRoot is returned when a joined path resolves outside its root.
var ErrOutsideRoot = errors.New("pathutil: path escapes install root")

// Sanitize strips leading separators to force relativity, skips
// current-directory components, and rejects any path containing a
// parent-directory component or the empty path. It returns the cleaned,
// root-relative path.
//
// Sanitize("") -> error
// Sanitize("/") -> error
// Sanitize("./") -> error
// Sanitize("/..") -> error
// Sanitize("foo/../../bar") -> error
// Sanitize("/usr/bin/x") -> "usr/bin/x"
// Sanitize("./a/./b") -> "a/b"
func Sanitize(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}

	// Strip leading separators to force relativity before cleaning, so
	// filepath.Clean can't resolve a leading ".." against a root we don't
	// control.
	trimmed := strings.TrimLeft(p, "/")

	cleaned := filepath.Clean(trimmed)
	cleaned = filepath.ToSlash(cleaned)

	if cleaned == "." {
		return "", ErrEmptyPath
	}

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
	}

	if strings.HasPrefix(cleaned, "/") {
		// Clean can reintroduce a leading slash only if trimmed was all
		// separators; already excluded by the "." case above, but guard
		// defensively.
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, p)
	}

	return cleaned, nil
}

// SafeJoin sanitizes p and joins it to root, verifying the result is
// still under root after resolving symlinks in its existing parent
// directories where possible. It never returns a path outside root.
func SafeJoin(root, p string) (string, error) {
	clean, err := Sanitize(p)
	if err != nil {
		return "", err
	}

	joined := filepath.Join(root, clean)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("pathutil: resolve root: %w", err)
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("pathutil: resolve joined path: %w", err)
	}

	rel, err := filepath.Rel(absRoot, absJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q under %q", ErrOutsideRoot, p, root)
	}

	// If the root already exists on disk, resolve symlinks in the deepest
	// existing ancestor of the joined path's parent directory to defend
	// against a component of the joined path being a symlink that
	// escapes root. The final component itself is not followed.
	if resolvedRoot, err := filepath.EvalSymlinks(absRoot); err == nil {
		existing := filepath.Dir(absJoined)
		for existing != absRoot {
			if _, err := os.Lstat(existing); err == nil {
				break
			}
			existing = filepath.Dir(existing)
		}
		resolved, err := filepath.EvalSymlinks(existing)
		if err != nil {
			return "", fmt.Errorf("%w: %q under %q", ErrOutsideRoot, p, root)
		}
		rel2, err := filepath.Rel(resolvedRoot, resolved)
		if err != nil || rel2 == ".." || strings.HasPrefix(rel2, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: %q under %q", ErrOutsideRoot, p, root)
		}
	}

	return joined, nil
}

// SanitizeFilename validates that name is a single path component: no
// separators, no parent-directory reference, not empty.
func SanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	return name, nil
}
