// Package pathutil converts between absolute and workspace-relative paths.
//
// The core stores every path workspace-relative and forward-slash normalized
// (spec §3, FileRecord.path). Callers that work with absolute filesystem
// paths (a Walker, a CLI argument) convert at the boundary using this
// package rather than threading normalization logic through every component.
package pathutil

import (
	"path/filepath"
	"strings"
)

// Normalize converts an absolute path rooted at root into the workspace-
// relative, forward-slash form FileRecord.path requires. Paths already
// relative, or that fall outside root, are returned cleaned and
// slash-converted but otherwise unchanged.
func Normalize(absPath, root string) string {
	if absPath == "" || root == "" {
		return filepath.ToSlash(absPath)
	}

	if !filepath.IsAbs(absPath) {
		return filepath.ToSlash(filepath.Clean(absPath))
	}

	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)

	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return filepath.ToSlash(absPath)
	}

	if strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(absPath)
	}

	return filepath.ToSlash(rel)
}

// ToAbsolute resolves a workspace-relative path back to an absolute
// filesystem path for I/O performed outside the core (e.g. a Walker
// re-reading a file at a caller's request).
func ToAbsolute(relPath, root string) string {
	if filepath.IsAbs(relPath) {
		return filepath.Clean(relPath)
	}
	return filepath.Join(root, filepath.FromSlash(relPath))
}
