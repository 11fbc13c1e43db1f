// Package interfaces defines the external collaborator contracts the core
// consumes but does not implement: file-system walking, source parsing,
// and version-control introspection (spec §6).
package interfaces

import (
	"context"

	"github.com/standardbeagle/reflexcore/internal/types"
)

// Walker yields candidate file paths under root, already filtered by
// whatever ignore rules the caller configured (e.g. .gitignore).
type Walker interface {
	Iter(ctx context.Context, root string) (<-chan string, error)
}

// Parser extracts symbols from a single file's source. Implementations are
// keyed by language; the core treats a Parser failure as a per-file, logged
// and skipped event rather than aborting the index run.
type Parser interface {
	Parse(path string, source []byte, language string) ([]types.Symbol, error)
}

// Vcs reports the current (branch, commit, dirty) state of root, or no
// state if root isn't under version control. A nil Vcs is equivalent to
// one that always returns no state.
type Vcs interface {
	State(root string) (types.VcsState, bool, error)
}
