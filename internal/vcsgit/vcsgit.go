// Package vcsgit is a minimal git-backed interfaces.Vcs collaborator:
// branch name, commit hash, and dirty flag for the workspace root.
package vcsgit

import (
	"bytes"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/reflexcore/internal/types"
)

// Vcs shells out to git to report repository state. It holds no state, so
// New and the zero value behave the same.
type Vcs struct{}

// New returns a git-backed Vcs collaborator.
func New() *Vcs { return &Vcs{} }

// State reports (branch, commit, dirty) for root, or ok=false if root is
// not inside a git repository.
func (v *Vcs) State(root string) (types.VcsState, bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return types.VcsState{}, false, err
	}

	if !v.isGitRepo(absRoot) {
		return types.VcsState{}, false, nil
	}

	branch, err := v.run(absRoot, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return types.VcsState{}, false, nil
	}
	commit, err := v.run(absRoot, "rev-parse", "HEAD")
	if err != nil {
		commit = types.UnknownCommit
	}
	dirty := v.isDirty(absRoot)

	return types.VcsState{Branch: branch, Commit: commit, Dirty: dirty}, true, nil
}

func (v *Vcs) isGitRepo(root string) bool {
	_, err := v.run(root, "rev-parse", "--is-inside-work-tree")
	return err == nil
}

func (v *Vcs) isDirty(root string) bool {
	out, err := v.run(root, "status", "--porcelain")
	if err != nil {
		return false
	}
	return out != ""
}

func (v *Vcs) run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}
