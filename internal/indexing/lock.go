package indexing

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
)

// WorkspaceLock is the exclusive writer lock named indexing.lock in
// <cache_root> (spec §6). Acquisition is fail-fast: a held lock returns a
// LockHeldError immediately rather than retrying, since a concurrent
// indexer process means the caller's run would conflict, not merely
// contend.
type WorkspaceLock struct {
	path string
}

// NewWorkspaceLock names the lock file under cacheRoot.
func NewWorkspaceLock(cacheRoot string) *WorkspaceLock {
	return &WorkspaceLock{path: fmt.Sprintf("%s/indexing.lock", cacheRoot)}
}

// Acquire creates the lock file exclusively, recording this process's pid.
// If the file already exists, Acquire reads the pid inside it and returns a
// LockHeldError naming it — unless the recorded process is no longer
// running, in which case the stale lock is reclaimed.
func (l *WorkspaceLock) Acquire() (func(), error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, rcerrors.NewIoError("create", l.path, err)
		}
		return l.handleExisting()
	}
	defer f.Close()

	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		os.Remove(l.path)
		return nil, rcerrors.NewIoError("write", l.path, err)
	}

	return func() { os.Remove(l.path) }, nil
}

func (l *WorkspaceLock) handleExisting() (func(), error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, rcerrors.NewIoError("read", l.path, err)
	}
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr == nil && !processAlive(pid) {
		os.Remove(l.path)
		return l.Acquire()
	}

	return nil, rcerrors.NewLockHeldError(pid, l.path)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; signal 0 probes liveness
	// without actually sending a signal.
	return proc.Signal(syscall.Signal(0)) == nil
}
