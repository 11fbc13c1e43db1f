package indexing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StatusState is the state field of indexing.status (spec §6).
type StatusState string

const (
	StatusRunning   StatusState = "running"
	StatusCompleted StatusState = "completed"
	StatusFailed    StatusState = "failed"
)

// Status is the human+machine-readable JSON record written incrementally
// during long builds, at <cache_root>/indexing.status.
type Status struct {
	State          StatusState `json:"state"`
	TotalFiles     int         `json:"total_files"`
	ProcessedFiles int         `json:"processed_files"`
	CachedFiles    int         `json:"cached_files"`
	ParsedFiles    int         `json:"parsed_files"`
	FailedFiles    int         `json:"failed_files"`
	StartedAt      time.Time   `json:"started_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// StatusWriter persists Status to disk, overwriting the prior snapshot on
// every update so a concurrent reader always sees a complete JSON document.
type StatusWriter struct {
	mu     sync.Mutex
	path   string
	status Status
}

// NewStatusWriter starts a fresh running status at cacheRoot/indexing.status.
func NewStatusWriter(cacheRoot string, totalFiles int) *StatusWriter {
	now := time.Now().UTC()
	return &StatusWriter{
		path: filepath.Join(cacheRoot, "indexing.status"),
		status: Status{
			State:      StatusRunning,
			TotalFiles: totalFiles,
			StartedAt:  now,
			UpdatedAt:  now,
		},
	}
}

// Update mutates the in-memory status under lock via fn, then persists it.
func (w *StatusWriter) Update(fn func(*Status)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.status)
	w.status.UpdatedAt = time.Now().UTC()
	return w.writeLocked()
}

// Complete marks the run completed (or failed, if errMsg is non-empty) and
// persists the final snapshot.
func (w *StatusWriter) Complete(errMsg string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	w.status.UpdatedAt = now
	w.status.CompletedAt = &now
	if errMsg != "" {
		w.status.State = StatusFailed
		w.status.Error = errMsg
	} else {
		w.status.State = StatusCompleted
	}
	return w.writeLocked()
}

// ReadStatus loads the indexing.status snapshot at cacheRoot, for a Query
// Engine deciding whether a cache is fresh, stale, or mid-build. It returns
// (nil, nil) if the file doesn't exist, so a cache without a status file is
// not treated as an error.
func ReadStatus(cacheRoot string) (*Status, error) {
	data, err := os.ReadFile(filepath.Join(cacheRoot, "indexing.status"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (w *StatusWriter) writeLocked() error {
	data, err := json.MarshalIndent(w.status, "", "  ")
	if err != nil {
		return err
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.path)
}
