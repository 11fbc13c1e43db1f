// Package config loads and validates config.toml (spec §6), the
// human-editable settings that tune an Indexer/query engine without
// touching code. The layered Config struct + Validate pattern mirrors the
// teacher's internal/config package; the file format is TOML rather than
// the teacher's KDL since the spec names config.toml explicitly.
package config

import (
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"

	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// Index controls how the Indexer (C7) walks and builds a workspace.
type Index struct {
	WorkerFraction          float64  `toml:"worker_fraction"`
	LargeWorkspaceThreshold int      `toml:"large_workspace_threshold"`
	BatchFlushThreshold     int      `toml:"batch_flush_threshold"`
	WatchMode               bool     `toml:"watch_mode"`
	WatchDebounceMs         int      `toml:"watch_debounce_ms"`
	Exclude                 []string `toml:"exclude"`
}

// Search controls default behavior of the Query Engine (C8) when a caller
// omits an optional filter.
type Search struct {
	DefaultContextLines int `toml:"default_context_lines"`
	MaxContextLines     int `toml:"max_context_lines"`
	DefaultLimit        int `toml:"default_limit"`
	TimeoutSecs         int `toml:"timeout_secs"`
}

// Project names the workspace root and the branch sentinel used when no
// Vcs collaborator is wired.
type Project struct {
	Root          string `toml:"root"`
	DefaultBranch string `toml:"default_branch"`
}

// Config is the full config.toml schema.
type Config struct {
	Version int     `toml:"version"`
	Project Project `toml:"project"`
	Index   Index   `toml:"index"`
	Search  Search  `toml:"search"`
}

// Default returns a Config populated with the values the rest of the
// package uses when config.toml is absent.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Version: 1,
		Project: Project{
			Root:          cwd,
			DefaultBranch: types.DefaultBranch,
		},
		Index: Index{
			WorkerFraction:          0.275,
			LargeWorkspaceThreshold: 20_000,
			BatchFlushThreshold:     2_000_000,
			WatchMode:               false,
			WatchDebounceMs:         300,
			Exclude: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/vendor/**",
				"**/target/**",
				"**/dist/**",
				"**/build/**",
			},
		},
		Search: Search{
			DefaultContextLines: 2,
			MaxContextLines:     50,
			DefaultLimit:        50,
			TimeoutSecs:         5,
		},
	}
}

// Load reads config.toml at path, falling back to Default() if the file
// does not exist. A present-but-malformed file is always an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, validate(cfg)
		}
		return nil, rcerrors.NewIoError("read", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, rcerrors.NewConfigError("toml", "", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Project.Root == "" {
		return rcerrors.NewConfigError("project", "root", errEmpty)
	}
	if cfg.Project.DefaultBranch == "" {
		cfg.Project.DefaultBranch = types.DefaultBranch
	}

	if cfg.Index.WorkerFraction <= 0 || cfg.Index.WorkerFraction > 1 {
		return rcerrors.NewConfigError("index", "worker_fraction", errFraction)
	}
	if cfg.Index.LargeWorkspaceThreshold <= 0 {
		return rcerrors.NewConfigError("index", "large_workspace_threshold", errPositive)
	}
	if cfg.Index.BatchFlushThreshold <= 0 {
		return rcerrors.NewConfigError("index", "batch_flush_threshold", errPositive)
	}

	if cfg.Search.DefaultContextLines < 0 {
		return rcerrors.NewConfigError("search", "default_context_lines", errNonNegative)
	}
	if cfg.Search.MaxContextLines < cfg.Search.DefaultContextLines {
		return rcerrors.NewConfigError("search", "max_context_lines", errLessThanDefault)
	}
	if cfg.Search.DefaultLimit <= 0 {
		return rcerrors.NewConfigError("search", "default_limit", errPositive)
	}
	if cfg.Search.TimeoutSecs <= 0 {
		return rcerrors.NewConfigError("search", "timeout_secs", errPositive)
	}

	return nil
}

// WorkerLimit resolves the index worker pool size for the current host,
// mirroring the teacher's ParallelFileWorkers "0 = auto-detect" rule but
// expressed as the spec's core-fraction.
func (c *Config) WorkerLimit() int {
	limit := int(float64(runtime.GOMAXPROCS(0)) * c.Index.WorkerFraction)
	if limit < 1 {
		limit = 1
	}
	return limit
}
