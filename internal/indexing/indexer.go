// Package indexing is C7: the orchestrator that drives a full or
// incremental index build for a workspace on its current branch, wiring
// together the Walker/Parser/Vcs collaborators (spec §6) and C3-C6.
package indexing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/reflexcore/internal/config"
	"github.com/standardbeagle/reflexcore/internal/core"
	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/hashutil"
	"github.com/standardbeagle/reflexcore/internal/interfaces"
	"github.com/standardbeagle/reflexcore/internal/metastore"
	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/symbolcache"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// Indexer orchestrates C7.
type Indexer struct {
	CacheRoot     string
	WorkspaceRoot string
	Walker        interfaces.Walker
	Parser        interfaces.Parser
	Vcs           interfaces.Vcs

	// Config tunes worker pool sizing and batch-flush thresholds (spec §6's
	// config.toml [index] table). A nil Config behaves like config.Default().
	Config *config.Config
}

// New constructs an Indexer with default tuning. Vcs may be nil, in which
// case the workspace is treated as branchless (spec's "_default" sentinel).
func New(cacheRoot, workspaceRoot string, walker interfaces.Walker, parser interfaces.Parser, vcs interfaces.Vcs) *Indexer {
	return &Indexer{CacheRoot: cacheRoot, WorkspaceRoot: workspaceRoot, Walker: walker, Parser: parser, Vcs: vcs}
}

func (idx *Indexer) config() *config.Config {
	if idx.Config == nil {
		idx.Config = config.Default()
	}
	return idx.Config
}

// Result summarizes a completed index run.
type Result struct {
	Branch        string
	Commit        string
	Dirty         bool
	TotalFiles    int
	ChangedFiles  int
	CachedFiles   int
	FailedFiles   int
	Elapsed       time.Duration
}

type fileWork struct {
	path     string
	fileID   int // position in the sorted walk order; not the final store id
	content  []byte
	hash     types.ContentHash
	language string
	lineCount int
	changed  bool
	symbols  []types.Symbol
	parseErr error
}

// Run executes the full algorithm in spec §4.7.
func (idx *Indexer) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	if err := os.MkdirAll(idx.CacheRoot, 0o755); err != nil {
		return Result{}, rcerrors.NewIoError("mkdir", idx.CacheRoot, err)
	}

	lock := NewWorkspaceLock(idx.CacheRoot)
	release, err := lock.Acquire()
	if err != nil {
		return Result{}, err
	}
	defer release()

	branch, commit, dirty := idx.resolveVcsState()

	store, err := metastore.Open(filepath.Join(idx.CacheRoot, "meta.db"))
	if err != nil {
		return Result{}, err
	}
	defer store.Close()

	priorHashes, err := store.HashesForBranch(branch)
	if err != nil {
		return Result{}, err
	}

	paths, err := idx.collectPaths(ctx)
	if err != nil {
		return Result{}, err
	}
	sort.Strings(paths)

	status := NewStatusWriter(idx.CacheRoot, len(paths))

	works := make([]*fileWork, len(paths))
	for i, p := range paths {
		works[i] = &fileWork{path: p, fileID: i}
	}

	if err := idx.processFiles(ctx, works, priorHashes); err != nil {
		status.Complete(err.Error())
		return Result{}, err
	}

	result := Result{Branch: branch, Commit: commit, Dirty: dirty, TotalFiles: len(works)}
	for _, w := range works {
		status.Update(func(s *Status) { s.ProcessedFiles++ })
		if w.parseErr != nil {
			result.FailedFiles++
			status.Update(func(s *Status) { s.FailedFiles++ })
			continue
		}
		if w.changed {
			result.ChangedFiles++
			status.Update(func(s *Status) { s.ParsedFiles++ })
		} else {
			result.CachedFiles++
			status.Update(func(s *Status) { s.CachedFiles++ })
		}
	}

	if err := idx.finalize(works, store, branch, commit, dirty); err != nil {
		status.Complete(err.Error())
		return Result{}, err
	}

	status.Complete("")
	result.Elapsed = time.Since(start)
	obs.LogIndex("run complete: branch=%s total=%d changed=%d cached=%d failed=%d elapsed=%s",
		branch, result.TotalFiles, result.ChangedFiles, result.CachedFiles, result.FailedFiles, result.Elapsed)
	return result, nil
}

func (idx *Indexer) resolveVcsState() (branch, commit string, dirty bool) {
	if idx.Vcs != nil {
		if state, ok, err := idx.Vcs.State(idx.WorkspaceRoot); err == nil && ok {
			return state.Branch, state.Commit, state.Dirty
		}
	}
	return idx.config().Project.DefaultBranch, types.UnknownCommit, false
}

func (idx *Indexer) collectPaths(ctx context.Context) ([]string, error) {
	ch, err := idx.Walker.Iter(ctx, idx.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	var paths []string
	for p := range ch {
		paths = append(paths, p)
	}
	return paths, nil
}

// processFiles reads and hashes every file, parsing only those whose hash
// changed, bounded by a worker pool sized to a fraction of GOMAXPROCS.
func (idx *Indexer) processFiles(ctx context.Context, works []*fileWork, priorHashes map[string]string) error {
	limit := idx.config().WorkerLimit()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, w := range works {
		w := w
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			idx.processOne(w, priorHashes)
			return nil
		})
	}
	return g.Wait()
}

func (idx *Indexer) processOne(w *fileWork, priorHashes map[string]string) {
	fullPath := filepath.Join(idx.WorkspaceRoot, w.path)
	content, err := os.ReadFile(fullPath)
	if err != nil {
		w.parseErr = rcerrors.NewIoError("read", fullPath, err)
		return
	}
	w.content = content
	w.hash = hashutil.Hash(content)
	w.language = languageFromExtension(w.path)
	w.lineCount = countLines(content)

	priorHash, hadPrior := priorHashes[w.path]
	w.changed = !hadPrior || priorHash != w.hash.String()

	if !w.changed {
		return
	}

	symbols, err := idx.Parser.Parse(w.path, content, w.language)
	if err != nil {
		obs.LogError("INDEX", fmt.Errorf("parse %s: %w", w.path, err))
		return
	}
	w.symbols = symbols
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := 1
	for _, b := range content {
		if b == '\n' {
			n++
		}
	}
	return n
}

// finalize builds C3/C4 from the processed works in path order, then
// commits C5/C6 and finalizes all on-disk artifacts (spec §4.7 step 6).
func (idx *Indexer) finalize(works []*fileWork, store *metastore.Store, branch, commit string, dirty bool) error {
	contentWriter := core.NewContentWriter()
	if err := contentWriter.Init(filepath.Join(idx.CacheRoot, "content.bin")); err != nil {
		return err
	}
	trigramBuilder := core.NewTrigramBuilder()

	// Large workspaces risk pinning the whole staging map in RAM; batch-flush
	// partial runs to disk and merge them at Finalize instead.
	cfg := idx.config()
	if len(works) > cfg.Index.LargeWorkspaceThreshold {
		partialDir := filepath.Join(idx.CacheRoot, "partial")
		if err := os.MkdirAll(partialDir, 0o755); err != nil {
			return rcerrors.NewIoError("mkdir", partialDir, err)
		}
		if err := trigramBuilder.EnableBatchFlush(partialDir, cfg.Index.BatchFlushThreshold); err != nil {
			return err
		}
		defer os.RemoveAll(partialDir)
	}

	var files []metastore.FileUpsert
	var bindings []metastore.Binding

	for _, w := range works {
		if w.parseErr != nil {
			continue
		}
		fileID := contentWriter.AddFile(w.path, w.content)
		trigramFileID := trigramBuilder.AddFile(w.path)
		if fileID != trigramFileID {
			return fmt.Errorf("internal inconsistency: content/trigram file_id mismatch for %s", w.path)
		}
		trigramBuilder.IndexFile(trigramFileID, w.content)

		files = append(files, metastore.FileUpsert{Path: w.path, Language: w.language, LineCount: w.lineCount})
		bindings = append(bindings, metastore.Binding{Path: w.path, Hash: w.hash.String()})
	}

	if err := contentWriter.Finalize(); err != nil {
		return err
	}
	if err := trigramBuilder.Finalize(); err != nil {
		return err
	}
	if err := trigramBuilder.WriteTo(filepath.Join(idx.CacheRoot, "trigrams.bin")); err != nil {
		return err
	}

	if err := store.BatchUpsertFilesAndBindings(files, bindings, branch, commit); err != nil {
		return err
	}
	if err := store.UpdateBranchMetadata(branch, commit, len(files), dirty); err != nil {
		return err
	}

	cache := symbolcache.New(store.DB())
	var entries []symbolcache.SetEntry
	for _, w := range works {
		if w.parseErr != nil || !w.changed || w.symbols == nil {
			continue
		}
		metaFileID, ok, err := store.FileIDForPath(w.path)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		entries = append(entries, symbolcache.SetEntry{FileID: metaFileID, Hash: w.hash.String(), Symbols: w.symbols})
	}
	if len(entries) > 0 {
		if err := cache.BatchSet(entries); err != nil {
			return err
		}
	}
	if _, err := cache.CleanupStale(); err != nil {
		return err
	}

	return store.Checkpoint()
}
