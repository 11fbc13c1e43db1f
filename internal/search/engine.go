// Package search is C8: the read-only query engine that serves
// symbol_search, text_search and regex_search over the artifacts an
// Indexer run produced (spec §4.8).
package search

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/reflexcore/internal/config"
	"github.com/standardbeagle/reflexcore/internal/core"
	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/indexing"
	"github.com/standardbeagle/reflexcore/internal/metastore"
	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/symbolcache"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// Engine holds the read-only handles onto a cache root's artifacts. All of
// its state is safe for concurrent use by multiple in-flight queries (spec
// §5: "the Query Engine is single-threaded per query but multiple queries
// may proceed in parallel").
type Engine struct {
	cacheRoot string
	store     *metastore.Store
	cache     *symbolcache.Cache
	trigrams  *core.TrigramIndex
	content   *core.ContentReader

	// Config supplies defaults (default_limit, timeout_secs) for callers
	// that leave a Filter field unset. Defaults to config.Default() if nil.
	Config *config.Config
}

// Open mmaps trigrams.bin/content.bin and opens meta.db read side by side.
// A missing cache root or missing artifact is a MissingCacheError (spec §7).
func Open(cacheRoot string) (*Engine, error) {
	if _, err := os.Stat(cacheRoot); os.IsNotExist(err) {
		return nil, rcerrors.NewMissingCacheError(cacheRoot, "")
	}

	trigramsPath := filepath.Join(cacheRoot, "trigrams.bin")
	if _, err := os.Stat(trigramsPath); os.IsNotExist(err) {
		return nil, rcerrors.NewMissingCacheError(cacheRoot, "trigrams.bin")
	}
	trigrams, err := core.LoadTrigramIndex(trigramsPath)
	if err != nil {
		return nil, err
	}

	contentPath := filepath.Join(cacheRoot, "content.bin")
	if _, err := os.Stat(contentPath); os.IsNotExist(err) {
		trigrams.Close()
		return nil, rcerrors.NewMissingCacheError(cacheRoot, "content.bin")
	}
	content, err := core.OpenContentReader(contentPath)
	if err != nil {
		trigrams.Close()
		return nil, err
	}

	dbPath := filepath.Join(cacheRoot, "meta.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		trigrams.Close()
		content.Close()
		return nil, rcerrors.NewMissingCacheError(cacheRoot, "meta.db")
	}
	store, err := metastore.Open(dbPath)
	if err != nil {
		trigrams.Close()
		content.Close()
		return nil, err
	}

	return &Engine{
		cacheRoot: cacheRoot,
		store:     store,
		cache:     symbolcache.New(store.DB()),
		trigrams:  trigrams,
		content:   content,
	}, nil
}

// Close releases all mmaps and the database connection.
func (e *Engine) Close() error {
	firstErr := e.trigrams.Close()
	if err := e.content.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// freshness reads indexing.status to classify the cache for the response
// envelope's status field (spec §4.8). A missing status file predates this
// field entirely and is treated as fresh rather than as an error.
func (e *Engine) freshness() (Status, string) {
	st, err := indexing.ReadStatus(e.cacheRoot)
	if err != nil || st == nil {
		return StatusFresh, ""
	}
	switch st.State {
	case indexing.StatusFailed:
		return StatusStale, "last index run failed: " + st.Error
	case indexing.StatusRunning:
		return StatusStale, "index build in progress; results may be incomplete"
	default:
		return StatusFresh, ""
	}
}

// branchFiles resolves the candidate file set for branch, restricted per
// spec §4.8 ("the file set is restricted to files indexed on the current
// branch").
func (e *Engine) branchFiles(branch string) ([]metastore.FileRecord, error) {
	if branch == "" {
		branch = types.DefaultBranch
	}
	return e.store.FilesForBranch(branch)
}

// applyDefaults fills in a Filter's default_limit/timeout_secs from Config
// when a caller leaves them unset (spec §6's config.toml [search] table).
// Limit is left nil (meaning "all") if the caller set PathsOnly without an
// explicit limit, matching spec §4.8's paths_only framing of returning the
// full path set by default.
func (e *Engine) applyDefaults(f Filter) Filter {
	if e.Config == nil {
		e.Config = config.Default()
	}
	if f.Limit == nil && !f.PathsOnly {
		limit := e.Config.Search.DefaultLimit
		f.Limit = &limit
	}
	if f.TimeoutSecs <= 0 {
		f.TimeoutSecs = e.Config.Search.TimeoutSecs
	}
	return f
}

// deadline turns timeoutSecs into an absolute time.Time, or the zero Time
// if no timeout was requested; checkDeadline below treats a zero Time as
// "never expires".
func deadline(timeoutSecs int) time.Time {
	if timeoutSecs <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(timeoutSecs) * time.Second)
}

// shouldStop implements spec §5's cooperative cancellation: callers test
// this between batch boundaries (per candidate file, per posting-list
// intersection) and stop early, keeping partial results, when it fires.
func shouldStop(ctx context.Context, dl time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	if dl.IsZero() {
		return false
	}
	return time.Now().After(dl)
}

// innermostSymbol finds the tightest-enclosing symbol at line among
// symbols from the same file (spec §4.8 text_search step 3: "nearest
// enclosing Symbol ... innermost").
func innermostSymbol(symbols []types.Symbol, line int) (types.Symbol, bool) {
	var best types.Symbol
	found := false
	bestWidth := -1
	for _, s := range symbols {
		if s.Span.StartLine > line || s.Span.EndLine < line {
			continue
		}
		width := s.Span.EndLine - s.Span.StartLine
		if !found || width < bestWidth {
			best = s
			bestWidth = width
			found = true
		}
	}
	return best, found
}

// cacheSymbolsFor returns hash-verified cached symbols for rec, logging and
// swallowing cache-layer errors as an empty result since C6 is a pure
// accelerator for C8, never a hard dependency (same spirit as spec §7:
// parser errors never reach the query engine).
func (e *Engine) cacheSymbolsFor(rec metastore.FileRecord) []types.Symbol {
	symbols, ok, err := e.cache.Get(rec.FileID, rec.Path, rec.Hash)
	if err != nil {
		obs.LogError("QUERY", err)
		return nil
	}
	if !ok {
		return nil
	}
	return symbols
}
