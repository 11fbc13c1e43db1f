package search

import (
	"context"
	"strings"

	"github.com/standardbeagle/reflexcore/internal/metastore"
	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// SymbolSearch implements spec §4.8's symbol_search: Symbol-shaped results
// whose name matches pattern, sourced from C6 rather than C3, restricted to
// branch's current file set.
func (e *Engine) SymbolSearch(ctx context.Context, branch, pattern string, f Filter) (Response, error) {
	f = e.applyDefaults(f)
	status, warning := e.freshness()

	branchFiles, err := e.branchFiles(branch)
	if err != nil {
		return Response{}, err
	}
	if len(branchFiles) == 0 {
		return Response{Status: StatusMissing, CanTrustResults: false, Warning: "branch has no indexed files"}, nil
	}

	candidates := candidateFiles(branchFiles, f)
	mode, matchPattern := resolveMode(pattern, f, true)
	dl := deadline(f.TimeoutSecs)

	fileIDs := make([]int64, 0, len(candidates))
	pathByID := make(map[int64]string, len(candidates))
	hashByID := make(map[int64]string, len(candidates))
	for _, rec := range candidates {
		fileIDs = append(fileIDs, rec.FileID)
		pathByID[rec.FileID] = rec.Path
		hashByID[rec.FileID] = rec.Hash
	}

	symbolsByFile, err := e.cache.BatchGetWithKind(fileIDs, pathByID, hashByID, f.Kind)
	if err != nil {
		return Response{}, err
	}

	var results []Match
	timedOut := false
	for _, rec := range candidates {
		if shouldStop(ctx, dl) {
			timedOut = true
			break
		}
		for _, sym := range symbolsByFile[rec.FileID] {
			if !matchText(sym.Name, matchPattern, mode) {
				continue
			}
			results = append(results, Match{
				Path:    rec.Path,
				Lang:    rec.Language,
				Kind:    sym.Kind.String(),
				Symbol:  sym.Name,
				Span:    sym.Span,
				Scope:   sym.Scope,
				Preview: e.preview(rec, sym, f.Expand),
			})
		}
	}
	if timedOut {
		status = StatusStale
		warning = "query timed out; returning partial results"
		obs.LogQuery("symbol_search timed out after %ds with %d results so far", f.TimeoutSecs, len(results))
	}

	return e.finish(status, warning, true, results, f)
}

// preview returns sym.Preview, or the full-span body from C4 if f.Expand
// requests it for a multi-line symbol (spec §4.8 "expand").
func (e *Engine) preview(rec metastore.FileRecord, sym types.Symbol, expand bool) string {
	if !expand || sym.Span.EndLine <= sym.Span.StartLine {
		return sym.Preview
	}
	fileID, ok := e.content.FindIDByPath(rec.Path)
	if !ok {
		return sym.Preview
	}
	content, err := e.content.GetContent(fileID)
	if err != nil {
		obs.LogError("QUERY", err)
		return sym.Preview
	}
	lines := strings.Split(content, "\n")
	start := sym.Span.StartLine - 1
	end := sym.Span.EndLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return sym.Preview
	}
	return strings.Join(lines[start:end], "\n")
}
