package search

import (
	"context"
	"strings"

	"github.com/standardbeagle/reflexcore/internal/metastore"
	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// TextSearch implements spec §4.8's text_search pipeline: short patterns
// full-scan C4, longer ones use C3 candidates verified against the actual
// line bytes, then optionally join the nearest enclosing symbol from C6.
func (e *Engine) TextSearch(ctx context.Context, branch, pattern string, f Filter) (Response, error) {
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
	byPath := make(map[string]metastore.FileRecord, len(candidates))
	for _, rec := range candidates {
		byPath[rec.Path] = rec
	}

	mode, matchPattern := resolveMode(pattern, f, false)
	dl := deadline(f.TimeoutSecs)

	var results []Match
	timedOut := false

	if len(pattern) < 3 {
		for _, rec := range candidates {
			if shouldStop(ctx, dl) {
				timedOut = true
				break
			}
			results = append(results, e.scanFile(rec, matchPattern, mode)...)
		}
	} else {
		locs, err := e.trigrams.Search(pattern)
		if err != nil {
			return Response{}, err
		}
		for _, loc := range locs {
			if shouldStop(ctx, dl) {
				timedOut = true
				break
			}
			path, ok := e.trigrams.FilePath(loc.FileID)
			if !ok {
				continue
			}
			rec, ok := byPath[path]
			if !ok {
				continue
			}
			ctxLine, err := e.content.ContextByByteOffset(loc.FileID, loc.ByteOffset, 0)
			if err != nil {
				obs.LogError("QUERY", err)
				continue
			}
			if !matchText(ctxLine.Line, matchPattern, mode) {
				continue
			}
			results = append(results, e.buildMatch(rec, int(loc.LineNo), 0, ctxLine.Line, f.Expand))
		}
	}

	if timedOut {
		status = StatusStale
		warning = "query timed out; returning partial results"
		obs.LogQuery("text_search timed out after %ds with %d results so far", f.TimeoutSecs, len(results))
	}

	return e.finish(status, warning, true, results, f)
}

// scanFile full-scans rec's content line by line, used for sub-trigram
// patterns (spec §4.8 step 1).
func (e *Engine) scanFile(rec metastore.FileRecord, pattern string, mode matchMode) []Match {
	fileID, ok := e.content.FindIDByPath(rec.Path)
	if !ok {
		return nil
	}
	content, err := e.content.GetContent(fileID)
	if err != nil {
		obs.LogError("QUERY", err)
		return nil
	}
	var out []Match
	for i, line := range strings.Split(content, "\n") {
		if !matchText(line, pattern, mode) {
			continue
		}
		out = append(out, e.buildMatch(rec, i+1, 0, line, false))
	}
	return out
}

// buildMatch joins the nearest enclosing symbol (if any) into kind/scope
// and fills preview, per spec §4.8 text_search step 3.
func (e *Engine) buildMatch(rec metastore.FileRecord, line, col int, lineText string, expand bool) Match {
	m := Match{
		Path:    rec.Path,
		Lang:    rec.Language,
		Span:    types.Span{StartLine: line, StartCol: col, EndLine: line, EndCol: col + len(lineText)},
		Preview: lineText,
	}
	symbols := e.cacheSymbolsFor(rec)
	if sym, ok := innermostSymbol(symbols, line); ok {
		m.Kind = sym.Kind.String()
		m.Symbol = sym.Name
		m.Scope = sym.Scope
		if expand {
			m.Preview = e.preview(rec, sym, true)
			m.Span = sym.Span
		}
	}
	return m
}
