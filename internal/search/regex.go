package search

import (
	"context"
	"regexp"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/standardbeagle/reflexcore/internal/core"
	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/metastore"
	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// RegexSearch implements spec §4.8's regex_search: same shape as
// text_search, but verification is the compiled regex itself. Literal
// extraction narrows the candidate file set; when no literal of length >=3
// exists, every branch file is a candidate (full scan, with a warning).
func (e *Engine) RegexSearch(ctx context.Context, branch, pattern string, f Filter) (Response, error) {
	f = e.applyDefaults(f)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Response{}, rcerrors.NewInvalidPatternError(pattern, "not a valid regex", err)
	}

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

	literals := core.ExtractLiterals(pattern)
	var targets []metastore.FileRecord
	if len(literals) == 0 {
		obs.LogQuery("regex_search: no extractable literals for %q, full scan of %d files", pattern, len(candidates))
		warning = appendWarning(warning, "no indexable literal in pattern; full scan used")
		targets = candidates
	} else {
		union := roaring.New()
		for _, lit := range literals {
			locs, err := e.trigrams.Search(lit)
			if err != nil {
				return Response{}, err
			}
			for _, loc := range locs {
				union.Add(uint32(loc.FileID))
			}
		}
		it := union.Iterator()
		for it.HasNext() {
			path, ok := e.trigrams.FilePath(types.FileID(it.Next()))
			if !ok {
				continue
			}
			if rec, ok := byPath[path]; ok {
				targets = append(targets, rec)
			}
		}
	}

	dl := deadline(f.TimeoutSecs)
	var results []Match
	timedOut := false
	for _, rec := range targets {
		if shouldStop(ctx, dl) {
			timedOut = true
			break
		}
		results = append(results, e.scanFileRegex(rec, re)...)
	}

	if timedOut {
		status = StatusStale
		warning = appendWarning(warning, "query timed out; returning partial results")
		obs.LogQuery("regex_search timed out after %ds with %d results so far", f.TimeoutSecs, len(results))
	}

	return e.finish(status, warning, true, results, f)
}

func (e *Engine) scanFileRegex(rec metastore.FileRecord, re *regexp.Regexp) []Match {
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
		loc := re.FindStringIndex(line)
		if loc == nil {
			continue
		}
		out = append(out, e.buildMatch(rec, i+1, loc[0], line, false))
	}
	return out
}

func appendWarning(existing, addition string) string {
	if existing == "" {
		return addition
	}
	return existing + "; " + addition
}
