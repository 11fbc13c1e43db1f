package search

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/reflexcore/internal/metastore"
)

// matchMode is the text-matching discipline resolved from a Filter (spec
// §4.8 Filter vocabulary).
type matchMode int

const (
	modeWordBoundary matchMode = iota
	modeSubstring
	modeExact
	modeWildcardSuffix
)

// resolveMode implements spec §4.8. symbol_search defaults to word-boundary,
// with use_contains escalating it to substring and exact/the "foo*"
// wildcard-suffix form layered on top as symbol_search-only refinements.
// text_search and regex_search verify by substring instead (spec §4.8 step
// 2: "verify by substring equality (or word-boundary if that mode is
// requested)"; ground truth is §8 E1, where text_search("foo") must match a
// line containing only "foobar") — use_contains is symbol_search's
// vocabulary and has no effect on these two modes since substring is
// already their default.
func resolveMode(pattern string, f Filter, symbolMode bool) (matchMode, string) {
	if !symbolMode {
		return modeSubstring, pattern
	}
	if strings.HasSuffix(pattern, "*") {
		return modeWildcardSuffix, strings.TrimSuffix(pattern, "*")
	}
	if f.Exact {
		return modeExact, pattern
	}
	if f.UseContains {
		return modeSubstring, pattern
	}
	return modeWordBoundary, pattern
}

var (
	wordBoundaryCacheMu sync.Mutex
	wordBoundaryCache   = map[string]*regexp.Regexp{}
)

func wordBoundaryRegexp(pattern string) *regexp.Regexp {
	wordBoundaryCacheMu.Lock()
	defer wordBoundaryCacheMu.Unlock()
	if re, ok := wordBoundaryCache[pattern]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(pattern) + `\b`)
	wordBoundaryCache[pattern] = re
	return re
}

// matchText applies mode/pattern (as resolved by resolveMode) to text.
func matchText(text, pattern string, mode matchMode) bool {
	switch mode {
	case modeExact:
		return text == pattern
	case modeSubstring:
		return strings.Contains(text, pattern)
	case modeWildcardSuffix:
		return strings.HasPrefix(text, pattern)
	default: // modeWordBoundary
		return wordBoundaryRegexp(pattern).MatchString(text)
	}
}

// candidateFiles restricts branchFiles to the Filter's language, file
// pattern and glob constraints (spec §4.8: every mode shares this
// vocabulary). The returned slice preserves branchFiles' path order.
func candidateFiles(branchFiles []metastore.FileRecord, f Filter) []metastore.FileRecord {
	out := make([]metastore.FileRecord, 0, len(branchFiles))
	for _, rec := range branchFiles {
		if f.Language != "" && rec.Language != f.Language {
			continue
		}
		if f.FilePattern != "" && !strings.Contains(rec.Path, f.FilePattern) {
			continue
		}
		if !matchesGlobs(rec.Path, f.GlobPatterns, f.ExcludePatterns) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesGlobs(path string, include, exclude []string) bool {
	for _, pat := range exclude {
		if ok, _ := doublestar.Match(pat, path); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if ok, _ := doublestar.Match(pat, path); ok {
			return true
		}
	}
	return false
}

// sortAndPaginate applies spec §4.8's ordering (lexicographic by path,
// start_line, start_col) and then slices out [offset, offset+limit).
func sortAndPaginate(results []Match, f Filter) ([]Match, Pagination) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Span.StartLine != b.Span.StartLine {
			return a.Span.StartLine < b.Span.StartLine
		}
		return a.Span.StartCol < b.Span.StartCol
	})

	total := len(results)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}

	end := total
	if !f.wantsAll() {
		limit := *f.Limit
		if limit < 0 {
			limit = 0
		}
		if offset+limit < end {
			end = offset + limit
		}
	}

	page := results[offset:end]
	pag := Pagination{
		Total:   total,
		Count:   len(page),
		Offset:  offset,
		Limit:   f.Limit,
		HasMore: offset+len(page) < total,
	}
	return page, pag
}

// pathsOnly collapses results to their deduplicated, sorted set of paths
// (spec §4.8 paths_only).
func pathsOnly(results []Match) []string {
	seen := make(map[string]struct{}, len(results))
	var out []string
	for _, m := range results {
		if _, ok := seen[m.Path]; ok {
			continue
		}
		seen[m.Path] = struct{}{}
		out = append(out, m.Path)
	}
	sort.Strings(out)
	return out
}

// paginatePaths applies the same offset/limit rule as sortAndPaginate to an
// already-sorted path list, since paths_only pagination counts distinct
// paths rather than individual matches.
func paginatePaths(paths []string, f Filter) ([]string, Pagination) {
	total := len(paths)
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}

	end := total
	if !f.wantsAll() {
		limit := *f.Limit
		if limit < 0 {
			limit = 0
		}
		if offset+limit < end {
			end = offset + limit
		}
	}

	page := paths[offset:end]
	pag := Pagination{
		Total:   total,
		Count:   len(page),
		Offset:  offset,
		Limit:   f.Limit,
		HasMore: offset+len(page) < total,
	}
	return page, pag
}
