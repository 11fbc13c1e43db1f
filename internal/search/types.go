package search

import "github.com/standardbeagle/reflexcore/internal/types"

// Status is the response envelope's cache-freshness field (spec §4.8).
type Status string

const (
	StatusFresh   Status = "fresh"
	StatusStale   Status = "stale"
	StatusMissing Status = "missing"
)

// Filter is the shared vocabulary across symbol_search, text_search and
// regex_search (spec §4.8).
type Filter struct {
	Language        string
	Kind            *types.SymbolKind
	Exact           bool
	UseContains     bool
	FilePattern     string
	GlobPatterns    []string
	ExcludePatterns []string
	Limit           *int // nil means "all"; an explicit 0 also means "all"
	Offset          int
	Expand          bool
	TimeoutSecs     int
	PathsOnly       bool
}

// wantsAll reports the spec §4.8 "limit = None or 0 means all" rule.
func (f Filter) wantsAll() bool {
	return f.Limit == nil || *f.Limit == 0
}

// Match is one line/symbol hit, shaped per spec §6's Result schema.
type Match struct {
	Path    string
	Lang    string
	Kind    string
	Symbol  string
	Span    types.Span
	Scope   string
	Preview string
}

// FileGroup is the per-file projection described in spec §4.8's Grouping
// paragraph: a pure grouping of an already-sorted Match slice.
type FileGroup struct {
	Path    string
	Matches []Match
}

// GroupByFile buckets a path-sorted slice of matches by file, preserving
// within-file order. Callers needing grouped output call this on a
// Response's Results rather than having the engine build it eagerly — the
// spec frames it as "a pure projection of the sorted list", not as part of
// query execution.
func GroupByFile(results []Match) []FileGroup {
	var groups []FileGroup
	for _, m := range results {
		if len(groups) == 0 || groups[len(groups)-1].Path != m.Path {
			groups = append(groups, FileGroup{Path: m.Path})
		}
		g := &groups[len(groups)-1]
		g.Matches = append(g.Matches, m)
	}
	return groups
}

// Pagination mirrors spec §6's Pagination schema.
type Pagination struct {
	Total   int
	Count   int
	Offset  int
	Limit   *int
	HasMore bool
}

// Response is the QueryResponse envelope of spec §4.8/§6.
type Response struct {
	Status          Status
	CanTrustResults bool
	Warning         string
	Pagination      Pagination
	Results         []Match
	// Paths holds the deduplicated, sorted path list when Filter.PathsOnly
	// is set; Results is left empty in that case.
	Paths []string
}
