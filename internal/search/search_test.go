package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/reflexcore/internal/indexing"
	"github.com/standardbeagle/reflexcore/internal/types"
)

type stubWalker struct{ files []string }

func (w *stubWalker) Iter(ctx context.Context, root string) (<-chan string, error) {
	ch := make(chan string, len(w.files))
	for _, f := range w.files {
		ch <- f
	}
	close(ch)
	return ch, nil
}

type stubParser struct {
	symbolsByPath map[string][]types.Symbol
}

func (p *stubParser) Parse(path string, source []byte, language string) ([]types.Symbol, error) {
	return p.symbolsByPath[path], nil
}

func buildFixture(t *testing.T) string {
	t.Helper()
	workspace := t.TempDir()
	files := map[string]string{
		"a.go": "package demo\n\nfunc Hello() string {\n\treturn \"hello world\"\n}\n",
		"b.go": "package demo\n\nfunc helloHelper() int {\n\treturn 42\n}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(workspace, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}

	parser := &stubParser{symbolsByPath: map[string][]types.Symbol{
		"a.go": {{Name: "Hello", Kind: types.SymbolKindFunction, Span: types.Span{StartLine: 3, StartCol: 0, EndLine: 5, EndCol: 1}, Preview: "func Hello() string {"}},
		"b.go": {{Name: "helloHelper", Kind: types.SymbolKindFunction, Span: types.Span{StartLine: 3, StartCol: 0, EndLine: 5, EndCol: 1}, Preview: "func helloHelper() int {"}},
	}}
	walker := &stubWalker{files: []string{"a.go", "b.go"}}

	cacheRoot := t.TempDir()
	idx := indexing.New(cacheRoot, workspace, walker, parser, nil)
	if _, err := idx.Run(context.Background()); err != nil {
		t.Fatalf("index Run: %v", err)
	}
	return cacheRoot
}

func TestSymbolSearchWordBoundaryDefault(t *testing.T) {
	cacheRoot := buildFixture(t)
	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	resp, err := e.SymbolSearch(context.Background(), types.DefaultBranch, "Hello", Filter{})
	if err != nil {
		t.Fatalf("SymbolSearch: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Path != "a.go" {
		t.Fatalf("expected single match in a.go, got %+v", resp.Results)
	}
}

func TestSymbolSearchSubstringAndPagination(t *testing.T) {
	cacheRoot := buildFixture(t)
	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	resp, err := e.SymbolSearch(context.Background(), types.DefaultBranch, "ello", Filter{UseContains: true})
	if err != nil {
		t.Fatalf("SymbolSearch: %v", err)
	}
	if resp.Pagination.Total != 2 {
		t.Fatalf("expected 2 total matches, got %d", resp.Pagination.Total)
	}

	one := 1
	paged, err := e.SymbolSearch(context.Background(), types.DefaultBranch, "ello", Filter{UseContains: true, Limit: &one})
	if err != nil {
		t.Fatalf("SymbolSearch paged: %v", err)
	}
	if paged.Pagination.Count != 1 || !paged.Pagination.HasMore {
		t.Fatalf("expected 1 result with has_more=true, got %+v", paged.Pagination)
	}
	if paged.Results[0].Path != "a.go" {
		t.Fatalf("expected lexicographically first path a.go, got %s", paged.Results[0].Path)
	}
}

func TestSymbolSearchPathsOnly(t *testing.T) {
	cacheRoot := buildFixture(t)
	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	resp, err := e.SymbolSearch(context.Background(), types.DefaultBranch, "ello", Filter{UseContains: true, PathsOnly: true})
	if err != nil {
		t.Fatalf("SymbolSearch: %v", err)
	}
	if len(resp.Paths) != 2 || resp.Paths[0] != "a.go" || resp.Paths[1] != "b.go" {
		t.Fatalf("expected sorted [a.go b.go], got %v", resp.Paths)
	}
}

func TestTextSearchOverTrigramCandidates(t *testing.T) {
	cacheRoot := buildFixture(t)
	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	resp, err := e.TextSearch(context.Background(), types.DefaultBranch, "hello world", Filter{})
	if err != nil {
		t.Fatalf("TextSearch: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Path != "a.go" {
		t.Fatalf("expected single match in a.go, got %+v", resp.Results)
	}
	if resp.Results[0].Symbol != "Hello" {
		t.Fatalf("expected enclosing symbol Hello joined in, got %+v", resp.Results[0])
	}
}

// TestTextSearchDefaultsToSubstring covers the ground-truth scenario where
// word-boundary verification would wrongly drop a match: a line containing
// only "foobar" must still be returned by text_search("foo").
func TestTextSearchDefaultsToSubstring(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "a.txt"), []byte("foo bar\nfoobar\nfoo\nbar"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	walker := &stubWalker{files: []string{"a.txt"}}
	parser := &stubParser{symbolsByPath: map[string][]types.Symbol{}}

	cacheRoot := t.TempDir()
	idx := indexing.New(cacheRoot, workspace, walker, parser, nil)
	if _, err := idx.Run(context.Background()); err != nil {
		t.Fatalf("index Run: %v", err)
	}

	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	resp, err := e.TextSearch(context.Background(), types.DefaultBranch, "foo", Filter{})
	if err != nil {
		t.Fatalf("TextSearch: %v", err)
	}
	lines := make([]int, len(resp.Results))
	for i, m := range resp.Results {
		lines[i] = m.Span.StartLine
	}
	if len(lines) != 3 || lines[0] != 1 || lines[1] != 2 || lines[2] != 3 {
		t.Fatalf("expected matches on lines {1,2,3} including the \"foobar\" line, got %v", lines)
	}
}

func TestRegexSearchNarrowsByLiteral(t *testing.T) {
	cacheRoot := buildFixture(t)
	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	resp, err := e.RegexSearch(context.Background(), types.DefaultBranch, `return \d+`, Filter{})
	if err != nil {
		t.Fatalf("RegexSearch: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Path != "b.go" {
		t.Fatalf("expected single match in b.go, got %+v", resp.Results)
	}
}

func TestRegexSearchRejectsInvalidPattern(t *testing.T) {
	cacheRoot := buildFixture(t)
	e, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer e.Close()

	if _, err := e.RegexSearch(context.Background(), types.DefaultBranch, "(unterminated", Filter{}); err == nil {
		t.Fatalf("expected error for invalid regex")
	}
}

func TestOpenMissingCache(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected MissingCacheError for nonexistent cache root")
	}
}
