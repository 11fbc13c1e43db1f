package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/reflexcore/internal/metastore"
	"github.com/standardbeagle/reflexcore/internal/types"
)

type fakeWalker struct {
	files []string
}

func (w *fakeWalker) Iter(ctx context.Context, root string) (<-chan string, error) {
	ch := make(chan string, len(w.files))
	for _, f := range w.files {
		ch <- f
	}
	close(ch)
	return ch, nil
}

type fakeParser struct {
	calls []string
}

func (p *fakeParser) Parse(path string, source []byte, language string) ([]types.Symbol, error) {
	p.calls = append(p.calls, path)
	return []types.Symbol{{Name: "Sym_" + path, Kind: types.SymbolKindFunction, Span: types.Span{StartLine: 1, EndLine: 1}}}, nil
}

func setupWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	return dir
}

// TestIndexerFullThenIncrementalRun exercises spec scenario E3.
func TestIndexerFullThenIncrementalRun(t *testing.T) {
	workspace := setupWorkspace(t, map[string]string{
		"x.py": "def x():\n    pass\n",
		"y.py": "def y():\n    pass\n",
	})
	cacheRoot := t.TempDir()

	walker := &fakeWalker{files: []string{"x.py", "y.py"}}
	parser := &fakeParser{}

	idx1 := New(cacheRoot, workspace, walker, parser, nil)
	result1, err := idx1.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if result1.ChangedFiles != 2 || result1.CachedFiles != 0 {
		t.Fatalf("first run: got changed=%d cached=%d, want changed=2 cached=0", result1.ChangedFiles, result1.CachedFiles)
	}
	if len(parser.calls) != 2 {
		t.Fatalf("expected parser invoked for both files, got %v", parser.calls)
	}

	if err := os.WriteFile(filepath.Join(workspace, "y.py"), []byte("def y():\n    return 1\n"), 0o644); err != nil {
		t.Fatalf("rewrite y.py: %v", err)
	}

	parser2 := &fakeParser{}
	idx2 := New(cacheRoot, workspace, walker, parser2, nil)
	result2, err := idx2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if result2.ChangedFiles != 1 || result2.CachedFiles != 1 {
		t.Fatalf("second run: got changed=%d cached=%d, want changed=1 cached=1", result2.ChangedFiles, result2.CachedFiles)
	}
	if len(parser2.calls) != 1 || parser2.calls[0] != "y.py" {
		t.Fatalf("expected parser invoked only for y.py, got %v", parser2.calls)
	}

	store, err := metastore.Open(filepath.Join(cacheRoot, "meta.db"))
	if err != nil {
		t.Fatalf("metastore.Open: %v", err)
	}
	defer store.Close()

	hashes, err := store.HashesForBranch(types.DefaultBranch)
	if err != nil {
		t.Fatalf("HashesForBranch: %v", err)
	}
	if len(hashes) != 2 {
		t.Fatalf("expected 2 bound files, got %d", len(hashes))
	}
}

func TestIndexerRejectsConcurrentRun(t *testing.T) {
	workspace := setupWorkspace(t, map[string]string{"a.py": "pass\n"})
	cacheRoot := t.TempDir()
	if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	lock := NewWorkspaceLock(cacheRoot)
	release, err := lock.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	idx := New(cacheRoot, workspace, &fakeWalker{files: []string{"a.py"}}, &fakeParser{}, nil)
	if _, err := idx.Run(context.Background()); err == nil {
		t.Fatalf("expected error acquiring lock held by another process")
	}
}
