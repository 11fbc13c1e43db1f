package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/standardbeagle/reflexcore/internal/types"
)

func buildSimpleIndex(t *testing.T) (*TrigramBuilder, map[string]types.FileID) {
	t.Helper()
	b := NewTrigramBuilder()
	ids := make(map[string]types.FileID)
	ids["a.txt"] = b.AddFile("a.txt")
	b.IndexFile(ids["a.txt"], []byte("foo bar\nfoobar\nfoo\nbar"))
	if err := b.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return b, ids
}

// TestTrigramIntersectionByLine exercises spec scenario E1.
func TestTrigramIntersectionByLine(t *testing.T) {
	b, _ := buildSimpleIndex(t)

	lines := func(locs []types.FileLocation) []uint32 {
		out := make([]uint32, 0, len(locs))
		for _, l := range locs {
			out = append(out, l.LineNo)
		}
		return out
	}

	foobar := b.Search("foobar")
	if got := lines(foobar); len(got) != 1 || got[0] != 2 {
		t.Fatalf("foobar: got lines %v, want [2]", got)
	}

	foo := lines(b.Search("foo"))
	wantFoo := map[uint32]bool{1: true, 2: true, 3: true}
	if len(foo) != 3 {
		t.Fatalf("foo: got %v, want 3 lines", foo)
	}
	for _, l := range foo {
		if !wantFoo[l] {
			t.Errorf("unexpected line %d in foo results", l)
		}
	}

	bar := lines(b.Search("bar"))
	wantBar := map[uint32]bool{1: true, 2: true, 4: true}
	if len(bar) != 3 {
		t.Fatalf("bar: got %v, want 3 lines", bar)
	}
	for _, l := range bar {
		if !wantBar[l] {
			t.Errorf("unexpected line %d in bar results", l)
		}
	}

	fooBarSpace := lines(b.Search("foo bar"))
	if len(fooBarSpace) != 1 || fooBarSpace[0] != 1 {
		t.Fatalf("'foo bar': got %v, want [1]", fooBarSpace)
	}
}

func TestTrigramSearchShortPattern(t *testing.T) {
	b, _ := buildSimpleIndex(t)
	if got := b.Search("ab"); got != nil {
		t.Fatalf("expected nil for pattern shorter than 3 bytes, got %v", got)
	}
}

func TestTrigramSearchNoMatch(t *testing.T) {
	b, _ := buildSimpleIndex(t)
	if got := b.Search("xyzzy"); len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}

// TestWriteLoadParity exercises spec §8 property 3: disk round trip yields
// the same candidate set as the in-memory builder.
func TestWriteLoadParity(t *testing.T) {
	b, ids := buildSimpleIndex(t)
	_ = ids

	dir := t.TempDir()
	path := filepath.Join(dir, "trigrams.bin")
	if err := b.WriteTo(path); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	idx, err := LoadTrigramIndex(path)
	if err != nil {
		t.Fatalf("LoadTrigramIndex: %v", err)
	}
	defer idx.Close()

	if idx.FileCount() != 1 {
		t.Fatalf("expected 1 file, got %d", idx.FileCount())
	}
	if p, ok := idx.FilePath(0); !ok || p != "a.txt" {
		t.Fatalf("expected a.txt at file_id 0, got %q (ok=%v)", p, ok)
	}

	memResult := b.Search("foobar")
	diskResult, err := idx.Search("foobar")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(memResult) != len(diskResult) {
		t.Fatalf("in-memory (%d) and on-disk (%d) result counts differ", len(memResult), len(diskResult))
	}
}

func TestBatchFlushMergeParity(t *testing.T) {
	dir := t.TempDir()

	build := func(enableBatch bool) *TrigramBuilder {
		b := NewTrigramBuilder()
		if enableBatch {
			if err := b.EnableBatchFlush(filepath.Join(dir, "partial"), 1); err != nil {
				t.Fatalf("EnableBatchFlush: %v", err)
			}
		}
		id1 := b.AddFile("file1.txt")
		id2 := b.AddFile("file2.txt")
		b.IndexFile(id1, []byte("extract_symbols is here"))
		b.IndexFile(id2, []byte("extract_symbols is also here"))
		if err := b.Finalize(); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		return b
	}

	plain := build(false)
	batched := build(true)

	plainPath := filepath.Join(dir, "plain.bin")
	batchedPath := filepath.Join(dir, "batched.bin")
	if err := plain.WriteTo(plainPath); err != nil {
		t.Fatalf("WriteTo(plain): %v", err)
	}
	if err := batched.WriteTo(batchedPath); err != nil {
		t.Fatalf("WriteTo(batched): %v", err)
	}

	plainIdx, err := LoadTrigramIndex(plainPath)
	if err != nil {
		t.Fatalf("LoadTrigramIndex(plain): %v", err)
	}
	defer plainIdx.Close()
	batchedIdx, err := LoadTrigramIndex(batchedPath)
	if err != nil {
		t.Fatalf("LoadTrigramIndex(batched): %v", err)
	}
	defer batchedIdx.Close()

	plainResults, err := plainIdx.Search("extract_symbols")
	if err != nil {
		t.Fatalf("Search(plain): %v", err)
	}
	batchedResults, err := batchedIdx.Search("extract_symbols")
	if err != nil {
		t.Fatalf("Search(batched): %v", err)
	}
	if len(plainResults) != 2 || len(batchedResults) != 2 {
		t.Fatalf("expected 2 results from each path, got plain=%d batched=%d", len(plainResults), len(batchedResults))
	}
}

func TestCorruptArtifactRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.bin")
	if err := os.WriteFile(path, []byte("not a trigram index"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := LoadTrigramIndex(path); err == nil {
		t.Fatalf("expected error loading corrupt artifact")
	}
}
