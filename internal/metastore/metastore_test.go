package metastore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIntegrityOnFreshStore(t *testing.T) {
	s := openTestStore(t)
	if err := s.Integrity(); err != nil {
		t.Fatalf("Integrity: %v", err)
	}
}

func TestBatchUpsertAndHashesForBranch(t *testing.T) {
	s := openTestStore(t)

	files := []FileUpsert{
		{Path: "a.go", Language: "go", LineCount: 10},
		{Path: "b.go", Language: "go", LineCount: 20},
	}
	bindings := []Binding{
		{Path: "a.go", Hash: "hash-a"},
		{Path: "b.go", Hash: "hash-b"},
	}
	if err := s.BatchUpsertFilesAndBindings(files, bindings, "main", "c0ffee"); err != nil {
		t.Fatalf("BatchUpsertFilesAndBindings: %v", err)
	}

	hashes, err := s.HashesForBranch("main")
	if err != nil {
		t.Fatalf("HashesForBranch: %v", err)
	}
	if hashes["a.go"] != "hash-a" || hashes["b.go"] != "hash-b" {
		t.Fatalf("unexpected hashes: %v", hashes)
	}
}

// TestBranchSwitchingScenario exercises spec scenario E4.
func TestBranchSwitchingScenario(t *testing.T) {
	s := openTestStore(t)

	files := []FileUpsert{{Path: "file_of_1.go", Language: "go", LineCount: 5}}
	if err := s.BatchUpsertFilesAndBindings(files, []Binding{{Path: "file_of_1.go", Hash: "H1"}}, "main", "c1"); err != nil {
		t.Fatalf("upsert main: %v", err)
	}
	if err := s.UpdateBranchMetadata("main", "c1", 1, false); err != nil {
		t.Fatalf("UpdateBranchMetadata(main): %v", err)
	}

	if err := s.BatchUpsertFilesAndBindings(files, []Binding{{Path: "file_of_1.go", Hash: "H2"}}, "feature", "c2"); err != nil {
		t.Fatalf("upsert feature: %v", err)
	}
	if err := s.UpdateBranchMetadata("feature", "c2", 1, false); err != nil {
		t.Fatalf("UpdateBranchMetadata(feature): %v", err)
	}

	mainHashes, err := s.HashesForBranch("main")
	if err != nil {
		t.Fatalf("HashesForBranch(main): %v", err)
	}
	if mainHashes["file_of_1.go"] != "H1" {
		t.Fatalf("expected main to retain H1, got %v", mainHashes)
	}

	featureHashes, err := s.HashesForBranch("feature")
	if err != nil {
		t.Fatalf("HashesForBranch(feature): %v", err)
	}
	if featureHashes["file_of_1.go"] != "H2" {
		t.Fatalf("expected feature to have H2, got %v", featureHashes)
	}

	mainStats, err := s.Stats("main")
	if err != nil {
		t.Fatalf("Stats(main): %v", err)
	}
	if mainStats.TotalFiles != 1 {
		t.Fatalf("expected main stats total_files=1, got %d", mainStats.TotalFiles)
	}

	found, ok, err := s.FindAnyFileWithHash("H1")
	if err != nil {
		t.Fatalf("FindAnyFileWithHash: %v", err)
	}
	if !ok || found.Path != "file_of_1.go" || found.Branch != "main" {
		t.Fatalf("FindAnyFileWithHash(H1): got %+v ok=%v, want path_of_file_1 on main", found, ok)
	}
}

func TestUpdateBranchMetadataPreservesBranchID(t *testing.T) {
	s := openTestStore(t)

	id1, err := s.GetOrCreateBranch("main", "c0")
	if err != nil {
		t.Fatalf("GetOrCreateBranch: %v", err)
	}
	if err := s.UpdateBranchMetadata("main", "c1", 3, true); err != nil {
		t.Fatalf("UpdateBranchMetadata: %v", err)
	}
	id2, err := s.GetOrCreateBranch("main", "c1")
	if err != nil {
		t.Fatalf("GetOrCreateBranch (again): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("branch_id changed across UpdateBranchMetadata: %d != %d", id1, id2)
	}
}

func TestUpdateBranchMetadataUnknownBranch(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateBranchMetadata("does-not-exist", "c0", 0, false); err == nil {
		t.Fatalf("expected error updating unknown branch")
	}
}

func TestCheckpointDoesNotError(t *testing.T) {
	s := openTestStore(t)
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
}

func TestStatisticsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.SetStatistic("cache_version", "3"); err != nil {
		t.Fatalf("SetStatistic: %v", err)
	}
	value, ok, err := s.GetStatistic("cache_version")
	if err != nil {
		t.Fatalf("GetStatistic: %v", err)
	}
	if !ok || value != "3" {
		t.Fatalf("got %q, ok=%v, want 3", value, ok)
	}
}
