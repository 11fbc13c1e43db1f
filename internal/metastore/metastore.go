// Package metastore is C5: the transactional relational store of files,
// branches, file-branch bindings, statistics, and cached symbol blobs.
//
// It is backed by modernc.org/sqlite (a pure-Go SQLite driver, avoiding a
// cgo dependency) in WAL mode. All multi-row updates that establish a
// consistent state run inside a single transaction, and Checkpoint makes
// committed data visible to any process that later opens a read
// connection.
package metastore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/obs"
)

// Store is the SQLite data access layer for reflexcore's metadata.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a metadata store at dbPath with WAL
// mode (foreign keys deliberately left off, see below), and runs migrate.
func Open(dbPath string) (*Store, error) {
	// foreign_keys is left off: cleanup_stale (C6) is the sweep for
	// orphaned rows instead of a DB-enforced cascade, so a stray symbols row for a since-removed file
	// is a normal, recoverable state rather than a constraint violation.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, rcerrors.NewIoError("open", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, rcerrors.NewIoError("ping", dbPath, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint forces a WAL checkpoint so that a read connection opened by
// another process observes all committed data (spec §4.5 contract).
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return rcerrors.NewIoError("checkpoint", "", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id           INTEGER PRIMARY KEY,
  path         TEXT NOT NULL UNIQUE,
  language     TEXT NOT NULL,
  line_count   INTEGER NOT NULL DEFAULT 0,
  last_indexed TIMESTAMP
);

CREATE TABLE IF NOT EXISTS branches (
  id           INTEGER PRIMARY KEY,
  name         TEXT NOT NULL UNIQUE,
  commit_hash  TEXT,
  last_indexed TIMESTAMP,
  file_count   INTEGER NOT NULL DEFAULT 0,
  dirty        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS file_branches (
  file_id      INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  branch_id    INTEGER NOT NULL REFERENCES branches(id) ON DELETE CASCADE,
  hash         TEXT NOT NULL,
  last_indexed TIMESTAMP,
  PRIMARY KEY (file_id, branch_id)
);

CREATE TABLE IF NOT EXISTS statistics (
  key        TEXT PRIMARY KEY,
  value      TEXT,
  updated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS symbols (
  file_id      INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  file_hash    TEXT NOT NULL,
  symbols_blob BLOB NOT NULL,
  cached_at    TIMESTAMP,
  PRIMARY KEY (file_id, file_hash)
);

CREATE INDEX IF NOT EXISTS idx_file_branches_branch ON file_branches(branch_id);
CREATE INDEX IF NOT EXISTS idx_file_branches_hash ON file_branches(hash);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Integrity confirms the expected tables exist and the database opens for
// reads, reporting a CorruptArtifactError otherwise (spec §4.5 / §4.7
// failure semantics). The Indexer does not call it.
func (s *Store) Integrity() error {
	required := []string{"files", "branches", "file_branches", "statistics", "symbols"}
	for _, table := range required {
		var name string
		row := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table)
		if err := row.Scan(&name); err != nil {
			return rcerrors.NewCorruptArtifactError("meta.db", "missing table "+table, err)
		}
	}
	if _, err := s.db.Exec("SELECT 1"); err != nil {
		return rcerrors.NewCorruptArtifactError("meta.db", "database does not open for reads", err)
	}
	return nil
}

// FileUpsert is one row of the files table as seen by batch_upsert_files_and_bindings.
type FileUpsert struct {
	Path      string
	Language  string
	LineCount int
}

// Binding is a (path, hash) pair for the current branch.
type Binding struct {
	Path string
	Hash string
}

// BatchUpsertFilesAndBindings materializes missing files rows, resolves or
// creates branchName, and inserts/replaces all bindings, all inside one
// transaction (spec §4.5).
func (s *Store) BatchUpsertFilesAndBindings(files []FileUpsert, bindings []Binding, branchName string, commit string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return rcerrors.NewIoError("begin", "", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	upsertFile, err := tx.Prepare(`
		INSERT INTO files (path, language, line_count, last_indexed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			line_count = excluded.line_count,
			last_indexed = excluded.last_indexed
	`)
	if err != nil {
		return err
	}
	defer upsertFile.Close()

	for _, f := range files {
		if _, err := upsertFile.Exec(f.Path, f.Language, f.LineCount, now); err != nil {
			return fmt.Errorf("upsert file %q: %w", f.Path, err)
		}
	}

	branchID, err := getOrCreateBranchTx(tx, branchName, commit)
	if err != nil {
		return err
	}

	fileIDByPath, err := lookupFileIDsTx(tx, bindingPaths(bindings))
	if err != nil {
		return err
	}

	upsertBinding, err := tx.Prepare(`
		INSERT INTO file_branches (file_id, branch_id, hash, last_indexed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id, branch_id) DO UPDATE SET
			hash = excluded.hash,
			last_indexed = excluded.last_indexed
	`)
	if err != nil {
		return err
	}
	defer upsertBinding.Close()

	for _, b := range bindings {
		fileID, ok := fileIDByPath[b.Path]
		if !ok {
			obs.LogStore("skipping binding for unknown path %q", b.Path)
			continue
		}
		if _, err := upsertBinding.Exec(fileID, branchID, b.Hash, now); err != nil {
			return fmt.Errorf("upsert binding %q: %w", b.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return rcerrors.NewIoError("commit", "", err)
	}
	obs.LogStore("batch_upsert_files_and_bindings: %d files, %d bindings, branch=%s", len(files), len(bindings), branchName)
	return nil
}

func bindingPaths(bindings []Binding) []string {
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.Path
	}
	return out
}

func lookupFileIDsTx(tx *sql.Tx, paths []string) (map[string]int64, error) {
	out := make(map[string]int64, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	stmt, err := tx.Prepare("SELECT id FROM files WHERE path = ?")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for _, p := range paths {
		if _, ok := out[p]; ok {
			continue
		}
		var id int64
		if err := stmt.QueryRow(p).Scan(&id); err != nil {
			if err == sql.ErrNoRows {
				continue
			}
			return nil, err
		}
		out[p] = id
	}
	return out, nil
}

// GetOrCreateBranch resolves-or-creates branchName and returns its id.
func (s *Store) GetOrCreateBranch(name string, commit string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, rcerrors.NewIoError("begin", "", err)
	}
	defer tx.Rollback()

	id, err := getOrCreateBranchTx(tx, name, commit)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, rcerrors.NewIoError("commit", "", err)
	}
	return id, nil
}

func getOrCreateBranchTx(tx *sql.Tx, name string, commit string) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM branches WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.Exec(
		"INSERT INTO branches (name, commit_hash, last_indexed, file_count, dirty) VALUES (?, ?, ?, 0, FALSE)",
		name, commit, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create branch %q: %w", name, err)
	}
	return res.LastInsertId()
}

// UpdateBranchMetadata prefers UPDATE over INSERT-OR-REPLACE so that
// branch_id (and its file_branches cascade) is preserved (spec §4.5).
func (s *Store) UpdateBranchMetadata(name string, commit string, fileCount int, dirty bool) error {
	res, err := s.db.Exec(
		"UPDATE branches SET commit_hash = ?, last_indexed = ?, file_count = ?, dirty = ? WHERE name = ?",
		commit, time.Now().UTC(), fileCount, dirty, name,
	)
	if err != nil {
		return fmt.Errorf("update branch metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update_branch_metadata: branch %q does not exist", name)
	}
	return nil
}

// HashesForBranch returns the path→hash map of every file bound to branchName.
func (s *Store) HashesForBranch(branchName string) (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT f.path, fb.hash
		FROM file_branches fb
		JOIN files f ON f.id = fb.file_id
		JOIN branches b ON b.id = fb.branch_id
		WHERE b.name = ?
	`, branchName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// HashesAcrossBranches returns the path→hash map across every branch; if a
// path is bound on more than one branch, the most recently indexed binding
// wins.
func (s *Store) HashesAcrossBranches() (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT f.path, fb.hash, fb.last_indexed
		FROM file_branches fb
		JOIN files f ON f.id = fb.file_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type entry struct {
		hash string
		at   time.Time
	}
	latest := make(map[string]entry)
	for rows.Next() {
		var path, hash string
		var at time.Time
		if err := rows.Scan(&path, &hash, &at); err != nil {
			return nil, err
		}
		if prev, ok := latest[path]; !ok || at.After(prev.at) {
			latest[path] = entry{hash: hash, at: at}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(latest))
	for path, e := range latest {
		out[path] = e.hash
	}
	return out, nil
}

// FileRecord is one row of the files table joined against a branch binding,
// the candidate set the Query Engine (C8) restricts itself to (spec §4.8:
// "the file set is restricted to files indexed on the current branch").
type FileRecord struct {
	FileID    int64
	Path      string
	Language  string
	LineCount int
	Hash      string
}

// FilesForBranch lists every file bound to branchName, for use as C8's
// candidate file set.
func (s *Store) FilesForBranch(branchName string) ([]FileRecord, error) {
	rows, err := s.db.Query(`
		SELECT f.id, f.path, f.language, f.line_count, fb.hash
		FROM file_branches fb
		JOIN files f ON f.id = fb.file_id
		JOIN branches b ON b.id = fb.branch_id
		WHERE b.name = ?
		ORDER BY f.path
	`, branchName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.FileID, &r.Path, &r.Language, &r.LineCount, &r.Hash); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FileWithHash is the (path, branch) result of FindAnyFileWithHash.
type FileWithHash struct {
	Path   string
	Branch string
}

// FindAnyFileWithHash enables cross-branch symbol-cache reuse: given a
// content hash, find any (path, branch) binding that carries it, regardless
// of the current branch.
func (s *Store) FindAnyFileWithHash(hash string) (FileWithHash, bool, error) {
	row := s.db.QueryRow(`
		SELECT f.path, b.name
		FROM file_branches fb
		JOIN files f ON f.id = fb.file_id
		JOIN branches b ON b.id = fb.branch_id
		WHERE fb.hash = ?
		LIMIT 1
	`, hash)
	var result FileWithHash
	if err := row.Scan(&result.Path, &result.Branch); err != nil {
		if err == sql.ErrNoRows {
			return FileWithHash{}, false, nil
		}
		return FileWithHash{}, false, err
	}
	return result, true, nil
}

// Stats is the computed summary stat block for one branch (spec §4.5).
type Stats struct {
	TotalFiles     int
	FilesByLang    map[string]int
	LinesByLang    map[string]int
	LastUpdated    time.Time
}

// Stats computes totals restricted to the given branch's current file set.
func (s *Store) Stats(branchName string) (Stats, error) {
	rows, err := s.db.Query(`
		SELECT f.language, f.line_count, f.last_indexed
		FROM file_branches fb
		JOIN files f ON f.id = fb.file_id
		JOIN branches b ON b.id = fb.branch_id
		WHERE b.name = ?
	`, branchName)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	out := Stats{
		FilesByLang: make(map[string]int),
		LinesByLang: make(map[string]int),
	}
	for rows.Next() {
		var lang string
		var lines int
		var lastIndexed time.Time
		if err := rows.Scan(&lang, &lines, &lastIndexed); err != nil {
			return Stats{}, err
		}
		out.TotalFiles++
		out.FilesByLang[lang]++
		out.LinesByLang[lang] += lines
		if lastIndexed.After(out.LastUpdated) {
			out.LastUpdated = lastIndexed
		}
	}
	return out, rows.Err()
}

// SetStatistic records a key/value row in the statistics table (e.g.
// "cache_version").
func (s *Store) SetStatistic(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO statistics (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, time.Now().UTC(),
	)
	return err
}

// GetStatistic reads a single statistics value.
func (s *Store) GetStatistic(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM statistics WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// FileIDForPath resolves path to its files.id, used by C7 to key the symbol
// cache (C6) entries it writes.
func (s *Store) FileIDForPath(path string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// PathForFileID is the inverse of FileIDForPath.
func (s *Store) PathForFileID(fileID int64) (string, bool, error) {
	var path string
	err := s.db.QueryRow("SELECT path FROM files WHERE id = ?", fileID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// DB exposes the underlying *sql.DB for use by C6, which shares this
// connection rather than opening its own.
func (s *Store) DB() *sql.DB {
	return s.db
}
