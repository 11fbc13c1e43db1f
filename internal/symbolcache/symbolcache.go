// Package symbolcache is C6: a content-hash-keyed cache of per-file symbol
// lists, avoiding re-parsing files whose content hasn't changed.
//
// Entries are stored as JSON blobs keyed by (file_id, file_hash) in the
// metadata store's symbols table — matching the teacher's own preference
// for encoding/json over a binary codec for anything that isn't a
// hot-path on-disk index format.
package symbolcache

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/types"
)

// Cache is C6's read/write surface, sharing a *sql.DB connection with C5.
type Cache struct {
	db *sql.DB
}

// New wraps db (typically obtained from metastore.Store.DB()) as a symbol cache.
func New(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// persistedSymbol mirrors types.Symbol but omits Path (spec §4.6: path is
// stripped from the blob and re-injected on read).
type persistedSymbol struct {
	Name    string             `json:"name"`
	Kind    types.SymbolKind   `json:"kind"`
	Unknown *types.UnknownKind `json:"unknown,omitempty"`
	Span    types.Span         `json:"span"`
	Scope   string             `json:"scope,omitempty"`
	Preview string             `json:"preview,omitempty"`
}

func toPersisted(symbols []types.Symbol) []persistedSymbol {
	out := make([]persistedSymbol, len(symbols))
	for i, s := range symbols {
		out[i] = persistedSymbol{
			Name:    s.Name,
			Kind:    s.Kind,
			Unknown: s.Unknown,
			Span:    s.Span,
			Scope:   s.Scope,
			Preview: s.Preview,
		}
	}
	return out
}

func fromPersisted(path string, persisted []persistedSymbol) []types.Symbol {
	out := make([]types.Symbol, len(persisted))
	for i, p := range persisted {
		out[i] = types.Symbol{
			Name:    p.Name,
			Kind:    p.Kind,
			Unknown: p.Unknown,
			Span:    p.Span,
			Scope:   p.Scope,
			Preview: p.Preview,
			Path:    path,
		}
	}
	return out
}

// Get resolves fileID's row for hash, deserializes it, and re-injects path
// into every returned symbol.
func (c *Cache) Get(fileID int64, path string, hash string) ([]types.Symbol, bool, error) {
	var blob []byte
	err := c.db.QueryRow(
		"SELECT symbols_blob FROM symbols WHERE file_id = ? AND file_hash = ?",
		fileID, hash,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var persisted []persistedSymbol
	if err := json.Unmarshal(blob, &persisted); err != nil {
		return nil, false, err
	}
	return fromPersisted(path, persisted), true, nil
}

// BatchGetRequest names one (file_id, path, hash) lookup for BatchGet.
type BatchGetRequest struct {
	FileID int64
	Path   string
	Hash   string
}

// BatchGet resolves every request over a single connection and a single
// prepared statement, logging hit/miss counts (spec §4.6).
func (c *Cache) BatchGet(requests []BatchGetRequest) (map[string][]types.Symbol, error) {
	stmt, err := c.db.Prepare("SELECT symbols_blob FROM symbols WHERE file_id = ? AND file_hash = ?")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	out := make(map[string][]types.Symbol, len(requests))
	hits, misses := 0, 0
	for _, req := range requests {
		var blob []byte
		err := stmt.QueryRow(req.FileID, req.Hash).Scan(&blob)
		if err == sql.ErrNoRows {
			misses++
			continue
		}
		if err != nil {
			return nil, err
		}
		var persisted []persistedSymbol
		if err := json.Unmarshal(blob, &persisted); err != nil {
			return nil, err
		}
		out[req.Path] = fromPersisted(req.Path, persisted)
		hits++
	}
	obs.LogStore("batch_get: %d hits, %d misses", hits, misses)
	return out, nil
}

// BatchGetWithKind fetches symbol blobs for fileIDs and, if kindFilter is
// non-nil, filters by kind strictly in application memory after
// deserialization — never pushed into the SQL query, since kind-level SQL
// filtering would mask true cache hits as misses (spec §4.6).
func (c *Cache) BatchGetWithKind(fileIDs []int64, pathByFileID map[int64]string, hashByFileID map[int64]string, kindFilter *types.SymbolKind) (map[int64][]types.Symbol, error) {
	stmt, err := c.db.Prepare("SELECT symbols_blob FROM symbols WHERE file_id = ? AND file_hash = ?")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	out := make(map[int64][]types.Symbol, len(fileIDs))
	for _, fileID := range fileIDs {
		hash, ok := hashByFileID[fileID]
		if !ok {
			continue
		}
		var blob []byte
		err := stmt.QueryRow(fileID, hash).Scan(&blob)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		var persisted []persistedSymbol
		if err := json.Unmarshal(blob, &persisted); err != nil {
			return nil, err
		}
		symbols := fromPersisted(pathByFileID[fileID], persisted)

		if kindFilter != nil {
			filtered := symbols[:0]
			for _, s := range symbols {
				if s.Kind.MatchesFilter(*kindFilter) {
					filtered = append(filtered, s)
				}
			}
			symbols = filtered
		}
		out[fileID] = symbols
	}
	return out, nil
}

// SetEntry is one (file_id, hash, symbols) row for BatchSet.
type SetEntry struct {
	FileID  int64
	Hash    string
	Symbols []types.Symbol
}

// BatchSet inserts all entries in one transaction.
func (c *Cache) BatchSet(entries []SetEntry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO symbols (file_id, file_hash, symbols_blob, cached_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id, file_hash) DO UPDATE SET
			symbols_blob = excluded.symbols_blob,
			cached_at = excluded.cached_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		blob, err := json.Marshal(toPersisted(e.Symbols))
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(e.FileID, e.Hash, blob, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	obs.LogStore("batch_set: %d entries", len(entries))
	return nil
}

// CleanupStale removes entries whose file_id has no files row. metastore.Open
// leaves foreign keys off, so the schema's files→symbols ON DELETE CASCADE
// does not fire and this sweep is what removes such rows.
func (c *Cache) CleanupStale() (int64, error) {
	res, err := c.db.Exec(`
		DELETE FROM symbols
		WHERE file_id NOT IN (SELECT id FROM files)
	`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		obs.LogStore("cleanup_stale: removed %d orphaned entries", n)
	}
	return n, nil
}
