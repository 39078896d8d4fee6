package history

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
)

// Store is the persistent history collection, backed by a single sqlite
// database. The schema is written out by hand: the row mapping stays
// explicit and the migration path visible.
//
// Every operation is atomic per row. Multi-row reconciliation belongs to
// the resolver; a crash mid-merge leaves duplicate-but-valid rows behind,
// never corrupted ones.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS history_items (
	id              TEXT PRIMARY KEY,
	content         TEXT NOT NULL,
	kind            TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	last_modified   INTEGER NOT NULL,
	origin_device   TEXT NOT NULL DEFAULT '',
	aux_file_name   TEXT NOT NULL DEFAULT '',
	aux_file_size   INTEGER NOT NULL DEFAULT 0,
	aux_mime_type   TEXT NOT NULL DEFAULT '',
	cache_file_path TEXT NOT NULL DEFAULT '',
	synced          INTEGER NOT NULL DEFAULT 0,
	provenance      TEXT NOT NULL,
	fingerprint     TEXT NOT NULL,
	display_content TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_fingerprint ON history_items(fingerprint);
CREATE INDEX IF NOT EXISTS idx_history_synced ON history_items(synced);
CREATE INDEX IF NOT EXISTS idx_history_last_modified ON history_items(last_modified);
`

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history DB: %v", err)
	}
	// sqlite allows one writer; a single conn avoids busy errors from
	// interleaved bookkeeping writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history DB: %v", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const itemColumns = `id, content, kind, created_at, last_modified, origin_device,
	aux_file_name, aux_file_size, aux_mime_type, cache_file_path, synced,
	provenance, fingerprint, display_content`

func scanItem(row interface{ Scan(...any) error }) (*HistoryItem, error) {
	var it HistoryItem
	var kind, prov string
	var synced int
	err := row.Scan(&it.ID, &it.Content, &kind, &it.CreatedAt, &it.LastModified,
		&it.OriginDevice, &it.AuxFileName, &it.AuxFileSize, &it.AuxMimeType,
		&it.CacheFilePath, &synced, &prov, &it.Fingerprint, &it.DisplayContent)
	if err != nil {
		return nil, err
	}
	it.Kind = Kind(kind)
	it.Provenance = Provenance(prov)
	it.Synced = synced != 0
	return &it, nil
}

func (s *Store) queryItems(query string, args ...any) ([]*HistoryItem, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %v", err)
	}
	defer rows.Close()

	var out []*HistoryItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %v", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Put inserts the item, replacing any existing row with the same id.
func (s *Store) Put(it *HistoryItem) error {
	boolToInt := 0
	if it.Synced {
		boolToInt = 1
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO history_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.Content, string(it.Kind), it.CreatedAt, it.LastModified,
		it.OriginDevice, it.AuxFileName, it.AuxFileSize, it.AuxMimeType,
		it.CacheFilePath, boolToInt, string(it.Provenance), it.Fingerprint,
		it.DisplayContent)
	if err != nil {
		return fmt.Errorf("failed to store item %s: %v", it.ID, err)
	}
	return nil
}

// All returns every row ordered most-recent first. Pre-reconciliation
// duplicates are included; consumers wanting the canonical view go
// through the resolver.
func (s *Store) All() ([]*HistoryItem, error) {
	return s.queryItems(`SELECT ` + itemColumns + ` FROM history_items
		ORDER BY last_modified DESC`)
}

// Recent returns up to limit rows ordered most-recent first.
func (s *Store) Recent(limit int) ([]*HistoryItem, error) {
	return s.queryItems(`SELECT `+itemColumns+` FROM history_items
		ORDER BY last_modified DESC LIMIT ?`, limit)
}

// ByFingerprint returns all rows sharing fp, newest first. Multiple rows
// are expected here until the resolver has run.
func (s *Store) ByFingerprint(fp string) ([]*HistoryItem, error) {
	return s.queryItems(`SELECT `+itemColumns+` FROM history_items
		WHERE fingerprint = ? ORDER BY last_modified DESC`, fp)
}

// Unsynced returns rows the remote store has not accepted yet, oldest
// first so uploads drain in arrival order.
func (s *Store) Unsynced() ([]*HistoryItem, error) {
	return s.queryItems(`SELECT ` + itemColumns + ` FROM history_items
		WHERE synced = 0 ORDER BY last_modified ASC`)
}

// MarkSynced flags one row as accepted by the remote store and bumps its
// last_modified.
func (s *Store) MarkSynced(id string, at int64) error {
	_, err := s.db.Exec(`UPDATE history_items SET synced = 1, last_modified = ?
		WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark %s synced: %v", id, err)
	}
	return nil
}

// SetProvenance reclassifies one row's origin, adjusting synced and
// last_modified in the same statement.
func (s *Store) SetProvenance(id string, prov Provenance, synced bool, at int64) error {
	si := 0
	if synced {
		si = 1
	}
	_, err := s.db.Exec(`UPDATE history_items SET provenance = ?, synced = ?,
		last_modified = ? WHERE id = ?`, string(prov), si, at, id)
	if err != nil {
		return fmt.Errorf("failed to update provenance of %s: %v", id, err)
	}
	return nil
}

// Delete removes one row by id. Deleting a missing id is not an error.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM history_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %v", id, err)
	}
	return nil
}

// DeleteOldest removes the n oldest-by-last_modified rows and returns
// them so the caller can clean up any cache files they referenced.
func (s *Store) DeleteOldest(n int) ([]*HistoryItem, error) {
	if n <= 0 {
		return nil, nil
	}
	victims, err := s.queryItems(`SELECT `+itemColumns+` FROM history_items
		ORDER BY last_modified ASC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	for _, v := range victims {
		if err := s.Delete(v.ID); err != nil {
			return nil, err
		}
	}
	return victims, nil
}

// Count returns the number of stored rows.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM history_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %v", err)
	}
	return n, nil
}

// CachePaths returns every non-empty cache_file_path still referenced by
// a retained row. The eviction sweep uses this to find orphans.
func (s *Store) CachePaths() (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT cache_file_path FROM history_items
		WHERE cache_file_path != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache paths: %v", err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			continue
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}
