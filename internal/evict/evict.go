package evict

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"clipsync/internal/history"
)

// Manager enforces the bounded-history policy: a retained-count cap after
// every insert, plus a periodic sweep of the payload cache directory.
//
// Filesystem errors during eviction are logged and skipped per item; a
// failed deletion never aborts the rest of a pass.
type Manager struct {
	store     *history.Store
	retention int
	cacheDir  string
	maxAge    time.Duration
}

func New(store *history.Store, retention int, cacheDir string, maxAge time.Duration) *Manager {
	return &Manager{store: store, retention: retention, cacheDir: cacheDir, maxAge: maxAge}
}

// Enforce trims the store down to the retention count, deleting
// oldest-by-lastModified rows first. A deleted row's cache file goes with
// it, unless a retained row still references the same file.
func (m *Manager) Enforce() error {
	count, err := m.store.Count()
	if err != nil {
		return fmt.Errorf("failed to count history for eviction: %v", err)
	}
	if count <= m.retention {
		return nil
	}

	victims, err := m.store.DeleteOldest(count - m.retention)
	if err != nil {
		return fmt.Errorf("failed to evict oldest rows: %v", err)
	}

	retained, err := m.store.CachePaths()
	if err != nil {
		// Rows are gone either way; without the reference set the files
		// stay behind for the next sweep rather than risking a retained
		// item's payload.
		log.Printf("evict: failed to load retained cache paths: %v", err)
		return nil
	}

	for _, v := range victims {
		if v.CacheFilePath == "" {
			continue
		}
		if _, stillUsed := retained[v.CacheFilePath]; stillUsed {
			continue
		}
		if err := os.Remove(v.CacheFilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("evict: failed to remove %s: %v", v.CacheFilePath, err)
		}
	}
	return nil
}

// Sweep collects orphaned payload files (no retained row references them)
// and expires cache files older than the configured age threshold even
// when still referenced. The age rule deliberately bounds storage under
// bookkeeping bugs; the threshold is configuration, not a constant.
func (m *Manager) Sweep(now time.Time) error {
	entries, err := os.ReadDir(m.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache dir: %v", err)
	}

	referenced, err := m.store.CachePaths()
	if err != nil {
		return fmt.Errorf("failed to load referenced cache paths: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(m.cacheDir, entry.Name())

		if _, ok := referenced[path]; !ok {
			if err := os.Remove(path); err != nil {
				log.Printf("evict: failed to remove orphan %s: %v", path, err)
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Printf("evict: failed to stat %s: %v", path, err)
			continue
		}
		if now.Sub(info.ModTime()) > m.maxAge {
			if err := os.Remove(path); err != nil {
				log.Printf("evict: failed to remove expired %s: %v", path, err)
			}
		}
	}
	return nil
}
