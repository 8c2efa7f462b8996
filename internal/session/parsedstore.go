package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/datalog-plotter/backend/internal/parser"
)

// ParsedStore keeps decoded datalogs in persistent DuckDB files keyed by
// file ID, so opening a recent file again skips CSV decoding.
type ParsedStore struct {
	parsedDir string
	mu        sync.RWMutex
	// cache tracks which file IDs have been persisted (fileID -> dbPath)
	cache map[string]string
	// dbMu serializes access to the database files; DuckDB refuses a
	// read-only open while a writer holds the same file.
	dbMu sync.Mutex
}

// NewParsedStore creates a persistent parsed store in parsedDir.
func NewParsedStore(parsedDir string) (*ParsedStore, error) {
	if err := os.MkdirAll(parsedDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parsed directory: %w", err)
	}

	store := &ParsedStore{
		parsedDir: parsedDir,
		cache:     make(map[string]string),
	}
	store.scanExisting()

	return store, nil
}

// scanExisting scans the parsed directory for existing databases on startup.
func (ps *ParsedStore) scanExisting() {
	log := logger.Get(nil)
	entries, err := os.ReadDir(ps.parsedDir)
	if err != nil {
		log.Warnf("[ParsedStore] Failed to scan parsed directory: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		// file_<id>.duckdb
		name := entry.Name()
		if strings.HasPrefix(name, "file_") && filepath.Ext(name) == ".duckdb" {
			fileID := strings.TrimSuffix(strings.TrimPrefix(name, "file_"), ".duckdb")
			if fileID == "" {
				continue
			}
			ps.cache[fileID] = filepath.Join(ps.parsedDir, name)
		}
	}

	log.Infof("[ParsedStore] Scanned %d existing parsed databases", len(ps.cache))
}

// DBPath returns the path where a parsed DB would be stored for a file ID.
func (ps *ParsedStore) DBPath(fileID string) string {
	return filepath.Join(ps.parsedDir, fmt.Sprintf("file_%s.duckdb", fileID))
}

// IsParsed checks if a file has already been decoded and stored.
func (ps *ParsedStore) IsParsed(fileID string) bool {
	ps.mu.RLock()
	dbPath, ok := ps.cache[fileID]
	ps.mu.RUnlock()

	if !ok {
		dbPath = ps.DBPath(fileID)
	}
	if _, err := os.Stat(dbPath); err != nil {
		if ok {
			ps.mu.Lock()
			delete(ps.cache, fileID)
			ps.mu.Unlock()
		}
		return false
	}
	if !ok {
		ps.mu.Lock()
		ps.cache[fileID] = dbPath
		ps.mu.Unlock()
	}
	return true
}

// Load reads the stored datalog for a file.
func (ps *ParsedStore) Load(ctx context.Context, fileID string) (*models.Datalog, error) {
	if !ps.IsParsed(fileID) {
		return nil, fmt.Errorf("file %s has no parsed datalog", fileID)
	}

	ps.dbMu.Lock()
	defer ps.dbMu.Unlock()

	logger.Get(ctx).Debugf("[ParsedStore] Opening parsed DB for file %s", logger.ShortID(fileID))
	store, err := parser.OpenDuckStoreReadOnly(ps.DBPath(fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to open parsed DB: %w", err)
	}
	defer store.Close()

	return store.LoadDatalog(ctx)
}

// Save persists a decoded datalog, replacing any previous copy.
func (ps *ParsedStore) Save(ctx context.Context, fileID string, d *models.Datalog) error {
	dbPath := ps.DBPath(fileID)

	ps.dbMu.Lock()
	defer ps.dbMu.Unlock()

	removeDB(dbPath)

	store, err := parser.NewDuckStoreAtPath(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create parsed DB: %w", err)
	}
	if err := store.SaveDatalog(ctx, d); err != nil {
		store.Close()
		removeDB(dbPath)
		return err
	}
	if err := store.Close(); err != nil {
		removeDB(dbPath)
		return fmt.Errorf("failed to close parsed DB: %w", err)
	}

	ps.mu.Lock()
	ps.cache[fileID] = dbPath
	ps.mu.Unlock()

	logger.Get(ctx).Infof("[ParsedStore] Stored file %s for reuse", logger.ShortID(fileID))
	return nil
}

// Delete removes the parsed DB for a file (call when original file is deleted).
func (ps *ParsedStore) Delete(fileID string) error {
	ps.mu.Lock()
	delete(ps.cache, fileID)
	ps.mu.Unlock()

	ps.dbMu.Lock()
	defer ps.dbMu.Unlock()

	if err := os.Remove(ps.DBPath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete parsed DB: %w", err)
	}
	os.Remove(ps.DBPath(fileID) + ".wal")
	return nil
}

// List returns all file IDs that have been persisted.
func (ps *ParsedStore) List() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	fileIDs := make([]string, 0, len(ps.cache))
	for id := range ps.cache {
		fileIDs = append(fileIDs, id)
	}
	return fileIDs
}

// Stats returns statistics about the parsed store.
func (ps *ParsedStore) Stats() map[string]interface{} {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	var totalSize int64
	for fileID, dbPath := range ps.cache {
		if info, err := os.Stat(dbPath); err == nil {
			totalSize += info.Size()
		} else {
			delete(ps.cache, fileID)
		}
	}

	return map[string]interface{}{
		"parsedCount": len(ps.cache),
		"totalSize":   totalSize,
		"parsedDir":   ps.parsedDir,
	}
}

// CleanupOrphaned removes parsed DBs that don't have corresponding raw files.
func (ps *ParsedStore) CleanupOrphaned(rawFileIDs []string) int {
	valid := make(map[string]bool, len(rawFileIDs))
	for _, id := range rawFileIDs {
		valid[id] = true
	}

	removed := 0
	for _, fileID := range ps.List() {
		if valid[fileID] {
			continue
		}
		if err := ps.Delete(fileID); err != nil {
			logger.Get(nil).Warnf("[ParsedStore] Failed to remove orphaned DB for file %s: %v", logger.ShortID(fileID), err)
			continue
		}
		removed++
	}
	return removed
}

func removeDB(dbPath string) {
	os.Remove(dbPath)
	os.Remove(dbPath + ".wal")
}
