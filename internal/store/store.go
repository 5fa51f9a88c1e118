// Package store keeps an optional SQLite ledger of downloaded assets.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vicentereig/notegrab/internal/types"
)

type Item struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Kind           string    `json:"kind"`
	Variant        string    `json:"variant"`
	LastDownloaded time.Time `json:"last_downloaded"`
	Files          int       `json:"files"`
}

type Download struct {
	RunID        string    `json:"run_id"`
	ItemID       string    `json:"item_id"`
	Title        string    `json:"title,omitempty"`
	Kind         string    `json:"kind"`
	URL          string    `json:"url"`
	Path         string    `json:"path"`
	Bytes        int64     `json:"bytes"`
	Attempts     int       `json:"attempts"`
	Skipped      bool      `json:"skipped"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

type ListDownloadsParams struct {
	After  *time.Time
	Before *time.Time
	ItemID *string
	RunID  *string
	Kind   *string
	Query  *string
	Limit  int
	Page   int
}

type ListItemsParams struct {
	Query *string
	Limit int
	Page  int
}

type HistoryStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Concurrent batches record from several goroutines; serialise writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			title TEXT,
			kind TEXT,
			variant TEXT,
			last_downloaded TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS downloads (
			run_id TEXT,
			item_id TEXT,
			url TEXT,
			path TEXT,
			bytes INTEGER,
			downloaded_at TIMESTAMP,
			PRIMARY KEY (run_id, path),
			FOREIGN KEY (item_id) REFERENCES items(id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := ensureDownloadColumns(db); err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db, now: time.Now}, nil
}

// ensureDownloadColumns upgrades ledgers written before attempts and skip
// tracking existed.
func ensureDownloadColumns(db *sql.DB) error {
	required := map[string]string{
		"attempts": "INTEGER DEFAULT 0",
		"skipped":  "BOOLEAN DEFAULT 0",
	}

	for column, columnType := range required {
		exists, err := columnExists(db, "downloads", column)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := db.Exec(fmt.Sprintf("ALTER TABLE downloads ADD COLUMN %s %s", column, columnType)); err != nil {
				if !strings.Contains(strings.ToLower(err.Error()), "duplicate") {
					return fmt.Errorf("failed to add column %s: %w", column, err)
				}
			}
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan schema info: %w", err)
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// StoreItem upserts an item. An empty title never replaces a known one.
func (s *HistoryStore) StoreItem(item types.MediaItem, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO items (id, title, kind, variant, last_downloaded) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = COALESCE(NULLIF(excluded.title, ''), items.title),
			kind = excluded.kind,
			variant = excluded.variant,
			last_downloaded = excluded.last_downloaded`,
		item.ID, item.Title, string(item.Kind), string(item.Variant), at,
	)
	return err
}

// RecordAsset stores the item and one row for the asset task wrote.
func (s *HistoryStore) RecordAsset(runID string, item types.MediaItem, task *types.DownloadTask) error {
	at := s.now()
	if err := s.StoreItem(item, at); err != nil {
		return fmt.Errorf("store item %s: %w", item.ID, err)
	}

	_, err := s.db.Exec(
		`INSERT INTO downloads (run_id, item_id, url, path, bytes, downloaded_at, attempts, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, path) DO UPDATE SET
			url = excluded.url,
			bytes = excluded.bytes,
			downloaded_at = excluded.downloaded_at,
			attempts = excluded.attempts,
			skipped = excluded.skipped`,
		runID, item.ID, task.Asset.URL, task.DestinationPath, task.BytesReceived, at, task.Attempt, task.Skipped,
	)
	if err != nil {
		return fmt.Errorf("record download %s: %w", task.DestinationPath, err)
	}
	return nil
}

func (s *HistoryStore) ListDownloads(params ListDownloadsParams) ([]Download, error) {
	query := `SELECT d.run_id, d.item_id, i.title, i.kind, d.url, d.path, d.bytes, d.attempts, d.skipped, d.downloaded_at
	          FROM downloads d JOIN items i ON d.item_id = i.id WHERE 1=1`
	args := []interface{}{}

	if params.After != nil {
		query += " AND d.downloaded_at > ?"
		args = append(args, *params.After)
	}
	if params.Before != nil {
		query += " AND d.downloaded_at < ?"
		args = append(args, *params.Before)
	}
	if params.ItemID != nil {
		query += " AND d.item_id = ?"
		args = append(args, *params.ItemID)
	}
	if params.RunID != nil {
		query += " AND d.run_id = ?"
		args = append(args, *params.RunID)
	}
	if params.Kind != nil {
		query += " AND i.kind = ?"
		args = append(args, *params.Kind)
	}
	if params.Query != nil {
		query += " AND LOWER(i.title) LIKE LOWER(?)"
		args = append(args, "%"+*params.Query+"%")
	}

	query += " ORDER BY d.downloaded_at DESC, d.path LIMIT ? OFFSET ?"
	args = append(args, params.Limit, params.Page*params.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []Download
	for rows.Next() {
		var d Download
		var title sql.NullString
		if err := rows.Scan(&d.RunID, &d.ItemID, &title, &d.Kind, &d.URL, &d.Path, &d.Bytes, &d.Attempts, &d.Skipped, &d.DownloadedAt); err != nil {
			return nil, err
		}
		d.Title = title.String
		downloads = append(downloads, d)
	}

	return downloads, rows.Err()
}

func (s *HistoryStore) ListItems(params ListItemsParams) ([]Item, error) {
	query := `SELECT i.id, COALESCE(i.title, ''), i.kind, i.variant, i.last_downloaded,
	                 (SELECT COUNT(DISTINCT d.path) FROM downloads d WHERE d.item_id = i.id)
	          FROM items i WHERE 1=1`
	args := []interface{}{}

	if params.Query != nil {
		query += " AND (LOWER(i.title) LIKE LOWER(?) OR i.id LIKE ?)"
		args = append(args, "%"+*params.Query+"%", "%"+*params.Query+"%")
	}

	query += " ORDER BY i.last_downloaded DESC LIMIT ? OFFSET ?"
	args = append(args, params.Limit, params.Page*params.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Title, &it.Kind, &it.Variant, &it.LastDownloaded, &it.Files); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	return items, rows.Err()
}
