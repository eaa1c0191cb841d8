/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NewSQLite opens (creating if needed) a store persisted in a SQLite
// database at the given path. Documents survive process restarts;
// subscriptions and disconnect hooks remain process-local.
func NewSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: database path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// Single writer; the store serializes commits itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: configure sqlite: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		doc BLOB NOT NULL,
		version INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	var maxVersion sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM documents`).Scan(&maxVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: read max version: %w", err)
	}

	return &Store{
		back:    &sqliteBackend{db: db},
		subs:    make(map[*subscription]struct{}),
		nextVer: maxVersion.Int64,
	}, nil
}

type sqliteBackend struct {
	db *sql.DB
}

func (b *sqliteBackend) get(path string) ([]byte, int64, error) {
	var data []byte
	var version int64
	err := b.db.QueryRow(`SELECT doc, version FROM documents WHERE path = ?`, path).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("store: read %s: %w", path, err)
	}
	return data, version, nil
}

func (b *sqliteBackend) list(prefix string) (map[string][]byte, error) {
	rows, err := b.db.Query(
		`SELECT path, doc FROM documents WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		prefix, likeEscape(prefix)+"/%",
	)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var path string
		var data []byte
		if err := rows.Scan(&path, &data); err != nil {
			return nil, fmt.Errorf("store: list %s: %w", prefix, err)
		}
		out[path] = data
	}
	return out, rows.Err()
}

func (b *sqliteBackend) apply(writes []write) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin commit: %w", err)
	}

	for _, w := range writes {
		if w.data == nil {
			_, err = tx.Exec(`DELETE FROM documents WHERE path = ?`, w.path)
		} else {
			_, err = tx.Exec(
				`INSERT INTO documents (path, doc, version) VALUES (?, ?, ?)
				 ON CONFLICT(path) DO UPDATE SET doc = excluded.doc, version = excluded.version`,
				w.path, w.data, w.version,
			)
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("store: write %s: %w", w.path, err)
		}
	}

	return tx.Commit()
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
