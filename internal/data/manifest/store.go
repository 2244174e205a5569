// Package manifest persists the class listings of classpath archives so that
// unchanged archives are not rescanned on every mapping.
package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Entry identifies one archive version. A size or mtime change invalidates it.
type Entry struct {
	Location string
	Kind     string
	Size     int64
	ModTime  time.Time
}

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("manifest path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("manifest path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create manifest directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when several interpreters share one cache.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite manifest %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite manifest %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Lookup returns the recorded class names when e matches the stored version.
func (s *Store) Lookup(e Entry) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		size  int64
		mtime string
	)
	err := s.withRetry("lookup archive", func() error {
		return s.db.QueryRow(`SELECT size_bytes, mtime_utc FROM archives WHERE location = ?`, e.Location).
			Scan(&size, &mtime)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if size != e.Size || mtime != formatTime(e.ModTime) {
		return nil, false, nil
	}

	var rows *sql.Rows
	err = s.withRetry("load archive classes", func() error {
		var qErr error
		rows, qErr = s.db.Query(`SELECT fqn FROM archive_classes WHERE location = ? ORDER BY fqn`, e.Location)
		return qErr
	})
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var fqn string
		if err := rows.Scan(&fqn); err != nil {
			return nil, false, fmt.Errorf("scan archive class row: %w", err)
		}
		names = append(names, fqn)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate archive class rows: %w", err)
	}
	return names, true, nil
}

// Save replaces the recorded listing of e.Location.
func (s *Store) Save(e Entry, classes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := e.Kind
	if kind == "" {
		kind = "archive"
	}
	sorted := append([]string(nil), classes...)
	sort.Strings(sorted)

	return s.withRetry("save archive", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM archives WHERE location = ?`, e.Location); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO archives (location, kind, size_bytes, mtime_utc, class_count, scanned_at_utc) VALUES (?, ?, ?, ?, ?, ?)`,
			e.Location, kind, e.Size, formatTime(e.ModTime), len(sorted), formatTime(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO archive_classes (location, fqn) VALUES (?, ?)`)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		for _, fqn := range sorted {
			if _, err := stmt.Exec(e.Location, fqn); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// Forget drops the listing of location.
func (s *Store) Forget(location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withRetry("forget archive", func() error {
		_, err := s.db.Exec(`DELETE FROM archives WHERE location = ?`, location)
		return err
	})
}

// Locations lists every archive with a recorded listing.
func (s *Store) Locations() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("list archives", func() error {
		var qErr error
		rows, qErr = s.db.Query(`SELECT location FROM archives ORDER BY location`)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
