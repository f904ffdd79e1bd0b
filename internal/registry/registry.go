// Package registry is the SQLite-backed metadata store: it numbers the files
// each user stores per category, maps them to directories on disk and builds
// their public download links.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrInvalidName is returned for user IDs or categories that are not a
// single path element.
var ErrInvalidName = errors.New("registry: invalid user or category")

// File is one registered file.
type File struct {
	// Number is the file's position among the files still on disk, from 1.
	Number int
	// OriginalNumber is the number assigned at registration.
	OriginalNumber int
	OriginalName   string
	StoredName     string
	Path           string
	Size           int64
	URL            string
	RegisteredAt   time.Time
}

// Registry records stored files. It implements packer.Store.
type Registry struct {
	db        *sql.DB
	baseDir   string
	publicURL string
	logger    *zap.Logger
}

// Open opens (and creates if needed) the database at path. Files live under
// baseDir/<user>/<category>; links are rooted at publicURL.
func Open(ctx context.Context, path, baseDir, publicURL string, logger *zap.Logger) (*Registry, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Registry{
		db:        db,
		baseDir:   baseDir,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id       TEXT NOT NULL,
  category      TEXT NOT NULL,
  number        INTEGER NOT NULL,
  original_name TEXT NOT NULL,
  stored_name   TEXT NOT NULL,
  registered_at TEXT NOT NULL,
  UNIQUE (user_id, category, number)
);`,
		`CREATE TABLE IF NOT EXISTS counters (
  user_id  TEXT NOT NULL,
  category TEXT NOT NULL,
  next     INTEGER NOT NULL,
  PRIMARY KEY (user_id, category)
);`,
		`CREATE INDEX IF NOT EXISTS files_stored_name_idx ON files(user_id, category, stored_name);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

func validName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// RegisterFile records a stored file and returns its number. Numbers are
// assigned per (user, category) and never reused, even after ClearCategory.
func (r *Registry) RegisterFile(ctx context.Context, userID, category, originalName, storedName string) (int, error) {
	if !validName(userID) || !validName(category) {
		return 0, ErrInvalidName
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO counters (user_id, category, next) VALUES (?, ?, 2)
		 ON CONFLICT (user_id, category) DO UPDATE SET next = next + 1
		 RETURNING next - 1`,
		userID, category).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next number: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO files (user_id, category, number, original_name, stored_name, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, category, n, originalName, storedName, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	r.logger.Debug("file registered",
		zap.String("user_id", userID), zap.String("category", category),
		zap.Int("number", n), zap.String("file", storedName))
	return n, nil
}

// BuildDownloadURL returns the public link of a stored file.
func (r *Registry) BuildDownloadURL(userID, category, storedName string) string {
	return fmt.Sprintf("%s/static/%s/%s/%s",
		r.publicURL, url.PathEscape(userID), url.PathEscape(category), url.PathEscape(storedName))
}

// GetUserDirectory returns the directory for a user's category, creating it
// if needed.
func (r *Registry) GetUserDirectory(userID, category string) (string, error) {
	if !validName(userID) || !validName(category) {
		return "", ErrInvalidName
	}
	dir := filepath.Join(r.baseDir, userID, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create user directory: %w", err)
	}
	return dir, nil
}

// ListFiles returns the registered files of a category that still exist on
// disk, ordered by registration and renumbered from 1.
func (r *Registry) ListFiles(ctx context.Context, userID, category string) ([]File, error) {
	dir, err := r.GetUserDirectory(userID, category)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT number, original_name, stored_name, registered_at FROM files
		 WHERE user_id = ? AND category = ? ORDER BY number`,
		userID, category)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var (
			f  File
			at string
		)
		if err := rows.Scan(&f.OriginalNumber, &f.OriginalName, &f.StoredName, &at); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.Path = filepath.Join(dir, f.StoredName)
		info, err := os.Stat(f.Path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		f.Size = info.Size()
		f.Number = len(files) + 1
		f.URL = r.BuildDownloadURL(userID, category, f.StoredName)
		f.RegisteredAt, _ = time.Parse(time.RFC3339Nano, at)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// ClearCategory forgets every file registered for a user's category and
// returns how many records were removed. Files on disk are left alone.
func (r *Registry) ClearCategory(ctx context.Context, userID, category string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM files WHERE user_id = ? AND category = ?`, userID, category)
	if err != nil {
		return 0, fmt.Errorf("clear %s/%s: %w", userID, category, err)
	}
	n, _ := res.RowsAffected()
	r.logger.Info("category cleared",
		zap.String("user_id", userID), zap.String("category", category), zap.Int64("records", n))
	return n, nil
}
