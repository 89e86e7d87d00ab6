package threads

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = &SQLiteStore{}

// DSNForFile builds a go-sqlite3 DSN for path, creating the parent directory.
func DSNForFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("sqlite thread store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "sqlite thread store: create directory")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite thread store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, ticker string) (Thread, error) {
	th := newThread(ticker, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, ticker, created_at_ms, last_used_at_ms, turns)
		VALUES (?, ?, ?, ?, 0)
	`, th.ID, th.Ticker, th.CreatedAt.UnixMilli(), th.LastUsedAt.UnixMilli())
	if err != nil {
		return Thread{}, errors.Wrap(err, "sqlite thread store: insert thread")
	}
	// round-trip precision so Create and Get agree
	th.CreatedAt = time.UnixMilli(th.CreatedAt.UnixMilli())
	th.LastUsedAt = th.CreatedAt
	return th, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Thread, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Thread{}, false, errors.New("sqlite thread store: id is empty")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticker, created_at_ms, last_used_at_ms, turns FROM threads WHERE id = ?
	`, id)
	th, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Thread{}, false, nil
	}
	if err != nil {
		return Thread{}, false, errors.Wrap(err, "sqlite thread store: get thread")
	}
	return th, true, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Thread, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, created_at_ms, last_used_at_ms, turns FROM threads
		ORDER BY last_used_at_ms DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite thread store: list threads")
	}
	defer func() { _ = rows.Close() }()

	var out []Thread
	for rows.Next() {
		th, err := scanThread(rows)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite thread store: scan thread")
		}
		out = append(out, th)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite thread store: iterate threads")
	}
	return out, nil
}

func (s *SQLiteStore) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads SET turns = turns + 1, last_used_at_ms = ? WHERE id = ?
	`, s.now().UnixMilli(), id)
	if err != nil {
		return errors.Wrap(err, "sqlite thread store: touch thread")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite thread store: touch thread")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%q", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(r rowScanner) (Thread, error) {
	var (
		th                  Thread
		createdMs, lastUsed int64
	)
	if err := r.Scan(&th.ID, &th.Ticker, &createdMs, &lastUsed, &th.Turns); err != nil {
		return Thread{}, err
	}
	th.CreatedAt = time.UnixMilli(createdMs)
	th.LastUsedAt = time.UnixMilli(lastUsed)
	return th, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
		  id TEXT PRIMARY KEY,
		  ticker TEXT NOT NULL DEFAULT '',
		  created_at_ms INTEGER NOT NULL,
		  last_used_at_ms INTEGER NOT NULL,
		  turns INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS threads_by_last_used
		  ON threads(last_used_at_ms DESC, id ASC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite thread store: migrate")
		}
	}
	return nil
}
