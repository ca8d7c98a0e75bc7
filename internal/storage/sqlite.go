package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	logx "soulverse/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB opens (creating if needed) a SQLite database file, applies pragmas and
// runs the embedded migrations. The recipient store shares the same schema.
func OpenDB(path string, busyTimeout time.Duration) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", p, err)
		}
	}

	if err := RunMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations applies all pending migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	db, err := OpenDB(cfg.Path, cfg.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return NewSQLite(db, log), nil
}

// NewSQLite wraps an already migrated database. The store owns db.
func NewSQLite(db *sql.DB, log logx.Logger) Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqliteStore{db: db, log: log, now: time.Now, pruneEvery: 500}
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, ErrDisabled
	}
	var (
		val   []byte
		until int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT value, until FROM kv WHERE key = ?`, key).Scan(&val, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if until != 0 && until <= s.now().UnixMilli() {
		return nil, false, nil
	}
	return val, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return ErrEmptyKey
	}
	if val == nil {
		val = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, until) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, until=excluded.until`,
		key, val, expiry(s.now(), ttl),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if _, perr := s.PruneExpired(pctx); perr != nil {
			s.log.Debug("kv prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ? AND (until = 0 OR until > ?)`, key, now)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// clear an expired leftover, if any
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

func (s *sqliteStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	plen := utf8.RuneCountInString(prefix)
	now := s.now().UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE substr(key, 1, ?) = ? AND (until = 0 OR until > ?)`, plen, prefix, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE substr(key, 1, ?) = ?`, plen, prefix); err != nil {
		return int(n), err
	}
	return int(n), nil
}

func (s *sqliteStore) PruneExpired(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE until > 0 AND until <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
