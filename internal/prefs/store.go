// Package prefs persists client preferences such as the UI language.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const languageKey = "language"

type Language string

const (
	English  Language = "en"
	Russian  Language = "ru"
	Armenian Language = "hy"
)

// ParseLanguage returns English for anything it does not recognise.
func ParseLanguage(s string) Language {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case English, Russian, Armenian:
		return l
	}
	return English
}

type Store struct {
	db     *sql.DB
	driver string
}

// driverFor picks pgx for postgres URLs and SQLite for everything else.
func driverFor(dsn string) string {
	d := strings.ToLower(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty prefs DSN")
	}
	driver := driverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// Single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, driver: driver}
	if err := s.ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) ensureSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS prefs (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create prefs table: %w", err)
	}
	return nil
}

func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error { return s.db.Close() }

// Get returns the stored value and whether the key exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	q := `INSERT INTO prefs (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Language returns the stored UI language, English when unset.
func (s *Store) Language(ctx context.Context) (Language, error) {
	v, ok, err := s.Get(ctx, languageKey)
	if err != nil || !ok {
		return English, err
	}
	return ParseLanguage(v), nil
}

// EnsureLanguage returns the stored language, storing def first when the
// key is missing.
func (s *Store) EnsureLanguage(ctx context.Context, def Language) (Language, error) {
	v, ok, err := s.Get(ctx, languageKey)
	if err != nil {
		return English, err
	}
	if ok {
		return ParseLanguage(v), nil
	}
	def = ParseLanguage(string(def))
	return def, s.SetLanguage(ctx, def)
}

func (s *Store) SetLanguage(ctx context.Context, l Language) error {
	return s.Set(ctx, languageKey, string(ParseLanguage(string(l))))
}
