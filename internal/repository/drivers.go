package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/radiowatch/radiowatch/internal/domain"
)

const (
	defaultSQLitePath   = "./radiowatch.db"
	defaultPostgresDB   = "radiowatch"
	defaultPostgresPort = 5432
	openPingTimeout     = 10 * time.Second
)

// memoryPath selects a private in-memory SQLite database.
const memoryPath = ":memory:"

// openSQLite opens a SQLite database with modernc.org/sqlite (no CGO).
// The in-memory database is pinned to a single connection so every
// statement sees the same data.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = defaultSQLitePath
	}

	if path != memoryPath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if err := pingOnOpen(db); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return db, nil
}

// sqliteDSN builds the modernc DSN. WAL lets the API read while a batch
// recompute writes.
func sqliteDSN(path string) string {
	if path == memoryPath {
		return "file::memory:?_pragma=busy_timeout(5000)"
	}
	return "file:" + path +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
}

// openPostgres opens a PostgreSQL database through lib/pq.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := pingOnOpen(db); err != nil {
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
	return db, nil
}

// postgresDSN builds a keyword/value connection string with defaults
// filled in. Values are quoted so passwords may contain spaces.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = defaultPostgresPort
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = defaultPostgresDB
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	pairs := []string{
		"host=" + quoteDSN(host),
		fmt.Sprintf("port=%d", port),
		"dbname=" + quoteDSN(dbname),
		"sslmode=" + quoteDSN(sslmode),
		"application_name=radiowatch",
	}
	if cfg.PostgresUser != "" {
		pairs = append(pairs, "user="+quoteDSN(cfg.PostgresUser))
	}
	if cfg.PostgresPassword != "" {
		pairs = append(pairs, "password="+quoteDSN(cfg.PostgresPassword))
	}
	return strings.Join(pairs, " ")
}

func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func pingOnOpen(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	return nil
}
