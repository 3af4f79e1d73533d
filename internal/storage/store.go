package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/quantlab-kr/kscreener/pkg/config"
	"github.com/quantlab-kr/kscreener/pkg/logger"
)

// dateLayout is the calendar-date form used in every date column
const dateLayout = "2006-01-02"

// Store owns the embedded SQLite database file
// ⭐ SSOT: 모든 영속화는 이 타입을 통해서만 수행
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	path   string
}

// Open creates the database file if needed, applies pragmas, creates the
// schema and adds any snapshot columns introduced since the file was made.
// ⭐ SSOT: sql.DB 인스턴스는 여기서만 생성
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	// Ensure the directory exists
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite uses "sqlite" driver name (not "sqlite3")
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer per database file; one connection keeps the pragmas
	// applied below in effect for every statement.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: log, path: cfg.Path}

	if err := s.configure(cfg); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.WithField("path", cfg.Path).Info("Database initialized")
	return s, nil
}

// configure sets up SQLite pragmas
func (s *Store) configure(cfg config.DatabaseConfig) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeMB*1024), // Negative for KB
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}

	if cfg.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate creates the schema and evolves snapshot_metrics in place
func (s *Store) migrate() error {
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	for _, col := range evolvedColumns {
		if err := s.ensureColumn(ctx, "snapshot_metrics", col.name, col.colType); err != nil {
			return fmt.Errorf("ensure column %s: %w", col.name, err)
		}
	}

	return nil
}

// ensureColumn adds a column when the table does not have it yet.
// Existing rows keep their data; the new column reads as NULL.
func (s *Store) ensureColumn(ctx context.Context, table, column, colType string) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	exists := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table_info: %w", err)
		}
		if name == column {
			exists = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if exists {
		return nil
	}

	s.logger.WithFields(map[string]interface{}{
		"table":  table,
		"column": column,
	}).Info("Adding missing column")

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, colType))
	return err
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
