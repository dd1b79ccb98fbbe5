package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// migration is one step of the archive schema. Step i moves user_version
// from i to i+1.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		// Reading a run back relies on seq being a total order.
		name: "unique case order",
		sql:  `CREATE UNIQUE INDEX IF NOT EXISTS idx_cases_seq_unique ON cases(run_uuid, seq)`,
	},
	{
		name: "failed case lookup",
		sql: `CREATE INDEX IF NOT EXISTS idx_cases_failed ON cases(run_uuid)
			WHERE error_status IS NOT NULL AND error_status != 0`,
	},
}

// SchemaVersion is the user_version of a fully migrated archive.
var SchemaVersion = len(migrations)

// Store is a SQLite archive of imported case files.
//
// Thread-safety: safe for concurrent use. Writes are serialized on a single
// connection.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Option configures Open.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// dsn builds the connection string. The pragmas are connection parameters
// so that every pooled connection gets them.
func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return "file:" + path + "?" + q.Encode()
}

// Open creates or opens the archive at path, creating tables and applying
// pending migrations. Opening an up-to-date archive changes nothing.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to archive %s: %w", path, err)
	}
	// One writer at a time; a second connection only earns SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug("archive open", zap.String("path", path), zap.Int("schema_version", SchemaVersion))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("archive schema version %d is newer than supported version %d", version, SchemaVersion)
	}

	for v := version; v < SchemaVersion; v++ {
		m := migrations[v]
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", v+1, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): set user_version: %w", v+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit: %w", v+1, m.name, err)
		}
		s.log.Info("archive migrated", zap.Int("version", v+1), zap.String("migration", m.name))
	}
	return nil
}

// pragma reads one pragma as text.
func (s *Store) pragma(name string) (string, error) {
	var v string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return v, nil
}
