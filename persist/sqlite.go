package persist

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLite stores named documents as rows of a single table.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLite opens (or creates) a SQLite database and initializes the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}

	createSQL := `CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	)`
	if _, err := db.Exec(createSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create table")
	}

	return &SQLite{db: db}, nil
}

// Document returns a Store bound to the named row.
func (s *SQLite) Document(name string) Store {
	return &sqliteDocument{parent: s, name: name}
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteDocument struct {
	parent *SQLite
	name   string
}

func (d *sqliteDocument) Load(ctx context.Context, v interface{}) error {
	var body []byte
	err := d.parent.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE name = ?`, d.name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "load document %s", d.name)
	}
	if err := unmarshal(body, v); err != nil {
		return errors.Wrapf(err, "decode document %s", d.name)
	}
	return nil
}

func (d *sqliteDocument) Save(ctx context.Context, v interface{}) error {
	body, err := marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode document")
	}

	d.parent.mu.Lock()
	defer d.parent.mu.Unlock()

	_, err = d.parent.db.ExecContext(ctx,
		`INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		d.name, body, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "save document %s", d.name)
	}
	return nil
}
