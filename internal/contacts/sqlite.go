package contacts

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode,
// and ensures the contacts table exists.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id            TEXT PRIMARY KEY,
	notes         TEXT,
	tags          TEXT,
	researched_at DATETIME
);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// UpdateResearch upserts research notes and tags onto the contact row.
func (s *SQLiteStore) UpdateResearch(ctx context.Context, contactID, notes string, tags []string) error {
	if contactID == "" {
		return eris.New("sqlite: contact id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, notes, tags, researched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			notes = excluded.notes,
			tags = excluded.tags,
			researched_at = excluded.researched_at`,
		contactID, notes, strings.Join(tags, ","), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contact %s", contactID)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
