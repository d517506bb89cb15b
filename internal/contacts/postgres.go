package contacts

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the contact store uses; pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects a pool and ensures the contacts table exists.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}

	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}
	return s, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id            TEXT PRIMARY KEY,
	notes         TEXT,
	tags          TEXT,
	researched_at TIMESTAMPTZ
)`

// UpdateResearch upserts research notes and tags onto the contact row.
func (s *PostgresStore) UpdateResearch(ctx context.Context, contactID, notes string, tags []string) error {
	if contactID == "" {
		return eris.New("postgres: contact id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (id, notes, tags, researched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			notes = EXCLUDED.notes,
			tags = EXCLUDED.tags,
			researched_at = EXCLUDED.researched_at`,
		contactID, notes, strings.Join(tags, ","), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contact %s", contactID)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
