package contacts

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresUpdateResearch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contacts`).
		WithArgs("c1", "research notes", ResearchTag, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpdateResearch(context.Background(), "c1", "research notes", []string{ResearchTag})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateResearchExecError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contacts`).
		WithArgs("c1", "notes", "", pgxmock.AnyArg()).
		WillReturnError(eris.New("connection lost"))

	err := s.UpdateResearch(context.Background(), "c1", "notes", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update contact c1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateResearchEmptyID(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	err := s.UpdateResearch(context.Background(), "", "notes", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact id is required")
}
