package sqlrows_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/plugins/sqlrows"
)

func TestQueryMapsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	when := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, at FROM things WHERE kind = $1")).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "at"}).
			AddRow(int64(1), []byte("first"), when).
			AddRow(int64(2), "second", nil))

	q := sq.Select("id", "name", "at").From("things").Where(sq.Eq{"kind": "a"}).PlaceholderFormat(sq.Dollar)
	rows, err := sqlrows.Query(context.Background(), db, q)
	require.NoError(t, err)
	require.Equal(t, []map[string]any{
		{"id": int64(1), "name": "first", "at": "2025-03-01T12:00:00Z"},
		{"id": int64(2), "name": "second", "at": nil},
	}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFirstEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := sqlrows.First(context.Background(), db, sq.Select("id").From("things"))
	require.NoError(t, err)
	require.Nil(t, row)
}
