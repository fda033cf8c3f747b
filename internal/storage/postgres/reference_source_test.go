package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ptr wraps a value in a pointer so mock rows match the nullable-column
// destinations the code scans into; real pgx performs this coercion itself.
func ptr[T any](v T) *T { return &v }

func TestReferencesFiltersMalformedURLs(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	src, err := NewReferenceSource(mock, "toll_facilities", zap.NewNop())
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"reference"}).
		AddRow(ptr("http://example.com/a.pdf")).
		AddRow(ptr("https://example.org/b.pdf")).
		AddRow(ptr("not a url")).
		AddRow(ptr("/relative/path.pdf")).
		AddRow(ptr("ftp://archive.example.net/c.pdf")).
		AddRow(ptr("")).
		AddRow(nil)
	mock.ExpectQuery("SELECT DISTINCT reference FROM toll_facilities").WillReturnRows(rows)

	refs, err := src.References(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"http://example.com/a.pdf",
		"https://example.org/b.pdf",
		"ftp://archive.example.net/c.pdf",
	}, refs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferencesPropagatesQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	src, err := NewReferenceSource(mock, "toll_facilities", zap.NewNop())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT DISTINCT reference").WillReturnError(context.DeadlineExceeded)

	_, err = src.References(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewReferenceSourceValidatesTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewReferenceSource(mock, "toll; DROP TABLE students", zap.NewNop())
	require.Error(t, err)
}
