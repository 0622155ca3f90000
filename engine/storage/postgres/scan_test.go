package postgres

import (
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestScanHelpers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	ctx := t.Context()

	t.Run("Should scan a single row with scanOne", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, fields FROM issues WHERE id").WillReturnRows(
			mock.NewRows([]string{"id", "fields"}).AddRow("iss_1", []byte(`{"title":"x"}`)),
		)
		var row entityRow
		err := scanOne(ctx, mock, &row, "SELECT id, fields FROM issues WHERE id = $1", "iss_1")
		require.NoError(t, err)
		require.Equal(t, "iss_1", row.ID)
	})

	t.Run("Should scan multiple rows with scanAll", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, fields FROM issues").WillReturnRows(
			mock.NewRows([]string{"id", "fields"}).
				AddRow("iss_1", []byte(`{"title":"x"}`)).
				AddRow("iss_2", []byte(`{"title":"y"}`)),
		)
		var rows []entityRow
		err := scanAll(ctx, mock, &rows, "SELECT id, fields FROM issues")
		require.NoError(t, err)
		require.Len(t, rows, 2)
	})
}
