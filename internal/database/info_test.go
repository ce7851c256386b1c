package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("scans every column", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
		mock.ExpectQuery("pg_database_size").
			WillReturnRows(pgxmock.NewRows([]string{"db", "user", "version", "now", "size"}).
				AddRow("papers", "etl", "PostgreSQL 16.3", now, "42 MB"))

		info, err := QueryInfo(ctx, mock)
		require.NoError(t, err)
		assert.Equal(t, &Info{Database: "papers", User: "etl", Version: "PostgreSQL 16.3", ServerTime: now, Size: "42 MB"}, info)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("current_database").WillReturnError(errors.New("connection reset"))

		_, err = QueryInfo(ctx, mock)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query database info")
	})
}
