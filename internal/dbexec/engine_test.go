package dbexec

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbeam/internal/domain"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE t (id INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t VALUES (1), (2), (3)`)
	require.NoError(t, err)
	return db
}

func TestQueryRows(t *testing.T) {
	e := NewFromDB(testDB(t), KindDuckDB, time.Minute)

	rows, err := e.QueryRows(context.Background(), "SELECT id FROM t ORDER BY id")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		got = append(got, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestQueryRows_TimeoutClassified(t *testing.T) {
	e := NewFromDB(testDB(t), KindDuckDB, time.Nanosecond)

	_, err := e.QueryRows(context.Background(), "SELECT id FROM t")
	var timeout *domain.ExecutionTimeout
	require.ErrorAs(t, err, &timeout)
}

func TestAcquireTiming_Serializes(t *testing.T) {
	e := NewFromDB(testDB(t), KindDuckDB, time.Minute)

	release, err := e.AcquireTiming(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = e.AcquireTiming(ctx)
	assert.Error(t, err, "the slot is exclusive while held")

	release()
	release2, err := e.AcquireTiming(context.Background())
	require.NoError(t, err)
	release2()
}

func TestStatementTimeout_Default(t *testing.T) {
	e := NewFromDB(testDB(t), KindDuckDB, 0)
	assert.Equal(t, DefaultStatementTimeout, e.StatementTimeout())
}

func TestMemoryDiagnostics_NonDuckDB(t *testing.T) {
	e := NewFromDB(testDB(t), KindPostgres, time.Minute)
	diags, err := e.MemoryDiagnostics(context.Background())
	require.NoError(t, err)
	assert.Nil(t, diags)
}
