package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestOpen_RequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpen_AppliesPragmasAndOnConnect(t *testing.T) {
	t.Parallel()
	called := 0
	pool, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "state.db"),
		PoolSize: 2,
		OnConnect: func(conn *sqlite.Conn) error {
			called++
			return sqlitex.ExecuteScript(conn, `CREATE TABLE IF NOT EXISTS t (v TEXT);`, nil)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	conn, err := pool.Take(context.Background())
	require.NoError(t, err)
	defer pool.Put(conn)

	var journalMode string
	err = sqlitex.Execute(conn, "PRAGMA journal_mode", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			journalMode = stmt.ColumnText(0)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "wal", journalMode)
	assert.Equal(t, 1, called)

	require.NoError(t, sqlitex.Execute(conn, "INSERT INTO t (v) VALUES (?)", &sqlitex.ExecOptions{Args: []any{"x"}}))
}
