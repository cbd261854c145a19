package audit

import (
	"context"
	"log/slog"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "planbase/internal/db"
)

func TestRecorder_WritesEntry(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	rec := NewRecorder(writeDB, slog.Default())

	rec.Record(context.Background(), "u-1", "update", "projects", "p-1")

	var actor, action, table, recordID string
	err := writeDB.QueryRow(
		"SELECT actor_id, action, table_name, record_id FROM audit_log").
		Scan(&actor, &action, &table, &recordID)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor)
	assert.Equal(t, "update", action)
	assert.Equal(t, "projects", table)
	assert.Equal(t, "p-1", recordID)
}

func TestRecorder_FailureDoesNotPanic(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	_, err := writeDB.Exec("DROP TABLE audit_log")
	require.NoError(t, err)

	rec := NewRecorder(writeDB, slog.Default())
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), "u-1", "update", "projects", "p-1")
	})
}

func TestRetention_PurgesOldEntries(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)

	_, err := writeDB.Exec(
		"INSERT INTO audit_log (id, actor_id, action, table_name, record_id, created_at) VALUES "+
			"('a-old', 'u-1', 'update', 'projects', 'p-1', datetime('now', '-40 days')), "+
			"('a-new', 'u-1', 'update', 'projects', 'p-1', datetime('now'))")
	require.NoError(t, err)

	ret, err := NewRetention(writeDB, 30, slog.Default())
	require.NoError(t, err)

	n, err := ret.Purge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var remaining string
	require.NoError(t, writeDB.QueryRow("SELECT id FROM audit_log").Scan(&remaining))
	assert.Equal(t, "a-new", remaining)
}

func TestNewRetention_RejectsNonPositiveDays(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)

	_, err := NewRetention(writeDB, 0, slog.Default())
	assert.Error(t, err)
}
