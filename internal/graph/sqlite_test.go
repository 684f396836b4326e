package graph

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportSQLite(t *testing.T) {
	ctx := context.Background()
	g, err := Load(ctx, chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "lineage.db")
	require.NoError(t, ExportSQLite(ctx, dbPath, g))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var steps, files, edges int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM steps").Scan(&steps))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM files").Scan(&files))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM edges").Scan(&edges))
	assert.Equal(t, 2, steps)
	assert.Equal(t, 2, files)
	assert.Equal(t, 3, edges)

	// The consumer edge is queryable by direction and argument name.
	var stepID string
	require.NoError(t, db.QueryRow(`
		SELECT e.step_id FROM edges e
		JOIN files f ON f.file_id = e.file_id
		WHERE e.direction = 'in' AND e.arg = 'inBam' AND f.hash = ?`,
		f1.Hash).Scan(&stepID))
	assert.Equal(t, "sB", stepID)

	var reconstructed bool
	require.NoError(t, db.QueryRow(
		"SELECT reconstructed FROM edges WHERE direction = 'in'").Scan(&reconstructed))
	assert.False(t, reconstructed)
}

func TestExportSQLiteOverwritesPriorSnapshot(t *testing.T) {
	ctx := context.Background()
	g, err := Load(ctx, chainStore(t), quietLoadOptions())
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "lineage.db")
	require.NoError(t, ExportSQLite(ctx, dbPath, g))
	require.NoError(t, ExportSQLite(ctx, dbPath, g))

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var steps int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM steps").Scan(&steps))
	assert.Equal(t, 2, steps, "re-export replaces rows instead of accumulating")
}
