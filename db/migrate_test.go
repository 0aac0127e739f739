package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWithMigrations(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "graphs", "graph_nodes", "graph_ports", "graph_connections"} {
		var exists int
		err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "table %s should exist after migrations", table)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("records every migration", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
		assert.Equal(t, 2, count)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")
	})

	t.Run("deleting a graph cascades", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO graphs (name, created_at, updated_at) VALUES ('g', datetime('now'), datetime('now'))`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO graph_nodes (graph_name, id, ordinal, kind, name) VALUES ('g', 'node-1', 0, 'input', 'Text Input')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO graph_ports (graph_name, node_id, id, ordinal, name, direction) VALUES ('g', 'node-1', 'port-a', 0, 'text', 'output')`)
		require.NoError(t, err)

		_, err = db.Exec(`DELETE FROM graphs WHERE name = 'g'`)
		require.NoError(t, err)

		var ports int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM graph_ports`).Scan(&ports))
		assert.Zero(t, ports)
	})

	t.Run("closed database fails", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})
}
