package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/ident"
	fctest "github.com/teranos/flowcanvas/internal/testing"
)

func sampleSnapshot(t *testing.T) graph.Snapshot {
	t.Helper()
	store := graph.NewStore(ident.New())
	src := store.InstantiateNode(graph.Template{
		Kind:          graph.KindInput,
		Name:          "HTTP Request",
		Icon:          "Globe",
		Outputs:       []graph.PortSpec{{Name: "response", DataType: "json"}},
		DefaultConfig: map[string]any{"method": "GET", "retries": 3},
	}, graph.Position{X: 40, Y: 80})
	mid := store.InstantiateNode(graph.Template{
		Kind:    graph.KindProcess,
		Name:    "Merge",
		Inputs:  []graph.PortSpec{{Name: "a"}, {Name: "b"}},
		Outputs: []graph.PortSpec{{Name: "merged"}},
	}, graph.Position{X: 320.5, Y: 80})
	_, err := store.Connect(src.ID, src.Outputs[0].ID, mid.ID, mid.Inputs[1].ID)
	require.NoError(t, err)
	return store.Snapshot()
}

func TestGraphStore_SaveLoad(t *testing.T) {
	db := fctest.CreateTestDB(t)
	store := NewGraphStore(db, nil)
	ctx := context.Background()

	snap := sampleSnapshot(t)
	info, err := store.Save(ctx, "demo", snap)
	require.NoError(t, err)
	assert.Equal(t, 2, info.NodeCount)
	assert.Equal(t, 1, info.ConnectionCount)

	loaded, err := store.Load(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, snap.Connections, loaded.Connections)

	for i := range snap.Nodes {
		want, got := snap.Nodes[i], loaded.Nodes[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Kind, got.Kind)
		assert.Equal(t, want.Name, got.Name)
		assert.Equal(t, want.Icon, got.Icon)
		assert.Equal(t, want.Position, got.Position)
		assert.Equal(t, want.Inputs, got.Inputs)
		assert.Equal(t, want.Outputs, got.Outputs)
	}
	assert.Equal(t, "GET", loaded.Nodes[0].Config["method"])
	assert.EqualValues(t, 3, loaded.Nodes[0].Config["retries"])
	assert.Empty(t, loaded.Nodes[1].Config)
}

func TestGraphStore_SaveReplaces(t *testing.T) {
	db := fctest.CreateTestDB(t)
	store := NewGraphStore(db, nil)
	ctx := context.Background()

	first, err := store.Save(ctx, "demo", sampleSnapshot(t))
	require.NoError(t, err)

	second, err := store.Save(ctx, "demo", graph.Snapshot{})
	require.NoError(t, err)
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Millisecond, "creation time is kept")

	loaded, err := store.Load(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, loaded.Nodes)
	assert.Empty(t, loaded.Connections)

	var ports int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM graph_ports`).Scan(&ports))
	assert.Zero(t, ports)
}

func TestGraphStore_ListDelete(t *testing.T) {
	db := fctest.CreateTestDB(t)
	store := NewGraphStore(db, nil)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		_, err := store.Save(ctx, name, sampleSnapshot(t))
		require.NoError(t, err)
	}

	graphs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, graphs, 2)
	assert.Equal(t, "alpha", graphs[0].Name)
	assert.Equal(t, "beta", graphs[1].Name)
	assert.False(t, graphs[0].UpdatedAt.IsZero())

	require.NoError(t, store.Delete(ctx, "alpha"))
	assert.True(t, errors.IsNotFoundError(store.Delete(ctx, "alpha")))

	_, err = store.Load(ctx, "alpha")
	assert.True(t, errors.IsNotFoundError(err))

	var nodes int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM graph_nodes WHERE graph_name = 'alpha'`).Scan(&nodes))
	assert.Zero(t, nodes, "nodes cascade with the graph")
}

func TestGraphStore_SaveRequiresName(t *testing.T) {
	store := NewGraphStore(fctest.CreateTestDB(t), nil)
	_, err := store.Save(context.Background(), "  ", graph.Snapshot{})
	assert.True(t, errors.IsInvalidRequestError(err))
}

// --- Sqlmock Tests ---

func TestGraphStore_Delete_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM graphs WHERE name = \?`).
		WithArgs("demo").
		WillReturnError(errors.New("disk I/O error"))

	err = NewGraphStore(db, nil).Delete(context.Background(), "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to delete graph demo")
	assert.False(t, errors.IsNotFoundError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphStore_Save_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT created_at FROM graphs`).
		WithArgs("demo").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))
	mock.ExpectExec(`INSERT INTO graphs`).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err = NewGraphStore(db, nil).Save(context.Background(), "demo", graph.Snapshot{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert graph demo")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGraphStore_List_Sqlmock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"name", "node_count", "connection_count", "created_at", "updated_at"}).
		AddRow("demo", 4, 3, "2026-01-02T03:04:05Z", "2026-01-02T03:04:06Z")
	mock.ExpectQuery(`SELECT name, node_count, connection_count, created_at, updated_at\s+FROM graphs`).
		WillReturnRows(rows)

	graphs, err := NewGraphStore(db, nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, graphs, 1)
	assert.Equal(t, 4, graphs[0].NodeCount)
	assert.Equal(t, 2026, graphs[0].CreatedAt.Year())
	assert.NoError(t, mock.ExpectationsWereMet())
}
