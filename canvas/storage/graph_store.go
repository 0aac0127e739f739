// Package storage persists named graphs in sqlite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/logger"
)

// GraphInfo describes a saved graph
type GraphInfo struct {
	Name            string    `json:"name"`
	NodeCount       int       `json:"node_count"`
	ConnectionCount int       `json:"connection_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GraphStore provides storage operations for named graphs
type GraphStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewGraphStore creates a new graph store. logger may be nil.
func NewGraphStore(db *sql.DB, logger *zap.SugaredLogger) *GraphStore {
	return &GraphStore{db: db, logger: logger}
}

// Save writes snap under name, replacing any previous graph with that name.
// The original creation time is kept.
func (s *GraphStore) Save(ctx context.Context, name string, snap graph.Snapshot) (*GraphInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.NewInvalidRequestError("graph name is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to begin save of graph %s", name)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	info := &GraphInfo{
		Name:            name,
		NodeCount:       len(snap.Nodes),
		ConnectionCount: len(snap.Connections),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var createdAt string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM graphs WHERE name = ?`, name).Scan(&createdAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, errors.Wrapf(err, "failed to look up graph %s", name)
	default:
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	}

	query := `
		INSERT INTO graphs (name, node_count, connection_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			node_count = excluded.node_count,
			connection_count = excluded.connection_count,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query,
		info.Name, info.NodeCount, info.ConnectionCount,
		info.CreatedAt.Format(time.RFC3339Nano),
		info.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return nil, errors.Wrapf(err, "failed to upsert graph %s", name)
	}

	// Ports go with their nodes via ON DELETE CASCADE
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_nodes WHERE graph_name = ?`, name); err != nil {
		return nil, errors.Wrapf(err, "failed to clear nodes of graph %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_connections WHERE graph_name = ?`, name); err != nil {
		return nil, errors.Wrapf(err, "failed to clear connections of graph %s", name)
	}

	for i, n := range snap.Nodes {
		if err := insertNode(ctx, tx, name, i, n); err != nil {
			return nil, err
		}
	}
	for i, c := range snap.Connections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_connections (graph_name, id, ordinal, source_node, source_port, target_node, target_port)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			name, c.ID, i, c.SourceNodeID, c.SourcePortID, c.TargetNodeID, c.TargetPortID,
		); err != nil {
			return nil, errors.Wrapf(err, "failed to insert connection %s", c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrapf(err, "failed to commit graph %s", name)
	}

	if s.logger != nil {
		s.logger.Infow("Graph saved", logger.FieldGraph, name, "nodes", info.NodeCount, "connections", info.ConnectionCount)
	}
	return info, nil
}

func insertNode(ctx context.Context, tx *sql.Tx, graphName string, ordinal int, n graph.Node) error {
	config := n.Config
	if config == nil {
		config = map[string]any{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return errors.Wrapf(err, "failed to encode config of node %s", n.ID)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO graph_nodes (graph_name, id, ordinal, kind, name, icon, description, config, x, y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		graphName, n.ID, ordinal, string(n.Kind), n.Name, n.Icon, n.Description,
		string(configJSON), n.Position.X, n.Position.Y,
	); err != nil {
		return errors.Wrapf(err, "failed to insert node %s", n.ID)
	}

	ports := append(append([]graph.Port(nil), n.Inputs...), n.Outputs...)
	for i, p := range ports {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_ports (graph_name, node_id, id, ordinal, name, direction, data_type)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			graphName, n.ID, p.ID, i, p.Name, string(p.Direction), p.DataType,
		); err != nil {
			return errors.Wrapf(err, "failed to insert port %s of node %s", p.ID, n.ID)
		}
	}
	return nil
}

// Load reads the graph saved under name
func (s *GraphStore) Load(ctx context.Context, name string) (graph.Snapshot, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM graphs WHERE name = ?`, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return graph.Snapshot{}, errors.NewNotFoundError("graph %s", name)
	}
	if err != nil {
		return graph.Snapshot{}, errors.Wrapf(err, "failed to get graph %s", name)
	}

	nodes, err := s.loadNodes(ctx, name)
	if err != nil {
		return graph.Snapshot{}, err
	}
	if err := s.loadPorts(ctx, name, nodes); err != nil {
		return graph.Snapshot{}, err
	}
	conns, err := s.loadConnections(ctx, name)
	if err != nil {
		return graph.Snapshot{}, err
	}

	snap := graph.Snapshot{Nodes: make([]graph.Node, 0, len(nodes)), Connections: conns}
	for _, n := range nodes {
		snap.Nodes = append(snap.Nodes, *n)
	}
	return snap, nil
}

func (s *GraphStore) loadNodes(ctx context.Context, name string) ([]*graph.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, icon, description, config, x, y
		FROM graph_nodes WHERE graph_name = ? ORDER BY ordinal ASC`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list nodes of graph %s", name)
	}
	defer rows.Close()

	var nodes []*graph.Node
	for rows.Next() {
		var n graph.Node
		var kind, configJSON string
		if err := rows.Scan(&n.ID, &kind, &n.Name, &n.Icon, &n.Description, &configJSON, &n.Position.X, &n.Position.Y); err != nil {
			return nil, errors.Wrap(err, "failed to scan node")
		}
		n.Kind = graph.Kind(kind)
		if err := json.Unmarshal([]byte(configJSON), &n.Config); err != nil {
			return nil, errors.Wrapf(err, "failed to decode config of node %s", n.ID)
		}
		if n.Config == nil {
			n.Config = map[string]any{}
		}
		nodes = append(nodes, &n)
	}
	return nodes, errors.Wrap(rows.Err(), "failed to iterate nodes")
}

func (s *GraphStore) loadPorts(ctx context.Context, name string, nodes []*graph.Node) error {
	byID := make(map[string]*graph.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, id, name, direction, data_type
		FROM graph_ports WHERE graph_name = ? ORDER BY node_id, ordinal ASC`, name)
	if err != nil {
		return errors.Wrapf(err, "failed to list ports of graph %s", name)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID, dir string
		var p graph.Port
		if err := rows.Scan(&nodeID, &p.ID, &p.Name, &dir, &p.DataType); err != nil {
			return errors.Wrap(err, "failed to scan port")
		}
		p.Direction = graph.Direction(dir)
		n, ok := byID[nodeID]
		if !ok {
			continue
		}
		if p.Direction == graph.Input {
			n.Inputs = append(n.Inputs, p)
		} else {
			n.Outputs = append(n.Outputs, p)
		}
	}
	return errors.Wrap(rows.Err(), "failed to iterate ports")
}

func (s *GraphStore) loadConnections(ctx context.Context, name string) ([]graph.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_node, source_port, target_node, target_port
		FROM graph_connections WHERE graph_name = ? ORDER BY ordinal ASC`, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list connections of graph %s", name)
	}
	defer rows.Close()

	conns := []graph.Connection{}
	for rows.Next() {
		var c graph.Connection
		if err := rows.Scan(&c.ID, &c.SourceNodeID, &c.SourcePortID, &c.TargetNodeID, &c.TargetPortID); err != nil {
			return nil, errors.Wrap(err, "failed to scan connection")
		}
		conns = append(conns, c)
	}
	return conns, errors.Wrap(rows.Err(), "failed to iterate connections")
}

// List returns every saved graph ordered by name
func (s *GraphStore) List(ctx context.Context) ([]*GraphInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, node_count, connection_count, created_at, updated_at
		FROM graphs ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list graphs")
	}
	defer rows.Close()

	var graphs []*GraphInfo
	for rows.Next() {
		var info GraphInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.Name, &info.NodeCount, &info.ConnectionCount, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan graph")
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		graphs = append(graphs, &info)
	}
	return graphs, errors.Wrap(rows.Err(), "failed to iterate graphs")
}

// Delete removes a saved graph with its nodes, ports and connections
func (s *GraphStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "failed to delete graph %s", name)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NewNotFoundError("graph %s", name)
	}

	if s.logger != nil {
		s.logger.Infow("Graph deleted", logger.FieldGraph, name)
	}
	return nil
}
