package graph

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/ident"
	"github.com/teranos/flowcanvas/logger"
)

// IDSource issues element identifiers. *ident.Generator implements it.
type IDSource interface {
	NextNodeID() string
	NextPortID() string
	NextConnectionID() string
	Advance(n uint64)
}

// Observer receives every change published by the store. Observers run on the
// mutating goroutine after the state lock is released and must not mutate the
// store from inside the callback.
type Observer func(Change)

// Store is the canonical owner of the nodes and connections of one graph.
// All methods are safe for concurrent use; mutations apply in arrival order
// and observers see changes in that same order.
type Store struct {
	mu       sync.Mutex
	ids      IDSource
	nodes    []*Node
	index    map[string]*Node
	conns    []Connection
	selected string

	// notifyMu is taken before mu is released so notifications keep mutation order
	notifyMu sync.Mutex

	subsMu  sync.Mutex
	subs    map[int]Observer
	subSeq  int
	subList []int

	logger *zap.SugaredLogger
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithLogger sets the logger used for mutation traces
func WithLogger(logger *zap.SugaredLogger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store. A nil ids uses a fresh ident.Generator.
func NewStore(ids IDSource, opts ...StoreOption) *Store {
	if ids == nil {
		ids = ident.New()
	}
	s := &Store{
		ids:   ids,
		index: make(map[string]*Node),
		subs:  make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers an observer and returns a function that removes it
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.subsMu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn
	s.subList = append(s.subList, id)
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subs, id)
			for i, sid := range s.subList {
				if sid == id {
					s.subList = append(s.subList[:i], s.subList[i+1:]...)
					break
				}
			}
		})
	}
}

// publish must be called with s.mu held; it releases s.mu.
func (s *Store) publish(change Change) {
	change.Snapshot = s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.subsMu.Lock()
	observers := make([]Observer, 0, len(s.subList))
	for _, id := range s.subList {
		observers = append(observers, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

// InstantiateNode creates a node from a template at pos, appends it and
// selects it. Position is taken as given.
func (s *Store) InstantiateNode(tpl Template, pos Position) *Node {
	s.mu.Lock()

	node := &Node{
		ID:          s.ids.NextNodeID(),
		Kind:        tpl.Kind,
		Name:        tpl.Name,
		Icon:        tpl.Icon,
		Description: tpl.Description,
		Inputs:      s.instantiatePorts(tpl.Inputs, Input),
		Outputs:     s.instantiatePorts(tpl.Outputs, Output),
		Config:      copyConfig(tpl.DefaultConfig),
		Position:    pos,
	}
	s.nodes = append(s.nodes, node)
	s.index[node.ID] = node
	s.selected = node.ID

	out := node.Clone()
	s.debugw("Node added", logger.FieldNodeID, node.ID, logger.FieldKind, node.Kind)
	s.publish(Change{Op: OpNodeAdded, NodeID: node.ID})
	return &out
}

func (s *Store) instantiatePorts(specs []PortSpec, dir Direction) []Port {
	ports := make([]Port, 0, len(specs))
	for _, spec := range specs {
		ports = append(ports, Port{
			ID:        s.ids.NextPortID(),
			Name:      spec.Name,
			Direction: dir,
			DataType:  spec.DataType,
		})
	}
	return ports
}

// RepositionNode replaces the node's position
func (s *Store) RepositionNode(id string, pos Position) error {
	s.mu.Lock()
	node, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("node %s", id)
	}
	node.Position = pos
	s.publish(Change{Op: OpNodeMoved, NodeID: id})
	return nil
}

// PatchNodeConfig shallow-merges patch into the node's config. Keys in patch
// overwrite; keys absent from patch are kept.
func (s *Store) PatchNodeConfig(id string, patch map[string]any) error {
	s.mu.Lock()
	node, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("node %s", id)
	}
	// Copy on write: published snapshots may still reference the old map
	merged := copyConfig(node.Config)
	for k, v := range patch {
		merged[k] = v
	}
	node.Config = merged
	s.debugw("Node config patched", logger.FieldNodeID, id, "keys", len(patch))
	s.publish(Change{Op: OpNodeConfigPatched, NodeID: id})
	return nil
}

// DeleteNode removes the node and every connection touching it, and clears
// the selection if it pointed at the node.
func (s *Store) DeleteNode(id string) error {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("node %s", id)
	}

	for i, n := range s.nodes {
		if n.ID == id {
			s.nodes = append(s.nodes[:i:i], s.nodes[i+1:]...)
			break
		}
	}
	delete(s.index, id)

	var removed []Connection
	kept := make([]Connection, 0, len(s.conns))
	for _, c := range s.conns {
		if c.Touches(id) {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	s.conns = kept

	if s.selected == id {
		s.selected = ""
	}

	s.debugw("Node deleted", logger.FieldNodeID, id, "cascaded_connections", len(removed))
	s.publish(Change{Op: OpNodeDeleted, NodeID: id, Removed: removed})
	return nil
}

// Connect appends a connection from srcNode/srcPort to tgtNode/tgtPort.
// The check is structural only: self loops and exact duplicates are refused,
// direction and port ownership are the caller's concern.
func (s *Store) Connect(srcNode, srcPort, tgtNode, tgtPort string) (*Connection, error) {
	if srcNode == tgtNode {
		return nil, errors.Wrapf(errors.ErrSelfLoop, "connect %s", srcNode)
	}

	s.mu.Lock()
	candidate := Connection{
		SourceNodeID: srcNode,
		SourcePortID: srcPort,
		TargetNodeID: tgtNode,
		TargetPortID: tgtPort,
	}
	for _, c := range s.conns {
		if c.SameEndpoints(candidate) {
			s.mu.Unlock()
			return nil, errors.Wrapf(errors.ErrDuplicateConnection, "connect %s.%s -> %s.%s", srcNode, srcPort, tgtNode, tgtPort)
		}
	}

	candidate.ID = s.ids.NextConnectionID()
	s.conns = append(s.conns, candidate)
	s.debugw("Connection added", logger.FieldConnectionID, candidate.ID, "source", srcNode, "target", tgtNode)
	s.publish(Change{Op: OpConnectionAdded, ConnectionID: candidate.ID})
	return &candidate, nil
}

// DeleteConnection removes the connection with the given id
func (s *Store) DeleteConnection(id string) error {
	s.mu.Lock()
	for i, c := range s.conns {
		if c.ID == id {
			s.conns = append(s.conns[:i:i], s.conns[i+1:]...)
			s.publish(Change{Op: OpConnectionDeleted, ConnectionID: id, Removed: []Connection{c}})
			return nil
		}
	}
	s.mu.Unlock()
	return errors.NewNotFoundError("connection %s", id)
}

// Clear empties the graph and clears the selection. Clearing an empty graph
// is allowed and still publishes.
func (s *Store) Clear() {
	s.mu.Lock()
	s.nodes = nil
	s.index = make(map[string]*Node)
	s.conns = nil
	s.selected = ""
	s.publish(Change{Op: OpCleared})
}

// SelectNode makes id the selected node
func (s *Store) SelectNode(id string) error {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return errors.NewNotFoundError("node %s", id)
	}
	if s.selected == id {
		s.mu.Unlock()
		return nil
	}
	s.selected = id
	s.publish(Change{Op: OpSelectionChanged, NodeID: id})
	return nil
}

// ClearSelection deselects the selected node, if any
func (s *Store) ClearSelection() {
	s.mu.Lock()
	if s.selected == "" {
		s.mu.Unlock()
		return
	}
	s.selected = ""
	s.publish(Change{Op: OpSelectionChanged})
}

// Nodes returns copies of all nodes in creation order
func (s *Store) Nodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nodesLocked()
}

// Connections returns all connections in creation order
func (s *Store) Connections() []Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Connection(nil), s.conns...)
}

// Node returns a copy of the node with the given id
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return n.Clone(), true
}

// SelectedNodeID returns the selected node id, or "" when nothing is selected
func (s *Store) SelectedNodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Snapshot returns an immutable copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) nodesLocked() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n.Clone())
	}
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Nodes:          s.nodesLocked(),
		Connections:    append([]Connection(nil), s.conns...),
		SelectedNodeID: s.selected,
	}
}

// DropReason explains why Restore discarded a connection
type DropReason string

const (
	DropDangling  DropReason = "dangling"
	DropSelfLoop  DropReason = "self_loop"
	DropDuplicate DropReason = "duplicate"
)

// DroppedConnection is a connection Restore refused to import
type DroppedConnection struct {
	Connection Connection `json:"connection"`
	Reason     DropReason `json:"reason"`
}

// RestoreReport describes what Restore discarded
type RestoreReport struct {
	Nodes       int                 `json:"nodes"`
	Connections int                 `json:"connections"`
	Dropped     []DroppedConnection `json:"dropped,omitempty"`
}

// Restore replaces the whole state with snap. Connections that reference a
// missing node or port, self loops and duplicates are dropped and reported.
// Duplicate node ids fail with ErrConflict and leave the store unchanged.
// The id source is advanced past every imported "node-<n>" id.
func (s *Store) Restore(snap Snapshot) (RestoreReport, error) {
	index := make(map[string]*Node, len(snap.Nodes))
	nodes := make([]*Node, 0, len(snap.Nodes))
	var maxSeq uint64
	for i := range snap.Nodes {
		n := snap.Nodes[i].Clone()
		if _, dup := index[n.ID]; dup {
			return RestoreReport{}, errors.Wrapf(errors.ErrConflict, "node id %s appears twice", n.ID)
		}
		index[n.ID] = &n
		nodes = append(nodes, &n)
		if seq, ok := ident.NodeSeq(n.ID); ok && seq > maxSeq {
			maxSeq = seq
		}
	}

	report := RestoreReport{Nodes: len(nodes)}
	conns := make([]Connection, 0, len(snap.Connections))
	for _, c := range snap.Connections {
		if c.ID == "" {
			c.ID = s.ids.NextConnectionID()
		}
		reason, ok := admitConnection(index, conns, c)
		if !ok {
			report.Dropped = append(report.Dropped, DroppedConnection{Connection: c, Reason: reason})
			continue
		}
		conns = append(conns, c)
	}
	report.Connections = len(conns)

	s.mu.Lock()
	s.nodes = nodes
	s.index = index
	s.conns = conns
	s.selected = ""
	if _, ok := index[snap.SelectedNodeID]; ok {
		s.selected = snap.SelectedNodeID
	}
	s.ids.Advance(maxSeq)
	if s.logger != nil {
		s.logger.Infow("Graph restored",
			"nodes", report.Nodes,
			"connections", report.Connections,
			"dropped", len(report.Dropped),
		)
	}
	s.publish(Change{Op: OpRestored})
	return report, nil
}

func admitConnection(index map[string]*Node, admitted []Connection, c Connection) (DropReason, bool) {
	if c.SourceNodeID == c.TargetNodeID {
		return DropSelfLoop, false
	}
	src, ok := index[c.SourceNodeID]
	if !ok {
		return DropDangling, false
	}
	tgt, ok := index[c.TargetNodeID]
	if !ok {
		return DropDangling, false
	}
	if _, ok := src.Port(c.SourcePortID); !ok {
		return DropDangling, false
	}
	if _, ok := tgt.Port(c.TargetPortID); !ok {
		return DropDangling, false
	}
	for _, a := range admitted {
		if a.ID == c.ID || a.SameEndpoints(c) {
			return DropDuplicate, false
		}
	}
	return "", true
}

func (s *Store) debugw(msg string, keysAndValues ...interface{}) {
	if s.logger != nil {
		s.logger.Debugw(msg, keysAndValues...)
	}
}
