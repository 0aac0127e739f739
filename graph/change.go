package graph

// ChangeOp names the mutation that produced a Change
type ChangeOp string

const (
	OpNodeAdded         ChangeOp = "node_added"
	OpNodeMoved         ChangeOp = "node_moved"
	OpNodeConfigPatched ChangeOp = "node_config_patched"
	OpNodeDeleted       ChangeOp = "node_deleted"
	OpConnectionAdded   ChangeOp = "connection_added"
	OpConnectionDeleted ChangeOp = "connection_deleted"
	OpSelectionChanged  ChangeOp = "selection_changed"
	OpCleared           ChangeOp = "cleared"
	OpRestored          ChangeOp = "restored"
)

// Change is published to subscribers after every successful mutation
type Change struct {
	Op ChangeOp `json:"op"`
	// NodeID / ConnectionID identify the element the op targeted, when there is one
	NodeID       string `json:"node_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	// Removed lists connections dropped as a side effect (cascade delete)
	Removed  []Connection `json:"removed,omitempty"`
	Snapshot Snapshot     `json:"snapshot"`
}

// Snapshot is an immutable copy of the store state. Node and connection order
// is creation order.
type Snapshot struct {
	Nodes          []Node       `json:"nodes"`
	Connections    []Connection `json:"connections"`
	SelectedNodeID string       `json:"selected_node_id,omitempty"`
}

// Node returns the node with the given id
func (s Snapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Connection returns the connection with the given id
func (s Snapshot) Connection(id string) (Connection, bool) {
	for _, c := range s.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return Connection{}, false
}

// Validate runs the orphan check over the snapshot
func (s Snapshot) Validate() Report {
	return Validate(s.Nodes, s.Connections)
}
