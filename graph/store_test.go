package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/ident"
)

var (
	textInput = Template{
		Kind:          KindInput,
		Name:          "Text Input",
		Icon:          "Type",
		Outputs:       []PortSpec{{Name: "text", DataType: "string"}},
		DefaultConfig: map[string]any{"value": ""},
	}
	transform = Template{
		Kind:          KindProcess,
		Name:          "Transform",
		Icon:          "Shuffle",
		Inputs:        []PortSpec{{Name: "input", DataType: "any"}},
		Outputs:       []PortSpec{{Name: "output", DataType: "any"}},
		DefaultConfig: map[string]any{"expression": "x", "mode": "map"},
	}
	display = Template{
		Kind:   KindOutput,
		Name:   "Display",
		Icon:   "Monitor",
		Inputs: []PortSpec{{Name: "data", DataType: "any"}},
	}
)

func newTestStore() *Store {
	return NewStore(ident.New())
}

func TestInstantiateNode(t *testing.T) {
	s := newTestStore()

	n := s.InstantiateNode(transform, Position{X: 10, Y: -5})
	require.NotNil(t, n)
	assert.Equal(t, "node-1", n.ID)
	assert.Equal(t, KindProcess, n.Kind)
	assert.Equal(t, Position{X: 10, Y: -5}, n.Position, "no clamping at the store")
	require.Len(t, n.Inputs, 1)
	require.Len(t, n.Outputs, 1)
	assert.Equal(t, Input, n.Inputs[0].Direction)
	assert.Equal(t, Output, n.Outputs[0].Direction)
	assert.NotEqual(t, n.Inputs[0].ID, n.Outputs[0].ID)
	assert.Equal(t, "node-1", s.SelectedNodeID(), "new node is selected")

	// Config is a copy of the template defaults
	require.NoError(t, s.PatchNodeConfig(n.ID, map[string]any{"mode": "filter"}))
	assert.Equal(t, "map", transform.DefaultConfig["mode"])
}

func TestInstantiateNode_NilDefaults(t *testing.T) {
	s := newTestStore()
	n := s.InstantiateNode(display, Position{})
	assert.NotNil(t, n.Config)
	assert.Empty(t, n.Config)
}

func TestIdentifierUniqueness(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 50; i++ {
		s.InstantiateNode(transform, Position{})
	}
	nodes := s.Nodes()
	for i := 1; i < len(nodes); i++ {
		c, err := s.Connect(nodes[i-1].ID, nodes[i-1].Outputs[0].ID, nodes[i].ID, nodes[i].Inputs[0].ID)
		require.NoError(t, err)
		require.NotEmpty(t, c.ID)
	}

	seen := make(map[string]bool)
	mark := func(id string) {
		require.False(t, seen[id], "identifier %s reused", id)
		seen[id] = true
	}
	for _, n := range s.Nodes() {
		mark(n.ID)
		for _, p := range n.Inputs {
			mark(p.ID)
		}
		for _, p := range n.Outputs {
			mark(p.ID)
		}
	}
	for _, c := range s.Connections() {
		mark(c.ID)
	}
}

func TestNodeIDsNeverReused(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{})
	require.NoError(t, s.DeleteNode(a.ID))
	s.Clear()
	b := s.InstantiateNode(textInput, Position{})
	assert.Equal(t, "node-2", b.ID)
}

func TestConnect_SelfLoop(t *testing.T) {
	s := newTestStore()
	n := s.InstantiateNode(transform, Position{})

	c, err := s.Connect(n.ID, n.Outputs[0].ID, n.ID, n.Inputs[0].ID)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, errors.ErrSelfLoop))
	assert.False(t, errors.Is(err, errors.ErrDuplicateConnection))
	assert.False(t, errors.Is(err, errors.ErrDirectionMismatch))
	assert.True(t, errors.IsRejected(err))
	assert.Empty(t, s.Connections())
}

func TestConnect_Duplicate(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{})
	b := s.InstantiateNode(display, Position{})

	first, err := s.Connect(a.ID, a.Outputs[0].ID, b.ID, b.Inputs[0].ID)
	require.NoError(t, err)

	_, err = s.Connect(a.ID, a.Outputs[0].ID, b.ID, b.Inputs[0].ID)
	assert.True(t, errors.Is(err, errors.ErrDuplicateConnection))
	assert.False(t, errors.Is(err, errors.ErrSelfLoop))
	assert.True(t, errors.IsRejected(err))

	conns := s.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, first.ID, conns[0].ID)
}

func TestConnect_Structural(t *testing.T) {
	s := newTestStore()
	// Unknown nodes and ports are accepted; the store only checks structure
	c, err := s.Connect("node-9", "p", "node-10", "q")
	require.NoError(t, err)
	assert.Equal(t, "node-9", c.SourceNodeID)
}

func TestDeleteNode_Cascade(t *testing.T) {
	s := newTestStore()
	in := s.InstantiateNode(textInput, Position{})
	mid := s.InstantiateNode(transform, Position{})
	out := s.InstantiateNode(display, Position{})

	_, err := s.Connect(in.ID, in.Outputs[0].ID, mid.ID, mid.Inputs[0].ID)
	require.NoError(t, err)
	keep, err := s.Connect(in.ID, in.Outputs[0].ID, out.ID, out.Inputs[0].ID)
	require.NoError(t, err)
	_, err = s.Connect(mid.ID, mid.Outputs[0].ID, out.ID, out.Inputs[0].ID)
	require.NoError(t, err)

	require.NoError(t, s.SelectNode(mid.ID))
	require.NoError(t, s.DeleteNode(mid.ID))

	conns := s.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, keep.ID, conns[0].ID)
	for _, c := range conns {
		assert.False(t, c.Touches(mid.ID))
	}
	assert.Empty(t, s.SelectedNodeID())
	_, ok := s.Node(mid.ID)
	assert.False(t, ok)
}

func TestDeleteNode_KeepsOtherSelection(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{})
	b := s.InstantiateNode(display, Position{})
	require.NoError(t, s.SelectNode(a.ID))
	require.NoError(t, s.DeleteNode(b.ID))
	assert.Equal(t, a.ID, s.SelectedNodeID())
}

func TestNotFound_NoStateChange(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{X: 1, Y: 2})
	before := s.Snapshot()

	changes := 0
	unsubscribe := s.Subscribe(func(Change) { changes++ })
	defer unsubscribe()

	assert.True(t, errors.IsNotFoundError(s.DeleteNode("node-404")))
	assert.True(t, errors.IsNotFoundError(s.RepositionNode("node-404", Position{})))
	assert.True(t, errors.IsNotFoundError(s.PatchNodeConfig("node-404", map[string]any{"a": 1})))
	assert.True(t, errors.IsNotFoundError(s.DeleteConnection("conn-404")))
	assert.True(t, errors.IsNotFoundError(s.SelectNode("node-404")))

	assert.Equal(t, before, s.Snapshot())
	assert.Zero(t, changes)
	assert.Equal(t, a.ID, s.SelectedNodeID())
}

func TestRepositionNode(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{})
	b := s.InstantiateNode(display, Position{})
	_, err := s.Connect(a.ID, a.Outputs[0].ID, b.ID, b.Inputs[0].ID)
	require.NoError(t, err)

	require.NoError(t, s.RepositionNode(a.ID, Position{X: -40, Y: 300}))
	n, ok := s.Node(a.ID)
	require.True(t, ok)
	assert.Equal(t, Position{X: -40, Y: 300}, n.Position)
	assert.Len(t, s.Connections(), 1)
	assert.Equal(t, b.ID, s.SelectedNodeID())
}

func TestPatchNodeConfig_ShallowMerge(t *testing.T) {
	s := newTestStore()
	n := s.InstantiateNode(Template{
		Kind:          KindProcess,
		Name:          "Filter",
		DefaultConfig: map[string]any{"a": 1, "b": 2},
	}, Position{})

	require.NoError(t, s.PatchNodeConfig(n.ID, map[string]any{"b": 3, "c": 4}))
	got, _ := s.Node(n.ID)
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4}, got.Config)

	// Nested values are replaced, not merged
	require.NoError(t, s.PatchNodeConfig(n.ID, map[string]any{"a": map[string]any{"x": 1}}))
	require.NoError(t, s.PatchNodeConfig(n.ID, map[string]any{"a": map[string]any{"y": 2}}))
	got, _ = s.Node(n.ID)
	assert.Equal(t, map[string]any{"y": 2}, got.Config["a"])
}

func TestClear_Idempotent(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{})
	b := s.InstantiateNode(display, Position{})
	_, err := s.Connect(a.ID, a.Outputs[0].ID, b.ID, b.Inputs[0].ID)
	require.NoError(t, err)

	s.Clear()
	first := s.Snapshot()
	s.Clear()
	second := s.Snapshot()

	assert.Empty(t, first.Nodes)
	assert.Empty(t, first.Connections)
	assert.Empty(t, first.SelectedNodeID)
	assert.Equal(t, first, second)
}

func TestSelection(t *testing.T) {
	s := newTestStore()
	a := s.InstantiateNode(textInput, Position{})
	s.InstantiateNode(display, Position{})

	require.NoError(t, s.SelectNode(a.ID))
	assert.Equal(t, a.ID, s.SelectedNodeID())
	s.ClearSelection()
	assert.Empty(t, s.SelectedNodeID())
}

func TestSnapshotImmutable(t *testing.T) {
	s := newTestStore()
	n := s.InstantiateNode(transform, Position{})
	snap := s.Snapshot()

	require.NoError(t, s.PatchNodeConfig(n.ID, map[string]any{"mode": "reduce"}))
	require.NoError(t, s.RepositionNode(n.ID, Position{X: 99}))

	old, _ := snap.Node(n.ID)
	assert.Equal(t, "map", old.Config["mode"])
	assert.Equal(t, 0.0, old.Position.X)

	// Mutating a returned copy does not reach the store
	old.Config["mode"] = "hacked"
	old.Inputs[0].Name = "hacked"
	cur, _ := s.Node(n.ID)
	assert.Equal(t, "reduce", cur.Config["mode"])
	assert.Equal(t, "input", cur.Inputs[0].Name)
}

func TestSubscribe_OrderAndSnapshot(t *testing.T) {
	s := newTestStore()

	var ops []ChangeOp
	var last Change
	unsubscribe := s.Subscribe(func(c Change) {
		ops = append(ops, c.Op)
		last = c
		// Reads are allowed from inside an observer
		_ = s.Snapshot()
	})

	a := s.InstantiateNode(textInput, Position{})
	b := s.InstantiateNode(display, Position{})
	c, err := s.Connect(a.ID, a.Outputs[0].ID, b.ID, b.Inputs[0].ID)
	require.NoError(t, err)
	require.NoError(t, s.DeleteNode(a.ID))

	assert.Equal(t, []ChangeOp{OpNodeAdded, OpNodeAdded, OpConnectionAdded, OpNodeDeleted}, ops)
	assert.Equal(t, a.ID, last.NodeID)
	require.Len(t, last.Removed, 1)
	assert.Equal(t, c.ID, last.Removed[0].ID)
	assert.Len(t, last.Snapshot.Nodes, 1)

	unsubscribe()
	unsubscribe()
	s.Clear()
	assert.Len(t, ops, 4)
}

func TestSubscribe_RejectedOpsDoNotPublish(t *testing.T) {
	s := newTestStore()
	n := s.InstantiateNode(transform, Position{})

	published := 0
	defer s.Subscribe(func(Change) { published++ })()

	_, err := s.Connect(n.ID, n.Outputs[0].ID, n.ID, n.Inputs[0].ID)
	require.Error(t, err)
	assert.Zero(t, published)
}

func TestConcurrentMutations(t *testing.T) {
	s := newTestStore()
	const workers = 8

	var mu sync.Mutex
	var seen []int
	defer s.Subscribe(func(c Change) {
		mu.Lock()
		seen = append(seen, len(c.Snapshot.Nodes))
		mu.Unlock()
	})()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				s.InstantiateNode(transform, Position{})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.Nodes(), workers*25)
	// Observers see node counts in mutation order
	for i := 1; i < len(seen); i++ {
		assert.Equal(t, seen[i-1]+1, seen[i])
	}
}

func TestRestore(t *testing.T) {
	src := newTestStore()
	a := src.InstantiateNode(textInput, Position{X: 5})
	b := src.InstantiateNode(display, Position{X: 300})
	good, err := src.Connect(a.ID, a.Outputs[0].ID, b.ID, b.Inputs[0].ID)
	require.NoError(t, err)

	snap := src.Snapshot()
	snap.SelectedNodeID = a.ID
	snap.Connections = append(snap.Connections,
		Connection{ID: "conn-dangling", SourceNodeID: a.ID, SourcePortID: a.Outputs[0].ID, TargetNodeID: "node-77", TargetPortID: "p"},
		Connection{ID: "conn-badport", SourceNodeID: a.ID, SourcePortID: "port-nope", TargetNodeID: b.ID, TargetPortID: b.Inputs[0].ID},
		Connection{ID: "conn-loop", SourceNodeID: a.ID, SourcePortID: a.Outputs[0].ID, TargetNodeID: a.ID, TargetPortID: a.Outputs[0].ID},
		Connection{ID: "conn-dup", SourceNodeID: a.ID, SourcePortID: a.Outputs[0].ID, TargetNodeID: b.ID, TargetPortID: b.Inputs[0].ID},
	)

	dst := newTestStore()
	report, err := dst.Restore(snap)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Nodes)
	assert.Equal(t, 1, report.Connections)
	reasons := map[string]DropReason{}
	for _, d := range report.Dropped {
		reasons[d.Connection.ID] = d.Reason
	}
	assert.Equal(t, map[string]DropReason{
		"conn-dangling": DropDangling,
		"conn-badport":  DropDangling,
		"conn-loop":     DropSelfLoop,
		"conn-dup":      DropDuplicate,
	}, reasons)

	conns := dst.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, good.ID, conns[0].ID)
	assert.Equal(t, a.ID, dst.SelectedNodeID())

	// Counter advanced past imported ids
	next := dst.InstantiateNode(textInput, Position{})
	assert.Equal(t, "node-3", next.ID)
}

func TestRestore_DuplicateNodeIDs(t *testing.T) {
	s := newTestStore()
	existing := s.InstantiateNode(textInput, Position{})

	_, err := s.Restore(Snapshot{Nodes: []Node{{ID: "node-1"}, {ID: "node-1"}}})
	assert.True(t, errors.Is(err, errors.ErrConflict))

	nodes := s.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, existing.ID, nodes[0].ID)
}
