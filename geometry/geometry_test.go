package geometry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/flowcanvas/graph"
)

func TestCurve_ControlPoints(t *testing.T) {
	tests := []struct {
		name       string
		start, end Point
		wantOffset float64
	}{
		{"short span uses half distance", Point{0, 0}, Point{100, 50}, 50},
		{"long span is capped", Point{0, 0}, Point{500, 0}, 100},
		{"backwards span uses absolute distance", Point{300, 10}, Point{200, 80}, 50},
		{"vertical span has no offset", Point{40, 0}, Point{40, 200}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Curve(tt.start, tt.end)
			assert.Equal(t, tt.start, c.P0)
			assert.Equal(t, tt.end, c.P3)
			assert.Equal(t, Point{tt.start.X + tt.wantOffset, tt.start.Y}, c.P1)
			assert.Equal(t, Point{tt.end.X - tt.wantOffset, tt.end.Y}, c.P2)
		})
	}
}

func TestCubic_At(t *testing.T) {
	c := Curve(Point{0, 0}, Point{100, 100})
	assert.Equal(t, c.P0, c.At(0))
	assert.Equal(t, c.P3, c.At(1))
	mid := c.At(0.5)
	assert.InDelta(t, 50, mid.X, 1e-9)
	assert.InDelta(t, 50, mid.Y, 1e-9)
}

func TestCubic_Distance(t *testing.T) {
	c := Curve(Point{0, 0}, Point{200, 0})
	assert.InDelta(t, 0, c.Distance(Point{100, 0}), 1e-9)
	assert.InDelta(t, 10, c.Distance(Point{100, 10}), 1e-9)
	assert.InDelta(t, 5, c.Distance(Point{-5, 0}), 1e-9)

	diag := Curve(Point{0, 0}, Point{100, 100})
	assert.Less(t, diag.Distance(diag.At(0.3)), 0.5)
	assert.Greater(t, diag.Distance(Point{0, 100}), 20.0)
}

func TestSVGPath(t *testing.T) {
	assert.Equal(t, "M 0 0 C 50 0, 50 50, 100 50", Curve(Point{0, 0}, Point{100, 50}).SVGPath())
}

func TestCardLayout(t *testing.T) {
	node := graph.Node{
		ID:       "node-1",
		Position: graph.Position{X: 10, Y: 20},
		Inputs:   []graph.Port{{ID: "in-a"}, {ID: "in-b"}},
		Outputs:  []graph.Port{{ID: "out-a"}},
	}
	anchors := Static(DefaultCardLayout.Measure([]graph.Node{node}))

	p, ok := anchors.PortPosition("node-1", "in-a")
	require.True(t, ok)
	assert.Equal(t, Point{10, 20 + 44 + 14}, p)

	p, ok = anchors.PortPosition("node-1", "in-b")
	require.True(t, ok)
	assert.Equal(t, Point{10, 20 + 44 + 28 + 14}, p)

	p, ok = anchors.PortPosition("node-1", "out-a")
	require.True(t, ok)
	assert.Equal(t, Point{230, 20 + 44 + 14}, p)

	_, ok = anchors.PortPosition("node-1", "missing")
	assert.False(t, ok)
}

func TestConnectionCurve(t *testing.T) {
	loc := Static{
		{"a", "o"}: {0, 0},
		{"b", "i"}: {300, 0},
	}
	c, ok := ConnectionCurve(loc, graph.Connection{SourceNodeID: "a", SourcePortID: "o", TargetNodeID: "b", TargetPortID: "i"}, 100)
	require.True(t, ok)
	assert.Equal(t, Point{100, 0}, c.P1)

	_, ok = ConnectionCurve(loc, graph.Connection{SourceNodeID: "a", SourcePortID: "o", TargetNodeID: "gone", TargetPortID: "i"}, 100)
	assert.False(t, ok)
}

func TestCache_Synchronous(t *testing.T) {
	c := NewCache(nil, WithDebounce(0))
	snap := graph.Snapshot{Nodes: []graph.Node{{ID: "node-1", Outputs: []graph.Port{{ID: "o"}}}}}

	_, ok := c.PortPosition("node-1", "o")
	assert.False(t, ok)

	c.Invalidate(snap)
	p, ok := c.PortPosition("node-1", "o")
	require.True(t, ok)
	assert.Equal(t, 220.0, p.X)
	assert.Equal(t, uint64(1), c.Generation())
}

func TestCache_Debounced(t *testing.T) {
	c := NewCache(nil, WithDebounce(100*time.Millisecond))
	defer c.Stop()

	nodeAt := func(x float64) graph.Snapshot {
		return graph.Snapshot{Nodes: []graph.Node{{ID: "node-1", Position: graph.Position{X: x}, Inputs: []graph.Port{{ID: "i"}}}}}
	}

	c.Invalidate(nodeAt(0))
	_, ok := c.PortPosition("node-1", "i")
	assert.False(t, ok, "stale until the debounce elapses")

	c.Invalidate(nodeAt(50))
	assert.Eventually(t, func() bool {
		p, ok := c.PortPosition("node-1", "i")
		return ok && p.X == 50
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), c.Generation(), "bursts collapse into one recompute")
}

func TestCache_FlushAndObserve(t *testing.T) {
	c := NewCache(nil, WithDebounce(time.Hour))
	defer c.Stop()

	store := graph.NewStore(nil)
	defer store.Subscribe(c.Observe)()

	n := store.InstantiateNode(graph.Template{Kind: graph.KindOutput, Inputs: []graph.PortSpec{{Name: "in"}}}, graph.Position{X: 5, Y: 5})
	c.Flush()
	p, ok := c.PortPosition(n.ID, n.Inputs[0].ID)
	require.True(t, ok)
	assert.Equal(t, 5.0, p.X)

	// Config patches do not touch geometry
	gen := c.Generation()
	require.NoError(t, store.PatchNodeConfig(n.ID, map[string]any{"k": 1}))
	c.Flush()
	assert.Equal(t, gen, c.Generation())

	require.NoError(t, store.DeleteNode(n.ID))
	c.Flush()
	_, ok = c.PortPosition(n.ID, n.Inputs[0].ID)
	assert.False(t, ok)
}

func TestPointDist(t *testing.T) {
	assert.Equal(t, 5.0, Point{0, 0}.Dist(Point{3, 4}))
	assert.False(t, math.IsNaN(Curve(Point{}, Point{}).Distance(Point{1, 1})))
}
