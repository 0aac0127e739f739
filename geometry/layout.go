package geometry

import "github.com/teranos/flowcanvas/graph"

// PortLocator answers where a port is drawn. A false result means the port is
// not positioned (unknown, or not measured yet).
type PortLocator interface {
	PortPosition(nodeID, portID string) (Point, bool)
}

// Measurer computes port anchors for a set of nodes
type Measurer interface {
	Measure(nodes []graph.Node) map[PortKey]Point
}

// PortKey identifies a port anchor
type PortKey struct {
	NodeID string
	PortID string
}

// CardLayout places ports on a fixed node card: inputs on the left edge,
// outputs on the right, one row each below the header.
type CardLayout struct {
	Width  float64
	Header float64
	Row    float64
}

// DefaultCardLayout matches the editor's node card
var DefaultCardLayout = CardLayout{Width: 220, Header: 44, Row: 28}

// Measure implements Measurer
func (l CardLayout) Measure(nodes []graph.Node) map[PortKey]Point {
	out := make(map[PortKey]Point)
	for _, n := range nodes {
		for i, p := range n.Inputs {
			out[PortKey{n.ID, p.ID}] = l.anchor(n.Position, 0, i)
		}
		for i, p := range n.Outputs {
			out[PortKey{n.ID, p.ID}] = l.anchor(n.Position, l.Width, i)
		}
	}
	return out
}

func (l CardLayout) anchor(pos graph.Position, dx float64, row int) Point {
	return Point{
		X: pos.X + dx,
		Y: pos.Y + l.Header + l.Row*float64(row) + l.Row/2,
	}
}

// Static is a PortLocator over a precomputed anchor map
type Static map[PortKey]Point

// PortPosition implements PortLocator
func (s Static) PortPosition(nodeID, portID string) (Point, bool) {
	p, ok := s[PortKey{nodeID, portID}]
	return p, ok
}

// ConnectionCurve resolves a connection's endpoints through loc and returns
// its curve. Dangling or unmeasured endpoints report false.
func ConnectionCurve(loc PortLocator, c graph.Connection, maxOffset float64) (Cubic, bool) {
	start, ok := loc.PortPosition(c.SourceNodeID, c.SourcePortID)
	if !ok {
		return Cubic{}, false
	}
	end, ok := loc.PortPosition(c.TargetNodeID, c.TargetPortID)
	if !ok {
		return Cubic{}, false
	}
	return CurveWithMax(start, end, maxOffset), true
}
