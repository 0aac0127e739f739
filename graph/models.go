package graph

// Direction of a port relative to its node
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Valid reports whether d is one of the two port directions
func (d Direction) Valid() bool {
	return d == Input || d == Output
}

// Opposite returns the direction a compatible peer port must have
func (d Direction) Opposite() Direction {
	if d == Input {
		return Output
	}
	return Input
}

// Kind classifies a node
type Kind string

const (
	KindInput   Kind = "input"
	KindProcess Kind = "process"
	KindOutput  Kind = "output"
	// KindError is display-only; no editing operation produces it
	KindError Kind = "error"
)

// Valid reports whether k is a known node kind
func (k Kind) Valid() bool {
	switch k {
	case KindInput, KindProcess, KindOutput, KindError:
		return true
	}
	return false
}

// Position is a canvas coordinate
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Port is a typed attachment point on a node. DataType is a display tag and
// is never enforced.
type Port struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Direction Direction `json:"direction" yaml:"direction"`
	DataType  string    `json:"data_type" yaml:"data_type"`
}

// Node is a processing step placed on the canvas
type Node struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon"`
	Description string         `json:"description"`
	Inputs      []Port         `json:"inputs"`
	Outputs     []Port         `json:"outputs"`
	Config      map[string]any `json:"config"`
	Position    Position       `json:"position"`
}

// Port looks up one of the node's ports by id
func (n *Node) Port(id string) (Port, bool) {
	for _, p := range n.Inputs {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range n.Outputs {
		if p.ID == id {
			return p, true
		}
	}
	return Port{}, false
}

// Clone returns a copy that shares nothing mutable with n except config
// values, which the store never mutates in place.
func (n *Node) Clone() Node {
	c := *n
	c.Inputs = append([]Port(nil), n.Inputs...)
	c.Outputs = append([]Port(nil), n.Outputs...)
	c.Config = copyConfig(n.Config)
	return c
}

// Connection is a directed edge from an output port to an input port
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id"`
	SourcePortID string `json:"source_port_id"`
	TargetNodeID string `json:"target_node_id"`
	TargetPortID string `json:"target_port_id"`
}

// Touches reports whether either endpoint is on the given node
func (c Connection) Touches(nodeID string) bool {
	return c.SourceNodeID == nodeID || c.TargetNodeID == nodeID
}

// SameEndpoints reports whether c and o connect the exact same four-tuple
func (c Connection) SameEndpoints(o Connection) bool {
	return c.SourceNodeID == o.SourceNodeID &&
		c.SourcePortID == o.SourcePortID &&
		c.TargetNodeID == o.TargetNodeID &&
		c.TargetPortID == o.TargetPortID
}

// PortSpec declares a port on a template; instantiation assigns the id
type PortSpec struct {
	Name      string    `json:"name" yaml:"name" toml:"name"`
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty" toml:"direction,omitempty"`
	DataType  string    `json:"data_type" yaml:"data_type" toml:"data_type"`
}

// Template is an immutable blueprint for nodes
type Template struct {
	Kind          Kind           `json:"kind" yaml:"kind" toml:"kind"`
	Name          string         `json:"name" yaml:"name" toml:"name"`
	Icon          string         `json:"icon" yaml:"icon" toml:"icon"`
	Description   string         `json:"description" yaml:"description" toml:"description"`
	Category      string         `json:"category" yaml:"category" toml:"category"`
	Inputs        []PortSpec     `json:"inputs" yaml:"inputs" toml:"inputs"`
	Outputs       []PortSpec     `json:"outputs" yaml:"outputs" toml:"outputs"`
	DefaultConfig map[string]any `json:"default_config" yaml:"default_config" toml:"default_config"`
}

func copyConfig(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
