// Package connector turns a press-drag-release gesture between two ports
// into at most one new connection.
//
// The protocol has two states. Idle: nothing in progress. Pending: a drag
// started on an origin port and a rubber-band line follows the cursor.
// Releasing on a port resolves the gesture; releasing anywhere else cancels
// it. Either way the protocol returns to Idle.
package connector

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/logger"
)

// DefaultPortRadius is how close a release must be to a port anchor to land on it
const DefaultPortRadius = 8.0

// Graph is the part of the store the protocol needs. *graph.Store satisfies it.
type Graph interface {
	Connect(srcNode, srcPort, tgtNode, tgtPort string) (*graph.Connection, error)
	Snapshot() graph.Snapshot
}

// Status classifies how a gesture ended
type Status string

const (
	// OutcomeIgnored: resolve arrived while Idle
	OutcomeIgnored Status = "ignored"
	// OutcomeCancelled: released off any port, or on the origin node
	OutcomeCancelled Status = "cancelled"
	// OutcomeRejected: same-direction ports, or the store refused the edge
	OutcomeRejected Status = "rejected"
	// OutcomeConnected: a connection was created
	OutcomeConnected Status = "connected"
)

// Outcome is the result of resolving a gesture
type Outcome struct {
	Status     Status            `json:"status"`
	Connection *graph.Connection `json:"connection,omitempty"`
	Err        error             `json:"-"`
}

// Endpoint identifies a port taking part in a gesture
type Endpoint struct {
	NodeID    string          `json:"node_id"`
	PortID    string          `json:"port_id"`
	Direction graph.Direction `json:"direction"`
}

// State is a read-only view of the protocol
type State struct {
	Pending bool           `json:"pending"`
	Origin  Endpoint       `json:"origin"`
	Cursor  geometry.Point `json:"cursor"`
}

// Protocol is the connect-gesture state machine. Safe for concurrent use.
type Protocol struct {
	graph   Graph
	locator geometry.PortLocator
	radius  float64
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	pending bool
	origin  Endpoint
	cursor  geometry.Point
}

// Option configures a Protocol
type Option func(*Protocol)

// WithPortRadius sets the release hit radius used by ResolveAt
func WithPortRadius(r float64) Option {
	return func(p *Protocol) {
		p.radius = r
	}
}

// WithLogger sets the protocol logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(p *Protocol) {
		p.logger = logger
	}
}

// New creates an idle protocol over g, locating ports through locator
func New(g Graph, locator geometry.PortLocator, opts ...Option) *Protocol {
	p := &Protocol{
		graph:   g,
		locator: locator,
		radius:  DefaultPortRadius,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Begin starts a gesture on a port. A Begin while Pending replaces the origin.
func (p *Protocol) Begin(nodeID, portID string, dir graph.Direction, cursor geometry.Point) error {
	if !dir.Valid() {
		return errors.NewInvalidRequestError("unknown port direction %q", dir)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = true
	p.origin = Endpoint{NodeID: nodeID, PortID: portID, Direction: dir}
	p.cursor = cursor
	p.debugw("Connection gesture started", logger.FieldNodeID, nodeID, logger.FieldPortID, portID, "direction", dir)
	return nil
}

// UpdateCursor moves the rubber-band endpoint. Ignored while Idle.
func (p *Protocol) UpdateCursor(cursor geometry.Point) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return false
	}
	p.cursor = cursor
	return true
}

// Cancel ends the gesture without touching the graph
func (p *Protocol) Cancel() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return Outcome{Status: OutcomeIgnored}
	}
	p.resetLocked()
	return Outcome{Status: OutcomeCancelled}
}

// Resolve ends the gesture on a destination port. Output to input connects
// as given; input to output is normalized so the edge always runs from the
// output. Same-node releases cancel; same-direction releases are rejected
// without reaching the store.
func (p *Protocol) Resolve(nodeID, portID string, dir graph.Direction) Outcome {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return Outcome{Status: OutcomeIgnored}
	}
	origin := p.origin
	p.resetLocked()
	p.mu.Unlock()

	dest := Endpoint{NodeID: nodeID, PortID: portID, Direction: dir}
	out := p.resolve(origin, dest)
	p.debugw("Connection gesture resolved",
		"origin_node", origin.NodeID,
		"dest_node", dest.NodeID,
		logger.FieldOutcome, out.Status,
	)
	return out
}

func (p *Protocol) resolve(origin, dest Endpoint) Outcome {
	if origin.NodeID == dest.NodeID {
		return Outcome{Status: OutcomeCancelled}
	}
	if origin.Direction == dest.Direction || !dest.Direction.Valid() {
		return Outcome{
			Status: OutcomeRejected,
			Err:    errors.Wrapf(errors.ErrDirectionMismatch, "%s.%s and %s.%s", origin.NodeID, origin.PortID, dest.NodeID, dest.PortID),
		}
	}

	src, tgt := origin, dest
	if origin.Direction == graph.Input {
		src, tgt = dest, origin
	}
	conn, err := p.graph.Connect(src.NodeID, src.PortID, tgt.NodeID, tgt.PortID)
	if err != nil {
		return Outcome{Status: OutcomeRejected, Err: err}
	}
	return Outcome{Status: OutcomeConnected, Connection: conn}
}

// ResolveAt ends the gesture at a canvas point. The nearest port within the
// port radius resolves the gesture; if there is none it cancels.
func (p *Protocol) ResolveAt(point geometry.Point) Outcome {
	p.mu.Lock()
	pending := p.pending
	p.mu.Unlock()
	if !pending {
		return Outcome{Status: OutcomeIgnored}
	}

	hit, ok := PortAt(p.graph.Snapshot(), p.locator, point, p.radius)
	if !ok {
		return p.Cancel()
	}
	return p.Resolve(hit.NodeID, hit.PortID, hit.Direction)
}

// RubberBand returns the line to draw while Pending: from the origin port
// anchor to the cursor. It reports false while Idle or when the origin has
// not been positioned yet.
func (p *Protocol) RubberBand() (start, end geometry.Point, ok bool) {
	p.mu.Lock()
	pending, origin, cursor := p.pending, p.origin, p.cursor
	p.mu.Unlock()
	if !pending || p.locator == nil {
		return geometry.Point{}, geometry.Point{}, false
	}
	start, ok = p.locator.PortPosition(origin.NodeID, origin.PortID)
	if !ok {
		return geometry.Point{}, geometry.Point{}, false
	}
	return start, cursor, true
}

// State returns the current protocol state
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending {
		return State{}
	}
	return State{Pending: true, Origin: p.origin, Cursor: p.cursor}
}

func (p *Protocol) resetLocked() {
	p.pending = false
	p.origin = Endpoint{}
	p.cursor = geometry.Point{}
}

func (p *Protocol) debugw(msg string, keysAndValues ...interface{}) {
	if p.logger != nil {
		p.logger.Debugw(msg, keysAndValues...)
	}
}

// PortAt finds the port whose anchor is nearest to point within radius.
// Ports the locator cannot position are skipped.
func PortAt(snap graph.Snapshot, locator geometry.PortLocator, point geometry.Point, radius float64) (Endpoint, bool) {
	if locator == nil {
		return Endpoint{}, false
	}
	best := math.Inf(1)
	var hit Endpoint
	check := func(n graph.Node, ports []graph.Port) {
		for _, port := range ports {
			anchor, ok := locator.PortPosition(n.ID, port.ID)
			if !ok {
				continue
			}
			if d := anchor.Dist(point); d <= radius && d < best {
				best = d
				hit = Endpoint{NodeID: n.ID, PortID: port.ID, Direction: port.Direction}
			}
		}
	}
	for _, n := range snap.Nodes {
		check(n, n.Inputs)
		check(n, n.Outputs)
	}
	return hit, !math.IsInf(best, 1)
}
