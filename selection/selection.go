// Package selection tracks what the user has focused on the canvas: the
// selected node (held by the graph store) and the inspected connection
// (held here, with the point where it was picked).
package selection

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/logger"
)

// DefaultTolerance is the width of the hit band around a connection curve
const DefaultTolerance = 20.0

// Graph is the part of the store the tracker needs. *graph.Store satisfies it.
type Graph interface {
	Snapshot() graph.Snapshot
	SelectNode(id string) error
	ClearSelection()
	DeleteConnection(id string) error
	Subscribe(fn graph.Observer) (unsubscribe func())
}

// Inspection is a picked connection and the canvas point it was picked at.
// The anchor positions the info/delete popover.
type Inspection struct {
	Connection graph.Connection `json:"connection"`
	Anchor     geometry.Point   `json:"anchor"`
}

// Tracker owns connection inspection and forwards node selection to the store
type Tracker struct {
	graph     Graph
	locator   geometry.PortLocator
	tolerance float64
	maxOffset float64
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	inspection  Inspection
	inspecting  bool
	unsubscribe func()
}

// Option configures a Tracker
type Option func(*Tracker)

// WithTolerance sets the hit band width; a point within half of it picks the curve
func WithTolerance(width float64) Option {
	return func(t *Tracker) {
		t.tolerance = width
	}
}

// WithMaxControlOffset caps the bezier control offset used for hit curves
func WithMaxControlOffset(max float64) Option {
	return func(t *Tracker) {
		t.maxOffset = max
	}
}

// WithLogger sets the tracker logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// New creates a tracker subscribed to g. Call Close to unsubscribe.
func New(g Graph, locator geometry.PortLocator, opts ...Option) *Tracker {
	t := &Tracker{
		graph:     g,
		locator:   locator,
		tolerance: DefaultTolerance,
		maxOffset: geometry.DefaultMaxControlOffset,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.unsubscribe = g.Subscribe(t.observe)
	return t
}

// Close stops following store changes
func (t *Tracker) Close() {
	t.mu.Lock()
	unsub := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Inspected returns the current inspection, if any
func (t *Tracker) Inspected() (Inspection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inspection, t.inspecting
}

// ClickCanvas clears node selection and connection inspection
func (t *Tracker) ClickCanvas() {
	t.clearInspection()
	t.graph.ClearSelection()
}

// ClickNode selects a node. Inspection is left alone.
func (t *Tracker) ClickNode(id string) error {
	return t.graph.SelectNode(id)
}

// ClickAt picks the topmost connection whose curve passes within half the
// tolerance of p. A miss leaves the state unchanged and reports false.
func (t *Tracker) ClickAt(p geometry.Point) bool {
	if t.locator == nil {
		return false
	}
	snap := t.graph.Snapshot()
	limit := t.tolerance / 2

	for i := len(snap.Connections) - 1; i >= 0; i-- {
		conn := snap.Connections[i]
		curve, ok := geometry.ConnectionCurve(t.locator, conn, t.maxOffset)
		if !ok {
			continue
		}
		if curve.Distance(p) <= limit {
			t.mu.Lock()
			t.inspection = Inspection{Connection: conn, Anchor: p}
			t.inspecting = true
			t.mu.Unlock()
			if t.logger != nil {
				t.logger.Debugw("Connection inspected", logger.FieldConnectionID, conn.ID)
			}
			return true
		}
	}
	return false
}

// DeleteInspected deletes the inspected connection and clears the inspection
func (t *Tracker) DeleteInspected() error {
	t.mu.Lock()
	insp, ok := t.inspection, t.inspecting
	t.mu.Unlock()
	if !ok {
		return errors.NewNotFoundError("no connection is being inspected")
	}

	err := t.graph.DeleteConnection(insp.Connection.ID)
	t.clearInspection()
	if err != nil {
		return errors.Wrapf(err, "delete inspected connection %s", insp.Connection.ID)
	}
	return nil
}

func (t *Tracker) clearInspection() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inspection = Inspection{}
	t.inspecting = false
}

// observe drops an inspection whose connection left the graph. A restore
// replaces the whole graph, so it always drops the inspection even when a
// connection with the same id comes back.
func (t *Tracker) observe(change graph.Change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inspecting {
		return
	}
	if change.Op != graph.OpRestored {
		if _, ok := change.Snapshot.Connection(t.inspection.Connection.ID); ok {
			return
		}
	}
	t.inspection = Inspection{}
	t.inspecting = false
}
