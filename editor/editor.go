// Package editor is the operation surface of the node-graph editor. It wires
// the graph store to the connect gesture, selection, port geometry, the
// template library and the simulated run, and fans every resulting change
// out to subscribers.
package editor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/connector"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/graphio"
	"github.com/teranos/flowcanvas/ident"
	"github.com/teranos/flowcanvas/logger"
	"github.com/teranos/flowcanvas/selection"
	"github.com/teranos/flowcanvas/template"
)

// EventType classifies editor events
type EventType string

const (
	EventGraph      EventType = "graph"
	EventGesture    EventType = "gesture"
	EventInspection EventType = "inspection"
	EventRun        EventType = "run"
)

// Gesture is the connect gesture as a renderer sees it. Start is the origin
// port anchor and is nil until that port has been positioned.
type Gesture struct {
	connector.State
	Start *geometry.Point `json:"start,omitempty"`
}

// Event is delivered to editor subscribers. Exactly one payload is set,
// matching Type; an inspection event with a nil payload means cleared.
type Event struct {
	Type       EventType             `json:"type"`
	Change     *graph.Change         `json:"change,omitempty"`
	Gesture    *Gesture              `json:"gesture,omitempty"`
	Inspection *selection.Inspection `json:"inspection,omitempty"`
	Run        *RunEvent             `json:"run,omitempty"`
}

// Subscriber receives editor events in order. It must not call editor
// mutations from inside the callback.
type Subscriber func(Event)

// Editor ties the editor components together. Safe for concurrent use.
type Editor struct {
	store     *graph.Store
	geometry  *geometry.Cache
	gesture   *connector.Protocol
	tracker   *selection.Tracker
	runner    *Runner
	templates *template.Library
	logger    *zap.SugaredLogger

	ids         graph.IDSource
	tolerance   float64
	maxOffset   float64
	portRadius  float64
	debounce    int
	runDuration int

	emitMu sync.Mutex
	subsMu sync.Mutex
	subs   map[int]Subscriber
	order  []int
	nextID int

	unsubscribe []func()
}

// Option configures an Editor
type Option func(*Editor)

// WithLogger sets the logger handed to every component
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// WithConfig applies the editor section of cfg
func WithConfig(cfg *am.Config) Option {
	return func(e *Editor) {
		if cfg == nil {
			return
		}
		e.tolerance = cfg.Editor.HitTolerance
		e.maxOffset = cfg.Editor.MaxControlOffset
		e.portRadius = cfg.Editor.PortRadius
		e.debounce = cfg.Editor.GeometryDebounceMS
		e.runDuration = cfg.Editor.RunDurationMS
	}
}

// WithTemplates sets the template library (default: built-ins only)
func WithTemplates(lib *template.Library) Option {
	return func(e *Editor) {
		e.templates = lib
	}
}

// WithIDSource overrides the identifier generator
func WithIDSource(ids graph.IDSource) Option {
	return func(e *Editor) {
		e.ids = ids
	}
}

// New creates an editor with an empty graph
func New(opts ...Option) *Editor {
	e := &Editor{
		tolerance:   am.DefaultHitTolerance,
		maxOffset:   am.DefaultMaxControlOffset,
		portRadius:  am.DefaultPortRadius,
		debounce:    am.DefaultGeometryDebounceMS,
		runDuration: am.DefaultRunDurationMS,
		subs:        make(map[int]Subscriber),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = ident.New()
	}
	if e.templates == nil {
		e.templates = template.NewLibrary(template.WithLogger(e.logger))
	}

	e.store = graph.NewStore(e.ids, graph.WithLogger(e.logger))
	e.geometry = geometry.NewCache(nil,
		geometry.WithDebounce(msDuration(e.debounce)),
		geometry.WithCacheLogger(e.logger),
	)
	e.gesture = connector.New(e.store, e.geometry,
		connector.WithPortRadius(e.portRadius),
		connector.WithLogger(e.logger),
	)
	e.tracker = selection.New(e.store, e.geometry,
		selection.WithTolerance(e.tolerance),
		selection.WithMaxControlOffset(e.maxOffset),
		selection.WithLogger(e.logger),
	)
	e.runner = NewRunner(msDuration(e.runDuration), func(ev RunEvent) {
		e.emit(Event{Type: EventRun, Run: &ev})
	})

	e.unsubscribe = append(e.unsubscribe,
		e.store.Subscribe(e.geometry.Observe),
		e.store.Subscribe(func(c graph.Change) {
			e.emit(Event{Type: EventGraph, Change: &c})
		}),
	)
	return e
}

// Close releases timers and subscriptions
func (e *Editor) Close() {
	for _, unsub := range e.unsubscribe {
		unsub()
	}
	e.tracker.Close()
	e.geometry.Stop()
	e.runner.Stop()
}

// Subscribe registers fn for every editor event
func (e *Editor) Subscribe(fn Subscriber) (unsubscribe func()) {
	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.order = append(e.order, id)
	e.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subsMu.Lock()
			defer e.subsMu.Unlock()
			delete(e.subs, id)
			for i, v := range e.order {
				if v == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (e *Editor) emit(ev Event) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.subsMu.Lock()
	subs := make([]Subscriber, 0, len(e.order))
	for _, id := range e.order {
		subs = append(subs, e.subs[id])
	}
	e.subsMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// === Graph operations ===

// Snapshot returns the current graph state
func (e *Editor) Snapshot() graph.Snapshot {
	return e.store.Snapshot()
}

// Templates returns the template library
func (e *Editor) Templates() *template.Library {
	return e.templates
}

// InstantiateNode places a node built from tpl at pos and selects it
func (e *Editor) InstantiateNode(tpl graph.Template, pos graph.Position) *graph.Node {
	return e.store.InstantiateNode(tpl, pos)
}

// InstantiateTemplate looks a template up in the library and places it.
// An empty category matches any.
func (e *Editor) InstantiateTemplate(category, name string, pos graph.Position) (*graph.Node, error) {
	var tpl graph.Template
	var ok bool
	if category == "" {
		tpl, ok = e.templates.FindByName(name)
	} else {
		tpl, ok = e.templates.Find(category, name)
	}
	if !ok {
		return nil, errors.NewNotFoundError("template %q", name)
	}
	return e.store.InstantiateNode(tpl, pos), nil
}

// RepositionNode moves a node to pos as given
func (e *Editor) RepositionNode(id string, pos graph.Position) error {
	return e.store.RepositionNode(id, pos)
}

// DragNode moves a node along a drag path; coordinates are clamped to the
// non-negative quadrant.
func (e *Editor) DragNode(id string, pos graph.Position) error {
	if pos.X < 0 {
		pos.X = 0
	}
	if pos.Y < 0 {
		pos.Y = 0
	}
	return e.store.RepositionNode(id, pos)
}

// PatchNodeConfig shallow-merges patch into a node's config
func (e *Editor) PatchNodeConfig(id string, patch map[string]any) error {
	return e.store.PatchNodeConfig(id, patch)
}

// DeleteNode removes a node and every connection touching it
func (e *Editor) DeleteNode(id string) error {
	return e.store.DeleteNode(id)
}

// Connect adds a connection with the store's structural checks only
func (e *Editor) Connect(srcNode, srcPort, tgtNode, tgtPort string) (*graph.Connection, error) {
	return e.store.Connect(srcNode, srcPort, tgtNode, tgtPort)
}

// ConnectChecked adds a connection after verifying that both nodes exist,
// each port belongs to its node, and the edge runs from an output to an input.
func (e *Editor) ConnectChecked(srcNode, srcPort, tgtNode, tgtPort string) (*graph.Connection, error) {
	src, err := e.port(srcNode, srcPort)
	if err != nil {
		return nil, err
	}
	tgt, err := e.port(tgtNode, tgtPort)
	if err != nil {
		return nil, err
	}
	if src.Direction != graph.Output || tgt.Direction != graph.Input {
		return nil, errors.Wrapf(errors.ErrDirectionMismatch,
			"%s.%s is %s and %s.%s is %s", srcNode, srcPort, src.Direction, tgtNode, tgtPort, tgt.Direction)
	}
	return e.store.Connect(srcNode, srcPort, tgtNode, tgtPort)
}

func (e *Editor) port(nodeID, portID string) (graph.Port, error) {
	n, ok := e.store.Node(nodeID)
	if !ok {
		return graph.Port{}, errors.NewNotFoundError("node %s", nodeID)
	}
	p, ok := n.Port(portID)
	if !ok {
		return graph.Port{}, errors.NewNotFoundError("port %s on node %s", portID, nodeID)
	}
	return p, nil
}

// DeleteConnection removes a connection
func (e *Editor) DeleteConnection(id string) error {
	return e.store.DeleteConnection(id)
}

// Clear empties the graph
func (e *Editor) Clear() {
	e.store.Clear()
}

// Validate runs the orphan check over the current graph
func (e *Editor) Validate() graph.Report {
	return e.store.Snapshot().Validate()
}

// === Connect gesture ===

// BeginConnection starts a connect gesture on a port
func (e *Editor) BeginConnection(nodeID, portID string, dir graph.Direction, cursor geometry.Point) error {
	if err := e.gesture.Begin(nodeID, portID, dir, cursor); err != nil {
		return err
	}
	e.emitGesture()
	return nil
}

// UpdateConnectionCursor moves the rubber-band endpoint; false while idle
func (e *Editor) UpdateConnectionCursor(cursor geometry.Point) bool {
	if !e.gesture.UpdateCursor(cursor) {
		return false
	}
	e.emitGesture()
	return true
}

// ResolveConnection ends the gesture on a port
func (e *Editor) ResolveConnection(nodeID, portID string, dir graph.Direction) connector.Outcome {
	out := e.gesture.Resolve(nodeID, portID, dir)
	e.endGesture(out)
	return out
}

// ResolveConnectionAt ends the gesture at a canvas point
func (e *Editor) ResolveConnectionAt(point geometry.Point) connector.Outcome {
	e.geometry.Flush()
	out := e.gesture.ResolveAt(point)
	e.endGesture(out)
	return out
}

// CancelConnection ends the gesture without connecting
func (e *Editor) CancelConnection() connector.Outcome {
	out := e.gesture.Cancel()
	e.endGesture(out)
	return out
}

// ConnectionGesture returns the gesture state with its rubber-band start
func (e *Editor) ConnectionGesture() Gesture {
	g := Gesture{State: e.gesture.State()}
	if start, _, ok := e.gesture.RubberBand(); ok {
		g.Start = &start
	}
	return g
}

func (e *Editor) endGesture(out connector.Outcome) {
	if out.Status == connector.OutcomeIgnored {
		return
	}
	if out.Status == connector.OutcomeRejected && e.logger != nil {
		e.logger.Debugw("Connection rejected", logger.FieldError, out.Err)
	}
	e.emitGesture()
}

func (e *Editor) emitGesture() {
	g := e.ConnectionGesture()
	e.emit(Event{Type: EventGesture, Gesture: &g})
}

// PortPosition reports where a port is drawn, from the geometry cache
func (e *Editor) PortPosition(nodeID, portID string) (geometry.Point, bool) {
	return e.geometry.PortPosition(nodeID, portID)
}

// FlushGeometry recomputes port positions now instead of after the debounce
func (e *Editor) FlushGeometry() {
	e.geometry.Flush()
}

// === Selection ===

// ClickCanvas clears node selection and connection inspection
func (e *Editor) ClickCanvas() {
	_, wasInspecting := e.tracker.Inspected()
	e.tracker.ClickCanvas()
	if wasInspecting {
		e.emit(Event{Type: EventInspection})
	}
}

// ClickNode selects a node
func (e *Editor) ClickNode(id string) error {
	return e.tracker.ClickNode(id)
}

// ClickAt inspects the topmost connection under p
func (e *Editor) ClickAt(p geometry.Point) bool {
	e.geometry.Flush()
	if !e.tracker.ClickAt(p) {
		return false
	}
	if insp, ok := e.tracker.Inspected(); ok {
		e.emit(Event{Type: EventInspection, Inspection: &insp})
	}
	return true
}

// Inspected returns the inspected connection, if any
func (e *Editor) Inspected() (selection.Inspection, bool) {
	return e.tracker.Inspected()
}

// DeleteInspected deletes the inspected connection
func (e *Editor) DeleteInspected() error {
	if err := e.tracker.DeleteInspected(); err != nil {
		return err
	}
	e.emit(Event{Type: EventInspection})
	return nil
}

// === Run ===

// ToggleRun starts or stops the simulated run and reports whether it is running
func (e *Editor) ToggleRun() bool {
	return e.runner.Toggle()
}

// Running reports whether a simulated run is in progress
func (e *Editor) Running() bool {
	return e.runner.Running()
}

// === Import / export ===

// Export renders the graph as a document
func (e *Editor) Export(name string) graphio.Document {
	return graphio.FromSnapshot(name, e.store.Snapshot())
}

// Import replaces the graph with a document. Any gesture in progress is
// cancelled. Connections that cannot be restored are reported, not fatal.
func (e *Editor) Import(doc graphio.Document) (graph.RestoreReport, error) {
	snap, err := doc.Snapshot()
	if err != nil {
		return graph.RestoreReport{}, err
	}
	return e.Restore(snap)
}

// Restore replaces the graph with a snapshot. Any inspection is dropped.
func (e *Editor) Restore(snap graph.Snapshot) (graph.RestoreReport, error) {
	_, wasInspecting := e.tracker.Inspected()
	report, err := e.store.Restore(snap)
	if err != nil {
		return report, err
	}
	e.CancelConnection()
	if _, ok := e.tracker.Inspected(); wasInspecting && !ok {
		e.emit(Event{Type: EventInspection})
	}
	return report, nil
}
