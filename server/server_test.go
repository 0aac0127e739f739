package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/canvas/storage"
	"github.com/teranos/flowcanvas/editor"
	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/graphio"
	"github.com/teranos/flowcanvas/logger"
	fctest "github.com/teranos/flowcanvas/internal/testing"
	"github.com/teranos/flowcanvas/template"
)

func testConfig() *am.Config {
	return &am.Config{Editor: am.EditorConfig{
		HitTolerance:     am.DefaultHitTolerance,
		MaxControlOffset: am.DefaultMaxControlOffset,
		PortRadius:       am.DefaultPortRadius,
		RunDurationMS:    50,
	}}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *editor.Editor) {
	t.Helper()
	cfg := testConfig()
	ed := editor.New(editor.WithConfig(cfg), editor.WithTemplates(template.NewLibrary()))
	t.Cleanup(ed.Close)

	s := New(ed, append([]Option{WithConfig(cfg)}, opts...)...)
	t.Cleanup(func() { s.Stop() })
	return s, ed
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func createNode(t *testing.T, h http.Handler, category, name string, x, y float64) graph.Node {
	t.Helper()
	w := do(t, h, http.MethodPost, "/api/graph/nodes", map[string]interface{}{
		"category": category,
		"name":     name,
		"position": map[string]float64{"x": x, "y": y},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var n graph.Node
	decode(t, w, &n)
	return n
}

func TestHandleNodes(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Handler()

	n := createNode(t, h, template.CategoryInput, "Text Input", 10, 20)
	assert.Equal(t, graph.KindInput, n.Kind)
	assert.Equal(t, ed.Snapshot().SelectedNodeID, n.ID)

	t.Run("move", func(t *testing.T) {
		w := do(t, h, http.MethodPut, "/api/graph/nodes/"+n.ID, map[string]interface{}{
			"position": map[string]float64{"x": -5, "y": 40},
			"drag":     true,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var moved graph.Node
		decode(t, w, &moved)
		assert.Equal(t, graph.Position{X: 0, Y: 40}, moved.Position)
	})

	t.Run("patch config", func(t *testing.T) {
		w := do(t, h, http.MethodPatch, "/api/graph/nodes/"+n.ID, map[string]interface{}{
			"config": map[string]interface{}{"value": "hello"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var patched graph.Node
		decode(t, w, &patched)
		assert.Equal(t, "hello", patched.Config["value"])
	})

	t.Run("unknown template", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/graph/nodes", map[string]interface{}{"name": "Nope"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("error kind template", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/graph/nodes", map[string]interface{}{
			"template": map[string]interface{}{"kind": "error", "name": "Broken"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := do(t, h, http.MethodDelete, "/api/graph/nodes/"+n.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, ed.Snapshot().Nodes)

		w = do(t, h, http.MethodDelete, "/api/graph/nodes/"+n.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleConnections(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Handler()

	in := createNode(t, h, template.CategoryInput, "Text Input", 0, 0)
	out := createNode(t, h, template.CategoryOutput, "Display", 300, 0)
	src, tgt := in.Outputs[0].ID, out.Inputs[0].ID

	w := do(t, h, http.MethodPost, "/api/graph/connections", connectRequest{
		SourceNode: in.ID, SourcePort: src, TargetNode: out.ID, TargetPort: tgt,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conn graph.Connection
	decode(t, w, &conn)

	// Duplicate and self-loop are rejections
	w = do(t, h, http.MethodPost, "/api/graph/connections", connectRequest{
		SourceNode: in.ID, SourcePort: src, TargetNode: out.ID, TargetPort: tgt,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(t, h, http.MethodPost, "/api/graph/connections", connectRequest{
		SourceNode: in.ID, SourcePort: src, TargetNode: in.ID, TargetPort: src,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Checked connects verify port ownership
	w = do(t, h, http.MethodPost, "/api/graph/connections", connectRequest{
		SourceNode: in.ID, SourcePort: "missing", TargetNode: out.ID, TargetPort: tgt, Checked: true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/api/graph/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report graph.Report
	decode(t, w, &report)
	assert.True(t, report.Valid)

	w = do(t, h, http.MethodDelete, "/api/graph/connections/"+conn.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, ed.Snapshot().Connections)

	w = do(t, h, http.MethodDelete, "/api/graph/connections/inspected", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGestureAndSelect(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Handler()

	in := createNode(t, h, template.CategoryInput, "Text Input", 0, 0)
	out := createNode(t, h, template.CategoryOutput, "Display", 300, 0)
	ed.FlushGeometry()

	w := do(t, h, http.MethodPost, "/api/graph/gesture/begin", gestureRequest{
		NodeID: in.ID, PortID: in.Outputs[0].ID, Direction: graph.Output,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, ed.ConnectionGesture().Pending)

	w = do(t, h, http.MethodPost, "/api/graph/gesture/resolve", gestureRequest{
		NodeID: out.ID, PortID: out.Inputs[0].ID, Direction: graph.Input,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var outcome outcomeResponse
	decode(t, w, &outcome)
	assert.Equal(t, "connected", outcome.Status)
	require.NotNil(t, outcome.Connection)
	connID := outcome.Connection.ID

	w = do(t, h, http.MethodPost, "/api/graph/gesture/cancel", nil)
	var cancelled outcomeResponse
	decode(t, w, &cancelled)
	assert.Equal(t, "ignored", cancelled.Status)

	w = do(t, h, http.MethodPost, "/api/graph/gesture/twist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Click the middle of the curve between (220,58) and (300,58)
	w = do(t, h, http.MethodPost, "/api/graph/select", map[string]interface{}{
		"point": map[string]float64{"x": 260, "y": 59},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var view GraphView
	decode(t, w, &view)
	require.NotNil(t, view.Inspection)
	assert.Equal(t, connID, view.Inspection.Connection.ID)

	w = do(t, h, http.MethodDelete, "/api/graph/connections/inspected", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, ed.Snapshot().Connections)

	w = do(t, h, http.MethodPost, "/api/graph/select", nil)
	var cleared GraphView
	decode(t, w, &cleared)
	assert.Empty(t, cleared.SelectedNodeID)
	assert.Nil(t, cleared.Inspection)
}

func TestHandleGraph(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Handler()
	createNode(t, h, template.CategoryProcess, "Transform", 0, 0)

	w := do(t, h, http.MethodGet, "/api/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view GraphView
	decode(t, w, &view)
	assert.Len(t, view.Nodes, 1)
	assert.False(t, view.Running)

	w = do(t, h, http.MethodPost, "/api/graph/run", nil)
	var run map[string]bool
	decode(t, w, &run)
	assert.True(t, run["running"])
	assert.Eventually(t, func() bool { return !ed.Running() }, time.Second, 10*time.Millisecond)

	w = do(t, h, http.MethodDelete, "/api/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, ed.Snapshot().Nodes)

	w = do(t, h, http.MethodPatch, "/api/graph", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestExportImport(t *testing.T) {
	s, ed := newTestServer(t)
	h := s.Handler()
	in := createNode(t, h, template.CategoryInput, "Text Input", 0, 0)
	out := createNode(t, h, template.CategoryOutput, "Display", 300, 0)
	_, err := ed.Connect(in.ID, in.Outputs[0].ID, out.ID, out.Inputs[0].ID)
	require.NoError(t, err)

	w := do(t, h, http.MethodGet, "/api/graph/export?name=demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	exported := w.Body.String()
	assert.Contains(t, exported, "name: demo")

	w = do(t, h, http.MethodGet, "/api/graph/export?format=summary", nil)
	assert.Contains(t, w.Body.String(), "type: input")

	w = do(t, h, http.MethodGet, "/api/graph/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ed.Clear()

	req := httptest.NewRequest(http.MethodPost, "/api/graph/import", strings.NewReader(exported))
	req.Header.Set("Content-Type", "application/yaml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report graph.RestoreReport
	decode(t, rec, &report)
	assert.Equal(t, 2, report.Nodes)
	assert.Equal(t, 1, report.Connections)
	assert.Len(t, ed.Snapshot().Connections, 1)

	req = httptest.NewRequest(http.MethodPost, "/api/graph/import?format=json", strings.NewReader(`{"format":"9.0.0"}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTemplates(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var palette struct {
		Categories []template.Category `json:"categories"`
		Templates  []graph.Template    `json:"templates"`
		Icons      []string            `json:"icons"`
	}
	decode(t, w, &palette)
	assert.Len(t, palette.Categories, len(template.Categories))
	assert.NotEmpty(t, palette.Templates)
	assert.NotEmpty(t, palette.Icons)

	w = do(t, h, http.MethodPost, "/api/templates", template.CustomSpec{Name: "Resize", Kind: graph.KindProcess})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodPost, "/api/templates", template.CustomSpec{Name: "Resize", Kind: graph.KindProcess})
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)

	createNode(t, h, template.CategoryCustom, "Resize", 0, 0)
}

func TestSavedGraphs(t *testing.T) {
	db := fctest.CreateTestDB(t)
	s, ed := newTestServer(t, WithGraphStore(storage.NewGraphStore(db, nil)))
	h := s.Handler()
	createNode(t, h, template.CategoryInput, "Text Input", 0, 0)

	w := do(t, h, http.MethodPut, "/api/graphs/demo", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/api/graphs", nil)
	var infos []storage.GraphInfo
	decode(t, w, &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, "demo", infos[0].Name)
	assert.Equal(t, 1, infos[0].NodeCount)

	w = do(t, h, http.MethodGet, "/api/graphs/demo", nil)
	var doc graphio.Document
	decode(t, w, &doc)
	assert.Equal(t, "demo", doc.Name)
	assert.Len(t, doc.Nodes, 1)

	ed.Clear()
	w = do(t, h, http.MethodPost, "/api/graphs/demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, ed.Snapshot().Nodes, 1)

	w = do(t, h, http.MethodDelete, "/api/graphs/demo", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, h, http.MethodGet, "/api/graphs/demo", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSavedGraphsWithoutStore(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/api/graphs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSavedGraphsDatabaseClosed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db := fctest.CreateTestDB(t)
	s, _ := newTestServer(t,
		WithGraphStore(storage.NewGraphStore(db, nil)),
		WithLogger(zap.New(core).Sugar()),
	)
	require.NoError(t, db.Close())

	w := do(t, s.Handler(), http.MethodGet, "/api/graphs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 0, logs.FilterMessage("Request failed").Len())
	require.Equal(t, 1, logs.FilterMessage("Request hit closed database").Len())
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s, _ := newTestServer(t, WithLogger(zap.New(core).Sugar()))
	h := s.Handler()

	w := do(t, h, http.MethodGet, "/api/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	other := do(t, h, http.MethodGet, "/api/graph", nil)
	assert.NotEqual(t, id, other.Header().Get(RequestIDHeader))

	handled := logs.FilterMessage("Request handled").AllUntimed()
	require.Len(t, handled, 2)
	fields := handled[0].ContextMap()
	assert.Equal(t, id, fields[logger.FieldRequestID])
	assert.Equal(t, "http", fields[logger.FieldComponent])
	assert.Equal(t, "/api/graph", fields[logger.FieldPath])
	assert.Equal(t, http.MethodGet, fields[logger.FieldMethod])
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/graph", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorStatus(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := do(t, h, http.MethodPut, "/api/graph/nodes/node-404", map[string]interface{}{
		"position": map[string]float64{"x": 1, "y": 1},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Contains(t, body["error"], "node-404")

	req := httptest.NewRequest(http.MethodPost, "/api/graph/nodes", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// readUntil reads socket messages until match returns true
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocket(t *testing.T) {
	s, ed := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readUntil(t, conn, func(map[string]interface{}) bool { return true })
	assert.Equal(t, "hello", hello["type"])
	assert.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	n := ed.InstantiateNode(graph.Template{Kind: graph.KindProcess, Name: "T", Outputs: []graph.PortSpec{{Name: "out"}}}, graph.Position{})
	ev := readUntil(t, conn, func(m map[string]interface{}) bool { return m["type"] == string(editor.EventGraph) })
	change := ev["change"].(map[string]interface{})
	assert.Equal(t, string(graph.OpNodeAdded), change["op"])
	assert.Equal(t, n.ID, change["node_id"])

	// Pointer updates arrive over the socket
	require.NoError(t, ed.BeginConnection(n.ID, n.Outputs[0].ID, graph.Output, geometry.Point{}))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "gesture_move", X: 90, Y: 70}))
	assert.Eventually(t, func() bool {
		c := ed.ConnectionGesture().Cursor
		return c.X == 90 && c.Y == 70
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "node_drag", NodeID: n.ID, X: 15, Y: 25}))
	assert.Eventually(t, func() bool {
		node, ok := ed.Snapshot().Node(n.ID)
		return ok && node.Position == graph.Position{X: 15, Y: 25}
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHelloCoversConcurrentEdits(t *testing.T) {
	s, ed := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	tpl := graph.Template{Kind: graph.KindProcess, Name: "T"}

	// Nodes keep arriving while the client connects
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				ed.InstantiateNode(tpl, graph.Position{})
				time.Sleep(time.Millisecond)
			}
		}
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readUntil(t, conn, func(map[string]interface{}) bool { return true })
	require.Equal(t, "hello", hello["type"])
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done

	seen := make(map[string]bool)
	snap := hello["snapshot"].(map[string]interface{})
	if nodes, ok := snap["nodes"].([]interface{}); ok {
		for _, n := range nodes {
			seen[n.(map[string]interface{})["id"].(string)] = true
		}
	}

	final := ed.Snapshot().Nodes
	require.NotEmpty(t, final)
	last := final[len(final)-1].ID
	for !seen[last] {
		ev := readUntil(t, conn, func(m map[string]interface{}) bool { return m["type"] == string(editor.EventGraph) })
		change := ev["change"].(map[string]interface{})
		if change["op"] == string(graph.OpNodeAdded) {
			seen[change["node_id"].(string)] = true
		}
	}
	for _, n := range final {
		assert.True(t, seen[n.ID], "node %s missing from hello and events", n.ID)
	}
}
