package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/teranos/flowcanvas/editor"
	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/selection"
)

// GraphView is the full editor state a client renders from
type GraphView struct {
	graph.Snapshot
	Gesture    editor.Gesture        `json:"gesture"`
	Inspection *selection.Inspection `json:"inspection,omitempty"`
	Running    bool                  `json:"running"`
}

func (s *Server) view() GraphView {
	v := GraphView{
		Snapshot: s.editor.Snapshot(),
		Gesture:  s.editor.ConnectionGesture(),
		Running:  s.editor.Running(),
	}
	if insp, ok := s.editor.Inspected(); ok {
		v.Inspection = &insp
	}
	return v
}

// HandleWebSocket upgrades the request and streams editor events to it
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", "error", err.Error())
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, clientQueueSize),
		id:     fmt.Sprintf("%s_%d", r.RemoteAddr, time.Now().UnixNano()),
	}
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		client.readPump()
	}()
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

// HandleGraph handles the whole-graph routes
// Routes:
//
//	GET    /api/graph - Current graph, gesture, inspection and run state
//	DELETE /api/graph - Clear the graph
func (s *Server) HandleGraph(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.view())
	case http.MethodDelete:
		s.editor.Clear()
		s.writeJSON(w, http.StatusOK, s.view())
	default:
		s.methodNotAllowed(w)
	}
}

// HandleValidate returns the orphan report
func (s *Server) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	s.writeJSON(w, http.StatusOK, s.editor.Validate())
}

// HandleRun toggles the simulated run
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"running": s.editor.ToggleRun()})
}

type selectRequest struct {
	NodeID string          `json:"node_id,omitempty"`
	Point  *geometry.Point `json:"point,omitempty"`
}

// HandleSelect applies a click. A node id selects the node, a point picks
// the connection under it, and an empty body is a click on bare canvas.
func (s *Server) HandleSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	var req selectRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	switch {
	case req.NodeID != "":
		if err := s.editor.ClickNode(req.NodeID); err != nil {
			s.writeErr(w, err)
			return
		}
	case req.Point != nil:
		s.editor.ClickAt(*req.Point)
	default:
		s.editor.ClickCanvas()
	}
	s.writeJSON(w, http.StatusOK, s.view())
}
