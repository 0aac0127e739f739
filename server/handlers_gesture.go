package server

import (
	"net/http"

	"github.com/teranos/flowcanvas/connector"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/geometry"
	"github.com/teranos/flowcanvas/graph"
)

type gestureRequest struct {
	NodeID    string          `json:"node_id,omitempty"`
	PortID    string          `json:"port_id,omitempty"`
	Direction graph.Direction `json:"direction,omitempty"`
	// Cursor for begin and move; for resolve, a point to hit-test instead of a port
	Point *geometry.Point `json:"point,omitempty"`
}

// HandleGesture drives the connect gesture
// Routes:
//
//	POST /api/graph/gesture/begin   - Press on a port
//	POST /api/graph/gesture/move    - Move the rubber band
//	POST /api/graph/gesture/resolve - Release on a port, or at a point
//	POST /api/graph/gesture/cancel  - Release elsewhere
func (s *Server) HandleGesture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}
	var req gestureRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	var cursor geometry.Point
	if req.Point != nil {
		cursor = *req.Point
	}

	switch action := pathID(r, "/api/graph/gesture"); action {
	case "begin":
		if err := s.editor.BeginConnection(req.NodeID, req.PortID, req.Direction, cursor); err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, s.editor.ConnectionGesture())
	case "move":
		moved := s.editor.UpdateConnectionCursor(cursor)
		s.writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
	case "resolve":
		if req.NodeID == "" && req.Point != nil {
			s.writeJSON(w, http.StatusOK, outcomeView(s.editor.ResolveConnectionAt(cursor)))
			return
		}
		s.writeJSON(w, http.StatusOK, outcomeView(s.editor.ResolveConnection(req.NodeID, req.PortID, req.Direction)))
	case "cancel":
		s.writeJSON(w, http.StatusOK, outcomeView(s.editor.CancelConnection()))
	default:
		s.writeError(w, errors.Newf("unknown gesture action %q", action), http.StatusNotFound)
	}
}

type outcomeResponse struct {
	Status     string            `json:"status"`
	Connection *graph.Connection `json:"connection,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

func outcomeView(out connector.Outcome) outcomeResponse {
	resp := outcomeResponse{Status: string(out.Status), Connection: out.Connection}
	if out.Err != nil {
		resp.Reason = out.Err.Error()
	}
	return resp
}
