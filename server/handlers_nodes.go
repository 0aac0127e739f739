package server

import (
	"net/http"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
)

type createNodeRequest struct {
	// Either a full template, or a library lookup by category and name
	Template *graph.Template `json:"template,omitempty"`
	Category string          `json:"category,omitempty"`
	Name     string          `json:"name,omitempty"`
	Position graph.Position  `json:"position"`
}

type updateNodeRequest struct {
	Position *graph.Position `json:"position,omitempty"`
	// Drag clamps the position to the non-negative quadrant
	Drag   bool           `json:"drag,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

type connectRequest struct {
	SourceNode string `json:"source_node"`
	SourcePort string `json:"source_port"`
	TargetNode string `json:"target_node"`
	TargetPort string `json:"target_port"`
	// Checked also verifies port ownership and direction
	Checked bool `json:"checked,omitempty"`
}

// HandleNodes handles node operations
// Routes:
//
//	POST   /api/graph/nodes      - Instantiate a template
//	PUT    /api/graph/nodes/{id} - Move a node
//	PATCH  /api/graph/nodes/{id} - Merge into a node's config
//	DELETE /api/graph/nodes/{id} - Delete a node and its connections
func (s *Server) HandleNodes(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/api/graph/nodes")

	switch r.Method {
	case http.MethodPost:
		if id != "" {
			s.methodNotAllowed(w)
			return
		}
		s.handleCreateNode(w, r)
	case http.MethodPut, http.MethodPatch:
		if id == "" {
			s.writeError(w, errors.New("node ID required"), http.StatusBadRequest)
			return
		}
		s.handleUpdateNode(w, r, id)
	case http.MethodDelete:
		if id == "" {
			s.writeError(w, errors.New("node ID required for delete"), http.StatusBadRequest)
			return
		}
		if err := s.editor.DeleteNode(id); err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w)
	}
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	if req.Template != nil {
		if !req.Template.Kind.Valid() || req.Template.Kind == graph.KindError {
			s.writeError(w, errors.Newf("template kind %q cannot be instantiated", req.Template.Kind), http.StatusBadRequest)
			return
		}
		s.writeJSON(w, http.StatusCreated, s.editor.InstantiateNode(*req.Template, req.Position))
		return
	}
	if req.Name == "" {
		s.writeError(w, errors.New("template or template name required"), http.StatusBadRequest)
		return
	}
	node, err := s.editor.InstantiateTemplate(req.Category, req.Name, req.Position)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request, id string) {
	var req updateNodeRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	if r.Method == http.MethodPut {
		if req.Position == nil {
			s.writeError(w, errors.New("position required"), http.StatusBadRequest)
			return
		}
		move := s.editor.RepositionNode
		if req.Drag {
			move = s.editor.DragNode
		}
		if err := move(id, *req.Position); err != nil {
			s.writeErr(w, err)
			return
		}
	} else {
		if err := s.editor.PatchNodeConfig(id, req.Config); err != nil {
			s.writeErr(w, err)
			return
		}
	}

	node, _ := s.editor.Snapshot().Node(id)
	s.writeJSON(w, http.StatusOK, node)
}

// HandleConnections handles connection operations
// Routes:
//
//	POST   /api/graph/connections           - Connect two ports
//	DELETE /api/graph/connections/{id}      - Delete a connection
//	DELETE /api/graph/connections/inspected - Delete the inspected connection
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/api/graph/connections")

	switch r.Method {
	case http.MethodPost:
		var req connectRequest
		if !s.readJSON(w, r, &req) {
			return
		}
		connect := s.editor.Connect
		if req.Checked {
			connect = s.editor.ConnectChecked
		}
		conn, err := connect(req.SourceNode, req.SourcePort, req.TargetNode, req.TargetPort)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, conn)
	case http.MethodDelete:
		var err error
		switch id {
		case "":
			s.writeError(w, errors.New("connection ID required for delete"), http.StatusBadRequest)
			return
		case "inspected":
			err = s.editor.DeleteInspected()
		default:
			err = s.editor.DeleteConnection(id)
		}
		if err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w)
	}
}
