package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graphio"
	"github.com/teranos/flowcanvas/icon"
	"github.com/teranos/flowcanvas/template"
)

const maxDocumentSize = 4 * 1024 * 1024

// HandleExport renders the current graph
// Routes:
//
//	GET /api/graph/export?format=yaml|json|summary&name={name}
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w)
		return
	}
	q := r.URL.Query()

	var data []byte
	var err error
	contentType := "application/yaml"
	switch format := q.Get("format"); format {
	case "summary":
		data, err = graphio.MarshalSummary(s.editor.Snapshot())
	case "json":
		contentType = "application/json"
		data, err = graphio.Marshal(s.editor.Export(q.Get("name")), graphio.JSON)
	case "", "yaml":
		data, err = graphio.Marshal(s.editor.Export(q.Get("name")), graphio.YAML)
	default:
		s.writeError(w, errors.Newf("unknown export format %q", format), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleImport replaces the current graph with a posted document. JSON is
// read when ?format=json or the content type says so; YAML otherwise.
func (s *Server) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		s.writeError(w, errors.Wrap(err, "read document"), http.StatusBadRequest)
		return
	}
	enc := graphio.YAML
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Content-Type"), "json") {
		enc = graphio.JSON
	}

	doc, err := graphio.Unmarshal(data, enc)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	report, err := s.editor.Import(doc)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.requestLogger(r).Infow("Graph imported", "nodes", report.Nodes, "connections", report.Connections, "dropped", len(report.Dropped))
	s.writeJSON(w, http.StatusOK, report)
}

// HandleTemplates serves the palette
// Routes:
//
//	GET  /api/templates - Categories, templates and authoring icons
//	POST /api/templates - Add a custom template
func (s *Server) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	lib := s.editor.Templates()
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"categories": template.Categories,
			"templates":  lib.All(),
			"icons":      icon.AuthoringOptions(),
		})
	case http.MethodPost:
		var spec template.CustomSpec
		if !s.readJSON(w, r, &spec) {
			return
		}
		tpl, err := lib.AddCustom(spec)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, tpl)
	default:
		s.methodNotAllowed(w)
	}
}

// HandleSavedGraphs handles named graphs in the database
// Routes:
//
//	GET    /api/graphs        - List saved graphs
//	GET    /api/graphs/{name} - Saved graph as a document
//	PUT    /api/graphs/{name} - Save the current graph under name
//	POST   /api/graphs/{name} - Open a saved graph in the editor
//	DELETE /api/graphs/{name} - Delete a saved graph
func (s *Server) HandleSavedGraphs(w http.ResponseWriter, r *http.Request) {
	if s.graphs == nil {
		s.writeError(w, errors.New("graph storage is not configured"), http.StatusServiceUnavailable)
		return
	}
	name := pathID(r, "/api/graphs")
	ctx := r.Context()

	if name == "" {
		if r.Method != http.MethodGet {
			s.methodNotAllowed(w)
			return
		}
		infos, err := s.graphs.List(ctx)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, infos)
		return
	}

	switch r.Method {
	case http.MethodGet:
		snap, err := s.graphs.Load(ctx, name)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, graphio.FromSnapshot(name, snap))
	case http.MethodPut:
		info, err := s.graphs.Save(ctx, name, s.editor.Snapshot())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, info)
	case http.MethodPost:
		snap, err := s.graphs.Load(ctx, name)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		report, err := s.editor.Restore(snap)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, report)
	case http.MethodDelete:
		if err := s.graphs.Delete(ctx, name); err != nil {
			s.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w)
	}
}
