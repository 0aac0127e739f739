// Package graphio encodes graphs as portable YAML or JSON documents.
//
// Documents persist ports explicitly, ids included, so exporting a graph and
// importing it back reproduces its connectivity exactly.
package graphio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/version"
)

// Encoding selects the document syntax
type Encoding string

const (
	YAML Encoding = "yaml"
	JSON Encoding = "json"
)

// Document is the on-disk form of a graph
type Document struct {
	Format      string          `yaml:"format" json:"format"`
	Name        string          `yaml:"name,omitempty" json:"name,omitempty"`
	Selected    string          `yaml:"selected,omitempty" json:"selected,omitempty"`
	Nodes       []NodeDoc       `yaml:"nodes" json:"nodes"`
	Connections []ConnectionDoc `yaml:"connections" json:"connections"`
}

// NodeDoc is a node with its ports. Port direction is implied by the list
// the port appears in.
type NodeDoc struct {
	ID          string         `yaml:"id" json:"id"`
	Kind        graph.Kind     `yaml:"kind" json:"kind"`
	Name        string         `yaml:"name" json:"name"`
	Icon        string         `yaml:"icon,omitempty" json:"icon,omitempty"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs      []PortDoc      `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []PortDoc      `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	Position    graph.Position `yaml:"position" json:"position"`
}

// PortDoc is a persisted port
type PortDoc struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	DataType string `yaml:"data_type,omitempty" json:"data_type,omitempty"`
}

// ConnectionDoc is a persisted connection
type ConnectionDoc struct {
	ID         string `yaml:"id" json:"id"`
	SourceNode string `yaml:"source_node" json:"source_node"`
	SourcePort string `yaml:"source_port" json:"source_port"`
	TargetNode string `yaml:"target_node" json:"target_node"`
	TargetPort string `yaml:"target_port" json:"target_port"`
}

// FromSnapshot builds a document from a store snapshot
func FromSnapshot(name string, snap graph.Snapshot) Document {
	doc := Document{
		Format:      version.DocumentFormat,
		Name:        name,
		Selected:    snap.SelectedNodeID,
		Nodes:       make([]NodeDoc, 0, len(snap.Nodes)),
		Connections: make([]ConnectionDoc, 0, len(snap.Connections)),
	}
	for _, n := range snap.Nodes {
		doc.Nodes = append(doc.Nodes, NodeDoc{
			ID:          n.ID,
			Kind:        n.Kind,
			Name:        n.Name,
			Icon:        n.Icon,
			Description: n.Description,
			Inputs:      portDocs(n.Inputs),
			Outputs:     portDocs(n.Outputs),
			Config:      n.Config,
			Position:    n.Position,
		})
	}
	for _, c := range snap.Connections {
		doc.Connections = append(doc.Connections, ConnectionDoc{
			ID:         c.ID,
			SourceNode: c.SourceNodeID,
			SourcePort: c.SourcePortID,
			TargetNode: c.TargetNodeID,
			TargetPort: c.TargetPortID,
		})
	}
	return doc
}

func portDocs(ports []graph.Port) []PortDoc {
	out := make([]PortDoc, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortDoc{ID: p.ID, Name: p.Name, DataType: p.DataType})
	}
	return out
}

// Snapshot converts the document back into a snapshot. It checks the format
// version and node shape; connection sanity (dangling, self loop, duplicate)
// is left to graph.Store.Restore.
func (d Document) Snapshot() (graph.Snapshot, error) {
	if err := CheckFormat(d.Format); err != nil {
		return graph.Snapshot{}, err
	}

	snap := graph.Snapshot{
		SelectedNodeID: d.Selected,
		Nodes:          make([]graph.Node, 0, len(d.Nodes)),
		Connections:    make([]graph.Connection, 0, len(d.Connections)),
	}
	for i, nd := range d.Nodes {
		if nd.ID == "" {
			return graph.Snapshot{}, errors.NewInvalidRequestError("node #%d has no id", i+1)
		}
		if !nd.Kind.Valid() {
			return graph.Snapshot{}, errors.NewInvalidRequestError("node %s has unknown kind %q", nd.ID, nd.Kind)
		}
		n := graph.Node{
			ID:          nd.ID,
			Kind:        nd.Kind,
			Name:        nd.Name,
			Icon:        nd.Icon,
			Description: nd.Description,
			Config:      nd.Config,
			Position:    nd.Position,
		}
		if n.Config == nil {
			n.Config = map[string]any{}
		}
		seen := make(map[string]bool)
		var err error
		if n.Inputs, err = ports(nd.ID, nd.Inputs, graph.Input, seen); err != nil {
			return graph.Snapshot{}, err
		}
		if n.Outputs, err = ports(nd.ID, nd.Outputs, graph.Output, seen); err != nil {
			return graph.Snapshot{}, err
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, cd := range d.Connections {
		snap.Connections = append(snap.Connections, graph.Connection{
			ID:           cd.ID,
			SourceNodeID: cd.SourceNode,
			SourcePortID: cd.SourcePort,
			TargetNodeID: cd.TargetNode,
			TargetPortID: cd.TargetPort,
		})
	}
	return snap, nil
}

func ports(nodeID string, docs []PortDoc, dir graph.Direction, seen map[string]bool) ([]graph.Port, error) {
	out := make([]graph.Port, 0, len(docs))
	for _, pd := range docs {
		if pd.ID == "" {
			return nil, errors.NewInvalidRequestError("node %s has a port without an id", nodeID)
		}
		if seen[pd.ID] {
			return nil, errors.NewInvalidRequestError("node %s declares port %s twice", nodeID, pd.ID)
		}
		seen[pd.ID] = true
		out = append(out, graph.Port{ID: pd.ID, Name: pd.Name, Direction: dir, DataType: pd.DataType})
	}
	return out, nil
}

// CheckFormat accepts documents whose format shares the current major
// version. An empty format is read as the current one.
func CheckFormat(format string) error {
	if format == "" {
		return nil
	}
	v, err := semver.NewVersion(format)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidRequest, errors.Wrapf(err, "document format %q", format).Error())
	}
	current := semver.MustParse(version.DocumentFormat)
	if v.Major() != current.Major() {
		err := errors.NewInvalidRequestError("document format %s is not supported", format)
		return errors.WithHintf(err, "this build reads format %d.x", current.Major())
	}
	return nil
}

// Marshal encodes the document
func Marshal(doc Document, enc Encoding) ([]byte, error) {
	switch enc {
	case YAML, "":
		data, err := yaml.Marshal(doc)
		return data, errors.Wrap(err, "encode yaml document")
	case JSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		return data, errors.Wrap(err, "encode json document")
	default:
		return nil, errors.NewInvalidRequestError("unknown encoding %q", enc)
	}
}

// Unmarshal decodes a document
func Unmarshal(data []byte, enc Encoding) (Document, error) {
	var doc Document
	switch enc {
	case YAML, "":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Document{}, errors.Wrap(errors.ErrInvalidRequest, errors.Wrap(err, "decode yaml document").Error())
		}
	case JSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return Document{}, errors.Wrap(errors.ErrInvalidRequest, errors.Wrap(err, "decode json document").Error())
		}
	default:
		return Document{}, errors.NewInvalidRequestError("unknown encoding %q", enc)
	}
	return doc, nil
}

// EncodingFor picks the encoding from a file extension; anything that is not
// .json is YAML.
func EncodingFor(path string) Encoding {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// ReadFile loads a document, choosing the encoding from the extension
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, errors.Wrapf(err, "read %s", path)
	}
	doc, err := Unmarshal(data, EncodingFor(path))
	if err != nil {
		return Document{}, errors.Wrapf(err, "parse %s", path)
	}
	return doc, nil
}

// WriteFile stores a document, choosing the encoding from the extension
func WriteFile(path string, doc Document) error {
	data, err := Marshal(doc, EncodingFor(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
