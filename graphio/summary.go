package graphio

import (
	"gopkg.in/yaml.v3"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
)

// SummaryNode is the reduced per-node export: no ports, no connections
type SummaryNode struct {
	ID       string         `yaml:"id" json:"id"`
	Kind     graph.Kind     `yaml:"type" json:"type"`
	Name     string         `yaml:"name" json:"name"`
	Config   map[string]any `yaml:"config" json:"config"`
	Position graph.Position `yaml:"position" json:"position"`
}

// Summary lists the nodes of a snapshot in their reduced export form.
// It does not round-trip; use FromSnapshot for that.
func Summary(snap graph.Snapshot) []SummaryNode {
	out := make([]SummaryNode, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		out = append(out, SummaryNode{
			ID:       n.ID,
			Kind:     n.Kind,
			Name:     n.Name,
			Config:   n.Config,
			Position: n.Position,
		})
	}
	return out
}

// MarshalSummary renders the summary as YAML under a top-level nodes key
func MarshalSummary(snap graph.Snapshot) ([]byte, error) {
	data, err := yaml.Marshal(struct {
		Nodes []SummaryNode `yaml:"nodes"`
	}{Summary(snap)})
	if err != nil {
		return nil, errors.Wrap(err, "encode summary")
	}
	return data, nil
}
