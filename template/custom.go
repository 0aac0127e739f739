package template

import (
	"strings"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/icon"
)

// DefaultDataType is assigned to ports declared without one
const DefaultDataType = "any"

// PortDraft is a port row as entered by the author
type PortDraft struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	DataType string `json:"data_type" yaml:"data_type" toml:"data_type"`
}

// CustomSpec is an author-supplied template definition
type CustomSpec struct {
	Name        string      `json:"name" yaml:"name" toml:"name"`
	Description string      `json:"description" yaml:"description" toml:"description"`
	Kind        graph.Kind  `json:"kind" yaml:"kind" toml:"kind"`
	Icon        string      `json:"icon" yaml:"icon" toml:"icon"`
	Inputs      []PortDraft `json:"inputs" yaml:"inputs" toml:"inputs"`
	Outputs     []PortDraft `json:"outputs" yaml:"outputs" toml:"outputs"`
}

// BuildCustom turns a spec into a template. The name is trimmed and
// required; ports with blank names are dropped; data types default to "any";
// kind defaults to process; the category is always custom; the default
// config starts empty.
func BuildCustom(spec CustomSpec) (graph.Template, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return graph.Template{}, errors.NewInvalidRequestError("template name is required")
	}

	kind := spec.Kind
	if kind == "" {
		kind = graph.KindProcess
	}
	if err := checkKind(kind); err != nil {
		return graph.Template{}, err
	}

	return graph.Template{
		Kind:          kind,
		Name:          name,
		Icon:          string(icon.Resolve(spec.Icon)),
		Description:   strings.TrimSpace(spec.Description),
		Category:      CategoryCustom,
		Inputs:        draftPorts(spec.Inputs, graph.Input),
		Outputs:       draftPorts(spec.Outputs, graph.Output),
		DefaultConfig: map[string]any{},
	}, nil
}

func draftPorts(drafts []PortDraft, dir graph.Direction) []graph.PortSpec {
	ports := make([]graph.PortSpec, 0, len(drafts))
	for _, d := range drafts {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		dataType := strings.TrimSpace(d.DataType)
		if dataType == "" {
			dataType = DefaultDataType
		}
		ports = append(ports, graph.PortSpec{Name: name, Direction: dir, DataType: dataType})
	}
	return ports
}

// checkKind refuses unknown kinds and the display-only error kind
func checkKind(kind graph.Kind) error {
	if !kind.Valid() {
		return errors.NewInvalidRequestError("unknown node kind %q", kind)
	}
	if kind == graph.KindError {
		return errors.NewInvalidRequestError("node kind %q is display-only", kind)
	}
	return nil
}
