package graph

// Orphan is a node with an unconnected side
type Orphan struct {
	NodeID         string `json:"node_id"`
	Name           string `json:"name"`
	MissingInputs  bool   `json:"missing_inputs"`
	MissingOutputs bool   `json:"missing_outputs"`
}

// Report is the advisory result of Validate
type Report struct {
	Valid   bool     `json:"valid"`
	Orphans []Orphan `json:"orphans,omitempty"`
}

// Validate finds orphaned nodes. A node is orphaned when it has outputs but
// no outgoing connection and is not an input node, or has inputs but no
// incoming connection and is not an output node. Connections that reference
// missing nodes are ignored. Validation never blocks other operations.
func Validate(nodes []Node, connections []Connection) Report {
	present := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
	}

	hasOutgoing := make(map[string]bool)
	hasIncoming := make(map[string]bool)
	for _, c := range connections {
		if !present[c.SourceNodeID] || !present[c.TargetNodeID] {
			continue
		}
		hasOutgoing[c.SourceNodeID] = true
		hasIncoming[c.TargetNodeID] = true
	}

	report := Report{Valid: true}
	for _, n := range nodes {
		missingOutputs := len(n.Outputs) > 0 && !hasOutgoing[n.ID] && n.Kind != KindInput
		missingInputs := len(n.Inputs) > 0 && !hasIncoming[n.ID] && n.Kind != KindOutput
		if !missingInputs && !missingOutputs {
			continue
		}
		report.Valid = false
		report.Orphans = append(report.Orphans, Orphan{
			NodeID:         n.ID,
			Name:           n.Name,
			MissingInputs:  missingInputs,
			MissingOutputs: missingOutputs,
		})
	}
	return report
}
