package template

import (
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/icon"
)

// Category groups templates in the palette
type Category struct {
	ID   string    `json:"id" yaml:"id"`
	Name string    `json:"name" yaml:"name"`
	Icon icon.Name `json:"icon" yaml:"icon"`
}

// Category ids
const (
	CategoryInput   = "input"
	CategoryProcess = "process"
	CategoryOutput  = "output"
	CategoryCustom  = "custom"
)

// Categories in palette order
var Categories = []Category{
	{ID: CategoryInput, Name: "Input", Icon: icon.LogIn},
	{ID: CategoryProcess, Name: "Process", Icon: icon.Cpu},
	{ID: CategoryOutput, Name: "Output", Icon: icon.LogOut},
	{ID: CategoryCustom, Name: "Custom", Icon: icon.Puzzle},
}

func port(name, dataType string) graph.PortSpec {
	return graph.PortSpec{Name: name, DataType: dataType}
}

// Builtins returns the templates that ship with the editor
func Builtins() []graph.Template {
	return []graph.Template{
		{
			Kind:          graph.KindInput,
			Name:          "Text Input",
			Icon:          string(icon.Type),
			Description:   "Emit a fixed text value",
			Category:      CategoryInput,
			Outputs:       []graph.PortSpec{port("text", "string")},
			DefaultConfig: map[string]any{"value": ""},
		},
		{
			Kind:          graph.KindInput,
			Name:          "File Input",
			Icon:          string(icon.FileInput),
			Description:   "Read a file from disk",
			Category:      CategoryInput,
			Outputs:       []graph.PortSpec{port("content", "string"), port("metadata", "json")},
			DefaultConfig: map[string]any{"path": "", "encoding": "utf-8"},
		},
		{
			Kind:          graph.KindInput,
			Name:          "HTTP Request",
			Icon:          string(icon.Globe),
			Description:   "Fetch data from a URL",
			Category:      CategoryInput,
			Outputs:       []graph.PortSpec{port("response", "json")},
			DefaultConfig: map[string]any{"url": "", "method": "GET"},
		},
		{
			Kind:          graph.KindProcess,
			Name:          "Transform",
			Icon:          string(icon.Shuffle),
			Description:   "Apply an expression to each item",
			Category:      CategoryProcess,
			Inputs:        []graph.PortSpec{port("input", "any")},
			Outputs:       []graph.PortSpec{port("output", "any")},
			DefaultConfig: map[string]any{"expression": ""},
		},
		{
			Kind:          graph.KindProcess,
			Name:          "Filter",
			Icon:          string(icon.Filter),
			Description:   "Keep items matching a condition",
			Category:      CategoryProcess,
			Inputs:        []graph.PortSpec{port("input", "any")},
			Outputs:       []graph.PortSpec{port("passed", "any"), port("rejected", "any")},
			DefaultConfig: map[string]any{"condition": ""},
		},
		{
			Kind:          graph.KindProcess,
			Name:          "Merge",
			Icon:          string(icon.GitMerge),
			Description:   "Combine two streams",
			Category:      CategoryProcess,
			Inputs:        []graph.PortSpec{port("left", "any"), port("right", "any")},
			Outputs:       []graph.PortSpec{port("merged", "any")},
			DefaultConfig: map[string]any{"strategy": "concat"},
		},
		{
			Kind:          graph.KindProcess,
			Name:          "AI Model",
			Icon:          string(icon.Brain),
			Description:   "Run a prompt against a language model",
			Category:      CategoryProcess,
			Inputs:        []graph.PortSpec{port("prompt", "string"), port("context", "json")},
			Outputs:       []graph.PortSpec{port("completion", "string")},
			DefaultConfig: map[string]any{"model": "", "temperature": 0.7},
		},
		{
			Kind:          graph.KindOutput,
			Name:          "Display",
			Icon:          string(icon.Monitor),
			Description:   "Show the result in the editor",
			Category:      CategoryOutput,
			Inputs:        []graph.PortSpec{port("data", "any")},
			DefaultConfig: map[string]any{"format": "auto"},
		},
		{
			Kind:          graph.KindOutput,
			Name:          "File Output",
			Icon:          string(icon.FileOutput),
			Description:   "Write the result to a file",
			Category:      CategoryOutput,
			Inputs:        []graph.PortSpec{port("content", "string")},
			DefaultConfig: map[string]any{"path": "", "overwrite": false},
		},
		{
			Kind:          graph.KindOutput,
			Name:          "Webhook",
			Icon:          string(icon.Send),
			Description:   "POST the result to a URL",
			Category:      CategoryOutput,
			Inputs:        []graph.PortSpec{port("payload", "json")},
			DefaultConfig: map[string]any{"url": ""},
		},
	}
}
