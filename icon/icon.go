// Package icon defines the closed set of icon names a node may carry.
// Names match the lucide icon set the editor front end renders; unknown
// names fall back to Box.
package icon

import "sort"

// Name is an icon identifier
type Name string

// Authoring options offered when defining a custom template
const (
	Box       Name = "Box"
	Star      Name = "Star"
	Zap       Name = "Zap"
	Terminal  Name = "Terminal"
	Code      Name = "Code"
	Database  Name = "Database"
	Cloud     Name = "Cloud"
	Cpu       Name = "Cpu"
	Layers    Name = "Layers"
	GitBranch Name = "GitBranch"
	Settings  Name = "Settings"
	Tool      Name = "Tool"
	Package   Name = "Package"
	Puzzle    Name = "Puzzle"
	Workflow  Name = "Workflow"
)

// Icons used by built-in templates and palette categories
const (
	Type        Name = "Type"
	FileInput   Name = "FileInput"
	Globe       Name = "Globe"
	Shuffle     Name = "Shuffle"
	Filter      Name = "Filter"
	GitMerge    Name = "GitMerge"
	Brain       Name = "Brain"
	Monitor     Name = "Monitor"
	FileOutput  Name = "FileOutput"
	Send        Name = "Send"
	LogIn       Name = "LogIn"
	LogOut      Name = "LogOut"
	AlertCircle Name = "AlertCircle"
)

// Fallback is rendered for unknown names
const Fallback = Box

// entry carries display metadata for an icon
type entry struct {
	name      Name
	label     string
	authoring bool // offered in the custom template dialog
}

// registry order is the authoring dialog order, followed by built-in icons
var registry = []entry{
	{Box, "Box", true},
	{Star, "Star", true},
	{Zap, "Zap", true},
	{Terminal, "Terminal", true},
	{Code, "Code", true},
	{Database, "Database", true},
	{Cloud, "Cloud", true},
	{Cpu, "CPU", true},
	{Layers, "Layers", true},
	{GitBranch, "Branch", true},
	{Settings, "Settings", true},
	{Tool, "Tool", true},
	{Package, "Package", true},
	{Puzzle, "Puzzle", true},
	{Workflow, "Workflow", true},
	{Type, "Text", false},
	{FileInput, "File input", false},
	{Globe, "Globe", false},
	{Shuffle, "Shuffle", false},
	{Filter, "Filter", false},
	{GitMerge, "Merge", false},
	{Brain, "Brain", false},
	{Monitor, "Monitor", false},
	{FileOutput, "File output", false},
	{Send, "Send", false},
	{LogIn, "Log in", false},
	{LogOut, "Log out", false},
	{AlertCircle, "Alert", false},
}

var byName map[Name]entry

func init() {
	byName = make(map[Name]entry, len(registry))
	for _, e := range registry {
		byName[e.name] = e
	}
}

// Valid reports whether n is a known icon
func (n Name) Valid() bool {
	_, ok := byName[n]
	return ok
}

// Label returns a human-readable label
func (n Name) Label() string {
	if e, ok := byName[n]; ok {
		return e.label
	}
	return byName[Fallback].label
}

// Resolve maps any string to a known icon, falling back to Box
func Resolve(name string) Name {
	if n := Name(name); n.Valid() {
		return n
	}
	return Fallback
}

// AuthoringOptions returns the icons offered for custom templates, in dialog order
func AuthoringOptions() []Name {
	var out []Name
	for _, e := range registry {
		if e.authoring {
			out = append(out, e.name)
		}
	}
	return out
}

// All returns every known icon sorted by name
func All() []Name {
	out := make([]Name, 0, len(registry))
	for _, e := range registry {
		out = append(out, e.name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
