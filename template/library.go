// Package template manages the node templates offered by the palette:
// built-ins, templates loaded from library files, and author-defined
// custom templates.
package template

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/icon"
	"github.com/teranos/flowcanvas/version"
)

// libraryFile is the on-disk shape of a template library (YAML or TOML)
type libraryFile struct {
	// Requires is a semver constraint on the document format, e.g. ">= 1.0, < 2.0"
	Requires  string         `yaml:"requires" toml:"requires"`
	Templates []fileTemplate `yaml:"templates" toml:"templates"`
}

type fileTemplate struct {
	Kind          graph.Kind     `yaml:"kind" toml:"kind"`
	Name          string         `yaml:"name" toml:"name"`
	Icon          string         `yaml:"icon" toml:"icon"`
	Description   string         `yaml:"description" toml:"description"`
	Category      string         `yaml:"category" toml:"category"`
	Inputs        []PortDraft    `yaml:"inputs" toml:"inputs"`
	Outputs       []PortDraft    `yaml:"outputs" toml:"outputs"`
	DefaultConfig map[string]any `yaml:"default_config" toml:"default_config"`
}

// LoadReport summarizes a LoadDir pass
type LoadReport struct {
	Files     int              `json:"files"`
	Templates int              `json:"templates"`
	Failed    map[string]error `json:"-"`
}

// Library holds every template the palette can offer. Safe for concurrent use.
type Library struct {
	mu       sync.RWMutex
	builtins []graph.Template
	files    map[string][]graph.Template
	custom   []graph.Template
	format   *semver.Version
	logger   *zap.SugaredLogger
}

// Option configures a Library
type Option func(*Library)

// WithLogger sets the library logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// WithFormatVersion overrides the document format version checked against
// library files' requires constraints
func WithFormatVersion(v *semver.Version) Option {
	return func(l *Library) {
		l.format = v
	}
}

// NewLibrary creates a library seeded with the built-in templates
func NewLibrary(opts ...Option) *Library {
	l := &Library{
		builtins: Builtins(),
		files:    make(map[string][]graph.Template),
		format:   semver.MustParse(version.DocumentFormat),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// All returns built-ins, then file templates (by file path), then custom templates
func (l *Library) All() []graph.Template {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := append([]graph.Template(nil), l.builtins...)
	paths := make([]string, 0, len(l.files))
	for p := range l.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		out = append(out, l.files[p]...)
	}
	return append(out, l.custom...)
}

// ByCategory returns the templates in one palette category
func (l *Library) ByCategory(category string) []graph.Template {
	var out []graph.Template
	for _, t := range l.All() {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Find looks a template up by category and name. Later sources shadow
// earlier ones, so a library file can override a built-in.
func (l *Library) Find(category, name string) (graph.Template, bool) {
	all := l.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Category == category && all[i].Name == name {
			return all[i], true
		}
	}
	return graph.Template{}, false
}

// FindByName looks a template up by name alone, preferring later sources
func (l *Library) FindByName(name string) (graph.Template, bool) {
	all := l.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Name == name {
			return all[i], true
		}
	}
	return graph.Template{}, false
}

// AddCustom builds a custom template and appends it to the custom category.
// A second custom template with the same name is a conflict.
func (l *Library) AddCustom(spec CustomSpec) (graph.Template, error) {
	tpl, err := BuildCustom(spec)
	if err != nil {
		return graph.Template{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.custom {
		if existing.Name == tpl.Name {
			return graph.Template{}, errors.Wrapf(errors.ErrConflict, "custom template %q already exists", tpl.Name)
		}
	}
	l.custom = append(l.custom, tpl)

	if l.logger != nil {
		l.logger.Infow("Custom template added", "name", tpl.Name, "kind", tpl.Kind)
	}
	return tpl, nil
}

// LoadDir replaces the file templates with those found in dir (*.yaml,
// *.yml, *.toml). Files that fail to parse or are incompatible are reported
// and skipped; the rest still load.
func (l *Library) LoadDir(dir string) (LoadReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return LoadReport{}, errors.Wrapf(err, "read template dir %s", dir)
	}

	report := LoadReport{Failed: make(map[string]error)}
	files := make(map[string][]graph.Template)
	for _, entry := range entries {
		if entry.IsDir() || !IsLibraryFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		tpls, err := l.parseFile(path)
		if err != nil {
			report.Failed[path] = err
			if l.logger != nil {
				l.logger.Warnw("Skipping template file", "file", path, "error", err)
			}
			continue
		}
		files[path] = tpls
		report.Files++
		report.Templates += len(tpls)
	}

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Infow("Template library loaded",
			"dir", dir,
			"files", report.Files,
			"templates", report.Templates,
			"failed", len(report.Failed),
		)
	}
	return report, nil
}

// LoadFile parses one library file and adds (or replaces) its templates
func (l *Library) LoadFile(path string) ([]graph.Template, error) {
	tpls, err := l.parseFile(path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.files[path] = tpls
	l.mu.Unlock()
	return tpls, nil
}

// IsLibraryFile reports whether name has a template library extension
func IsLibraryFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

func (l *Library) parseFile(path string) ([]graph.Template, error) {
	var doc libraryFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &doc); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	default:
		return nil, errors.NewInvalidRequestError("unsupported template file %s", path)
	}

	if err := l.checkCompatible(doc.Requires); err != nil {
		return nil, errors.Wrapf(err, "template file %s", path)
	}

	tpls := make([]graph.Template, 0, len(doc.Templates))
	for i, ft := range doc.Templates {
		tpl, err := ft.toTemplate()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: template %d", path, i)
		}
		tpls = append(tpls, tpl)
	}
	return tpls, nil
}

func (l *Library) checkCompatible(requires string) error {
	if strings.TrimSpace(requires) == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(requires)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "invalid requires constraint %q: %v", requires, err)
	}
	if !constraint.Check(l.format) {
		return errors.WithHintf(
			errors.Newf("requires format %s, have %s", requires, l.format),
			"upgrade flowcanvas or pin the library to a compatible release",
		)
	}
	return nil
}

func (ft fileTemplate) toTemplate() (graph.Template, error) {
	name := strings.TrimSpace(ft.Name)
	if name == "" {
		return graph.Template{}, errors.NewInvalidRequestError("template name is required")
	}
	kind := ft.Kind
	if kind == "" {
		kind = graph.KindProcess
	}
	if err := checkKind(kind); err != nil {
		return graph.Template{}, err
	}
	category := ft.Category
	if category == "" {
		category = string(kind)
	}
	config := ft.DefaultConfig
	if config == nil {
		config = map[string]any{}
	}
	return graph.Template{
		Kind:          kind,
		Name:          name,
		Icon:          string(icon.Resolve(ft.Icon)),
		Description:   strings.TrimSpace(ft.Description),
		Category:      category,
		Inputs:        draftPorts(ft.Inputs, graph.Input),
		Outputs:       draftPorts(ft.Outputs, graph.Output),
		DefaultConfig: config,
	}, nil
}
