package commands

import (
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graph"
	"github.com/teranos/flowcanvas/icon"
	"github.com/teranos/flowcanvas/template"
)

// TemplatesCmd inspects the node template palette
var TemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect the node template palette",
}

var templatesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List templates",
	Long:  "List built-in templates plus those loaded from the configured template directory.",
	RunE:  runTemplatesLs,
}

var templatesCategory string

func init() {
	TemplatesCmd.AddCommand(templatesLsCmd)

	templatesLsCmd.Flags().StringVarP(&templatesCategory, "category", "c", "", "Only list one category (input, process, output, custom)")
	templatesLsCmd.Flags().StringVar(&serverTemplDir, "templates", "", "Template library directory (overrides config)")
}

func runTemplatesLs(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	library := template.NewLibrary()
	if dir := firstNonEmpty(serverTemplDir, cfg.Templates.Dir); dir != "" {
		if _, err := library.LoadDir(dir); err != nil {
			return errors.Wrapf(err, "failed to load templates from %s", dir)
		}
	}

	var templates []graph.Template
	if templatesCategory != "" {
		templates = library.ByCategory(templatesCategory)
	} else {
		templates = library.All()
	}

	data := pterm.TableData{{"CATEGORY", "NAME", "KIND", "ICON", "INPUTS", "OUTPUTS"}}
	for _, t := range templates {
		data = append(data, []string{
			t.Category,
			t.Name,
			string(t.Kind),
			icon.Resolve(t.Icon).Label(),
			portNames(t.Inputs),
			portNames(t.Outputs),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Printf("%d templates\n", len(templates))
	return nil
}

func portNames(ports []graph.PortSpec) string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
