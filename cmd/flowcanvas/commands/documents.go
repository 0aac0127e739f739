package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowcanvas/editor"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graphio"
)

// ValidateCmd reports orphaned nodes in a graph document
var ValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a graph document for orphaned nodes",
	Long: `Load a YAML or JSON graph document and report nodes that are missing an
incoming or outgoing connection. Connections that reference unknown nodes or
ports are dropped and listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

// ConvertCmd re-encodes a graph document; the encoding follows each file's extension
var ConvertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert a graph document between YAML and JSON",
	Args:  cobra.ExactArgs(2),
	RunE:  runConvert,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := graphio.ReadFile(args[0])
	if err != nil {
		return err
	}

	ed := editor.New()
	defer ed.Close()
	restored, err := ed.Import(doc)
	if err != nil {
		return errors.Wrapf(err, "failed to load %s", args[0])
	}
	for _, d := range restored.Dropped {
		pterm.Warning.Printf("Dropped connection %s: %s\n", d.Connection.ID, d.Reason)
	}

	report := ed.Validate()
	if report.Valid {
		pterm.Success.Printf("%s: %d nodes, %d connections, no orphans\n", args[0], restored.Nodes, restored.Connections)
		return nil
	}

	data := pterm.TableData{{"NODE", "NAME", "MISSING INPUTS", "MISSING OUTPUTS"}}
	for _, o := range report.Orphans {
		data = append(data, []string{o.NodeID, o.Name, yesNo(o.MissingInputs), yesNo(o.MissingOutputs)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	return fmt.Errorf("%d orphaned nodes", len(report.Orphans))
}

func runConvert(cmd *cobra.Command, args []string) error {
	doc, err := graphio.ReadFile(args[0])
	if err != nil {
		return err
	}
	// Reject documents that would not load
	if _, err := doc.Snapshot(); err != nil {
		return errors.Wrapf(err, "invalid document %s", args[0])
	}
	if err := graphio.WriteFile(args[1], doc); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", args[1])
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
