package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/flowcanvas/cmd/flowcanvas/commands"
	"github.com/teranos/flowcanvas/logger"
)

var rootCmd = &cobra.Command{
	Use:   "flowcanvas",
	Short: "flowcanvas - Node-graph editor for data-processing pipelines",
	Long: `flowcanvas - Node-graph editor for data-processing pipelines.

Lay out processing steps as nodes, wire their ports together and check the
graph for orphaned steps. The server exposes the editor over HTTP and streams
every change to WebSocket clients.

Available commands:
  am        - Manage flowcanvas configuration ("I am")
  server    - Start the editor server
  validate  - Check a graph document for orphaned nodes
  convert   - Convert a graph document between YAML and JSON
  graphs    - Manage saved graphs
  templates - List the node template palette

Examples:
  flowcanvas am show                   # Show current configuration
  flowcanvas server                    # Start the editor server
  flowcanvas validate pipeline.yaml    # Report orphaned nodes
  flowcanvas convert a.yaml a.json     # Re-encode a document`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' output is meant to be piped
		if cmd.Name() == "show" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit structured JSON logs")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.ConvertCmd)
	rootCmd.AddCommand(commands.GraphsCmd)
	rootCmd.AddCommand(commands.TemplatesCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
