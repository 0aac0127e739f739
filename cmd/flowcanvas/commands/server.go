package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/canvas/storage"
	"github.com/teranos/flowcanvas/editor"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/graphio"
	"github.com/teranos/flowcanvas/logger"
	"github.com/teranos/flowcanvas/server"
	"github.com/teranos/flowcanvas/template"
	"github.com/teranos/flowcanvas/version"
)

// ServerCmd starts the editor server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the editor server",
	Long:    `Serve one editor over HTTP and stream its changes to WebSocket clients. Saved graphs live in the configured SQLite database.`,
	RunE:    runServer,
}

var (
	serverPort     int
	serverOpen     string
	serverTemplDir string
)

func init() {
	ServerCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on (overrides config)")
	ServerCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	ServerCmd.Flags().StringVar(&serverOpen, "open", "", "Graph document to load at startup")
	ServerCmd.Flags().StringVar(&serverTemplDir, "templates", "", "Template library directory (overrides config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	port := cfg.Server.Port
	if serverPort != 0 {
		port = serverPort
	}

	database, dbPath, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	library := template.NewLibrary(template.WithLogger(logger.ComponentLogger("templates")))
	stopWatcher, err := loadTemplates(cfg, library)
	if err != nil {
		return err
	}
	defer stopWatcher()

	ed := editor.New(
		editor.WithConfig(cfg),
		editor.WithTemplates(library),
		editor.WithLogger(logger.ComponentLogger("editor")),
	)
	defer ed.Close()

	if serverOpen != "" {
		doc, err := graphio.ReadFile(serverOpen)
		if err != nil {
			return err
		}
		report, err := ed.Import(doc)
		if err != nil {
			return errors.Wrapf(err, "failed to open %s", serverOpen)
		}
		pterm.Info.Printf("Loaded %s: %d nodes, %d connections\n", serverOpen, report.Nodes, report.Connections)
	}

	srv := server.New(ed,
		server.WithConfig(cfg),
		server.WithGraphStore(storage.NewGraphStore(database, logger.ComponentLogger("graphs"))),
		server.WithLogger(logger.ComponentLogger("server")),
	)

	info := version.Get()
	pterm.DefaultBox.WithTitle("flowcanvas " + info.Version).Println(
		fmt.Sprintf("Editor:    http://localhost:%d\nWebSocket: ws://localhost:%d/ws\nDatabase:  %s", port, port, dbPath))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		srv.Stop()
		return errors.Wrap(err, "server stopped")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// loadTemplates fills library from the configured directory and starts a
// watcher when asked to. The returned func stops the watcher.
func loadTemplates(cfg *am.Config, library *template.Library) (func(), error) {
	dir := cfg.Templates.Dir
	if serverTemplDir != "" {
		dir = serverTemplDir
	}
	if dir == "" {
		return func() {}, nil
	}

	report, err := library.LoadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load templates from %s", dir)
	}
	for file, ferr := range report.Failed {
		pterm.Warning.Printf("Skipped %s: %v\n", file, ferr)
	}
	pterm.Info.Printf("Loaded %d templates from %d files\n", report.Templates, report.Files)

	if !cfg.Templates.Watch {
		return func() {}, nil
	}
	watcher, err := template.NewWatcher(dir, library, logger.ComponentLogger("templates"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to watch template directory")
	}
	watcher.OnReload(func(r template.LoadReport) {
		logger.Infow("Template library reloaded", "files", r.Files, "templates", r.Templates, "failed", len(r.Failed))
	})
	watcher.Start()
	return func() { watcher.Stop() }, nil
}
