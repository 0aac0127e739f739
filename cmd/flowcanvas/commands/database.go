package commands

import (
	"database/sql"

	"github.com/teranos/flowcanvas/am"
	"github.com/teranos/flowcanvas/canvas/storage"
	"github.com/teranos/flowcanvas/db"
	"github.com/teranos/flowcanvas/errors"
	"github.com/teranos/flowcanvas/logger"
)

var dbPathFlag string

// openDatabase opens and migrates the saved-graph database. An empty path
// falls back to the configured one.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, dbPath, nil
}

// openGraphStore loads config and opens the saved-graph store
func openGraphStore() (*storage.GraphStore, func(), error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	database, _, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewGraphStore(database, logger.ComponentLogger("graphs")), func() { database.Close() }, nil
}
