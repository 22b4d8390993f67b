package commands

import (
	"database/sql"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/db"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
)

// openDatabase opens and migrates the database. An empty path falls back
// to the configured one.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		dbPath = path
	}

	database, err := db.OpenWithMigrations(dbPath, logger.AddDBSymbol(logger.Logger))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}
