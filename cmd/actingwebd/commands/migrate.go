package commands

import (
	"github.com/spf13/cobra"

	"github.com/actingweb/actingweb-go/internal/build"
	"github.com/actingweb/actingweb-go/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log, logCloser, err := build.NewLogger(build.LogConfig{Level: logLevel})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	path := dbPath
	if path == "" {
		path, err = db.DefaultDBPath()
		if err != nil {
			return err
		}
	}

	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.MigrateUp(sqlDB, log); err != nil {
		return err
	}

	log.Info("Migrations applied", "path", path)
	return nil
}
