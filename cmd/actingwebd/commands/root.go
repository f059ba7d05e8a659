package commands

import (
	"github.com/spf13/cobra"
)

var (
	// listenAddr overrides the configured listen address.
	listenAddr string

	// fqdn overrides the configured public hostname.
	fqdn string

	// dbPath is the path to the SQLite database.
	dbPath string

	// backend selects the storage backend (sqlite, memory).
	backend string

	// devTest enables the /devtest surface and the passphrase grant.
	devTest bool

	// logLevel is one of debug, info, warn, error.
	logLevel string

	// logDir enables the rotating file log when set.
	logDir string
)

// rootCmd is the base command for the daemon.
var rootCmd = &cobra.Command{
	Use:   "actingwebd",
	Short: "ActingWeb actor host daemon",
	Long: `actingwebd hosts ActingWeb actors: per-user REST micro-services with
trust relationships, permission-scoped property access, change
subscriptions with callback fan-out, an OAuth2 authorization server,
and an MCP endpoint for AI clients.

Configuration is read from ACTINGWEB_* environment variables; flags
override the environment.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&listenAddr, "listen", "",
		"Listen address (default from ACTINGWEB_LISTEN or :8080)",
	)
	rootCmd.PersistentFlags().StringVar(
		&fqdn, "fqdn", "",
		"Public hostname actors are reachable on",
	)
	rootCmd.PersistentFlags().StringVar(
		&dbPath, "db", "",
		"Path to SQLite database (default: ~/.actingweb/actingweb.db)",
	)
	rootCmd.PersistentFlags().StringVar(
		&backend, "backend", "",
		"Storage backend: sqlite, memory",
	)
	rootCmd.PersistentFlags().BoolVar(
		&devTest, "devtest", false,
		"Enable the /devtest surface and the devtest token grant",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error",
	)
	rootCmd.PersistentFlags().StringVar(
		&logDir, "log-dir", "",
		"Directory for the rotating log file (console only when empty)",
	)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}
