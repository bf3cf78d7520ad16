package main

import (
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/sqlitepie/internal/config"
	"github.com/saltyorg/sqlitepie/internal/database"
	"github.com/saltyorg/sqlitepie/internal/logging"
	"github.com/saltyorg/sqlitepie/internal/stats"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cli holds the global flags and the loaded configuration file.
type cli struct {
	configPath   string
	verbosity    int
	logFile      string
	ensureFolder bool
	timeout      time.Duration
	isolation    string
	driver       string
	showStats    bool

	cfg    *config.File
	loader *config.Loader
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:          "sqlitepie",
		Short:        "sqlitepie - SQLite connection manager",
		Long:         `sqlitepie runs statements, scripts, queries, migrations and maintenance against SQLite databases.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Configuration file (.yaml, .yml, .toml or .json)")
	flags.CountVarP(&c.verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	flags.StringVar(&c.logFile, "log-file", "", "Also write logs to this file (rotated)")
	flags.BoolVar(&c.ensureFolder, "ensure-folder", false, "Create missing parent directories of the database file")
	flags.DurationVar(&c.timeout, "timeout", 5*time.Second, "How long to wait on a locked database")
	flags.StringVar(&c.isolation, "isolation", database.IsolationDeferred, "Transaction begin mode (DEFERRED, IMMEDIATE, EXCLUSIVE)")
	flags.StringVar(&c.driver, "driver", "sqlite", "SQLite driver (sqlite, or sqlite3 when built with cgo_sqlite)")
	flags.BoolVar(&c.showStats, "stats", false, "Print statement statistics to stderr when done")

	rootCmd.AddCommand(
		newExecCmd(c),
		newScriptCmd(c),
		newQueryCmd(c),
		newMigrateCmd(c),
		newSchemaCmd(c),
		newMaintainCmd(c),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "sqlitepie %s (commit: %s, built: %s)\n", version, commit, date)
			},
		},
	)

	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.configPath != "" {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		c.cfg = cfg
	}
	c.loader = config.NewLoader(c.cfg)

	level := c.loader.String("log.level", "info")
	switch {
	case c.verbosity == 1:
		level = "debug"
	case c.verbosity >= 2:
		level = "trace"
	}

	logFile := c.logFile
	if logFile == "" {
		logFile = c.loader.String("log.file", "")
	}
	logging.Apply(level, c.loader, logFile)

	if c.cfg != nil {
		log.Debug().Str("path", c.cfg.Path).Msg("Loaded configuration file")
	}
	log.Trace().Str("command", cmd.CommandPath()).Msg("Starting command")
	return nil
}

// options merges the database section of the configuration file with the
// global flags the user set explicitly.
func (c *cli) options(cmd *cobra.Command) map[string]any {
	opts := make(map[string]any)
	if c.cfg != nil {
		maps.Copy(opts, c.cfg.Section("database"))
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		opts["timeout"] = c.timeout
	}
	if flags.Changed("isolation") {
		opts["isolation_level"] = c.isolation
	}
	if flags.Changed("driver") {
		opts["driver"] = c.driver
	}
	return opts
}

// open connects to path and returns a func that prints statistics when
// asked to and closes the connection.
func (c *cli) open(cmd *cobra.Command, path string) (*database.Connection, func(), error) {
	conn, err := database.Open(path, c.options(cmd), c.ensureFolder, logging.Global().With("db", path))
	if err != nil {
		return nil, nil, err
	}

	done := func() {
		if c.showStats {
			if err := conn.Tracer().WriteTable(cmd.ErrOrStderr(), stats.SortDuration); err != nil {
				log.Error().Err(err).Msg("Failed to write statement statistics")
			}
		}
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Str("db", path).Msg("Failed to close database")
		}
	}
	return conn, done, nil
}
