package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/sqlitepie/internal/config"
	"github.com/saltyorg/sqlitepie/internal/database"
	"github.com/saltyorg/sqlitepie/internal/database/schema"
	"github.com/saltyorg/sqlitepie/internal/watch"
)

func newExecCmd(c *cli) *cobra.Command {
	var many bool

	cmd := &cobra.Command{
		Use:   "exec DB SQL [ARGS...]",
		Short: "Run one statement in a transaction",
		Long: `Run one statement in a transaction. ARGS bind to the statement's ? placeholders.
With --many, every line of stdin is a tab separated parameter set and the
whole batch runs in a single transaction.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, done, err := c.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer done()

			var res database.Result
			if many {
				params, err := readParamSets(cmd)
				if err != nil {
					return err
				}
				res, err = conn.ExecuteMany(args[1], params)
				if err != nil {
					return err
				}
			} else {
				res, err = conn.Execute(args[1], toArgs(args[2:])...)
				if err != nil {
					return err
				}
			}

			log.Info().
				Int64("rows_affected", res.RowsAffected).
				Int64("last_insert_id", res.LastInsertID).
				Msg("Statement executed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&many, "many", false, "Read tab separated parameter sets from stdin")
	return cmd
}

func newScriptCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "script DB FILE",
		Short: "Run a multi-statement SQL script in a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}

			conn, done, err := c.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer done()

			res, err := conn.ExecuteScript(string(script))
			if err != nil {
				return err
			}
			log.Info().Str("script", args[1]).Int64("rows_affected", res.RowsAffected).Msg("Script executed")
			return nil
		},
	}
}

func newQueryCmd(c *cli) *cobra.Command {
	var (
		arraysize int
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "query DB SQL [ARGS...]",
		Short: "Run a query and print its rows as JSON lines",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if arraysize <= 0 {
				arraysize = c.loader.Int("query.arraysize", database.DefaultArraySize)
			}

			conn, done, err := c.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer done()

			cur, err := conn.QueryWithArraySize(arraysize, args[1], toArgs(args[2:])...)
			if err != nil {
				return err
			}
			defer cur.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			printed := 0
			for limit <= 0 || printed < limit {
				size := arraysize
				if limit > 0 {
					size = min(size, limit-printed)
				}
				rows, err := cur.FetchMany(size)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					break
				}
				for _, row := range rows {
					if err := enc.Encode(printable(row)); err != nil {
						return fmt.Errorf("failed to write row: %w", err)
					}
				}
				printed += len(rows)
			}

			log.Debug().Int("rows", printed).Msg("Query finished")
			return nil
		},
	}
	cmd.Flags().IntVar(&arraysize, "arraysize", 0, "Rows fetched per round trip (default query.arraysize, or 1)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many rows (0 for all)")
	return cmd
}

func newMigrateCmd(c *cli) *cobra.Command {
	var (
		watchDir bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "migrate DB DIR",
		Short: "Apply the NNN_name.sql migrations of DIR that are newer than the database",
		Long: `Apply the NNN_name.sql migrations of DIR that are newer than the database.
With --watch, keep running and apply new migrations as they appear in DIR.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[1]

			conn, done, err := c.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer done()

			migrate := func() (int, error) {
				migrations, err := loadMigrations(dir)
				if err != nil {
					return 0, err
				}
				if err := conn.Migrate(migrations); err != nil {
					return 0, err
				}
				return conn.SchemaVersion()
			}

			v, err := migrate()
			if err != nil {
				return err
			}
			log.Info().Int("version", v).Msg("Database is up to date")
			fmt.Fprintln(cmd.OutOrStdout(), v)

			if !watchDir {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watch.New(dir, "*.sql", debounce, func() {
				v, err := migrate()
				if err != nil {
					log.Error().Err(err).Str("dir", dir).Msg("Failed to apply new migrations")
					return
				}
				log.Info().Int("version", v).Msg("Database is up to date")
			})
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&watchDir, "watch", false, "Keep running and apply migrations added to DIR")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "How long DIR must be quiet before new migrations are applied")
	return cmd
}

func newSchemaCmd(c *cli) *cobra.Command {
	var (
		dryRun bool
		drop   bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "schema FILE [DB]",
		Short: "Create the tables described in a YAML, TOML or JSON schema file",
		Long: `Create the tables and indexes described in a schema file. Without DB, or
with --dry-run, the DDL is printed instead of applied.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s schema.Schema
			if err := config.Decode(args[0], &s); err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return fmt.Errorf("invalid schema %s: %w", args[0], err)
			}

			if dryRun || len(args) == 1 {
				script, err := s.Script(!strict)
				if drop {
					script, err = s.DropScript(!strict)
				}
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), script)
				return nil
			}

			conn, done, err := c.open(cmd, args[1])
			if err != nil {
				return err
			}
			defer done()

			if drop {
				script, err := s.DropScript(!strict)
				if err != nil {
					return err
				}
				if _, err := conn.ExecuteScript(script); err != nil {
					return fmt.Errorf("failed to drop schema '%s': %w", s.Name, err)
				}
				log.Info().Int("tables", len(s.Tables)).Str("schema", s.Name).Msg("Schema dropped")
				return nil
			}

			if err := s.Apply(conn, !strict); err != nil {
				return err
			}
			log.Info().Int("tables", len(s.Tables)).Str("schema", s.Name).Msg("Schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the DDL instead of running it")
	cmd.Flags().BoolVar(&drop, "drop", false, "Drop the tables instead of creating them")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when a table already exists (or, with --drop, is missing)")
	return cmd
}

func newMaintainCmd(c *cli) *cobra.Command {
	var (
		vacuum bool
		spec   string
	)

	cmd := &cobra.Command{
		Use:   "maintain DB",
		Short: "Run PRAGMA optimize (and VACUUM), once or on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec == "" {
				spec = c.loader.String("maintain.cron", "")
			}

			conn, done, err := c.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer done()

			job := func() error {
				if err := conn.Optimize(); err != nil {
					return err
				}
				if vacuum {
					if err := conn.Vacuum(); err != nil {
						return err
					}
				}
				log.Info().Str("db", conn.Path()).Bool("vacuum", vacuum).Msg("Maintenance complete")
				return nil
			}

			if spec == "" {
				return job()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := cronLogger{}
			scheduler := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
			if _, err := scheduler.AddFunc(spec, func() {
				if err := job(); err != nil {
					log.Error().Err(err).Str("db", conn.Path()).Msg("Scheduled maintenance failed")
				}
			}); err != nil {
				return fmt.Errorf("invalid cron schedule %q: %w", spec, err)
			}

			log.Info().Str("schedule", spec).Str("db", conn.Path()).Msg("Scheduled maintenance started")
			scheduler.Start()
			<-ctx.Done()
			<-scheduler.Stop().Done()
			log.Info().Msg("Scheduled maintenance stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Also VACUUM the database")
	cmd.Flags().StringVar(&spec, "cron", "", "Repeat on this cron schedule (e.g. \"@daily\", \"0 3 * * *\") until interrupted")
	return cmd
}

// cronLogger sends the scheduler's own events to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}

func toArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func readParamSets(cmd *cobra.Command) ([][]any, error) {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter sets: %w", err)
	}

	var params [][]any
	for line := range strings.SplitSeq(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		params = append(params, toArgs(strings.Split(line, "\t")))
	}
	return params, nil
}

// printable turns text stored as BLOB into a string for JSON output.
func printable(row database.Row) database.Row {
	for k, v := range row {
		if b, ok := v.([]byte); ok && utf8.Valid(b) {
			row[k] = string(b)
		}
	}
	return row
}

// loadMigrations reads NNN_name.sql files from dir.
func loadMigrations(dir string) ([]database.Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []database.Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}

		base := strings.TrimSuffix(name, ".sql")
		prefix, label, _ := strings.Cut(base, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			log.Warn().Str("file", name).Msg("Skipping migration without a NNN_ version prefix")
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		migrations = append(migrations, database.Migration{Version: version, Name: label, SQL: string(data)})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", migrations[i].Version)
		}
	}
	return migrations, nil
}
