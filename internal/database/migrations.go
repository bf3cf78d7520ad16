package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrate applies the migrations newer than the recorded schema version,
// lowest version first. Each migration runs in its own transaction and is
// recorded in schema_migrations.
func (c *Connection) Migrate(migrations []Migration) error {
	release, err := c.enter("migrate")
	if err != nil {
		return err
	}
	defer release()

	c.log.Debug("Running database migrations")

	ctx := context.Background()
	if _, err := c.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return newError(KindExecution, "migrate", fmt.Errorf("failed to create migrations table: %w", err))
	}

	var currentVersion int
	if err := c.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return newError(KindExecution, "migrate", fmt.Errorf("failed to get current migration version: %w", err))
	}

	c.log.Debug(fmt.Sprintf("Current schema version: %d", currentVersion))

	ordered := make([]Migration, len(migrations))
	copy(ordered, migrations)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	for _, migration := range ordered {
		if migration.Version <= currentVersion {
			continue
		}
		c.log.Debug(fmt.Sprintf("Applying migration %d (%s)", migration.Version, migration.Name))

		start := time.Now()
		err := c.transaction(func(tx *sql.Tx) error {
			// Statements run one by one so a failure names the statement.
			for i, stmt := range splitSQLStatements(migration.SQL) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
				}
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", migration.Version, migration.Name); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
			}
			return nil
		})
		c.record(migration.SQL, start, err)
		if err != nil {
			c.log.Error(fmt.Sprintf("Migration %d failed", migration.Version), err)
			return newError(KindExecution, "migrate", err)
		}
	}

	c.log.Debug("Database migrations complete")
	return nil
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func (c *Connection) SchemaVersion() (int, error) {
	release, err := c.enter("read schema version")
	if err != nil {
		return 0, err
	}
	defer release()

	var exists int
	ctx := context.Background()
	if err := c.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&exists); err != nil {
		return 0, newError(KindExecution, "read schema version", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	if err := c.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, newError(KindExecution, "read schema version", err)
	}
	return version, nil
}

// splitSQLStatements splits a SQL script into individual statements.
// It handles comments and only returns non-empty statements. A statement
// ends at a line ending with a semicolon.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}
