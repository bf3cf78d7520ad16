// Package database manages a single connection to an SQLite database:
// implicit transactions around every write, cursors over query results and
// row factories shaping the fetched rows.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/saltyorg/sqlitepie/internal/stats"
)

// Connection owns a single connection to an SQLite database. It is meant
// for one caller at a time; see Options.CheckSameThread.
type Connection struct {
	db     *sql.DB
	conn   *sql.Conn
	target target
	opts   Options
	log    Logger
	lock   *fileLock
	tracer *stats.Tracer

	mu      sync.Mutex
	closed  bool
	cursors map[*Cursor]struct{}
}

// Open connects to the database at location, which is a file path,
// MemoryLocation, or a "file:" URI when the uri option is set. With
// ensureFolder (or the ensure_folder option) the missing parent directories
// of the file are created first. A nil logger discards all events.
func Open(location string, options map[string]any, ensureFolder bool, logger Logger) (*Connection, error) {
	if logger == nil {
		logger = NopLogger{}
	}

	opts, err := ParseOptions(options)
	if err != nil {
		logger.Error("invalid connection options", err)
		return nil, err
	}

	t, err := resolveLocation(location, opts.URI)
	if err != nil {
		logger.Error("invalid database location", err)
		return nil, newError(KindConfiguration, "resolve location", err)
	}

	logger.Debug(fmt.Sprintf("Connecting with the SQLite database '%s'...", t.path))

	if (ensureFolder || opts.EnsureFolder) && !t.memory {
		if err := createFolder(t.path); err != nil {
			logger.Error(fmt.Sprintf("Failed to connect with the SQLite database '%s'!", t.path), err)
			return nil, newError(KindConnection, "ensure database folder", err)
		}
	}

	d := dialects[opts.Driver]
	db, err := sql.Open(d.driverName, d.dsn(location, opts))
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to connect with the SQLite database '%s'!", t.path), err)
		return nil, newError(KindConnection, "open database", err)
	}

	// One engine connection per Connection; cursors and transactions share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(context.Background())
	if err != nil {
		db.Close()
		logger.Error(fmt.Sprintf("Failed to connect with the SQLite database '%s'!", t.path), err)
		return nil, newError(KindConnection, "connect to database", err)
	}

	logger.Debug(fmt.Sprintf("Successfully connected with the SQLite database '%s'.", t.path))

	return &Connection{
		db:      db,
		conn:    conn,
		target:  t,
		opts:    opts,
		log:     logger,
		lock:    fileLocks.acquire(t),
		tracer:  &stats.Tracer{},
		cursors: make(map[*Cursor]struct{}),
	}, nil
}

// Path returns the absolute database file path, or MemoryLocation.
func (c *Connection) Path() string {
	return c.target.path
}

// Options returns the options the connection was opened with.
func (c *Connection) Options() Options {
	return c.opts
}

// Tracer returns the statement statistics collected by the connection.
func (c *Connection) Tracer() *stats.Tracer {
	return c.tracer
}

// Stats returns a snapshot of the statement statistics, slowest first.
func (c *Connection) Stats() []stats.QueryStats {
	rows, _ := c.tracer.Collect(stats.SortDuration)
	return rows
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the open cursors and the connection. Calling it again is a
// no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.log.Debug(fmt.Sprintf("Closing the connection with the SQLite database '%s'...", c.target.path))

	var result *multierror.Error
	for cur := range c.cursors {
		if err := cur.release(cursorClosed); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close cursor: %w", err))
		}
	}
	if err := c.conn.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close connection: %w", err))
	}
	if err := c.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close database: %w", err))
	}
	fileLocks.release(c.lock)

	if err := result.ErrorOrNil(); err != nil {
		c.log.Error(fmt.Sprintf("Failed to close connection with the SQLite database '%s'!", c.target.path), err)
		return newError(KindConnection, "close connection", err)
	}

	c.log.Debug(fmt.Sprintf("Terminated connection with the SQLite database '%s'.", c.target.path))
	return nil
}

// Transaction runs fn inside a transaction begun with the configured
// isolation level. It commits when fn returns nil and rolls back otherwise,
// returning fn's error. fn must use tx and not call back into c.
func (c *Connection) Transaction(fn func(tx *sql.Tx) error) error {
	release, err := c.enter("begin transaction")
	if err != nil {
		return err
	}
	defer release()

	if err := c.transaction(fn); err != nil {
		c.log.Error("Last sqlite transaction(s) failed!", err)
		return newError(KindExecution, "run transaction", err)
	}
	return nil
}

// transaction must be called with c.mu held.
func (c *Connection) transaction(fn func(tx *sql.Tx) error) (err error) {
	if err := c.lock.lock(c.opts.Timeout); err != nil {
		return err
	}
	defer c.lock.unlock()

	tx, err := c.conn.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Error("Failed to rollback transaction", rbErr)
			return multierror.Append(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
