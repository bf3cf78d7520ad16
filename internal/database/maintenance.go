package database

import (
	"context"
	"time"
)

// Optimize runs SQLite's PRAGMA optimize to refresh planner stats.
func (c *Connection) Optimize() error {
	return c.maintain("optimize database", "PRAGMA optimize")
}

// Vacuum rebuilds the database file to reclaim unused space. It cannot run
// inside a transaction and fails while a cursor of c is still open.
func (c *Connection) Vacuum() error {
	return c.maintain("vacuum database", "VACUUM")
}

func (c *Connection) maintain(op, statement string) error {
	release, err := c.enter(op)
	if err != nil {
		return err
	}
	defer release()

	c.log.Debug(statement)

	if err := c.lock.lock(c.opts.Timeout); err != nil {
		c.log.Error("Failed to "+op, err)
		return newError(KindExecution, op, err)
	}
	defer c.lock.unlock()

	start := time.Now()
	_, err = c.conn.ExecContext(context.Background(), statement)
	c.record(statement, start, err)
	if err != nil {
		c.log.Error("Failed to "+op, err)
		return newError(KindExecution, op, err)
	}
	return nil
}
