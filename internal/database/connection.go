package database

import "time"

// acquire takes the connection mutex. With CheckSameThread an overlapping
// call fails with ErrConcurrentUse instead of waiting.
func (c *Connection) acquire(op string) (func(), error) {
	if c.opts.CheckSameThread {
		if !c.mu.TryLock() {
			return nil, newError(KindConnection, op, ErrConcurrentUse)
		}
	} else {
		c.mu.Lock()
	}
	return c.mu.Unlock, nil
}

// enter is acquire for operations that need an open connection.
func (c *Connection) enter(op string) (func(), error) {
	release, err := c.acquire(op)
	if err != nil {
		return nil, err
	}
	if c.closed {
		release()
		return nil, newError(KindConnection, op, ErrConnectionClosed)
	}
	return release, nil
}

// record feeds the statement statistics.
func (c *Connection) record(statement string, start time.Time, err error) {
	c.tracer.Record(statement, time.Since(start), err)
}
