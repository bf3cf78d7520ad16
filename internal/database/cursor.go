package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultArraySize is the arraysize of a cursor opened with Query.
const DefaultArraySize = 1

type cursorState int

const (
	cursorActive cursorState = iota
	cursorExhausted
	cursorClosed
)

// Cursor iterates over the rows of one query. Rows are pulled lazily from
// the engine; once the last row has been read the cursor releases its
// statement and further fetches return no rows.
type Cursor struct {
	conn      *Connection
	rows      *sql.Rows
	columns   []Column
	decimals  []bool
	arraysize int
	state     cursorState
}

// Query runs statement and returns a cursor over its rows. It does not
// begin a write transaction.
func (c *Connection) Query(statement string, args ...any) (*Cursor, error) {
	return c.QueryWithArraySize(DefaultArraySize, statement, args...)
}

// QueryWithArraySize is Query with the cursor's preferred FetchMany batch size.
func (c *Connection) QueryWithArraySize(arraysize int, statement string, args ...any) (*Cursor, error) {
	release, err := c.enter("query")
	if err != nil {
		return nil, err
	}
	defer release()

	if arraysize <= 0 {
		return nil, newError(KindConfiguration, "query", fmt.Errorf("arraysize must be positive, got %d", arraysize))
	}

	c.log.Debug(statement)

	start := time.Now()
	rows, err := c.conn.QueryContext(context.Background(), statement, adaptArgs(args)...)
	if err != nil {
		c.record(statement, start, err)
		c.log.Error("Failed to execute the last SQLite query!", err)
		return nil, newError(KindExecution, "query", err)
	}

	columnTypes, err := rows.ColumnTypes()
	c.record(statement, start, err)
	if err != nil {
		rows.Close()
		c.log.Error("Failed to read the columns of the last SQLite query!", err)
		return nil, newError(KindExecution, "query", err)
	}

	cur := &Cursor{
		conn:      c,
		rows:      rows,
		columns:   make([]Column, len(columnTypes)),
		decimals:  make([]bool, len(columnTypes)),
		arraysize: arraysize,
	}
	for i, ct := range columnTypes {
		cur.columns[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
		cur.decimals[i] = c.opts.DetectTypes && isDecimalType(ct.DatabaseTypeName())
	}
	c.cursors[cur] = struct{}{}
	return cur, nil
}

// Columns describes the result columns.
func (c *Cursor) Columns() []Column {
	return c.columns
}

// ArraySize is the number of rows FetchMany returns when given no size.
func (c *Cursor) ArraySize() int {
	return c.arraysize
}

// SetArraySize changes the default FetchMany batch size. Non-positive
// values are ignored.
func (c *Cursor) SetArraySize(n int) {
	if n > 0 {
		c.arraysize = n
	}
}

// Exhausted reports whether every row has been read.
func (c *Cursor) Exhausted() bool {
	c.conn.mu.Lock()
	defer c.conn.mu.Unlock()
	return c.state == cursorExhausted
}

// Close releases the cursor. Fetching afterwards fails with ErrCursorClosed.
// Closing twice is a no-op.
func (c *Cursor) Close() error {
	release, err := c.conn.acquire("close cursor")
	if err != nil {
		return err
	}
	defer release()

	if err := c.release(cursorClosed); err != nil {
		return newError(KindCursor, "close cursor", err)
	}
	return nil
}

// release must be called with the connection mutex held.
func (c *Cursor) release(state cursorState) error {
	if c.state == cursorClosed {
		return nil
	}
	wasActive := c.state == cursorActive
	c.state = state
	delete(c.conn.cursors, c)
	if !wasActive {
		return nil
	}
	return c.rows.Close()
}

// enter locks the connection for a fetch on an open cursor.
func (c *Cursor) enter(op string) (func(), error) {
	release, err := c.conn.acquire(op)
	if err != nil {
		return nil, newError(KindCursor, op, errors.Unwrap(err))
	}
	if c.state == cursorClosed {
		release()
		return nil, newError(KindCursor, op, ErrCursorClosed)
	}
	return release, nil
}

// next reads one raw row. ok is false once the cursor is exhausted.
func (c *Cursor) next() (values []any, ok bool, err error) {
	if c.state != cursorActive {
		return nil, false, nil
	}

	if !c.rows.Next() {
		err := c.rows.Err()
		if relErr := c.release(cursorExhausted); err == nil {
			err = relErr
		}
		return nil, false, err
	}

	values = make([]any, len(c.columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		return nil, false, err
	}
	for i, isDecimal := range c.decimals {
		if isDecimal {
			values[i] = convertValue(c.columns[i].Type, values[i])
		}
	}
	return values, true, nil
}

// fail closes the cursor after a fetch error.
func (c *Cursor) fail(op string, err error) error {
	_ = c.release(cursorClosed)
	c.conn.log.Error("Failed to fetch from the SQLite cursor!", err)
	return newError(KindCursor, op, err)
}

// FetchOne returns the next row as a Row. ok is false when no rows remain.
func (c *Cursor) FetchOne() (row Row, ok bool, err error) {
	return FetchOne(c, MapRow)
}

// FetchMany returns up to size rows as Rows; size <= 0 means ArraySize.
func (c *Cursor) FetchMany(size int) ([]Row, error) {
	return FetchMany(c, size, MapRow)
}

// FetchAll returns every remaining row as Rows.
func (c *Cursor) FetchAll() ([]Row, error) {
	return FetchAll(c, MapRow)
}

// FetchOne returns the next row built by factory. ok is false, with a nil
// error, when no rows remain.
func FetchOne[T any](c *Cursor, factory RowFactory[T]) (row T, ok bool, err error) {
	release, err := c.enter("fetch one")
	if err != nil {
		return row, false, err
	}
	defer release()

	if factory == nil {
		return row, false, newError(KindCursor, "fetch one", errors.New("nil row factory"))
	}

	values, ok, err := c.next()
	if err != nil {
		return row, false, c.fail("fetch one", err)
	}
	if !ok {
		return row, false, nil
	}
	if row, err = factory(values, c.columns); err != nil {
		return row, false, c.fail("fetch one", err)
	}
	return row, true, nil
}

// FetchMany returns up to size rows built by factory; size <= 0 means the
// cursor's ArraySize. Fewer rows than asked for are returned only when the
// result set runs out, and an exhausted cursor yields an empty slice.
func FetchMany[T any](c *Cursor, size int, factory RowFactory[T]) ([]T, error) {
	release, err := c.enter("fetch many")
	if err != nil {
		return nil, err
	}
	defer release()

	if factory == nil {
		return nil, newError(KindCursor, "fetch many", errors.New("nil row factory"))
	}
	if size <= 0 {
		size = c.arraysize
	}

	out := make([]T, 0, min(size, 64))
	for len(out) < size {
		values, ok, err := c.next()
		if err != nil {
			return nil, c.fail("fetch many", err)
		}
		if !ok {
			break
		}
		row, err := factory(values, c.columns)
		if err != nil {
			return nil, c.fail("fetch many", err)
		}
		out = append(out, row)
	}
	return out, nil
}

// FetchAll drains the cursor through factory. A query without matches
// yields an empty, non-nil slice.
func FetchAll[T any](c *Cursor, factory RowFactory[T]) ([]T, error) {
	release, err := c.enter("fetch all")
	if err != nil {
		return nil, err
	}
	defer release()

	if factory == nil {
		return nil, newError(KindCursor, "fetch all", errors.New("nil row factory"))
	}

	out := []T{}
	for {
		values, ok, err := c.next()
		if err != nil {
			return nil, c.fail("fetch all", err)
		}
		if !ok {
			return out, nil
		}
		row, err := factory(values, c.columns)
		if err != nil {
			return nil, c.fail("fetch all", err)
		}
		out = append(out, row)
	}
}
