package database

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"slices"
	"time"
)

// Result summarises a mutating call.
type Result struct {
	// RowsAffected is summed over every parameter tuple of ExecuteMany.
	RowsAffected int64 `json:"rows_affected"`
	// LastInsertID is the rowid of the last inserted row.
	LastInsertID int64 `json:"last_insert_id"`
}

func (r *Result) add(res sql.Result) {
	if n, err := res.RowsAffected(); err == nil {
		r.RowsAffected += n
	}
	if id, err := res.LastInsertId(); err == nil {
		r.LastInsertID = id
	}
}

// Execute runs one statement with positional arguments in its own
// transaction. On failure the transaction is rolled back and the engine
// error is returned wrapped in an execution error.
func (c *Connection) Execute(statement string, args ...any) (Result, error) {
	release, err := c.enter("execute statement")
	if err != nil {
		return Result{}, err
	}
	defer release()

	c.log.Debug(statement)

	var result Result
	start := time.Now()
	err = c.transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), statement, adaptArgs(args)...)
		if err != nil {
			return err
		}
		result.add(res)
		return nil
	})
	c.record(statement, start, err)
	if err != nil {
		c.log.Error("Last sqlite transaction(s) failed!", err)
		return Result{}, newError(KindExecution, "execute statement", err)
	}
	return result, nil
}

// ExecuteMany runs statement once per parameter tuple, all in one
// transaction: a failing tuple rolls back the whole batch.
func (c *Connection) ExecuteMany(statement string, params [][]any) (Result, error) {
	return c.ExecuteManySeq(statement, slices.Values(params))
}

// ExecuteManySeq is ExecuteMany over a sequence of parameter tuples.
func (c *Connection) ExecuteManySeq(statement string, params iter.Seq[[]any]) (Result, error) {
	release, err := c.enter("execute batch")
	if err != nil {
		return Result{}, err
	}
	defer release()

	c.log.Debug(statement)

	var result Result
	start := time.Now()
	err = c.transaction(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(context.Background(), statement)
		if err != nil {
			return err
		}
		defer stmt.Close()

		n := 0
		for args := range params {
			n++
			res, err := stmt.ExecContext(context.Background(), adaptArgs(args)...)
			if err != nil {
				return fmt.Errorf("parameter set %d: %w", n, err)
			}
			result.add(res)
		}
		return nil
	})
	c.record(statement, start, err)
	if err != nil {
		c.log.Error("Last sqlite transaction(s) failed!", err)
		return Result{}, newError(KindExecution, "execute batch", err)
	}
	return result, nil
}

// ExecuteScript runs every statement of script in one transaction. The
// script must not contain its own transaction control statements.
func (c *Connection) ExecuteScript(script string) (Result, error) {
	release, err := c.enter("execute script")
	if err != nil {
		return Result{}, err
	}
	defer release()

	c.log.Debug(script)

	var result Result
	start := time.Now()
	err = c.transaction(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), script)
		if err != nil {
			return err
		}
		result.add(res)
		return nil
	})
	c.record(script, start, err)
	if err != nil {
		c.log.Error("Last sqlite transaction(s) failed!", err)
		return Result{}, newError(KindExecution, "execute script", err)
	}
	return result, nil
}
