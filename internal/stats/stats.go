// Package stats collects per-statement execution statistics.
package stats

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

// Sort orders accepted by Collect.
const (
	SortCount     = "count"
	SortStatement = "statement"
	SortDuration  = "duration"
	SortErrors    = "errors"
	SortMean      = "mean"
)

// Tracer records how often each statement ran, how long it took and how
// often it failed. The zero value is ready to use and a nil *Tracer drops
// everything.
type Tracer struct {
	// Once a statement has been seen, only the read lock is needed to
	// update its counters.
	mu         sync.RWMutex
	statements map[string]*counters
}

type counters struct {
	count    atomic.Int64
	errors   atomic.Int64
	duration atomic.Int64 // time.Duration
}

// QueryStats is a snapshot of one statement's counters.
type QueryStats struct {
	Statement string        `json:"statement"`
	Count     int64         `json:"count"`
	Errors    int64         `json:"errors"`
	Duration  time.Duration `json:"duration"`
	Mean      time.Duration `json:"mean"`
}

func (t *Tracer) counters(statement string) *counters {
	t.mu.RLock()
	c := t.statements[statement]
	t.mu.RUnlock()

	if c != nil {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statements == nil {
		t.statements = make(map[string]*counters)
	}
	c = t.statements[statement]
	if c == nil {
		c = &counters{}
		t.statements[statement] = c
	}
	return c
}

// Record adds one execution of statement.
func (t *Tracer) Record(statement string, duration time.Duration, err error) {
	if t == nil {
		return
	}
	c := t.counters(normalize(statement))
	c.count.Add(1)
	c.duration.Add(int64(duration))
	if err != nil {
		c.errors.Add(1)
	}
}

// Collect returns a snapshot ordered by sortBy (default SortDuration).
func (t *Tracer) Collect(sortBy string) ([]QueryStats, error) {
	if t == nil {
		return nil, nil
	}

	t.mu.RLock()
	rows := make([]QueryStats, 0, len(t.statements))
	for statement, c := range t.statements {
		row := QueryStats{
			Statement: statement,
			Count:     c.count.Load(),
			Errors:    c.errors.Load(),
			Duration:  time.Duration(c.duration.Load()),
		}
		if row.Count > 0 {
			row.Mean = row.Duration / time.Duration(row.Count)
		}
		rows = append(rows, row)
	}
	t.mu.RUnlock()

	var less func(i, j int) bool
	switch sortBy {
	case "", SortDuration:
		less = func(i, j int) bool { return rows[i].Duration > rows[j].Duration }
	case SortCount:
		less = func(i, j int) bool { return rows[i].Count > rows[j].Count }
	case SortStatement:
		less = func(i, j int) bool { return rows[i].Statement < rows[j].Statement }
	case SortErrors:
		less = func(i, j int) bool { return rows[i].Errors > rows[j].Errors }
	case SortMean:
		less = func(i, j int) bool { return rows[i].Mean > rows[j].Mean }
	default:
		return nil, fmt.Errorf("unknown sort: %q", sortBy)
	}
	sort.SliceStable(rows, less)
	return rows, nil
}

// Reset forgets everything recorded so far.
func (t *Tracer) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.statements = nil
	t.mu.Unlock()
}

// WriteTable writes the snapshot as an aligned text table.
func (t *Tracer) WriteTable(w io.Writer, sortBy string) error {
	rows, err := t.Collect(sortBy)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATEMENT\tCOUNT\tDURATION\tMEAN\tERRORS")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n",
			truncate(row.Statement, 60),
			row.Count,
			row.Duration.Round(time.Microsecond),
			row.Mean.Round(time.Microsecond),
			row.Errors,
		)
	}
	return tw.Flush()
}

// normalize collapses whitespace so the same statement written over several
// lines is counted once.
func normalize(statement string) string {
	return strings.Join(strings.Fields(statement), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
