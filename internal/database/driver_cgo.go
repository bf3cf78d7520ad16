//go:build cgo_sqlite

// The cgo driver is only linked in with the cgo_sqlite build tag.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1

package database

import (
	"net/url"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver
)

func init() {
	dialects["sqlite3"] = dialect{
		driverName: "sqlite3",
		params: func(o Options) url.Values {
			v := url.Values{}
			v.Set("_busy_timeout", strconv.FormatInt(o.Timeout.Milliseconds(), 10))
			if o.ForeignKeys {
				v.Set("_foreign_keys", "1")
			}
			if o.JournalMode != "" {
				v.Set("_journal_mode", o.JournalMode)
			}
			v.Set("_txlock", strings.ToLower(o.IsolationLevel))
			return v
		},
	}
}
