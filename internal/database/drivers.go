package database

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

const defaultDriver = "sqlite"

// dialect knows how to express Options as DSN parameters for one driver.
type dialect struct {
	driverName string
	params     func(o Options) url.Values
}

var dialects = map[string]dialect{
	defaultDriver: {
		driverName: "sqlite",
		params: func(o Options) url.Values {
			v := url.Values{}
			v.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.Timeout.Milliseconds()))
			if o.ForeignKeys {
				v.Add("_pragma", "foreign_keys(1)")
			}
			if o.JournalMode != "" {
				v.Add("_pragma", fmt.Sprintf("journal_mode(%s)", o.JournalMode))
			}
			v.Set("_txlock", strings.ToLower(o.IsolationLevel))
			return v
		},
	},
}

func availableDrivers() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// dsn appends the option parameters to location.
func (d dialect) dsn(location string, o Options) string {
	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return location + sep + d.params(o).Encode()
}
