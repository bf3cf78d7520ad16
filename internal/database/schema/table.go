package schema

import (
	"fmt"
	"strings"
)

// Table is an SQLite table model.
type Table struct {
	Name    string    `json:"name" yaml:"name" toml:"name"`
	Columns []*Column `json:"columns" yaml:"columns" toml:"columns"`
	// WithoutRowID renders the table as WITHOUT ROWID.
	WithoutRowID bool `json:"without_rowid,omitempty" yaml:"without_rowid" toml:"without_rowid"`
}

// NewTable returns a table with the given columns.
func NewTable(name string, columns ...*Column) (*Table, error) {
	if err := checkName("table", name); err != nil {
		return nil, err
	}
	t := &Table{Name: name}
	for _, c := range columns {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddColumn appends c. Column names are unique per table.
func (t *Table) AddColumn(c *Column) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("table '%s': %w", t.Name, err)
	}
	if _, ok := t.Column(c.Name); ok {
		return fmt.Errorf("%w: column '%s' already exists in table '%s'", ErrDuplicateKey, c.Name, t.Name)
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// Validate checks the table and its columns.
func (t *Table) Validate() error {
	if err := checkName("table", t.Name); err != nil {
		return err
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table '%s' has no columns", t.Name)
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("table '%s': %w", t.Name, err)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return fmt.Errorf("%w: column '%s' already exists in table '%s'", ErrDuplicateKey, c.Name, t.Name)
		}
		seen[key] = true
	}

	keys := t.primaryKeys()
	if t.WithoutRowID && len(keys) == 0 {
		return fmt.Errorf("%w: table '%s' is WITHOUT ROWID but has no primary key", ErrConstraint, t.Name)
	}
	if len(keys) > 1 {
		for _, c := range keys {
			if c.PrimaryKey.Autoincrement {
				return fmt.Errorf("%w: AUTOINCREMENT needs a single-column primary key in table '%s'", ErrConstraint, t.Name)
			}
		}
	}
	for _, c := range keys {
		if c.PrimaryKey.Autoincrement && (t.WithoutRowID || !strings.EqualFold(c.Type, "INTEGER")) {
			return fmt.Errorf("%w: AUTOINCREMENT is only allowed on an INTEGER PRIMARY KEY of a rowid table ('%s.%s')",
				ErrConstraint, t.Name, c.Name)
		}
	}
	return nil
}

func (t *Table) primaryKeys() []*Column {
	var keys []*Column
	for _, c := range t.Columns {
		if c.PrimaryKey != nil {
			keys = append(keys, c)
		}
	}
	return keys
}

// Create renders the CREATE TABLE statement in the main schema.
func (t *Table) Create(ifNotExists bool) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t.create("", ifNotExists)
}

// Drop renders the DROP TABLE statement in the main schema.
func (t *Table) Drop(ifExists bool) string {
	return t.drop("", ifExists)
}

// Indexes renders a CREATE INDEX statement per indexed column.
func (t *Table) Indexes(ifNotExists bool) []string {
	return t.indexes("", ifNotExists)
}

func (t *Table) create(schema string, ifNotExists bool) (string, error) {
	keys := t.primaryKeys()
	composite := len(keys) > 1

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		defs = append(defs, c.definition(!composite))
	}
	if composite {
		parts := make([]string, len(keys))
		for i, c := range keys {
			parts[i] = quote(c.Name) + " " + c.PrimaryKey.order()
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s) ON CONFLICT %s",
			strings.Join(parts, ", "), keys[0].PrimaryKey.onConflict()))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(qualified(schema, t.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")
	if t.WithoutRowID {
		b.WriteString(" WITHOUT ROWID")
	}
	b.WriteString(";")
	return b.String(), nil
}

func (t *Table) drop(schema string, ifExists bool) string {
	if ifExists {
		return fmt.Sprintf("DROP TABLE IF EXISTS %s;", qualified(schema, t.Name))
	}
	return fmt.Sprintf("DROP TABLE %s;", qualified(schema, t.Name))
}

func (t *Table) indexes(schema string, ifNotExists bool) []string {
	var out []string
	for _, c := range t.Columns {
		if !c.Index {
			continue
		}
		name := fmt.Sprintf("idx_%s_%s", t.Name, c.Name)
		exists := ""
		if ifNotExists {
			exists = "IF NOT EXISTS "
		}
		out = append(out, fmt.Sprintf("CREATE INDEX %s%s ON %s (%s);",
			exists, qualified(schema, name), quote(t.Name), quote(c.Name)))
	}
	return out
}
