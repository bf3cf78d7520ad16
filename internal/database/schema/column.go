package schema

import (
	"fmt"
	"strings"
)

// DefaultType is the declared type of a column created without one.
const DefaultType = "TEXT"

// Conflict resolution algorithms of an ON CONFLICT clause.
var conflictAlgorithms = []string{"ROLLBACK", "ABORT", "FAIL", "IGNORE", "REPLACE"}

// Column is an SQLite column model.
type Column struct {
	Name       string      `json:"name" yaml:"name" toml:"name"`
	Type       string      `json:"type" yaml:"type" toml:"type"`
	NotNull    bool        `json:"not_null,omitempty" yaml:"not_null" toml:"not_null"`
	Unique     bool        `json:"unique,omitempty" yaml:"unique" toml:"unique"`
	Index      bool        `json:"index,omitempty" yaml:"index" toml:"index"`
	PrimaryKey *PrimaryKey `json:"primary_key,omitempty" yaml:"primary_key" toml:"primary_key"`
}

// ColumnOption configures a Column built with NewColumn.
type ColumnOption func(*Column)

// NotNull adds a NOT NULL constraint.
func NotNull() ColumnOption { return func(c *Column) { c.NotNull = true } }

// Unique adds a UNIQUE constraint.
func Unique() ColumnOption { return func(c *Column) { c.Unique = true } }

// Indexed creates an index on the column alongside the table.
func Indexed() ColumnOption { return func(c *Column) { c.Index = true } }

// Primary makes the column (part of) the primary key.
func Primary(pk PrimaryKey) ColumnOption {
	return func(c *Column) { c.PrimaryKey = &pk }
}

// NewColumn returns a validated column. An empty typ means DefaultType.
func NewColumn(name, typ string, opts ...ColumnOption) (*Column, error) {
	c := &Column{Name: name, Type: typ}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate normalises the column type and checks its constraints.
func (c *Column) Validate() error {
	if err := checkName("column", c.Name); err != nil {
		return err
	}
	c.Type = strings.TrimSpace(c.Type)
	if c.Type == "" {
		c.Type = DefaultType
	}
	if c.PrimaryKey != nil {
		if err := c.PrimaryKey.Validate(); err != nil {
			return fmt.Errorf("column '%s': %w", c.Name, err)
		}
	}
	return nil
}

// definition renders the column for a CREATE TABLE statement. inlinePK is
// false when the key is emitted as a table constraint.
func (c *Column) definition(inlinePK bool) string {
	parts := []string{quote(c.Name), c.Type}
	if c.PrimaryKey != nil && inlinePK {
		parts = append(parts, "PRIMARY KEY", c.PrimaryKey.order(), "ON CONFLICT", c.PrimaryKey.onConflict())
		if c.PrimaryKey.Autoincrement {
			parts = append(parts, "AUTOINCREMENT")
		}
	}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	return strings.Join(parts, " ")
}

// PrimaryKey is a primary key constraint.
type PrimaryKey struct {
	// Order is ASC (default) or DESC.
	Order string `json:"order,omitempty" yaml:"order" toml:"order"`
	// OnConflict is the conflict resolution algorithm, ABORT by default.
	OnConflict    string `json:"on_conflict,omitempty" yaml:"on_conflict" toml:"on_conflict"`
	Autoincrement bool   `json:"autoincrement,omitempty" yaml:"autoincrement" toml:"autoincrement"`
}

// NewPrimaryKey returns a validated primary key.
func NewPrimaryKey(order, onConflict string, autoincrement bool) (PrimaryKey, error) {
	pk := PrimaryKey{Order: order, OnConflict: onConflict, Autoincrement: autoincrement}
	if err := pk.Validate(); err != nil {
		return PrimaryKey{}, err
	}
	return pk, nil
}

// Validate upper-cases Order and OnConflict and checks them.
func (pk *PrimaryKey) Validate() error {
	pk.Order = strings.ToUpper(strings.TrimSpace(pk.Order))
	if pk.Order != "" && pk.Order != "ASC" && pk.Order != "DESC" {
		return fmt.Errorf("%w: order must be ASC or DESC, not '%s'", ErrConstraint, pk.Order)
	}

	pk.OnConflict = strings.ToUpper(strings.TrimSpace(pk.OnConflict))
	if pk.OnConflict == "" {
		return nil
	}
	for _, algorithm := range conflictAlgorithms {
		if pk.OnConflict == algorithm {
			return nil
		}
	}
	return fmt.Errorf("%w: 'ON CONFLICT' resolution algorithm must be one of (%s) not '%s'",
		ErrConstraint, strings.Join(conflictAlgorithms, ", "), pk.OnConflict)
}

func (pk *PrimaryKey) order() string {
	if pk.Order == "" {
		return "ASC"
	}
	return pk.Order
}

func (pk *PrimaryKey) onConflict() string {
	if pk.OnConflict == "" {
		return "ABORT"
	}
	return pk.OnConflict
}
