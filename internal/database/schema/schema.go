// Package schema models SQLite tables, columns and primary keys and renders
// them as DDL.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saltyorg/sqlitepie/internal/database"
)

var (
	ErrSchemaName   = errors.New("schema name must be either 'main' or 'temp'")
	ErrName         = errors.New("name must be a non-empty string")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrConstraint   = errors.New("invalid constraint")
)

// Schema names SQLite accepts for the models of this package.
const (
	Main = "main"
	Temp = "temp"
)

// ScriptExecutor runs a multi-statement script in one transaction.
type ScriptExecutor interface {
	ExecuteScript(script string) (database.Result, error)
}

var _ ScriptExecutor = (*database.Connection)(nil)

// Schema is a named collection of tables.
type Schema struct {
	Name   string   `json:"name" yaml:"name" toml:"name"`
	Tables []*Table `json:"tables" yaml:"tables" toml:"tables"`
}

// New returns an empty schema. name is "main" or "temp", case-insensitive.
func New(name string) (*Schema, error) {
	n, err := schemaName(name)
	if err != nil {
		return nil, err
	}
	return &Schema{Name: n}, nil
}

func schemaName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = Main
	}
	if n != Main && n != Temp {
		return "", fmt.Errorf("%w, not '%s'", ErrSchemaName, name)
	}
	return n, nil
}

// AddTable adds t to the schema. Table names are unique per schema.
func (s *Schema) AddTable(t *Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, ok := s.Table(t.Name); ok {
		return fmt.Errorf("%w: table '%s' already exists in schema '%s'", ErrDuplicateKey, t.Name, s.Name)
	}
	s.Tables = append(s.Tables, t)
	return nil
}

// Table looks a table up by name.
func (s *Schema) Table(name string) (*Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// Validate normalises the schema name and checks every table. It is meant
// for schemas decoded from files rather than built with New and AddTable.
func (s *Schema) Validate() error {
	n, err := schemaName(s.Name)
	if err != nil {
		return err
	}
	s.Name = n

	seen := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		if err := t.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return fmt.Errorf("%w: table '%s' already exists in schema '%s'", ErrDuplicateKey, t.Name, s.Name)
		}
		seen[key] = true
	}
	return nil
}

// Script renders CREATE statements for every table and index.
func (s *Schema) Script(ifNotExists bool) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, t := range s.Tables {
		stmt, err := t.create(s.Name, ifNotExists)
		if err != nil {
			return "", err
		}
		b.WriteString(stmt)
		b.WriteString("\n")
		for _, idx := range t.indexes(s.Name, ifNotExists) {
			b.WriteString(idx)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// DropScript renders DROP statements for every table, last table first.
func (s *Schema) DropScript(ifExists bool) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	for i := len(s.Tables) - 1; i >= 0; i-- {
		b.WriteString(s.Tables[i].drop(s.Name, ifExists))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Apply creates the schema's tables and indexes through e.
func (s *Schema) Apply(e ScriptExecutor, ifNotExists bool) error {
	script, err := s.Script(ifNotExists)
	if err != nil {
		return err
	}
	if _, err := e.ExecuteScript(script); err != nil {
		return fmt.Errorf("failed to apply schema '%s': %w", s.Name, err)
	}
	return nil
}

// quote returns name as an SQLite identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func qualified(schema, name string) string {
	if schema == "" {
		return quote(name)
	}
	return quote(schema) + "." + quote(name)
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s %w", kind, ErrName)
	}
	return nil
}
