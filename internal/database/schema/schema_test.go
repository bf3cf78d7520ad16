package schema

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/sqlitepie/internal/database"
)

func accountsTable(t *testing.T) *Table {
	t.Helper()

	pk, err := NewPrimaryKey("asc", "replace", true)
	require.NoError(t, err)

	userID, err := NewColumn("user_id", "INTEGER", Primary(pk))
	require.NoError(t, err)
	firstname, err := NewColumn("firstname", "", NotNull())
	require.NoError(t, err)
	lastname, err := NewColumn("lastname", "TEXT", NotNull(), Indexed())
	require.NoError(t, err)
	email, err := NewColumn("email", "TEXT", Unique())
	require.NoError(t, err)

	table, err := NewTable("accounts", userID, firstname, lastname, email)
	require.NoError(t, err)
	return table
}

func TestTable_Create(t *testing.T) {
	table := accountsTable(t)

	got, err := table.Create(true)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "accounts" (`+
		`"user_id" INTEGER PRIMARY KEY ASC ON CONFLICT REPLACE AUTOINCREMENT, `+
		`"firstname" TEXT NOT NULL, `+
		`"lastname" TEXT NOT NULL, `+
		`"email" TEXT UNIQUE);`, got)

	got, err = table.Create(false)
	require.NoError(t, err)
	assert.Contains(t, got, `CREATE TABLE "accounts" (`)

	assert.Equal(t, `DROP TABLE IF EXISTS "accounts";`, table.Drop(true))
	assert.Equal(t, `DROP TABLE "accounts";`, table.Drop(false))
	assert.Equal(t, []string{`CREATE INDEX IF NOT EXISTS "idx_accounts_lastname" ON "accounts" ("lastname");`}, table.Indexes(true))
}

func TestTable_CompositeKeyWithoutRowID(t *testing.T) {
	a, err := NewColumn("a", "INTEGER", Primary(PrimaryKey{}))
	require.NoError(t, err)
	b, err := NewColumn("b", "TEXT", Primary(PrimaryKey{Order: "desc"}))
	require.NoError(t, err)
	value, err := NewColumn("value", "BLOB")
	require.NoError(t, err)

	table, err := NewTable("pairs", a, b, value)
	require.NoError(t, err)
	table.WithoutRowID = true

	got, err := table.Create(false)
	require.NoError(t, err)
	assert.Equal(t, `CREATE TABLE "pairs" ("a" INTEGER, "b" TEXT, "value" BLOB, `+
		`PRIMARY KEY ("a" ASC, "b" DESC) ON CONFLICT ABORT) WITHOUT ROWID;`, got)
}

func TestValidation(t *testing.T) {
	_, err := New("other")
	assert.ErrorIs(t, err, ErrSchemaName)

	s, err := New(" TEMP ")
	require.NoError(t, err)
	assert.Equal(t, Temp, s.Name)

	_, err = NewPrimaryKey("sideways", "", false)
	assert.ErrorIs(t, err, ErrConstraint)
	_, err = NewPrimaryKey("", "explode", false)
	assert.ErrorIs(t, err, ErrConstraint)

	_, err = NewColumn("", "TEXT")
	assert.ErrorIs(t, err, ErrName)

	x1, err := NewColumn("x", "")
	require.NoError(t, err)
	x2, err := NewColumn("X", "INTEGER")
	require.NoError(t, err)
	_, err = NewTable("dupes", x1, x2)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	noKey := &Table{Name: "nokey", Columns: []*Column{{Name: "x"}}, WithoutRowID: true}
	_, err = noKey.Create(false)
	assert.ErrorIs(t, err, ErrConstraint)

	textAuto := &Table{Name: "t", Columns: []*Column{{Name: "x", Type: "TEXT", PrimaryKey: &PrimaryKey{Autoincrement: true}}}}
	_, err = textAuto.Create(false)
	assert.ErrorIs(t, err, ErrConstraint)

	table, err := NewTable("t", x1)
	require.NoError(t, err)
	require.NoError(t, s.AddTable(table))
	assert.ErrorIs(t, s.AddTable(table), ErrDuplicateKey)

	_, ok := s.Table("T")
	assert.True(t, ok)
}

func TestSchema_ScriptAndApply(t *testing.T) {
	s, err := New("main")
	require.NoError(t, err)
	require.NoError(t, s.AddTable(accountsTable(t)))

	script, err := s.Script(true)
	require.NoError(t, err)
	assert.Contains(t, script, `CREATE TABLE IF NOT EXISTS "main"."accounts"`)
	assert.Contains(t, script, `CREATE INDEX IF NOT EXISTS "main"."idx_accounts_lastname" ON "accounts" ("lastname");`)

	conn, err := database.Open(filepath.Join(t.TempDir(), "schema.db"), nil, false, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, s.Apply(conn, false))
	require.NoError(t, s.Apply(conn, true))
	assert.Error(t, s.Apply(conn, false), "tables already exist")

	_, err = conn.Execute("INSERT INTO accounts (firstname, lastname) VALUES (?, ?)", "Ada", "Lovelace")
	require.NoError(t, err)

	drop, err := s.DropScript(true)
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE IF EXISTS \"main\".\"accounts\";\n", drop)
	_, err = conn.ExecuteScript(drop)
	require.NoError(t, err)
}

func TestSchema_JSON(t *testing.T) {
	s, err := New("main")
	require.NoError(t, err)
	require.NoError(t, s.AddTable(accountsTable(t)))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded Schema
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NoError(t, decoded.Validate())

	if diff := cmp.Diff(s, &decoded); diff != "" {
		t.Errorf("JSON round trip mismatch (-want +got):\n%s", diff)
	}

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "main", raw["name"])
	columns := raw["tables"].([]any)[0].(map[string]any)["columns"].([]any)
	assert.Equal(t, map[string]any{
		"name": "user_id",
		"type": "INTEGER",
		"primary_key": map[string]any{
			"order":         "ASC",
			"on_conflict":   "REPLACE",
			"autoincrement": true,
		},
	}, columns[0])
}
