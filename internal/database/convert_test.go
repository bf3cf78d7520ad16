package database

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalRoundTrip(t *testing.T) {
	conn := openTestDB(t, nil)

	_, err := conn.Execute("CREATE TABLE prices (id INTEGER PRIMARY KEY, amount DECIMAL(30, 9), note NUMERIC)")
	require.NoError(t, err)

	amount := decimal.RequireFromString("12345678901234567890.123456789")
	_, err = conn.Execute("INSERT INTO prices (id, amount, note) VALUES (?, ?, ?)", 1, amount, 7)
	require.NoError(t, err)
	_, err = conn.Execute("INSERT INTO prices (id, amount) VALUES (?, ?)", 2, decimal.NullDecimal{})
	require.NoError(t, err)

	cur, err := conn.Query("SELECT amount, note FROM prices ORDER BY id")
	require.NoError(t, err)
	rows, err := cur.FetchAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got, ok := rows[0]["amount"].(decimal.Decimal)
	require.True(t, ok, "amount is %T", rows[0]["amount"])
	assert.True(t, amount.Equal(got), "got %s", got)

	note, ok := rows[0]["note"].(decimal.Decimal)
	require.True(t, ok, "note is %T", rows[0]["note"])
	assert.True(t, decimal.NewFromInt(7).Equal(note))

	assert.Nil(t, rows[1]["amount"])
}

func TestDecimal_DetectTypesDisabled(t *testing.T) {
	conn := openTestDB(t, map[string]any{"detect_types": false})

	_, err := conn.Execute("CREATE TABLE prices (amount DECIMAL)")
	require.NoError(t, err)
	_, err = conn.Execute("INSERT INTO prices VALUES (?)", decimal.RequireFromString("1.50"))
	require.NoError(t, err)

	cur, err := conn.Query("SELECT amount FROM prices")
	require.NoError(t, err)
	row, ok, err := cur.FetchOne()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1.5"), row["amount"])
	require.NoError(t, cur.Close())
}

func TestAdaptArgs(t *testing.T) {
	args := []any{1, "a"}
	assert.Equal(t, args, adaptArgs(args))

	d := decimal.RequireFromString("3.14")
	in := []any{1, d, &d, (*decimal.Decimal)(nil), decimal.NullDecimal{Decimal: d, Valid: true}, "x"}
	out := adaptArgs(in)
	assert.Equal(t, []any{1, []byte("3.14"), []byte("3.14"), nil, []byte("3.14"), "x"}, out)
	assert.Equal(t, d, in[1], "input slice must not be modified")
}

func TestConvertValue(t *testing.T) {
	tests := []struct {
		name     string
		declType string
		value    any
		want     any
	}{
		{"blob", "DECIMAL", []byte("1.25"), decimal.RequireFromString("1.25")},
		{"text", "NUMERIC(10,2)", "2.50", decimal.RequireFromString("2.5")},
		{"integer", "decimal", int64(3), decimal.NewFromInt(3)},
		{"real", "NUMERIC", 0.5, decimal.NewFromFloat(0.5)},
		{"unparsable", "DECIMAL", "abc", "abc"},
		{"other type", "TEXT", "1.25", "1.25"},
		{"null", "DECIMAL", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertValue(tt.declType, tt.value)
			if want, ok := tt.want.(decimal.Decimal); ok {
				d, ok := got.(decimal.Decimal)
				require.True(t, ok, "got %T", got)
				assert.True(t, want.Equal(d), "got %s want %s", d, want)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
