package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/sqlitepie/internal/config"
	"github.com/saltyorg/sqlitepie/internal/database"
)

var _ database.Logger = (*Zerolog)(nil)

func restoreGlobals(t *testing.T) {
	t.Helper()
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestApplyLevel(t *testing.T) {
	restoreGlobals(t)

	for level, want := range map[string]zerolog.Level{
		"trace": zerolog.TraceLevel,
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"":      zerolog.InfoLevel,
		"loud":  zerolog.InfoLevel,
	} {
		applyLevel(level)
		assert.Equal(t, want, zerolog.GlobalLevel(), "level %q", level)
	}
}

func TestApply_WritesFile(t *testing.T) {
	restoreGlobals(t)

	path := filepath.Join(t.TempDir(), "logs", "sqlitepie.log")
	var console bytes.Buffer

	apply(&console, "debug", config.NewLoader(nil), path)
	Global().Debug("Connecting with the SQLite database 'test.db'...")

	assert.Contains(t, console.String(), "Connecting with the SQLite database")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DBG Connecting with the SQLite database 'test.db'...")
}

func TestApply_ConsoleOnly(t *testing.T) {
	restoreGlobals(t)

	var console bytes.Buffer
	apply(&console, "info", nil, "")

	Global().Debug("hidden")
	Global().Error("Last sqlite transaction(s) failed!", errors.New("constraint failed"))

	out := console.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "Last sqlite transaction(s) failed!")
	assert.Contains(t, out, "constraint failed")
}

func TestZerolog(t *testing.T) {
	restoreGlobals(t)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	logger := New(zerolog.New(&buf)).With("db", "test.db")
	logger.Debug("SELECT 1")
	logger.Error("failed", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, map[string]any{"level": "debug", "db": "test.db", "message": "SELECT 1"}, first)
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, "boom", second["error"])
	assert.Equal(t, "test.db", second["db"])
}
