package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const yamlConfig = `
database:
  timeout: 10s
  isolation_level: immediate
  foreign_keys: true
log:
  level: debug
  max_size_mb: 20
  compress: false
`

const tomlConfig = `
[database]
timeout = "10s"
isolation_level = "immediate"
foreign_keys = true

[log]
level = "debug"
max_size_mb = 20
compress = false
`

func TestLoad(t *testing.T) {
	for name, path := range map[string]string{
		"yaml": writeFile(t, "sqlitepie.yaml", yamlConfig),
		"toml": writeFile(t, "sqlitepie.toml", tomlConfig),
		"json": writeFile(t, "sqlitepie.json", `{"database": {"timeout": "10s", "isolation_level": "immediate", "foreign_keys": true},
			"log": {"level": "debug", "max_size_mb": 20, "compress": false}}`),
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Load(path)
			require.NoError(t, err)

			loader := NewLoader(f)
			assert.Equal(t, "debug", loader.String("log.level", "info"))
			assert.Equal(t, 20, loader.Int("log.max_size_mb", 50))
			assert.False(t, loader.Bool("log.compress", true))
			assert.Equal(t, 10*time.Second, loader.Duration("database.timeout", time.Second))
			assert.Equal(t, 5, loader.Int("log.max_backups", 5))

			section := f.Section("database")
			assert.Equal(t, "immediate", section["isolation_level"])
			assert.Equal(t, true, section["foreign_keys"])

			assert.Nil(t, f.Section("missing"))
			assert.Nil(t, f.Section("log.level"))
			assert.Contains(t, f.Keys(), "database.timeout")
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = Load(writeFile(t, "config.ini", "a=b"))
	assert.ErrorContains(t, err, "unsupported config file extension")

	_, err = Load(writeFile(t, "bad.toml", "[database\ntimeout ="))
	assert.ErrorContains(t, err, "failed to parse")
}

func TestLoader_Defaults(t *testing.T) {
	var nilLoader *Loader
	assert.Equal(t, 3, nilLoader.Int("x", 3))

	loader := NewLoader(nil)
	assert.Equal(t, "d", loader.String("x", "d"))
	assert.True(t, loader.Bool("x", true))
	assert.Equal(t, time.Minute, loader.Duration("x", time.Minute))
}

type mapGetter map[string]string

func (m mapGetter) GetSetting(key string) (string, error) { return m[key], nil }

func TestLoader_Parsing(t *testing.T) {
	loader := NewLoader(mapGetter{
		"seconds": "2.5",
		"bad":     "soon",
		"yes":     "1",
		"flag":    "maybe",
		"n":       " 7 ",
	})

	assert.Equal(t, 2500*time.Millisecond, loader.Duration("seconds", 0))
	assert.Equal(t, time.Second, loader.Duration("bad", time.Second))
	assert.True(t, loader.Bool("yes", false))
	assert.False(t, loader.Bool("flag", false))
	assert.Equal(t, 7, loader.Int("n", 0))
}
