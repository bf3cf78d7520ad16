// Package config loads the command line tool's configuration file and gives
// typed access to its settings.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File is a parsed configuration file. Nested tables are addressed with
// dotted keys: "database.timeout".
type File struct {
	Path string

	raw  map[string]any
	flat map[string]string
}

// Load reads a YAML, TOML or JSON file, picked by extension.
func Load(path string) (*File, error) {
	raw := make(map[string]any)
	if err := Decode(path, &raw); err != nil {
		return nil, err
	}

	f := &File{Path: path, raw: raw, flat: make(map[string]string)}
	flatten("", raw, f.flat)
	return f, nil
}

// Decode unmarshals the file at path into v, picking the format by extension.
func Decode(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	case ".toml":
		err = toml.Unmarshal(data, v)
	case ".json":
		err = json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported config file extension %q (want .yaml, .yml, .toml or .json)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// GetSetting implements SettingsGetter. Missing keys yield "".
func (f *File) GetSetting(key string) (string, error) {
	if f == nil {
		return "", nil
	}
	return f.flat[key], nil
}

// Section returns the table at key with its values in their decoded types,
// or nil when there is none.
func (f *File) Section(key string) map[string]any {
	if f == nil {
		return nil
	}

	var cur any = f.raw
	for part := range strings.SplitSeq(key, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	m, _ := asMap(cur)
	return m
}

// Keys lists every flattened key, sorted.
func (f *File) Keys() []string {
	if f == nil {
		return nil
	}
	keys := make([]string, 0, len(f.flat))
	for k := range f.flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func flatten(prefix string, value any, out map[string]string) {
	if m, ok := asMap(value); ok {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, v, out)
		}
		return
	}
	if prefix == "" || value == nil {
		return
	}
	out[prefix] = fmt.Sprint(value)
}

// asMap accepts both map[string]any (yaml.v3, go-toml, encoding/json) and
// map[any]any tables.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}
