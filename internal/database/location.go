package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const dirPermissions = 0o755

// target is where a location points to on disk.
type target struct {
	path   string // absolute file path with symlinks resolved, or MemoryLocation
	memory bool
}

// resolveLocation works out the file behind location. With uri set a
// "file:" location is parsed as an SQLite URI.
func resolveLocation(location string, uri bool) (target, error) {
	if location == "" {
		return target{}, fmt.Errorf("database location is empty")
	}
	if location == MemoryLocation {
		return target{path: MemoryLocation, memory: true}, nil
	}

	path := location
	if uri && strings.HasPrefix(location, "file:") {
		u, err := url.Parse(location)
		if err != nil {
			return target{}, fmt.Errorf("invalid database uri %q: %w", location, err)
		}
		path = u.Path
		if u.Opaque != "" {
			path = u.Opaque
		}
		if path == MemoryLocation || u.Query().Get("mode") == "memory" {
			return target{path: MemoryLocation, memory: true}, nil
		}
		if path == "" {
			return target{}, fmt.Errorf("database uri %q has no file path", location)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return target{}, fmt.Errorf("failed to resolve database path %q: %w", path, err)
	}
	return target{path: realPath(abs)}, nil
}

// realPath follows the symlinks of an absolute path so that every alias of
// a file shares one lock. A missing file is resolved through its folder.
func realPath(abs string) string {
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}

// createFolder creates the missing parent directories of a database file.
func createFolder(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create database folder %s: %w", dir, err)
	}
	return nil
}
