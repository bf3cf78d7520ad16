package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistry(t *testing.T) {
	r := &lockRegistry{locks: make(map[string]*fileLock)}

	a := r.acquire(target{path: "/data/a.db"})
	b := r.acquire(target{path: "/data/a.db"})
	c := r.acquire(target{path: "/data/c.db"})
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, r.size())

	m1 := r.acquire(target{path: MemoryLocation, memory: true})
	m2 := r.acquire(target{path: MemoryLocation, memory: true})
	assert.NotSame(t, m1, m2)
	assert.Equal(t, 2, r.size())

	r.release(a)
	assert.Equal(t, 2, r.size())
	r.release(b)
	r.release(c)
	r.release(m1)
	r.release(nil)
	assert.Zero(t, r.size())
}

func TestFileLock_Timeout(t *testing.T) {
	l := newFileLock("/data/a.db")
	require.NoError(t, l.lock(time.Second))

	start := time.Now()
	err := l.lock(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.ErrorIs(t, l.lock(0), ErrLockTimeout)

	done := make(chan error, 1)
	go func() { done <- l.lock(5 * time.Second) }()
	l.unlock()
	require.NoError(t, <-done)
	l.unlock()
}

func TestResolveLocation(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	file := filepath.Join(dir, "x.db")

	tests := []struct {
		name     string
		location string
		uri      bool
		want     target
		wantErr  bool
	}{
		{name: "memory", location: MemoryLocation, want: target{path: MemoryLocation, memory: true}},
		{name: "absolute", location: file, want: target{path: file}},
		{name: "file uri", location: "file:" + file + "?mode=rwc", uri: true, want: target{path: file}},
		{name: "memory uri", location: "file:shared?mode=memory&cache=shared", uri: true, want: target{path: MemoryLocation, memory: true}},
		{name: "empty", location: "", wantErr: true},
		{name: "uri without path", location: "file:?mode=rwc", uri: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveLocation(tt.location, tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	rel, err := resolveLocation("relative.db", false)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(rel.path))
}

func TestResolveLocation_Symlinks(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	data := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(data, 0o755))
	file := filepath.Join(data, "app.db")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	link := filepath.Join(dir, "link")
	if err := os.Symlink(data, link); err != nil {
		if errors.Is(err, os.ErrPermission) {
			t.Skip("symlinks not permitted")
		}
		require.NoError(t, err)
	}

	got, err := resolveLocation(filepath.Join(link, "app.db"), false)
	require.NoError(t, err)
	assert.Equal(t, file, got.path)

	// Not created yet: resolved through the folder.
	got, err = resolveLocation(filepath.Join(link, "new.db"), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(data, "new.db"), got.path)

	a, err := Open(file, nil, false, nil)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(filepath.Join(link, "app.db"), nil, false, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Same(t, a.lock, b.lock)
}
