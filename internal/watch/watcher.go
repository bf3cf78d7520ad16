// Package watch reports changes to the files of a directory, debounced.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is used when New is given a non-positive delay.
const DefaultDebounce = 2 * time.Second

// Watcher calls onChange once a burst of create, write or rename events on
// matching files of one directory has settled.
type Watcher struct {
	dir      string
	pattern  string
	debounce time.Duration
	onChange func()

	watcher *fsnotify.Watcher

	// Debounce tracking
	pendingMu sync.Mutex
	timer     *time.Timer

	// fireMu keeps onChange calls from overlapping.
	fireMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for the files of dir matching pattern
// (filepath.Match syntax, e.g. "*.sql").
func New(dir, pattern string, debounce time.Duration, onChange func()) (*Watcher, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		dir:      dir,
		pattern:  pattern,
		debounce: debounce,
		onChange: onChange,
		watcher:  fsWatcher,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.wg.Add(1)
	go w.eventLoop()

	log.Debug().Str("dir", w.dir).Str("pattern", w.pattern).Msg("Watching directory")
	return nil
}

// Stop stops watching and waits for a running onChange to return. Pending
// changes are dropped.
func (w *Watcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()

	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()

	w.fireMu.Lock()
	defer w.fireMu.Unlock()
}

// eventLoop processes filesystem events
func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("dir", w.dir).Msg("Directory watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if ok, _ := filepath.Match(w.pattern, filepath.Base(event.Name)); !ok {
		return
	}

	log.Trace().Str("path", event.Name).Str("op", event.Op.String()).Msg("Watched file changed")
	w.schedule()
}

// schedule starts or resets the debounce timer.
func (w *Watcher) schedule() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	if w.ctx.Err() != nil {
		return
	}

	w.fireMu.Lock()
	defer w.fireMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	w.onChange()
}
