// Package watcher turns raw filesystem notifications into at-most-one
// pending sync job per absolute path per 500 ms quiescence window, per
// spec.md §4.4.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panyam/gocurrent"

	"github.com/savevault/syncengine/internal/model"
)

// DebounceWindow is the filesystem quiescence window spec.md §4.4 requires
// before a batch of coalesced paths is flushed as sync jobs.
const DebounceWindow = 500 * time.Millisecond

// jobChanCapacity bounds the channel of debounced sync jobs that Run hands
// to the consumer of Jobs. Raw fsnotify events reach the debouncer through
// the reducer's own input channel, whose capacity this constant does not
// set.
const jobChanCapacity = 100

// Watcher installs recursive filesystem observers on a game's configured
// save paths and emits one SyncJob per distinct changed path per
// debounce window.
type Watcher struct {
	game    string
	paths   []string
	fsw     *fsnotify.Watcher
	reducer *gocurrent.Reducer2[string, map[string]struct{}]
	jobs    chan model.SyncJob
	log     *slog.Logger
}

// New installs a recursive fsnotify watch on every path (and its
// subdirectories) and returns a Watcher ready to Run.
func New(game string, paths []string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		game:  game,
		paths: paths,
		fsw:   fsw,
		jobs:  make(chan model.SyncJob, jobChanCapacity),
		log:   log,
	}
	w.reducer = gocurrent.NewReducer2(
		gocurrent.WithFlushPeriod2[string, map[string]struct{}](DebounceWindow),
	)
	w.reducer.CollectFunc = func(collection map[string]struct{}, items ...string) (map[string]struct{}, bool) {
		if collection == nil {
			collection = map[string]struct{}{}
		}
		for _, p := range items {
			collection[p] = struct{}{}
		}
		return collection, false
	}

	for _, p := range paths {
		if err := w.addRecursive(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addRecursive installs a watch on dir and every subdirectory beneath it,
// mirroring the walk-and-register pattern fsnotify requires since it has
// no native recursive mode.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

// Jobs returns the channel of debounced sync jobs. Jobs must be drained
// for the watcher to make progress.
func (w *Watcher) Jobs() <-chan model.SyncJob {
	return w.jobs
}

// Run drains fsnotify events into the debounce reducer and the reducer's
// flushed batches into Jobs, until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	go w.pumpEvents(ctx)

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return ctx.Err()
		case batch, ok := <-w.reducer.OutputChan():
			if !ok {
				return nil
			}
			for path := range batch {
				job := model.SyncJob{GameName: w.game, AbsPath: path}
				select {
				case w.jobs <- job:
				case <-ctx.Done():
					w.fsw.Close()
					return ctx.Err()
				}
			}
		}
	}
}

// pumpEvents reads raw fsnotify events and forwards content-change events
// into the debounce reducer. Directory creation is handled by extending
// the recursive watch rather than producing a job, since create/remove/
// rename carry no content to sync (spec.md §4.4).
func (w *Watcher) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("filesystem watcher error", "game", w.game, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Error("failed to extend recursive watch", "path", event.Name, "error", err)
			}
			return
		}
		return
	}
	if event.Op&fsnotify.Write == 0 {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}
	w.reducer.InputChan() <- event.Name
}

// Close releases the underlying fsnotify handle. Safe to call more than
// once.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
