// Package supervisor holds the lifecycle of one watcher task per enabled
// game, per spec.md §4.5.
package supervisor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/savevault/syncengine/internal/syncengine"
	"github.com/savevault/syncengine/internal/watcher"
)

// Supervisor maps game name to the cancellation of its running watcher
// task. StartWatchingGame replaces any existing entry under the lock; the
// map mirrors the same mutex-guarded map-of-per-key-state pattern used by versionmgr.Manager and, originally,
// the teacher's own per-game fan-out map.
type Supervisor struct {
	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup
	log   *slog.Logger
}

// New returns an empty Supervisor.
func New(log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{tasks: map[string]context.CancelFunc{}, log: log}
}

// StartWatchingGame aborts any prior task for game and spawns a new one
// watching paths, handing every debounced job to engine.Sync.
func (s *Supervisor) StartWatchingGame(ctx context.Context, game string, paths []string, engine *syncengine.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.tasks[game]; ok {
		cancel()
		delete(s.tasks, game)
	}

	w, err := watcher.New(game, paths, s.log)
	if err != nil {
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.tasks[game] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer w.Close()
		s.runGame(taskCtx, game, w, engine)
	}()
	return nil
}

// runGame drains w's jobs and syncs each one, serially, so the manifest
// for this game only ever has one author at a time (spec.md §4.4, §5).
func (s *Supervisor) runGame(ctx context.Context, game string, w *watcher.Watcher, engine *syncengine.Engine) {
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-runErr:
			if err != nil && ctx.Err() == nil {
				s.log.Error("watcher task exited", "game", game, "error", err)
			}
			return
		case job := <-w.Jobs():
			if _, err := engine.Sync(ctx, job.AbsPath); err != nil {
				s.log.Warn("sync failed", "game", game, "path", job.AbsPath, "error", err)
			}
		}
	}
}

// StopWatchingGame aborts the task for game, if any.
func (s *Supervisor) StopWatchingGame(game string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tasks[game]; ok {
		cancel()
		delete(s.tasks, game)
	}
}

// StopAll aborts every running task and waits for them to cancel.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	for game, cancel := range s.tasks {
		cancel()
		delete(s.tasks, game)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// WatchedGames enumerates the games with an active watcher task. No
// ordering guarantee across games, per spec.md §4.5.
func (s *Supervisor) WatchedGames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := make([]string, 0, len(s.tasks))
	for game := range s.tasks {
		games = append(games, game)
	}
	return games
}
