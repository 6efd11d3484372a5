// Package daemon implements the Daemon Loop: startup, periodic health
// and config-reload ticks, and graceful shutdown on signal, per
// spec.md §4.6.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/storage"
	"github.com/savevault/syncengine/internal/supervisor"
	"github.com/savevault/syncengine/internal/syncengine"
)

// HealthCheckInterval and ReloadInterval are the two ticks of spec.md
// §4.6.
const (
	HealthCheckInterval = 30 * time.Second
	ReloadInterval      = 60 * time.Second
)

// Notifier announces readiness and liveness to whatever process
// supervisor (if any) started this daemon. The default NoopNotifier
// satisfies standalone runs; EnvNotifier bridges to a systemd-style
// NOTIFY_SOCKET for supervised ones.
type Notifier interface {
	Ready() error
	Heartbeat() error
}

// NoopNotifier implements Notifier with no-ops, for unsupervised runs.
type NoopNotifier struct{}

func (NoopNotifier) Ready() error     { return nil }
func (NoopNotifier) Heartbeat() error { return nil }

// Status reports the daemon's current health, per the health-check tick's
// requirements and SPEC_FULL.md §10's status-reporting addition.
type Status struct {
	WatchedGames   []string
	ConfigPath     string
	ConfigReadable bool
	LastHealthTick time.Time
	LastReloadTick time.Time
}

// Daemon is the top-level process loop: it owns the Supervisor, the
// storage Backend, and the config path it rereads on each reload tick.
type Daemon struct {
	ConfigPath string
	Backend    storage.Backend
	Supervisor *supervisor.Supervisor
	Notifier   Notifier
	Log        *slog.Logger

	mu     sync.Mutex
	status Status

	engines map[string]*syncengine.Engine
}

// New constructs a Daemon. If notifier is nil, NoopNotifier is used.
func New(configPath string, backend storage.Backend, sup *supervisor.Supervisor, notifier Notifier, log *slog.Logger) *Daemon {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Daemon{
		ConfigPath: configPath,
		Backend:    backend,
		Supervisor: sup,
		Notifier:   notifier,
		Log:        log,
		engines:    map[string]*syncengine.Engine{},
	}
}

// Status returns a snapshot of the daemon's last-observed health.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.WatchedGames = d.Supervisor.WatchedGames()
	return s
}

func (d *Daemon) engineFor(ctx context.Context, game string, policy config.VersionConfig) (*syncengine.Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.engines[game]; ok {
		return e, nil
	}
	e, err := syncengine.New(ctx, game, d.Backend, policy, d.Log)
	if err != nil {
		return nil, err
	}
	d.engines[game] = e
	return e, nil
}

// Run loads config, starts watchers for every game with sync_enabled,
// announces readiness, then multiplexes over termination, health-check,
// and config-reload until ctx is canceled or a termination signal
// arrives.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(d.ConfigPath)
	if err != nil {
		return err
	}
	if err := d.reconcileGames(ctx, cfg); err != nil {
		return err
	}

	if err := d.Notifier.Ready(); err != nil {
		d.Log.Warn("readiness notification failed", "error", err)
	}

	healthTicker := time.NewTicker(HealthCheckInterval)
	defer healthTicker.Stop()
	reloadTicker := time.NewTicker(ReloadInterval)
	defer reloadTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Log.Info("shutting down, stopping all watchers")
			d.Supervisor.StopAll()
			return nil

		case now := <-healthTicker.C:
			d.runHealthCheck(now)
			if err := d.Notifier.Heartbeat(); err != nil {
				d.Log.Warn("heartbeat notification failed", "error", err)
			}

		case now := <-reloadTicker.C:
			d.mu.Lock()
			d.status.LastReloadTick = now
			d.mu.Unlock()
			cfg, err := config.Load(d.ConfigPath)
			if err != nil {
				d.Log.Error("config reload failed", "error", err)
				continue
			}
			if err := d.reconcileGames(ctx, cfg); err != nil {
				d.Log.Error("config reload reconciliation failed", "error", err)
			}
		}
	}
}

// reconcileGames starts watchers for every enabled, not-yet-watched game
// and stops watchers whose config has disappeared or been disabled, per
// spec.md §4.6's reload-tick contract.
func (d *Daemon) reconcileGames(ctx context.Context, cfg *config.Config) error {
	watched := map[string]bool{}
	for _, g := range d.Supervisor.WatchedGames() {
		watched[g] = true
	}

	stillEnabled := map[string]bool{}
	for name, gc := range cfg.Games {
		if !gc.SyncEnabled {
			continue
		}
		stillEnabled[name] = true
		if watched[name] {
			continue
		}
		engine, err := d.engineFor(ctx, name, cfg.Version)
		if err != nil {
			d.Log.Error("failed to construct engine", "game", name, "error", err)
			continue
		}
		if err := d.Supervisor.StartWatchingGame(ctx, name, gc.ExpandedSavePaths(), engine); err != nil {
			d.Log.Error("failed to start watcher", "game", name, "error", err)
		}
	}

	for name := range watched {
		if !stillEnabled[name] {
			d.Supervisor.StopWatchingGame(name)
		}
	}
	return nil
}

// runHealthCheck logs the watched-game count and verifies the config file
// is still accessible, per spec.md §4.6.
func (d *Daemon) runHealthCheck(now time.Time) {
	games := d.Supervisor.WatchedGames()
	readable := true
	if d.ConfigPath != "" {
		if _, err := os.Stat(d.ConfigPath); err != nil {
			readable = false
			d.Log.Warn("config file not accessible", "path", d.ConfigPath, "error", err)
		}
	}
	d.Log.Info("health check", "watched_games", len(games))

	d.mu.Lock()
	d.status.LastHealthTick = now
	d.status.ConfigPath = d.ConfigPath
	d.status.ConfigReadable = readable
	d.mu.Unlock()
}
