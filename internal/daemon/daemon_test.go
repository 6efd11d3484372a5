package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/savevault/syncengine/internal/storage/storagetest"
	"github.com/savevault/syncengine/internal/supervisor"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestRunStartsEnabledGamesAndStopsOnCancel(t *testing.T) {
	saveDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, `
games:
  game1:
    name: game1
    save_paths:
      - `+saveDir+`
    sync_enabled: true
`)

	backend := storagetest.New()
	sup := supervisor.New(nil)
	d := New(configPath, backend, sup, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sup.WatchedGames()) == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if games := sup.WatchedGames(); len(games) != 1 || games[0] != "game1" {
		t.Fatalf("expected [game1] to be watched, got %v", games)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to shut down")
	}

	if games := sup.WatchedGames(); len(games) != 0 {
		t.Fatalf("expected no watched games after shutdown, got %v", games)
	}
}

func TestNoopNotifierNeverErrors(t *testing.T) {
	var n NoopNotifier
	if err := n.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := n.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}

func TestEnvNotifierNoopWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	var n EnvNotifier
	if err := n.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if err := n.Heartbeat(); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
}
