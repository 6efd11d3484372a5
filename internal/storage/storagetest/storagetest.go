// Package storagetest provides an in-memory storage.Backend fake so the
// sync engine's tests can exercise upload/download/merge behavior without
// any network I/O, the standard shape for testing code written against a
// storage-polymorphic capability interface.
package storagetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/savevault/syncengine/internal/model"
	"github.com/savevault/syncengine/internal/storage"
)

// Backend is a storage.Backend backed by an in-memory map, guarded by a
// mutex so it is safe to share across the goroutines a test spins up.
type Backend struct {
	mu        sync.Mutex
	bodies    map[string][]byte
	manifests map[string][]byte

	// Tamper, if set, is applied on every DownloadFile call to the bytes
	// about to be returned and may replace them, for integrity-failure test
	// scenarios.
	Tamper func(key string, body []byte) []byte

	// Unhealthy forces HealthCheck to report false.
	Unhealthy bool
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		bodies:    map[string][]byte{},
		manifests: map[string][]byte{},
	}
}

func (b *Backend) UploadFile(ctx context.Context, game, filePath string, version model.FileVersion, body []byte) (*storage.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := storage.VersionKey(game, filePath, version.VersionID)
	cp := make([]byte, len(body))
	copy(cp, body)
	b.bodies[key] = cp
	return storage.OK(map[string]string{"key": key}), nil
}

func (b *Backend) DownloadFile(ctx context.Context, game, filePath string, version model.FileVersion) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := storage.VersionKey(game, filePath, version.VersionID)
	body, ok := b.bodies[key]
	if !ok {
		return nil, model.NewSyncError(model.BackendTransport, "DownloadFile", key, errNotFound)
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	if b.Tamper != nil {
		cp = b.Tamper(key, cp)
	}
	return cp, nil
}

func (b *Backend) UploadManifest(ctx context.Context, game string, manifest *model.GameVersionManifest) (*storage.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := json.Marshal(manifest)
	if err != nil {
		return storage.Failed(err), err
	}
	b.manifests[storage.ManifestKey(game)] = data
	return storage.OK(nil), nil
}

func (b *Backend) DownloadManifest(ctx context.Context, game string) (*model.GameVersionManifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.manifests[storage.ManifestKey(game)]
	if !ok {
		return nil, nil
	}
	var manifest model.GameVersionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, model.NewSyncError(model.ManifestParseError, "DownloadManifest", game, err)
	}
	return &manifest, nil
}

func (b *Backend) DeleteVersion(ctx context.Context, game, filePath string, version model.FileVersion) (*storage.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bodies, storage.VersionKey(game, filePath, version.VersionID))
	return storage.OK(nil), nil
}

func (b *Backend) ListGames(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[string]bool{}
	var games []string
	for key := range b.manifests {
		// key is "games/<game>/manifest.json"
		parts := splitKey(key)
		if len(parts) >= 2 && !seen[parts[1]] {
			seen[parts[1]] = true
			games = append(games, parts[1])
		}
	}
	return games, nil
}

func (b *Backend) HealthCheck(ctx context.Context) bool {
	return !b.Unhealthy
}

// BodyCount returns the number of version bodies currently stored, for
// assertions.
func (b *Backend) BodyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bodies)
}

func splitKey(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	return parts
}

var errNotFound = notFoundErr("version body not found")

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) }
