// Package localbackend implements storage.Backend over a directory on the
// local filesystem, interpreting the bit-exact key scheme from
// storage.VersionKey/ManifestKey as relative paths under a base directory.
package localbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/panyam/goutils/utils"
	"github.com/savevault/syncengine/internal/model"
	"github.com/savevault/syncengine/internal/storage"
)

// Backend is a storage.Backend rooted at a base directory. Parent
// directories are created on demand; '~' in BasePath is expanded against
// the current user's home directory.
type Backend struct {
	BasePath string
}

// New returns a Backend rooted at basePath, expanding a leading '~'.
func New(basePath string) *Backend {
	return &Backend{BasePath: utils.ExpandUserPath(basePath)}
}

// resolve safely joins a relative key under BasePath, refusing to escape
// it. Mirrors the teacher's resolvePath/resolvePathOrRoot path-escape
// checks in services/fsbe/filestore.go.
func (b *Backend) resolve(relKey string) (string, error) {
	if relKey == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	if filepath.IsAbs(relKey) {
		return "", fmt.Errorf("absolute keys are not allowed: %s", relKey)
	}
	cleaned := filepath.Clean(relKey)
	if strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("key escapes base directory: %s", relKey)
	}
	full := filepath.Join(b.BasePath, cleaned)
	absBase, err := filepath.Abs(b.BasePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("failed to resolve key: %w", err)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes base directory: %s", relKey)
	}
	return full, nil
}

func (b *Backend) writeFile(relKey string, body []byte) error {
	full, err := b.resolve(relKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(full, body, 0644)
}

func (b *Backend) UploadFile(ctx context.Context, game, filePath string, version model.FileVersion, body []byte) (*storage.Result, error) {
	key := storage.VersionKey(game, filePath, version.VersionID)
	if err := b.writeFile(key, body); err != nil {
		return storage.Failed(err), err
	}
	return storage.OK(map[string]string{"path": key}), nil
}

func (b *Backend) DownloadFile(ctx context.Context, game, filePath string, version model.FileVersion) ([]byte, error) {
	key := storage.VersionKey(game, filePath, version.VersionID)
	full, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (b *Backend) UploadManifest(ctx context.Context, game string, manifest *model.GameVersionManifest) (*storage.Result, error) {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return storage.Failed(err), err
	}
	key := storage.ManifestKey(game)
	if err := b.writeFile(key, data); err != nil {
		return storage.Failed(err), err
	}
	return storage.OK(map[string]string{"path": key}), nil
}

func (b *Backend) DownloadManifest(ctx context.Context, game string) (*model.GameVersionManifest, error) {
	key := storage.ManifestKey(game)
	full, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var manifest model.GameVersionManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, model.NewSyncError(model.ManifestParseError, "DownloadManifest", key, err)
	}
	return &manifest, nil
}

func (b *Backend) DeleteVersion(ctx context.Context, game, filePath string, version model.FileVersion) (*storage.Result, error) {
	key := storage.VersionKey(game, filePath, version.VersionID)
	full, err := b.resolve(key)
	if err != nil {
		return storage.Failed(err), err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return storage.Failed(err), err
	}
	return storage.OK(nil), nil
}

func (b *Backend) ListGames(ctx context.Context) ([]string, error) {
	gamesDir := filepath.Join(b.BasePath, "games")
	entries, err := os.ReadDir(gamesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var games []string
	for _, e := range entries {
		if e.IsDir() {
			games = append(games, e.Name())
		}
	}
	return games, nil
}

func (b *Backend) HealthCheck(ctx context.Context) bool {
	info, err := os.Stat(b.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(b.BasePath, 0755) == nil
		}
		return false
	}
	return info.IsDir()
}
