// Package storage defines the pluggable storage-backend capability: an
// opaque object-by-key put/get/list/delete contract for version bodies and
// the one manifest-per-game JSON document. Concrete backends live in the
// s3backend and localbackend subpackages; storagetest provides an
// in-memory fake for tests.
package storage

import (
	"context"
	"fmt"

	"github.com/savevault/syncengine/internal/model"
)

// Result is the structured outcome of a fallible backend operation,
// matching the design's "success, optional error, opaque metadata" shape.
type Result struct {
	Success  bool
	Error    string
	Metadata map[string]string
}

// OK builds a successful Result.
func OK(metadata map[string]string) *Result {
	return &Result{Success: true, Metadata: metadata}
}

// Failed builds a failed Result carrying a human-readable message.
func Failed(err error) *Result {
	return &Result{Success: false, Error: err.Error()}
}

// Backend is the polymorphic storage capability the sync engine consumes.
// Implementations must never be down-cast by callers; the engine holds
// this interface abstractly.
type Backend interface {
	// UploadFile stores bytes addressable by (game, filePath, version.VersionID).
	// It must be readable back exactly via DownloadFile. The returned
	// Result's Metadata is recorded as the version's StorageMetadata.
	UploadFile(ctx context.Context, game, filePath string, version model.FileVersion, body []byte) (*Result, error)

	// DownloadFile returns exactly the bytes previously uploaded for that version.
	DownloadFile(ctx context.Context, game, filePath string, version model.FileVersion) ([]byte, error)

	// UploadManifest atomically replaces the single manifest object for the game.
	UploadManifest(ctx context.Context, game string, manifest *model.GameVersionManifest) (*Result, error)

	// DownloadManifest returns (nil, nil) if no manifest exists yet, which
	// is distinct from a transport error.
	DownloadManifest(ctx context.Context, game string) (*model.GameVersionManifest, error)

	// DeleteVersion removes just that version's body; other versions remain.
	// Implementations must treat "not found" as success.
	DeleteVersion(ctx context.Context, game, filePath string, version model.FileVersion) (*Result, error)

	// ListGames enumerates games with stored state.
	ListGames(ctx context.Context) ([]string, error)

	// HealthCheck reports whether the backend is currently reachable.
	HealthCheck(ctx context.Context) bool
}

// ErrNotImplemented is returned by backend constructors for recognized but
// unimplemented backend tags (GoogleDrive, WebDAV), so configs naming them
// still parse but fail loudly at construction time.
var ErrNotImplemented = fmt.Errorf("storage backend not implemented")

// VersionKey returns the bit-exact object key for a version body.
func VersionKey(game, filePath, versionID string) string {
	return fmt.Sprintf("games/%s/files/%s/versions/%s", game, filePath, versionID)
}

// ManifestKey returns the bit-exact object key for a game's manifest.
func ManifestKey(game string) string {
	return fmt.Sprintf("games/%s/manifest.json", game)
}
