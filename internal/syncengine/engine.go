// Package syncengine implements the Versioned Sync Engine: construction-
// time manifest merge, single-path reconciliation, restore, delete, and
// directory snapshotting, as described in spec.md §4.3.
package syncengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/model"
	"github.com/savevault/syncengine/internal/observability"
	"github.com/savevault/syncengine/internal/storage"
	"github.com/savevault/syncengine/internal/versionmgr"
)

// Engine orchestrates reconciliation for a single game: one Version
// Manager wrapping its manifest, one Storage Backend carrying bytes.
type Engine struct {
	game    string
	vm      *versionmgr.Manager
	backend storage.Backend
	log     *slog.Logger

	// VerifyUploads, when true, makes Sync re-download a just-uploaded
	// body and compare its length against what was sent (spec.md §4.3
	// step 7's optional verification).
	VerifyUploads bool
}

// New constructs an Engine for game, downloading and merging the remote
// manifest (if any) into a freshly created local manifest before any
// upload/download — this establishes the engine's baseline view, per
// spec.md §4.3.
func New(ctx context.Context, game string, backend storage.Backend, policy config.VersionConfig, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	local := model.NewGameVersionManifest(game)
	remote, err := backend.DownloadManifest(ctx, game)
	if err != nil {
		if kind, ok := model.KindOf(err); ok && kind == model.ManifestParseError {
			log.Warn("remote manifest failed to parse, treating as absent", "game", game, "error", err)
			remote = nil
		} else {
			return nil, err
		}
	}
	merged := mergeManifests(local, remote)
	return &Engine{
		game:    game,
		vm:      versionmgr.FromManifest(merged, policy),
		backend: backend,
		log:     log,
	}, nil
}

// Manifest exposes the engine's current manifest view.
func (e *Engine) Manifest() *model.GameVersionManifest {
	return e.vm.Manifest()
}

func (e *Engine) fileKey(absPath string) string {
	return e.game + "/" + filepath.Base(absPath)
}

// Plan computes a SyncAction for absPath from the local file and the
// engine's in-memory manifest, without performing it — the dry-run exposed
// to operators (SPEC_FULL.md §10). It does not download the remote
// manifest, so a newer remote version is not reflected; it compares by
// hash even when the current version has none; and a directory always
// plans as UploadNewVersion, even when its snapshot is unchanged.
func (e *Engine) Plan(ctx context.Context, absPath string) (model.SyncAction, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			rel := e.fileKey(absPath)
			if _, ok := e.vm.GetCurrentVersion(rel); ok {
				return model.SyncAction{Kind: model.DownloadRemote, Reason: "local file missing, remote version available"}, nil
			}
			return model.SyncAction{Kind: model.NoAction, Reason: "local file missing, no manifest entry"}, nil
		}
		if os.IsPermission(err) {
			return model.SyncAction{}, model.NewSyncError(model.LocalFileLocked, "Plan", absPath, err)
		}
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Plan", absPath, err)
	}
	if info.IsDir() {
		return model.SyncAction{Kind: model.UploadNewVersion, Reason: "directory snapshot pending"}, nil
	}
	body, err := os.ReadFile(absPath)
	if err != nil {
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Plan", absPath, err)
	}
	hash := hashBytes(body)
	rel := e.fileKey(absPath)
	if cur, ok := e.vm.GetCurrentVersion(rel); ok && cur.Hash == hash {
		return model.SyncAction{Kind: model.NoAction, Reason: "content unchanged since current version"}, nil
	}
	return model.SyncAction{Kind: model.UploadNewVersion, Reason: "content changed or no prior version"}, nil
}

// Sync reconciles a single local path for the engine's game, following
// the seven steps of spec.md §4.3.
func (e *Engine) Sync(ctx context.Context, absPath string) (model.SyncAction, error) {
	ctx, span := observability.Tracer.Start(ctx, "Sync")
	defer span.End()

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return e.recoverMissingLocal(ctx, absPath)
		}
		if os.IsPermission(err) {
			return model.SyncAction{}, model.NewSyncError(model.LocalFileLocked, "Sync", absPath, err)
		}
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
	}

	if info.IsDir() {
		return e.snapshotDirectory(ctx, absPath)
	}
	return e.syncFile(ctx, absPath)
}

// recoverMissingLocal implements step 2: download the manifest's current
// version for a path that no longer exists locally.
func (e *Engine) recoverMissingLocal(ctx context.Context, absPath string) (model.SyncAction, error) {
	rel := e.fileKey(absPath)
	cur, ok := e.vm.GetCurrentVersion(rel)
	if !ok {
		return model.SyncAction{Kind: model.NoAction, Reason: "no manifest entry for missing local file"}, nil
	}
	body, err := e.backend.DownloadFile(ctx, e.game, rel, cur)
	if err != nil {
		return model.SyncAction{}, err
	}
	if hashBytes(body) != cur.Hash {
		return model.SyncAction{}, model.NewSyncError(model.IntegrityFailure, "Sync", absPath, nil)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
	}
	if err := os.WriteFile(absPath, body, 0o644); err != nil {
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
	}
	return model.SyncAction{Kind: model.DownloadRemote, Reason: "local file missing, downloaded from manifest"}, nil
}

// syncFile implements steps 3-7 for a single, present local file. It
// always checks whether the remote side has already advanced past the
// engine's known state first (spec.md §8 scenario 3's pull check) —
// otherwise a hash mismatch caused by a concurrently-uploaded newer
// remote version would be clobbered by stale local bytes, and a remote
// advance with byte-identical local content would never be noticed.
func (e *Engine) syncFile(ctx context.Context, absPath string) (model.SyncAction, error) {
	downloaded, err := e.SyncFromStorage(ctx, absPath)
	if err != nil {
		return model.SyncAction{}, err
	}
	if downloaded {
		return model.SyncAction{Kind: model.DownloadRemote, Reason: "remote version newer than local"}, nil
	}

	rel := e.fileKey(absPath)

	// A current version with no hash was recorded through the legacy,
	// pre-versioning compare path (storage_metadata carried only
	// last-modified time and size); keep reconciling it with that same
	// rule rather than forcing a hash onto data that never had one.
	if cur, ok := e.vm.GetCurrentVersion(rel); ok && cur.Hash == "" {
		return e.syncFileLegacy(ctx, absPath, rel, cur)
	}

	body, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsPermission(err) {
			return model.SyncAction{}, model.NewSyncError(model.LocalFileLocked, "Sync", absPath, err)
		}
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
	}

	hash := hashBytes(body)
	if cur, ok := e.vm.GetCurrentVersion(rel); ok && cur.Hash == hash {
		return model.SyncAction{Kind: model.NoAction, Reason: "content unchanged since current version"}, nil
	}

	return e.publishNewVersion(ctx, rel, body, "")
}

// syncFileLegacy reconciles absPath against a hash-less current version
// using the legacy timestamp/size compare rule (spec.md §4.3's "reused
// when a backend exposes only last-modified + size"), instead of a
// content hash the legacy entry never recorded.
func (e *Engine) syncFileLegacy(ctx context.Context, absPath, rel string, cur model.FileVersion) (model.SyncAction, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsPermission(err) {
			return model.SyncAction{}, model.NewSyncError(model.LocalFileLocked, "Sync", absPath, err)
		}
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
	}

	action := CompareByTimestamp(info.ModTime(), cur.Timestamp, info.Size(), cur.Size)
	switch action.Kind {
	case model.NoAction:
		return action, nil
	case model.DownloadRemote:
		body, err := e.backend.DownloadFile(ctx, e.game, rel, cur)
		if err != nil {
			return model.SyncAction{}, err
		}
		if err := os.WriteFile(absPath, body, 0o644); err != nil {
			return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
		}
		return action, nil
	default:
		body, err := os.ReadFile(absPath)
		if err != nil {
			return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", absPath, err)
		}
		return e.publishNewVersion(ctx, rel, body, "")
	}
}

// SyncFromStorage implements spec.md §8 scenario 3 ("remote newer than
// local"): it re-downloads the remote manifest and, when the remote's
// current_version for absPath is newer than the version the engine
// previously knew about, downloads and overwrites the local file. It
// reports whether a download happened, so a second call against an
// already-reconciled path reports false.
func (e *Engine) SyncFromStorage(ctx context.Context, absPath string) (bool, error) {
	ctx, span := observability.Tracer.Start(ctx, "SyncFromStorage")
	defer span.End()

	rel := e.fileKey(absPath)

	remoteManifest, err := e.backend.DownloadManifest(ctx, e.game)
	if err != nil {
		if kind, ok := model.KindOf(err); ok && kind == model.ManifestParseError {
			e.log.Warn("remote manifest failed to parse during pull check, treating as absent", "game", e.game, "error", err)
			remoteManifest = nil
		} else {
			return false, err
		}
	}
	if remoteManifest == nil {
		return false, nil
	}
	remoteFile, ok := remoteManifest.Files[rel]
	if !ok {
		return false, nil
	}
	remoteVersion, ok := remoteFile.CurrentFileVersion()
	if !ok {
		return false, nil
	}

	if localVersion, haveLocal := e.vm.GetCurrentVersion(rel); haveLocal && !remoteVersion.Timestamp.After(localVersion.Timestamp) {
		return false, nil
	}

	downloadedBody, err := e.backend.DownloadFile(ctx, e.game, rel, remoteVersion)
	if err != nil {
		return false, err
	}
	if hashBytes(downloadedBody) != remoteVersion.Hash {
		return false, model.NewSyncError(model.IntegrityFailure, "SyncFromStorage", absPath, nil)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return false, model.NewSyncError(model.BackendTransport, "SyncFromStorage", absPath, err)
	}
	if err := os.WriteFile(absPath, downloadedBody, 0o644); err != nil {
		return false, model.NewSyncError(model.BackendTransport, "SyncFromStorage", absPath, err)
	}

	e.vm.ReplaceManifest(mergeManifests(e.vm.Manifest(), remoteManifest))

	return true, nil
}

// publishNewVersion runs steps 4-7 of spec.md §4.3 for body recorded under
// rel: add the version, upload it, attach backend metadata, republish the
// manifest, and optionally verify.
func (e *Engine) publishNewVersion(ctx context.Context, rel string, body []byte, description string) (model.SyncAction, error) {
	version, err := e.vm.AddVersionFromBytes(rel, body, nil, description)
	if err != nil {
		return model.SyncAction{}, err
	}

	result, err := e.backend.UploadFile(ctx, e.game, rel, version, body)
	if err != nil {
		return model.SyncAction{}, err
	}
	if result != nil && len(result.Metadata) > 0 {
		if err := e.vm.SetStorageMetadata(rel, version.VersionID, result.Metadata); err != nil {
			e.log.Warn("failed to attach storage metadata", "path", rel, "error", err)
		}
	}

	if _, err := e.backend.UploadManifest(ctx, e.game, e.vm.Manifest()); err != nil {
		e.log.Error("manifest upload failed after version upload; will reconcile on next sync", "game", e.game, "path", rel, "error", err)
	}

	if e.VerifyUploads {
		roundTrip, err := e.backend.DownloadFile(ctx, e.game, rel, version)
		if err != nil || len(roundTrip) != len(body) {
			return model.SyncAction{}, model.NewSyncError(model.IntegrityFailure, "Sync", rel, err)
		}
	}

	return model.SyncAction{Kind: model.UploadNewVersion, Reason: "new version uploaded"}, nil
}

// snapshotDirectory implements step 1 of spec.md §4.3: archive the entire
// subtree into one gzipped tape archive, stored under the game's own
// top-level key.
func (e *Engine) snapshotDirectory(ctx context.Context, dirPath string) (model.SyncAction, error) {
	body, err := archiveDirectory(dirPath)
	if err != nil {
		return model.SyncAction{}, model.NewSyncError(model.BackendTransport, "Sync", dirPath, err)
	}
	hash := hashBytes(body)
	if cur, ok := e.vm.GetCurrentVersion(e.game); ok && cur.Hash == hash {
		return model.SyncAction{Kind: model.NoAction, Reason: "directory snapshot unchanged"}, nil
	}
	return e.publishNewVersion(ctx, e.game, body, "directory snapshot")
}

// Restore writes version versionID into targetDir, per spec.md §4.3's
// restore algorithm: a directory-archive body takes precedence, then a
// scan of every file_path under this game for a matching version id.
func (e *Engine) Restore(ctx context.Context, versionID, targetDir string) error {
	manifest := e.vm.Manifest()

	if fm, ok := manifest.Files[e.game]; ok {
		if idx, found := fm.FindVersion(versionID); found {
			version := fm.Versions[idx]
			body, err := e.backend.DownloadFile(ctx, e.game, e.game, version)
			if err != nil {
				return err
			}
			if hashBytes(body) != version.Hash {
				return model.NewSyncError(model.IntegrityFailure, "Restore", e.game, nil)
			}
			return extractArchive(body, targetDir)
		}
	}

	prefix := e.game + "/"
	for path, fm := range manifest.Files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		idx, found := fm.FindVersion(versionID)
		if !found {
			continue
		}
		version := fm.Versions[idx]
		body, err := e.backend.DownloadFile(ctx, e.game, path, version)
		if err != nil {
			return err
		}
		if hashBytes(body) != version.Hash {
			return model.NewSyncError(model.IntegrityFailure, "Restore", path, nil)
		}
		target := filepath.Join(targetDir, filepath.Base(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return model.NewSyncError(model.BackendTransport, "Restore", target, err)
		}
		return os.WriteFile(target, body, 0o644)
	}

	return model.NewSyncError(model.VersionNotFound, "Restore", versionID, nil)
}

// Delete removes versionID of filePath: from the manifest, from the
// backend, then republishes the manifest. Pinned versions are refused.
func (e *Engine) Delete(ctx context.Context, filePath, versionID string) error {
	version, err := e.vm.GetVersion(filePath, versionID)
	if err != nil {
		return err
	}
	if err := e.vm.RemoveVersion(filePath, versionID); err != nil {
		return err
	}
	if _, err := e.backend.DeleteVersion(ctx, e.game, filePath, version); err != nil {
		return err
	}
	_, err = e.backend.UploadManifest(ctx, e.game, e.vm.Manifest())
	return err
}

// Summary tallies the outcome of a batch of Sync calls (spec.md §7: "a
// successful sync returns a summary tallying uploads, downloads, bytes
// transferred, and per-file outcomes").
type Summary struct {
	Uploaded         int
	Downloaded       int
	BytesTransferred int64
	Results          []FileResult
}

// FileResult is one path's outcome within a Summary.
type FileResult struct {
	Path   string
	Action model.SyncActionKind
	Err    error
}

// SyncAll runs Sync over every path, accumulating a Summary. It does not
// stop at the first error; every path is attempted and its outcome
// recorded.
func (e *Engine) SyncAll(ctx context.Context, paths []string) Summary {
	var summary Summary
	for _, p := range paths {
		size := fileSizeOrZero(p)
		action, err := e.Sync(ctx, p)
		summary.Results = append(summary.Results, FileResult{Path: p, Action: action.Kind, Err: err})
		if err != nil {
			continue
		}
		switch action.Kind {
		case model.UploadNewVersion:
			summary.Uploaded++
			summary.BytesTransferred += size
		case model.DownloadRemote:
			summary.Downloaded++
			summary.BytesTransferred += fileSizeOrZero(p)
		}
	}
	return summary
}

func fileSizeOrZero(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func hashBytes(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
