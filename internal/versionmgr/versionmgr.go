// Package versionmgr implements the Version Manager: the in-memory
// authority over one game's manifest, mediating every read and write
// (add, query, pin, prune, serialize) described in spec.md §4.2.
package versionmgr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/model"
)

// Manager holds one GameVersionManifest in memory and mediates all reads
// and writes to it. A Manager is safe for concurrent use, but the sync
// engine's single-writer-per-game design means contention is not expected
// in practice — the lock exists for the same reason the teacher guards its
// per-key fan-out maps with a mutex (services/sync_service.go), not
// because multiple writers are supported (spec.md §5 is explicit that they
// are not).
type Manager struct {
	mu       sync.Mutex
	manifest *model.GameVersionManifest
	policy   config.VersionConfig
}

// LoadOrCreate builds a Manager for gameName. If serialized is non-nil, it
// is parsed as the manifest's JSON body; otherwise an empty manifest is
// constructed.
func LoadOrCreate(gameName string, policy config.VersionConfig, serialized []byte) (*Manager, error) {
	if serialized == nil {
		return &Manager{manifest: model.NewGameVersionManifest(gameName), policy: policy}, nil
	}
	var manifest model.GameVersionManifest
	if err := json.Unmarshal(serialized, &manifest); err != nil {
		return nil, model.NewSyncError(model.ManifestParseError, "LoadOrCreate", gameName, err)
	}
	if manifest.Files == nil {
		manifest.Files = map[string]*model.FileVersionManifest{}
	}
	return &Manager{manifest: &manifest, policy: policy}, nil
}

// FromManifest wraps an already-constructed manifest (e.g. the result of a
// merge) under management.
func FromManifest(manifest *model.GameVersionManifest, policy config.VersionConfig) *Manager {
	if manifest.Files == nil {
		manifest.Files = map[string]*model.FileVersionManifest{}
	}
	return &Manager{manifest: manifest, policy: policy}
}

// Manifest returns the manifest this Manager wraps. Callers must not
// mutate it directly; all mutation goes through Manager's methods.
func (m *Manager) Manifest() *model.GameVersionManifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifest
}

// ReplaceManifest swaps in manifest as the Manager's authoritative state,
// e.g. after a caller has merged in freshly pulled remote state.
func (m *Manager) ReplaceManifest(manifest *model.GameVersionManifest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if manifest.Files == nil {
		manifest.Files = map[string]*model.FileVersionManifest{}
	}
	m.manifest = manifest
}

// AddVersion reads localPath, computes its size and hash, assigns a
// version id, resolves the auto-pin policy, inserts the version at the
// head of files[filePath].versions, sets current_version, runs cleanup for
// that file, and returns the new version.
//
// If the computed version id collides with the file's current version
// (same microsecond, same content hash), this is a no-op that returns the
// existing current version — spec.md §9 leaves this case's resolution
// ambiguous and we preserve that rather than invent stricter semantics.
func (m *Manager) AddVersion(filePath, localPath string, storageMetadata map[string]string, description string) (model.FileVersion, error) {
	body, err := os.ReadFile(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return model.FileVersion{}, model.NewSyncError(model.LocalFileMissing, "AddVersion", localPath, err)
		}
		if os.IsPermission(err) {
			return model.FileVersion{}, model.NewSyncError(model.LocalFileLocked, "AddVersion", localPath, err)
		}
		return model.FileVersion{}, model.NewSyncError(model.BackendTransport, "AddVersion", localPath, err)
	}
	return m.AddVersionFromBytes(filePath, body, storageMetadata, description)
}

// AddVersionFromBytes is AddVersion without a filesystem read, useful when
// the caller already has the body in memory (e.g. a directory archive).
func (m *Manager) AddVersionFromBytes(filePath string, body []byte, storageMetadata map[string]string, description string) (model.FileVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	versionID := fmt.Sprintf("%s_%s", now.Format("20060102_150405.000000"), hash[:8])
	versionID = compactVersionID(versionID)

	fm, ok := m.manifest.Files[filePath]
	if !ok {
		fm = &model.FileVersionManifest{FilePath: filePath}
		m.manifest.Files[filePath] = fm
	}

	if fm.CurrentVersion == versionID {
		if idx, found := fm.FindVersion(versionID); found {
			return fm.Versions[idx], nil
		}
	}

	var prev model.FileVersion
	hasPrev := false
	if cur, ok := fm.CurrentFileVersion(); ok {
		prev, hasPrev = cur, true
	}

	version := model.FileVersion{
		VersionID:       versionID,
		Timestamp:       now,
		Size:            int64(len(body)),
		Hash:            hash,
		StorageMetadata: storageMetadata,
		Description:     description,
		IsPinned:        shouldAutoPin(m.policy.AutoPinStrategy, fm.Versions, prev, hasPrev, int64(len(body))),
	}

	fm.Versions = append([]model.FileVersion{version}, fm.Versions...)
	fm.CurrentVersion = versionID
	m.cleanupLocked(fm)
	m.manifest.LastUpdated = now
	return version, nil
}

// compactVersionID replaces the decimal point time.Format leaves before
// the microseconds with an underscore, matching both spec.md's
// "<YYYYMMDD_HHMMSS_micros>_<hash[0..8]>" shape and the original
// generate_version_id's "%Y%m%d_%H%M%S_%f" (underscore-separated, not
// fused).
func compactVersionID(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, v[i])
	}
	return string(out)
}

// GetFileVersions returns the versions known for filePath, newest first.
func (m *Manager) GetFileVersions(filePath string) ([]model.FileVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.manifest.Files[filePath]
	if !ok {
		return nil, model.NewSyncError(model.FileNotInManifest, "GetFileVersions", filePath, nil)
	}
	return fm.Versions, nil
}

// GetVersion returns a specific version of filePath.
func (m *Manager) GetVersion(filePath, versionID string) (model.FileVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.manifest.Files[filePath]
	if !ok {
		return model.FileVersion{}, model.NewSyncError(model.FileNotInManifest, "GetVersion", filePath, nil)
	}
	idx, found := fm.FindVersion(versionID)
	if !found {
		return model.FileVersion{}, model.NewSyncError(model.VersionNotFound, "GetVersion", filePath, nil)
	}
	return fm.Versions[idx], nil
}

// GetCurrentVersion returns the version named current for filePath.
func (m *Manager) GetCurrentVersion(filePath string) (model.FileVersion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.manifest.Files[filePath]
	if !ok {
		return model.FileVersion{}, false
	}
	return fm.CurrentFileVersion()
}

// PinVersion toggles is_pinned on the named version.
func (m *Manager) PinVersion(filePath, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.manifest.Files[filePath]
	if !ok {
		return model.NewSyncError(model.FileNotInManifest, "PinVersion", filePath, nil)
	}
	idx, found := fm.FindVersion(versionID)
	if !found {
		return model.NewSyncError(model.VersionNotFound, "PinVersion", filePath, nil)
	}
	fm.Versions[idx].IsPinned = !fm.Versions[idx].IsPinned
	return nil
}

// RemoveVersion removes the named version unless pinned. If it was the
// current version, the new head is promoted (or current is cleared if
// none remain).
func (m *Manager) RemoveVersion(filePath, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.manifest.Files[filePath]
	if !ok {
		return model.NewSyncError(model.FileNotInManifest, "RemoveVersion", filePath, nil)
	}
	idx, found := fm.FindVersion(versionID)
	if !found {
		return model.NewSyncError(model.VersionNotFound, "RemoveVersion", filePath, nil)
	}
	if fm.Versions[idx].IsPinned {
		return model.NewSyncError(model.PinnedVersion, "RemoveVersion", filePath, nil)
	}
	fm.Versions = append(fm.Versions[:idx], fm.Versions[idx+1:]...)
	if fm.CurrentVersion == versionID {
		if len(fm.Versions) > 0 {
			fm.CurrentVersion = fm.Versions[0].VersionID
		} else {
			fm.CurrentVersion = ""
		}
	}
	return nil
}

// SetStorageMetadata attaches backend-opaque metadata (object key, ETag,
// and similar) to an already-recorded version, the step the sync engine
// performs once StorageBackend.UploadFile returns its result.
func (m *Manager) SetStorageMetadata(filePath, versionID string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fm, ok := m.manifest.Files[filePath]
	if !ok {
		return model.NewSyncError(model.FileNotInManifest, "SetStorageMetadata", filePath, nil)
	}
	idx, found := fm.FindVersion(versionID)
	if !found {
		return model.NewSyncError(model.VersionNotFound, "SetStorageMetadata", filePath, nil)
	}
	fm.Versions[idx].StorageMetadata = metadata
	return nil
}

// SerializeManifest returns the manifest as pretty-printed JSON.
func (m *Manager) SerializeManifest() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.MarshalIndent(m.manifest, "", "  ")
}

// cleanupLocked implements spec.md §4.2's four-step cleanup algorithm. The
// caller must hold m.mu.
func (m *Manager) cleanupLocked(fm *model.FileVersionManifest) {
	maxVersions := m.policy.MaxVersionsPerFile
	if fm.MaxVersions > 0 {
		maxVersions = fm.MaxVersions
	}
	if maxVersions <= 0 {
		maxVersions = 10
	}
	maxAgeDays := m.policy.MaxVersionAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	var pinned, unpinned []model.FileVersion
	for _, v := range fm.Versions {
		if v.IsPinned {
			pinned = append(pinned, v)
		} else {
			unpinned = append(unpinned, v)
		}
	}

	var surviving []model.FileVersion
	for _, v := range unpinned {
		if v.Timestamp.Before(cutoff) {
			continue
		}
		surviving = append(surviving, v)
	}
	sort.Slice(surviving, func(i, j int) bool { return surviving[i].Timestamp.After(surviving[j].Timestamp) })
	if len(surviving) > maxVersions {
		surviving = surviving[:maxVersions]
	}

	combined := append(pinned, surviving...)
	sort.Slice(combined, func(i, j int) bool { return combined[i].Timestamp.After(combined[j].Timestamp) })
	fm.Versions = combined
}

// shouldAutoPin implements the five auto-pin predicates of spec.md §4.2.
func shouldAutoPin(strategy config.AutoPinStrategy, existing []model.FileVersion, prev model.FileVersion, hasPrev bool, newSize int64) bool {
	switch strategy {
	case config.AutoPinOnMajorChanges:
		if !hasPrev {
			return true
		}
		if prev.Size == 0 {
			return newSize != 0
		}
		delta := newSize - prev.Size
		if delta < 0 {
			delta = -delta
		}
		return float64(delta)/float64(prev.Size) > 0.20
	case config.AutoPinDaily:
		return !hasVersionWithin(existing, sameDay)
	case config.AutoPinWeekly:
		return !hasVersionWithin(existing, sameISOWeek)
	case config.AutoPinMonthly:
		return !hasVersionWithin(existing, sameMonth)
	default:
		return false
	}
}

func hasVersionWithin(versions []model.FileVersion, same func(a, b time.Time) bool) bool {
	now := time.Now().UTC()
	for _, v := range versions {
		if same(v.Timestamp, now) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sameISOWeek(a, b time.Time) bool {
	ay, aw := a.ISOWeek()
	by, bw := b.ISOWeek()
	return ay == by && aw == bw
}

func sameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}
