// Package model defines the data types shared by the sync engine, the
// version manager, and the storage backends: versions, manifests, sync
// jobs, and the sync-action decision type.
package model

import "time"

// FileVersion is a single immutable snapshot of one file's content.
//
// All fields except IsPinned and StorageMetadata are immutable once a
// version is created; StorageMetadata is set from the backend's upload
// result after the version is recorded.
type FileVersion struct {
	VersionID       string            `json:"version_id"`
	Timestamp       time.Time         `json:"timestamp"`
	Size            int64             `json:"size"`
	Hash            string            `json:"hash"`
	StorageMetadata map[string]string `json:"storage_metadata,omitempty"`
	Description     string            `json:"description,omitempty"`
	IsPinned        bool              `json:"is_pinned"`
}

// FileVersionManifest holds every retained version of one logical file,
// identified by its game-relative path.
type FileVersionManifest struct {
	FilePath       string        `json:"file_path"`
	Versions       []FileVersion `json:"versions"`
	CurrentVersion string        `json:"current_version,omitempty"`
	MaxVersions    int           `json:"max_versions,omitempty"`
}

// CurrentFileVersion returns the version named by CurrentVersion, if any.
func (m *FileVersionManifest) CurrentFileVersion() (FileVersion, bool) {
	if m.CurrentVersion == "" {
		return FileVersion{}, false
	}
	for _, v := range m.Versions {
		if v.VersionID == m.CurrentVersion {
			return v, true
		}
	}
	return FileVersion{}, false
}

// FindVersion looks up a version by id.
func (m *FileVersionManifest) FindVersion(versionID string) (int, bool) {
	for i, v := range m.Versions {
		if v.VersionID == versionID {
			return i, true
		}
	}
	return 0, false
}

// GameVersionManifest is the authoritative, per-game record persisted to
// storage under the game's well-known manifest key.
type GameVersionManifest struct {
	GameName       string                          `json:"game_name"`
	ManifestVersion int                            `json:"manifest_version"`
	LastUpdated    time.Time                       `json:"last_updated"`
	Files          map[string]*FileVersionManifest `json:"files"`
	Metadata       map[string]string               `json:"metadata,omitempty"`
}

// CurrentManifestVersion is the schema version written by this
// implementation. Readers must ignore unknown fields; this value gates
// structural changes only.
const CurrentManifestVersion = 1

// NewGameVersionManifest constructs an empty manifest for a game, as
// happens implicitly on first sync.
func NewGameVersionManifest(gameName string) *GameVersionManifest {
	return &GameVersionManifest{
		GameName:        gameName,
		ManifestVersion: CurrentManifestVersion,
		LastUpdated:     time.Now().UTC(),
		Files:           map[string]*FileVersionManifest{},
		Metadata:        map[string]string{},
	}
}

// SyncJob is the transient (game, path) pair produced by the debouncer and
// consumed by the sync engine.
type SyncJob struct {
	GameName string
	AbsPath  string
}

// SyncActionKind tags the decision the engine reaches for one file.
type SyncActionKind int

const (
	// NoAction means local and remote already agree.
	NoAction SyncActionKind = iota
	// UploadNewVersion means the local file differs from the manifest's
	// current version and must be captured as a new version.
	UploadNewVersion
	// DownloadRemote means the manifest's current version must be written
	// to the local path.
	DownloadRemote
)

func (k SyncActionKind) String() string {
	switch k {
	case UploadNewVersion:
		return "UploadNewVersion"
	case DownloadRemote:
		return "DownloadRemote"
	default:
		return "NoAction"
	}
}

// SyncAction is the computed (never stored) decision for one sync of one
// path.
type SyncAction struct {
	Kind   SyncActionKind
	Reason string
}
