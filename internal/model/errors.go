package model

import "fmt"

// Kind tags the taxonomy of engine-level failures described in the sync
// engine's error handling design. It is not a replacement for Go's error
// wrapping — SyncError still carries the underlying cause.
type Kind int

const (
	// ConfigAbsent means neither a local nor a remote manifest exists yet;
	// this is the legitimate first-sync state, not a failure.
	ConfigAbsent Kind = iota
	// LocalFileMissing means the watched path does not exist locally.
	LocalFileMissing
	// LocalFileLocked means the local file could not be opened for
	// reading (e.g. permission denied); the cycle is skipped and retried
	// on the next debounced event.
	LocalFileLocked
	// IntegrityFailure means a downloaded body's hash did not match the
	// manifest's recorded hash.
	IntegrityFailure
	// BackendTransport means the storage backend's I/O failed.
	BackendTransport
	// ManifestParseError means the remote manifest JSON could not be
	// decoded; treated as absent for merge purposes.
	ManifestParseError
	// VersionNotFound means a user-driven version lookup found nothing.
	VersionNotFound
	// FileNotInManifest means a user-driven file lookup found no entry.
	FileNotInManifest
	// PinnedVersion means an operation tried to remove a pinned version.
	PinnedVersion
)

func (k Kind) String() string {
	switch k {
	case ConfigAbsent:
		return "ConfigAbsent"
	case LocalFileMissing:
		return "LocalFileMissing"
	case LocalFileLocked:
		return "LocalFileLocked"
	case IntegrityFailure:
		return "IntegrityFailure"
	case BackendTransport:
		return "BackendTransport"
	case ManifestParseError:
		return "ManifestParseError"
	case VersionNotFound:
		return "VersionNotFound"
	case FileNotInManifest:
		return "FileNotInManifest"
	case PinnedVersion:
		return "PinnedVersion"
	default:
		return "Unknown"
	}
}

// SyncError is the engine's structured error type: a taxonomy Kind plus
// the operation and path it occurred on, wrapping the underlying cause.
type SyncError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// NewSyncError builds a SyncError, accepting a nil Err for sentinel cases
// (e.g. PinnedVersion) where there is no underlying cause to wrap.
func NewSyncError(kind Kind, op, path string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *SyncError, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var se *SyncError
	for err != nil {
		if s, ok := err.(*SyncError); ok {
			se = s
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if se == nil {
		return 0, false
	}
	return se.Kind, true
}
