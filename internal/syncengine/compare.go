package syncengine

import (
	"time"

	"github.com/savevault/syncengine/internal/model"
)

// tieWindow is the "same time" tolerance of the legacy pure-compare
// engine, fixed rather than tunable for compatibility with the source
// behavior (spec.md §9's third open question).
const tieWindow = 2 * time.Second

// CompareByTimestamp implements the legacy non-versioned file-compare
// rule, used where a backend exposes only last-modified time and size
// (no content hash). The versioned engine calls it as the reconciliation
// rule for a current version that carries no hash.
func CompareByTimestamp(localMTime, remoteMTime time.Time, localSize, remoteSize int64) model.SyncAction {
	delta := localMTime.Sub(remoteMTime)
	if delta < 0 {
		delta = -delta
	}
	if delta <= tieWindow {
		if localSize != remoteSize {
			return model.SyncAction{Kind: model.UploadNewVersion, Reason: "equal timestamps, sizes differ: prefer local"}
		}
		return model.SyncAction{Kind: model.NoAction, Reason: "equal timestamps and sizes"}
	}
	if localMTime.After(remoteMTime) {
		return model.SyncAction{Kind: model.UploadNewVersion, Reason: "local is newer"}
	}
	return model.SyncAction{Kind: model.DownloadRemote, Reason: "remote is newer"}
}
