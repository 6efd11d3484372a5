package syncengine

import (
	"sort"
	"time"

	"github.com/savevault/syncengine/internal/model"
)

// mergeManifests implements the union-by-version-id merge of spec.md §4.3,
// folding remote into local and returning the (mutated) local manifest.
// Merge is idempotent and commutative on version sets by construction: the
// union is keyed on version_id, and current_version resolution is total.
func mergeManifests(local, remote *model.GameVersionManifest) *model.GameVersionManifest {
	if remote == nil {
		return local
	}
	if local.Files == nil {
		local.Files = map[string]*model.FileVersionManifest{}
	}
	for path, rfm := range remote.Files {
		lfm, ok := local.Files[path]
		if !ok {
			local.Files[path] = rfm
			continue
		}
		local.Files[path] = mergeFileManifests(lfm, rfm)
	}
	local.LastUpdated = time.Now().UTC()
	return local
}

func mergeFileManifests(l, r *model.FileVersionManifest) *model.FileVersionManifest {
	byID := make(map[string]model.FileVersion, len(l.Versions)+len(r.Versions))
	for _, v := range l.Versions {
		byID[v.VersionID] = v
	}
	for _, v := range r.Versions {
		if _, exists := byID[v.VersionID]; !exists {
			byID[v.VersionID] = v
		}
	}
	merged := make([]model.FileVersion, 0, len(byID))
	for _, v := range byID {
		merged = append(merged, v)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.After(merged[j].Timestamp) })

	lCur, lHas := findVersion(l.Versions, l.CurrentVersion)
	rCur, rHas := findVersion(r.Versions, r.CurrentVersion)

	var current string
	switch {
	case lHas && rHas:
		if rCur.Timestamp.After(lCur.Timestamp) {
			current = rCur.VersionID
		} else {
			current = lCur.VersionID
		}
	case lHas:
		current = lCur.VersionID
	case rHas:
		current = rCur.VersionID
	case len(merged) > 0:
		current = merged[0].VersionID
	}

	maxVersions := l.MaxVersions
	if maxVersions == 0 {
		maxVersions = r.MaxVersions
	}

	return &model.FileVersionManifest{
		FilePath:       l.FilePath,
		Versions:       merged,
		CurrentVersion: current,
		MaxVersions:    maxVersions,
	}
}

func findVersion(versions []model.FileVersion, id string) (model.FileVersion, bool) {
	if id == "" {
		return model.FileVersion{}, false
	}
	for _, v := range versions {
		if v.VersionID == id {
			return v, true
		}
	}
	return model.FileVersion{}, false
}
