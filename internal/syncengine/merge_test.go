package syncengine

import (
	"testing"
	"time"

	"github.com/savevault/syncengine/internal/model"
)

func manifestWith(gameName string, files map[string]*model.FileVersionManifest) *model.GameVersionManifest {
	m := model.NewGameVersionManifest(gameName)
	m.Files = files
	return m
}

func TestMergeAdoptsFilesAbsentFromLocal(t *testing.T) {
	now := time.Now().UTC()
	remote := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/a.sav": {
			FilePath:       "g/a.sav",
			Versions:       []model.FileVersion{{VersionID: "v1", Timestamp: now, Hash: "h1"}},
			CurrentVersion: "v1",
		},
	})
	local := manifestWith("g", map[string]*model.FileVersionManifest{})

	merged := mergeManifests(local, remote)
	fm, ok := merged.Files["g/a.sav"]
	if !ok {
		t.Fatal("expected remote-only file to be adopted")
	}
	if fm.CurrentVersion != "v1" {
		t.Fatalf("expected current version v1, got %q", fm.CurrentVersion)
	}
}

func TestMergeUnionsVersionsByID(t *testing.T) {
	now := time.Now().UTC()
	local := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/a.sav": {
			FilePath:       "g/a.sav",
			Versions:       []model.FileVersion{{VersionID: "vL", Timestamp: now, Hash: "hL"}},
			CurrentVersion: "vL",
		},
	})
	remote := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/a.sav": {
			FilePath:       "g/a.sav",
			Versions:       []model.FileVersion{{VersionID: "vR", Timestamp: now.Add(time.Hour), Hash: "hR"}},
			CurrentVersion: "vR",
		},
	})

	merged := mergeManifests(local, remote)
	fm := merged.Files["g/a.sav"]
	if len(fm.Versions) != 2 {
		t.Fatalf("expected union of 2 versions, got %d", len(fm.Versions))
	}
	if fm.CurrentVersion != "vR" {
		t.Fatalf("expected newer remote current version to win, got %q", fm.CurrentVersion)
	}
}

func TestMergeRetainsLocalOnlyFiles(t *testing.T) {
	now := time.Now().UTC()
	local := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/local-only.sav": {
			FilePath:       "g/local-only.sav",
			Versions:       []model.FileVersion{{VersionID: "v1", Timestamp: now, Hash: "h1"}},
			CurrentVersion: "v1",
		},
	})
	remote := manifestWith("g", map[string]*model.FileVersionManifest{})

	merged := mergeManifests(local, remote)
	if _, ok := merged.Files["g/local-only.sav"]; !ok {
		t.Fatal("expected local-only file to be retained")
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	now := time.Now().UTC()
	remote := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/a.sav": {
			FilePath:       "g/a.sav",
			Versions:       []model.FileVersion{{VersionID: "v1", Timestamp: now, Hash: "h1"}},
			CurrentVersion: "v1",
		},
	})
	local := manifestWith("g", map[string]*model.FileVersionManifest{})

	once := mergeManifests(local, remote)
	onceVersions := len(once.Files["g/a.sav"].Versions)

	twice := mergeManifests(once, remote)
	if len(twice.Files["g/a.sav"].Versions) != onceVersions {
		t.Fatalf("expected merge to be idempotent, got %d versions after second merge, want %d",
			len(twice.Files["g/a.sav"].Versions), onceVersions)
	}
}

func TestMergeCurrentVersionNeitherPresentPicksNewest(t *testing.T) {
	now := time.Now().UTC()
	local := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/a.sav": {
			FilePath: "g/a.sav",
			Versions: []model.FileVersion{{VersionID: "vL", Timestamp: now, Hash: "hL"}},
			// CurrentVersion intentionally unset
		},
	})
	remote := manifestWith("g", map[string]*model.FileVersionManifest{
		"g/a.sav": {
			FilePath: "g/a.sav",
			Versions: []model.FileVersion{{VersionID: "vR", Timestamp: now.Add(time.Hour), Hash: "hR"}},
			// CurrentVersion intentionally unset
		},
	})

	merged := mergeManifests(local, remote)
	if merged.Files["g/a.sav"].CurrentVersion != "vR" {
		t.Fatalf("expected newest version vR to be chosen, got %q", merged.Files["g/a.sav"].CurrentVersion)
	}
}
