package versionmgr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/model"
)

func writeTemp(t *testing.T, dir, name string, body []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestAddVersionAssignsIDAndCurrent(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "save.dat", []byte("hello world"))

	mgr, err := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	v, err := mgr.AddVersion("save.dat", path, nil, "")
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	if v.VersionID == "" {
		t.Fatal("expected non-empty version id")
	}
	cur, ok := mgr.GetCurrentVersion("save.dat")
	if !ok || cur.VersionID != v.VersionID {
		t.Fatalf("expected current version %q, got %+v (ok=%v)", v.VersionID, cur, ok)
	}
	if cur.Size != int64(len("hello world")) {
		t.Fatalf("expected size %d, got %d", len("hello world"), cur.Size)
	}
}

func TestCompactVersionIDReplacesDotWithUnderscore(t *testing.T) {
	got := compactVersionID("20260101_120000.123456_abcdef01")
	want := "20260101_120000_123456_abcdef01"
	if got != want {
		t.Fatalf("compactVersionID = %q, want %q", got, want)
	}
}

func TestAddVersionFromBytesVersionIDShape(t *testing.T) {
	mgr, err := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	v, err := mgr.AddVersionFromBytes("save.dat", []byte("hello"), nil, "")
	if err != nil {
		t.Fatalf("AddVersionFromBytes: %v", err)
	}
	// "<YYYYMMDD_HHMMSS_micros>_<hash[0..8]>": date, time, micros, and
	// hash prefix each separated by an underscore — never a fused
	// seconds+micros run with no separator.
	parts := strings.Split(v.VersionID, "_")
	if len(parts) != 4 {
		t.Fatalf("expected 4 underscore-separated parts in %q, got %d", v.VersionID, len(parts))
	}
	if len(parts[0]) != 8 {
		t.Fatalf("expected an 8-digit date component, got %q", parts[0])
	}
	if len(parts[1]) != 6 {
		t.Fatalf("expected a 6-digit time component, got %q", parts[1])
	}
	if len(parts[2]) != 6 {
		t.Fatalf("expected a 6-digit microseconds component, got %q", parts[2])
	}
	if len(parts[3]) != 8 {
		t.Fatalf("expected an 8-character hash prefix, got %q", parts[3])
	}
}

func TestAddVersionMissingFile(t *testing.T) {
	mgr, _ := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	if _, err := mgr.AddVersion("missing.dat", "/no/such/path", nil, ""); err == nil {
		t.Fatal("expected error for missing local file")
	} else if kind, ok := model.KindOf(err); !ok || kind != model.LocalFileMissing {
		t.Fatalf("expected LocalFileMissing, got %v (ok=%v)", kind, ok)
	}
}

func TestRemoveVersionRefusesPinned(t *testing.T) {
	mgr, _ := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	v, err := mgr.AddVersionFromBytes("save.dat", []byte("body"), nil, "")
	if err != nil {
		t.Fatalf("AddVersionFromBytes: %v", err)
	}
	if err := mgr.PinVersion("save.dat", v.VersionID); err != nil {
		t.Fatalf("PinVersion: %v", err)
	}
	if err := mgr.RemoveVersion("save.dat", v.VersionID); err == nil {
		t.Fatal("expected error removing pinned version")
	} else if kind, ok := model.KindOf(err); !ok || kind != model.PinnedVersion {
		t.Fatalf("expected PinnedVersion, got %v (ok=%v)", kind, ok)
	}
}

func TestRemoveVersionPromotesNewHead(t *testing.T) {
	mgr, _ := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	v1, _ := mgr.AddVersionFromBytes("save.dat", []byte("one"), nil, "")
	v2, _ := mgr.AddVersionFromBytes("save.dat", []byte("two-longer-body"), nil, "")

	if err := mgr.RemoveVersion("save.dat", v2.VersionID); err != nil {
		t.Fatalf("RemoveVersion: %v", err)
	}
	cur, ok := mgr.GetCurrentVersion("save.dat")
	if !ok || cur.VersionID != v1.VersionID {
		t.Fatalf("expected promoted current %q, got %+v (ok=%v)", v1.VersionID, cur, ok)
	}
}

func TestCleanupEnforcesMaxVersions(t *testing.T) {
	policy := config.VersionConfig{MaxVersionsPerFile: 3, MaxVersionAgeDays: 365, AutoPinStrategy: config.AutoPinNone}
	mgr, _ := LoadOrCreate("mygame", policy, nil)
	for i := 0; i < 6; i++ {
		if _, err := mgr.AddVersionFromBytes("save.dat", []byte{byte(i)}, nil, ""); err != nil {
			t.Fatalf("AddVersionFromBytes %d: %v", i, err)
		}
	}
	versions, err := mgr.GetFileVersions("save.dat")
	if err != nil {
		t.Fatalf("GetFileVersions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected cleanup to cap at 3 versions, got %d", len(versions))
	}
}

func TestCleanupNeverRemovesPinnedVersions(t *testing.T) {
	policy := config.VersionConfig{MaxVersionsPerFile: 2, MaxVersionAgeDays: 365, AutoPinStrategy: config.AutoPinNone}
	mgr, _ := LoadOrCreate("mygame", policy, nil)
	v1, _ := mgr.AddVersionFromBytes("save.dat", []byte("a"), nil, "")
	if err := mgr.PinVersion("save.dat", v1.VersionID); err != nil {
		t.Fatalf("PinVersion: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := mgr.AddVersionFromBytes("save.dat", []byte{byte('b' + i)}, nil, ""); err != nil {
			t.Fatalf("AddVersionFromBytes %d: %v", i, err)
		}
	}
	if _, err := mgr.GetVersion("save.dat", v1.VersionID); err != nil {
		t.Fatalf("expected pinned version %q to survive cleanup: %v", v1.VersionID, err)
	}
}

func TestAutoPinOnMajorChanges(t *testing.T) {
	policy := config.VersionConfig{MaxVersionsPerFile: 10, MaxVersionAgeDays: 365, AutoPinStrategy: config.AutoPinOnMajorChanges}
	mgr, _ := LoadOrCreate("mygame", policy, nil)

	v1, err := mgr.AddVersionFromBytes("save.dat", make([]byte, 100), nil, "")
	if err != nil {
		t.Fatalf("AddVersionFromBytes v1: %v", err)
	}
	if !v1.IsPinned {
		t.Fatal("expected first version to be auto-pinned (no previous version)")
	}

	v2, err := mgr.AddVersionFromBytes("save.dat", make([]byte, 105), nil, "")
	if err != nil {
		t.Fatalf("AddVersionFromBytes v2: %v", err)
	}
	if v2.IsPinned {
		t.Fatal("expected small size delta to not trigger auto-pin")
	}

	v3, err := mgr.AddVersionFromBytes("save.dat", make([]byte, 200), nil, "")
	if err != nil {
		t.Fatalf("AddVersionFromBytes v3: %v", err)
	}
	if !v3.IsPinned {
		t.Fatal("expected large size delta to trigger auto-pin")
	}
}

func TestAutoPinDailyOnlyFirstOfDay(t *testing.T) {
	policy := config.VersionConfig{MaxVersionsPerFile: 10, MaxVersionAgeDays: 365, AutoPinStrategy: config.AutoPinDaily}
	mgr, _ := LoadOrCreate("mygame", policy, nil)

	v1, _ := mgr.AddVersionFromBytes("save.dat", []byte("one"), nil, "")
	if !v1.IsPinned {
		t.Fatal("expected first version of the day to be auto-pinned")
	}
	v2, _ := mgr.AddVersionFromBytes("save.dat", []byte("two"), nil, "")
	if v2.IsPinned {
		t.Fatal("expected second version of the same day to not be auto-pinned")
	}
}

func TestSerializeManifestRoundTrip(t *testing.T) {
	mgr, _ := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	if _, err := mgr.AddVersionFromBytes("save.dat", []byte("body"), nil, "a save"); err != nil {
		t.Fatalf("AddVersionFromBytes: %v", err)
	}
	data, err := mgr.SerializeManifest()
	if err != nil {
		t.Fatalf("SerializeManifest: %v", err)
	}
	reloaded, err := LoadOrCreate("mygame", config.DefaultVersionConfig(), data)
	if err != nil {
		t.Fatalf("LoadOrCreate from serialized: %v", err)
	}
	versions, err := reloaded.GetFileVersions("save.dat")
	if err != nil || len(versions) != 1 {
		t.Fatalf("expected 1 version after round trip, got %d (err=%v)", len(versions), err)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	mgr, _ := LoadOrCreate("mygame", config.DefaultVersionConfig(), nil)
	if _, err := mgr.GetVersion("save.dat", "nope"); err == nil {
		t.Fatal("expected error for file not in manifest")
	} else if kind, ok := model.KindOf(err); !ok || kind != model.FileNotInManifest {
		t.Fatalf("expected FileNotInManifest, got %v (ok=%v)", kind, ok)
	}

	if _, err := mgr.AddVersionFromBytes("save.dat", []byte("a"), nil, ""); err != nil {
		t.Fatalf("AddVersionFromBytes: %v", err)
	}
	if _, err := mgr.GetVersion("save.dat", "bogus-id"); err == nil {
		t.Fatal("expected error for unknown version id")
	} else if kind, ok := model.KindOf(err); !ok || kind != model.VersionNotFound {
		t.Fatalf("expected VersionNotFound, got %v (ok=%v)", kind, ok)
	}
}

func TestCleanupRemovesExpiredUnpinnedVersions(t *testing.T) {
	policy := config.VersionConfig{MaxVersionsPerFile: 10, MaxVersionAgeDays: 1, AutoPinStrategy: config.AutoPinNone}
	mgr, _ := LoadOrCreate("mygame", policy, nil)
	fm := &model.FileVersionManifest{
		FilePath: "save.dat",
		Versions: []model.FileVersion{
			{VersionID: "old", Timestamp: time.Now().UTC().AddDate(0, 0, -10), Size: 1, Hash: "x"},
		},
		CurrentVersion: "old",
	}
	mgr.manifest.Files["save.dat"] = fm

	if _, err := mgr.AddVersionFromBytes("save.dat", []byte("new"), nil, ""); err != nil {
		t.Fatalf("AddVersionFromBytes: %v", err)
	}
	versions, err := mgr.GetFileVersions("save.dat")
	if err != nil {
		t.Fatalf("GetFileVersions: %v", err)
	}
	for _, v := range versions {
		if v.VersionID == "old" {
			t.Fatal("expected expired unpinned version to be pruned")
		}
	}
}
