package storage

import (
	"errors"
	"testing"
)

func TestVersionKeyFormat(t *testing.T) {
	got := VersionKey("Demo", "saves/a.sav", "20260101_000000.000000_abcd1234")
	want := "games/Demo/files/saves/a.sav/versions/20260101_000000.000000_abcd1234"
	if got != want {
		t.Fatalf("VersionKey = %q, want %q", got, want)
	}
}

func TestManifestKeyFormat(t *testing.T) {
	got := ManifestKey("Demo")
	want := "games/Demo/manifest.json"
	if got != want {
		t.Fatalf("ManifestKey = %q, want %q", got, want)
	}
}

func TestOKResult(t *testing.T) {
	meta := map[string]string{"etag": "abc"}
	r := OK(meta)
	if !r.Success || r.Error != "" {
		t.Fatalf("expected successful empty-error result, got %+v", r)
	}
	if r.Metadata["etag"] != "abc" {
		t.Fatalf("expected metadata to be carried through, got %+v", r.Metadata)
	}
}

func TestFailedResult(t *testing.T) {
	r := Failed(errors.New("boom"))
	if r.Success {
		t.Fatal("expected Failed result to report Success=false")
	}
	if r.Error != "boom" {
		t.Fatalf("expected error message boom, got %q", r.Error)
	}
}
