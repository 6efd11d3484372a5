package backendfactory

import (
	"context"
	"testing"

	"github.com/savevault/syncengine/internal/config"
	"github.com/savevault/syncengine/internal/storage/localbackend"
)

func TestNewLocalBackend(t *testing.T) {
	cfg := config.StorageConfig{
		Backend: config.BackendLocal,
		Local:   config.LocalConfig{BasePath: t.TempDir()},
	}
	b, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.(*localbackend.Backend); !ok {
		t.Fatalf("expected *localbackend.Backend, got %T", b)
	}
}

func TestNewDefaultsToLocalBackendWhenUnset(t *testing.T) {
	cfg := config.StorageConfig{Local: config.LocalConfig{BasePath: t.TempDir()}}
	b, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := b.(*localbackend.Backend); !ok {
		t.Fatalf("expected *localbackend.Backend for empty backend tag, got %T", b)
	}
}

func TestNewGoogleDriveIsUnimplemented(t *testing.T) {
	cfg := config.StorageConfig{Backend: config.BackendGoogleDrive}
	_, err := New(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error constructing the googledrive backend")
	}
}

func TestNewWebDAVIsUnimplemented(t *testing.T) {
	cfg := config.StorageConfig{Backend: config.BackendWebDAV}
	_, err := New(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error constructing the webdav backend")
	}
}

func TestNewUnknownBackendErrors(t *testing.T) {
	cfg := config.StorageConfig{Backend: "made-up"}
	_, err := New(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected an error for an unrecognized backend tag")
	}
}
