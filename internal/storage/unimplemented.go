package storage

import (
	"context"
	"fmt"

	"github.com/savevault/syncengine/internal/model"
)

// unimplementedBackend satisfies Backend so a config naming an
// as-yet-unimplemented storage tag (GoogleDrive, WebDAV) parses cleanly,
// but every operation fails with ErrNotImplemented. Construction itself
// also fails: NewUnimplemented returns ErrNotImplemented, per the design
// note that
// these tags should surface an explicit error at construction time rather
// than silently degrade.
type unimplementedBackend struct {
	tag string
}

// NewUnimplemented returns a Backend stub for the given tag and an error
// signaling the backend cannot be used yet.
func NewUnimplemented(tag string) (Backend, error) {
	return &unimplementedBackend{tag: tag}, fmt.Errorf("%w: %s", ErrNotImplemented, tag)
}

func (u *unimplementedBackend) UploadFile(context.Context, string, string, model.FileVersion, []byte) (*Result, error) {
	return nil, u.err()
}

func (u *unimplementedBackend) DownloadFile(context.Context, string, string, model.FileVersion) ([]byte, error) {
	return nil, u.err()
}

func (u *unimplementedBackend) UploadManifest(context.Context, string, *model.GameVersionManifest) (*Result, error) {
	return nil, u.err()
}

func (u *unimplementedBackend) DownloadManifest(context.Context, string) (*model.GameVersionManifest, error) {
	return nil, u.err()
}

func (u *unimplementedBackend) DeleteVersion(context.Context, string, string, model.FileVersion) (*Result, error) {
	return nil, u.err()
}

func (u *unimplementedBackend) ListGames(context.Context) ([]string, error) {
	return nil, u.err()
}

func (u *unimplementedBackend) HealthCheck(context.Context) bool {
	return false
}

func (u *unimplementedBackend) err() error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, u.tag)
}
