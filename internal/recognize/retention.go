package recognize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"parkgate/internal/domain/gate"
)

// FrameStore persists source frames when image retention is enabled.
type FrameStore interface {
	Save(ctx context.Context, frame gate.Frame) error
}

// DiskFrameStore writes frames as JPEG files under one directory.
type DiskFrameStore struct {
	dir string
}

func NewDiskFrameStore(dir string) (*DiskFrameStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create retention dir: %w", err)
	}
	return &DiskFrameStore{dir: dir}, nil
}

func (s *DiskFrameStore) Save(_ context.Context, frame gate.Frame) error {
	name := fmt.Sprintf("%s_%s.jpg", frame.CameraID, frame.Capture.UTC().Format("20060102T150405.000"))
	return os.WriteFile(filepath.Join(s.dir, name), frame.Image, 0o644)
}
