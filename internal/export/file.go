package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter writes the snapshot to a local file, replacing it atomically.
type FileWriter struct {
	Path string
}

func (w *FileWriter) Write(_ context.Context, s Snapshot) error {
	dir := filepath.Dir(w.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := Encode(f, s); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, w.Path); err != nil {
		return fmt.Errorf("move snapshot to %q: %w", w.Path, err)
	}
	return nil
}
