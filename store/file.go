package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/transcode"
)

// FileStore writes each document to its own file in Dir. Ids are the file
// paths.
type FileStore struct {
	Dir string
	// TextMode stores base64 text instead of raw bytes, with a ".b64"
	// suffix on the file name.
	TextMode bool
	Now      func() time.Time
	Logger   observability.Logger
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	t := now(s.Now)
	for n := 1; n <= maxAttempts; n++ {
		file := candidate(name, t, n)
		if s.TextMode {
			file += ".b64"
		}
		path := filepath.Join(dir, file)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store: %w", err)
		}
		if err := s.write(f, data); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("store: write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", fmt.Errorf("store: close %s: %w", path, err)
		}
		observability.OrNop(s.Logger).Debug("stored document",
			observability.String("path", path),
			observability.Int("bytes", len(data)),
		)
		return path, nil
	}
	return "", fmt.Errorf("store: no free name for %q", name)
}

func (s *FileStore) write(w io.Writer, data []byte) error {
	if !s.TextMode {
		_, err := w.Write(data)
		return err
	}
	enc := transcode.NewEncoder(w)
	if _, err := enc.Write(data); err != nil {
		return err
	}
	return enc.Close()
}

func (s *FileStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer f.Close()
	if s.TextMode {
		return transcode.DecodeReader(f)
	}
	return io.ReadAll(f)
}
