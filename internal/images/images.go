// Package images stores task attachments under <root>/images.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"tasktimeline/internal/model"
)

const dirName = "images"

// Service copies attachments into the app directory and removes them.
type Service struct {
	fs   afero.Fs
	root string
}

func NewService(fs afero.Fs, root string) *Service {
	return &Service{fs: fs, root: root}
}

// Dir is the directory attachments are written to.
func (s *Service) Dir() string {
	return filepath.Join(s.root, dirName)
}

// Save copies the file at sourcePath into the images directory and returns the new path.
func (s *Service) Save(ctx context.Context, sourcePath string) (string, error) {
	src, err := s.fs.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open image %q: %w: %w", sourcePath, model.ErrIOFailure, err)
	}
	defer src.Close()
	return s.SaveFromReader(ctx, src)
}

// SaveFromReader writes r into a new file in the images directory.
func (s *Service) SaveFromReader(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.Dir(), 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w: %w", model.ErrIOFailure, err)
	}

	dest := filepath.Join(s.Dir(), fmt.Sprintf("task_%s.jpg", uuid.NewString()))
	f, err := s.fs.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create image %q: %w: %w", dest, model.ErrIOFailure, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(dest)
		return "", fmt.Errorf("write image %q: %w: %w", dest, model.ErrIOFailure, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(dest)
		return "", fmt.Errorf("close image %q: %w: %w", dest, model.ErrIOFailure, err)
	}
	return dest, nil
}

// Open returns a stored attachment for reading. The caller closes it.
func (s *Service) Open(uri string) (afero.File, error) {
	f, err := s.fs.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("open image %q: %w: %w", uri, model.ErrIOFailure, err)
	}
	return f, nil
}

// Delete removes uri. A file that is already gone is not an error.
func (s *Service) Delete(_ context.Context, uri string) error {
	if uri == "" {
		return nil
	}
	if err := s.fs.Remove(uri); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete image %q: %w: %w", uri, model.ErrIOFailure, err)
	}
	return nil
}
